package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultSession: "work"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestLoadSessionDefaults(t *testing.T) {
	cfg, err := LoadSession(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if cfg.Kafka.Topic != "pchat.messages" {
		t.Errorf("Kafka.Topic = %q, want default", cfg.Kafka.Topic)
	}
	if !cfg.Media.AutoDownload.Photo || cfg.Media.AutoDownload.Video {
		t.Errorf("AutoDownload = %+v", cfg.Media.AutoDownload)
	}
}

func TestLoadSessionOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `user_id = "u-1"
phone = "+15550100"

[kafka]
brokers = ["localhost:9092"]

[media]
bucket = "pchat-media"
  [media.auto_download]
  video = true
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadSession(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UserID != "u-1" || cfg.Phone != "+15550100" {
		t.Errorf("identity = %q %q", cfg.UserID, cfg.Phone)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Topic != "pchat.messages" {
		t.Errorf("Kafka = %+v", cfg.Kafka)
	}
	if cfg.Media.Bucket != "pchat-media" || !cfg.Media.AutoDownload.Video {
		t.Errorf("Media = %+v", cfg.Media)
	}
	if cfg.Audio.Player != "ffplay" {
		t.Errorf("Audio.Player = %q, want default", cfg.Audio.Player)
	}
}

func TestSaveSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	in := DefaultSession()
	in.UserID = "u-2"
	in.Redis.URL = "redis://localhost:6379/0"
	if err := SaveSession(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := LoadSession(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.UserID != "u-2" || out.Redis.URL != in.Redis.URL {
		t.Errorf("round trip = %+v", out)
	}
}

func TestConsumerGroupIsPerDevice(t *testing.T) {
	a, b := DefaultSession(), DefaultSession()
	a.DeviceID, b.DeviceID = "dev-a", "dev-b"
	if a.ConsumerGroup() == b.ConsumerGroup() {
		t.Errorf("two devices share group %q", a.ConsumerGroup())
	}
	if got := a.ConsumerGroup(); got != "pchat.dev-a" {
		t.Errorf("ConsumerGroup = %q, want pchat.dev-a", got)
	}
}
