package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.pchat/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
}

// Session is the per-session ~/.pchat/sessions/<name>/config.toml.
type Session struct {
	UserID   string        `toml:"user_id"`
	Phone    string        `toml:"phone"`
	Country  string        `toml:"country"`
	DeviceID string        `toml:"device_id"`
	Media    MediaConfig   `toml:"media"`
	Kafka    KafkaConfig   `toml:"kafka"`
	Redis    RedisConfig   `toml:"redis"`
	Metrics  MetricsConfig `toml:"metrics"`
	Audio    AudioConfig   `toml:"audio"`
}

// ConsumerGroup returns the kafka group this device reads the topic with.
// Every device must see every record, so the group is never shared.
func (s *Session) ConsumerGroup() string {
	return s.Kafka.Group + "." + s.DeviceID
}

// MediaConfig selects where attachments live. With Bucket empty, Dir acts as
// the blob store, which is what local development uses.
type MediaConfig struct {
	Bucket       string       `toml:"bucket"`
	Region       string       `toml:"region"`
	Endpoint     string       `toml:"endpoint"`
	Dir          string       `toml:"dir"`
	CacheDir     string       `toml:"cache_dir"`
	ExportDir    string       `toml:"export_dir"`
	AutoDownload AutoDownload `toml:"auto_download"`
}

// AutoDownload enables fetching attachments without an explicit tap.
type AutoDownload struct {
	Photo bool `toml:"photo"`
	Video bool `toml:"video"`
	Audio bool `toml:"audio"`
}

// KafkaConfig configures the message transport. No brokers means offline.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
	Group   string   `toml:"group"`
}

// RedisConfig configures the typing/read relay. An empty URL disables it.
type RedisConfig struct {
	URL    string `toml:"url"`
	Prefix string `toml:"prefix"`
}

// MetricsConfig configures the Prometheus listener. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// AudioConfig names the external player used for audio attachments.
type AudioConfig struct {
	Player string   `toml:"player"`
	Args   []string `toml:"args"`
}

// DefaultSession returns the settings used for keys a session file leaves out.
func DefaultSession() *Session {
	return &Session{
		Media: MediaConfig{
			AutoDownload: AutoDownload{Photo: true, Audio: true},
		},
		Kafka: KafkaConfig{
			Topic: "pchat.messages",
			Group: "pchat",
		},
		Redis: RedisConfig{
			Prefix: "pchat",
		},
		Audio: AudioConfig{
			Player: "ffplay",
			Args:   []string{"-nodisp", "-autoexit", "-loglevel", "quiet"},
		},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	return write(path, cfg)
}

// LoadSession reads a session config on top of DefaultSession. A missing file
// yields the defaults.
func LoadSession(path string) (*Session, error) {
	cfg := DefaultSession()
	_, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveSession writes a session config with the same permissions as Save.
func SaveSession(path string, cfg *Session) error {
	return write(path, cfg)
}

func write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(v)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
