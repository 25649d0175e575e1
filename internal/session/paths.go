package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.pchat, or $PCHAT_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("PCHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pchat")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the control socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "control.sock")
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// DBPath returns the session's pchat.db path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "pchat.db")
}

// SessionConfigPath returns the per-session config file path.
func SessionConfigPath(name string) string {
	return filepath.Join(Dir(name), "config.toml")
}

// MediaDir returns the attachment cache of a session.
func MediaDir(name string) string {
	return filepath.Join(Dir(name), "media")
}

// AvatarDir returns the avatar cache of a session.
func AvatarDir(name string) string {
	return filepath.Join(Dir(name), "avatars")
}

// ExportDir returns where saved attachments go when the config names none.
func ExportDir(name string) string {
	return filepath.Join(Dir(name), "saved")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the client log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "pchat.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
		MediaDir(name),
		AvatarDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
