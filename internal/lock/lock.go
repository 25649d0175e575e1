package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// HeldError is returned when another client process holds the session lock.
type HeldError struct {
	Holder Holder
	Path   string
}

func (e *HeldError) Error() string {
	if e.Holder.UserID != "" {
		return fmt.Sprintf("session in use by PID %d as %s (%s)", e.Holder.PID, e.Holder.UserID, e.Path)
	}
	return fmt.Sprintf("session in use by PID %d (%s)", e.Holder.PID, e.Path)
}

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID     int
	UserID  string
	Started time.Time
}

// Lock is an acquired session lock. Only one pchat client may own a
// session's database and control socket at a time.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on path, creating parent directories.
// userID is recorded for diagnostics and may be empty before sign-in.
func Acquire(path, userID string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		holder, _ := Read(path)
		return nil, &HeldError{Holder: holder, Path: path}
	}

	l := &Lock{file: f, path: path}
	if err := l.Record(userID); err != nil {
		_ = l.Release()
		return nil, err
	}
	return l, nil
}

// Record rewrites the holder information, e.g. once the user has signed in.
func (l *Lock) Record(userID string) error {
	if l == nil || l.file == nil {
		return errors.New("lock not held")
	}
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	content := fmt.Sprintf("pid=%d\nuser=%s\ntime=%s\n", os.Getpid(), userID, time.Now().UTC().Format(time.RFC3339))
	if _, err := l.file.WriteAt([]byte(content), 0); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// Release releases the lock. Safe to call on nil receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove lock file before closing to avoid stale files.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

// Read parses the holder recorded at path.
func Read(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}
	var h Holder
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "user":
			h.UserID = value
		case "time":
			h.Started, _ = time.Parse(time.RFC3339, value)
		}
	}
	return h, nil
}
