package session

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/matheus3301/pchat/internal/config"
)

const DefaultSessionName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// Resolve determines the active session name using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// 3. "main"
// The result is validated.
func Resolve(flagOverride string) (string, error) {
	name := flagOverride
	if name == "" {
		name = DefaultSessionName
		cfg, err := config.Load(ConfigPath())
		if err == nil && cfg.DefaultSession != "" {
			name = cfg.DefaultSession
		}
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// List returns the names of existing sessions, sorted.
func List() ([]string, error) {
	entries, err := os.ReadDir(Dir(""))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && ValidateName(e.Name()) == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
