package session

import (
	"fmt"
	"regexp"

	"github.com/matheus3301/momento/internal/config"
)

const DefaultSessionName = "main"

// Session names become directory names, so anything outside [a-z0-9_-] is refused.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Resolve picks the session name: the flag wins, then config.toml's
// default_session, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}

func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match %s", name, namePattern)
	}
	return nil
}

// Select resolves and validates the session name in one step.
func Select(flagOverride string) (string, error) {
	name := Resolve(flagOverride)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}
