package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrNoCredentials = errors.New("no credentials: sign in first")

// Credentials is the per-session credentials.toml.
type Credentials struct {
	AccessToken  string    `toml:"access_token"`
	RefreshToken string    `toml:"refresh_token"`
	UserID       string    `toml:"user_id"`
	ExpiresAt    time.Time `toml:"expires_at,omitempty"`
}

// Expired reports whether the access token is past its expiry. A zero expiry never expires.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Load reads credentials from path. A missing file yields ErrNoCredentials.
func Load(path string) (*Credentials, error) {
	var c Credentials
	if _, err := toml.DecodeFile(path, &c); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoCredentials
		}
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil, ErrNoCredentials
	}
	return &c, nil
}

// Save writes credentials with owner-only permissions.
func Save(path string, c *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(c)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
