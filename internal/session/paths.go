package session

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the base directory; used by tests and packaged installs.
const HomeEnv = "MOMENTO_HOME"

// BaseDir returns $MOMENTO_HOME, or ~/.momento.
func BaseDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".momento")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the control socket path for a session.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// LockPath returns the lock file path for a session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// AppDBPath returns the SQLite database holding the persisted stores.
func AppDBPath(name string) string {
	return filepath.Join(Dir(name), "momento.db")
}

// CredentialsPath returns the file the auth collaborator keeps tokens in.
func CredentialsPath(name string) string {
	return filepath.Join(Dir(name), "credentials.toml")
}

// MediaDir returns the directory cached photos and attachments are written to.
func MediaDir(name string) string {
	return filepath.Join(Dir(name), "media")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "momentod.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name), MediaDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
