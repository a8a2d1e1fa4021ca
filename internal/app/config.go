package app

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	DefaultServerURL = "ws://localhost:8080/ws"
	DefaultAddr      = ":8080"
	DefaultJoinPath  = "/ws"
)

// ServerConfig defines how the relay should run.
type ServerConfig struct {
	Addr      string
	Path      string
	DBPath    string
	UploadDir string
	// MaxPhotoBytes caps a single upload; zero keeps the relay default.
	MaxPhotoBytes int64
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string
	Username  string
	AutoJoin  bool
	LogFile   string
	// ProfilePath overrides where the last display name is remembered.
	ProfilePath string
}

// Env returns the value of key or fallback when unset.
func Env(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// DataDir returns the per-user directory for chatnest files.
func DataDir() string {
	if env := os.Getenv("CHATNEST_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatnest")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "ChatNest")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "ChatNest")
		}
		return filepath.Join(home, ".local", "share", "chatnest")
	}
	return filepath.Join(".", ".chatnest")
}

// DefaultDBPath returns the per-user path for the bundled SQLite file.
func DefaultDBPath() string {
	if env := os.Getenv("CHATNEST_DB_PATH"); env != "" {
		return env
	}
	return filepath.Join(DataDir(), "chatnest.db")
}

// DefaultUploadDir is where the relay writes photo bytes.
func DefaultUploadDir() string {
	if env := os.Getenv("CHATNEST_UPLOAD_DIR"); env != "" {
		return env
	}
	return filepath.Join(DataDir(), "photos")
}

// DefaultProfilePath is the JSON file remembering the last display name.
func DefaultProfilePath() string {
	return filepath.Join(DataDir(), "profile.json")
}

// NormalizeJoinPath guarantees the websocket path starts with '/' and
// falls back to /ws when empty.
func NormalizeJoinPath(path string) string {
	if path == "" {
		return DefaultJoinPath
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
