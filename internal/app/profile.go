package app

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// Profile is what the client remembers between runs.
type Profile struct {
	Username  string `json:"username"`
	ServerURL string `json:"server_url,omitempty"`
}

// LoadProfile returns an empty profile when none was saved yet.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Profile{}, nil
		}
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// SaveProfile writes atomically through a temp file.
func SaveProfile(path string, p Profile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
