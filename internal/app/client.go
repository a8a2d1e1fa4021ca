package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"chatnest/internal/tui"
)

// RunClient launches the Bubble Tea TUI with the provided configuration.
// An empty ServerURL falls back to the saved profile, then DefaultServerURL.
func RunClient(cfg ClientConfig) error {
	logger, closeLog, err := clientLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	profilePath := cfg.ProfilePath
	if profilePath == "" {
		profilePath = DefaultProfilePath()
	}
	profile, err := LoadProfile(profilePath)
	if err != nil {
		logger.Warn().Err(err).Str("path", profilePath).Msg("ignoring unreadable profile")
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = profile.ServerURL
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	username := cfg.Username
	if username == "" {
		username = profile.Username
	}

	logger.Info().Str("server", cfg.ServerURL).Msg("client starting")
	return tui.Run(tui.Config{
		ServerURL: cfg.ServerURL,
		Username:  username,
		AutoJoin:  cfg.AutoJoin,
		Log:       logger,
		Remember: func(name string) {
			if err := SaveProfile(profilePath, Profile{Username: name, ServerURL: cfg.ServerURL}); err != nil {
				logger.Warn().Err(err).Msg("save profile")
			}
		},
	})
}

// clientLogger writes to path, or nowhere: the terminal belongs to the TUI.
func clientLogger(path string) (zerolog.Logger, func(), error) {
	if path == "" {
		return zerolog.Nop(), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	return newLogger(f, zerolog.DebugLevel), func() { _ = f.Close() }, nil
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
