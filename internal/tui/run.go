package tui

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"chatnest/internal/chat"
	"chatnest/internal/protocol"
	"chatnest/internal/transport"
	"chatnest/internal/uploader"
)

// Config is what the terminal client needs to start.
type Config struct {
	ServerURL string
	Username  string
	// AutoJoin joins as Username as soon as the channel is up.
	AutoJoin bool
	Log      zerolog.Logger
	// Remember is called with the name of every successful join.
	Remember func(name string)
}

// Run blocks until the user quits.
func Run(cfg Config) error {
	if cfg.ServerURL == "" {
		return errors.New("server URL is required")
	}
	model := newModel(cfg)
	program := tea.NewProgram(model, tea.WithAltScreen())
	loop := programLoop{send: program.Send}

	socket, err := transport.New(cfg.ServerURL, func(ev protocol.Event) {
		loop.Post(func() { model.client.Dispatch(ev) })
	}, transport.WithLogger(cfg.Log))
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	photos, err := uploader.New(cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	model.client = chat.NewClient(chat.Options{
		Channel:  socket,
		Uploader: photos,
		Loop:     loop,
		Log:      cfg.Log,
		OnChange: model.onChange,
	})

	_, runErr := program.Run()
	socket.Close()
	return runErr
}
