package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"chatnest/internal/chat"
)

type appMode int

const (
	modeNamePrompt appMode = iota
	modeChat
	modeBrowse
	modeLink
)

const (
	rosterWidth  = 24
	chromeHeight = 14
)

// Model is the Bubble Tea program. It renders chat.Client state and turns
// keys into client operations; it holds no chat state of its own.
type Model struct {
	client *chat.Client
	server string
	log    zerolog.Logger

	input    textinput.Model
	link     textinput.Model
	viewport viewport.Model
	browser  browser
	mode     appMode
	width    int
	height   int

	name     string
	autoJoin bool
	changed  chat.Change
	remember func(string)
	bell     func()
}

type (
	connectMsg struct{}
	joinMsg    struct{}
)

func newModel(cfg Config) *Model {
	input := textinput.New()
	input.CharLimit = 0
	input.Prompt = "name> "
	input.Placeholder = "Enter display name…"
	input.SetValue(cfg.Username)
	input.Focus()

	link := textinput.New()
	link.Prompt = "url> "
	link.Placeholder = "https://…/image.gif"

	vp := viewport.New(80, 12)

	return &Model{
		server:   cfg.ServerURL,
		log:      cfg.Log,
		input:    input,
		link:     link,
		viewport: vp,
		mode:     modeNamePrompt,
		name:     cfg.Username,
		autoJoin: cfg.AutoJoin && cfg.Username != "",
		remember: cfg.Remember,
		bell: func() {
			fmt.Fprint(os.Stderr, "\a")
		},
	}
}

// onChange is wired as chat.Options.OnChange; it always runs inside Update.
func (m *Model) onChange(change chat.Change) {
	m.changed |= change
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, func() tea.Msg { return connectMsg{} }}
	if m.autoJoin {
		cmds = append(cmds, func() tea.Msg { return joinMsg{} })
	}
	return tea.Batch(cmds...)
}
