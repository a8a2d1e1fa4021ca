package tui

import (
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"chatnest/internal/chat"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case postedMsg:
		msg()
	case connectMsg:
		m.client.Connect()
	case joinMsg:
		// until the channel is up, sync retries the join on the next connection change
		if m.client.State() == chat.StateConnected {
			m.autoJoin = false
			_ = m.client.Join(m.input.Value())
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
	case tea.KeyMsg:
		var quit bool
		cmd, quit = m.handleKey(msg)
		if quit {
			return m, tea.Quit
		}
	}
	return m, tea.Batch(cmd, m.sync())
}

// sync reacts to whatever the client reported during this update.
func (m *Model) sync() tea.Cmd {
	change := m.changed
	m.changed = 0
	var cmd tea.Cmd

	if change.Has(chat.ChangeConnection) {
		if m.autoJoin && m.client.State() == chat.StateConnected && !m.client.Joined() {
			m.autoJoin = false
			_ = m.client.Join(m.input.Value())
		}
	}
	if change.Has(chat.ChangeLeave) || change.Has(chat.ChangeConnection) {
		m.syncMode()
	}
	if change.Has(chat.ChangeTimeline) || change.Has(chat.ChangeConnection) {
		m.viewport.SetContent(m.renderTimeline())
		m.viewport.GotoBottom()
	}
	if change.Has(chat.ChangeBell) && m.bell != nil {
		ring := m.bell
		cmd = func() tea.Msg {
			ring()
			return nil
		}
	}
	return cmd
}

// syncMode moves between the name prompt and the chat as the session comes and goes.
func (m *Model) syncMode() {
	session, joined := m.client.Session()
	switch {
	case joined && m.mode == modeNamePrompt:
		m.name = session.Username
		if m.remember != nil {
			m.remember(m.name)
		}
		m.mode = modeChat
		m.input.Reset()
		m.input.Prompt = "> "
		m.input.Placeholder = "Type a message…"
		m.input.Focus()
	case !joined && m.mode != modeNamePrompt:
		m.mode = modeNamePrompt
		m.input.Prompt = "name> "
		m.input.Placeholder = "Enter display name…"
		m.input.SetValue(m.name)
		m.input.Focus()
		m.link.Blur()
	}
}

func (m *Model) handleKey(key tea.KeyMsg) (tea.Cmd, bool) {
	if key.Type == tea.KeyCtrlC {
		return nil, true
	}
	if m.client.LeavePending() {
		switch key.String() {
		case "y", "Y", "enter":
			m.client.ConfirmLeave()
		case "n", "N", "esc":
			m.client.CancelLeave()
		}
		return nil, false
	}
	switch m.mode {
	case modeNamePrompt:
		return m.handleNameKey(key)
	case modeBrowse:
		return m.handleBrowseKey(key), false
	case modeLink:
		return m.handleLinkKey(key), false
	}
	return m.handleChatKey(key)
}

func (m *Model) handleNameKey(key tea.KeyMsg) (tea.Cmd, bool) {
	switch key.Type {
	case tea.KeyEsc:
		return nil, true
	case tea.KeyCtrlR:
		m.client.Connect()
		return nil, false
	case tea.KeyEnter:
		_ = m.client.Join(m.input.Value())
		return nil, false
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return cmd, false
}

func (m *Model) handleChatKey(key tea.KeyMsg) (tea.Cmd, bool) {
	switch key.Type {
	case tea.KeyEsc:
		return nil, true
	case tea.KeyCtrlL:
		m.client.RequestLeave()
		return nil, false
	case tea.KeyCtrlP:
		m.openBrowser()
		return nil, false
	case tea.KeyCtrlG:
		m.mode = modeLink
		m.input.Blur()
		m.link.Reset()
		return m.link.Focus(), false
	case tea.KeyCtrlR:
		m.client.Connect()
		return nil, false
	case tea.KeyCtrlU:
		m.input.Reset()
		m.client.ClearInput()
		return nil, false
	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(key)
		return cmd, false
	case tea.KeyEnter:
		return m.submit()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	if after := m.input.Value(); after != before {
		if after == "" {
			m.client.ClearInput()
		} else {
			m.client.OnInput()
		}
	}
	return cmd, false
}

func (m *Model) submit() (tea.Cmd, bool) {
	text := strings.TrimSpace(m.input.Value())
	switch strings.ToLower(text) {
	case "/quit", "/exit":
		return nil, true
	case "/leave":
		m.input.Reset()
		m.client.ClearInput()
		m.client.RequestLeave()
		return nil, false
	case "/photo":
		m.input.Reset()
		m.client.ClearInput()
		m.openBrowser()
		return nil, false
	}
	if err := m.client.SendText(text); err == nil {
		m.input.Reset()
	}
	return nil, false
}

func (m *Model) openBrowser() {
	start := m.browser.dir
	if start == "" {
		start = defaultBrowsePath()
	}
	m.browser.open(start)
	m.mode = modeBrowse
	m.input.Blur()
}

func (m *Model) backToChat() tea.Cmd {
	m.mode = modeChat
	m.link.Blur()
	return m.input.Focus()
}

func (m *Model) handleBrowseKey(key tea.KeyMsg) tea.Cmd {
	switch key.String() {
	case "esc", "q":
		return m.backToChat()
	case "up", "k":
		m.browser.move(-1)
	case "down", "j":
		m.browser.move(1)
	case "backspace", "left", "h":
		m.browser.open(filepath.Dir(m.browser.dir))
	case "enter", "right", "l":
		item, ok := m.browser.current()
		if !ok {
			return nil
		}
		if item.IsDir {
			m.browser.open(item.Path)
			return nil
		}
		file, err := chat.OpenPhotoFile(item.Path)
		if err != nil {
			m.browser.err = err
			return nil
		}
		if err := m.client.StartUpload(file); err != nil {
			m.browser.err = err
			return nil
		}
		return m.backToChat()
	}
	return nil
}

func (m *Model) handleLinkKey(key tea.KeyMsg) tea.Cmd {
	switch key.Type {
	case tea.KeyEsc:
		return m.backToChat()
	case tea.KeyEnter:
		if err := m.client.SendImageLink(m.link.Value()); err != nil {
			return nil
		}
		return m.backToChat()
	}
	var cmd tea.Cmd
	m.link, cmd = m.link.Update(key)
	return cmd
}

func (m *Model) resize() {
	width := m.width - rosterWidth - 4
	if width < 20 {
		width = 20
	}
	height := m.height - chromeHeight
	if height < 3 {
		height = 3
	}
	m.viewport.Width = width
	m.viewport.Height = height
	m.input.Width = m.width - 6
	m.link.Width = m.width - 6
	m.viewport.SetContent(m.renderTimeline())
	m.viewport.GotoBottom()
}
