package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chatnest/internal/chat"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle       = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	noticeBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("95")).Padding(0, 1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1)
	rosterBoxStyle     = messageBoxStyle.Copy().Width(rosterWidth)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	imageStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Underline(true)
	typingStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	selectedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	itemStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (m *Model) View() string {
	switch {
	case m.client.LeavePending():
		return m.renderConfirmLeave()
	case m.mode == modeNamePrompt:
		return m.renderNamePrompt()
	case m.mode == modeBrowse:
		return m.renderBrowser()
	}
	return m.renderChatView()
}

func (m *Model) renderNamePrompt() string {
	sections := []string{
		lipgloss.JoinVertical(lipgloss.Left,
			appTitleStyle.Render("ChatNest"),
			subtitleStyle.Render("Pick a display name to join the chat"),
		),
		m.renderStatus(),
	}
	if notices := m.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	sections = append(sections,
		inputBoxStyle.Render(m.input.View()),
		menuHintStyle.Render("Enter join • ctrl+r reconnect • Esc quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderConfirmLeave() string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		appTitleStyle.Render("Leave the chat?"),
		menuHintStyle.Render("Your messages stay, but you will stop receiving new ones."),
		menuHintStyle.Render("y / Enter leave • n / Esc stay"),
	)
	return menuBoxStyle.Render(body)
}

func (m *Model) renderBrowser() string {
	sections := []string{
		appTitleStyle.Render("Send a photo"),
		subtitleStyle.Render(m.browser.dir),
	}
	if m.browser.err != nil {
		sections = append(sections, errorStyle.Render(m.browser.err.Error()))
	}
	var lines []string
	if len(m.browser.items) == 0 {
		lines = append(lines, menuHintStyle.Render("No images here."))
	}
	start, end := visibleRange(m.browser.selected, len(m.browser.items), m.height-10)
	for idx := start; idx < end; idx++ {
		item := m.browser.items[idx]
		label := item.Name
		if item.IsDir {
			label += "/"
		} else {
			label = fmt.Sprintf("%s  %s", label, timestampStyle.Render(formatFileSize(item.Size)))
		}
		if idx == m.browser.selected {
			lines = append(lines, selectedStyle.Render("➤ "+label))
		} else {
			lines = append(lines, itemStyle.Render("  "+label))
		}
	}
	sections = append(sections,
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)),
		menuHintStyle.Render("↑/↓ select • Enter open/send • ← parent • Esc back"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// visibleRange keeps selected inside a window of at most rows items.
func visibleRange(selected, total, rows int) (int, int) {
	if rows < 5 {
		rows = 5
	}
	if total <= rows {
		return 0, total
	}
	start := selected - rows/2
	if start < 0 {
		start = 0
	}
	if start+rows > total {
		start = total - rows
	}
	return start, start + rows
}

func (m *Model) renderChatView() string {
	segments := []string{"ChatNest", "User " + m.name, "Server " + m.server, fmt.Sprintf("%d online", m.client.OnlineCount())}
	header := chatHeaderStyle.Render(strings.Join(segments, dividerStyle))

	sections := []string{header, m.renderStatus()}
	if welcome := m.client.Welcome(); welcome != "" {
		sections = append(sections, systemMessageStyle.Render(welcome))
	}
	if notices := m.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		messageBoxStyle.Render(m.viewport.View()),
		rosterBoxStyle.Render(m.renderRoster()),
	)
	sections = append(sections, body)

	if line := m.client.TypingLine(); line != "" {
		sections = append(sections, typingStyle.Render(line))
	} else {
		sections = append(sections, "")
	}
	if upload := m.renderUpload(); upload != "" {
		sections = append(sections, upload)
	}

	input := m.input.View()
	if m.mode == modeLink {
		input = m.link.View()
	}
	sections = append(sections,
		inputBoxStyle.Render(input),
		menuHintStyle.Render("ctrl+p photo • ctrl+g image link • ctrl+u clear • ctrl+l leave • Esc quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderStatus() string {
	switch m.client.State() {
	case chat.StateJoined:
		return connectedStyle.Render("Connected")
	case chat.StateConnected:
		return connectedStyle.Render("Connected, not joined")
	case chat.StateConnecting, chat.StateJoining:
		return connectingStyle.Render("Connecting…")
	case chat.StateFailed:
		return errorStyle.Render("Connection failed. Press ctrl+r to try again.")
	}
	return connectingStyle.Render("Disconnected")
}

func (m *Model) renderNotices() string {
	notices := m.client.Notices()
	if len(notices) == 0 {
		return ""
	}
	lines := make([]string, 0, len(notices))
	for _, n := range notices {
		lines = append(lines, errorStyle.Render(n.Text))
	}
	return noticeBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderRoster() string {
	entries := m.client.Roster()
	lines := []string{usernameStyle.Render(fmt.Sprintf("Online (%d)", len(entries)))}
	for _, e := range entries {
		style := usernameStyle.Copy().Foreground(colorForUser(e.Username))
		if e.Username == m.name {
			style = activeUserStyle
		}
		lines = append(lines, style.Render("● "+e.Username))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) renderUpload() string {
	job, ok := m.client.Upload()
	if !ok {
		return ""
	}
	switch job.Stage {
	case chat.StageFailed:
		if job.Err != nil {
			return errorStyle.Render("Upload failed: " + job.Err.Error())
		}
		return errorStyle.Render("Upload failed")
	case chat.StageDone:
		return connectedStyle.Render("Photo sent")
	}
	return connectingStyle.Render(fmt.Sprintf("%s %s %s", job.Stage, progressBar(job.Progress, 20), job.File.Name()))
}

func progressBar(percent, width int) string {
	filled := percent * width / 100
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("█", filled), strings.Repeat("░", width-filled), percent)
}

func (m *Model) renderTimeline() string {
	if m.client == nil {
		return ""
	}
	entries := m.client.Timeline()
	if len(entries) == 0 {
		return systemMessageStyle.Render("No messages yet. Say hi and start the conversation.")
	}
	lines := make([]string, 0, len(entries))
	for _, msg := range entries {
		lines = append(lines, m.renderMessage(msg))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderMessage stamps the time, colors the sender and marks undelivered sends.
func (m *Model) renderMessage(msg chat.Message) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", msg.Timestamp))
	if msg.Kind == chat.KindSystem {
		return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", systemMessageStyle.Render(msg.Body))
	}

	nameStyle := usernameStyle.Copy().Foreground(colorForUser(msg.Author))
	if msg.Author == m.name {
		nameStyle = activeUserStyle
	}
	var body string
	if msg.IsImage() {
		body = imageStyle.Render(fmt.Sprintf("[%s] %s", msg.Kind, msg.Body))
	} else {
		body = messageBodyStyle.Render(strings.ReplaceAll(msg.Body, "\n", "\n   "))
	}
	parts := []string{timestamp, " ", nameStyle.Render(msg.Author), ": ", body}
	switch msg.Origin {
	case chat.OriginPending:
		parts = append(parts, timestampStyle.Render(" (sending…)"))
	case chat.OriginFailed:
		parts = append(parts, errorStyle.Render(" (not delivered)"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
