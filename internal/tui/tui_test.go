package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"chatnest/internal/chat"
	"chatnest/internal/protocol"
)

type recordingChannel struct {
	dials   int
	closes  int
	emitted []string
	sent    []protocol.SendMessage
}

func (c *recordingChannel) Dial()  { c.dials++ }
func (c *recordingChannel) Close() { c.closes++ }

func (c *recordingChannel) Emit(event string, payload any) error {
	c.emitted = append(c.emitted, event)
	if msg, ok := payload.(protocol.SendMessage); ok {
		c.sent = append(c.sent, msg)
	}
	return nil
}

// queueLoop collects posted callbacks until the test feeds them to Update.
type queueLoop struct {
	queue []func()
}

func (l *queueLoop) Post(f func()) { l.queue = append(l.queue, f) }

func (l *queueLoop) Go(work func() func()) {
	if done := work(); done != nil {
		l.Post(done)
	}
}

type stillClock struct{}

func (stillClock) Now() time.Time { return time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC) }

func (stillClock) AfterFunc(time.Duration, func()) chat.Timer { return stoppedTimer{} }

type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return false }

func newTestModel(t *testing.T, cfg Config) (*Model, *recordingChannel) {
	t.Helper()
	ch := &recordingChannel{}
	cfg.ServerURL = "ws://localhost:8080/ws"
	m := newModel(cfg)
	m.bell = nil
	m.client = chat.NewClient(chat.Options{
		Channel:  ch,
		Loop:     &queueLoop{},
		Clock:    stillClock{},
		Log:      zerolog.Nop(),
		OnChange: m.onChange,
	})
	return m, ch
}

func dispatch(m *Model, ev protocol.Event) {
	m.Update(postedMsg(func() { m.client.Dispatch(ev) }))
}

func typeText(m *Model, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func press(m *Model, k tea.KeyType) {
	m.Update(tea.KeyMsg{Type: k})
}

func TestJoinChatAndLeave(t *testing.T) {
	var remembered string
	m, ch := newTestModel(t, Config{Remember: func(name string) { remembered = name }})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(connectMsg{})
	if ch.dials != 1 {
		t.Fatalf("dials %d", ch.dials)
	}
	dispatch(m, protocol.ChannelUp{})

	typeText(m, "Ann")
	press(m, tea.KeyEnter)
	if len(ch.emitted) != 1 || ch.emitted[0] != protocol.EventJoin {
		t.Fatalf("emitted %v", ch.emitted)
	}
	dispatch(m, protocol.JoinSucceeded{})
	if m.mode != modeChat || remembered != "Ann" {
		t.Fatalf("mode %d remembered %q", m.mode, remembered)
	}
	if view := m.View(); !strings.Contains(view, "Welcome Ann!") {
		t.Fatalf("missing welcome in view:\n%s", view)
	}

	typeText(m, "hello")
	press(m, tea.KeyEnter)
	if len(ch.sent) != 1 || ch.sent[0].Message != "hello" {
		t.Fatalf("sent %+v", ch.sent)
	}
	if m.input.Value() != "" {
		t.Fatalf("input not cleared: %q", m.input.Value())
	}
	if !strings.Contains(m.viewport.View(), "sending") {
		t.Fatalf("pending marker missing:\n%s", m.viewport.View())
	}

	press(m, tea.KeyCtrlL)
	if view := m.View(); !strings.Contains(view, "Leave the chat?") {
		t.Fatalf("no confirmation:\n%s", view)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")})
	if m.client.LeavePending() || m.mode != modeChat {
		t.Fatalf("cancel did not keep the chat")
	}

	press(m, tea.KeyCtrlL)
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	if m.mode != modeNamePrompt || ch.closes == 0 {
		t.Fatalf("mode %d closes %d", m.mode, ch.closes)
	}
	if m.input.Value() != "Ann" {
		t.Fatalf("name prompt not prefilled: %q", m.input.Value())
	}
}

func TestAutoJoinWaitsForChannel(t *testing.T) {
	m, ch := newTestModel(t, Config{Username: "Bob", AutoJoin: true})
	m.Update(connectMsg{})
	m.Update(joinMsg{})
	if len(ch.emitted) != 0 {
		t.Fatalf("joined before the channel was up: %v", ch.emitted)
	}
	dispatch(m, protocol.ChannelUp{})
	if len(ch.emitted) != 1 || ch.emitted[0] != protocol.EventJoin {
		t.Fatalf("emitted %v", ch.emitted)
	}
}

func TestNoticeShownOnBadName(t *testing.T) {
	m, _ := newTestModel(t, Config{})
	m.Update(connectMsg{})
	dispatch(m, protocol.ChannelUp{})
	typeText(m, "x")
	press(m, tea.KeyEnter)
	if view := m.View(); !strings.Contains(view, "Username must be 2-20 characters") {
		t.Fatalf("notice missing:\n%s", view)
	}
}

func TestBrowseDirectoryListsImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt", ".hidden.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "album"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	items, err := browseDirectory(dir)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	var names []string
	for _, item := range items {
		names = append(names, item.Name)
	}
	want := []string{"..", "album", "a.JPG", "b.png"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", names, want)
	}
}

func TestProgressBar(t *testing.T) {
	if got := progressBar(50, 10); got != "[█████░░░░░]  50%" {
		t.Fatalf("got %q", got)
	}
	if got := progressBar(100, 4); got != "[████] 100%" {
		t.Fatalf("got %q", got)
	}
}
