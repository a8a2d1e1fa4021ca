package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatnest/internal/protocol"
)

// DefaultNoticeTTL is how long an error stays on screen.
const DefaultNoticeTTL = 3 * time.Second

// Change is a bit set describing what a mutation touched.
type Change uint

const (
	ChangeConnection Change = 1 << iota
	ChangeTimeline
	ChangeRoster
	ChangeTyping
	ChangeUpload
	ChangeNotice
	ChangeLeave
	// ChangeBell asks the presentation layer for an audible cue.
	ChangeBell

	ChangeAll = ChangeConnection | ChangeTimeline | ChangeRoster | ChangeTyping | ChangeUpload | ChangeNotice | ChangeLeave
)

func (c Change) Has(flag Change) bool {
	return c&flag != 0
}

type Options struct {
	Channel  Channel
	Uploader Uploader
	Loop     Loop
	// Clock defaults to a wall clock posting to Loop.
	Clock Clock
	Log   zerolog.Logger

	Reconnect   ReconnectPolicy
	TypingQuiet time.Duration
	TypingTTL   time.Duration // zero means DefaultTypingTTL, negative disables expiry
	EchoWindow  time.Duration
	NoticeTTL   time.Duration
	Upload      UploadOptions

	// OnChange runs on the loop after every mutation.
	OnChange func(Change)
}

// Client is the single owner of chat state. Every method and Dispatch must be
// called from the loop.
type Client struct {
	log      zerolog.Logger
	clock    Clock
	onChange func(Change)

	conn     *Connection
	typing   *TypingSignal
	roster   *Roster
	timeline *Timeline
	board    *TypingBoard
	upload   *UploadPipeline

	noticeTTL    time.Duration
	notices      []Notice
	nextNotice   uint64
	leavePending bool
	uploadFor    *Session
}

func NewClient(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = NewClock(opts.Loop)
	}
	if opts.Reconnect == (ReconnectPolicy{}) {
		opts.Reconnect = DefaultReconnectPolicy
	}
	if opts.NoticeTTL <= 0 {
		opts.NoticeTTL = DefaultNoticeTTL
	}
	// a negative TTL keeps "typing" until an explicit false
	switch {
	case opts.TypingTTL == 0:
		opts.TypingTTL = DefaultTypingTTL
	case opts.TypingTTL < 0:
		opts.TypingTTL = 0
	}
	c := &Client{
		log:       opts.Log,
		clock:     opts.Clock,
		onChange:  opts.OnChange,
		roster:    NewRoster(),
		timeline:  NewTimeline(opts.EchoWindow),
		board:     NewTypingBoard(opts.TypingTTL),
		noticeTTL: opts.NoticeTTL,
	}
	c.conn = NewConnection(opts.Channel, opts.Clock, opts.Reconnect, opts.Log)
	c.typing = NewTypingSignal(opts.Clock, opts.TypingQuiet, c.emitTyping)
	c.upload = NewUploadPipeline(opts.Loop, opts.Clock, opts.Uploader, opts.Upload, UploadHooks{
		Progress: func(int) { c.notify(ChangeUpload) },
		Done:     c.photoUploaded,
		Failed:   c.photoFailed,
		Idle:     func() { c.notify(ChangeUpload) },
	})
	return c
}

func (c *Client) notify(change Change) {
	if c.onChange != nil && change != 0 {
		c.onChange(change)
	}
}

func (c *Client) now() time.Time {
	return c.clock.Now()
}

func (c *Client) stamp() string {
	return c.now().Format(timestampLayout)
}

// Connect opens the channel, or retries after the reconnect policy gave up.
func (c *Client) Connect() {
	c.conn.Connect()
	c.notify(ChangeConnection)
}

// Join asks the server for username. Local validation failures never reach the channel.
func (c *Client) Join(username string) error {
	if c.conn.Joined() {
		return c.fail(invalid("Already joined"))
	}
	err := c.conn.Join(username)
	c.notify(ChangeConnection)
	if err != nil {
		return c.fail(err)
	}
	return nil
}

// SendText sends a text message and shows it as pending until the echo arrives.
func (c *Client) SendText(body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return c.fail(invalid("Please enter a message"))
	}
	return c.send(body, KindText)
}

// SendImageLink shares an external image URL as a photo or gif message.
func (c *Client) SendImageLink(link string) error {
	link = strings.TrimSpace(link)
	if !IsImageURL(link) {
		return c.fail(invalid("Please enter a valid image URL"))
	}
	return c.send(link, kindForImageURL(link))
}

func (c *Client) send(body string, kind Kind) error {
	if !c.conn.Joined() {
		return c.fail(channelErr("Not connected to server", nil))
	}
	c.typing.Stop()
	entry := c.appendOwn(body, kind)
	c.scheduleExpiry()
	err := c.conn.Emit(protocol.EventSendMessage, protocol.SendMessage{Message: body, Type: string(kind)})
	if err != nil {
		c.timeline.Fail(entry.LocalID)
		c.notify(ChangeTimeline)
		return c.fail(err)
	}
	c.notify(ChangeTimeline)
	return nil
}

// appendOwn adds a pending entry authored by the session user.
func (c *Client) appendOwn(body string, kind Kind) Message {
	entry, _ := c.timeline.Append(Message{
		Author:    c.conn.Session().Username,
		Body:      body,
		Kind:      kind,
		Timestamp: c.stamp(),
		Origin:    OriginPending,
	}, c.now())
	return entry
}

func (c *Client) scheduleExpiry() {
	c.clock.AfterFunc(c.timeline.Window(), func() {
		if n := c.timeline.Expire(c.now()); n > 0 {
			c.log.Debug().Int("count", n).Msg("pending messages expired without echo")
			c.notify(ChangeTimeline)
		}
	})
}

// StartUpload validates file and starts the photo pipeline.
func (c *Client) StartUpload(file PhotoFile) error {
	if !c.conn.Joined() {
		return c.fail(channelErr("Not connected to server", nil))
	}
	if err := c.upload.Start(file); err != nil {
		return c.fail(err)
	}
	c.uploadFor = c.conn.Session()
	c.log.Info().Str("file", file.Name()).Int64("size", file.Size()).Msg("photo upload started")
	c.notify(ChangeUpload)
	return nil
}

func (c *Client) photoUploaded(photoURL string) {
	defer c.notify(ChangeUpload)
	session := c.conn.Session()
	if session == nil || session != c.uploadFor {
		c.fail(uploadErr("Photo was not sent: you are no longer in the chat", nil))
		return
	}
	if !c.conn.Joined() {
		// the channel dropped mid-upload: keep the photo visible as undelivered
		entry := c.appendOwn(photoURL, KindPhoto)
		c.timeline.Fail(entry.LocalID)
		c.notify(ChangeTimeline)
		c.fail(channelErr("Photo uploaded but not sent: connection lost", nil))
		return
	}
	if err := c.send(photoURL, KindPhoto); err != nil {
		c.log.Warn().Err(err).Msg("photo uploaded but not announced")
	}
}

func (c *Client) photoFailed(err error) {
	c.log.Warn().Err(err).Msg("photo upload failed")
	c.fail(err)
	c.notify(ChangeUpload)
}

// OnInput feeds the typing signal for every edit of the composer.
func (c *Client) OnInput() {
	if !c.conn.Joined() {
		return
	}
	c.typing.OnInput()
}

// ClearInput is called when the composer is emptied without sending.
func (c *Client) ClearInput() {
	c.typing.Stop()
}

func (c *Client) emitTyping(isTyping bool) {
	if err := c.conn.Emit(protocol.EventTyping, protocol.TypingRequest{IsTyping: isTyping}); err != nil {
		c.log.Debug().Err(err).Bool("typing", isTyping).Msg("typing signal dropped")
	}
}

// RequestLeave opens the confirmation step; nothing is torn down yet.
func (c *Client) RequestLeave() {
	if c.conn.Session() == nil || c.leavePending {
		return
	}
	c.leavePending = true
	c.notify(ChangeLeave)
}

func (c *Client) CancelLeave() {
	if !c.leavePending {
		return
	}
	c.leavePending = false
	c.notify(ChangeLeave)
}

// ConfirmLeave closes the channel and drops every piece of session state.
func (c *Client) ConfirmLeave() {
	if !c.leavePending {
		return
	}
	c.leavePending = false
	name := ""
	if s := c.conn.Session(); s != nil {
		name = s.Username
	}
	c.typing.Reset()
	c.conn.Leave()
	c.timeline.Reset()
	c.roster.Reset()
	c.board.Reset()
	c.uploadFor = nil
	c.log.Info().Str("user", name).Msg("left chat")
	c.notify(ChangeAll)
}

func (c *Client) LeavePending() bool {
	return c.leavePending
}

// Dispatch applies one inbound event. It is the only way the channel changes state.
func (c *Client) Dispatch(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.ChannelUp:
		if !c.conn.handleUp() {
			return
		}
		c.log.Info().Str("state", c.conn.State().String()).Msg("channel up")
		c.notify(ChangeConnection)
		return

	case protocol.ChannelDown:
		prev := c.conn.State()
		c.typing.Reset()
		if !c.conn.handleDown(ev.Err) {
			return
		}
		c.log.Warn().Err(ev.Err).Str("was", prev.String()).Msg("channel down")
		switch {
		case c.conn.State() == StateFailed:
			c.fail(channelErr("Connection failed. Please try again.", ev.Err))
		case prev != StateConnecting:
			c.fail(channelErr("Disconnected from server. Reconnecting...", ev.Err))
		}
		c.notify(ChangeConnection)
		return
	}

	// frames that straggle in after the channel was torn down are not ours anymore
	switch c.conn.State() {
	case StateDisconnected, StateFailed:
		c.log.Debug().Str("type", fmt.Sprintf("%T", ev)).Msg("dropping event without a channel")
		return
	}

	switch ev := ev.(type) {
	case protocol.JoinSucceeded:
		if c.conn.handleJoinSuccess() {
			session := c.conn.Session()
			c.board.SetSelf(session.Username)
			c.log.Info().Str("user", session.Username).Msg("joined chat")
			c.notify(ChangeConnection | ChangeTimeline)
			return
		}
		c.notify(ChangeConnection)

	case protocol.JoinFailed:
		if err := c.conn.handleJoinError(ev.Reason); err != nil {
			c.fail(err)
		}
		c.notify(ChangeConnection)

	case protocol.MessageReceived:
		c.receive(ev.Message)

	case protocol.HistoryReceived:
		changed := false
		for _, m := range ev.Messages {
			if _, ok := c.timeline.Append(messageFromWire(m), c.now()); ok {
				changed = true
			}
		}
		if changed {
			c.notify(ChangeTimeline)
		}

	case protocol.TypingChanged:
		if ev.Username == "" || c.isSelf(ev.Username) {
			return
		}
		c.board.Update(ev.Username, ev.IsTyping, c.now())
		if ev.IsTyping && c.board.TTL() > 0 {
			c.clock.AfterFunc(c.board.TTL(), func() { c.notify(ChangeTyping) })
		}
		c.notify(ChangeTyping)

	case protocol.RosterReceived:
		entries := make([]RosterEntry, 0, len(ev.Users))
		for _, u := range ev.Users {
			entries = append(entries, RosterEntry{Username: u.Username, JoinedAt: u.JoinedAt})
		}
		c.roster.Replace(entries)
		if dups := c.roster.Duplicates(); len(dups) > 0 {
			c.log.Warn().Strs("users", dups).Msg("roster snapshot has duplicate names")
		}
		c.notify(ChangeRoster)

	case protocol.UserJoined:
		c.timeline.Append(c.roster.NoteJoined(ev.Username, c.presenceStamp(ev.Presence)), c.now())
		change := ChangeTimeline
		if !c.isSelf(ev.Username) {
			change |= ChangeBell
		}
		c.notify(change)

	case protocol.UserLeft:
		c.timeline.Append(c.roster.NoteLeft(ev.Username, c.presenceStamp(ev.Presence)), c.now())
		c.board.Update(ev.Username, false, c.now())
		c.notify(ChangeTimeline | ChangeTyping)

	case protocol.ServerFailed:
		reason := ev.Reason
		if reason == "" {
			reason = "Server error"
		}
		c.fail(channelErr(reason, nil))

	default:
		c.log.Debug().Str("type", fmt.Sprintf("%T", ev)).Msg("ignoring event")
	}
}

func (c *Client) receive(wire protocol.ChatMessage) {
	msg, ok := c.timeline.Append(messageFromWire(wire), c.now())
	if !ok {
		return
	}
	change := ChangeTimeline
	if msg.LocalID == 0 && msg.Kind != KindSystem && !c.isSelf(msg.Author) {
		change |= ChangeBell
	}
	c.notify(change)
}

func (c *Client) presenceStamp(p protocol.Presence) string {
	if p.Timestamp != "" {
		return p.Timestamp
	}
	return c.stamp()
}

func (c *Client) isSelf(username string) bool {
	s := c.conn.Session()
	return s != nil && s.Username == username
}

// fail records err as a notice that dismisses itself, and returns it.
func (c *Client) fail(err error) error {
	c.nextNotice++
	id := c.nextNotice
	c.notices = append(c.notices, Notice{ID: id, Err: err, Text: err.Error(), At: c.now()})
	c.clock.AfterFunc(c.noticeTTL, func() { c.dismiss(id) })
	c.notify(ChangeNotice)
	return err
}

func (c *Client) dismiss(id uint64) {
	for i, n := range c.notices {
		if n.ID == id {
			c.notices = append(c.notices[:i], c.notices[i+1:]...)
			c.notify(ChangeNotice)
			return
		}
	}
}

func (c *Client) State() ConnState {
	return c.conn.State()
}

// Session returns a copy of the joined session, or false.
func (c *Client) Session() (Session, bool) {
	s := c.conn.Session()
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

// Welcome is the greeting shown above the timeline once joined.
func (c *Client) Welcome() string {
	s := c.conn.Session()
	if s == nil {
		return ""
	}
	return fmt.Sprintf("Welcome %s! Start chatting with everyone.", s.Username)
}

func (c *Client) Joined() bool {
	return c.conn.Joined()
}

func (c *Client) Timeline() []Message {
	return c.timeline.Entries()
}

func (c *Client) Roster() []RosterEntry {
	return c.roster.Entries()
}

func (c *Client) OnlineCount() int {
	return c.roster.Count()
}

func (c *Client) TypingLine() string {
	return c.board.Line(c.now())
}

func (c *Client) Upload() (UploadJob, bool) {
	return c.upload.Job()
}

func (c *Client) Notices() []Notice {
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	return out
}
