package chat

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chatnest/internal/protocol"
)

// syncLoop runs posted callbacks when drained; Go runs work inline.
type syncLoop struct {
	queue []func()
}

func (l *syncLoop) Post(f func()) {
	l.queue = append(l.queue, f)
}

func (l *syncLoop) Go(work func() func()) {
	l.Post(work())
}

func (l *syncLoop) drain() {
	for len(l.queue) > 0 {
		f := l.queue[0]
		l.queue = l.queue[1:]
		f()
	}
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	loop   *syncLoop
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(loop *syncLoop) *fakeClock {
	return &fakeClock{loop: loop, now: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward, firing due timers in order through the loop.
func (c *fakeClock) Advance(d time.Duration) {
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			break
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		c.loop.Post(next.f)
		c.loop.drain()
	}
	c.now = target
	c.loop.drain()
}

type emitted struct {
	event   string
	payload any
}

type fakeChannel struct {
	dials   int
	closes  int
	emitted []emitted
	emitErr error
}

func (f *fakeChannel) Dial() {
	f.dials++
}

func (f *fakeChannel) Close() {
	f.closes++
}

func (f *fakeChannel) Emit(event string, payload any) error {
	if f.emitErr != nil {
		return f.emitErr
	}
	f.emitted = append(f.emitted, emitted{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) events(name string) []any {
	var out []any
	for _, e := range f.emitted {
		if e.event == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func (f *fakeChannel) typing() []bool {
	var out []bool
	for _, p := range f.events(protocol.EventTyping) {
		out = append(out, p.(protocol.TypingRequest).IsTyping)
	}
	return out
}

type fakeUploader struct {
	url   string
	err   error
	calls int
	got   string
}

func (u *fakeUploader) Upload(_ context.Context, photo string) (string, error) {
	u.calls++
	u.got = photo
	return u.url, u.err
}

type memPhoto struct {
	name        string
	contentType string
	data        []byte
	size        int64
	opened      int
}

func (p *memPhoto) Name() string        { return p.name }
func (p *memPhoto) ContentType() string { return p.contentType }

func (p *memPhoto) Size() int64 {
	if p.size > 0 {
		return p.size
	}
	return int64(len(p.data))
}

func (p *memPhoto) Open() (io.ReadCloser, error) {
	p.opened++
	return io.NopCloser(bytes.NewReader(p.data)), nil
}

type harness struct {
	client  *Client
	loop    *syncLoop
	clock   *fakeClock
	channel *fakeChannel
	upload  *fakeUploader
	changes []Change
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	loop := &syncLoop{}
	h := &harness{
		loop:    loop,
		clock:   newFakeClock(loop),
		channel: &fakeChannel{},
		upload:  &fakeUploader{url: "/photos/abc.png"},
	}
	h.client = NewClient(Options{
		Channel:  h.channel,
		Uploader: h.upload,
		Loop:     loop,
		Clock:    h.clock,
		Log:      zerolog.Nop(),
		OnChange: func(c Change) { h.changes = append(h.changes, c) },
	})
	return h
}

func (h *harness) join(t *testing.T, name string) {
	t.Helper()
	h.client.Connect()
	h.client.Dispatch(protocol.ChannelUp{})
	if err := h.client.Join(name); err != nil {
		t.Fatalf("join %q: %v", name, err)
	}
	h.client.Dispatch(protocol.JoinSucceeded{})
	if !h.client.Joined() {
		t.Fatalf("expected joined, state=%s", h.client.State())
	}
}

func (h *harness) sawChange(flag Change) bool {
	for _, c := range h.changes {
		if c.Has(flag) {
			return true
		}
	}
	return false
}
