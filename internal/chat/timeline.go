package chat

import (
	"time"

	"chatnest/internal/protocol"
)

// DefaultEchoWindow bounds how long a pending send waits for its echo.
const DefaultEchoWindow = 10 * time.Second

const (
	systemAuthor    = "system"
	timestampLayout = "03:04 PM"
)

type Kind string

const (
	KindText   Kind = protocol.TypeText
	KindPhoto  Kind = protocol.TypePhoto
	KindGIF    Kind = protocol.TypeGIF
	KindSystem Kind = protocol.TypeSystem
)

type Origin int

const (
	OriginConfirmed Origin = iota
	OriginPending
	OriginFailed
)

func (o Origin) String() string {
	switch o {
	case OriginPending:
		return "pending"
	case OriginFailed:
		return "failed"
	}
	return "confirmed"
}

type Message struct {
	ID        string
	Author    string
	Body      string
	Kind      Kind
	Timestamp string
	Origin    Origin
	// LocalID identifies an optimistic send until the server echo arrives.
	LocalID uint64
	SentAt  time.Time
}

func (m Message) IsImage() bool {
	return m.Kind == KindPhoto || m.Kind == KindGIF
}

func systemMessage(body, ts string) Message {
	return Message{Author: systemAuthor, Body: body, Kind: KindSystem, Timestamp: ts}
}

func messageFromWire(in protocol.ChatMessage) Message {
	kind := Kind(in.Type)
	switch kind {
	case KindText, KindPhoto, KindGIF, KindSystem:
	default:
		kind = KindText
	}
	return Message{
		ID:        string(in.ID),
		Author:    in.Username,
		Body:      in.Body(),
		Kind:      kind,
		Timestamp: in.Timestamp,
		Origin:    OriginConfirmed,
	}
}

// Timeline is the append-only, de-duplicated local message log.
type Timeline struct {
	entries   []Message
	seen      map[string]struct{}
	window    time.Duration
	nextLocal uint64
}

func NewTimeline(window time.Duration) *Timeline {
	if window <= 0 {
		window = DefaultEchoWindow
	}
	return &Timeline{seen: make(map[string]struct{}), window: window}
}

// Append adds msg to the log. A pending message gets a fresh LocalID; a
// confirmed message either promotes the matching pending entry in place, is
// dropped as a replay, or is appended. It returns the stored entry and whether
// the timeline changed.
func (t *Timeline) Append(msg Message, now time.Time) (Message, bool) {
	if msg.Origin == OriginPending {
		t.nextLocal++
		msg.LocalID = t.nextLocal
		msg.SentAt = now
		msg.ID = ""
		t.entries = append(t.entries, msg)
		return msg, true
	}
	if msg.ID != "" {
		if _, dup := t.seen[msg.ID]; dup {
			return msg, false
		}
	}
	if msg.Kind != KindSystem {
		if idx := t.matchPending(msg, now); idx >= 0 {
			entry := &t.entries[idx]
			entry.ID = msg.ID
			entry.Origin = OriginConfirmed
			if msg.Timestamp != "" {
				entry.Timestamp = msg.Timestamp
			}
			t.markSeen(msg.ID)
			return *entry, true
		}
	}
	msg.Origin = OriginConfirmed
	msg.LocalID = 0
	t.markSeen(msg.ID)
	t.entries = append(t.entries, msg)
	return msg, true
}

// matchPending finds the oldest pending entry for the same logical send that
// is still inside the echo window. Matching is by content, not by position, so
// echoes that come back out of order still pair with the right placeholder.
func (t *Timeline) matchPending(msg Message, now time.Time) int {
	for i := range t.entries {
		entry := t.entries[i]
		if entry.Origin != OriginPending {
			continue
		}
		if entry.Author != msg.Author || entry.Body != msg.Body || entry.Kind != msg.Kind {
			continue
		}
		if now.Sub(entry.SentAt) > t.window {
			continue
		}
		return i
	}
	return -1
}

func (t *Timeline) markSeen(id string) {
	if id != "" {
		t.seen[id] = struct{}{}
	}
}

// Fail marks a pending entry as failed. It returns false if the entry was
// already reconciled or does not exist.
func (t *Timeline) Fail(localID uint64) bool {
	for i := range t.entries {
		if t.entries[i].LocalID == localID && t.entries[i].Origin == OriginPending {
			t.entries[i].Origin = OriginFailed
			return true
		}
	}
	return false
}

// Expire fails every pending entry whose echo window has passed.
func (t *Timeline) Expire(now time.Time) int {
	expired := 0
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Origin == OriginPending && now.Sub(entry.SentAt) >= t.window {
			entry.Origin = OriginFailed
			expired++
		}
	}
	return expired
}

func (t *Timeline) Window() time.Duration {
	return t.window
}

func (t *Timeline) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the log in append order.
func (t *Timeline) Entries() []Message {
	out := make([]Message, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Timeline) Pending() int {
	n := 0
	for _, entry := range t.entries {
		if entry.Origin == OriginPending {
			n++
		}
	}
	return n
}

// Reset empties the log; only leaving the chat does this.
func (t *Timeline) Reset() {
	t.entries = nil
	t.seen = make(map[string]struct{})
}
