package chat

import (
	"fmt"
	"time"
)

// DefaultTypingTTL is how long a peer's "typing" flag is trusted without a refresh.
const DefaultTypingTTL = 10 * time.Second

type TypingState struct {
	IsTyping   bool
	LastUpdate time.Time
	seq        uint64
}

// TypingBoard keeps the last known typing state of every peer and picks the
// single line to show. Entries are overwritten, never deleted, so a stale
// "stopped" from one user cannot hide a newer typer.
type TypingBoard struct {
	self   string
	ttl    time.Duration
	states map[string]TypingState
	seq    uint64
}

// NewTypingBoard builds an aggregator; ttl <= 0 keeps "typing" until an explicit false.
func NewTypingBoard(ttl time.Duration) *TypingBoard {
	return &TypingBoard{ttl: ttl, states: make(map[string]TypingState)}
}

// SetSelf names the local user so their own echoes are never displayed.
func (b *TypingBoard) SetSelf(username string) {
	b.self = username
}

func (b *TypingBoard) Update(username string, isTyping bool, now time.Time) {
	b.seq++
	b.states[username] = TypingState{IsTyping: isTyping, LastUpdate: now, seq: b.seq}
}

func (b *TypingBoard) State(username string) (TypingState, bool) {
	state, ok := b.states[username]
	return state, ok
}

// Current returns the most recently updated other user who is still typing.
func (b *TypingBoard) Current(now time.Time) (string, bool) {
	var (
		best  string
		found bool
		top   TypingState
	)
	for name, state := range b.states {
		if name == b.self || !state.IsTyping {
			continue
		}
		if b.ttl > 0 && now.Sub(state.LastUpdate) >= b.ttl {
			continue
		}
		if !found || state.LastUpdate.After(top.LastUpdate) ||
			(state.LastUpdate.Equal(top.LastUpdate) && state.seq > top.seq) {
			best, top, found = name, state, true
		}
	}
	return best, found
}

// Line renders the indicator text, or "" when nobody else is typing.
func (b *TypingBoard) Line(now time.Time) string {
	name, ok := b.Current(now)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s is typing...", name)
}

func (b *TypingBoard) TTL() time.Duration {
	return b.ttl
}

func (b *TypingBoard) Reset() {
	b.states = make(map[string]TypingState)
	b.self = ""
}
