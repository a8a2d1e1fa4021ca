package chat

import "time"

// DefaultTypingQuiet is how long input must stay idle before typing(false) goes out.
const DefaultTypingQuiet = time.Second

// TypingSignal collapses keystrokes into a minimal on/off typing signal with a
// trailing debounce. It emits exactly once per transition.
type TypingSignal struct {
	emit  func(isTyping bool)
	clock Clock
	quiet time.Duration

	typing bool
	timer  Timer
	gen    uint64
}

func NewTypingSignal(clock Clock, quiet time.Duration, emit func(isTyping bool)) *TypingSignal {
	if quiet <= 0 {
		quiet = DefaultTypingQuiet
	}
	return &TypingSignal{emit: emit, clock: clock, quiet: quiet}
}

// Typing reports the last state sent to the channel.
func (s *TypingSignal) Typing() bool {
	return s.typing
}

// OnInput is called for every keystroke-equivalent.
func (s *TypingSignal) OnInput() {
	if !s.typing {
		s.typing = true
		s.emit(true)
	}
	s.cancel()
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.quiet, func() {
		if gen != s.gen {
			return
		}
		s.timer = nil
		if s.typing {
			s.typing = false
			s.emit(false)
		}
	})
}

// Stop forces typing(false) right away, overriding the pending timer.
func (s *TypingSignal) Stop() {
	s.cancel()
	if s.typing {
		s.typing = false
		s.emit(false)
	}
}

// Reset forgets the typing state without emitting; used when the channel is gone.
func (s *TypingSignal) Reset() {
	s.cancel()
	s.typing = false
}

func (s *TypingSignal) cancel() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
