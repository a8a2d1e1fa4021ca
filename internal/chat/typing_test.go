package chat

import (
	"slices"
	"testing"
	"time"
)

func TestTypingSignalDebounce(t *testing.T) {
	loop := &syncLoop{}
	clock := newFakeClock(loop)
	var sent []bool
	s := NewTypingSignal(clock, time.Second, func(v bool) { sent = append(sent, v) })

	s.OnInput()
	clock.Advance(200 * time.Millisecond)
	s.OnInput()
	clock.Advance(200 * time.Millisecond)
	s.OnInput()

	if !slices.Equal(sent, []bool{true}) {
		t.Fatalf("after burst: got %v, want [true]", sent)
	}

	clock.Advance(999 * time.Millisecond)
	if !slices.Equal(sent, []bool{true}) {
		t.Fatalf("before quiet period: got %v", sent)
	}
	clock.Advance(time.Millisecond)
	if !slices.Equal(sent, []bool{true, false}) {
		t.Fatalf("after quiet period: got %v, want [true false]", sent)
	}
	if s.Typing() {
		t.Fatalf("expected typing to be off")
	}

	clock.Advance(5 * time.Second)
	if len(sent) != 2 {
		t.Fatalf("unexpected extra emits: %v", sent)
	}
}

func TestTypingSignalStopCancelsTimer(t *testing.T) {
	loop := &syncLoop{}
	clock := newFakeClock(loop)
	var sent []bool
	s := NewTypingSignal(clock, time.Second, func(v bool) { sent = append(sent, v) })

	s.OnInput()
	s.Stop()
	s.Stop()
	clock.Advance(2 * time.Second)

	if !slices.Equal(sent, []bool{true, false}) {
		t.Fatalf("got %v, want [true false]", sent)
	}
}

func TestTypingSignalResetIsSilent(t *testing.T) {
	loop := &syncLoop{}
	clock := newFakeClock(loop)
	var sent []bool
	s := NewTypingSignal(clock, time.Second, func(v bool) { sent = append(sent, v) })

	s.OnInput()
	s.Reset()
	clock.Advance(2 * time.Second)
	if !slices.Equal(sent, []bool{true}) {
		t.Fatalf("got %v, want [true]", sent)
	}

	s.OnInput()
	if !slices.Equal(sent, []bool{true, true}) {
		t.Fatalf("new burst after reset should emit true again, got %v", sent)
	}
}
