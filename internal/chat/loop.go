package chat

import "time"

// Loop serializes every mutation of chat state onto one goroutine. Background
// work never touches state directly; it posts a callback instead.
type Loop interface {
	// Post queues f to run on the loop. It must not be called from the loop itself.
	Post(f func())
	// Go runs work off the loop and posts the callback it returns.
	Go(work func() func())
}

// Timer is a cancelable scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock supplies the current time and timers whose callbacks land on the loop.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type loopClock struct {
	loop Loop
}

// NewClock returns a wall clock that delivers timer callbacks through loop.
func NewClock(loop Loop) Clock {
	return loopClock{loop: loop}
}

func (c loopClock) Now() time.Time {
	return time.Now()
}

func (c loopClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() {
		c.loop.Post(f)
	})
}
