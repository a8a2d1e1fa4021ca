package tui

import tea "github.com/charmbracelet/bubbletea"

// postedMsg carries a callback onto the Bubble Tea update loop.
type postedMsg func()

// programLoop makes Update the single goroutine that touches chat state.
type programLoop struct {
	send func(tea.Msg)
}

func (l programLoop) Post(f func()) {
	l.send(postedMsg(f))
}

func (l programLoop) Go(work func() func()) {
	go func() {
		if done := work(); done != nil {
			l.send(postedMsg(done))
		}
	}()
}
