// Package scheduler coalesces a PTY's output pokes into at most one
// redraw render per frame budget, so a PTY spewing bytes at full speed
// doesn't cost a redraw diff per byte chunk.
package scheduler

import (
	"sync"
	"time"

	"github.com/chriswa/ptymuxd/internal/loop"
)

// RenderFunc computes and sends a redraw for one PTY.
type RenderFunc func(ptyID int64)

// Scheduler owns one coalescing state machine per PTY, all driven from
// the owning Loop's dispatcher goroutine.
type Scheduler struct {
	loop   *loop.Loop
	budget time.Duration
	render RenderFunc

	mu    sync.Mutex
	state map[int64]*ptyState
}

type ptyState struct {
	lastRender   time.Time
	timerPending bool
	timerID      loop.TimerID
}

// New returns a Scheduler that renders through render, never more often
// than once per budget per PTY, using l to run timers and renders on the
// single dispatcher goroutine.
func New(l *loop.Loop, budget time.Duration, render RenderFunc) *Scheduler {
	return &Scheduler{
		loop:   l,
		budget: budget,
		render: render,
		state:  make(map[int64]*ptyState),
	}
}

// Notify records that ptyID produced output. It must be called from the
// dispatcher goroutine (typically from the Post callback a PTY worker's
// notify-pipe reader registers). If the PTY's last render was long enough
// ago, it renders immediately; otherwise it arms a timer for the
// remainder of the budget, coalescing any further notifies that arrive
// before the timer fires.
func (s *Scheduler) Notify(ptyID int64) {
	s.mu.Lock()
	st, ok := s.state[ptyID]
	if !ok {
		st = &ptyState{}
		s.state[ptyID] = st
	}
	if st.timerPending {
		s.mu.Unlock()
		return
	}

	since := time.Since(st.lastRender)
	if since >= s.budget {
		st.lastRender = time.Now()
		s.mu.Unlock()
		s.render(ptyID)
		return
	}

	wait := s.budget - since
	st.timerPending = true
	s.mu.Unlock()

	st.timerID = s.loop.AfterFunc(wait, func() {
		s.mu.Lock()
		st.timerPending = false
		st.lastRender = time.Now()
		s.mu.Unlock()
		s.render(ptyID)
	})
}

// Forget drops scheduling state for a PTY that has closed, canceling any
// pending render timer.
func (s *Scheduler) Forget(ptyID int64) {
	s.mu.Lock()
	st, ok := s.state[ptyID]
	delete(s.state, ptyID)
	s.mu.Unlock()
	if ok && st.timerPending {
		s.loop.CancelTimer(st.timerID)
	}
}
