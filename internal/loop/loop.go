// Package loop implements a single-threaded readiness/timer dispatcher.
// Go's runtime already multiplexes blocking I/O onto OS threads (the
// netpoller), so rather than wrapping epoll/kqueue directly, this loop
// gets its "single thread owns all callbacks" guarantee from one
// dispatcher goroutine that serializes posted callbacks and timer fires —
// background readers post work in rather than mutating shared state
// themselves.
package loop

import (
	"container/heap"
	"sync"
	"time"
)

// Callback runs on the loop's single dispatcher goroutine.
type Callback func()

// Loop is a single-threaded event loop: fd readiness is reported by the
// owner calling Post (normally from a PTY worker's notify-pipe reader
// goroutine), and timers fire in deadline order with ties broken by
// registration order.
type Loop struct {
	events chan Callback
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	timers  timerHeap
	timerID uint64
	wake    chan struct{} // nudges Run's timer wait when timers change
}

// New creates a Loop with the given pending-event queue depth.
func New(queueDepth int) *Loop {
	return &Loop{
		events: make(chan Callback, queueDepth),
		closed: make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
}

// Post enqueues cb to run on the dispatcher goroutine. This is how fd
// readiness and external requests (RPC handlers) hand work to the loop.
// Safe to call from any goroutine, including the dispatcher itself.
func (l *Loop) Post(cb Callback) {
	select {
	case l.events <- cb:
	case <-l.closed:
	}
}

type timerEntry struct {
	deadline time.Time
	seq      uint64
	id       uint64
	cb       Callback
	canceled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TimerID identifies a pending one-shot timer for cancellation.
type TimerID uint64

// AfterFunc schedules cb to run on the dispatcher goroutine after d
// elapses. Safe to call from any goroutine.
func (l *Loop) AfterFunc(d time.Duration, cb Callback) TimerID {
	l.mu.Lock()
	l.timerID++
	id := l.timerID
	heap.Push(&l.timers, &timerEntry{deadline: time.Now().Add(d), seq: id, id: id, cb: cb})
	l.mu.Unlock()
	l.nudge()
	return TimerID(id)
}

// CancelTimer cancels a pending timer. Canceling an already-fired or
// already-canceled timer is a no-op.
func (l *Loop) CancelTimer(id TimerID) {
	l.mu.Lock()
	for _, e := range l.timers {
		if e.id == uint64(id) {
			e.canceled = true
		}
	}
	l.mu.Unlock()
	l.nudge()
}

func (l *Loop) nudge() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// popDue pops and returns the earliest non-canceled timer that is due
// now, or reports the wait duration until the next one if none is due.
func (l *Loop) popDue() (Callback, time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.timers.Len() > 0 {
		top := l.timers[0]
		if top.canceled {
			heap.Pop(&l.timers)
			continue
		}
		wait := time.Until(top.deadline)
		if wait <= 0 {
			heap.Pop(&l.timers)
			return top.cb, 0, true
		}
		return nil, wait, false
	}
	return nil, 0, false
}

// Run processes events and timers until Close is called. Every callback —
// readiness pokes and timer fires alike — executes here, on one goroutine.
func (l *Loop) Run() {
	for {
		cb, wait, due := l.popDue()
		if due {
			cb()
			continue
		}

		var timerC <-chan time.Time
		var t *time.Timer
		if wait > 0 {
			t = time.NewTimer(wait)
			timerC = t.C
		}

		select {
		case cb := <-l.events:
			cb()
		case <-timerC:
			// Loop back around; popDue will find it (or a tighter one
			// that raced in ahead of it).
		case <-l.wake:
		case <-l.closed:
			if t != nil {
				t.Stop()
			}
			return
		}
		if t != nil {
			t.Stop()
		}
	}
}

// RunOneTick processes at most one pending event or due timer without
// blocking. It reports whether anything ran.
func (l *Loop) RunOneTick() bool {
	if cb, _, due := l.popDue(); due {
		cb()
		return true
	}
	select {
	case cb := <-l.events:
		cb()
		return true
	default:
		return false
	}
}

// Close stops Run and wakes any goroutine blocked in Post.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.closed) })
}
