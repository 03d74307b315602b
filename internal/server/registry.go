package server

import (
	"sync"
	"time"

	"github.com/chriswa/ptymuxd/internal/ptyworker"
)

// ptyRegistry owns all live (and recently-dead) PTY workers, keyed by a
// monotonically increasing numeric id.
type ptyRegistry struct {
	mu      sync.RWMutex
	workers map[int64]*ptyworker.Worker
	nextID  int64
}

func newPtyRegistry() *ptyRegistry {
	return &ptyRegistry{workers: make(map[int64]*ptyworker.Worker)}
}

// Reserve allocates the next PTY id without publishing a worker for it
// yet, so the id can be handed to Spawn before the worker exists.
func (r *ptyRegistry) Reserve() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

// Put publishes a spawned worker under its id.
func (r *ptyRegistry) Put(w *ptyworker.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[w.ID] = w
}

// Get returns the worker for id, if any.
func (r *ptyRegistry) Get(id int64) (*ptyworker.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}

// Remove deletes id from the registry.
func (r *ptyRegistry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

// Alive reports whether id names a worker whose child is still running —
// the predicate internal/session.Tab.DeadPanes expects.
func (r *ptyRegistry) Alive(id int64) bool {
	w, ok := r.Get(id)
	return ok && w.IsAlive()
}

// List returns every registered worker.
func (r *ptyRegistry) List() []*ptyworker.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ptyworker.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	return out
}

// SweepDead removes workers whose child exited more than maxAge ago,
// closing their file descriptors. Returns how many were swept.
func (r *ptyRegistry) SweepDead(maxAge time.Duration) int {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	swept := 0
	for id, w := range r.workers {
		if w.IsAlive() {
			continue
		}
		_, exitedAt := w.ExitInfo()
		if exitedAt.IsZero() || now.Sub(exitedAt) <= maxAge {
			continue
		}
		_ = w.Close()
		delete(r.workers, id)
		swept++
	}
	return swept
}
