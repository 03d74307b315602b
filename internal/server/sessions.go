package server

import (
	"sync"

	"github.com/chriswa/ptymuxd/internal/session"
)

// liveSessionRegistry holds the working sessions split_pane and
// attach(session_name) act on. These are distinct from the persisted
// session store: session_save/session_load round-trip layout data as
// inert bytes for a client to replay, while a live session here always
// points at PTYs actually running in this daemon instance.
type liveSessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newLiveSessionRegistry() *liveSessionRegistry {
	return &liveSessionRegistry{sessions: make(map[string]*session.Session)}
}

func (r *liveSessionRegistry) Get(name string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[name]
	return s, ok
}

// With runs fn with the registry lock held, so tree mutations (split_pane,
// future remove_pane) against the named session are serialized against
// concurrent requests from other clients. fn receives ok=false if name
// isn't a live session. fn must not call back into the registry: the
// lock it holds is not reentrant.
func (r *liveSessionRegistry) With(name string, fn func(s *session.Session, ok bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[name]
	fn(s, ok)
}

// PutIfAbsent stores s under s.Name only if no session is already
// registered under that name, atomically with the check. It returns the
// session now registered (either s, or the one that won the race).
func (r *liveSessionRegistry) PutIfAbsent(s *session.Session) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[s.Name]; ok {
		return existing
	}
	r.sessions[s.Name] = s
	return s
}

func (r *liveSessionRegistry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, name)
}
