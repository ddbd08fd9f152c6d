package session

import (
	"errors"
	"sync"
)

// Registry is an explicit lifecycle owner for sessions. The host application
// creates one, registers the sessions it owns, and sweeps them on shutdown;
// there is no ambient global set of live captures.
type Registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[*Session]struct{})}
}

// Add registers a session. Adding to a closed registry disposes the session
// immediately so nothing can leak past shutdown.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = s.Dispose()
		return
	}
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
}

// Remove unregisters a session without disposing it.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
}

// Len returns the number of owned sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown disposes every owned session and closes the registry. It is
// idempotent; errors from individual sessions are joined.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	owned := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		owned = append(owned, s)
	}
	r.sessions = make(map[*Session]struct{})
	r.mu.Unlock()

	var errs []error
	for _, s := range owned {
		if err := s.Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
