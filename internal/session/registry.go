package session

import (
	"strings"
	"sync"
)

// Registry is the process-wide index of live sessions. It is one of the two
// shared mutable structures in the core (the other is the pairing table);
// the mutex is held only for map access, never across I/O.
type Registry struct {
	mu     sync.Mutex
	byID   map[uint64]*Session
	byName map[string]*Session // authenticated principals, lower-cased name
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uint64]*Session),
		byName: make(map[string]*Session),
	}
}

// Put adds a freshly connected session.
func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ID] = s
}

// Bind indexes an authenticated session by its principal name. A previous
// binding for the same name (a lingering earlier connection) is returned so
// the caller can disconnect it.
func (r *Registry) Bind(s *Session) (evicted *Session) {
	name := strings.ToLower(s.Username())
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byName[name]; ok && prev != s {
		evicted = prev
	}
	r.byName[name] = s
	return evicted
}

// Remove drops a session from both indexes.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, s.ID)
	name := strings.ToLower(s.Username())
	if name != "" && r.byName[name] == s {
		delete(r.byName, name)
	}
}

// Get returns the session with the given id.
func (r *Registry) Get(id uint64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// FindByPrincipal returns the authenticated session for a principal name.
func (r *Registry) FindByPrincipal(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byName[strings.ToLower(name)]
	return s, ok
}

// Find returns all sessions matching the predicate.
func (r *Registry) Find(pred func(*Session) bool) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Session
	for _, s := range r.byID {
		if pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
