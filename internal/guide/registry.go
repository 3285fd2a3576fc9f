package guide

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
)

// Registry keeps one flow per user tab.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*Flow
	deps   Deps
}

// NewRegistry creates an empty registry. Every flow it starts shares deps.
func NewRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		active: make(map[string]map[string]*Flow),
		deps:   deps,
	}
}

// Start begins a new flow for the session, discarding any previous one.
func (r *Registry) Start(sess domain.Session, method domain.SelectionMethod) (*Flow, error) {
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	flow, err := NewFlow(sess, method, r.deps)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.active[sess.UserID]; !exists {
		r.active[sess.UserID] = make(map[string]*Flow)
	}
	_, replaced := r.active[sess.UserID][sess.SessionID]
	r.active[sess.UserID][sess.SessionID] = flow
	count := r.countLocked()
	r.mu.Unlock()

	r.deps.Metrics.SetActiveFlows(count)
	slog.Info("Flow started", "user_id", sess.UserID, "session_id", sess.SessionID, "method", method, "replaced", replaced)
	return flow, nil
}

// Get returns the session's flow or ErrNotFound.
func (r *Registry) Get(sess domain.Session) (*Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sessions, ok := r.active[sess.UserID]; ok {
		if flow, ok := sessions[sess.SessionID]; ok {
			flow.Touch()
			return flow, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Remove drops the session's flow if it is still the given one. A nil flow
// removes whatever is registered.
func (r *Registry) Remove(sess domain.Session, flow *Flow) {
	r.mu.Lock()
	removed := false
	if sessions, ok := r.active[sess.UserID]; ok {
		if current, exists := sessions[sess.SessionID]; exists && (flow == nil || current == flow) {
			delete(sessions, sess.SessionID)
			if len(sessions) == 0 {
				delete(r.active, sess.UserID)
			}
			removed = true
		}
	}
	count := r.countLocked()
	r.mu.Unlock()

	if removed {
		r.deps.Metrics.SetActiveFlows(count)
		slog.Info("Flow removed", "user_id", sess.UserID, "session_id", sess.SessionID)
	}
}

// CloseUser drops every flow belonging to a user, e.g. on sign-out.
func (r *Registry) CloseUser(userID string) {
	r.mu.Lock()
	sessions, ok := r.active[userID]
	delete(r.active, userID)
	count := r.countLocked()
	r.mu.Unlock()

	if !ok {
		return
	}
	r.deps.Metrics.SetActiveFlows(count)
	for sid := range sessions {
		slog.Info("Flow closed", "user_id", userID, "session_id", sid)
	}
}

// Len returns the number of live flows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked()
}

func (r *Registry) countLocked() int {
	n := 0
	for _, sessions := range r.active {
		n += len(sessions)
	}
	return n
}

// evictIdle removes flows idle since before cutoff and returns their sessions.
func (r *Registry) evictIdle(cutoff time.Time) []domain.Session {
	r.mu.Lock()
	var evicted []domain.Session
	for userID, sessions := range r.active {
		for sid, flow := range sessions {
			if flow.IdleSince().Before(cutoff) {
				delete(sessions, sid)
				evicted = append(evicted, flow.Session())
			}
		}
		if len(sessions) == 0 {
			delete(r.active, userID)
		}
	}
	count := r.countLocked()
	r.mu.Unlock()

	if len(evicted) > 0 {
		r.deps.Metrics.SetActiveFlows(count)
	}
	return evicted
}
