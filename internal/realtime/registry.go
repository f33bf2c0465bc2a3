package realtime

import "sync"

// Pusher accepts an encoded event for delivery to one live session without
// blocking. Implementations return an error when the session cannot take the
// payload (full buffer, closed connection).
type Pusher interface {
	TrySend(payload []byte) error
}

// Registry maps a user identifier to the set of live sessions currently open
// for that user. A user may hold many sessions at once (several devices or
// tabs); all of them receive fan-out events.
//
// The registry only references sessions, it never owns them: each session
// registers itself after a successful handshake and deregisters as the first
// step of its teardown.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[Pusher]struct{}
}

// NewRegistry constructs an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[Pusher]struct{})}
}

// Register adds a session to the user's set.
func (r *Registry) Register(userID string, session Pusher) {
	if userID == "" || session == nil {
		return
	}

	r.mu.Lock()
	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[Pusher]struct{})
		r.sessions[userID] = set
	}
	set[session] = struct{}{}
	r.mu.Unlock()
}

// Deregister removes a session from the user's set. Removing a session that
// was never registered is a no-op.
func (r *Registry) Deregister(userID string, session Pusher) {
	if userID == "" || session == nil {
		return
	}

	r.mu.Lock()
	if set, ok := r.sessions[userID]; ok {
		delete(set, session)
		if len(set) == 0 {
			delete(r.sessions, userID)
		}
	}
	r.mu.Unlock()
}

// Lookup returns a snapshot of the user's live sessions. The returned slice
// is a copy; callers may iterate it without holding any lock.
func (r *Registry) Lookup(userID string) []Pusher {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sessions[userID]
	if !ok {
		return nil
	}

	out := make([]Pusher, 0, len(set))
	for session := range set {
		out = append(out, session)
	}
	return out
}

// SessionCount reports the number of live sessions for a user.
func (r *Registry) SessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[userID])
}
