package services

import "sync"

// Session is the per-client-session state the materializer guard lives on.
// The guard is owned by the caller and is deliberately not durable: a new
// session (page reload, new device) gets a fresh Session and re-evaluates,
// which is safe because firing is idempotent per (rule, month) as long as
// LastFulfilled was stamped. Two live sessions for the same user can still
// both fire; see the materializer docs.
type Session struct {
	mu        sync.Mutex
	attempted bool
}

func NewSession() *Session {
	return &Session{}
}

// TryBegin marks the materialization attempt and reports whether this call
// won it. At most one call per Session returns true.
func (s *Session) TryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempted {
		return false
	}
	s.attempted = true
	return true
}

// Attempted reports whether materialization has already been attempted.
func (s *Session) Attempted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempted
}
