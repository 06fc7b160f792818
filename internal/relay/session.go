package relay

import (
	"sync"

	"taxi/internal/domain/user"

	"github.com/google/uuid"
)

// Outbound is the transport handle a session pushes envelopes through. The
// WebSocket layer owns the real connection; tests plug in fakes.
type Outbound interface {
	Send(env Envelope) error
}

// State tracks the per-connection lifecycle:
// Connecting -> Authenticated -> Joined -> Closed,
// with Connecting -> Closed on auth failure.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the per-connection state: identity, role and the set of groups
// currently joined. The joined set is maintained by the Registry only.
type Session struct {
	ID     string // connection id, unique per socket
	UserID string
	Role   user.Role

	out Outbound

	mu     sync.Mutex
	state  State
	groups map[string]struct{}
}

func newSession(userID string, role user.Role, out Outbound) *Session {
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		out:    out,
		state:  StateConnecting,
		groups: make(map[string]struct{}),
	}
}

// Deliver pushes an outbound envelope to the client. Closed sessions swallow
// the send; at-most-once delivery is all the registry promises.
func (s *Session) Deliver(env Envelope) error {
	if s.State() == StateClosed {
		return nil
	}
	return s.out.Send(env)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

// Groups snapshots the names of all groups the session is a member of.
func (s *Session) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.groups))
	for g := range s.groups {
		names = append(names, g)
	}
	return names
}

// InGroup reports membership in a single group.
func (s *Session) InGroup(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.groups[name]
	return ok
}

// trackGroup / untrackGroup mirror registry membership onto the session so
// disconnect can clean up. Called by the Registry only.
func (s *Session) trackGroup(name string) {
	s.mu.Lock()
	s.groups[name] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) untrackGroup(name string) {
	s.mu.Lock()
	delete(s.groups, name)
	s.mu.Unlock()
}
