package relay

import (
	"context"
	"sync"

	"taxi/internal/general/logger"
)

// Registry is the in-memory pub/sub directory of named groups. Join, Leave
// and Send on one group are linearized by that group's mutex; operations on
// different groups proceed fully in parallel. Groups are created lazily on
// first join and an empty group is valid.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*group
	logger *logger.Logger
}

type group struct {
	mu      sync.Mutex
	members map[*Session]struct{}
}

// NewRegistry constructs an empty group registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		groups: make(map[string]*group),
		logger: log,
	}
}

// group returns the named group, creating it when create is set.
func (r *Registry) group(name string, create bool) *group {
	r.mu.RLock()
	g := r.groups[name]
	r.mu.RUnlock()
	if g != nil || !create {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g = r.groups[name]; g == nil {
		g = &group{members: make(map[*Session]struct{})}
		r.groups[name] = g
	}
	return g
}

// Join adds the session to the group's member set. Idempotent.
func (r *Registry) Join(name string, s *Session) {
	g := r.group(name, true)

	g.mu.Lock()
	g.members[s] = struct{}{}
	g.mu.Unlock()

	s.trackGroup(name)
}

// Leave removes the session from the group if present. Idempotent; empty
// groups stay in place.
func (r *Registry) Leave(name string, s *Session) {
	s.untrackGroup(name)

	g := r.group(name, false)
	if g == nil {
		return
	}

	g.mu.Lock()
	delete(g.members, s)
	g.mu.Unlock()
}

// Send delivers the envelope to every session in the group's member set as of
// call time. Sessions joining after the snapshot do not receive it; delivery
// is at-most-once per member with no durability. Returns the number of
// sessions the envelope was handed to.
func (r *Registry) Send(ctx context.Context, name string, env Envelope) int {
	g := r.group(name, false)
	if g == nil {
		return 0
	}

	// snapshot the membership under the group lock, deliver outside of it so
	// a slow socket cannot block joins and leaves
	g.mu.Lock()
	members := make([]*Session, 0, len(g.members))
	for s := range g.members {
		members = append(members, s)
	}
	g.mu.Unlock()

	delivered := 0
	for _, s := range members {
		if err := s.Deliver(env); err != nil {
			r.logger.Error(ctx, "group_send_failed", "Failed to deliver envelope to session", err, map[string]any{
				"group":      name,
				"session_id": s.ID,
				"user_id":    s.UserID,
				"msg_type":   env.Type,
			})
			continue
		}
		delivered++
	}
	return delivered
}

// Members reports the current size of a group.
func (r *Registry) Members(name string) int {
	g := r.group(name, false)
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}
