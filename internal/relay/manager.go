package relay

import (
	"context"
	"fmt"
	"strings"

	"taxi/internal/domain/user"
	"taxi/internal/general/contracts"
	"taxi/internal/general/logger"
	"taxi/internal/ports"
)

// Identity is the authenticated principal behind a connection.
type Identity struct {
	UserID string
	Role   string
}

// AuthVerifier is the external credential verifier consumed by the relay.
// Implementations return an error wrapping ErrUnauthenticated for absent or
// invalid tokens.
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Manager owns the connection lifecycle: it authenticates sessions, computes
// initial group memberships and tears memberships down on disconnect.
type Manager struct {
	registry *Registry
	verifier AuthVerifier
	trips    ports.TripRepository
	logger   *logger.Logger
}

// NewManager constructs a connection manager.
func NewManager(registry *Registry, verifier AuthVerifier, trips ports.TripRepository, log *logger.Logger) *Manager {
	return &Manager{
		registry: registry,
		verifier: verifier,
		trips:    trips,
		logger:   log,
	}
}

// Connect verifies the token and, on success, joins the session to its
// initial groups: "drivers" for drivers, plus one group per non-terminal trip
// where the identity is rider or driver. A failed verification rejects the
// connection with ErrUnauthenticated; no group is ever joined in that case.
func (m *Manager) Connect(ctx context.Context, token string, out Outbound) (*Session, error) {
	ident, err := m.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if strings.TrimSpace(ident.UserID) == "" {
		// anonymous identities are rejected the same as bad tokens
		return nil, fmt.Errorf("%w: anonymous identity", ErrUnauthenticated)
	}
	role, err := user.ParseRole(ident.Role)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, ident.Role)
	}

	s := newSession(ident.UserID, role, out)
	s.setState(StateAuthenticated)

	if s.Role.IsDriver() {
		m.registry.Join(contracts.GroupDrivers, s)
	}

	// rejoin the groups of every active trip this user participates in
	active, err := m.trips.ListActiveFor(ctx, s.UserID)
	if err != nil {
		// undo whatever was joined before the failure point
		m.Disconnect(ctx, s)
		return nil, fmt.Errorf("list active trips for %s: %w", s.UserID, err)
	}
	for _, t := range active {
		m.registry.Join(t.ID, s)
	}

	s.setState(StateJoined)
	m.logger.Info(ctx, "session_joined", "Session connected and joined its groups", map[string]any{
		"session_id": s.ID,
		"user_id":    s.UserID,
		"role":       s.Role.String(),
		"groups":     s.Groups(),
	})
	return s, nil
}

// Disconnect leaves every group the session is a member of and closes it.
// Idempotent, and safe to call after a partial connect.
func (m *Manager) Disconnect(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	for _, name := range s.Groups() {
		m.registry.Leave(name, s)
	}
	if s.State() != StateClosed {
		s.setState(StateClosed)
		m.logger.Info(ctx, "session_closed", "Session disconnected", map[string]any{
			"session_id": s.ID,
			"user_id":    s.UserID,
		})
	}
}
