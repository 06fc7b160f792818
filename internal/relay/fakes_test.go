package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"taxi/internal/domain/trip"
	"taxi/internal/domain/user"
	"taxi/internal/general/contracts"
	"taxi/internal/general/logger"
)

// fakeOutbound records delivered envelopes in order.
type fakeOutbound struct {
	mu    sync.Mutex
	sent  []Envelope
	fail  bool
	count int
}

func (f *fakeOutbound) Send(env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	if f.fail {
		return errors.New("socket gone")
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeOutbound) envelopes() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeVerifier resolves fixed tokens to identities.
type fakeVerifier struct {
	identities map[string]Identity
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (Identity, error) {
	ident, ok := f.identities[token]
	if !ok {
		return Identity{}, errors.New("unknown token")
	}
	return ident, nil
}

// fakeTripRepo is an in-memory ports.TripRepository. afterGet, when set,
// runs after each GetByID outside the lock so tests can interleave readers.
type fakeTripRepo struct {
	mu       sync.Mutex
	seq      int
	trips    map[string]*trip.Trip
	failAll  bool
	afterGet func()
}

func newFakeTripRepo() *fakeTripRepo {
	return &fakeTripRepo{trips: make(map[string]*trip.Trip)}
}

func (f *fakeTripRepo) CreateTrip(_ context.Context, t *trip.Trip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("database unavailable")
	}
	f.seq++
	t.ID = fmt.Sprintf("trip-%d", f.seq)
	cp := *t
	f.trips[t.ID] = &cp
	return nil
}

func (f *fakeTripRepo) GetByID(_ context.Context, id string) (*trip.Trip, error) {
	f.mu.Lock()
	if f.failAll {
		f.mu.Unlock()
		return nil, errors.New("database unavailable")
	}
	t, ok := f.trips[id]
	if !ok {
		f.mu.Unlock()
		return nil, trip.ErrNotFound
	}
	cp := *t
	f.mu.Unlock()
	if f.afterGet != nil {
		f.afterGet()
	}
	return &cp, nil
}

func (f *fakeTripRepo) UpdateTrip(_ context.Context, t *trip.Trip, from trip.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.trips[t.ID]
	if !ok {
		return trip.ErrNotFound
	}
	if stored.Status != from {
		return trip.ErrInvalidStatusTransition
	}
	cp := *t
	f.trips[t.ID] = &cp
	return nil
}

func (f *fakeTripRepo) ListActiveFor(_ context.Context, userID string) ([]*trip.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("database unavailable")
	}
	var out []*trip.Trip
	for _, t := range f.trips {
		if !t.Active() {
			continue
		}
		if t.RiderID == userID || (t.DriverID != nil && *t.DriverID == userID) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTripRepo) ListForRider(_ context.Context, riderID string) ([]*trip.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*trip.Trip
	for _, t := range f.trips {
		if t.RiderID == riderID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeTripRepo) ListForDriver(_ context.Context, driverID string) ([]*trip.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*trip.Trip
	for _, t := range f.trips {
		if t.Status == trip.StatusRequested || (t.DriverID != nil && *t.DriverID == driverID) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeUserRepo resolves user ids to minimal user rows.
type fakeUserRepo struct{}

func (fakeUserRepo) CreateUser(context.Context, *user.User) error { return errors.New("not implemented") }

func (fakeUserRepo) GetByEmail(context.Context, string) (*user.User, error) {
	return nil, errors.New("not implemented")
}

func (fakeUserRepo) GetByID(_ context.Context, id string) (*user.User, error) {
	role := user.RoleRider
	if id == "driver-1" || id == "driver-2" {
		role = user.RoleDriver
	}
	return &user.User{ID: id, Email: id + "@example.com", Role: role}, nil
}

// fakeEvents records published broker messages.
type fakeEvents struct {
	mu   sync.Mutex
	msgs []contracts.TripStatusMessage
}

func (f *fakeEvents) PublishTripStatus(msg contracts.TripStatusMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

// ----- construction helpers -----

func testLogger() *logger.Logger { return logger.New("relay-test") }

func testRouter(t *testing.T, registry *Registry, trips *fakeTripRepo, opts RouterOptions) (*Router, *fakeEvents) {
	t.Helper()
	events := &fakeEvents{}
	return NewRouter(registry, trips, fakeUserRepo{}, events, testLogger(), opts), events
}

func joinedSession(t *testing.T, m *Manager, token string) (*Session, *fakeOutbound) {
	t.Helper()
	out := &fakeOutbound{}
	s, err := m.Connect(context.Background(), token, out)
	if err != nil {
		t.Fatalf("Connect(%s) failed: %v", token, err)
	}
	return s, out
}

func decodeTrip(t *testing.T, env Envelope) contracts.TripData {
	t.Helper()
	if env.Type != contracts.TypeEcho {
		t.Fatalf("envelope type = %q, want %q", env.Type, contracts.TypeEcho)
	}
	var data contracts.TripData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode trip payload: %v", err)
	}
	return data
}

func decodeError(t *testing.T, env Envelope) ErrorData {
	t.Helper()
	if env.Type != contracts.TypeError {
		t.Fatalf("envelope type = %q, want %q", env.Type, contracts.TypeError)
	}
	var data ErrorData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return data
}
