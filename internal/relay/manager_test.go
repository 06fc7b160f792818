package relay

import (
	"context"
	"errors"
	"testing"

	"taxi/internal/domain/trip"
	"taxi/internal/domain/user"
	"taxi/internal/general/contracts"
)

func testManager(trips *fakeTripRepo) (*Manager, *Registry) {
	registry := NewRegistry(testLogger())
	verifier := &fakeVerifier{identities: map[string]Identity{
		"driver-token":  {UserID: "driver-1", Role: "DRIVER"},
		"driver2-token": {UserID: "driver-2", Role: "DRIVER"},
		"rider-token":   {UserID: "rider-1", Role: "RIDER"},
		"ghost-token":   {UserID: "", Role: "RIDER"},
		"alien-token":   {UserID: "user-9", Role: "MARTIAN"},
	}}
	return NewManager(registry, verifier, trips, testLogger()), registry
}

func TestConnectDriverJoinsPool(t *testing.T) {
	m, registry := testManager(newFakeTripRepo())

	s, _ := joinedSession(t, m, "driver-token")

	if s.State() != StateJoined {
		t.Errorf("state = %s, want joined", s.State())
	}
	if !s.InGroup(contracts.GroupDrivers) {
		t.Error("driver session must be in the drivers pool")
	}
	if n := registry.Members(contracts.GroupDrivers); n != 1 {
		t.Errorf("drivers pool size = %d, want 1", n)
	}
}

func TestConnectRiderStaysOutOfPool(t *testing.T) {
	m, registry := testManager(newFakeTripRepo())

	s, _ := joinedSession(t, m, "rider-token")

	if s.InGroup(contracts.GroupDrivers) {
		t.Error("rider must not join the drivers pool")
	}
	if n := registry.Members(contracts.GroupDrivers); n != 0 {
		t.Errorf("drivers pool size = %d, want 0", n)
	}
}

func TestConnectJoinsActiveTripGroups(t *testing.T) {
	trips := newFakeTripRepo()

	active, _ := trip.NewTrip("rider-1", "A", "B")
	_ = trips.CreateTrip(context.Background(), active)

	done, _ := trip.NewTrip("rider-1", "C", "D")
	_ = trips.CreateTrip(context.Background(), done)
	done.ID = "trip-2"
	_ = done.Accept("driver-1")
	_ = done.Complete()
	_ = trips.UpdateTrip(context.Background(), done, trip.StatusRequested)

	m, registry := testManager(trips)
	s, out := joinedSession(t, m, "rider-token")

	if !s.InGroup("trip-1") {
		t.Error("rider should auto-join the group of its active trip")
	}
	if s.InGroup("trip-2") {
		t.Error("terminal trips must not be rejoined")
	}

	// a broadcast to the trip group reaches the rider with no explicit join
	env, _ := NewEnvelope(contracts.TypeEcho, "update")
	if n := registry.Send(context.Background(), "trip-1", env); n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	if len(out.envelopes()) != 1 {
		t.Errorf("rider received %d envelopes, want 1", len(out.envelopes()))
	}
}

func TestConnectRejectsBadToken(t *testing.T) {
	m, _ := testManager(newFakeTripRepo())

	if _, err := m.Connect(context.Background(), "nope", &fakeOutbound{}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("got %v, want ErrUnauthenticated", err)
	}
}

func TestConnectRejectsAnonymousIdentity(t *testing.T) {
	m, _ := testManager(newFakeTripRepo())

	if _, err := m.Connect(context.Background(), "ghost-token", &fakeOutbound{}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("got %v, want ErrUnauthenticated", err)
	}
}

func TestConnectRejectsUnknownRole(t *testing.T) {
	m, _ := testManager(newFakeTripRepo())

	if _, err := m.Connect(context.Background(), "alien-token", &fakeOutbound{}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("got %v, want ErrUnauthenticated", err)
	}
}

func TestConnectCleansUpOnRepoFailure(t *testing.T) {
	trips := newFakeTripRepo()
	trips.failAll = true
	m, registry := testManager(trips)

	if _, err := m.Connect(context.Background(), "driver-token", &fakeOutbound{}); err == nil {
		t.Fatal("expected connect failure when trip lookup fails")
	}
	if n := registry.Members(contracts.GroupDrivers); n != 0 {
		t.Errorf("drivers pool size after failed connect = %d, want 0", n)
	}
}

func TestDisconnectLeavesEverything(t *testing.T) {
	trips := newFakeTripRepo()
	active, _ := trip.NewTrip("rider-1", "A", "B")
	_ = trips.CreateTrip(context.Background(), active)
	_ = active.Accept("driver-1")
	_ = trips.UpdateTrip(context.Background(), active, trip.StatusRequested)

	m, registry := testManager(trips)
	s, _ := joinedSession(t, m, "driver-token")

	if !s.InGroup(contracts.GroupDrivers) || !s.InGroup("trip-1") {
		t.Fatalf("driver groups = %v, want drivers and trip-1", s.Groups())
	}

	m.Disconnect(context.Background(), s)

	if len(s.Groups()) != 0 {
		t.Errorf("groups after disconnect = %v, want none", s.Groups())
	}
	if registry.Members(contracts.GroupDrivers) != 0 || registry.Members("trip-1") != 0 {
		t.Error("registry still holds the disconnected session")
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}

	// second disconnect is a no-op
	m.Disconnect(context.Background(), s)
	m.Disconnect(context.Background(), nil)
}

func TestDisconnectedSessionMissesBroadcasts(t *testing.T) {
	m, registry := testManager(newFakeTripRepo())

	s, out := joinedSession(t, m, "driver-token")
	m.Disconnect(context.Background(), s)

	env, _ := NewEnvelope(contracts.TypeEcho, "offer")
	registry.Send(context.Background(), contracts.GroupDrivers, env)

	if len(out.envelopes()) != 0 {
		t.Errorf("closed session received %d envelopes, want 0", len(out.envelopes()))
	}
}

func TestRoleParsing(t *testing.T) {
	if _, err := user.ParseRole("driver"); err != nil {
		t.Errorf("lowercase role should parse: %v", err)
	}
}
