package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"taxi/internal/domain/trip"
	"taxi/internal/general/contracts"
)

func routerFixture(t *testing.T, opts RouterOptions) (*Manager, *Registry, *Router, *fakeTripRepo, *fakeEvents) {
	t.Helper()
	trips := newFakeTripRepo()
	m, registry := testManager(trips)
	router, events := testRouter(t, registry, trips, opts)
	return m, registry, router, trips, events
}

func TestEchoRepliesToSenderOnly(t *testing.T) {
	m, _, router, _, _ := routerFixture(t, RouterOptions{})
	rider, riderOut := joinedSession(t, m, "rider-token")
	_, driverOut := joinedSession(t, m, "driver-token")

	env, _ := NewEnvelope(contracts.TypeEcho, "This is a test message")
	router.Dispatch(context.Background(), rider, env)

	got := riderOut.envelopes()
	if len(got) != 1 {
		t.Fatalf("rider received %d envelopes, want 1", len(got))
	}
	if got[0].Type != contracts.TypeEcho || string(got[0].Data) != string(env.Data) {
		t.Errorf("echo was not verbatim: %+v", got[0])
	}
	if len(driverOut.envelopes()) != 0 {
		t.Error("echo must not reach other sessions")
	}
}

func TestUnknownTypeIgnored(t *testing.T) {
	m, _, router, _, _ := routerFixture(t, RouterOptions{})
	rider, out := joinedSession(t, m, "rider-token")

	env, _ := NewEnvelope("gps.ping", map[string]any{"lat": 1})
	router.Dispatch(context.Background(), rider, env)

	if len(out.envelopes()) != 0 {
		t.Errorf("unknown type produced %d envelopes, want 0", len(out.envelopes()))
	}
}

func TestCreateTripBroadcastsAndReplies(t *testing.T) {
	m, _, router, trips, events := routerFixture(t, RouterOptions{})
	rider, riderOut := joinedSession(t, m, "rider-token")
	_, driverOut := joinedSession(t, m, "driver-token")

	env, _ := NewEnvelope(contracts.TypeCreateTrip, createTripPayload{
		PickUpAddress:  "A Street 1",
		DropOffAddress: "B Street 2",
	})
	router.Dispatch(context.Background(), rider, env)

	driverGot := driverOut.envelopes()
	riderGot := riderOut.envelopes()
	if len(driverGot) != 1 {
		t.Fatalf("driver pool received %d envelopes, want 1", len(driverGot))
	}
	if len(riderGot) != 1 {
		t.Fatalf("creator received %d envelopes, want 1", len(riderGot))
	}

	broadcast := decodeTrip(t, driverGot[0])
	reply := decodeTrip(t, riderGot[0])
	if broadcast.ID != reply.ID {
		t.Errorf("broadcast trip %q != reply trip %q", broadcast.ID, reply.ID)
	}
	if broadcast.Status != trip.StatusRequested.String() {
		t.Errorf("status = %q, want REQUESTED", broadcast.Status)
	}
	if broadcast.Rider == nil || broadcast.Rider.ID != "rider-1" {
		t.Errorf("broadcast rider = %+v, want rider-1", broadcast.Rider)
	}

	if _, err := trips.GetByID(context.Background(), broadcast.ID); err != nil {
		t.Errorf("trip was not persisted: %v", err)
	}

	// creator is NOT auto-joined to the trip's own group by default
	if rider.InGroup(broadcast.ID) {
		t.Error("creator must not join the trip group unless configured")
	}

	if len(events.msgs) != 1 || events.msgs[0].Status != "REQUESTED" {
		t.Errorf("published events = %+v, want one REQUESTED", events.msgs)
	}
}

func TestCreateTripJoinOnCreateFlag(t *testing.T) {
	m, _, router, _, _ := routerFixture(t, RouterOptions{JoinTripOnCreate: true})
	rider, riderOut := joinedSession(t, m, "rider-token")

	env, _ := NewEnvelope(contracts.TypeCreateTrip, createTripPayload{
		PickUpAddress:  "A",
		DropOffAddress: "B",
	})
	router.Dispatch(context.Background(), rider, env)

	created := decodeTrip(t, riderOut.envelopes()[0])
	if !rider.InGroup(created.ID) {
		t.Error("join_trip_on_create should add the creator to the trip group")
	}
}

func TestCreateTripValidationError(t *testing.T) {
	m, _, router, _, _ := routerFixture(t, RouterOptions{})
	rider, out := joinedSession(t, m, "rider-token")

	env, _ := NewEnvelope(contracts.TypeCreateTrip, createTripPayload{PickUpAddress: "A"})
	router.Dispatch(context.Background(), rider, env)

	got := out.envelopes()
	if len(got) != 1 {
		t.Fatalf("sender received %d envelopes, want 1 error", len(got))
	}
	if code := decodeError(t, got[0]).Code; code != "validation_error" {
		t.Errorf("error code = %q, want validation_error", code)
	}
}

func TestCreateTripRepoFailureIsGenericError(t *testing.T) {
	m, _, router, trips, _ := routerFixture(t, RouterOptions{})
	rider, out := joinedSession(t, m, "rider-token")
	trips.failAll = true

	env, _ := NewEnvelope(contracts.TypeCreateTrip, createTripPayload{
		PickUpAddress:  "A",
		DropOffAddress: "B",
	})
	router.Dispatch(context.Background(), rider, env)

	got := out.envelopes()
	if len(got) != 1 {
		t.Fatalf("sender received %d envelopes, want 1 error", len(got))
	}
	errData := decodeError(t, got[0])
	if errData.Code != "internal_error" {
		t.Errorf("error code = %q, want internal_error", errData.Code)
	}
	if errData.Message != "internal relay error" {
		t.Errorf("internal details leaked to client: %q", errData.Message)
	}
}

func TestUpdateTripAcceptBroadcastsToTripGroup(t *testing.T) {
	m, _, router, _, events := routerFixture(t, RouterOptions{JoinTripOnCreate: true})
	rider, riderOut := joinedSession(t, m, "rider-token")
	driver, driverOut := joinedSession(t, m, "driver-token")

	createEnv, _ := NewEnvelope(contracts.TypeCreateTrip, createTripPayload{
		PickUpAddress:  "A",
		DropOffAddress: "B",
	})
	router.Dispatch(context.Background(), rider, createEnv)
	tripID := decodeTrip(t, riderOut.envelopes()[0]).ID

	updateEnv, _ := NewEnvelope(contracts.TypeUpdateTrip, updateTripPayload{
		ID:     tripID,
		Status: "IN_PROGRESS",
	})
	router.Dispatch(context.Background(), driver, updateEnv)

	if !driver.InGroup(tripID) {
		t.Error("accepting driver should be a member of the trip group")
	}

	// rider (joined via flag) and driver both receive exactly one update
	riderGot := riderOut.envelopes()
	if len(riderGot) != 2 {
		t.Fatalf("rider received %d envelopes, want reply + update", len(riderGot))
	}
	update := decodeTrip(t, riderGot[1])
	if update.Status != trip.StatusInProgress.String() {
		t.Errorf("status = %q, want IN_PROGRESS", update.Status)
	}
	if update.Driver == nil || update.Driver.ID != "driver-1" {
		t.Errorf("driver in payload = %+v, want driver-1", update.Driver)
	}

	driverGot := driverOut.envelopes()
	if len(driverGot) != 2 {
		t.Fatalf("driver received %d envelopes, want pool broadcast + update", len(driverGot))
	}

	last := events.msgs[len(events.msgs)-1]
	if last.Status != "IN_PROGRESS" || last.DriverID != "driver-1" {
		t.Errorf("published event = %+v", last)
	}
}

func TestUpdateTripSecondAcceptRejected(t *testing.T) {
	m, _, router, _, _ := routerFixture(t, RouterOptions{})
	rider, riderOut := joinedSession(t, m, "rider-token")
	driver, driverOut := joinedSession(t, m, "driver-token")

	createEnv, _ := NewEnvelope(contracts.TypeCreateTrip, createTripPayload{
		PickUpAddress:  "A",
		DropOffAddress: "B",
	})
	router.Dispatch(context.Background(), rider, createEnv)
	tripID := decodeTrip(t, riderOut.envelopes()[0]).ID

	accept, _ := NewEnvelope(contracts.TypeUpdateTrip, updateTripPayload{ID: tripID, Status: "IN_PROGRESS"})
	router.Dispatch(context.Background(), driver, accept)
	router.Dispatch(context.Background(), driver, accept)

	got := driverOut.envelopes()
	lastEnv := got[len(got)-1]
	if code := decodeError(t, lastEnv).Code; code != "invalid_transition" {
		t.Errorf("second accept error code = %q, want invalid_transition", code)
	}
}

func TestUpdateTripConcurrentAcceptsOnlyOneWins(t *testing.T) {
	m, _, router, trips, _ := routerFixture(t, RouterOptions{})
	rider, riderOut := joinedSession(t, m, "rider-token")
	first, firstOut := joinedSession(t, m, "driver-token")
	second, secondOut := joinedSession(t, m, "driver2-token")

	createEnv, _ := NewEnvelope(contracts.TypeCreateTrip, createTripPayload{
		PickUpAddress:  "A",
		DropOffAddress: "B",
	})
	router.Dispatch(context.Background(), rider, createEnv)
	tripID := decodeTrip(t, riderOut.envelopes()[0]).ID

	// hold both accepts at the read so each of them sees the trip as
	// still REQUESTED before either write lands
	var gate sync.WaitGroup
	gate.Add(2)
	trips.afterGet = func() {
		gate.Done()
		gate.Wait()
	}

	accept, _ := NewEnvelope(contracts.TypeUpdateTrip, updateTripPayload{ID: tripID, Status: "IN_PROGRESS"})
	var wg sync.WaitGroup
	for _, s := range []*Session{first, second} {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			router.Dispatch(context.Background(), s, accept)
		}(s)
	}
	wg.Wait()
	trips.afterGet = nil

	rejections := 0
	loserIsFirst := false
	for i, out := range []*fakeOutbound{firstOut, secondOut} {
		for _, env := range out.envelopes() {
			if env.Type != contracts.TypeError {
				continue
			}
			rejections++
			loserIsFirst = i == 0
			if code := decodeError(t, env).Code; code != "invalid_transition" {
				t.Errorf("losing accept error code = %q, want invalid_transition", code)
			}
		}
	}
	if rejections != 1 {
		t.Fatalf("racing accepts produced %d rejections, want exactly 1", rejections)
	}

	winnerID := "driver-1"
	if loserIsFirst {
		winnerID = "driver-2"
	}
	stored, err := trips.GetByID(context.Background(), tripID)
	if err != nil {
		t.Fatalf("reload trip: %v", err)
	}
	if stored.Status != trip.StatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", stored.Status)
	}
	if stored.DriverID == nil || *stored.DriverID != winnerID {
		t.Errorf("assigned driver = %v, want %s", stored.DriverID, winnerID)
	}
}

func TestUpdateTripDriverIDMustMatchSender(t *testing.T) {
	m, _, router, _, _ := routerFixture(t, RouterOptions{})
	rider, riderOut := joinedSession(t, m, "rider-token")
	driver, driverOut := joinedSession(t, m, "driver-token")

	createEnv, _ := NewEnvelope(contracts.TypeCreateTrip, createTripPayload{
		PickUpAddress:  "A",
		DropOffAddress: "B",
	})
	router.Dispatch(context.Background(), rider, createEnv)
	tripID := decodeTrip(t, riderOut.envelopes()[0]).ID

	env, _ := NewEnvelope(contracts.TypeUpdateTrip, updateTripPayload{
		ID:       tripID,
		Status:   "IN_PROGRESS",
		DriverID: "driver-2",
	})
	router.Dispatch(context.Background(), driver, env)

	got := driverOut.envelopes()
	last := got[len(got)-1]
	if code := decodeError(t, last).Code; code != "validation_error" {
		t.Errorf("error code = %q, want validation_error", code)
	}
}

func TestUpdateTripUnknownID(t *testing.T) {
	m, _, router, _, _ := routerFixture(t, RouterOptions{})
	driver, out := joinedSession(t, m, "driver-token")

	env, _ := NewEnvelope(contracts.TypeUpdateTrip, updateTripPayload{ID: "trip-999", Status: "IN_PROGRESS"})
	router.Dispatch(context.Background(), driver, env)

	got := out.envelopes()
	if len(got) != 1 {
		t.Fatalf("driver received %d envelopes, want 1 error", len(got))
	}
	if code := decodeError(t, got[0]).Code; code != "not_found" {
		t.Errorf("error code = %q, want not_found", code)
	}
}

func TestUpdateTripBadStatus(t *testing.T) {
	m, _, router, _, _ := routerFixture(t, RouterOptions{})
	driver, out := joinedSession(t, m, "driver-token")

	env, _ := NewEnvelope(contracts.TypeUpdateTrip, updateTripPayload{ID: "trip-1", Status: "WARPED"})
	router.Dispatch(context.Background(), driver, env)

	if code := decodeError(t, out.envelopes()[0]).Code; code != "validation_error" {
		t.Errorf("error code = %q, want validation_error", code)
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	m, _, router, _, _ := routerFixture(t, RouterOptions{})
	rider, out := joinedSession(t, m, "rider-token")

	router.Dispatch(context.Background(), rider, Envelope{
		Type: contracts.TypeCreateTrip,
		Data: json.RawMessage(`"not an object"`),
	})

	if code := decodeError(t, out.envelopes()[0]).Code; code != "validation_error" {
		t.Errorf("error code = %q, want validation_error", code)
	}
}
