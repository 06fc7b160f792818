package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taxi/internal/domain/trip"
	"taxi/internal/domain/user"
	"taxi/internal/general/contracts"
	"taxi/internal/general/logger"
	"taxi/internal/ports"
)

// EventPublisher pushes trip lifecycle events to the message broker.
// Publishing is best effort: the in-process fan-out stays authoritative.
type EventPublisher interface {
	PublishTripStatus(msg contracts.TripStatusMessage) error
}

// HandlerFunc processes one inbound envelope from a session. A returned error
// is reported to the sender as an error envelope; it never closes the
// connection.
type HandlerFunc func(ctx context.Context, s *Session, env Envelope) error

// RouterOptions tune router behavior.
type RouterOptions struct {
	// JoinTripOnCreate joins the trip creator to the trip's own group. When
	// off, the creator only receives the direct reply at creation time (see
	// DESIGN.md).
	JoinTripOnCreate bool

	// MaxDBWorkers bounds concurrent persistence calls so slow database
	// operations cannot starve delivery to unrelated groups.
	MaxDBWorkers int
}

// Router dispatches inbound typed envelopes to handlers and emits outbound
// envelopes to the requesting session and/or groups. Unknown envelope types
// are silently ignored.
type Router struct {
	registry *Registry
	trips    ports.TripRepository
	users    ports.UserRepository
	events   EventPublisher
	logger   *logger.Logger

	joinOnCreate bool
	dbSlots      chan struct{}

	handlers map[string]HandlerFunc
}

// NewRouter wires the fixed handler table.
func NewRouter(
	registry *Registry,
	trips ports.TripRepository,
	users ports.UserRepository,
	events EventPublisher,
	log *logger.Logger,
	opts RouterOptions,
) *Router {
	if opts.MaxDBWorkers < 1 {
		opts.MaxDBWorkers = 16
	}

	router := &Router{
		registry:     registry,
		trips:        trips,
		users:        users,
		events:       events,
		logger:       log,
		joinOnCreate: opts.JoinTripOnCreate,
		dbSlots:      make(chan struct{}, opts.MaxDBWorkers),
	}
	router.handlers = map[string]HandlerFunc{
		contracts.TypeEcho:       router.handleEcho,
		contracts.TypeCreateTrip: router.handleCreateTrip,
		contracts.TypeUpdateTrip: router.handleUpdateTrip,
	}
	return router
}

// Dispatch routes a single inbound envelope. Handler errors are converted to
// an error envelope for the sender; the connection stays open.
func (router *Router) Dispatch(ctx context.Context, s *Session, env Envelope) {
	handler, ok := router.handlers[env.Type]
	if !ok {
		// unknown types are accepted but ignored
		return
	}

	if err := handler(ctx, s, env); err != nil {
		router.logger.Error(ctx, "envelope_rejected", "Handler returned an error", err, map[string]any{
			"session_id": s.ID,
			"user_id":    s.UserID,
			"msg_type":   env.Type,
		})
		router.replyError(ctx, s, err)
	}
}

// ----- handlers -----

// handleEcho re-emits the envelope verbatim to the sending session only.
func (router *Router) handleEcho(_ context.Context, s *Session, env Envelope) error {
	return s.Deliver(env)
}

type createTripPayload struct {
	PickUpAddress  string `json:"pick_up_address"`
	DropOffAddress string `json:"drop_off_address"`
}

// handleCreateTrip persists a new trip for the sender and alerts the driver
// pool, then replies to the sender with the same payload.
func (router *Router) handleCreateTrip(ctx context.Context, s *Session, env Envelope) error {
	var req createTripPayload
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return fmt.Errorf("%w: malformed create.trip payload: %v", ErrValidation, err)
	}

	newTrip, err := trip.NewTrip(s.UserID, req.PickUpAddress, req.DropOffAddress)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := router.withDBSlot(ctx, func(ctx context.Context) error {
		return router.trips.CreateTrip(ctx, newTrip)
	}); err != nil {
		return fmt.Errorf("persist trip: %w", err)
	}

	ctx = router.logger.WithTripID(ctx, newTrip.ID)

	if router.joinOnCreate {
		router.registry.Join(newTrip.ID, s)
	}

	out, err := NewEnvelope(contracts.TypeEcho, router.renderTrip(ctx, newTrip))
	if err != nil {
		return err
	}

	// alert the idle-driver pool, then reply to the originating session with
	// the same representation
	drivers := router.registry.Send(ctx, contracts.GroupDrivers, out)
	if err := s.Deliver(out); err != nil {
		router.logger.Error(ctx, "create_reply_failed", "Failed to reply to trip creator", err, nil)
	}

	router.logger.Info(ctx, "trip_requested", "Trip created and broadcast to drivers", map[string]any{
		"rider_id":          s.UserID,
		"drivers_notified":  drivers,
		"join_trip_creator": router.joinOnCreate,
	})

	router.publishStatus(ctx, newTrip)
	return nil
}

type updateTripPayload struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	DriverID string `json:"driver_id,omitempty"`
}

// handleUpdateTrip applies a status transition (e.g. driver acceptance) and
// broadcasts the updated trip to the trip's group.
func (router *Router) handleUpdateTrip(ctx context.Context, s *Session, env Envelope) error {
	var req updateTripPayload
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return fmt.Errorf("%w: malformed update.trip payload: %v", ErrValidation, err)
	}
	if req.ID == "" {
		return fmt.Errorf("%w: trip id is required", ErrValidation)
	}
	next, err := trip.ParseStatus(req.Status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// a driver accepting a trip may omit driver_id; the sender is implied
	// and may not be contradicted by the payload
	driverID := req.DriverID
	if s.Role.IsDriver() {
		if driverID != "" && driverID != s.UserID {
			return fmt.Errorf("%w: driver_id does not match the authenticated driver", ErrValidation)
		}
		if driverID == "" && next == trip.StatusInProgress {
			driverID = s.UserID
		}
	}

	ctx = router.logger.WithTripID(ctx, req.ID)

	var updated *trip.Trip
	if err := router.withDBSlot(ctx, func(ctx context.Context) error {
		current, err := router.trips.GetByID(ctx, req.ID)
		if err != nil {
			return err
		}
		from := current.Status
		if err := current.Transition(next, driverID); err != nil {
			return err
		}
		if err := router.trips.UpdateTrip(ctx, current, from); err != nil {
			return err
		}
		updated = current
		return nil
	}); err != nil {
		return mapTripError(err)
	}

	// membership gained by naming the group during the session persists for
	// the life of the session
	router.registry.Join(updated.ID, s)

	out, err := NewEnvelope(contracts.TypeEcho, router.renderTrip(ctx, updated))
	if err != nil {
		return err
	}
	receivers := router.registry.Send(ctx, updated.ID, out)

	router.logger.Info(ctx, "trip_updated", "Trip transitioned and broadcast to its group", map[string]any{
		"status":    updated.Status.String(),
		"receivers": receivers,
	})

	router.publishStatus(ctx, updated)
	return nil
}

// ----- helpers -----

// withDBSlot runs fn while holding one of the bounded persistence slots.
func (router *Router) withDBSlot(ctx context.Context, fn func(context.Context) error) error {
	select {
	case router.dbSlots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-router.dbSlots }()
	return fn(ctx)
}

// renderTrip builds the externally-rendered trip representation with nested
// rider/driver users. Lookup failures degrade to id-only payloads.
func (router *Router) renderTrip(ctx context.Context, t *trip.Trip) contracts.TripData {
	var rider, driver *user.User

	_ = router.withDBSlot(ctx, func(ctx context.Context) error {
		if u, err := router.users.GetByID(ctx, t.RiderID); err == nil {
			rider = u
		}
		if t.DriverID != nil {
			if u, err := router.users.GetByID(ctx, *t.DriverID); err == nil {
				driver = u
			}
		}
		return nil
	})

	return contracts.RenderTrip(t, rider, driver)
}

// replyError sends an error envelope back to the sender. Internal failures
// are not leaked to clients.
func (router *Router) replyError(ctx context.Context, s *Session, cause error) {
	data := ErrorData{Code: errorCode(cause), Message: cause.Error()}
	if data.Code == "internal_error" {
		data.Message = "internal relay error"
	}

	env, err := NewEnvelope(contracts.TypeError, data)
	if err != nil {
		return
	}
	if err := s.Deliver(env); err != nil {
		router.logger.Error(ctx, "error_reply_failed", "Failed to deliver error envelope", err, map[string]any{
			"session_id": s.ID,
		})
	}
}

// publishStatus emits a broker event for the trip's current status.
func (router *Router) publishStatus(ctx context.Context, t *trip.Trip) {
	if router.events == nil {
		return
	}

	msg := contracts.TripStatusMessage{
		TripID:    t.ID,
		Status:    t.Status.String(),
		RiderID:   t.RiderID,
		Timestamp: time.Now().UTC(),
		Meta: contracts.Meta{
			Producer: "taxi-service",
			SentAt:   time.Now().UTC(),
		},
	}
	if t.DriverID != nil {
		msg.DriverID = *t.DriverID
	}

	if err := router.events.PublishTripStatus(msg); err != nil {
		router.logger.Error(ctx, "trip_event_publish_failed", "Failed to publish trip status event", err, map[string]any{
			"status": msg.Status,
		})
	}
}

// mapTripError folds domain errors into the relay taxonomy.
func mapTripError(err error) error {
	switch {
	case errors.Is(err, trip.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, trip.ErrInvalidStatusTransition),
		errors.Is(err, trip.ErrAlreadyAssigned):
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	case errors.Is(err, trip.ErrDriverRequired),
		errors.Is(err, trip.ErrInvalidStatus):
		return fmt.Errorf("%w: %v", ErrValidation, err)
	default:
		return err
	}
}
