package trip

import (
	"errors"
	"strings"
	"time"
)

// Trip is the domain entity corresponding to the `trips` table.
type Trip struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors
	RiderID  string
	DriverID *string // nil until a driver accepts

	// Core state
	PickUpAddress  string
	DropOffAddress string
	Status         Status

	// Lifecycle timestamps
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

var (
	ErrNotFound                = errors.New("trip not found")
	ErrRiderRequired           = errors.New("rider id is required")
	ErrPickUpRequired          = errors.New("pick up address is required")
	ErrDropOffRequired         = errors.New("drop off address is required")
	ErrDriverRequired          = errors.New("driver id is required")
	ErrAlreadyAssigned         = errors.New("driver already assigned")
	ErrInvalidStatusTransition = errors.New("invalid trip status transition")
)

// NewTrip creates a new trip in REQUESTED state.
func NewTrip(riderID, pickUpAddress, dropOffAddress string) (*Trip, error) {
	if riderID = strings.TrimSpace(riderID); riderID == "" {
		return nil, ErrRiderRequired
	}
	if pickUpAddress = strings.TrimSpace(pickUpAddress); pickUpAddress == "" {
		return nil, ErrPickUpRequired
	}
	if dropOffAddress = strings.TrimSpace(dropOffAddress); dropOffAddress == "" {
		return nil, ErrDropOffRequired
	}

	now := time.Now().UTC()
	return &Trip{
		CreatedAt:      now,
		UpdatedAt:      now,
		RiderID:        riderID,
		PickUpAddress:  pickUpAddress,
		DropOffAddress: dropOffAddress,
		Status:         StatusRequested,
	}, nil
}

// Accept sets the driver and moves REQUESTED -> IN_PROGRESS.
// A driver reference may only be set when leaving REQUESTED; accepting an
// already-assigned trip fails with ErrAlreadyAssigned.
func (trip *Trip) Accept(driverID string) error {
	if strings.TrimSpace(driverID) == "" {
		return ErrDriverRequired
	}
	if trip.DriverID != nil && *trip.DriverID != "" {
		return ErrAlreadyAssigned
	}
	if !trip.Status.CanTransitionTo(StatusInProgress) {
		return ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	trip.DriverID = &driverID
	trip.StartedAt = &now
	trip.setStatus(StatusInProgress)
	return nil
}

// Complete transitions IN_PROGRESS -> COMPLETED.
func (trip *Trip) Complete() error {
	if !trip.Status.CanTransitionTo(StatusCompleted) {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	trip.CompletedAt = &now
	trip.setStatus(StatusCompleted)
	return nil
}

// Cancel transitions to CANCELLED (if not terminal).
func (trip *Trip) Cancel() error {
	if trip.Status.Terminal() {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	trip.CancelledAt = &now
	trip.setStatus(StatusCancelled)
	return nil
}

// Transition applies a status change, enforcing the lifecycle policy and
// driver assignment rules in one place.
func (trip *Trip) Transition(next Status, driverID string) error {
	switch next {
	case StatusInProgress:
		return trip.Accept(driverID)
	case StatusCompleted:
		return trip.Complete()
	case StatusCancelled:
		return trip.Cancel()
	default:
		return ErrInvalidStatusTransition
	}
}

// Active reports whether the trip is still in a non-terminal status.
func (trip *Trip) Active() bool {
	return !trip.Status.Terminal()
}

// setStatus updates status and the audit timestamp.
func (trip *Trip) setStatus(next Status) {
	trip.Status = next
	trip.UpdatedAt = time.Now().UTC()
}
