package ports

import (
	"context"

	"taxi/internal/domain/trip"
	"taxi/internal/domain/user"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UserRepository defines the methods for managing user data.
type UserRepository interface {
	CreateUser(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// TripRepository defines the methods for managing trip data.
type TripRepository interface {
	CreateTrip(ctx context.Context, t *trip.Trip) error
	GetByID(ctx context.Context, id string) (*trip.Trip, error)

	// UpdateTrip persists the mutable trip fields only if the stored status
	// still equals from. A concurrent writer that got there first makes the
	// call fail with trip.ErrInvalidStatusTransition.
	UpdateTrip(ctx context.Context, t *trip.Trip, from trip.Status) error

	// ListActiveFor returns trips in a non-terminal status where the user is
	// the rider or the driver.
	ListActiveFor(ctx context.Context, userID string) ([]*trip.Trip, error)

	// ListForRider returns all trips requested by the rider.
	ListForRider(ctx context.Context, riderID string) ([]*trip.Trip, error)

	// ListForDriver returns REQUESTED trips plus trips driven by the driver.
	ListForDriver(ctx context.Context, driverID string) ([]*trip.Trip, error)
}
