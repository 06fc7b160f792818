package postgres

import (
	"context"
	"errors"
	"fmt"

	"taxi/internal/domain/trip"
	"taxi/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TripRepo persists trips using pgx and plain SQL. Queries run inside the
// ambient transaction when one is present, directly on the pool otherwise.
type TripRepo struct {
	pool *pgxpool.Pool
}

// NewTripRepo constructs a new TripRepo.
func NewTripRepo(pool *pgxpool.Pool) ports.TripRepository {
	return &TripRepo{pool: pool}
}

func (repo *TripRepo) q(ctx context.Context) querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return repo.pool
}

const tripColumns = `
	id, created_at, updated_at,
	rider_id, driver_id, pick_up_address, drop_off_address, status,
	started_at, completed_at, cancelled_at`

// CreateTrip inserts a new trip row and returns the generated id.
func (repo *TripRepo) CreateTrip(ctx context.Context, t *trip.Trip) error {
	err := repo.q(ctx).QueryRow(ctx, `
		INSERT INTO trips (rider_id, pick_up_address, drop_off_address, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`,
		t.RiderID,
		t.PickUpAddress,
		t.DropOffAddress,
		t.Status.String(),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	return nil
}

// GetByID returns one trip by id.
func (repo *TripRepo) GetByID(ctx context.Context, id string) (*trip.Trip, error) {
	row := repo.q(ctx).QueryRow(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE id = $1
	`, id)

	t, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, trip.ErrNotFound
		}
		return nil, fmt.Errorf("query trip by id: %w", err)
	}
	return t, nil
}

// UpdateTrip writes the mutable trip fields back to the row. The status
// predicate makes the write a compare-and-set: if another writer moved the
// trip past from in the meantime the update touches zero rows and the caller
// gets trip.ErrInvalidStatusTransition instead of silently clobbering it.
func (repo *TripRepo) UpdateTrip(ctx context.Context, t *trip.Trip, from trip.Status) error {
	tag, err := repo.q(ctx).Exec(ctx, `
		UPDATE trips
		SET driver_id = $2, status = $3, updated_at = $4,
		    started_at = $5, completed_at = $6, cancelled_at = $7
		WHERE id = $1 AND status = $8
	`,
		t.ID,
		t.DriverID,
		t.Status.String(),
		t.UpdatedAt,
		t.StartedAt,
		t.CompletedAt,
		t.CancelledAt,
		from.String(),
	)
	if err != nil {
		return fmt.Errorf("update trip: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := repo.GetByID(ctx, t.ID); err != nil {
			return err
		}
		return trip.ErrInvalidStatusTransition
	}
	return nil
}

// ListActiveFor returns trips that are not in a terminal status and involve
// the given user as rider or assigned driver.
func (repo *TripRepo) ListActiveFor(ctx context.Context, userID string) ([]*trip.Trip, error) {
	rows, err := repo.q(ctx).Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE status IN ($2, $3)
		  AND (rider_id = $1 OR driver_id = $1)
		ORDER BY created_at
	`, userID, trip.StatusRequested.String(), trip.StatusInProgress.String())
	if err != nil {
		return nil, fmt.Errorf("query active trips: %w", err)
	}
	return collectTrips(rows)
}

// ListForRider returns all trips requested by the rider, newest first.
func (repo *TripRepo) ListForRider(ctx context.Context, riderID string) ([]*trip.Trip, error) {
	rows, err := repo.q(ctx).Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE rider_id = $1
		ORDER BY created_at DESC
	`, riderID)
	if err != nil {
		return nil, fmt.Errorf("query trips by rider: %w", err)
	}
	return collectTrips(rows)
}

// ListForDriver returns open requests plus the driver's own trips, newest first.
func (repo *TripRepo) ListForDriver(ctx context.Context, driverID string) ([]*trip.Trip, error) {
	rows, err := repo.q(ctx).Query(ctx, `
		SELECT `+tripColumns+`
		FROM trips
		WHERE status = $2 OR driver_id = $1
		ORDER BY created_at DESC
	`, driverID, trip.StatusRequested.String())
	if err != nil {
		return nil, fmt.Errorf("query trips by driver: %w", err)
	}
	return collectTrips(rows)
}

func scanTrip(row pgx.Row) (*trip.Trip, error) {
	var (
		t          trip.Trip
		statusText string
	)
	err := row.Scan(
		&t.ID, &t.CreatedAt, &t.UpdatedAt,
		&t.RiderID, &t.DriverID, &t.PickUpAddress, &t.DropOffAddress, &statusText,
		&t.StartedAt, &t.CompletedAt, &t.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = trip.Status(statusText)
	return &t, nil
}

func collectTrips(rows pgx.Rows) ([]*trip.Trip, error) {
	defer rows.Close()

	var trips []*trip.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return trips, nil
}
