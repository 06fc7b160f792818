package service

import (
	"context"

	"taxi/internal/domain/trip"
	"taxi/internal/domain/user"
	"taxi/internal/general/contracts"
)

// ListTrips returns the trips visible to the caller. Riders see their own
// trips; drivers see open requests plus trips they drive.
func (service *tripsService) ListTrips(ctx context.Context, userID string) ([]contracts.TripData, error) {
	caller, err := service.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var trips []*trip.Trip
	if caller.Role.IsDriver() {
		trips, err = service.tripRepo.ListForDriver(ctx, userID)
	} else {
		trips, err = service.tripRepo.ListForRider(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	out := make([]contracts.TripData, 0, len(trips))
	for _, t := range trips {
		out = append(out, service.render(ctx, t))
	}
	return out, nil
}

// GetTrip returns a single trip if the caller may see it.
func (service *tripsService) GetTrip(ctx context.Context, userID, tripID string) (contracts.TripData, error) {
	caller, err := service.userRepo.GetByID(ctx, userID)
	if err != nil {
		return contracts.TripData{}, err
	}

	t, err := service.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return contracts.TripData{}, err
	}

	if !visibleTo(caller, t) {
		// hide existence from unauthorized callers
		return contracts.TripData{}, trip.ErrNotFound
	}

	return service.render(ctx, t), nil
}

// visibleTo applies the per-role visibility rule for a single trip.
func visibleTo(caller *user.User, t *trip.Trip) bool {
	if caller.Role.IsDriver() {
		return t.Status == trip.StatusRequested || (t.DriverID != nil && *t.DriverID == caller.ID)
	}
	return t.RiderID == caller.ID
}

// render resolves the rider and driver rows for the external representation.
// Lookup failures degrade to id-only payloads rather than failing the query.
func (service *tripsService) render(ctx context.Context, t *trip.Trip) contracts.TripData {
	var rider, driver *user.User
	if u, err := service.userRepo.GetByID(ctx, t.RiderID); err == nil {
		rider = u
	}
	if t.DriverID != nil {
		if u, err := service.userRepo.GetByID(ctx, *t.DriverID); err == nil {
			driver = u
		}
	}
	return contracts.RenderTrip(t, rider, driver)
}
