package contracts

import (
	"time"

	"taxi/internal/domain/trip"
	"taxi/internal/domain/user"
)

// UserBrief is the nested user representation embedded in trip payloads.
type UserBrief struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// TripData is the externally-rendered trip representation carried by relay
// broadcasts and REST responses.
type TripData struct {
	ID             string     `json:"id"`
	CreatedAt      time.Time  `json:"created"`
	UpdatedAt      time.Time  `json:"updated"`
	PickUpAddress  string     `json:"pick_up_address"`
	DropOffAddress string     `json:"drop_off_address"`
	Status         string     `json:"status"`
	Rider          *UserBrief `json:"rider,omitempty"`
	Driver         *UserBrief `json:"driver,omitempty"`
}

// RenderTrip builds the wire representation of a trip. Rider and driver may be
// nil when the caller has no user rows at hand (the ids are still authoritative
// in the trips table).
func RenderTrip(t *trip.Trip, rider, driver *user.User) TripData {
	data := TripData{
		ID:             t.ID,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		PickUpAddress:  t.PickUpAddress,
		DropOffAddress: t.DropOffAddress,
		Status:         t.Status.String(),
	}
	if rider != nil {
		data.Rider = &UserBrief{ID: rider.ID, Email: rider.Email, Role: rider.Role.String()}
	}
	if driver != nil {
		data.Driver = &UserBrief{ID: driver.ID, Email: driver.Email, Role: driver.Role.String()}
	}
	return data
}
