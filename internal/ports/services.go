package ports

import (
	"context"

	"taxi/internal/general/contracts"
)

// ----- DTOs for the trips service -----

// SignUpInput is the validated input required to register a user.
type SignUpInput struct {
	Email    string
	Password string
	Role     string // RIDER | DRIVER
}

// SignUpResult is returned by TripsService.SignUp().
type SignUpResult struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// LogInInput carries the credentials for LogIn().
type LogInInput struct {
	Email    string
	Password string
}

// LogInResult carries the signed access token issued on successful login.
type LogInResult struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// ----- Trips service interface -----

// TripsService exposes the REST boundary for signup, login and trip queries.
type TripsService interface {
	SignUp(ctx context.Context, in SignUpInput) (SignUpResult, error)
	LogIn(ctx context.Context, in LogInInput) (LogInResult, error)
	ListTrips(ctx context.Context, userID string) ([]contracts.TripData, error)
	GetTrip(ctx context.Context, userID, tripID string) (contracts.TripData, error)
}
