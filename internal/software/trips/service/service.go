package service

import (
	"errors"

	"taxi/internal/general/jwt"
	"taxi/internal/general/logger"
	"taxi/internal/ports"
)

// ErrInvalidCredentials hides whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid credentials")

// tripsService implements signup, login and trip queries for the REST boundary.
type tripsService struct {
	logger   *logger.Logger
	uow      ports.UnitOfWork
	userRepo ports.UserRepository
	tripRepo ports.TripRepository
	auth     *jwt.Manager
}

// NewTripsService creates the trips service with the provided dependencies.
func NewTripsService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	userRepo ports.UserRepository,
	tripRepo ports.TripRepository,
	auth *jwt.Manager,
) ports.TripsService {
	return &tripsService{
		logger:   logger,
		uow:      uow,
		userRepo: userRepo,
		tripRepo: tripRepo,
		auth:     auth,
	}
}
