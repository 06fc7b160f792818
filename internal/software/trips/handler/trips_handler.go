package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"taxi/internal/domain/trip"
	"taxi/internal/general/jwt"
)

// ----- Handler: GET /api/trips -----

func (handler *TripsHTTPHandler) handleListTrips(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	trips, err := handler.svc.ListTrips(ctxWithTimeout, claims.Subject)
	if err != nil {
		handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "failed to list trips", err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, trips)
}

// ----- Handler: GET /api/trips/{trip_id} -----

func (handler *TripsHTTPHandler) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	tripID := r.PathValue("trip_id")
	if tripID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "trip_id is required", nil)
		return
	}
	ctx = handler.logger.WithTripID(ctx, tripID)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := handler.svc.GetTrip(ctxWithTimeout, claims.Subject, tripID)
	if err != nil {
		if errors.Is(err, trip.ErrNotFound) {
			handler.httpError(ctxWithTimeout, w, http.StatusNotFound, "trip not found", err)
			return
		}
		handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "failed to load trip", err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, data)
}
