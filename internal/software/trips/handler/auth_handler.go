package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"taxi/internal/domain/user"
	"taxi/internal/ports"
	"taxi/internal/software/trips/service"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // RIDER | DRIVER
}

type logInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ----- Handler: POST /api/signup -----

func (handler *TripsHTTPHandler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req signUpRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Email) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "email is required", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.SignUp(ctxWithTimeout, ports.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrEmailTaken):
			handler.httpError(ctxWithTimeout, w, http.StatusConflict, "email is already registered", err)
		case errors.Is(err, user.ErrInvalidRole):
			handler.httpError(ctxWithTimeout, w, http.StatusBadRequest, "role must be one of: RIDER, DRIVER", err)
		default:
			handler.httpError(ctxWithTimeout, w, http.StatusBadRequest, err.Error(), err)
		}
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusCreated, res)
}

// ----- Handler: POST /api/login -----

func (handler *TripsHTTPHandler) handleLogIn(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	var req logInRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.LogIn(ctxWithTimeout, ports.LogInInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			handler.httpError(ctxWithTimeout, w, http.StatusUnauthorized, "invalid credentials", err)
			return
		}
		handler.httpError(ctxWithTimeout, w, http.StatusInternalServerError, "login failed", err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
