package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taxi/internal/domain/user"
	"taxi/internal/ports"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// SignUp registers a new rider or driver account.
func (service *tripsService) SignUp(ctx context.Context, in ports.SignUpInput) (ports.SignUpResult, error) {
	role, err := user.ParseRole(in.Role)
	if err != nil {
		return ports.SignUpResult{}, err
	}
	if len(in.Password) < minPasswordLength {
		return ports.SignUpResult{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return ports.SignUpResult{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := user.NewUser(strings.TrimSpace(in.Email), role, string(hash))
	if err != nil {
		return ports.SignUpResult{}, err
	}

	if err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.userRepo.CreateUser(txCtx, account)
	}); err != nil {
		return ports.SignUpResult{}, err
	}

	service.logger.Info(ctx, "user_registered", "New user account created", map[string]any{
		"user_id": account.ID,
		"role":    account.Role.String(),
	})

	return ports.SignUpResult{
		UserID: account.ID,
		Email:  account.Email,
		Role:   account.Role.String(),
	}, nil
}

// LogIn verifies credentials and issues a signed access token.
func (service *tripsService) LogIn(ctx context.Context, in ports.LogInInput) (ports.LogInResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	account, err := service.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ports.LogInResult{}, ErrInvalidCredentials
		}
		return ports.LogInResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(in.Password)); err != nil {
		return ports.LogInResult{}, ErrInvalidCredentials
	}

	token, _, err := service.auth.IssueUserToken(account.ID, account.Role)
	if err != nil {
		return ports.LogInResult{}, fmt.Errorf("issue token: %w", err)
	}

	service.logger.Info(ctx, "user_logged_in", "Issued access token", map[string]any{
		"user_id": account.ID,
		"role":    account.Role.String(),
	})

	return ports.LogInResult{
		UserID:      account.ID,
		Role:        account.Role.String(),
		AccessToken: token,
		ExpiresIn:   int64(service.auth.AccessTTL().Seconds()),
	}, nil
}
