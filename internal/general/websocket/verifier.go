package websocket

import (
	"context"

	"taxi/internal/general/jwt"
	"taxi/internal/relay"
)

// TokenVerifier resolves bearer tokens to relay identities via the JWT manager.
type TokenVerifier struct {
	mgr *jwt.Manager
}

func NewTokenVerifier(mgr *jwt.Manager) *TokenVerifier {
	return &TokenVerifier{mgr: mgr}
}

func (v *TokenVerifier) Verify(_ context.Context, token string) (relay.Identity, error) {
	_, claims, err := v.mgr.ParseAndValidate(token)
	if err != nil {
		return relay.Identity{}, err
	}
	return relay.Identity{UserID: claims.Subject, Role: claims.Role.String()}, nil
}
