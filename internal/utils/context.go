package utils

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mailflux/mailflux/internal/models"
)

// AuthContext carries the resolved tenancy for one authenticated request.
// Billing is nil when the user has no billing row.
type AuthContext struct {
	APIKey  *models.DomainAPIKey
	Domain  *models.Domain
	User    *models.User
	Billing *models.UserBilling
}

type authContextKey struct{}

func WithAuthContext(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

func GetAuthContext(ctx context.Context) *AuthContext {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

func GetUserIDFromContext(ctx context.Context) string {
	if auth := GetAuthContext(ctx); auth != nil && auth.User != nil {
		return auth.User.ID
	}
	return ""
}

func GetDomainFromContext(ctx context.Context) string {
	if auth := GetAuthContext(ctx); auth != nil && auth.Domain != nil {
		return auth.Domain.Name
	}
	return ""
}

func ValidateAuthContext(ctx context.Context) error {
	if GetAuthContext(ctx) == nil {
		return errors.New("auth context is missing")
	}
	return nil
}
