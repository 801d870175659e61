package auth

import (
	"context"

	"github.com/vimarsh/guidance/internal/domain"
)

type contextKey string

const identityKey contextKey = "vimarsh_identity"

// NewContext attaches an authenticated user to ctx.
func NewContext(ctx context.Context, user *domain.AuthenticatedUser) context.Context {
	return context.WithValue(ctx, identityKey, user)
}

// FromContext returns the authenticated user attached by the auth
// middleware, or nil if the request carries none.
func FromContext(ctx context.Context) *domain.AuthenticatedUser {
	user, _ := ctx.Value(identityKey).(*domain.AuthenticatedUser)
	return user
}
