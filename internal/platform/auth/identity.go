package auth

import (
	"context"
	"strings"

	domain "github.com/northcart/api/internal/domain"
)

// Principal captures the actor behind a request: an authenticated user, a
// provisioned guest, or nobody at all. It is threaded explicitly into every
// core operation rather than living in ambient session state.
type Principal struct {
	UserID string
	Email  string
	Role   domain.UserRole
}

// Anonymous returns the zero principal used for unauthenticated requests.
func Anonymous() Principal {
	return Principal{}
}

// IsAnonymous reports whether no authenticated user backs this principal.
func (p Principal) IsAnonymous() bool {
	return strings.TrimSpace(p.UserID) == ""
}

// IsAdmin reports whether the principal may manage orders and invoices.
func (p Principal) IsAdmin() bool {
	return !p.IsAnonymous() && p.Role == domain.RoleAdmin
}

// HasRole reports whether the principal carries the requested role.
func (p Principal) HasRole(role domain.UserRole) bool {
	return !p.IsAnonymous() && p.Role == role
}

type contextKey string

const principalContextKey contextKey = "github.com/northcart/api/internal/platform/auth/principal"

// WithPrincipal stores the principal within the context for downstream handlers.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext retrieves the principal previously stored in context.
// The second return is false when no authentication middleware ran.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(Principal)
	if !ok {
		return Anonymous(), false
	}
	return principal, true
}
