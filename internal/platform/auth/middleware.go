package auth

import (
	"net/http"
	"strings"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/platform/httpx"
)

const bearerPrefix = "bearer "

// Middleware resolves the Authorization header into a Principal and stores it
// in the request context. A missing header yields the anonymous principal so
// guest checkout can proceed; a present-but-invalid token is rejected.
func Middleware(authn *Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, Anonymous())))
				return
			}

			principal, err := authn.ResolvePrincipal(raw)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "invalid or expired credentials", http.StatusUnauthorized))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, principal)))
		})
	}
}

// RequireAuthenticated rejects requests that carry no authenticated principal.
func RequireAuthenticated() func(http.Handler) http.Handler {
	return requirePrincipal(func(Principal) bool { return true })
}

// RequireRole rejects requests whose principal lacks every listed role.
func RequireRole(roles ...domain.UserRole) func(http.Handler) http.Handler {
	return requirePrincipal(func(p Principal) bool {
		for _, role := range roles {
			if p.HasRole(role) {
				return true
			}
		}
		return false
	})
}

func requirePrincipal(allowed func(Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			principal, ok := PrincipalFromContext(ctx)
			if !ok || principal.IsAnonymous() {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}
			if !allowed(principal) {
				httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient privileges", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	return ""
}
