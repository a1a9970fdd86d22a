package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/northcart/api/internal/domain"
)

func principalCapture(t *testing.T) (http.Handler, *Principal) {
	t.Helper()
	captured := &Principal{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			t.Fatal("expected principal in request context")
		}
		*captured = principal
		w.WriteHeader(http.StatusOK)
	})
	return handler, captured
}

func TestMiddlewareMissingHeaderYieldsAnonymous(t *testing.T) {
	authn := newTestAuthenticator(t)
	next, captured := principalCapture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	Middleware(authn)(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !captured.IsAnonymous() {
		t.Fatalf("expected anonymous principal, got %+v", *captured)
	}
}

func TestMiddlewareResolvesBearerToken(t *testing.T) {
	authn := newTestAuthenticator(t)
	token, err := authn.IssueToken(Principal{UserID: "usr_1", Email: "jane@northcart.test", Role: domain.RoleCustomer})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	next, captured := principalCapture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	Middleware(authn)(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if captured.UserID != "usr_1" || captured.Role != domain.RoleCustomer {
		t.Fatalf("unexpected principal %+v", *captured)
	}
}

func TestMiddlewareRejectsMalformedToken(t *testing.T) {
	authn := newTestAuthenticator(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	Middleware(authn)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler should not run")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAuthenticatedRejectsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), Anonymous()))
	rr := httptest.NewRecorder()
	RequireAuthenticated()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next handler should not run")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRequireRoleEnforcesRole(t *testing.T) {
	admin := Principal{UserID: "usr_admin", Role: domain.RoleAdmin}
	customer := Principal{UserID: "usr_cust", Role: domain.RoleCustomer}

	guard := RequireRole(domain.RoleAdmin)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), admin))
	rr := httptest.NewRecorder()
	guard(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), customer))
	rr = httptest.NewRecorder()
	guard(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rr.Code)
	}
}
