package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	domain "github.com/northcart/api/internal/domain"
)

const defaultTokenTTL = 24 * time.Hour

var (
	// ErrTokenInvalid signals the bearer token failed signature or claim checks.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrTokenExpired signals the bearer token is past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Claims is the JWT payload issued to storefront users.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and resolves them to principals.
type Authenticator struct {
	secret   []byte
	tokenTTL time.Duration
	clock    func() time.Time
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithTokenTTL overrides the lifetime of issued tokens.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.tokenTTL = ttl
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(a *Authenticator) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// NewAuthenticator constructs an Authenticator around a shared signing secret.
func NewAuthenticator(secret string, opts ...Option) (*Authenticator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}

	a := &Authenticator{
		secret:   []byte(secret),
		tokenTTL: defaultTokenTTL,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// ResolvePrincipal verifies the raw token and maps its claims to a Principal.
func (a *Authenticator) ResolvePrincipal(rawToken string) (Principal, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Anonymous(), ErrTokenInvalid
	}

	// Time-based claims are validated against the injected clock below, so
	// the parser only checks the signature and algorithm.
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(rawToken, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return Anonymous(), fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := a.clock().UTC()
	if claims.ExpiresAt == nil {
		return Anonymous(), fmt.Errorf("%w: missing expiry claim", ErrTokenInvalid)
	}
	if now.After(claims.ExpiresAt.Time) {
		return Anonymous(), ErrTokenExpired
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return Anonymous(), fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		return Anonymous(), fmt.Errorf("%w: missing user_id claim", ErrTokenInvalid)
	}

	role := domain.UserRole(strings.TrimSpace(claims.Role))
	switch role {
	case domain.RoleCustomer, domain.RoleAdmin, domain.RoleGuest:
	default:
		role = domain.RoleCustomer
	}

	return Principal{
		UserID: userID,
		Email:  strings.TrimSpace(claims.Email),
		Role:   role,
	}, nil
}

// IssueToken signs a bearer token for the given principal.
func (a *Authenticator) IssueToken(principal Principal) (string, error) {
	if principal.IsAnonymous() {
		return "", errors.New("auth: cannot issue a token for an anonymous principal")
	}

	now := a.clock().UTC()
	claims := Claims{
		UserID: principal.UserID,
		Email:  principal.Email,
		Role:   string(principal.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
