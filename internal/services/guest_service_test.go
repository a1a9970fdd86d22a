package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/northcart/api/internal/domain"
)

type stubUserRepo struct {
	insertFn      func(ctx context.Context, user domain.User) error
	findFn        func(ctx context.Context, userID string) (domain.User, error)
	findByEmailFn func(ctx context.Context, email string) (domain.User, error)
}

func (s *stubUserRepo) Insert(ctx context.Context, user domain.User) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, user)
	}
	return nil
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID)
	}
	return domain.User{}, testRepoErr{notFound: true}
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if s.findByEmailFn != nil {
		return s.findByEmailFn(ctx, email)
	}
	return domain.User{}, testRepoErr{notFound: true}
}

func newTestGuestService(t *testing.T, users *stubUserRepo) GuestService {
	t.Helper()
	svc, err := NewGuestService(GuestServiceDeps{
		Users:       users,
		Clock:       func() time.Time { return testNow },
		IDGenerator: func() string { return "01TESTULID" },
	})
	if err != nil {
		t.Fatalf("new guest service: %v", err)
	}
	return svc
}

func TestGuestServiceProvisionCreatesGuestAccount(t *testing.T) {
	var inserted *domain.User
	users := &stubUserRepo{
		insertFn: func(_ context.Context, user domain.User) error {
			inserted = &user
			return nil
		},
	}

	svc := newTestGuestService(t, users)

	user, err := svc.Provision(context.Background(), GuestProfile{
		Email:     "Walkin@Example.com",
		FirstName: "Jo",
	})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if user.Email != "walkin@example.com" {
		t.Fatalf("expected lowercased email, got %s", user.Email)
	}
	if user.Role != domain.RoleGuest {
		t.Fatalf("expected guest role, got %s", user.Role)
	}
	if user.PasswordHash == "" {
		t.Fatal("expected placeholder credential to be set")
	}
	if inserted == nil {
		t.Fatal("expected user insert")
	}
}

func TestGuestServiceProvisionGeneratesEmailWhenMissing(t *testing.T) {
	users := &stubUserRepo{}
	svc := newTestGuestService(t, users)

	user, err := svc.Provision(context.Background(), GuestProfile{})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	if !strings.HasPrefix(user.Email, "guest_") || !strings.HasSuffix(user.Email, "@guest.invalid") {
		t.Fatalf("unexpected generated email %s", user.Email)
	}
}

func TestGuestServiceProvisionReusesExistingGuest(t *testing.T) {
	existing := domain.User{ID: "usr_prior", Email: "walkin@example.com", Role: domain.RoleGuest}
	users := &stubUserRepo{
		findByEmailFn: func(context.Context, string) (domain.User, error) {
			return existing, nil
		},
		insertFn: func(context.Context, domain.User) error {
			t.Fatal("existing guest must not be re-inserted")
			return nil
		},
	}

	svc := newTestGuestService(t, users)

	user, err := svc.Provision(context.Background(), GuestProfile{Email: "walkin@example.com"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if user.ID != existing.ID {
		t.Fatalf("expected reuse of %s, got %s", existing.ID, user.ID)
	}
}

func TestGuestServiceProvisionRejectsRegisteredEmail(t *testing.T) {
	users := &stubUserRepo{
		findByEmailFn: func(context.Context, string) (domain.User, error) {
			return domain.User{ID: "usr_member", Role: domain.RoleCustomer}, nil
		},
	}

	svc := newTestGuestService(t, users)

	_, err := svc.Provision(context.Background(), GuestProfile{Email: "member@example.com"})
	if !errors.Is(err, ErrGuestEmailRegistered) {
		t.Fatalf("expected ErrGuestEmailRegistered, got %v", err)
	}
}

func TestGuestServiceProvisionResolvesInsertRace(t *testing.T) {
	winner := domain.User{ID: "usr_winner", Email: "walkin@example.com", Role: domain.RoleGuest}
	var lookups int
	users := &stubUserRepo{
		findByEmailFn: func(context.Context, string) (domain.User, error) {
			lookups++
			if lookups == 1 {
				return domain.User{}, testRepoErr{notFound: true}
			}
			return winner, nil
		},
		insertFn: func(context.Context, domain.User) error {
			return testRepoErr{conflict: true}
		},
	}

	svc := newTestGuestService(t, users)

	user, err := svc.Provision(context.Background(), GuestProfile{Email: "walkin@example.com"})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if user.ID != winner.ID {
		t.Fatalf("expected race winner %s, got %s", winner.ID, user.ID)
	}
}

func TestGuestServiceProvisionRejectsMalformedEmail(t *testing.T) {
	svc := newTestGuestService(t, &stubUserRepo{})

	_, err := svc.Provision(context.Background(), GuestProfile{Email: "not-an-email"})
	if !errors.Is(err, ErrGuestInvalidInput) {
		t.Fatalf("expected ErrGuestInvalidInput, got %v", err)
	}
}
