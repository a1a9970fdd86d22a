package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/repositories"
)

const (
	guestEventProvisioned = "guest.provisioned"
	guestEventReused      = "guest.reused"

	userIDPrefix     = "usr_"
	guestEmailDomain = "guest.invalid"
)

var (
	// ErrGuestInvalidInput signals the caller provided invalid profile data.
	ErrGuestInvalidInput = errors.New("guest: invalid input")
	// ErrGuestEmailRegistered indicates the email belongs to a registered account.
	ErrGuestEmailRegistered = errors.New("guest: email belongs to a registered account")
)

// GuestServiceDeps bundles collaborators required to construct the guest service.
type GuestServiceDeps struct {
	Users       repositories.UserRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type guestService struct {
	users  repositories.UserRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewGuestService wires dependencies into a concrete GuestService implementation.
func NewGuestService(deps GuestServiceDeps) (GuestService, error) {
	if deps.Users == nil {
		return nil, errors.New("guest service: user repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &guestService{
		users: deps.Users,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *guestService) Provision(ctx context.Context, profile GuestProfile) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		email = s.generatedEmail()
	} else if !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("%w: email %q is not valid", ErrGuestInvalidInput, email)
	}

	existing, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !existing.IsGuest() {
			return domain.User{}, fmt.Errorf("%w: %s", ErrGuestEmailRegistered, email)
		}
		s.logger(ctx, guestEventReused, map[string]any{"user": existing.ID})
		return existing, nil
	case !isNotFound(err):
		return domain.User{}, s.mapRepositoryError(err)
	}

	user := domain.User{
		ID:        userIDPrefix + s.newID(),
		Email:     email,
		Role:      domain.RoleGuest,
		FirstName: strings.TrimSpace(profile.FirstName),
		LastName:  strings.TrimSpace(profile.LastName),
		Phone:     strings.TrimSpace(profile.Phone),
		// Guests cannot authenticate; the credential slot is filled with an
		// unguessable placeholder that is never disclosed.
		PasswordHash: placeholderCredential(),
		CreatedAt:    s.clock(),
	}

	if err := s.users.Insert(ctx, user); err != nil {
		// A concurrent checkout may have provisioned the same email first.
		if isConflict(err) {
			winner, findErr := s.users.FindByEmail(ctx, email)
			if findErr != nil {
				return domain.User{}, s.mapRepositoryError(findErr)
			}
			if !winner.IsGuest() {
				return domain.User{}, fmt.Errorf("%w: %s", ErrGuestEmailRegistered, email)
			}
			return winner, nil
		}
		return domain.User{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, guestEventProvisioned, map[string]any{"user": user.ID})
	return user, nil
}

func (s *guestService) generatedEmail() string {
	return fmt.Sprintf("guest_%s@%s", strings.ToLower(s.newID()), guestEmailDomain)
}

func (s *guestService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("guest: repository unavailable: %w", err)
	}
	return err
}

func placeholderCredential() string {
	sum := sha256.Sum256([]byte(uuid.NewString()))
	return hex.EncodeToString(sum[:])
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
