package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	domain "github.com/northcart/api/internal/domain"
)

// UserRepository implements repositories.UserRepository over Postgres.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository constructs a user repository.
func NewUserRepository(db *sql.DB) (*UserRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: user repository requires a database handle")
	}
	return &UserRepository{db: db}, nil
}

// Insert writes a user row. A duplicate email surfaces as a conflict error;
// the savepoint keeps the enclosing transaction usable so a lost insert race
// can be resolved by re-fetching the winner.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	const insert = `
		INSERT INTO users (id, email, role, first_name, last_name, phone, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	return execGuarded(ctx, r.db, "user_insert", func(q querier) error {
		_, err := q.ExecContext(ctx, insert,
			user.ID,
			strings.ToLower(user.Email),
			string(user.Role),
			user.FirstName,
			user.LastName,
			user.Phone,
			user.PasswordHash,
			user.CreatedAt,
		)
		if err != nil {
			return wrapError("insert user", err)
		}
		return nil
	})
}

// FindByID loads a user row.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	return r.findWhere(ctx, "id = $1", userID)
}

// FindByEmail loads a user row by its unique lowercase email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findWhere(ctx, "email = $1", strings.ToLower(email))
}

func (r *UserRepository) findWhere(ctx context.Context, where string, arg any) (domain.User, error) {
	query := `
		SELECT id, email, role, first_name, last_name, phone, password_hash, created_at
		FROM users WHERE ` + where

	var user domain.User
	var role string
	err := runner(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&role,
		&user.FirstName,
		&user.LastName,
		&user.Phone,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		return domain.User{}, wrapError("find user", err)
	}
	user.Role = domain.UserRole(role)
	return user, nil
}
