package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

type errorKind int

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// repoError satisfies repositories.RepositoryError so services can categorise
// persistence failures without importing driver details.
type repoError struct {
	op   string
	kind errorKind
	err  error
}

func (e *repoError) Error() string {
	if e.err == nil {
		return e.op
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *repoError) Unwrap() error      { return e.err }
func (e *repoError) IsNotFound() bool   { return e.kind == kindNotFound }
func (e *repoError) IsConflict() bool   { return e.kind == kindConflict }
func (e *repoError) IsUnavailable() bool {
	return e.kind == kindUnavailable
}

func notFoundError(op string, err error) error {
	return &repoError{op: op, kind: kindNotFound, err: err}
}

func conflictError(op string, err error) error {
	return &repoError{op: op, kind: kindConflict, err: err}
}

// wrapError maps driver-level failures onto the categorised repository error.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError(op, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return conflictError(op, err)
		case pqForeignKeyViolation, pqCheckViolation:
			return &repoError{op: op, kind: kindConflict, err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return &repoError{op: op, kind: kindUnavailable, err: err}
	}
	return &repoError{op: op, kind: kindUnknown, err: err}
}
