package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type txContextKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx so repositories run
// transparently inside or outside a unit of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func txFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

func withTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// UnitOfWork runs a function inside a single database transaction. The
// transaction handle travels through the context so every repository call
// made by fn joins the same all-or-nothing boundary.
type UnitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork constructs a UnitOfWork over the shared connection pool.
func NewUnitOfWork(db *sql.DB) (*UnitOfWork, error) {
	if db == nil {
		return nil, errors.New("postgres: unit of work requires a database handle")
	}
	return &UnitOfWork{db: db}, nil
}

// RunInTx implements repositories.UnitOfWork. Nested calls join the
// enclosing transaction instead of opening a second one.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("begin tx", err)
	}

	if err := fn(withTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapError("commit tx", err)
	}
	return nil
}

// runner picks the context transaction when present, the pool otherwise.
func runner(ctx context.Context, db *sql.DB) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return db
}

// execGuarded runs fn under a savepoint when the context carries a
// transaction. Postgres aborts the whole transaction on a failed statement,
// so without the savepoint a constraint violation would poison the enclosing
// unit of work and the caller could not recover (retry a colliding invoice
// number, re-fetch the user that won an insert race). Outside a transaction
// fn runs against the pool directly.
func execGuarded(ctx context.Context, db *sql.DB, name string, fn func(q querier) error) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return fn(db)
	}

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return wrapError("savepoint "+name, err)
	}
	if err := fn(tx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return wrapError("rollback to savepoint "+name, rbErr)
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return wrapError("release savepoint "+name, err)
	}
	return nil
}
