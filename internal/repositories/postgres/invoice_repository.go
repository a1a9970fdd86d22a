package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/repositories"
)

const defaultInvoiceListLimit = 50

// InvoiceRepository implements repositories.InvoiceRepository over Postgres.
type InvoiceRepository struct {
	db *sql.DB
}

// NewInvoiceRepository constructs an invoice repository.
func NewInvoiceRepository(db *sql.DB) (*InvoiceRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: invoice repository requires a database handle")
	}
	return &InvoiceRepository{db: db}, nil
}

// Insert writes the invoice. Unique indexes on invoice_number and order_id
// surface as conflict errors; the savepoint keeps the enclosing checkout
// transaction usable so the generator can retry a colliding number.
func (r *InvoiceRepository) Insert(ctx context.Context, invoice domain.Invoice) error {
	const insert = `
		INSERT INTO invoices (id, order_id, invoice_number, total_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	return execGuarded(ctx, r.db, "invoice_insert", func(q querier) error {
		_, err := q.ExecContext(ctx, insert,
			invoice.ID,
			invoice.OrderID,
			invoice.InvoiceNumber,
			invoice.TotalCents,
			string(invoice.Status),
			invoice.CreatedAt,
		)
		if err != nil {
			return wrapError("insert invoice", err)
		}
		return nil
	})
}

// FindByID loads an invoice row.
func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	return r.findWhere(ctx, "id = $1", invoiceID)
}

// FindByOrderID loads the invoice owned by an order.
func (r *InvoiceRepository) FindByOrderID(ctx context.Context, orderID string) (domain.Invoice, error) {
	return r.findWhere(ctx, "order_id = $1", orderID)
}

func (r *InvoiceRepository) findWhere(ctx context.Context, where string, arg any) (domain.Invoice, error) {
	query := `
		SELECT id, order_id, invoice_number, total_cents, status, created_at
		FROM invoices WHERE ` + where

	var invoice domain.Invoice
	var status string
	err := runner(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(
		&invoice.ID,
		&invoice.OrderID,
		&invoice.InvoiceNumber,
		&invoice.TotalCents,
		&status,
		&invoice.CreatedAt,
	)
	if err != nil {
		return domain.Invoice{}, wrapError("find invoice", err)
	}
	invoice.Status = domain.InvoiceStatus(status)
	return invoice, nil
}

// UpdateStatus persists an invoice status change.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, invoiceID string, status domain.InvoiceStatus) error {
	result, err := runner(ctx, r.db).ExecContext(ctx,
		`UPDATE invoices SET status = $2 WHERE id = $1`, invoiceID, string(status),
	)
	if err != nil {
		return wrapError("update invoice status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapError("update invoice status", err)
	}
	if affected == 0 {
		return notFoundError("update invoice status", sql.ErrNoRows)
	}
	return nil
}

// List returns invoices matching the filter, newest first.
func (r *InvoiceRepository) List(ctx context.Context, filter repositories.InvoiceListFilter) ([]domain.Invoice, error) {
	var (
		conditions []string
		args       []any
	)
	if len(filter.Status) > 0 {
		placeholders := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			args = append(args, string(status))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	query := `
		SELECT id, order_id, invoice_number, total_cents, status, created_at
		FROM invoices`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultInvoiceListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := runner(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("list invoices", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		var invoice domain.Invoice
		var status string
		if err := rows.Scan(
			&invoice.ID,
			&invoice.OrderID,
			&invoice.InvoiceNumber,
			&invoice.TotalCents,
			&status,
			&invoice.CreatedAt,
		); err != nil {
			return nil, wrapError("scan invoice", err)
		}
		invoice.Status = domain.InvoiceStatus(status)
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate invoices", err)
	}
	return invoices, nil
}
