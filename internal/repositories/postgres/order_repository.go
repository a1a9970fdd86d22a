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

const defaultOrderListLimit = 50

// OrderRepository implements repositories.OrderRepository over Postgres.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository constructs an order repository.
func NewOrderRepository(db *sql.DB) (*OrderRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: order repository requires a database handle")
	}
	return &OrderRepository{db: db}, nil
}

// Insert writes the order header and every item. Callers run it inside a
// unit of work together with the stock adjustments and the invoice insert.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	const insertOrder = `
		INSERT INTO orders (id, user_id, status, delivery_address, delivery_fee_cents, total_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	q := runner(ctx, r.db)
	_, err := q.ExecContext(ctx, insertOrder,
		order.ID,
		order.UserID,
		string(order.Status),
		order.DeliveryAddress,
		order.DeliveryFeeCents,
		order.TotalCents,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return wrapError("insert order", err)
	}

	const insertItem = `
		INSERT INTO order_items (id, order_id, product_id, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4, $5)`

	for _, item := range order.Items {
		if _, err := q.ExecContext(ctx, insertItem,
			item.ID, order.ID, item.ProductID, item.Quantity, item.UnitPriceCents,
		); err != nil {
			return wrapError("insert order item", err)
		}
	}
	return nil
}

// FindByID loads the order with its items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	return r.find(ctx, orderID, false)
}

// FindByIDForUpdate loads the order with a row lock so the read-then-write of
// a status transition happens under one transactional boundary. Only valid
// inside a unit of work.
func (r *OrderRepository) FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error) {
	if _, ok := txFromContext(ctx); !ok {
		return domain.Order{}, errors.New("postgres: FindByIDForUpdate requires a transaction")
	}
	return r.find(ctx, orderID, true)
}

func (r *OrderRepository) find(ctx context.Context, orderID string, forUpdate bool) (domain.Order, error) {
	query := `
		SELECT id, user_id, status, delivery_address, delivery_fee_cents, total_cents, created_at, updated_at
		FROM orders WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	q := runner(ctx, r.db)
	var order domain.Order
	var status string
	err := q.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID,
		&order.UserID,
		&status,
		&order.DeliveryAddress,
		&order.DeliveryFeeCents,
		&order.TotalCents,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, wrapError("find order", err)
	}
	order.Status = domain.OrderStatus(status)

	items, err := r.loadItems(ctx, q, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	const query = `
		SELECT id, order_id, product_id, quantity, unit_price_cents
		FROM order_items WHERE order_id = $1 ORDER BY id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, wrapError("load order items", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPriceCents,
		); err != nil {
			return nil, wrapError("scan order item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate order items", err)
	}
	return items, nil
}

// UpdateStatus persists a status change on the order header.
func (r *OrderRepository) UpdateStatus(ctx context.Context, order domain.Order) error {
	const update = `
		UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`

	result, err := runner(ctx, r.db).ExecContext(ctx, update,
		order.ID, string(order.Status), order.UpdatedAt,
	)
	if err != nil {
		return wrapError("update order status", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapError("update order status", err)
	}
	if affected == 0 {
		return notFoundError("update order status", sql.ErrNoRows)
	}
	return nil
}

// List returns orders matching the filter, newest first, items included.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) ([]domain.Order, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			args = append(args, string(status))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	query := `
		SELECT id, user_id, status, delivery_address, delivery_fee_cents, total_cents, created_at, updated_at
		FROM orders`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOrderListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	q := runner(ctx, r.db)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("list orders", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var order domain.Order
		var status string
		if err := rows.Scan(
			&order.ID,
			&order.UserID,
			&status,
			&order.DeliveryAddress,
			&order.DeliveryFeeCents,
			&order.TotalCents,
			&order.CreatedAt,
			&order.UpdatedAt,
		); err != nil {
			return nil, wrapError("scan order", err)
		}
		order.Status = domain.OrderStatus(status)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("iterate orders", err)
	}

	for i := range orders {
		items, err := r.loadItems(ctx, q, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// Delete removes the order row; items and the invoice cascade with it.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	result, err := runner(ctx, r.db).ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return wrapError("delete order", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapError("delete order", err)
	}
	if affected == 0 {
		return notFoundError("delete order", sql.ErrNoRows)
	}
	return nil
}
