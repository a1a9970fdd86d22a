package postgres

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/repositories"
)

// ProductRepository implements repositories.ProductRepository over Postgres.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository constructs a product repository.
func NewProductRepository(db *sql.DB) (*ProductRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: product repository requires a database handle")
	}
	return &ProductRepository{db: db}, nil
}

// FindByID loads a product row.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	const query = `
		SELECT id, name, stock, price_cents, created_at, updated_at
		FROM products WHERE id = $1`

	var product domain.Product
	err := runner(ctx, r.db).QueryRowContext(ctx, query, productID).Scan(
		&product.ID,
		&product.Name,
		&product.Stock,
		&product.PriceCents,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, wrapError("find product", err)
	}
	return product, nil
}

// AdjustStock atomically applies delta to the product's stock, refusing any
// adjustment that would leave it negative. The guard in the WHERE clause is
// what keeps two concurrent checkouts from jointly overselling a product.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int) error {
	const update = `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0`

	result, err := runner(ctx, r.db).ExecContext(ctx, update, productID, delta)
	if err != nil {
		return wrapError("adjust stock", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapError("adjust stock", err)
	}
	if affected > 0 {
		return nil
	}

	// No row matched: distinguish a missing product from a guard refusal.
	var exists bool
	err = runner(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID,
	).Scan(&exists)
	if err != nil {
		return wrapError("adjust stock", err)
	}
	if !exists {
		return repositories.NewStockError(
			repositories.StockErrorProductNotFound, productID,
			"product does not exist", nil,
		)
	}
	return repositories.NewStockError(
		repositories.StockErrorInsufficient, productID,
		"adjustment would drive stock negative", nil,
	)
}
