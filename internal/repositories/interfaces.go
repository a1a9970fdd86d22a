package repositories

import (
	"context"

	domain "github.com/northcart/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation
// used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a single all-or-nothing
// transactional boundary. Nested calls join the enclosing transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository exposes the catalog store surface the order engine needs:
// read-by-id plus a conditional stock adjustment primitive.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// AdjustStock applies delta to the product's stock only when the result
	// stays non-negative; otherwise it fails with a StockError carrying
	// StockErrorInsufficient. Checkout passes negative deltas, cancellation
	// reversal positive ones.
	AdjustStock(ctx context.Context, productID string, delta int) error
}

// OrderRepository owns order header + item persistence.
type OrderRepository interface {
	// Insert writes the order and all of its items.
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByIDForUpdate loads the order with a row lock; it must be called
	// inside a unit of work so the read and the subsequent status write
	// share one transactional boundary.
	FindByIDForUpdate(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, order domain.Order) error
	List(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	// Delete removes the order aggregate: items and invoice go with it.
	Delete(ctx context.Context, orderID string) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID string
	Status []domain.OrderStatus
	Limit  int
}

// InvoiceRepository persists the one invoice derived per order.
type InvoiceRepository interface {
	// Insert fails with a conflict error when the invoice number or order
	// reference is already taken.
	Insert(ctx context.Context, invoice domain.Invoice) error
	FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	FindByOrderID(ctx context.Context, orderID string) (domain.Invoice, error)
	UpdateStatus(ctx context.Context, invoiceID string, status domain.InvoiceStatus) error
	List(ctx context.Context, filter InvoiceListFilter) ([]domain.Invoice, error)
}

// InvoiceListFilter narrows invoice listings.
type InvoiceListFilter struct {
	Status []domain.InvoiceStatus
	Limit  int
}

// UserRepository persists storefront accounts, including guest identities.
type UserRepository interface {
	// Insert fails with a conflict error when the email is already taken.
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
}
