package services

import (
	"context"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/platform/auth"
)

// CheckoutLine is one requested purchase line. UnitPriceCents carries the
// price the client displayed; the service verifies it against the catalog
// before accepting the line.
type CheckoutLine struct {
	ProductID      string
	Quantity       int
	UnitPriceCents int64
}

// GuestProfile carries the contact details supplied by an anonymous shopper.
type GuestProfile struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// CheckoutCommand describes an order placement request. Actor identifies the
// authenticated buyer; Guest is set instead when the buyer is anonymous.
type CheckoutCommand struct {
	Actor            auth.Principal
	Guest            *GuestProfile
	Lines            []CheckoutLine
	DeliveryAddress  string
	DeliveryFeeCents int64
}

// StatusTransitionCommand requests moving an order to a new lifecycle state.
type StatusTransitionCommand struct {
	OrderID      string
	TargetStatus string
	Actor        auth.Principal
}

// ListOrdersQuery narrows order listings. Non-admin actors are always scoped
// to their own orders regardless of UserID.
type ListOrdersQuery struct {
	Actor  auth.Principal
	UserID string
	Status string
	Limit  int
}

// ListInvoicesQuery narrows invoice listings.
type ListInvoicesQuery struct {
	Actor  auth.Principal
	Status string
	Limit  int
}

// OrderService exposes order placement and lifecycle management.
type OrderService interface {
	// Checkout atomically creates the order with its items, decrements stock
	// for every line, and issues the invoice. Any failure leaves no trace.
	Checkout(ctx context.Context, cmd CheckoutCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string, actor auth.Principal) (domain.Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error)
	// TransitionStatus applies the admin-gated lifecycle state machine.
	// Cancelling restores stock for every item and voids the invoice;
	// repeating a cancel is a no-op.
	TransitionStatus(ctx context.Context, cmd StatusTransitionCommand) (domain.Order, error)
	// DeleteOrder removes the order aggregate. Admin only.
	DeleteOrder(ctx context.Context, orderID string, actor auth.Principal) error
}

// GuestService provisions ephemeral accounts for anonymous checkout.
type GuestService interface {
	// Provision returns a guest account for the supplied profile, reusing an
	// existing guest account when the email already belongs to one.
	Provision(ctx context.Context, profile GuestProfile) (domain.User, error)
}

// InvoiceService issues and manages invoices.
type InvoiceService interface {
	// Generate derives the invoice for the order, retrying number collisions
	// until a free invoice number is found.
	Generate(ctx context.Context, order domain.Order) (domain.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string, actor auth.Principal) (domain.Invoice, error)
	ListInvoices(ctx context.Context, query ListInvoicesQuery) ([]domain.Invoice, error)
	// MarkPaid settles an unpaid invoice. Admin only.
	MarkPaid(ctx context.Context, invoiceID string, actor auth.Principal) (domain.Invoice, error)
}
