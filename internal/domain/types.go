package domain

import (
	"time"
)

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state assigned at checkout.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing indicates the order has been picked up for fulfilment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order left the warehouse.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled is terminal and reachable from every other state.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// InvoiceStatus enumerates invoice payment states.
type InvoiceStatus string

const (
	// InvoiceStatusUnpaid is the initial invoice state.
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	// InvoiceStatusPaid indicates the invoice has been settled.
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusCancelled indicates the owning order was cancelled.
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// UserRole enumerates the principal roles recognised by the storefront.
type UserRole string

const (
	// RoleCustomer is a registered shopper.
	RoleCustomer UserRole = "customer"
	// RoleAdmin may manage orders, invoices, and users.
	RoleAdmin UserRole = "admin"
	// RoleGuest is an ephemeral identity created for anonymous checkout.
	RoleGuest UserRole = "guest"
)

// Product is a catalog entry with an on-hand stock count. Stock is mutated
// exclusively through the conditional adjustment primitive so it can never
// go negative.
type Product struct {
	ID         string
	Name       string
	Stock      int
	PriceCents int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Order is the aggregate root created at checkout. It owns its items and
// exactly one invoice; the three are created and destroyed together.
type Order struct {
	ID               string
	UserID           string
	Status           OrderStatus
	DeliveryAddress  string
	DeliveryFeeCents int64
	TotalCents       int64
	Items            []OrderItem
	Invoice          *Invoice
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItem captures one purchased line. UnitPriceCents is the price snapshot
// taken at purchase time and is never recomputed from the product afterwards.
type OrderItem struct {
	ID             string
	OrderID        string
	ProductID      string
	Quantity       int
	UnitPriceCents int64
}

// Invoice is derived exactly once per order at creation time.
type Invoice struct {
	ID            string
	OrderID       string
	InvoiceNumber string
	TotalCents    int64
	Status        InvoiceStatus
	CreatedAt     time.Time
}

// User is a storefront account. Guest users carry a generated email and a
// random placeholder credential that is never disclosed.
type User struct {
	ID           string
	Email        string
	Role         UserRole
	FirstName    string
	LastName     string
	Phone        string
	PasswordHash string
	CreatedAt    time.Time
}

// IsGuest reports whether the user was provisioned for anonymous checkout.
func (u User) IsGuest() bool {
	return u.Role == RoleGuest
}

// ValidOrderStatus reports whether raw names a recognised order status.
func ValidOrderStatus(raw string) (OrderStatus, bool) {
	switch OrderStatus(raw) {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return OrderStatus(raw), true
	}
	return "", false
}
