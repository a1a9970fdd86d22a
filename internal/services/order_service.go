package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/platform/auth"
	"github.com/northcart/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventDeleted       = "order.deleted"

	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "itm_"

	// taxRateDivisor converts basis points to a fraction.
	taxRateDivisor = 10_000
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent modification or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the actor lacks permission for the operation.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrProductNotFound indicates a checkout line referenced an unknown product.
	ErrProductNotFound = errors.New("order: product not found")
	// ErrInsufficientStock indicates a checkout line asked for more units than are on hand.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrPriceMismatch indicates the client-supplied unit price disagrees with the catalog.
	ErrPriceMismatch = errors.New("order: price mismatch")
)

// orderStateTransitions is the forward-only fulfilment path. Cancellation is
// handled separately: it is reachable from every non-cancelled state.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  {},
	domain.OrderStatusCancelled:  {},
}

func canTransition(from, to domain.OrderStatus) bool {
	if to == domain.OrderStatusCancelled {
		return from != domain.OrderStatusCancelled
	}
	return slices.Contains(orderStateTransitions[from], to)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Invoices repositories.InvoiceRepository
	// Invoicer issues the invoice during checkout.
	Invoicer InvoiceService
	// Guests provisions accounts for anonymous checkout.
	Guests     GuestService
	UnitOfWork repositories.UnitOfWork
	// TaxRateBasisPoints is the flat tax applied to the item subtotal.
	TaxRateBasisPoints int64
	Clock              func() time.Time
	IDGenerator        func() string
	Logger             func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	invoices   repositories.InvoiceRepository
	invoicer   InvoiceService
	guests     GuestService
	unitOfWork repositories.UnitOfWork
	taxRateBP  int64
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Invoices == nil {
		return nil, errors.New("order service: invoice repository is required")
	}
	if deps.Invoicer == nil {
		return nil, errors.New("order service: invoice service is required")
	}
	if deps.TaxRateBasisPoints < 0 {
		return nil, errors.New("order service: tax rate must not be negative")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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

	return &orderService{
		orders:     deps.Orders,
		products:   deps.Products,
		invoices:   deps.Invoices,
		invoicer:   deps.Invoicer,
		guests:     deps.Guests,
		unitOfWork: unit,
		taxRateBP:  deps.TaxRateBasisPoints,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (domain.Order, error) {
	if err := validateCheckout(cmd); err != nil {
		return domain.Order{}, err
	}

	now := s.clock()
	var order domain.Order

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		userID, err := s.resolveBuyer(txCtx, cmd)
		if err != nil {
			return err
		}

		order = domain.Order{
			ID:               orderIDPrefix + s.newID(),
			UserID:           userID,
			Status:           domain.OrderStatusPending,
			DeliveryAddress:  strings.TrimSpace(cmd.DeliveryAddress),
			DeliveryFeeCents: cmd.DeliveryFeeCents,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		// Decrement in product-id order so concurrent checkouts take their
		// row locks in the same sequence and cannot deadlock each other.
		lines := slices.Clone(cmd.Lines)
		slices.SortStableFunc(lines, func(a, b CheckoutLine) int {
			return strings.Compare(a.ProductID, b.ProductID)
		})

		var subtotal int64
		for _, line := range lines {
			product, err := s.products.FindByID(txCtx, line.ProductID)
			if err != nil {
				if isNotFound(err) {
					return fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
				}
				return s.mapRepositoryError(err)
			}

			// Totals are authoritative on the server; a stale client price
			// rejects the whole checkout rather than silently repricing.
			if line.UnitPriceCents != 0 && line.UnitPriceCents != product.PriceCents {
				return fmt.Errorf("%w: product %s priced at %d, client sent %d",
					ErrPriceMismatch, product.ID, product.PriceCents, line.UnitPriceCents)
			}

			if err := s.products.AdjustStock(txCtx, product.ID, -line.Quantity); err != nil {
				return s.mapStockError(err)
			}

			order.Items = append(order.Items, domain.OrderItem{
				ID:             orderItemIDPrefix + s.newID(),
				OrderID:        order.ID,
				ProductID:      product.ID,
				Quantity:       line.Quantity,
				UnitPriceCents: product.PriceCents,
			})
			subtotal += product.PriceCents * int64(line.Quantity)
		}

		order.TotalCents = subtotal + cmd.DeliveryFeeCents + subtotal*s.taxRateBP/taxRateDivisor

		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}

		invoice, err := s.invoicer.Generate(txCtx, order)
		if err != nil {
			return err
		}
		order.Invoice = &invoice
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, orderEventCreated, map[string]any{
		"order": order.ID,
		"user":  order.UserID,
		"total": order.TotalCents,
		"items": len(order.Items),
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor auth.Principal) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return domain.Order{}, fmt.Errorf("%w: order belongs to another user", ErrOrderForbidden)
	}

	if invoice, err := s.invoices.FindByOrderID(ctx, orderID); err == nil {
		order.Invoice = &invoice
	} else if !isNotFound(err) {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	filter := repositories.OrderListFilter{
		UserID: strings.TrimSpace(query.UserID),
		Limit:  query.Limit,
	}

	// Non-admins only ever see their own orders.
	if !query.Actor.IsAdmin() {
		filter.UserID = query.Actor.UserID
	}

	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, ok := domain.ValidOrderStatus(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		filter.Status = []domain.OrderStatus{status}
	}

	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd StatusTransitionCommand) (domain.Order, error) {
	if !cmd.Actor.IsAdmin() {
		return domain.Order{}, fmt.Errorf("%w: admin role required", ErrOrderForbidden)
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target, ok := domain.ValidOrderStatus(strings.TrimSpace(cmd.TargetStatus))
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	var order domain.Order
	var prev domain.OrderStatus

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		prev = order.Status

		// Repeating the current status is a no-op so retried cancellations
		// do not restore stock twice.
		if order.Status == target {
			return nil
		}

		if !canTransition(order.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, order.Status, target)
		}

		if target == domain.OrderStatusCancelled {
			if err := s.reverseCheckout(txCtx, order); err != nil {
				return err
			}
		}

		order.Status = target
		order.UpdatedAt = s.clock()
		if err := s.orders.UpdateStatus(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if prev != order.Status {
		s.logger(ctx, orderEventStatusChanged, map[string]any{
			"order": order.ID,
			"from":  string(prev),
			"to":    string(order.Status),
			"actor": cmd.Actor.UserID,
		})
	}
	return order, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, orderID string, actor auth.Principal) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrOrderForbidden)
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByIDForUpdate(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		// Deleting a live order would strand its stock decrement, so only
		// cancelled orders may be removed.
		if order.Status != domain.OrderStatusCancelled {
			return fmt.Errorf("%w: only cancelled orders can be deleted", ErrOrderInvalidState)
		}
		if err := s.orders.Delete(txCtx, orderID); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, orderEventDeleted, map[string]any{
		"order": orderID,
		"actor": actor.UserID,
	})
	return nil
}

// reverseCheckout undoes the stock decrements of a cancelled order and voids
// its invoice. Runs inside the caller's transaction.
func (s *orderService) reverseCheckout(ctx context.Context, order domain.Order) error {
	for _, item := range order.Items {
		if err := s.products.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			return s.mapStockError(err)
		}
	}

	invoice, err := s.invoices.FindByOrderID(ctx, order.ID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return s.mapRepositoryError(err)
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return nil
	}
	if err := s.invoices.UpdateStatus(ctx, invoice.ID, domain.InvoiceStatusCancelled); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *orderService) resolveBuyer(ctx context.Context, cmd CheckoutCommand) (string, error) {
	if !cmd.Actor.IsAnonymous() {
		return cmd.Actor.UserID, nil
	}
	if s.guests == nil {
		return "", fmt.Errorf("%w: guest checkout is not enabled", ErrOrderInvalidInput)
	}
	user, err := s.guests.Provision(ctx, *cmd.Guest)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func validateCheckout(cmd CheckoutCommand) error {
	if len(cmd.Lines) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for i, line := range cmd.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: item %d is missing a product id", ErrOrderInvalidInput, i)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrOrderInvalidInput, i)
		}
	}
	if strings.TrimSpace(cmd.DeliveryAddress) == "" {
		return fmt.Errorf("%w: delivery address is required", ErrOrderInvalidInput)
	}
	if cmd.DeliveryFeeCents < 0 {
		return fmt.Errorf("%w: delivery fee must not be negative", ErrOrderInvalidInput)
	}
	if cmd.Actor.IsAnonymous() && cmd.Guest == nil {
		return fmt.Errorf("%w: guest details are required for anonymous checkout", ErrOrderInvalidInput)
	}
	return nil
}

func (s *orderService) mapStockError(err error) error {
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, stockErr.ProductID)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrProductNotFound, stockErr.ProductID)
		}
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
