package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/platform/auth"
	"github.com/northcart/api/internal/repositories"
)

const (
	invoiceEventIssued = "invoice.issued"
	invoiceEventPaid   = "invoice.paid"

	invoiceIDPrefix = "inv_"

	// maxInvoiceNumberAttempts bounds collision retries when issuing numbers.
	maxInvoiceNumberAttempts = 5
)

var (
	// ErrInvoiceInvalidInput signals the caller provided invalid data.
	ErrInvoiceInvalidInput = errors.New("invoice: invalid input")
	// ErrInvoiceNotFound indicates the invoice could not be located.
	ErrInvoiceNotFound = errors.New("invoice: not found")
	// ErrInvoiceConflict indicates the order already carries an invoice.
	ErrInvoiceConflict = errors.New("invoice: conflict")
	// ErrInvoiceInvalidState indicates the requested payment state change is not allowed.
	ErrInvoiceInvalidState = errors.New("invoice: invalid state")
	// ErrInvoiceForbidden indicates the actor lacks permission.
	ErrInvoiceForbidden = errors.New("invoice: forbidden")
	// ErrInvoiceNumberExhausted indicates no free invoice number was found within the retry budget.
	ErrInvoiceNumberExhausted = errors.New("invoice: number generation exhausted retries")
)

// InvoiceServiceDeps bundles collaborators required to construct the invoice service.
type InvoiceServiceDeps struct {
	Invoices    repositories.InvoiceRepository
	Clock       func() time.Time
	IDGenerator func() string
	// NumberEntropy supplies the random component of invoice numbers.
	// Defaults to four crypto-random hex characters.
	NumberEntropy func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type invoiceService struct {
	invoices repositories.InvoiceRepository
	clock    func() time.Time
	newID    func() string
	entropy  func() string
	logger   func(context.Context, string, map[string]any)
}

// NewInvoiceService wires dependencies into a concrete InvoiceService implementation.
func NewInvoiceService(deps InvoiceServiceDeps) (InvoiceService, error) {
	if deps.Invoices == nil {
		return nil, errors.New("invoice service: invoice repository is required")
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

	entropy := deps.NumberEntropy
	if entropy == nil {
		entropy = randomHex4
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &invoiceService{
		invoices: deps.Invoices,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		entropy: entropy,
		logger:  logger,
	}, nil
}

func (s *invoiceService) Generate(ctx context.Context, order domain.Order) (domain.Invoice, error) {
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return domain.Invoice{}, fmt.Errorf("%w: order id is required", ErrInvoiceInvalidInput)
	}
	if order.TotalCents < 0 {
		return domain.Invoice{}, fmt.Errorf("%w: order total must not be negative", ErrInvoiceInvalidInput)
	}

	now := s.clock()

	for attempt := 0; attempt < maxInvoiceNumberAttempts; attempt++ {
		invoice := domain.Invoice{
			ID:            invoiceIDPrefix + s.newID(),
			OrderID:       orderID,
			InvoiceNumber: s.nextInvoiceNumber(now),
			TotalCents:    order.TotalCents,
			Status:        domain.InvoiceStatusUnpaid,
			CreatedAt:     now,
		}

		err := s.invoices.Insert(ctx, invoice)
		if err == nil {
			s.logger(ctx, invoiceEventIssued, map[string]any{
				"invoice": invoice.ID,
				"number":  invoice.InvoiceNumber,
				"order":   orderID,
			})
			return invoice, nil
		}
		if !isConflict(err) {
			return domain.Invoice{}, s.mapRepositoryError(err)
		}

		// The conflict is terminal when the order already has an invoice;
		// otherwise the generated number collided and we retry with a new one.
		if _, findErr := s.invoices.FindByOrderID(ctx, orderID); findErr == nil {
			return domain.Invoice{}, fmt.Errorf("%w: order %s already invoiced", ErrInvoiceConflict, orderID)
		} else if !isNotFound(findErr) {
			return domain.Invoice{}, s.mapRepositoryError(findErr)
		}
	}

	return domain.Invoice{}, fmt.Errorf("%w: gave up after %d attempts", ErrInvoiceNumberExhausted, maxInvoiceNumberAttempts)
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID string, actor auth.Principal) (domain.Invoice, error) {
	if !actor.IsAdmin() {
		return domain.Invoice{}, fmt.Errorf("%w: admin role required", ErrInvoiceForbidden)
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return domain.Invoice{}, fmt.Errorf("%w: invoice id is required", ErrInvoiceInvalidInput)
	}

	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, s.mapRepositoryError(err)
	}
	return invoice, nil
}

func (s *invoiceService) ListInvoices(ctx context.Context, query ListInvoicesQuery) ([]domain.Invoice, error) {
	if !query.Actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin role required", ErrInvoiceForbidden)
	}

	filter := repositories.InvoiceListFilter{Limit: query.Limit}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := domain.InvoiceStatus(raw)
		switch status {
		case domain.InvoiceStatusUnpaid, domain.InvoiceStatusPaid, domain.InvoiceStatusCancelled:
			filter.Status = []domain.InvoiceStatus{status}
		default:
			return nil, fmt.Errorf("%w: unknown invoice status %q", ErrInvoiceInvalidInput, raw)
		}
	}

	invoices, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return invoices, nil
}

func (s *invoiceService) MarkPaid(ctx context.Context, invoiceID string, actor auth.Principal) (domain.Invoice, error) {
	if !actor.IsAdmin() {
		return domain.Invoice{}, fmt.Errorf("%w: admin role required", ErrInvoiceForbidden)
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return domain.Invoice{}, fmt.Errorf("%w: invoice id is required", ErrInvoiceInvalidInput)
	}

	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, s.mapRepositoryError(err)
	}

	switch invoice.Status {
	case domain.InvoiceStatusPaid:
		return invoice, nil
	case domain.InvoiceStatusCancelled:
		return domain.Invoice{}, fmt.Errorf("%w: cancelled invoice cannot be paid", ErrInvoiceInvalidState)
	}

	if err := s.invoices.UpdateStatus(ctx, invoice.ID, domain.InvoiceStatusPaid); err != nil {
		return domain.Invoice{}, s.mapRepositoryError(err)
	}
	invoice.Status = domain.InvoiceStatusPaid

	s.logger(ctx, invoiceEventPaid, map[string]any{
		"invoice": invoice.ID,
		"actor":   actor.UserID,
	})
	return invoice, nil
}

// nextInvoiceNumber combines a short random component with the issue time,
// e.g. INV-9F2C-1741598400. Uniqueness is still enforced by the store.
func (s *invoiceService) nextInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%s-%d", strings.ToUpper(s.entropy()), now.Unix())
}

func (s *invoiceService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrInvoiceNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrInvoiceConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("invoice: repository unavailable: %w", err)
		}
	}

	return err
}

func randomHex4() string {
	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// time-derived value to keep issuing.
		return fmt.Sprintf("%04X", time.Now().UnixNano()&0xFFFF)
	}
	return hex.EncodeToString(buf)
}
