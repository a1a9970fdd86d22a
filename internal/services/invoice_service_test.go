package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/repositories"
)

func newTestInvoiceService(t *testing.T, invoices *stubInvoiceRepo, opts func(*InvoiceServiceDeps)) InvoiceService {
	t.Helper()
	deps := InvoiceServiceDeps{
		Invoices:    invoices,
		Clock:       func() time.Time { return testNow },
		IDGenerator: func() string { return "01TESTULID" },
	}
	if opts != nil {
		opts(&deps)
	}
	svc, err := NewInvoiceService(deps)
	if err != nil {
		t.Fatalf("new invoice service: %v", err)
	}
	return svc
}

func TestInvoiceServiceGenerateIssuesUnpaidInvoice(t *testing.T) {
	var inserted *domain.Invoice
	invoices := &stubInvoiceRepo{
		insertFn: func(_ context.Context, invoice domain.Invoice) error {
			inserted = &invoice
			return nil
		},
	}

	svc := newTestInvoiceService(t, invoices, func(deps *InvoiceServiceDeps) {
		deps.NumberEntropy = func() string { return "9f2c" }
	})

	invoice, err := svc.Generate(context.Background(), domain.Order{ID: "ord_1", TotalCents: 1700})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	want := fmt.Sprintf("INV-9F2C-%d", testNow.Unix())
	if invoice.InvoiceNumber != want {
		t.Fatalf("expected number %s, got %s", want, invoice.InvoiceNumber)
	}
	if invoice.Status != domain.InvoiceStatusUnpaid {
		t.Fatalf("expected unpaid, got %s", invoice.Status)
	}
	if invoice.TotalCents != 1700 {
		t.Fatalf("expected total 1700, got %d", invoice.TotalCents)
	}
	if inserted == nil || inserted.OrderID != "ord_1" {
		t.Fatalf("expected insert for ord_1, got %+v", inserted)
	}
}

func TestInvoiceServiceGenerateRetriesNumberCollisions(t *testing.T) {
	var attempts int
	var numbers []string
	invoices := &stubInvoiceRepo{
		insertFn: func(_ context.Context, invoice domain.Invoice) error {
			attempts++
			numbers = append(numbers, invoice.InvoiceNumber)
			if attempts < 3 {
				return testRepoErr{conflict: true}
			}
			return nil
		},
	}

	var seq int
	svc := newTestInvoiceService(t, invoices, func(deps *InvoiceServiceDeps) {
		deps.NumberEntropy = func() string {
			seq++
			return fmt.Sprintf("%04x", seq)
		}
	})

	invoice, err := svc.Generate(context.Background(), domain.Order{ID: "ord_1", TotalCents: 500})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if numbers[0] == numbers[1] || numbers[1] == numbers[2] {
		t.Fatalf("expected fresh numbers per attempt, got %v", numbers)
	}
	if invoice.InvoiceNumber != numbers[2] {
		t.Fatalf("expected final number %s, got %s", numbers[2], invoice.InvoiceNumber)
	}
}

func TestInvoiceServiceGenerateStopsWhenOrderAlreadyInvoiced(t *testing.T) {
	invoices := &stubInvoiceRepo{
		insertFn: func(context.Context, domain.Invoice) error {
			return testRepoErr{conflict: true}
		},
		findByOrderFn: func(context.Context, string) (domain.Invoice, error) {
			return domain.Invoice{ID: "inv_existing", OrderID: "ord_1"}, nil
		},
	}

	svc := newTestInvoiceService(t, invoices, nil)

	_, err := svc.Generate(context.Background(), domain.Order{ID: "ord_1", TotalCents: 500})
	if !errors.Is(err, ErrInvoiceConflict) {
		t.Fatalf("expected ErrInvoiceConflict, got %v", err)
	}
}

func TestInvoiceServiceGenerateExhaustsRetries(t *testing.T) {
	invoices := &stubInvoiceRepo{
		insertFn: func(context.Context, domain.Invoice) error {
			return testRepoErr{conflict: true}
		},
	}

	svc := newTestInvoiceService(t, invoices, nil)

	_, err := svc.Generate(context.Background(), domain.Order{ID: "ord_1", TotalCents: 500})
	if !errors.Is(err, ErrInvoiceNumberExhausted) {
		t.Fatalf("expected ErrInvoiceNumberExhausted, got %v", err)
	}
}

func TestInvoiceServiceMarkPaid(t *testing.T) {
	status := domain.InvoiceStatusUnpaid
	var updates int
	invoices := &stubInvoiceRepo{
		findFn: func(context.Context, string) (domain.Invoice, error) {
			return domain.Invoice{ID: "inv_1", Status: status}, nil
		},
		updateStatusFn: func(_ context.Context, _ string, next domain.InvoiceStatus) error {
			updates++
			status = next
			return nil
		},
	}

	svc := newTestInvoiceService(t, invoices, nil)

	invoice, err := svc.MarkPaid(context.Background(), "inv_1", adminActor)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusPaid {
		t.Fatalf("expected paid, got %s", invoice.Status)
	}

	// Repeating the call is a no-op.
	if _, err := svc.MarkPaid(context.Background(), "inv_1", adminActor); err != nil {
		t.Fatalf("repeat mark paid: %v", err)
	}
	if updates != 1 {
		t.Fatalf("expected a single status update, got %d", updates)
	}
}

func TestInvoiceServiceMarkPaidRejectsCancelledInvoice(t *testing.T) {
	invoices := &stubInvoiceRepo{
		findFn: func(context.Context, string) (domain.Invoice, error) {
			return domain.Invoice{ID: "inv_1", Status: domain.InvoiceStatusCancelled}, nil
		},
	}

	svc := newTestInvoiceService(t, invoices, nil)

	_, err := svc.MarkPaid(context.Background(), "inv_1", adminActor)
	if !errors.Is(err, ErrInvoiceInvalidState) {
		t.Fatalf("expected ErrInvoiceInvalidState, got %v", err)
	}
}

func TestInvoiceServiceAdminGate(t *testing.T) {
	svc := newTestInvoiceService(t, &stubInvoiceRepo{}, nil)

	if _, err := svc.GetInvoice(context.Background(), "inv_1", customerActor); !errors.Is(err, ErrInvoiceForbidden) {
		t.Fatalf("expected ErrInvoiceForbidden on get, got %v", err)
	}
	if _, err := svc.ListInvoices(context.Background(), ListInvoicesQuery{Actor: customerActor}); !errors.Is(err, ErrInvoiceForbidden) {
		t.Fatalf("expected ErrInvoiceForbidden on list, got %v", err)
	}
	if _, err := svc.MarkPaid(context.Background(), "inv_1", customerActor); !errors.Is(err, ErrInvoiceForbidden) {
		t.Fatalf("expected ErrInvoiceForbidden on pay, got %v", err)
	}
}

func TestInvoiceServiceListInvoicesFiltersByStatus(t *testing.T) {
	invoices := &stubInvoiceRepo{
		listFn: func(_ context.Context, filter repositories.InvoiceListFilter) ([]domain.Invoice, error) {
			if len(filter.Status) != 1 || filter.Status[0] != domain.InvoiceStatusUnpaid {
				t.Fatalf("expected unpaid filter, got %v", filter.Status)
			}
			return []domain.Invoice{{ID: "inv_1", Status: domain.InvoiceStatusUnpaid}}, nil
		},
	}

	svc := newTestInvoiceService(t, invoices, nil)

	got, err := svc.ListInvoices(context.Background(), ListInvoicesQuery{Actor: adminActor, Status: "unpaid"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(got))
	}

	if _, err := svc.ListInvoices(context.Background(), ListInvoicesQuery{Actor: adminActor, Status: "bogus"}); !errors.Is(err, ErrInvoiceInvalidInput) {
		t.Fatalf("expected ErrInvoiceInvalidInput for bogus status, got %v", err)
	}
}
