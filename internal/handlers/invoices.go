package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/platform/auth"
	"github.com/northcart/api/internal/platform/httpx"
	"github.com/northcart/api/internal/services"
)

const (
	defaultInvoicePageSize = 20
	maxInvoicePageSize     = 100
)

type invoiceListResponse struct {
	Items []invoicePayload `json:"items"`
}

// InvoiceHandlers exposes the admin invoice surface.
type InvoiceHandlers struct {
	invoices services.InvoiceService
}

// NewInvoiceHandlers constructs a new InvoiceHandlers instance.
func NewInvoiceHandlers(invoices services.InvoiceService) *InvoiceHandlers {
	return &InvoiceHandlers{invoices: invoices}
}

// Routes registers the /invoices endpoints.
func (h *InvoiceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(auth.RequireRole(domain.RoleAdmin))
	r.Get("/", h.listInvoices)
	r.Get("/{invoiceID}", h.getInvoice)
	r.Post("/{invoiceID}/pay", h.markPaid)
}

func (h *InvoiceHandlers) listInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service unavailable", http.StatusServiceUnavailable))
		return
	}

	principal, _ := auth.PrincipalFromContext(ctx)
	query := r.URL.Query()

	limit := defaultInvoicePageSize
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case parsed <= 0:
			limit = defaultInvoicePageSize
		case parsed > maxInvoicePageSize:
			limit = maxInvoicePageSize
		default:
			limit = parsed
		}
	}

	invoices, err := h.invoices.ListInvoices(ctx, services.ListInvoicesQuery{
		Actor:  principal,
		Status: strings.TrimSpace(query.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	items := make([]invoicePayload, 0, len(invoices))
	for _, invoice := range invoices {
		items = append(items, buildInvoicePayload(invoice))
	}
	writeJSONResponse(w, http.StatusOK, invoiceListResponse{Items: items})
}

func (h *InvoiceHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service unavailable", http.StatusServiceUnavailable))
		return
	}

	principal, _ := auth.PrincipalFromContext(ctx)
	invoiceID := strings.TrimSpace(chi.URLParam(r, "invoiceID"))
	if invoiceID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invoice id is required", http.StatusBadRequest))
		return
	}

	invoice, err := h.invoices.GetInvoice(ctx, invoiceID, principal)
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildInvoicePayload(invoice))
}

func (h *InvoiceHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.invoices == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invoice_service_unavailable", "invoice service unavailable", http.StatusServiceUnavailable))
		return
	}

	principal, _ := auth.PrincipalFromContext(ctx)
	invoiceID := strings.TrimSpace(chi.URLParam(r, "invoiceID"))
	if invoiceID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invoice id is required", http.StatusBadRequest))
		return
	}

	invoice, err := h.invoices.MarkPaid(ctx, invoiceID, principal)
	if err != nil {
		writeInvoiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildInvoicePayload(invoice))
}

func writeInvoiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvoiceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvoiceForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden))
	case errors.Is(err, services.ErrInvoiceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_not_found", "invoice not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvoiceInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInvoiceConflict):
		httpx.WriteError(ctx, w, httpx.NewError("invoice_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invoice_error", "failed to process invoice request", http.StatusInternalServerError))
	}
}
