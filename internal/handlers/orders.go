package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/northcart/api/internal/domain"
	"github.com/northcart/api/internal/platform/auth"
	"github.com/northcart/api/internal/platform/httpx"
	"github.com/northcart/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxCheckoutBodySize  = 64 * 1024
	maxStatusBodySize    = 4 * 1024
)

type checkoutItemPayload struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents,omitempty"`
}

type guestInfoPayload struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type checkoutRequest struct {
	Items            []checkoutItemPayload `json:"items"`
	DeliveryAddress  string                `json:"delivery_address"`
	DeliveryFeeCents int64                 `json:"delivery_fee_cents"`
	GuestInfo        *guestInfoPayload     `json:"guest_info,omitempty"`
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

type orderItemPayload struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type invoicePayload struct {
	ID            string `json:"id"`
	OrderID       string `json:"order_id"`
	InvoiceNumber string `json:"invoice_number"`
	TotalCents    int64  `json:"total_cents"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at,omitempty"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	Status           string             `json:"status"`
	DeliveryAddress  string             `json:"delivery_address"`
	DeliveryFeeCents int64              `json:"delivery_fee_cents"`
	TotalCents       int64              `json:"total_cents"`
	Items            []orderItemPayload `json:"items"`
	Invoice          *invoicePayload    `json:"invoice,omitempty"`
	CreatedAt        string             `json:"created_at,omitempty"`
	UpdatedAt        string             `json:"updated_at,omitempty"`
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

// OrderHandlers exposes checkout and order lifecycle endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints. Checkout accepts anonymous callers
// so guests can buy; everything else requires authentication.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.checkout)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuthenticated())
		r.Get("/", h.listOrders)
		r.Get("/{orderID}", h.getOrder)
		r.Patch("/{orderID}/status", h.updateStatus)
		r.Delete("/{orderID}", h.deleteOrder)
	})
}

func (h *OrderHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	principal, _ := auth.PrincipalFromContext(ctx)

	cmd := services.CheckoutCommand{
		Actor:            principal,
		Lines:            make([]services.CheckoutLine, 0, len(req.Items)),
		DeliveryAddress:  req.DeliveryAddress,
		DeliveryFeeCents: req.DeliveryFeeCents,
	}
	for _, item := range req.Items {
		cmd.Lines = append(cmd.Lines, services.CheckoutLine{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	if req.GuestInfo != nil {
		cmd.Guest = &services.GuestProfile{
			Email:     req.GuestInfo.Email,
			FirstName: req.GuestInfo.FirstName,
			LastName:  req.GuestInfo.LastName,
			Phone:     req.GuestInfo.Phone,
		}
	}

	order, err := h.orders.Checkout(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	principal, _ := auth.PrincipalFromContext(ctx)
	query := r.URL.Query()

	limit := defaultOrderPageSize
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case parsed <= 0:
			limit = defaultOrderPageSize
		case parsed > maxOrderPageSize:
			limit = maxOrderPageSize
		default:
			limit = parsed
		}
	}

	orders, err := h.orders.ListOrders(ctx, services.ListOrdersQuery{
		Actor:  principal,
		UserID: strings.TrimSpace(query.Get("user_id")),
		Status: strings.TrimSpace(query.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{Items: items})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	principal, _ := auth.PrincipalFromContext(ctx)
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, principal)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	principal, _ := auth.PrincipalFromContext(ctx)
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxStatusBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req statusUpdateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.StatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: req.Status,
		Actor:        principal,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	principal, _ := auth.PrincipalFromContext(ctx)
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	if err := h.orders.DeleteOrder(ctx, orderID, principal); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:               order.ID,
		UserID:           order.UserID,
		Status:           string(order.Status),
		DeliveryAddress:  order.DeliveryAddress,
		DeliveryFeeCents: order.DeliveryFeeCents,
		TotalCents:       order.TotalCents,
		Items:            make([]orderItemPayload, 0, len(order.Items)),
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	if order.Invoice != nil {
		invoice := buildInvoicePayload(*order.Invoice)
		payload.Invoice = &invoice
	}
	return payload
}

func buildInvoicePayload(invoice domain.Invoice) invoicePayload {
	return invoicePayload{
		ID:            invoice.ID,
		OrderID:       invoice.OrderID,
		InvoiceNumber: invoice.InvoiceNumber,
		TotalCents:    invoice.TotalCents,
		Status:        string(invoice.Status),
		CreatedAt:     formatTime(invoice.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput), errors.Is(err, services.ErrGuestInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPriceMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("price_mismatch", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrGuestEmailRegistered):
		httpx.WriteError(ctx, w, httpx.NewError("guest_email_registered", "email belongs to a registered account, sign in to checkout", http.StatusConflict))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict), errors.Is(err, services.ErrInvoiceConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
