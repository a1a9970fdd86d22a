package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger verifies connectivity to a backing dependency.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	db        Pinger
	clock     func() time.Time
	startedAt time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthDatabase wires the database probed by /readyz.
func WithHealthDatabase(db Pinger) HealthOption {
	return func(h *HealthHandlers) {
		h.db = db
	}
}

// WithHealthClock overrides the time source, primarily for testing.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.startedAt = h.clock()
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz reports whether the API can reach its backing store.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"checks": map[string]any{
				"database": map[string]any{"status": "unavailable", "error": err.Error()},
			},
		})
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status": "ok",
		"checks": map[string]any{
			"database": map[string]any{"status": "ok"},
		},
	})
}
