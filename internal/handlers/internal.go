package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sellery/api/internal/platform/httpx"
	"github.com/sellery/api/internal/services"
)

// InternalHandlers serves operator-only endpoints. The OIDC middleware mounted
// on the internal group authenticates callers.
type InternalHandlers struct {
	orders services.OrderService
}

// NewInternalHandlers constructs the internal handlers.
func NewInternalHandlers(orders services.OrderService) *InternalHandlers {
	return &InternalHandlers{orders: orders}
}

// Routes registers the internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/reconciliation/rollback-failures", h.listRollbackFailures)
}

// listRollbackFailures lists orders whose compensating delete failed during
// creation and that need manual cleanup.
func (h *InternalHandlers) listRollbackFailures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePageQuery(r, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListRollbackFailures(ctx, pager)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to list rollback failures", http.StatusInternalServerError))
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}
