package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/platform/httpx"
	"github.com/sellery/api/internal/services"
)

const (
	maxWebhookBodySize = 64 * 1024
	webhookActorID     = "payment-webhook"
)

// paymentEventTransitions maps provider event types onto order status targets.
// Replays land on the same status and no-op inside the status machine, so the
// endpoint stays safe to retry.
var paymentEventTransitions = map[string]domain.OrderStatus{
	"payment.captured": domain.OrderStatusProcessing,
	"payment.settled":  domain.OrderStatusCompleted,
	"payment.failed":   domain.OrderStatusCancelled,
	"payment.refunded": domain.OrderStatusRefunded,
}

// PaymentWebhookHandlers ingests payment provider callbacks and drives the
// order status machine. Authenticity is enforced by the HMAC middleware
// mounted on the webhook group.
type PaymentWebhookHandlers struct {
	orders services.OrderService
}

// NewPaymentWebhookHandlers constructs the webhook handlers.
func NewPaymentWebhookHandlers(orders services.OrderService) *PaymentWebhookHandlers {
	return &PaymentWebhookHandlers{orders: orders}
}

// Routes registers the webhook endpoints.
func (h *PaymentWebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.handlePaymentEvent)
}

type paymentEventRequest struct {
	Type          string         `json:"type"`
	OrderID       string         `json:"order_id"`
	TransactionID string         `json:"transaction_id"`
	PaymentMethod string         `json:"payment_method"`
	Reason        string         `json:"reason"`
	Metadata      map[string]any `json:"metadata"`
}

func (h *PaymentWebhookHandlers) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var event paymentEventRequest
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	eventType := strings.TrimSpace(event.Type)
	orderID := strings.TrimSpace(event.OrderID)
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required", http.StatusBadRequest))
		return
	}

	target, known := paymentEventTransitions[eventType]
	if !known {
		// Ack unknown event types so the provider stops retrying them.
		writeJSONResponse(w, http.StatusOK, map[string]any{"ignored": true, "type": eventType})
		return
	}

	order, err := h.orders.AdvanceStatus(ctx, services.AdvanceStatusCommand{
		OrderID:       orderID,
		TargetStatus:  target,
		ActorID:       webhookActorID,
		Reason:        strings.TrimSpace(event.Reason),
		PaymentMethod: strings.TrimSpace(event.PaymentMethod),
		TransactionID: strings.TrimSpace(event.TransactionID),
		Metadata:      event.Metadata,
	})
	if err != nil {
		h.writeWebhookError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order_id": order.ID,
		"status":   string(order.Status),
	})
}

func (h *PaymentWebhookHandlers) writeWebhookError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to apply payment event", http.StatusInternalServerError))
	}
}
