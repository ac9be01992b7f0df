package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sellery/api/internal/platform/auth"
	"github.com/sellery/api/internal/platform/httpx"
	"github.com/sellery/api/internal/services"
)

const maxCheckoutBodySize = 16 * 1024

// CheckoutHandlers turns the buyer's cart into a pending order plus a payment
// session in one call.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs the checkout handlers.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.startCheckout)
}

type checkoutRequest struct {
	PaymentMethod string         `json:"payment_method"`
	BuyerLocale   string         `json:"buyer_locale"`
	Notes         string         `json:"notes"`
	Metadata      map[string]any `json:"metadata"`
}

type checkoutResponse struct {
	Order               orderPayload `json:"order"`
	PaymentIntentID     string       `json:"payment_intent_id,omitempty"`
	PaymentClientSecret string       `json:"payment_client_secret,omitempty"`
}

func (h *CheckoutHandlers) startCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	locale := strings.TrimSpace(req.BuyerLocale)
	if locale == "" {
		locale = parseAcceptLanguage(r.Header.Get("Accept-Language"))
	}

	result, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		UserID:        identity.UID,
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		BuyerLocale:   locale,
		Notes:         strings.TrimSpace(req.Notes),
		Metadata:      req.Metadata,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		Order:               buildOrderPayload(result.Order),
		PaymentIntentID:     result.PaymentIntentID,
		PaymentClientSecret: result.PaymentClientSecret,
	})
}

// parseAcceptLanguage keeps the first language tag from the header, dropping
// any quality weight.
func parseAcceptLanguage(header string) string {
	first := strings.TrimSpace(strings.Split(header, ",")[0])
	if idx := strings.IndexByte(first, ';'); idx >= 0 {
		first = first[:idx]
	}
	return strings.TrimSpace(first)
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no lines to purchase", http.StatusConflict))
	case errors.Is(err, services.ErrPricingProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", "a cart product is no longer purchasable", http.StatusConflict))
	case errors.Is(err, services.ErrPricingCurrencyMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("currency_mismatch", "cart lines must share one currency", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment session could not be created", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderRollbackFailed):
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order creation failed", http.StatusInternalServerError))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout failed", http.StatusInternalServerError))
	}
}
