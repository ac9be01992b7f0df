package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/services"
)

type stubCheckoutService struct {
	checkoutFn func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.checkoutFn == nil {
		return services.CheckoutResult{}, errors.New("unexpected Checkout")
	}
	return s.checkoutFn(ctx, cmd)
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)

func newCheckoutRouter(checkout services.CheckoutService) chi.Router {
	r := chi.NewRouter()
	NewCheckoutHandlers(nil, checkout).Routes(r)
	return r
}

func TestCheckoutCreatesOrder(t *testing.T) {
	var got services.CheckoutCommand
	checkout := &stubCheckoutService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			got = cmd
			return services.CheckoutResult{
				Order: domain.Order{
					ID:          "ord_1",
					Number:      "ORD-1-ABCDEF",
					UserID:      cmd.UserID,
					Status:      domain.OrderStatusPending,
					Currency:    "USD",
					TotalAmount: 2500,
				},
				PaymentIntentID:     "cs_123",
				PaymentClientSecret: "secret_123",
			}, nil
		},
	}

	body := strings.NewReader(`{"payment_method":"stripe","buyer_locale":"pt-BR","notes":"gift"}`)
	rr := httptest.NewRecorder()
	newCheckoutRouter(checkout).ServeHTTP(rr, authedRequest(http.MethodPost, "/", body, buyerIdentity()))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.UserID != "user-1" || got.PaymentMethod != "stripe" || got.BuyerLocale != "pt-BR" || got.Notes != "gift" {
		t.Fatalf("unexpected command %+v", got)
	}

	var resp checkoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Order.ID != "ord_1" || resp.Order.Status != string(domain.OrderStatusPending) {
		t.Fatalf("unexpected order payload %+v", resp.Order)
	}
	if resp.PaymentIntentID != "cs_123" || resp.PaymentClientSecret != "secret_123" {
		t.Fatalf("unexpected payment hand-off %+v", resp)
	}
}

func TestCheckoutFallsBackToAcceptLanguage(t *testing.T) {
	var got services.CheckoutCommand
	checkout := &stubCheckoutService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			got = cmd
			return services.CheckoutResult{Order: domain.Order{ID: "ord_1"}}, nil
		},
	}

	body := strings.NewReader(`{"payment_method":"stripe"}`)
	req := authedRequest(http.MethodPost, "/", body, buyerIdentity())
	req.Header.Set("Accept-Language", "de-DE;q=0.9, en;q=0.8")
	rr := httptest.NewRecorder()
	newCheckoutRouter(checkout).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.BuyerLocale != "de-DE" {
		t.Fatalf("expected locale from Accept-Language, got %q", got.BuyerLocale)
	}
}

func TestCheckoutMapsEmptyCart(t *testing.T) {
	checkout := &stubCheckoutService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrCheckoutEmptyCart
		},
	}

	body := strings.NewReader(`{"payment_method":"stripe"}`)
	rr := httptest.NewRecorder()
	newCheckoutRouter(checkout).ServeHTTP(rr, authedRequest(http.MethodPost, "/", body, buyerIdentity()))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "cart_empty") {
		t.Fatalf("expected cart_empty code, got %s", rr.Body.String())
	}
}

func TestCheckoutMapsPaymentFailure(t *testing.T) {
	checkout := &stubCheckoutService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrCheckoutPaymentFailed
		},
	}

	body := strings.NewReader(`{"payment_method":"stripe"}`)
	rr := httptest.NewRecorder()
	newCheckoutRouter(checkout).ServeHTTP(rr, authedRequest(http.MethodPost, "/", body, buyerIdentity()))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestCheckoutRequiresBody(t *testing.T) {
	rr := httptest.NewRecorder()
	newCheckoutRouter(&stubCheckoutService{}).ServeHTTP(rr, authedRequest(http.MethodPost, "/", strings.NewReader(""), buyerIdentity()))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
