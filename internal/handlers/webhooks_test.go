package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/services"
)

func newWebhookRouter(orders services.OrderService) chi.Router {
	r := chi.NewRouter()
	NewPaymentWebhookHandlers(orders).Routes(r)
	return r
}

func TestPaymentWebhookCapturedMovesOrderToProcessing(t *testing.T) {
	var got services.AdvanceStatusCommand
	orders := &stubOrderService{
		advanceFn: func(_ context.Context, cmd services.AdvanceStatusCommand) (domain.Order, error) {
			got = cmd
			return domain.Order{ID: cmd.OrderID, Status: cmd.TargetStatus}, nil
		},
	}

	body := strings.NewReader(`{
		"type": "payment.captured",
		"order_id": "ord_1",
		"transaction_id": "txn_9",
		"payment_method": "stripe"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/payments", body)
	rr := httptest.NewRecorder()
	newWebhookRouter(orders).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderID != "ord_1" || got.TargetStatus != domain.OrderStatusProcessing {
		t.Fatalf("unexpected command %+v", got)
	}
	if got.TransactionID != "txn_9" || got.PaymentMethod != "stripe" || got.ActorID != webhookActorID {
		t.Fatalf("unexpected command %+v", got)
	}
	if !strings.Contains(rr.Body.String(), `"status":"processing"`) {
		t.Fatalf("expected status in response, got %s", rr.Body.String())
	}
}

func TestPaymentWebhookEventMapping(t *testing.T) {
	cases := []struct {
		event  string
		target domain.OrderStatus
	}{
		{"payment.settled", domain.OrderStatusCompleted},
		{"payment.failed", domain.OrderStatusCancelled},
		{"payment.refunded", domain.OrderStatusRefunded},
	}

	for _, tc := range cases {
		var got services.AdvanceStatusCommand
		orders := &stubOrderService{
			advanceFn: func(_ context.Context, cmd services.AdvanceStatusCommand) (domain.Order, error) {
				got = cmd
				return domain.Order{ID: cmd.OrderID, Status: cmd.TargetStatus}, nil
			},
		}

		body := strings.NewReader(`{"type":"` + tc.event + `","order_id":"ord_1"}`)
		rr := httptest.NewRecorder()
		newWebhookRouter(orders).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments", body))

		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.event, rr.Code)
		}
		if got.TargetStatus != tc.target {
			t.Fatalf("%s: expected target %s, got %s", tc.event, tc.target, got.TargetStatus)
		}
	}
}

func TestPaymentWebhookIgnoresUnknownEvents(t *testing.T) {
	orders := &stubOrderService{}

	body := strings.NewReader(`{"type":"payment.disputed","order_id":"ord_1"}`)
	rr := httptest.NewRecorder()
	newWebhookRouter(orders).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ignored":true`) {
		t.Fatalf("expected ignored flag, got %s", rr.Body.String())
	}
}

func TestPaymentWebhookRequiresOrderID(t *testing.T) {
	body := strings.NewReader(`{"type":"payment.captured"}`)
	rr := httptest.NewRecorder()
	newWebhookRouter(&stubOrderService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestPaymentWebhookMapsIllegalTransition(t *testing.T) {
	orders := &stubOrderService{
		advanceFn: func(context.Context, services.AdvanceStatusCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderInvalidState
		},
	}

	body := strings.NewReader(`{"type":"payment.settled","order_id":"ord_1"}`)
	rr := httptest.NewRecorder()
	newWebhookRouter(orders).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/payments", body))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}
