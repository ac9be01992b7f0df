package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/platform/auth"
	"github.com/sellery/api/internal/services"
)

type stubCartService struct {
	getFn    func(ctx context.Context, userID string) (domain.Cart, error)
	addFn    func(ctx context.Context, cmd services.AddCartLineCommand) (domain.Cart, error)
	updateFn func(ctx context.Context, cmd services.UpdateCartLineCommand) (domain.Cart, error)
	removeFn func(ctx context.Context, cmd services.RemoveCartLineCommand) (domain.Cart, error)
	clearFn  func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn == nil {
		return domain.Cart{}, errors.New("unexpected GetOrCreateCart")
	}
	return s.getFn(ctx, userID)
}

func (s *stubCartService) AddLine(ctx context.Context, cmd services.AddCartLineCommand) (domain.Cart, error) {
	if s.addFn == nil {
		return domain.Cart{}, errors.New("unexpected AddLine")
	}
	return s.addFn(ctx, cmd)
}

func (s *stubCartService) UpdateLineQuantity(ctx context.Context, cmd services.UpdateCartLineCommand) (domain.Cart, error) {
	if s.updateFn == nil {
		return domain.Cart{}, errors.New("unexpected UpdateLineQuantity")
	}
	return s.updateFn(ctx, cmd)
}

func (s *stubCartService) RemoveLine(ctx context.Context, cmd services.RemoveCartLineCommand) (domain.Cart, error) {
	if s.removeFn == nil {
		return domain.Cart{}, errors.New("unexpected RemoveLine")
	}
	return s.removeFn(ctx, cmd)
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFn == nil {
		return errors.New("unexpected ClearCart")
	}
	return s.clearFn(ctx, userID)
}

var _ services.CartService = (*stubCartService)(nil)

func newCartRouter(carts services.CartService) chi.Router {
	r := chi.NewRouter()
	NewCartHandlers(nil, carts).Routes(r)
	return r
}

func authedRequest(method, target string, body *strings.Reader, identity *auth.Identity) *http.Request {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func buyerIdentity() *auth.Identity {
	return &auth.Identity{UID: "user-1", Roles: []string{auth.RoleBuyer}}
}

func TestCartGetReturnsCart(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	carts := &stubCartService{
		getFn: func(_ context.Context, userID string) (domain.Cart, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return domain.Cart{
				ID:       "user-1",
				UserID:   "user-1",
				Currency: "usd",
				Lines: []domain.CartLine{
					{ID: "line-1", ProductID: "prd_1", Quantity: 2, AddedAt: now},
				},
				UpdatedAt: now,
			}, nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, authedRequest(http.MethodGet, "/", nil, buyerIdentity()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Cart cartPayload `json:"cart"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Cart.Currency != "USD" {
		t.Fatalf("expected normalised currency USD, got %q", body.Cart.Currency)
	}
	if body.Cart.LinesCount != 1 || len(body.Cart.Lines) != 1 {
		t.Fatalf("expected one line, got %+v", body.Cart)
	}
	if body.Cart.Lines[0].ProductID != "prd_1" {
		t.Fatalf("unexpected line payload %+v", body.Cart.Lines[0])
	}
	if cc := rr.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Fatalf("expected no-store cache header, got %q", cc)
	}
}

func TestCartGetRequiresAuthentication(t *testing.T) {
	rr := httptest.NewRecorder()
	newCartRouter(&stubCartService{}).ServeHTTP(rr, authedRequest(http.MethodGet, "/", nil, nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCartAddLineForwardsCommand(t *testing.T) {
	var got services.AddCartLineCommand
	carts := &stubCartService{
		addFn: func(_ context.Context, cmd services.AddCartLineCommand) (domain.Cart, error) {
			got = cmd
			return domain.Cart{ID: "user-1", UserID: "user-1", Currency: "USD"}, nil
		},
	}

	body := strings.NewReader(`{"product_id":" prd_1 ","quantity":3}`)
	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, authedRequest(http.MethodPost, "/lines", body, buyerIdentity()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.UserID != "user-1" || got.ProductID != "prd_1" || got.Quantity != 3 {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestCartAddLineMapsUnavailableProduct(t *testing.T) {
	carts := &stubCartService{
		addFn: func(context.Context, services.AddCartLineCommand) (domain.Cart, error) {
			return domain.Cart{}, services.ErrCartProductUnavailable
		},
	}

	body := strings.NewReader(`{"product_id":"prd_gone","quantity":1}`)
	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, authedRequest(http.MethodPost, "/lines", body, buyerIdentity()))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "product_unavailable") {
		t.Fatalf("expected product_unavailable code, got %s", rr.Body.String())
	}
}

func TestCartUpdateLineUsesPathParam(t *testing.T) {
	var got services.UpdateCartLineCommand
	carts := &stubCartService{
		updateFn: func(_ context.Context, cmd services.UpdateCartLineCommand) (domain.Cart, error) {
			got = cmd
			return domain.Cart{ID: "user-1", UserID: "user-1"}, nil
		},
	}

	body := strings.NewReader(`{"quantity":5}`)
	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, authedRequest(http.MethodPatch, "/lines/line-9", body, buyerIdentity()))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.LineID != "line-9" || got.Quantity != 5 {
		t.Fatalf("unexpected command %+v", got)
	}
}

func TestCartRemoveLineMapsNotFound(t *testing.T) {
	carts := &stubCartService{
		removeFn: func(context.Context, services.RemoveCartLineCommand) (domain.Cart, error) {
			return domain.Cart{}, services.ErrCartLineNotFound
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, authedRequest(http.MethodDelete, "/lines/ghost", nil, buyerIdentity()))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCartClearReturnsNoContent(t *testing.T) {
	cleared := false
	carts := &stubCartService{
		clearFn: func(_ context.Context, userID string) error {
			cleared = true
			if userID != "user-1" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return nil
		},
	}

	rr := httptest.NewRecorder()
	newCartRouter(carts).ServeHTTP(rr, authedRequest(http.MethodDelete, "/", nil, buyerIdentity()))

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected ClearCart to be invoked")
	}
}
