package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/sellery/api/internal/domain"
)

// memoryCartRepo backs cart tests with a map keyed by user ID so the
// read-modify-write cycle in the service is observable end to end.
type memoryCartRepo struct {
	carts      map[string]domain.Cart
	upserts    int
	clearCalls int
}

func newMemoryCartRepo() *memoryCartRepo {
	return &memoryCartRepo{carts: map[string]domain.Cart{}}
}

func (m *memoryCartRepo) GetCart(_ context.Context, userID string) (domain.Cart, error) {
	cart, ok := m.carts[userID]
	if !ok {
		return domain.Cart{}, stubRepoError{msg: "cart missing", notFound: true}
	}
	return cart, nil
}

func (m *memoryCartRepo) UpsertCart(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	m.upserts++
	m.carts[cart.UserID] = cart
	return cart, nil
}

func (m *memoryCartRepo) ReplaceLines(_ context.Context, userID string, lines []domain.CartLine) (domain.Cart, error) {
	cart, ok := m.carts[userID]
	if !ok {
		return domain.Cart{}, stubRepoError{msg: "cart missing", notFound: true}
	}
	cart.Lines = lines
	m.carts[userID] = cart
	return cart, nil
}

func (m *memoryCartRepo) ClearLines(_ context.Context, userID string) error {
	m.clearCalls++
	cart, ok := m.carts[userID]
	if !ok {
		return stubRepoError{msg: "cart missing", notFound: true}
	}
	cart.Lines = nil
	m.carts[userID] = cart
	return nil
}

func newCartService(t *testing.T, carts *memoryCartRepo, products map[string]domain.Product) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Carts: carts,
		Products: &stubProductRepo{
			findFn: func(_ context.Context, id string) (domain.Product, error) {
				if p, ok := products[id]; ok {
					return p, nil
				}
				return domain.Product{}, stubRepoError{msg: "product missing", notFound: true}
			},
		},
		Clock:       func() time.Time { return time.Date(2026, 8, 4, 9, 0, 0, 0, time.UTC) },
		IDGenerator: sequentialIDs("LINE"),
	})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc
}

func TestCartServiceCreatesCartOnFirstUse(t *testing.T) {
	repo := newMemoryCartRepo()
	svc := newCartService(t, repo, catalogue())

	cart, err := svc.GetOrCreateCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if cart.UserID != "user-1" || len(cart.Lines) != 0 {
		t.Fatalf("unexpected cart %+v", cart)
	}
	if repo.upserts != 1 {
		t.Fatalf("expected one upsert got %d", repo.upserts)
	}

	if _, err := svc.GetOrCreateCart(context.Background(), "user-1"); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if repo.upserts != 1 {
		t.Fatalf("existing cart must not be rewritten, got %d upserts", repo.upserts)
	}
}

func TestCartServiceAddLineMergesQuantity(t *testing.T) {
	repo := newMemoryCartRepo()
	svc := newCartService(t, repo, catalogue())

	if _, err := svc.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ProductID: "prd_a", Quantity: 1}); err != nil {
		t.Fatalf("first add: %v", err)
	}
	cart, err := svc.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ProductID: "prd_a", Quantity: 2})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(cart.Lines) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(cart.Lines))
	}
	if cart.Lines[0].Quantity != 3 {
		t.Fatalf("expected quantity 3 got %d", cart.Lines[0].Quantity)
	}
	if cart.Currency != "USD" {
		t.Fatalf("expected USD cart got %s", cart.Currency)
	}
}

func TestCartServiceAddLineRejectsUnpublished(t *testing.T) {
	products := catalogue()
	archived := products["prd_a"]
	archived.Status = domain.ProductStatusArchived
	products["prd_a"] = archived

	svc := newCartService(t, newMemoryCartRepo(), products)

	if _, err := svc.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ProductID: "prd_a", Quantity: 1}); !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, err := svc.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ProductID: "prd_missing", Quantity: 1}); !errors.Is(err, ErrCartProductUnavailable) {
		t.Fatalf("expected unavailable for missing product, got %v", err)
	}
}

func TestCartServiceAddLineRejectsCurrencyMix(t *testing.T) {
	products := catalogue()
	eur := products["prd_b"]
	eur.Currency = "EUR"
	products["prd_b"] = eur

	svc := newCartService(t, newMemoryCartRepo(), products)

	if _, err := svc.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ProductID: "prd_a", Quantity: 1}); err != nil {
		t.Fatalf("add usd: %v", err)
	}
	if _, err := svc.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ProductID: "prd_b", Quantity: 1}); !errors.Is(err, ErrCartCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestCartServiceUpdateLineQuantity(t *testing.T) {
	repo := newMemoryCartRepo()
	svc := newCartService(t, repo, catalogue())

	cart, err := svc.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ProductID: "prd_a", Quantity: 1})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	lineID := cart.Lines[0].ID

	cart, err = svc.UpdateLineQuantity(context.Background(), UpdateCartLineCommand{UserID: "user-1", LineID: lineID, Quantity: 5})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if cart.Lines[0].Quantity != 5 {
		t.Fatalf("expected quantity 5 got %d", cart.Lines[0].Quantity)
	}

	cart, err = svc.UpdateLineQuantity(context.Background(), UpdateCartLineCommand{UserID: "user-1", LineID: lineID, Quantity: 0})
	if err != nil {
		t.Fatalf("remove via zero: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart.Lines))
	}

	if _, err := svc.UpdateLineQuantity(context.Background(), UpdateCartLineCommand{UserID: "user-1", LineID: "cli_ghost", Quantity: 1}); !errors.Is(err, ErrCartLineNotFound) {
		t.Fatalf("expected line not found, got %v", err)
	}
}

func TestCartServiceRemoveLine(t *testing.T) {
	repo := newMemoryCartRepo()
	svc := newCartService(t, repo, catalogue())

	cart, err := svc.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ProductID: "prd_a", Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	cart, err = svc.RemoveLine(context.Background(), RemoveCartLineCommand{UserID: "user-1", LineID: cart.Lines[0].ID})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart.Lines))
	}
}

func TestCartServiceClearCartToleratesMissing(t *testing.T) {
	repo := newMemoryCartRepo()
	svc := newCartService(t, repo, catalogue())

	if err := svc.ClearCart(context.Background(), "user-1"); err != nil {
		t.Fatalf("clearing an absent cart must not fail: %v", err)
	}
	if repo.clearCalls != 1 {
		t.Fatalf("expected one clear call got %d", repo.clearCalls)
	}
}

func TestCartServiceValidation(t *testing.T) {
	svc := newCartService(t, newMemoryCartRepo(), catalogue())

	if _, err := svc.GetOrCreateCart(context.Background(), " "); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.AddLine(context.Background(), AddCartLineCommand{UserID: "user-1", ProductID: "prd_a", Quantity: 0}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
	if _, err := svc.UpdateLineQuantity(context.Background(), UpdateCartLineCommand{UserID: "user-1", LineID: "cli_x", Quantity: -1}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for negative quantity, got %v", err)
	}
}
