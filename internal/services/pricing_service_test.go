package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/repositories"
)

type stubProductRepo struct {
	insertFn    func(context.Context, domain.Product) error
	updateFn    func(context.Context, domain.Product) error
	findFn      func(context.Context, string) (domain.Product, error)
	findByIDsFn func(context.Context, []string) (map[string]domain.Product, error)
	listFn      func(context.Context, repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
}

func (s *stubProductRepo) Insert(ctx context.Context, product domain.Product) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) Update(ctx context.Context, product domain.Product) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, product)
	}
	return nil
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubProductRepo) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findByIDsFn != nil {
		return s.findByIDsFn(ctx, productIDs)
	}
	return nil, errors.New("not implemented")
}

func (s *stubProductRepo) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, nil
}

func catalogue() map[string]domain.Product {
	return map[string]domain.Product{
		"prd_a": {
			ID:           "prd_a",
			SellerID:     "seller-1",
			StoreID:      "store-1",
			Title:        "Icon pack",
			Price:        500,
			Currency:     "USD",
			StoragePath:  "products/seller-1/prd_a/files/icons.zip",
			Status:       domain.ProductStatusPublished,
			MaxDownloads: valuePtr(3),
		},
		"prd_b": {
			ID:            "prd_b",
			SellerID:      "seller-2",
			StoreID:       "store-2",
			Title:         "Ebook",
			Price:         1000,
			Currency:      "USD",
			StoragePath:   "products/seller-2/prd_b/files/book.pdf",
			Status:        domain.ProductStatusPublished,
			DownloadHours: 48,
		},
	}
}

func newPricingService(t *testing.T, products map[string]domain.Product) PricingService {
	t.Helper()
	svc, err := NewPricingService(PricingServiceDeps{
		Products: &stubProductRepo{
			findByIDsFn: func(_ context.Context, ids []string) (map[string]domain.Product, error) {
				out := make(map[string]domain.Product, len(ids))
				for _, id := range ids {
					if p, ok := products[id]; ok {
						out[id] = p
					}
				}
				return out, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}
	return svc
}

func TestPricingServiceBuildsFrozenDraft(t *testing.T) {
	svc := newPricingService(t, catalogue())

	draft, err := svc.BuildOrderDraft(context.Background(), BuildOrderDraftCommand{
		UserID: "user-1",
		Lines: []DraftRequestLine{
			{ProductID: "prd_a", Quantity: 3},
			{ProductID: "prd_b", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}

	if draft.Currency != "USD" {
		t.Fatalf("expected USD got %s", draft.Currency)
	}
	if draft.TotalAmount != 2500 {
		t.Fatalf("expected total 2500 got %d", draft.TotalAmount)
	}

	var sum int64
	for _, line := range draft.Lines {
		if line.TotalPrice != line.UnitPrice*int64(line.Quantity) {
			t.Fatalf("line %s total %d != unit %d x qty %d", line.ProductID, line.TotalPrice, line.UnitPrice, line.Quantity)
		}
		sum += line.TotalPrice
	}
	if sum != draft.TotalAmount {
		t.Fatalf("line sum %d != draft total %d", sum, draft.TotalAmount)
	}

	if draft.Lines[0].ProductTitle != "Icon pack" || draft.Lines[0].StoragePath == "" {
		t.Fatalf("snapshot fields not frozen: %+v", draft.Lines[0])
	}
	if draft.Lines[0].MaxDownloads == nil || *draft.Lines[0].MaxDownloads != 3 {
		t.Fatalf("expected maxDownloads 3, got %v", draft.Lines[0].MaxDownloads)
	}
	if draft.Lines[1].DownloadHours != 48 {
		t.Fatalf("expected downloadHours 48, got %d", draft.Lines[1].DownloadHours)
	}
}

func TestPricingServiceRejectsEmptyRequest(t *testing.T) {
	svc := newPricingService(t, catalogue())

	if _, err := svc.BuildOrderDraft(context.Background(), BuildOrderDraftCommand{UserID: "user-1"}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestPricingServiceRejectsMissingProduct(t *testing.T) {
	svc := newPricingService(t, catalogue())

	if _, err := svc.BuildOrderDraft(context.Background(), BuildOrderDraftCommand{
		UserID: "user-1",
		Lines:  []DraftRequestLine{{ProductID: "prd_missing", Quantity: 1}},
	}); !errors.Is(err, ErrPricingProductUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestPricingServiceRejectsUnpublishedProduct(t *testing.T) {
	products := catalogue()
	draftProduct := products["prd_a"]
	draftProduct.Status = domain.ProductStatusDraft
	products["prd_a"] = draftProduct
	svc := newPricingService(t, products)

	if _, err := svc.BuildOrderDraft(context.Background(), BuildOrderDraftCommand{
		UserID: "user-1",
		Lines:  []DraftRequestLine{{ProductID: "prd_a", Quantity: 1}},
	}); !errors.Is(err, ErrPricingProductUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestPricingServiceRejectsCurrencyMix(t *testing.T) {
	products := catalogue()
	eur := products["prd_b"]
	eur.Currency = "EUR"
	products["prd_b"] = eur
	svc := newPricingService(t, products)

	if _, err := svc.BuildOrderDraft(context.Background(), BuildOrderDraftCommand{
		UserID: "user-1",
		Lines: []DraftRequestLine{
			{ProductID: "prd_a", Quantity: 1},
			{ProductID: "prd_b", Quantity: 1},
		},
	}); !errors.Is(err, ErrPricingCurrencyMismatch) {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestPricingServiceRejectsDuplicateAndZeroQuantity(t *testing.T) {
	svc := newPricingService(t, catalogue())

	if _, err := svc.BuildOrderDraft(context.Background(), BuildOrderDraftCommand{
		UserID: "user-1",
		Lines: []DraftRequestLine{
			{ProductID: "prd_a", Quantity: 1},
			{ProductID: "prd_a", Quantity: 2},
		},
	}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input for duplicate, got %v", err)
	}

	if _, err := svc.BuildOrderDraft(context.Background(), BuildOrderDraftCommand{
		UserID: "user-1",
		Lines:  []DraftRequestLine{{ProductID: "prd_a", Quantity: 0}},
	}); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
}
