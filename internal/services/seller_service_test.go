package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/repositories"
)

func TestSellerServiceListSoldLines(t *testing.T) {
	var captured repositories.SellerLineFilter
	lines := &stubOrderLineRepo{
		listBySellerFn: func(_ context.Context, filter repositories.SellerLineFilter) (domain.CursorPage[domain.OrderLine], error) {
			captured = filter
			return domain.CursorPage[domain.OrderLine]{
				Items: []domain.OrderLine{{ID: "oli_1", SellerID: filter.SellerID}},
			}, nil
		},
	}

	svc, err := NewSellerService(SellerServiceDeps{Lines: lines})
	if err != nil {
		t.Fatalf("new seller service: %v", err)
	}

	page, err := svc.ListSoldLines(context.Background(), SellerSalesQuery{
		SellerID:   " seller-1 ",
		StoreID:    "store-1",
		Pagination: Pagination{PageSize: 20},
	})
	if err != nil {
		t.Fatalf("list sold lines: %v", err)
	}

	if captured.SellerID != "seller-1" || captured.StoreID != "store-1" || captured.Pagination.PageSize != 20 {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if len(page.Items) != 1 || page.Items[0].SellerID != "seller-1" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestSellerServiceRequiresSellerID(t *testing.T) {
	svc, err := NewSellerService(SellerServiceDeps{Lines: &stubOrderLineRepo{}})
	if err != nil {
		t.Fatalf("new seller service: %v", err)
	}

	if _, err := svc.ListSoldLines(context.Background(), SellerSalesQuery{}); !errors.Is(err, ErrSellerInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
