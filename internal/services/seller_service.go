package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/repositories"
)

// ErrSellerInvalidInput signals the caller provided invalid data.
var ErrSellerInvalidInput = errors.New("seller: invalid input")

// SellerServiceDeps bundles collaborators required to construct the seller service.
type SellerServiceDeps struct {
	Lines  repositories.OrderLineRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type sellerService struct {
	lines  repositories.OrderLineRepository
	logger func(context.Context, string, map[string]any)
}

// NewSellerService wires dependencies into a concrete SellerService implementation.
func NewSellerService(deps SellerServiceDeps) (SellerService, error) {
	if deps.Lines == nil {
		return nil, errors.New("seller service: order line repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &sellerService{
		lines:  deps.Lines,
		logger: logger,
	}, nil
}

// ListSoldLines pages through the seller's sold order lines, newest first.
func (s *sellerService) ListSoldLines(ctx context.Context, cmd SellerSalesQuery) (domain.CursorPage[OrderLine], error) {
	seller := strings.TrimSpace(cmd.SellerID)
	if seller == "" {
		return domain.CursorPage[OrderLine]{}, fmt.Errorf("%w: seller id is required", ErrSellerInvalidInput)
	}

	return s.lines.ListBySeller(ctx, repositories.SellerLineFilter{
		SellerID:   seller,
		StoreID:    strings.TrimSpace(cmd.StoreID),
		Pagination: cmd.Pagination,
	})
}
