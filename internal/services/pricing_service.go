package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals the caller provided invalid data.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingProductUnavailable indicates a referenced product is missing or
	// not purchasable.
	ErrPricingProductUnavailable = errors.New("pricing: product unavailable")
	// ErrPricingCurrencyMismatch indicates the requested lines span currencies.
	ErrPricingCurrencyMismatch = errors.New("pricing: currency mismatch")
)

// PricingServiceDeps bundles collaborators required to construct the pricing service.
type PricingServiceDeps struct {
	Products repositories.ProductRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type pricingService struct {
	products repositories.ProductRepository
	logger   func(context.Context, string, map[string]any)
}

// NewPricingService wires dependencies into a concrete PricingService implementation.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Products == nil {
		return nil, errors.New("pricing service: product repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &pricingService{
		products: deps.Products,
		logger:   logger,
	}, nil
}

// BuildOrderDraft resolves the requested lines against the catalogue and
// freezes each product's current price, title, and entitlement settings into
// an immutable draft. The read is a snapshot: later catalogue edits never
// reprice an existing draft.
func (s *pricingService) BuildOrderDraft(ctx context.Context, cmd BuildOrderDraftCommand) (OrderDraft, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return OrderDraft{}, fmt.Errorf("%w: user id is required", ErrPricingInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return OrderDraft{}, fmt.Errorf("%w: at least one line is required", ErrPricingInvalidInput)
	}

	ids := make([]string, 0, len(cmd.Lines))
	quantities := make(map[string]int, len(cmd.Lines))
	for _, line := range cmd.Lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return OrderDraft{}, fmt.Errorf("%w: product id is required", ErrPricingInvalidInput)
		}
		if line.Quantity <= 0 {
			return OrderDraft{}, fmt.Errorf("%w: quantity for product %s must be positive", ErrPricingInvalidInput, id)
		}
		if _, dup := quantities[id]; dup {
			return OrderDraft{}, fmt.Errorf("%w: product %s appears more than once", ErrPricingInvalidInput, id)
		}
		ids = append(ids, id)
		quantities[id] = line.Quantity
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return OrderDraft{}, err
	}

	draft := OrderDraft{
		UserID: userID,
		Lines:  make([]OrderDraftLine, 0, len(ids)),
	}

	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			return OrderDraft{}, fmt.Errorf("%w: product %s not found", ErrPricingProductUnavailable, id)
		}
		if product.Status != domain.ProductStatusPublished {
			return OrderDraft{}, fmt.Errorf("%w: product %s is %s", ErrPricingProductUnavailable, id, product.Status)
		}

		currency := strings.ToUpper(strings.TrimSpace(product.Currency))
		if draft.Currency == "" {
			draft.Currency = currency
		} else if draft.Currency != currency {
			return OrderDraft{}, fmt.Errorf("%w: %s vs %s", ErrPricingCurrencyMismatch, draft.Currency, currency)
		}

		quantity := quantities[id]
		line := OrderDraftLine{
			ProductID:          product.ID,
			StoreID:            product.StoreID,
			SellerID:           product.SellerID,
			ProductTitle:       product.Title,
			ProductDescription: product.Description,
			StoragePath:        product.StoragePath,
			UnitPrice:          product.Price,
			Quantity:           quantity,
			TotalPrice:         product.Price * int64(quantity),
			DownloadHours:      product.DownloadHours,
		}
		if product.MaxDownloads != nil {
			line.MaxDownloads = valuePtr(*product.MaxDownloads)
		}

		draft.Lines = append(draft.Lines, line)
		draft.TotalAmount += line.TotalPrice
	}

	return draft, nil
}
