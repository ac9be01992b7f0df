package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/repositories"
)

const cartLineIDPrefix = "cli_"

// maxCartLines keeps cart documents small enough for a single read.
const maxCartLines = 100

var (
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartLineNotFound indicates the referenced cart line does not exist.
	ErrCartLineNotFound = errors.New("cart: line not found")
	// ErrCartProductUnavailable indicates the product cannot be added.
	ErrCartProductUnavailable = errors.New("cart: product unavailable")
	// ErrCartCurrencyMismatch indicates the product's currency differs from the cart's.
	ErrCartCurrencyMismatch = errors.New("cart: currency mismatch")
	// ErrCartFull indicates the cart reached its line capacity.
	ErrCartFull = errors.New("cart: too many lines")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// GetOrCreateCart returns the buyer's cart, creating an empty one on first use.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, uid)
	if err == nil {
		return cart, nil
	}

	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		return Cart{}, err
	}

	now := s.clock()
	return s.carts.UpsertCart(ctx, Cart{
		ID:        uid,
		UserID:    uid,
		Lines:     []CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// AddLine puts a published product into the cart. Adding a product that is
// already present bumps its quantity instead of duplicating the line.
func (s *cartService) AddLine(ctx context.Context, cmd AddCartLineCommand) (Cart, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Cart{}, fmt.Errorf("%w: product %s not found", ErrCartProductUnavailable, productID)
		}
		return Cart{}, err
	}
	if product.Status != domain.ProductStatusPublished {
		return Cart{}, fmt.Errorf("%w: product %s is %s", ErrCartProductUnavailable, productID, product.Status)
	}

	currency := strings.ToUpper(strings.TrimSpace(product.Currency))
	if cart.Currency != "" && len(cart.Lines) > 0 && cart.Currency != currency {
		return Cart{}, fmt.Errorf("%w: cart is %s, product is %s", ErrCartCurrencyMismatch, cart.Currency, currency)
	}

	lines := append([]CartLine(nil), cart.Lines...)
	merged := false
	for i, line := range lines {
		if line.ProductID == productID {
			lines[i].Quantity += cmd.Quantity
			merged = true
			break
		}
	}
	if !merged {
		if len(lines) >= maxCartLines {
			return Cart{}, fmt.Errorf("%w: limit is %d", ErrCartFull, maxCartLines)
		}
		lines = append(lines, CartLine{
			ID:        cartLineIDPrefix + s.newID(),
			ProductID: productID,
			Quantity:  cmd.Quantity,
			AddedAt:   s.clock(),
		})
	}

	cart.Currency = currency
	cart.Lines = lines
	return s.carts.UpsertCart(ctx, cart)
}

// UpdateLineQuantity sets the quantity of an existing line. Zero removes it.
func (s *cartService) UpdateLineQuantity(ctx context.Context, cmd UpdateCartLineCommand) (Cart, error) {
	if cmd.Quantity < 0 {
		return Cart{}, fmt.Errorf("%w: quantity cannot be negative", ErrCartInvalidInput)
	}
	lineID := strings.TrimSpace(cmd.LineID)
	if lineID == "" {
		return Cart{}, fmt.Errorf("%w: line id is required", ErrCartInvalidInput)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	lines := make([]CartLine, 0, len(cart.Lines))
	found := false
	for _, line := range cart.Lines {
		if line.ID != lineID {
			lines = append(lines, line)
			continue
		}
		found = true
		if cmd.Quantity == 0 {
			continue
		}
		line.Quantity = cmd.Quantity
		lines = append(lines, line)
	}
	if !found {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartLineNotFound, lineID)
	}

	return s.carts.ReplaceLines(ctx, cart.UserID, lines)
}

// RemoveLine drops one line from the cart.
func (s *cartService) RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (Cart, error) {
	return s.UpdateLineQuantity(ctx, UpdateCartLineCommand{
		UserID:   cmd.UserID,
		LineID:   cmd.LineID,
		Quantity: 0,
	})
}

// ClearCart empties the cart after a successful checkout.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	err := s.carts.ClearLines(ctx, uid)
	if err == nil {
		return nil
	}

	// Clearing a cart that never existed is not an error.
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return nil
	}
	return err
}
