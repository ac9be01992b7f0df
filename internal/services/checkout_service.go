package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/payments"
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutEmptyCart indicates there is nothing to buy.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	// The freshly created order is cancelled before this is returned.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment session failed")
)

// CheckoutPaymentProvider creates PSP checkout sessions. *payments.Manager
// satisfies it.
type CheckoutPaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Carts      CartService
	Pricing    PricingService
	Orders     OrderService
	Payments   CheckoutPaymentProvider
	SuccessURL string
	CancelURL  string
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts      CartService
	pricing    PricingService
	orders     OrderService
	payments   CheckoutPaymentProvider
	successURL string
	cancelURL  string
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:      deps.Carts,
		pricing:    deps.Pricing,
		orders:     deps.Orders,
		payments:   deps.Payments,
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Checkout turns the buyer's cart into a pending order and a PSP session. The
// cart is cleared only after both succeed; a PSP failure cancels the order so
// nothing half-created survives.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}

	cart, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if len(cart.Lines) == 0 {
		return CheckoutResult{}, ErrCheckoutEmptyCart
	}

	draftLines := make([]DraftRequestLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		draftLines = append(draftLines, DraftRequestLine{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
		})
	}

	draft, err := s.pricing.BuildOrderDraft(ctx, BuildOrderDraftCommand{
		UserID: userID,
		Lines:  draftLines,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	metadata := cloneMap(cmd.Metadata)
	if locale := strings.TrimSpace(cmd.BuyerLocale); locale != "" {
		metadata = ensureMap(metadata)
		metadata["buyerLocale"] = locale
	}

	order, err := s.orders.CreateOrder(ctx, CreateOrderCommand{
		Draft:         draft,
		ActorID:       userID,
		PaymentMethod: cmd.PaymentMethod,
		Notes:         cmd.Notes,
		Metadata:      metadata,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{
		PreferredProvider: cmd.PaymentMethod,
		Currency:          order.Currency,
	}, s.sessionRequest(order, cmd.BuyerLocale))
	if err != nil {
		s.cancelOrder(ctx, order.ID, userID, "payment session creation failed")
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	if err := s.carts.ClearCart(ctx, userID); err != nil {
		// The order stands; an uncleared cart only means stale lines in the UI.
		s.logger(ctx, "checkout.cart.clear.failed", map[string]any{
			"order": order.ID,
			"user":  userID,
			"error": err.Error(),
		})
	}

	return CheckoutResult{
		Order:               order,
		PaymentIntentID:     session.IntentID,
		PaymentClientSecret: session.ClientSecret,
	}, nil
}

func (s *checkoutService) sessionRequest(order Order, locale string) payments.CheckoutSessionRequest {
	items := make([]payments.CheckoutLineItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		items = append(items, payments.CheckoutLineItem{
			Name:        line.ProductTitle,
			Description: line.ProductDescription,
			SKU:         line.ProductID,
			Quantity:    int64(line.Quantity),
			Amount:      line.UnitPrice,
			Currency:    line.Currency,
		})
	}

	return payments.CheckoutSessionRequest{
		Amount:     order.TotalAmount,
		Currency:   order.Currency,
		CustomerID: order.UserID,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
		Locale:     strings.TrimSpace(locale),
		Metadata: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.Number,
		},
		IdempotencyKey: order.ID,
		Items:          items,
	}
}

func (s *checkoutService) cancelOrder(ctx context.Context, orderID, actorID, reason string) {
	if _, err := s.orders.AdvanceStatus(ctx, AdvanceStatusCommand{
		OrderID:        orderID,
		TargetStatus:   domain.OrderStatusCancelled,
		ActorID:        actorID,
		Reason:         reason,
		ExpectedStatus: valuePtr(domain.OrderStatusPending),
	}); err != nil {
		s.logger(ctx, "checkout.order.cancel.failed", map[string]any{
			"order": orderID,
			"error": err.Error(),
		})
	}
}
