package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status.changed"
	orderEventCompleted      = "order.completed"
	orderEventRollbackFailed = "order.rollback.failed"

	orderIDPrefix     = "ord_"
	orderLineIDPrefix = "oli_"

	orderNumberPrefix       = "ORD"
	orderNumberSuffixLength = 6

	rollbackFailedFlag = "rollback_failed"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderRollbackFailed indicates order creation failed and the
	// compensating delete of the header also failed. The order is flagged for
	// reconciliation.
	ErrOrderRollbackFailed = errors.New("order: creation failed and rollback incomplete")
)

// Every non-terminal state may fall to cancelled or refunded: a refund can
// arrive while payment is still settling.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusProcessing: {domain.OrderStatusCompleted, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusCompleted:  {domain.OrderStatusCancelled, domain.OrderStatusRefunded},
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Lines       repositories.OrderLineRepository
	Analytics   AnalyticsService
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	lines      repositories.OrderLineRepository
	analytics  AnalyticsService
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Lines == nil {
		return nil, errors.New("order service: order line repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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

	return &orderService{
		orders:     deps.Orders,
		lines:      deps.Lines,
		analytics:  deps.Analytics,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

// CreateOrder persists the header and all lines from a priced draft. The
// header insert reserves the order number; a duplicate number is retried once
// with a fresh one. When line insertion fails after the header landed, the
// header is deleted again so no partial aggregate remains.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	draft := cmd.Draft
	if len(draft.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: draft must contain at least one line", ErrOrderInvalidInput)
	}
	userID := strings.TrimSpace(draft.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: draft user id is required", ErrOrderInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(draft.Currency))
	if currency == "" {
		return Order{}, fmt.Errorf("%w: draft currency is required", ErrOrderInvalidInput)
	}

	var lineTotal int64
	for _, line := range draft.Lines {
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: line quantity must be positive", ErrOrderInvalidInput)
		}
		if line.TotalPrice != line.UnitPrice*int64(line.Quantity) {
			return Order{}, fmt.Errorf("%w: line total does not match unit price", ErrOrderInvalidInput)
		}
		lineTotal += line.TotalPrice
	}
	if draft.TotalAmount != lineTotal {
		return Order{}, fmt.Errorf("%w: order total %d does not match line sum %d", ErrOrderInvalidInput, draft.TotalAmount, lineTotal)
	}

	now := s.now()
	order := Order{
		ID:            s.nextOrderID(),
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		Currency:      currency,
		TotalAmount:   draft.TotalAmount,
		PaymentMethod: strings.TrimSpace(cmd.PaymentMethod),
		Notes:         strings.TrimSpace(cmd.Notes),
		Metadata:      cloneMap(cmd.Metadata),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	lines := make([]OrderLine, 0, len(draft.Lines))
	for _, dl := range draft.Lines {
		line := OrderLine{
			ID:                 s.nextOrderLineID(),
			OrderID:            order.ID,
			ProductID:          dl.ProductID,
			StoreID:            dl.StoreID,
			SellerID:           dl.SellerID,
			ProductTitle:       dl.ProductTitle,
			ProductDescription: dl.ProductDescription,
			StoragePath:        dl.StoragePath,
			UnitPrice:          dl.UnitPrice,
			Quantity:           dl.Quantity,
			TotalPrice:         dl.TotalPrice,
			Currency:           currency,
			DownloadHours:      dl.DownloadHours,
			CreatedAt:          now,
		}
		if dl.MaxDownloads != nil {
			line.MaxDownloads = valuePtr(*dl.MaxDownloads)
		}
		lines = append(lines, line)
	}

	// Header and lines go through the unit of work so a transactional backend
	// can commit the aggregate atomically. The compensating delete stays for
	// backends where the two writes remain separate documents.
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.insertHeaderWithRetry(ctx, &order, now); err != nil {
			return err
		}

		if err := s.lines.InsertMany(ctx, order.ID, lines); err != nil {
			lineErr := s.mapRepositoryError(err)
			if rollbackErr := s.orders.Delete(ctx, order.ID); rollbackErr != nil {
				s.logger(ctx, "order.create.rollback.failed", map[string]any{
					"order": order.ID,
					"cause": lineErr.Error(),
					"error": rollbackErr.Error(),
				})
				if flagErr := s.orders.SetFlag(ctx, order.ID, rollbackFailedFlag, true); flagErr != nil {
					s.logger(ctx, "order.create.flag.failed", map[string]any{
						"order": order.ID,
						"error": flagErr.Error(),
					})
				}
				s.publishEvent(ctx, OrderEvent{
					Type:        orderEventRollbackFailed,
					OrderID:     order.ID,
					OrderNumber: order.Number,
					ActorID:     cmd.ActorID,
					OccurredAt:  s.now(),
				})
				return fmt.Errorf("%w: %v", ErrOrderRollbackFailed, lineErr)
			}
			return lineErr
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	order.Lines = lines

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: order.Status,
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata:      maps.Clone(order.Metadata),
	})

	return order, nil
}

// insertHeaderWithRetry inserts the order header, regenerating the order
// number once if the first reservation collides.
func (s *orderService) insertHeaderWithRetry(ctx context.Context, order *Order, now time.Time) error {
	for attempt := 0; attempt < 2; attempt++ {
		order.Number = s.generateOrderNumber(now)
		err := s.orders.Insert(ctx, *order)
		if err == nil {
			return nil
		}

		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() && attempt == 0 {
			s.logger(ctx, "order.number.collision", map[string]any{
				"order":  order.ID,
				"number": order.Number,
			})
			continue
		}
		return s.mapRepositoryError(err)
	}
	return fmt.Errorf("%w: order number collision persisted across retry", ErrOrderConflict)
}

func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if owner := strings.TrimSpace(cmd.UserID); owner != "" && order.UserID != owner {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}

	if cmd.IncludeLines {
		lines, err := s.lines.ListByOrder(ctx, orderID)
		if err != nil {
			return Order{}, s.mapRepositoryError(err)
		}
		order.Lines = lines
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) ListRollbackFailures(ctx context.Context, pager Pagination) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, OrderListFilter{
		Flag:       rollbackFailedFlag,
		Pagination: pager,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// AdvanceStatus moves the order through its lifecycle. The mutation runs
// inside the repository transaction so the status check and write are atomic;
// requesting the status the order already has is a successful no-op.
func (s *orderService) AdvanceStatus(ctx context.Context, cmd AdvanceStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if strings.TrimSpace(string(target)) == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	now := s.now()
	var prevStatus domain.OrderStatus
	noop := false

	order, err := s.orders.UpdateStatus(ctx, orderID, func(current domain.Order) (domain.Order, error) {
		prevStatus = current.Status

		if cmd.ExpectedStatus != nil && current.Status != *cmd.ExpectedStatus {
			return domain.Order{}, fmt.Errorf("%w: expected status %q but was %q", ErrOrderConflict, *cmd.ExpectedStatus, current.Status)
		}

		if current.Status == target {
			noop = true
			return current, nil
		}

		if !canTransition(current.Status, target) {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderInvalidState, current.Status, target)
		}

		current.Status = target
		current.UpdatedAt = now

		switch target {
		case domain.OrderStatusProcessing:
			if method := strings.TrimSpace(cmd.PaymentMethod); method != "" {
				current.PaymentMethod = method
			}
			if txn := strings.TrimSpace(cmd.TransactionID); txn != "" {
				current.PaymentTransactionID = txn
			}
		case domain.OrderStatusCompleted:
			current.PaymentCompletedAt = valuePtr(now)
			if txn := strings.TrimSpace(cmd.TransactionID); txn != "" {
				current.PaymentTransactionID = txn
			}
		case domain.OrderStatusCancelled, domain.OrderStatusRefunded:
			if reason := strings.TrimSpace(cmd.Reason); reason != "" {
				current.Metadata = ensureMap(current.Metadata)
				current.Metadata["statusReason"] = reason
			}
		}

		return current, nil
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if noop {
		return order, nil
	}

	metadata := cloneMap(cmd.Metadata)
	if reason := strings.TrimSpace(cmd.Reason); reason != "" {
		metadata = ensureMap(metadata)
		metadata["reason"] = reason
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: prevStatus,
		CurrentStatus:  order.Status,
		ActorID:        strings.TrimSpace(cmd.ActorID),
		OccurredAt:     now,
		Metadata:       metadata,
	})

	if order.Status == domain.OrderStatusCompleted {
		s.recordCompletion(ctx, order, cmd.ActorID, now)
	}

	return order, nil
}

// recordCompletion appends ledger entries and publishes the completion event.
// Both are best effort: the ledger write is idempotent and the webhook that
// drove the completion will retry, so a failure here never unwinds the status
// change.
func (s *orderService) recordCompletion(ctx context.Context, order Order, actorID string, now time.Time) {
	if s.analytics != nil {
		lines, err := s.lines.ListByOrder(ctx, order.ID)
		if err != nil {
			s.logger(ctx, "order.completion.lines.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		} else if err := s.analytics.RecordSale(ctx, RecordSaleCommand{
			Order:       order,
			Lines:       lines,
			BuyerLocale: metadataString(order.Metadata, "buyerLocale"),
		}); err != nil {
			s.logger(ctx, "order.completion.ledger.failed", map[string]any{
				"order": order.ID,
				"error": err.Error(),
			})
		}
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCompleted,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: order.Status,
		ActorID:       strings.TrimSpace(actorID),
		OccurredAt:    now,
	})
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	// Errors raised inside the mutation callback pass through untouched.
	if errors.Is(err, ErrOrderConflict) || errors.Is(err, ErrOrderInvalidState) || errors.Is(err, ErrOrderInvalidInput) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

// generateOrderNumber derives a human-facing number from the creation instant
// plus a random suffix, e.g. ORD-1756380000000-K4ZT2Q. The suffix reuses the
// entropy tail of a ULID, so it stays within Crockford's uppercase alphabet.
func (s *orderService) generateOrderNumber(now time.Time) string {
	id := s.newID()
	suffix := id
	if len(id) > orderNumberSuffixLength {
		suffix = id[len(id)-orderNumberSuffixLength:]
	}
	return fmt.Sprintf("%s-%d-%s", orderNumberPrefix, now.UnixMilli(), strings.ToUpper(suffix))
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) nextOrderLineID() string {
	return orderLineIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": string(event.CurrentStatus),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if value, ok := metadata[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

func ensureMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return src
}

func valuePtr[T any](v T) *T {
	return &v
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
