package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/repositories"
)

type stubRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return e.msg }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return e.conflict }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepo struct {
	insertFn       func(context.Context, domain.Order) error
	deleteFn       func(context.Context, string) error
	findFn         func(context.Context, string) (domain.Order, error)
	findByNumberFn func(context.Context, string) (domain.Order, error)
	listFn         func(context.Context, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	updateStatusFn func(context.Context, string, repositories.OrderStatusMutation) (domain.Order, error)
	setFlagFn      func(context.Context, string, string, any) error
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Delete(ctx context.Context, orderID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, orderID)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) FindByNumber(ctx context.Context, number string) (domain.Order, error) {
	if s.findByNumberFn != nil {
		return s.findByNumberFn(ctx, number)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, orderID string, mutate repositories.OrderStatusMutation) (domain.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, orderID, mutate)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) SetFlag(ctx context.Context, orderID, key string, value any) error {
	if s.setFlagFn != nil {
		return s.setFlagFn(ctx, orderID, key, value)
	}
	return nil
}

type stubOrderLineRepo struct {
	insertManyFn   func(context.Context, string, []domain.OrderLine) error
	findFn         func(context.Context, string) (domain.OrderLine, error)
	listByOrderFn  func(context.Context, string) ([]domain.OrderLine, error)
	listBySellerFn func(context.Context, repositories.SellerLineFilter) (domain.CursorPage[domain.OrderLine], error)
	setURLFn       func(context.Context, string, string, time.Time) error
	incrementFn    func(context.Context, string) (domain.OrderLine, error)
}

func (s *stubOrderLineRepo) InsertMany(ctx context.Context, orderID string, lines []domain.OrderLine) error {
	if s.insertManyFn != nil {
		return s.insertManyFn(ctx, orderID, lines)
	}
	return nil
}

func (s *stubOrderLineRepo) FindByID(ctx context.Context, lineID string) (domain.OrderLine, error) {
	if s.findFn != nil {
		return s.findFn(ctx, lineID)
	}
	return domain.OrderLine{}, errors.New("not implemented")
}

func (s *stubOrderLineRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	if s.listByOrderFn != nil {
		return s.listByOrderFn(ctx, orderID)
	}
	return nil, nil
}

func (s *stubOrderLineRepo) ListBySeller(ctx context.Context, filter repositories.SellerLineFilter) (domain.CursorPage[domain.OrderLine], error) {
	if s.listBySellerFn != nil {
		return s.listBySellerFn(ctx, filter)
	}
	return domain.CursorPage[domain.OrderLine]{}, nil
}

func (s *stubOrderLineRepo) SetDownloadURL(ctx context.Context, lineID, url string, expiresAt time.Time) error {
	if s.setURLFn != nil {
		return s.setURLFn(ctx, lineID, url, expiresAt)
	}
	return nil
}

func (s *stubOrderLineRepo) IncrementDownloadCount(ctx context.Context, lineID string) (domain.OrderLine, error) {
	if s.incrementFn != nil {
		return s.incrementFn(ctx, lineID)
	}
	return domain.OrderLine{}, errors.New("not implemented")
}

type stubAnalyticsService struct {
	recordFn func(context.Context, RecordSaleCommand) error
}

func (s *stubAnalyticsService) RecordSale(ctx context.Context, cmd RecordSaleCommand) error {
	if s.recordFn != nil {
		return s.recordFn(ctx, cmd)
	}
	return nil
}

func (s *stubAnalyticsService) ListSellerSales(context.Context, string, Pagination) (domain.CursorPage[SalesLedgerEntry], error) {
	return domain.CursorPage[SalesLedgerEntry]{}, errors.New("not implemented")
}

func (s *stubAnalyticsService) SellerSummary(context.Context, string) (SalesSummary, error) {
	return SalesSummary{}, errors.New("not implemented")
}

type captureOrderEvents struct {
	events []OrderEvent
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return nil
}

type stubUnitOfWork struct {
	calls int
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	s.calls++
	return fn(ctx)
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%08d", prefix, n)
	}
}

func twoLineDraft() OrderDraft {
	return OrderDraft{
		UserID:      "user-1",
		Currency:    "USD",
		TotalAmount: 2500,
		Lines: []OrderDraftLine{
			{
				ProductID:    "prd_a",
				SellerID:     "seller-1",
				StoreID:      "store-1",
				ProductTitle: "Icon pack",
				StoragePath:  "products/seller-1/prd_a/files/icons.zip",
				UnitPrice:    500,
				Quantity:     3,
				TotalPrice:   1500,
			},
			{
				ProductID:    "prd_b",
				SellerID:     "seller-2",
				StoreID:      "store-2",
				ProductTitle: "Ebook",
				StoragePath:  "products/seller-2/prd_b/files/book.pdf",
				UnitPrice:    1000,
				Quantity:     1,
				TotalPrice:   1000,
			},
		},
	}
}

func TestOrderServiceCreateOrder(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC)
	events := &captureOrderEvents{}

	var inserted []domain.Order
	orderRepo := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = append(inserted, order)
			return nil
		},
	}

	var insertedLines []domain.OrderLine
	lineRepo := &stubOrderLineRepo{
		insertManyFn: func(_ context.Context, orderID string, lines []domain.OrderLine) error {
			for _, line := range lines {
				if line.OrderID != orderID {
					t.Fatalf("line %s carries order %s, want %s", line.ID, line.OrderID, orderID)
				}
			}
			insertedLines = append(insertedLines, lines...)
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      orderRepo,
		Lines:       lineRepo,
		Clock:       func() time.Time { return now },
		IDGenerator: sequentialIDs("TESTID"),
		Events:      events,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	order, err := svc.CreateOrder(ctx, CreateOrderCommand{
		Draft:   twoLineDraft(),
		ActorID: "user-1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("unexpected order id %s", order.ID)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected status pending got %s", order.Status)
	}
	wantNumberPrefix := fmt.Sprintf("ORD-%d-", now.UnixMilli())
	if !strings.HasPrefix(order.Number, wantNumberPrefix) {
		t.Fatalf("unexpected order number %s", order.Number)
	}
	if len(order.Number) != len(wantNumberPrefix)+6 {
		t.Fatalf("expected 6-char suffix in %s", order.Number)
	}
	if order.TotalAmount != 2500 {
		t.Fatalf("expected total 2500 got %d", order.TotalAmount)
	}

	var lineSum int64
	for _, line := range insertedLines {
		lineSum += line.TotalPrice
		if !strings.HasPrefix(line.ID, "oli_") {
			t.Fatalf("unexpected line id %s", line.ID)
		}
		if line.Currency != "USD" {
			t.Fatalf("expected line currency USD got %s", line.Currency)
		}
	}
	if lineSum != order.TotalAmount {
		t.Fatalf("line sum %d does not equal order total %d", lineSum, order.TotalAmount)
	}

	if len(inserted) != 1 {
		t.Fatalf("expected 1 inserted header got %d", len(inserted))
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventCreated {
		t.Fatalf("expected order.created event, got %+v", events.events)
	}
}

func TestOrderServiceCreateOrderGroupsWritesInUnitOfWork(t *testing.T) {
	uow := &stubUnitOfWork{}
	var headerInserted, linesInserted bool
	orderRepo := &stubOrderRepo{
		insertFn: func(context.Context, domain.Order) error {
			if uow.calls == 0 {
				t.Fatalf("header inserted outside the unit of work")
			}
			headerInserted = true
			return nil
		},
	}
	lineRepo := &stubOrderLineRepo{
		insertManyFn: func(context.Context, string, []domain.OrderLine) error {
			if uow.calls == 0 {
				t.Fatalf("lines inserted outside the unit of work")
			}
			linesInserted = true
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:     orderRepo,
		Lines:      lineRepo,
		UnitOfWork: uow,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.CreateOrder(context.Background(), CreateOrderCommand{Draft: twoLineDraft()}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if uow.calls != 1 {
		t.Fatalf("expected one unit of work invocation got %d", uow.calls)
	}
	if !headerInserted || !linesInserted {
		t.Fatalf("expected header and lines written, got header=%t lines=%t", headerInserted, linesInserted)
	}
}

func TestOrderServiceCreateOrderValidation(t *testing.T) {
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: &stubOrderRepo{},
		Lines:  &stubOrderLineRepo{},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.CreateOrder(context.Background(), CreateOrderCommand{Draft: OrderDraft{UserID: "user-1", Currency: "USD"}}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for empty draft, got %v", err)
	}

	bad := twoLineDraft()
	bad.TotalAmount = 9999
	if _, err := svc.CreateOrder(context.Background(), CreateOrderCommand{Draft: bad}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for total mismatch, got %v", err)
	}
}

func TestOrderServiceCreateOrderRetriesNumberCollision(t *testing.T) {
	attempts := 0
	numbers := make([]string, 0, 2)
	orderRepo := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			attempts++
			numbers = append(numbers, order.Number)
			if attempts == 1 {
				return stubRepoError{msg: "number taken", conflict: true}
			}
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      orderRepo,
		Lines:       &stubOrderLineRepo{},
		IDGenerator: sequentialIDs("COLLIDE"),
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.CreateOrder(context.Background(), CreateOrderCommand{Draft: twoLineDraft()}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 insert attempts got %d", attempts)
	}
	if numbers[0] == numbers[1] {
		t.Fatalf("expected a fresh number on retry, got %s twice", numbers[0])
	}
}

func TestOrderServiceCreateOrderRollsBackHeader(t *testing.T) {
	var deleted string
	orderRepo := &stubOrderRepo{
		deleteFn: func(_ context.Context, orderID string) error {
			deleted = orderID
			return nil
		},
	}
	lineRepo := &stubOrderLineRepo{
		insertManyFn: func(context.Context, string, []domain.OrderLine) error {
			return stubRepoError{msg: "write exploded", unavailable: true}
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders: orderRepo,
		Lines:  lineRepo,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderCommand{Draft: twoLineDraft()})
	if err == nil {
		t.Fatalf("expected error when lines fail")
	}
	if errors.Is(err, ErrOrderRollbackFailed) {
		t.Fatalf("rollback succeeded, error must not report rollback failure: %v", err)
	}
	if deleted == "" {
		t.Fatalf("expected header delete after line failure")
	}
}

func TestOrderServiceCreateOrderFlagsFailedRollback(t *testing.T) {
	var flaggedOrder, flaggedKey string
	orderRepo := &stubOrderRepo{
		deleteFn: func(context.Context, string) error {
			return stubRepoError{msg: "delete unavailable", unavailable: true}
		},
		setFlagFn: func(_ context.Context, orderID, key string, value any) error {
			flaggedOrder = orderID
			flaggedKey = key
			return nil
		},
	}
	lineRepo := &stubOrderLineRepo{
		insertManyFn: func(context.Context, string, []domain.OrderLine) error {
			return errors.New("lines failed")
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders: orderRepo,
		Lines:  lineRepo,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderCommand{Draft: twoLineDraft()})
	if !errors.Is(err, ErrOrderRollbackFailed) {
		t.Fatalf("expected rollback failure error, got %v", err)
	}
	if flaggedKey != "rollback_failed" {
		t.Fatalf("expected rollback_failed flag, got %q on order %q", flaggedKey, flaggedOrder)
	}
}

func applyMutationRepo(stored *domain.Order) *stubOrderRepo {
	return &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return *stored, nil
		},
		updateStatusFn: func(_ context.Context, orderID string, mutate repositories.OrderStatusMutation) (domain.Order, error) {
			next, err := mutate(*stored)
			if err != nil {
				return domain.Order{}, err
			}
			*stored = next
			return next, nil
		},
	}
}

func TestOrderServiceAdvanceStatusToProcessing(t *testing.T) {
	now := time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC)
	stored := domain.Order{ID: "ord_1", Number: "ORD-1-AAAAAA", UserID: "user-1", Status: domain.OrderStatusPending}
	events := &captureOrderEvents{}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders: applyMutationRepo(&stored),
		Lines:  &stubOrderLineRepo{},
		Clock:  func() time.Time { return now },
		Events: events,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	order, err := svc.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID:       "ord_1",
		TargetStatus:  domain.OrderStatusProcessing,
		PaymentMethod: "stripe",
		TransactionID: "pi_123",
	})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing got %s", order.Status)
	}
	if order.PaymentMethod != "stripe" || order.PaymentTransactionID != "pi_123" {
		t.Fatalf("payment fields not stamped: %+v", order)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventStatusChanged {
		t.Fatalf("expected status change event, got %+v", events.events)
	}
}

func TestOrderServiceAdvanceStatusRefundBeforeCompletion(t *testing.T) {
	// A provider-side refund can land while the order is still pending or
	// settling; both must reach refunded, not bounce with a conflict.
	for _, from := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing} {
		stored := domain.Order{ID: "ord_1", Status: from}
		events := &captureOrderEvents{}

		svc, err := NewOrderService(OrderServiceDeps{
			Orders: applyMutationRepo(&stored),
			Lines:  &stubOrderLineRepo{},
			Events: events,
		})
		if err != nil {
			t.Fatalf("new order service: %v", err)
		}

		order, err := svc.AdvanceStatus(context.Background(), AdvanceStatusCommand{
			OrderID:      "ord_1",
			TargetStatus: domain.OrderStatusRefunded,
			Reason:       "payment refunded upstream",
		})
		if err != nil {
			t.Fatalf("%s -> refunded: %v", from, err)
		}
		if order.Status != domain.OrderStatusRefunded {
			t.Fatalf("expected refunded got %s", order.Status)
		}
		if len(events.events) != 1 || events.events[0].Type != orderEventStatusChanged {
			t.Fatalf("expected status change event, got %+v", events.events)
		}
	}
}

func TestOrderServiceAdvanceStatusSameStateIsNoop(t *testing.T) {
	stored := domain.Order{ID: "ord_1", Status: domain.OrderStatusCompleted}
	events := &captureOrderEvents{}
	recorded := false
	analytics := &stubAnalyticsService{
		recordFn: func(context.Context, RecordSaleCommand) error {
			recorded = true
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    applyMutationRepo(&stored),
		Lines:     &stubOrderLineRepo{},
		Analytics: analytics,
		Events:    events,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	order, err := svc.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusCompleted,
	})
	if err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("unexpected status %s", order.Status)
	}
	if len(events.events) != 0 {
		t.Fatalf("no-op must not publish events, got %+v", events.events)
	}
	if recorded {
		t.Fatalf("no-op must not re-record the sale")
	}
}

func TestOrderServiceAdvanceStatusRejectsInvalidTransition(t *testing.T) {
	cases := []struct {
		from domain.OrderStatus
		to   domain.OrderStatus
	}{
		{domain.OrderStatusCompleted, domain.OrderStatusPending},
		{domain.OrderStatusPending, domain.OrderStatusCompleted},
		{domain.OrderStatusCancelled, domain.OrderStatusProcessing},
		{domain.OrderStatusRefunded, domain.OrderStatusCompleted},
	}

	for _, tc := range cases {
		stored := domain.Order{ID: "ord_1", Status: tc.from}
		svc, err := NewOrderService(OrderServiceDeps{
			Orders: applyMutationRepo(&stored),
			Lines:  &stubOrderLineRepo{},
		})
		if err != nil {
			t.Fatalf("new order service: %v", err)
		}

		if _, err := svc.AdvanceStatus(context.Background(), AdvanceStatusCommand{
			OrderID:      "ord_1",
			TargetStatus: tc.to,
		}); !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("%s -> %s: expected invalid state, got %v", tc.from, tc.to, err)
		}
	}
}

func TestOrderServiceAdvanceStatusExpectedStatusConflict(t *testing.T) {
	stored := domain.Order{ID: "ord_1", Status: domain.OrderStatusProcessing}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: applyMutationRepo(&stored),
		Lines:  &stubOrderLineRepo{},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID:        "ord_1",
		TargetStatus:   domain.OrderStatusCancelled,
		ExpectedStatus: valuePtr(domain.OrderStatusPending),
	}); !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOrderServiceCompletionRecordsSale(t *testing.T) {
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	stored := domain.Order{
		ID:       "ord_1",
		UserID:   "user-1",
		Status:   domain.OrderStatusProcessing,
		Metadata: map[string]any{"buyerLocale": "pt-BR"},
	}
	lines := []domain.OrderLine{
		{ID: "oli_1", OrderID: "ord_1", SellerID: "seller-1", TotalPrice: 1500, Currency: "USD"},
		{ID: "oli_2", OrderID: "ord_1", SellerID: "seller-2", TotalPrice: 1000, Currency: "USD"},
	}

	var recorded RecordSaleCommand
	analytics := &stubAnalyticsService{
		recordFn: func(_ context.Context, cmd RecordSaleCommand) error {
			recorded = cmd
			return nil
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders: applyMutationRepo(&stored),
		Lines: &stubOrderLineRepo{
			listByOrderFn: func(_ context.Context, orderID string) ([]domain.OrderLine, error) {
				return lines, nil
			},
		},
		Analytics: analytics,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	order, err := svc.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusCompleted,
	})
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if order.PaymentCompletedAt == nil || !order.PaymentCompletedAt.Equal(now) {
		t.Fatalf("expected paymentCompletedAt %s, got %v", now, order.PaymentCompletedAt)
	}
	if len(recorded.Lines) != 2 {
		t.Fatalf("expected sale recorded with 2 lines, got %d", len(recorded.Lines))
	}
	if recorded.BuyerLocale != "pt-BR" {
		t.Fatalf("expected buyer locale forwarded, got %q", recorded.BuyerLocale)
	}
}

func TestOrderServiceCompletionSurvivesLedgerFailure(t *testing.T) {
	stored := domain.Order{ID: "ord_1", Status: domain.OrderStatusProcessing}
	analytics := &stubAnalyticsService{
		recordFn: func(context.Context, RecordSaleCommand) error {
			return errors.New("ledger down")
		},
	}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    applyMutationRepo(&stored),
		Lines:     &stubOrderLineRepo{},
		Analytics: analytics,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	order, err := svc.AdvanceStatus(context.Background(), AdvanceStatusCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusCompleted,
	})
	if err != nil {
		t.Fatalf("ledger failure must not unwind the transition: %v", err)
	}
	if order.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed got %s", order.Status)
	}
}

func TestOrderServiceGetOrderEnforcesOwnership(t *testing.T) {
	repo := &stubOrderRepo{
		findFn: func(_ context.Context, orderID string) (domain.Order, error) {
			return domain.Order{ID: orderID, UserID: "user-1"}, nil
		},
	}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo, Lines: &stubOrderLineRepo{}})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.GetOrder(context.Background(), GetOrderCommand{OrderID: "ord_1", UserID: "someone-else"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}

	order, err := svc.GetOrder(context.Background(), GetOrderCommand{OrderID: "ord_1", UserID: "user-1"})
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.UserID != "user-1" {
		t.Fatalf("unexpected owner %s", order.UserID)
	}
}

func TestOrderServiceListRollbackFailures(t *testing.T) {
	var captured repositories.OrderListFilter
	repo := &stubOrderRepo{
		listFn: func(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "ord_1"}}}, nil
		},
	}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo, Lines: &stubOrderLineRepo{}})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	page, err := svc.ListRollbackFailures(context.Background(), Pagination{PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if captured.Flag != "rollback_failed" {
		t.Fatalf("expected rollback_failed flag filter, got %q", captured.Flag)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(page.Items))
	}
}
