package repositories

import (
	"context"
	"time"

	domain "github.com/sellery/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	OrderLines() OrderLineRepository
	SalesLedger() SalesLedgerRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists seller product listings.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// FindByIDs returns the products that exist; missing IDs are simply absent
	// from the result map.
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
}

// ProductListFilter narrows product listings for sellers and storefronts.
type ProductListFilter struct {
	StoreID    string
	SellerID   string
	Status     []domain.ProductStatus
	Pagination domain.Pagination
}

// CartRepository owns cart header + line persistence, one document per buyer.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	ReplaceLines(ctx context.Context, userID string, lines []domain.CartLine) (domain.Cart, error)
	// ClearLines empties the cart lines while keeping the cart document.
	ClearLines(ctx context.Context, userID string) error
}

// OrderRepository persists order headers. Insert reserves the order number
// atomically; a reused number surfaces as a conflict.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Delete removes the header and releases its number reservation. Used only
	// by the compensating rollback of the aggregate writer.
	Delete(ctx context.Context, orderID string) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, number string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// UpdateStatus applies the mutation transactionally, re-reading the header
	// and calling mutate inside the transaction. The mutation decides the new
	// field values; returning an error aborts without writing.
	UpdateStatus(ctx context.Context, orderID string, mutate OrderStatusMutation) (domain.Order, error)
	// SetFlag records an operational marker (for example a failed rollback)
	// inside the order metadata for later reconciliation.
	SetFlag(ctx context.Context, orderID string, key string, value any) error
}

// OrderStatusMutation mutates an order header inside the status transaction.
// The returned order replaces the stored document fields it changes.
type OrderStatusMutation func(current domain.Order) (domain.Order, error)

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID       string
	Status       []domain.OrderStatus
	Flag         string
	CreatedRange domain.RangeQuery[time.Time]
	Pagination   domain.Pagination
}

// OrderLineRepository persists order lines and their entitlement state.
type OrderLineRepository interface {
	// InsertMany writes all lines or none.
	InsertMany(ctx context.Context, orderID string, lines []domain.OrderLine) error
	FindByID(ctx context.Context, lineID string) (domain.OrderLine, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderLine, error)
	ListBySeller(ctx context.Context, filter SellerLineFilter) (domain.CursorPage[domain.OrderLine], error)
	// SetDownloadURL persists a freshly minted signed URL with its expiry.
	SetDownloadURL(ctx context.Context, lineID string, url string, expiresAt time.Time) error
	// IncrementDownloadCount adds one to the counter inside a transaction,
	// failing with ErrDownloadLimitReached once the line's cap is exhausted.
	IncrementDownloadCount(ctx context.Context, lineID string) (domain.OrderLine, error)
}

// SellerLineFilter narrows order-line listings to one seller's sales.
type SellerLineFilter struct {
	SellerID   string
	StoreID    string
	Pagination domain.Pagination
}

// SalesLedgerRepository appends and reads revenue records.
type SalesLedgerRepository interface {
	// Record writes the entry with a deterministic key derived from the order
	// line. It reports created=false without error when the entry already
	// exists, making re-entry safe.
	Record(ctx context.Context, entry domain.SalesLedgerEntry) (created bool, err error)
	ListBySeller(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.SalesLedgerEntry], error)
	SummarizeSeller(ctx context.Context, sellerID string) (domain.SalesSummary, error)
}

// HealthRepository evaluates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
