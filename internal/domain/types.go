package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results together with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending marks a freshly created, unpaid order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing marks an order whose payment has been captured.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusCompleted marks a fulfilled order; downloads are unlocked.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled marks a terminally abandoned order.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRefunded marks a completed order whose payment was returned.
	OrderStatusRefunded OrderStatus = "refunded"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// ProductStatus enumerates the publication states of a product.
type ProductStatus string

const (
	// ProductStatusDraft keeps the listing invisible to buyers.
	ProductStatusDraft ProductStatus = "draft"
	// ProductStatusPublished makes the listing purchasable.
	ProductStatusPublished ProductStatus = "published"
	// ProductStatusArchived retires the listing without deleting history.
	ProductStatusArchived ProductStatus = "archived"
)

// Product is a downloadable good listed by a seller. Description may contain
// sanitised HTML. Price is the smallest currency unit.
type Product struct {
	ID          string
	StoreID     string
	SellerID    string
	Title       string
	Description string
	Price       int64
	Currency    string
	StoragePath string
	Status      ProductStatus
	// MaxDownloads caps entitlements copied onto order lines; nil means unlimited.
	MaxDownloads  *int
	DownloadHours int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Cart is the single active cart per buyer; the document is keyed by the buyer ID.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Lines     []CartLine
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartLine references a product with a quantity. Prices are never stored on
// cart lines; they are resolved when the order draft is built.
type CartLine struct {
	ID        string
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Order is the purchase header. After creation only the status machine mutates
// it: status, payment details, and the completion timestamp.
type Order struct {
	ID                   string
	Number               string
	UserID               string
	Status               OrderStatus
	Currency             string
	TotalAmount          int64
	PaymentMethod        string
	PaymentTransactionID string
	Notes                string
	Metadata             map[string]any
	CreatedAt            time.Time
	UpdatedAt            time.Time
	PaymentCompletedAt   *time.Time

	// Lines are hydrated on demand by read paths.
	Lines []OrderLine
}

// OrderLine freezes the product snapshot at purchase time and carries the
// download entitlement state. Only the entitlement fields mutate after insert.
type OrderLine struct {
	ID                 string
	OrderID            string
	ProductID          string
	StoreID            string
	SellerID           string
	ProductTitle       string
	ProductDescription string
	StoragePath        string
	UnitPrice          int64
	Quantity           int
	TotalPrice         int64
	Currency           string
	DownloadURL        *string
	DownloadExpiresAt  *time.Time
	DownloadCount      int
	// MaxDownloads is nil for unlimited entitlements.
	MaxDownloads  *int
	DownloadHours int
	CreatedAt     time.Time
}

// DownloadsRemaining reports how many downloads the line still allows, or -1
// when unlimited.
func (l OrderLine) DownloadsRemaining() int {
	if l.MaxDownloads == nil {
		return -1
	}
	remaining := *l.MaxDownloads - l.DownloadCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// OrderDraft is the priced, frozen result of resolving cart lines against the
// live catalogue. Nothing has been persisted when a draft is returned.
type OrderDraft struct {
	UserID      string
	Currency    string
	TotalAmount int64
	Lines       []OrderDraftLine
}

// OrderDraftLine snapshots one product at draft time.
type OrderDraftLine struct {
	ProductID          string
	StoreID            string
	SellerID           string
	ProductTitle       string
	ProductDescription string
	StoragePath        string
	UnitPrice          int64
	Quantity           int
	TotalPrice         int64
	MaxDownloads       *int
	DownloadHours      int
}

// SalesLedgerEntry is the append-only revenue record for a single order line.
// Gross = PlatformFee + SellerEarnings holds for every entry.
type SalesLedgerEntry struct {
	ID             string
	OrderID        string
	OrderLineID    string
	ProductID      string
	StoreID        string
	SellerID       string
	BuyerID        string
	Gross          int64
	PlatformFee    int64
	SellerEarnings int64
	Currency       string
	BuyerRegion    string
	Metadata       map[string]any
	OccurredAt     time.Time
}

// SalesSummary aggregates ledger entries for a seller.
type SalesSummary struct {
	SellerID       string
	Currency       string
	Gross          int64
	PlatformFees   int64
	SellerEarnings int64
	SaleCount      int64
}

// DownloadGrant is the issued entitlement returned to the caller. Remaining is
// -1 when the line allows unlimited downloads.
type DownloadGrant struct {
	URL       string
	ExpiresAt time.Time
	Remaining int
}

// SignedFileResponse describes a signed storage URL handed to clients.
type SignedFileResponse struct {
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// OrderEvent is the payload published on order lifecycle changes.
type OrderEvent struct {
	Type       string         `json:"type"`
	OrderID    string         `json:"orderId"`
	UserID     string         `json:"userId,omitempty"`
	Status     OrderStatus    `json:"status,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
