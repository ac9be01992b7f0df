package services

import (
	"context"
	"time"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination       = domain.Pagination
	SortOrder        = domain.SortOrder
	Product          = domain.Product
	ProductStatus    = domain.ProductStatus
	Cart             = domain.Cart
	CartLine         = domain.CartLine
	Order            = domain.Order
	OrderLine        = domain.OrderLine
	OrderStatus      = domain.OrderStatus
	OrderDraft       = domain.OrderDraft
	OrderDraftLine   = domain.OrderDraftLine
	SalesLedgerEntry = domain.SalesLedgerEntry
	SalesSummary     = domain.SalesSummary
	DownloadGrant    = domain.DownloadGrant
)

// PricingService resolves cart lines against the live catalogue and freezes
// prices into an order draft. It performs no writes.
type PricingService interface {
	BuildOrderDraft(ctx context.Context, cmd BuildOrderDraftCommand) (OrderDraft, error)
}

// OrderService owns order creation (with compensating rollback) and the order
// status machine.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	AdvanceStatus(ctx context.Context, cmd AdvanceStatusCommand) (Order, error)
	// ListRollbackFailures surfaces orders whose compensating delete failed and
	// that need manual reconciliation.
	ListRollbackFailures(ctx context.Context, pager Pagination) (domain.CursorPage[Order], error)
}

// DownloadService issues signed download URLs for fulfilled order lines and
// records download events against the per-line quota.
type DownloadService interface {
	IssueDownloadURL(ctx context.Context, cmd IssueDownloadCommand) (DownloadGrant, error)
	RecordDownload(ctx context.Context, cmd RecordDownloadCommand) (OrderLine, error)
}

// AnalyticsService appends revenue records when orders complete and serves the
// seller-facing read side.
type AnalyticsService interface {
	RecordSale(ctx context.Context, cmd RecordSaleCommand) error
	ListSellerSales(ctx context.Context, sellerID string, pager Pagination) (domain.CursorPage[SalesLedgerEntry], error)
	SellerSummary(ctx context.Context, sellerID string) (SalesSummary, error)
}

// CartService manages the buyer's single active cart.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddLine(ctx context.Context, cmd AddCartLineCommand) (Cart, error)
	UpdateLineQuantity(ctx context.Context, cmd UpdateCartLineCommand) (Cart, error)
	RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CheckoutService orchestrates draft building, order creation, payment intent
// creation, and cart clearing.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// ProductService manages seller listings and their storage objects.
type ProductService interface {
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	IssueUploadURL(ctx context.Context, cmd ProductUploadCommand) (domain.SignedFileResponse, error)
	ArchiveProduct(ctx context.Context, cmd ArchiveProductCommand) (Product, error)
}

// SellerService serves the seller-facing sales views derived from order lines.
type SellerService interface {
	ListSoldLines(ctx context.Context, cmd SellerSalesQuery) (domain.CursorPage[OrderLine], error)
}

// SystemService exposes operational health and build metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// SystemHealthReport aliases the domain health report for handler consumption.
type SystemHealthReport = domain.SystemHealthReport

// Command and DTO definitions ------------------------------------------------

// DraftRequestLine names a product and quantity to price.
type DraftRequestLine struct {
	ProductID string
	Quantity  int
}

type BuildOrderDraftCommand struct {
	UserID string
	Lines  []DraftRequestLine
}

type CreateOrderCommand struct {
	Draft         OrderDraft
	ActorID       string
	PaymentMethod string
	Notes         string
	Metadata      map[string]any
}

type GetOrderCommand struct {
	OrderID      string
	UserID       string
	IncludeLines bool
}

type OrderListFilter = repositories.OrderListFilter

type AdvanceStatusCommand struct {
	OrderID       string
	TargetStatus  OrderStatus
	ActorID       string
	Reason        string
	PaymentMethod string
	TransactionID string
	// ExpectedStatus, when set, turns the call into a compare-and-set: the
	// transition fails with a conflict if the stored status differs.
	ExpectedStatus *OrderStatus
	Metadata       map[string]any
}

type IssueDownloadCommand struct {
	UserID      string
	OrderLineID string
	// Lifetime overrides the line's configured link lifetime when positive.
	Lifetime time.Duration
}

type RecordDownloadCommand struct {
	UserID      string
	OrderLineID string
}

type RecordSaleCommand struct {
	Order Order
	Lines []OrderLine
	// BuyerLocale is a BCP 47 tag used to derive the buyer region; optional.
	BuyerLocale string
	Metadata    map[string]any
}

type AddCartLineCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

type UpdateCartLineCommand struct {
	UserID   string
	LineID   string
	Quantity int
}

type RemoveCartLineCommand struct {
	UserID string
	LineID string
}

type CheckoutCommand struct {
	UserID        string
	PaymentMethod string
	BuyerLocale   string
	Notes         string
	Metadata      map[string]any
}

// CheckoutResult carries the created order and the payment hand-off material.
type CheckoutResult struct {
	Order               Order
	PaymentIntentID     string
	PaymentClientSecret string
}

type UpsertProductCommand struct {
	ProductID     string
	StoreID       string
	SellerID      string
	Title         string
	Description   string
	Price         int64
	Currency      string
	Status        ProductStatus
	MaxDownloads  *int
	DownloadHours int
}

type ProductListFilter = repositories.ProductListFilter

type ProductUploadCommand struct {
	SellerID    string
	ProductID   string
	FileName    string
	ContentType string
	SizeBytes   int64
}

type ArchiveProductCommand struct {
	ProductID string
	SellerID  string
	// DeleteFile removes the storage object along with archiving the listing.
	DeleteFile bool
}

type SellerSalesQuery struct {
	SellerID   string
	StoreID    string
	Pagination Pagination
}
