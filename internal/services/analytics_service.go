package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/repositories"
)

// DefaultPlatformFeeBasisPoints is the 10% platform cut applied when no
// override is configured.
const DefaultPlatformFeeBasisPoints = 1000

var (
	// ErrAnalyticsInvalidInput signals the caller provided invalid data.
	ErrAnalyticsInvalidInput = errors.New("analytics: invalid input")
)

// AnalyticsServiceDeps bundles collaborators required to construct the analytics service.
type AnalyticsServiceDeps struct {
	Ledger repositories.SalesLedgerRepository
	// FeeBasisPoints is the platform's cut of each sale in basis points; zero
	// selects the default 10%.
	FeeBasisPoints int
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type analyticsService struct {
	ledger         repositories.SalesLedgerRepository
	feeBasisPoints int
	clock          func() time.Time
	logger         func(context.Context, string, map[string]any)
}

// NewAnalyticsService wires dependencies into a concrete AnalyticsService implementation.
func NewAnalyticsService(deps AnalyticsServiceDeps) (AnalyticsService, error) {
	if deps.Ledger == nil {
		return nil, errors.New("analytics service: ledger repository is required")
	}

	fee := deps.FeeBasisPoints
	if fee <= 0 {
		fee = DefaultPlatformFeeBasisPoints
	}
	if fee > 10000 {
		return nil, errors.New("analytics service: fee basis points exceed 100%")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &analyticsService{
		ledger:         deps.Ledger,
		feeBasisPoints: fee,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// RecordSale appends one ledger entry per order line. Entry keys derive from
// the order line, so replaying the same completion writes nothing new and the
// whole call stays idempotent.
func (s *analyticsService) RecordSale(ctx context.Context, cmd RecordSaleCommand) error {
	orderID := strings.TrimSpace(cmd.Order.ID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrAnalyticsInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return fmt.Errorf("%w: order %s has no lines", ErrAnalyticsInvalidInput, orderID)
	}

	now := s.clock()
	occurredAt := now
	if cmd.Order.PaymentCompletedAt != nil {
		occurredAt = cmd.Order.PaymentCompletedAt.UTC()
	}
	region := regionFromLocale(cmd.BuyerLocale)

	for _, line := range cmd.Lines {
		fee := PlatformFee(line.TotalPrice, s.feeBasisPoints)
		entry := domain.SalesLedgerEntry{
			OrderID:        orderID,
			OrderLineID:    line.ID,
			ProductID:      line.ProductID,
			StoreID:        line.StoreID,
			SellerID:       line.SellerID,
			BuyerID:        cmd.Order.UserID,
			Gross:          line.TotalPrice,
			PlatformFee:    fee,
			SellerEarnings: line.TotalPrice - fee,
			Currency:       line.Currency,
			BuyerRegion:    region,
			Metadata:       cloneMap(cmd.Metadata),
			OccurredAt:     occurredAt,
		}

		created, err := s.ledger.Record(ctx, entry)
		if err != nil {
			return fmt.Errorf("analytics: record sale for line %s: %w", line.ID, err)
		}
		if !created {
			s.logger(ctx, "analytics.sale.duplicate", map[string]any{
				"order": orderID,
				"line":  line.ID,
			})
		}
	}

	return nil
}

func (s *analyticsService) ListSellerSales(ctx context.Context, sellerID string, pager Pagination) (domain.CursorPage[SalesLedgerEntry], error) {
	seller := strings.TrimSpace(sellerID)
	if seller == "" {
		return domain.CursorPage[SalesLedgerEntry]{}, fmt.Errorf("%w: seller id is required", ErrAnalyticsInvalidInput)
	}
	return s.ledger.ListBySeller(ctx, seller, pager)
}

func (s *analyticsService) SellerSummary(ctx context.Context, sellerID string) (SalesSummary, error) {
	seller := strings.TrimSpace(sellerID)
	if seller == "" {
		return SalesSummary{}, fmt.Errorf("%w: seller id is required", ErrAnalyticsInvalidInput)
	}
	return s.ledger.SummarizeSeller(ctx, seller)
}

// PlatformFee computes the platform's cut of a gross amount in cents, rounding
// half a cent up.
func PlatformFee(gross int64, basisPoints int) int64 {
	if gross <= 0 || basisPoints <= 0 {
		return 0
	}
	return (gross*int64(basisPoints) + 5000) / 10000
}

// regionFromLocale resolves a BCP 47 tag like "pt-BR" to its region code.
// Unparseable or region-less tags yield an empty region rather than an error.
func regionFromLocale(locale string) string {
	trimmed := strings.TrimSpace(locale)
	if trimmed == "" {
		return ""
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return ""
	}
	region, conf := tag.Region()
	if conf == language.No {
		return ""
	}
	return region.String()
}
