package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/sellery/api/internal/domain"
	pfirestore "github.com/sellery/api/internal/platform/firestore"
	"github.com/sellery/api/internal/platform/pagination"
	"github.com/sellery/api/internal/repositories"
)

const ledgerCollection = "salesLedger"

// SalesLedgerRepository appends revenue records. The document key is derived
// from the order line, so re-recording the same sale is a no-op.
type SalesLedgerRepository struct {
	base     *pfirestore.BaseRepository[ledgerDocument]
	provider *pfirestore.Provider
}

// NewSalesLedgerRepository constructs a Firestore-backed sales ledger.
func NewSalesLedgerRepository(provider *pfirestore.Provider) (*SalesLedgerRepository, error) {
	if provider == nil {
		return nil, errors.New("sales ledger repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[ledgerDocument](provider, ledgerCollection, nil, nil)
	return &SalesLedgerRepository{base: base, provider: provider}, nil
}

// LedgerKey builds the deterministic document key for an order line's entry.
func LedgerKey(orderID, orderLineID string) string {
	return fmt.Sprintf("%s_%s", strings.TrimSpace(orderID), strings.TrimSpace(orderLineID))
}

// Record writes the entry with its deterministic key. It reports created=false
// without error when the entry already exists.
func (r *SalesLedgerRepository) Record(ctx context.Context, entry domain.SalesLedgerEntry) (bool, error) {
	if r == nil || r.base == nil {
		return false, errors.New("sales ledger repository not initialised")
	}
	orderID := strings.TrimSpace(entry.OrderID)
	lineID := strings.TrimSpace(entry.OrderLineID)
	if orderID == "" || lineID == "" {
		return false, errors.New("sales ledger repository: order and line ids are required")
	}

	key := LedgerKey(orderID, lineID)
	_, err := r.base.Create(ctx, key, encodeLedgerEntry(entry))
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListBySeller pages through a seller's ledger entries, newest first.
func (r *SalesLedgerRepository) ListBySeller(ctx context.Context, sellerID string, pager domain.Pagination) (domain.CursorPage[domain.SalesLedgerEntry], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.SalesLedgerEntry]{}, errors.New("sales ledger repository not initialised")
	}
	seller := strings.TrimSpace(sellerID)
	if seller == "" {
		return domain.CursorPage[domain.SalesLedgerEntry]{}, errors.New("sales ledger repository: seller id is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.SalesLedgerEntry]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("sellerId", "==", seller).
			OrderBy("occurredAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.SalesLedgerEntry]{}, err
	}

	page := domain.CursorPage[domain.SalesLedgerEntry]{Items: make([]domain.SalesLedgerEntry, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			prev := docs[i-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{prev.Data.OccurredAt, prev.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.SalesLedgerEntry]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodeLedgerEntry(doc.ID, doc.Data))
	}
	return page, nil
}

// SummarizeSeller folds every ledger entry for the seller into totals. The
// ledger is append-only, so the walk is a consistent snapshot.
func (r *SalesLedgerRepository) SummarizeSeller(ctx context.Context, sellerID string) (domain.SalesSummary, error) {
	if r == nil || r.base == nil {
		return domain.SalesSummary{}, errors.New("sales ledger repository not initialised")
	}
	seller := strings.TrimSpace(sellerID)
	if seller == "" {
		return domain.SalesSummary{}, errors.New("sales ledger repository: seller id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("sellerId", "==", seller)
	})
	if err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{SellerID: seller}
	for _, doc := range docs {
		summary.Gross += doc.Data.Gross
		summary.PlatformFees += doc.Data.PlatformFee
		summary.SellerEarnings += doc.Data.SellerEarnings
		summary.SaleCount++
		if summary.Currency == "" {
			summary.Currency = doc.Data.Currency
		}
	}
	return summary, nil
}

func encodeLedgerEntry(entry domain.SalesLedgerEntry) ledgerDocument {
	return ledgerDocument{
		OrderID:        strings.TrimSpace(entry.OrderID),
		OrderLineID:    strings.TrimSpace(entry.OrderLineID),
		ProductID:      strings.TrimSpace(entry.ProductID),
		StoreID:        strings.TrimSpace(entry.StoreID),
		SellerID:       strings.TrimSpace(entry.SellerID),
		BuyerID:        strings.TrimSpace(entry.BuyerID),
		Gross:          entry.Gross,
		PlatformFee:    entry.PlatformFee,
		SellerEarnings: entry.SellerEarnings,
		Currency:       strings.ToUpper(strings.TrimSpace(entry.Currency)),
		BuyerRegion:    strings.TrimSpace(entry.BuyerRegion),
		Metadata:       cloneAnyMap(entry.Metadata),
		OccurredAt:     entry.OccurredAt.UTC(),
	}
}

func decodeLedgerEntry(id string, doc ledgerDocument) domain.SalesLedgerEntry {
	return domain.SalesLedgerEntry{
		ID:             id,
		OrderID:        doc.OrderID,
		OrderLineID:    doc.OrderLineID,
		ProductID:      doc.ProductID,
		StoreID:        doc.StoreID,
		SellerID:       doc.SellerID,
		BuyerID:        doc.BuyerID,
		Gross:          doc.Gross,
		PlatformFee:    doc.PlatformFee,
		SellerEarnings: doc.SellerEarnings,
		Currency:       doc.Currency,
		BuyerRegion:    doc.BuyerRegion,
		Metadata:       cloneAnyMap(doc.Metadata),
		OccurredAt:     doc.OccurredAt,
	}
}

type ledgerDocument struct {
	OrderID        string         `firestore:"orderId"`
	OrderLineID    string         `firestore:"orderLineId"`
	ProductID      string         `firestore:"productId"`
	StoreID        string         `firestore:"storeId"`
	SellerID       string         `firestore:"sellerId"`
	BuyerID        string         `firestore:"buyerId"`
	Gross          int64          `firestore:"gross"`
	PlatformFee    int64          `firestore:"platformFee"`
	SellerEarnings int64          `firestore:"sellerEarnings"`
	Currency       string         `firestore:"currency"`
	BuyerRegion    string         `firestore:"buyerRegion,omitempty"`
	Metadata       map[string]any `firestore:"metadata,omitempty"`
	OccurredAt     time.Time      `firestore:"occurredAt"`
}

var _ repositories.SalesLedgerRepository = (*SalesLedgerRepository)(nil)
