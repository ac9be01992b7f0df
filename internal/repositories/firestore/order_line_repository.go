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

const orderLineCollection = "orderLines"

// OrderLineRepository persists order lines in a flat collection keyed by line
// ID so entitlement lookups need a single document read.
type OrderLineRepository struct {
	base     *pfirestore.BaseRepository[orderLineDocument]
	provider *pfirestore.Provider
}

// NewOrderLineRepository constructs a Firestore-backed order line repository.
func NewOrderLineRepository(provider *pfirestore.Provider) (*OrderLineRepository, error) {
	if provider == nil {
		return nil, errors.New("order line repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderLineDocument](provider, orderLineCollection, nil, nil)
	return &OrderLineRepository{base: base, provider: provider}, nil
}

// InsertMany writes all lines inside one transaction so the aggregate writer
// observes all-or-nothing semantics for the line batch.
func (r *OrderLineRepository) InsertMany(ctx context.Context, orderID string, lines []domain.OrderLine) error {
	if r == nil || r.provider == nil {
		return errors.New("order line repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return errors.New("order line repository: order id is required")
	}
	if len(lines) == 0 {
		return errors.New("order line repository: at least one line is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	coll := client.Collection(orderLineCollection)

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, line := range lines {
			id := strings.TrimSpace(line.ID)
			if id == "" {
				return errors.New("order line repository: line id is required")
			}
			line.OrderID = oid
			if err := tx.Create(coll.Doc(id), encodeOrderLine(line)); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID loads a single order line.
func (r *OrderLineRepository) FindByID(ctx context.Context, lineID string) (domain.OrderLine, error) {
	if r == nil || r.base == nil {
		return domain.OrderLine{}, errors.New("order line repository not initialised")
	}
	id := strings.TrimSpace(lineID)
	if id == "" {
		return domain.OrderLine{}, errors.New("order line repository: line id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.OrderLine{}, err
	}
	return decodeOrderLine(doc.ID, doc.Data), nil
}

// ListByOrder returns all lines for the order, in insertion order.
func (r *OrderLineRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order line repository not initialised")
	}
	oid := strings.TrimSpace(orderID)
	if oid == "" {
		return nil, errors.New("order line repository: order id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", oid).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	lines := make([]domain.OrderLine, 0, len(docs))
	for _, doc := range docs {
		lines = append(lines, decodeOrderLine(doc.ID, doc.Data))
	}
	return lines, nil
}

// ListBySeller pages through one seller's sold lines, newest first.
func (r *OrderLineRepository) ListBySeller(ctx context.Context, filter repositories.SellerLineFilter) (domain.CursorPage[domain.OrderLine], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.OrderLine]{}, errors.New("order line repository not initialised")
	}
	seller := strings.TrimSpace(filter.SellerID)
	if seller == "" {
		return domain.CursorPage[domain.OrderLine]{}, errors.New("order line repository: seller id is required")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.OrderLine]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("sellerId", "==", seller)
		if store := strings.TrimSpace(filter.StoreID); store != "" {
			q = q.Where("storeId", "==", store)
		}
		q = q.OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.OrderLine]{}, err
	}

	page := domain.CursorPage[domain.OrderLine]{Items: make([]domain.OrderLine, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{docs[i-1].ID}})
			if err != nil {
				return domain.CursorPage[domain.OrderLine]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodeOrderLine(doc.ID, doc.Data))
	}
	return page, nil
}

// SetDownloadURL persists a freshly minted signed URL with its expiry.
func (r *OrderLineRepository) SetDownloadURL(ctx context.Context, lineID string, url string, expiresAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("order line repository not initialised")
	}
	id := strings.TrimSpace(lineID)
	if id == "" {
		return errors.New("order line repository: line id is required")
	}
	if strings.TrimSpace(url) == "" {
		return errors.New("order line repository: url is required")
	}

	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "downloadUrl", Value: strings.TrimSpace(url)},
		{Path: "downloadExpiresAt", Value: expiresAt.UTC()},
	})
	return err
}

// IncrementDownloadCount adds one to the counter inside a transaction. The
// guard re-reads the stored count so concurrent callers can never push it past
// the line's cap; the loser observes DownloadErrorLimitReached.
func (r *OrderLineRepository) IncrementDownloadCount(ctx context.Context, lineID string) (domain.OrderLine, error) {
	if r == nil || r.provider == nil {
		return domain.OrderLine{}, errors.New("order line repository not initialised")
	}
	id := strings.TrimSpace(lineID)
	if id == "" {
		return domain.OrderLine{}, repositories.NewDownloadError(repositories.DownloadErrorInvalidInput, "line id is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OrderLine{}, err
	}
	ref := client.Collection(orderLineCollection).Doc(id)

	var updated domain.OrderLine
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc orderLineDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("order line repository: decode %s: %w", id, err)
		}

		if doc.MaxDownloads != nil && doc.DownloadCount >= *doc.MaxDownloads {
			return repositories.NewDownloadError(
				repositories.DownloadErrorLimitReached,
				fmt.Sprintf("line %s exhausted its %d downloads", id, *doc.MaxDownloads),
				nil,
			)
		}

		doc.DownloadCount++
		if err := tx.Update(ref, []firestore.Update{
			{Path: "downloadCount", Value: doc.DownloadCount},
		}); err != nil {
			return err
		}
		updated = decodeOrderLine(id, doc)
		return nil
	})
	if err != nil {
		return domain.OrderLine{}, err
	}
	return updated, nil
}

func encodeOrderLine(line domain.OrderLine) orderLineDocument {
	doc := orderLineDocument{
		OrderID:            strings.TrimSpace(line.OrderID),
		ProductID:          strings.TrimSpace(line.ProductID),
		StoreID:            strings.TrimSpace(line.StoreID),
		SellerID:           strings.TrimSpace(line.SellerID),
		ProductTitle:       line.ProductTitle,
		ProductDescription: line.ProductDescription,
		StoragePath:        strings.TrimSpace(line.StoragePath),
		UnitPrice:          line.UnitPrice,
		Quantity:           line.Quantity,
		TotalPrice:         line.TotalPrice,
		Currency:           strings.ToUpper(strings.TrimSpace(line.Currency)),
		DownloadCount:      line.DownloadCount,
		DownloadHours:      line.DownloadHours,
		CreatedAt:          line.CreatedAt.UTC(),
	}
	if line.DownloadURL != nil {
		url := strings.TrimSpace(*line.DownloadURL)
		doc.DownloadURL = &url
	}
	if line.DownloadExpiresAt != nil {
		ts := line.DownloadExpiresAt.UTC()
		doc.DownloadExpiresAt = &ts
	}
	if line.MaxDownloads != nil {
		v := *line.MaxDownloads
		doc.MaxDownloads = &v
	}
	return doc
}

func decodeOrderLine(id string, doc orderLineDocument) domain.OrderLine {
	line := domain.OrderLine{
		ID:                 id,
		OrderID:            doc.OrderID,
		ProductID:          doc.ProductID,
		StoreID:            doc.StoreID,
		SellerID:           doc.SellerID,
		ProductTitle:       doc.ProductTitle,
		ProductDescription: doc.ProductDescription,
		StoragePath:        doc.StoragePath,
		UnitPrice:          doc.UnitPrice,
		Quantity:           doc.Quantity,
		TotalPrice:         doc.TotalPrice,
		Currency:           doc.Currency,
		DownloadCount:      doc.DownloadCount,
		DownloadHours:      doc.DownloadHours,
		CreatedAt:          doc.CreatedAt,
	}
	if doc.DownloadURL != nil {
		url := *doc.DownloadURL
		line.DownloadURL = &url
	}
	if doc.DownloadExpiresAt != nil {
		ts := *doc.DownloadExpiresAt
		line.DownloadExpiresAt = &ts
	}
	if doc.MaxDownloads != nil {
		v := *doc.MaxDownloads
		line.MaxDownloads = &v
	}
	return line
}

type orderLineDocument struct {
	OrderID            string     `firestore:"orderId"`
	ProductID          string     `firestore:"productId"`
	StoreID            string     `firestore:"storeId"`
	SellerID           string     `firestore:"sellerId"`
	ProductTitle       string     `firestore:"productTitle"`
	ProductDescription string     `firestore:"productDescription,omitempty"`
	StoragePath        string     `firestore:"storagePath,omitempty"`
	UnitPrice          int64      `firestore:"unitPrice"`
	Quantity           int        `firestore:"quantity"`
	TotalPrice         int64      `firestore:"totalPrice"`
	Currency           string     `firestore:"currency"`
	DownloadURL        *string    `firestore:"downloadUrl,omitempty"`
	DownloadExpiresAt  *time.Time `firestore:"downloadExpiresAt,omitempty"`
	DownloadCount      int        `firestore:"downloadCount"`
	MaxDownloads       *int       `firestore:"maxDownloads,omitempty"`
	DownloadHours      int        `firestore:"downloadHours,omitempty"`
	CreatedAt          time.Time  `firestore:"createdAt"`
}

var _ repositories.OrderLineRepository = (*OrderLineRepository)(nil)
