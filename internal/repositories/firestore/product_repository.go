package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/sellery/api/internal/domain"
	pfirestore "github.com/sellery/api/internal/platform/firestore"
	"github.com/sellery/api/internal/platform/pagination"
	"github.com/sellery/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository persists seller product listings within Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// Insert creates the product document, failing on duplicate IDs.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Create(ctx, id, encodeProduct(product))
	return err
}

// Update overwrites the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	_, err := r.base.Set(ctx, id, encodeProduct(product))
	return err
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.ID, doc.Data), nil
}

// FindByIDs loads the requested products; missing IDs are absent from the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	out := make(map[string]domain.Product, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, raw := range productIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		doc, err := r.base.Get(ctx, id)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, err
		}
		out[doc.ID] = decodeProduct(doc.ID, doc.Data)
	}
	return out, nil
}

// List returns products matching the filter ordered by document ID (ULIDs sort
// by creation time).
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if store := strings.TrimSpace(filter.StoreID); store != "" {
			q = q.Where("storeId", "==", store)
		}
		if seller := strings.TrimSpace(filter.SellerID); seller != "" {
			q = q.Where("sellerId", "==", seller)
		}
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy(firestore.DocumentID, firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{Items: make([]domain.Product, 0, len(docs))}
	for i, doc := range docs {
		if i == pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{docs[i-1].ID}})
			if err != nil {
				return domain.CursorPage[domain.Product]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, decodeProduct(doc.ID, doc.Data))
	}
	return page, nil
}

func encodeProduct(product domain.Product) productDocument {
	doc := productDocument{
		StoreID:       strings.TrimSpace(product.StoreID),
		SellerID:      strings.TrimSpace(product.SellerID),
		Title:         strings.TrimSpace(product.Title),
		Description:   product.Description,
		Price:         product.Price,
		Currency:      strings.ToUpper(strings.TrimSpace(product.Currency)),
		StoragePath:   strings.TrimSpace(product.StoragePath),
		Status:        string(product.Status),
		DownloadHours: product.DownloadHours,
		CreatedAt:     product.CreatedAt.UTC(),
		UpdatedAt:     product.UpdatedAt.UTC(),
	}
	if product.MaxDownloads != nil {
		v := *product.MaxDownloads
		doc.MaxDownloads = &v
	}
	return doc
}

func decodeProduct(id string, doc productDocument) domain.Product {
	product := domain.Product{
		ID:            id,
		StoreID:       doc.StoreID,
		SellerID:      doc.SellerID,
		Title:         doc.Title,
		Description:   doc.Description,
		Price:         doc.Price,
		Currency:      doc.Currency,
		StoragePath:   doc.StoragePath,
		Status:        domain.ProductStatus(doc.Status),
		DownloadHours: doc.DownloadHours,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	if doc.MaxDownloads != nil {
		v := *doc.MaxDownloads
		product.MaxDownloads = &v
	}
	return product
}

type productDocument struct {
	StoreID       string    `firestore:"storeId"`
	SellerID      string    `firestore:"sellerId"`
	Title         string    `firestore:"title"`
	Description   string    `firestore:"description,omitempty"`
	Price         int64     `firestore:"price"`
	Currency      string    `firestore:"currency"`
	StoragePath   string    `firestore:"storagePath,omitempty"`
	Status        string    `firestore:"status"`
	MaxDownloads  *int      `firestore:"maxDownloads,omitempty"`
	DownloadHours int       `firestore:"downloadHours,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
