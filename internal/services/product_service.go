package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/platform/storage"
	"github.com/sellery/api/internal/repositories"
)

const (
	productIDPrefix = "prd_"

	uploadURLLifetime = 15 * time.Minute
	maxUploadBytes    = 5 << 30
)

var productUploadContentTypes = []string{
	"application/zip",
	"application/pdf",
	"application/epub+zip",
	"application/octet-stream",
	"audio/*",
	"video/*",
	"image/*",
	"text/*",
}

var (
	// ErrProductInvalidInput signals the caller provided invalid data.
	ErrProductInvalidInput = errors.New("product: invalid input")
	// ErrProductNotFound indicates the product could not be located.
	ErrProductNotFound = errors.New("product: not found")
	// ErrProductForbidden indicates the caller does not own the listing.
	ErrProductForbidden = errors.New("product: forbidden")
	// ErrProductNotPublishable indicates the listing is missing what a
	// published product requires.
	ErrProductNotPublishable = errors.New("product: not publishable")
)

// ProductFileSigner mints signed URLs for product storage objects. The
// storage client satisfies it.
type ProductFileSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

// ProductObjectStore removes and inspects stored product files.
type ProductObjectStore interface {
	Exists(ctx context.Context, bucket, object string) (bool, error)
	Delete(ctx context.Context, bucket, object string) error
}

// ProductServiceDeps bundles collaborators required to construct the product service.
type ProductServiceDeps struct {
	Products    repositories.ProductRepository
	Signer      ProductFileSigner
	Objects     ProductObjectStore
	Bucket      string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type productService struct {
	products repositories.ProductRepository
	signer   ProductFileSigner
	objects  ProductObjectStore
	bucket   string
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewProductService wires dependencies into a concrete ProductService implementation.
func NewProductService(deps ProductServiceDeps) (ProductService, error) {
	if deps.Products == nil {
		return nil, errors.New("product service: product repository is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("product service: file signer is required")
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, errors.New("product service: bucket is required")
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

	return &productService{
		products: deps.Products,
		signer:   deps.Signer,
		objects:  deps.Objects,
		bucket:   bucket,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *productService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	sellerID := strings.TrimSpace(cmd.SellerID)
	if sellerID == "" {
		return Product{}, fmt.Errorf("%w: seller id is required", ErrProductInvalidInput)
	}
	if err := validateProductFields(cmd); err != nil {
		return Product{}, err
	}

	status := cmd.Status
	if strings.TrimSpace(string(status)) == "" {
		status = domain.ProductStatusDraft
	}
	// A listing cannot go live before its file is uploaded.
	if status == domain.ProductStatusPublished {
		return Product{}, fmt.Errorf("%w: upload the product file before publishing", ErrProductNotPublishable)
	}

	now := s.clock()
	product := Product{
		ID:            productIDPrefix + s.newID(),
		StoreID:       strings.TrimSpace(cmd.StoreID),
		SellerID:      sellerID,
		Title:         strings.TrimSpace(cmd.Title),
		Description:   cmd.Description,
		Price:         cmd.Price,
		Currency:      strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		Status:        status,
		DownloadHours: cmd.DownloadHours,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if cmd.MaxDownloads != nil {
		product.MaxDownloads = valuePtr(*cmd.MaxDownloads)
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *productService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product, err := s.ownedProduct(ctx, cmd.ProductID, cmd.SellerID)
	if err != nil {
		return Product{}, err
	}
	if err := validateProductFields(cmd); err != nil {
		return Product{}, err
	}

	product.Title = strings.TrimSpace(cmd.Title)
	product.Description = cmd.Description
	product.Price = cmd.Price
	product.Currency = strings.ToUpper(strings.TrimSpace(cmd.Currency))
	product.DownloadHours = cmd.DownloadHours
	product.MaxDownloads = nil
	if cmd.MaxDownloads != nil {
		product.MaxDownloads = valuePtr(*cmd.MaxDownloads)
	}

	if status := cmd.Status; strings.TrimSpace(string(status)) != "" && status != product.Status {
		if status == domain.ProductStatusPublished && strings.TrimSpace(product.StoragePath) == "" {
			return Product{}, fmt.Errorf("%w: product %s has no file", ErrProductNotPublishable, product.ID)
		}
		product.Status = status
	}
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *productService) GetProduct(ctx context.Context, productID string) (Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *productService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// IssueUploadURL mints a signed PUT URL for the product's deliverable and
// records the resulting object path on the listing.
func (s *productService) IssueUploadURL(ctx context.Context, cmd ProductUploadCommand) (domain.SignedFileResponse, error) {
	product, err := s.ownedProduct(ctx, cmd.ProductID, cmd.SellerID)
	if err != nil {
		return domain.SignedFileResponse{}, err
	}

	contentType := strings.TrimSpace(cmd.ContentType)
	if contentType == "" {
		return domain.SignedFileResponse{}, fmt.Errorf("%w: content type is required", ErrProductInvalidInput)
	}

	objectPath, err := storage.BuildObjectPath(storage.PurposeProductFile, storage.PathParams{
		SellerID:  product.SellerID,
		ProductID: product.ID,
		FileName:  cmd.FileName,
	})
	if err != nil {
		return domain.SignedFileResponse{}, fmt.Errorf("%w: %v", ErrProductInvalidInput, err)
	}

	maxSize := cmd.SizeBytes
	if maxSize <= 0 || maxSize > maxUploadBytes {
		maxSize = maxUploadBytes
	}

	result, err := s.signer.SignedURL(ctx, s.bucket, objectPath, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			ContentType:         contentType,
			AllowedContentTypes: productUploadContentTypes,
			MaxSize:             maxSize,
			ExpiresIn:           uploadURLLifetime,
		},
	})
	if err != nil {
		return domain.SignedFileResponse{}, fmt.Errorf("product: sign upload url: %w", err)
	}

	product.StoragePath = objectPath
	product.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, product); err != nil {
		return domain.SignedFileResponse{}, s.mapRepositoryError(err)
	}

	return domain.SignedFileResponse{
		URL:       result.URL,
		Method:    result.Method,
		Headers:   result.Headers,
		ExpiresAt: result.ExpiresAt,
	}, nil
}

// ArchiveProduct takes the listing off the storefront. Sold lines keep their
// frozen snapshots and entitlements regardless.
func (s *productService) ArchiveProduct(ctx context.Context, cmd ArchiveProductCommand) (Product, error) {
	product, err := s.ownedProduct(ctx, cmd.ProductID, cmd.SellerID)
	if err != nil {
		return Product{}, err
	}

	if product.Status != domain.ProductStatusArchived {
		product.Status = domain.ProductStatusArchived
		product.UpdatedAt = s.clock()
		if err := s.products.Update(ctx, product); err != nil {
			return Product{}, s.mapRepositoryError(err)
		}
	}

	if cmd.DeleteFile && strings.TrimSpace(product.StoragePath) != "" {
		if s.objects == nil {
			return Product{}, errors.New("product service: object store not configured")
		}
		if err := s.objects.Delete(ctx, s.bucket, product.StoragePath); err != nil {
			// The listing is already archived; report the leak and move on.
			s.logger(ctx, "product.archive.delete.failed", map[string]any{
				"product": product.ID,
				"object":  product.StoragePath,
				"error":   err.Error(),
			})
		}
	}

	return product, nil
}

func (s *productService) ownedProduct(ctx context.Context, productID, sellerID string) (Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	seller := strings.TrimSpace(sellerID)
	if seller == "" {
		return Product{}, fmt.Errorf("%w: seller id is required", ErrProductInvalidInput)
	}

	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	if product.SellerID != seller {
		return Product{}, fmt.Errorf("%w: product %s", ErrProductForbidden, id)
	}
	return product, nil
}

func (s *productService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("product: repository unavailable: %w", err)
		}
	}

	return err
}

func validateProductFields(cmd UpsertProductCommand) error {
	if strings.TrimSpace(cmd.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrProductInvalidInput)
	}
	if cmd.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrProductInvalidInput)
	}
	if strings.TrimSpace(cmd.Currency) == "" {
		return fmt.Errorf("%w: currency is required", ErrProductInvalidInput)
	}
	if cmd.MaxDownloads != nil && *cmd.MaxDownloads <= 0 {
		return fmt.Errorf("%w: max downloads must be positive when set", ErrProductInvalidInput)
	}
	if cmd.DownloadHours < 0 {
		return fmt.Errorf("%w: download hours cannot be negative", ErrProductInvalidInput)
	}
	return nil
}
