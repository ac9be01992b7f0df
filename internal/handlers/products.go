package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/platform/auth"
	"github.com/sellery/api/internal/platform/httpx"
	"github.com/sellery/api/internal/services"
)

const (
	defaultProductPageSize = 20
	maxProductPageSize     = 100
	maxProductBodySize     = 32 * 1024
)

// ProductHandlers exposes the public catalogue and the seller-side listing
// management endpoints. Descriptions are accepted as limited HTML and run
// through the sanitiser before they reach the service layer.
type ProductHandlers struct {
	authn     *auth.Authenticator
	products  services.ProductService
	sanitizer *bluemonday.Policy
}

// NewProductHandlers constructs the catalogue handlers.
func NewProductHandlers(authn *auth.Authenticator, products services.ProductService) *ProductHandlers {
	return &ProductHandlers{
		authn:     authn,
		products:  products,
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// PublicRoutes registers the unauthenticated catalogue endpoints.
func (h *ProductHandlers) PublicRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listPublished)
	r.Get("/{productID}", h.getPublished)
}

// SellerRoutes registers listing management under the seller group.
func (h *ProductHandlers) SellerRoutes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleSeller, auth.RoleAdmin))
	}
	r.Get("/", h.listOwn)
	r.Post("/", h.createProduct)
	r.Get("/{productID}", h.getOwn)
	r.Patch("/{productID}", h.updateProduct)
	r.Post("/{productID}:upload-url", h.issueUploadURL)
	r.Post("/{productID}:archive", h.archiveProduct)
}

func (h *ProductHandlers) listPublished(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePageQuery(r, defaultProductPageSize, maxProductPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.ProductListFilter{
		StoreID:    strings.TrimSpace(r.URL.Query().Get("store_id")),
		Status:     []domain.ProductStatus{domain.ProductStatusPublished},
		Pagination: pager,
	}

	page, err := h.products.ListProducts(ctx, filter)
	if err != nil {
		h.writeProductError(ctx, w, err)
		return
	}

	items := make([]publicProductPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildPublicProduct(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse[publicProductPayload]{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *ProductHandlers) getPublished(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.products == nil {
		httpx.WriteError(ctx, w, httpx.NewError("product_service_unavailable", "product service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.products.GetProduct(ctx, productID)
	if err != nil {
		h.writeProductError(ctx, w, err)
		return
	}
	if product.Status != domain.ProductStatusPublished {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildPublicProduct(product)})
}

func (h *ProductHandlers) listOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	pager, err := parsePageQuery(r, defaultProductPageSize, maxProductPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.ProductListFilter{
		SellerID:   identity.UID,
		Pagination: pager,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		filter.Status = []domain.ProductStatus{domain.ProductStatus(raw)}
	}

	page, err := h.products.ListProducts(ctx, filter)
	if err != nil {
		h.writeProductError(ctx, w, err)
		return
	}

	items := make([]sellerProductPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildSellerProduct(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse[sellerProductPayload]{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *ProductHandlers) getOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	product, err := h.products.GetProduct(ctx, productID)
	if err != nil {
		h.writeProductError(ctx, w, err)
		return
	}
	if product.SellerID != identity.UID && !identity.HasRole(auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildSellerProduct(product)})
}

type upsertProductRequest struct {
	StoreID       string `json:"store_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	MaxDownloads  *int   `json:"max_downloads"`
	DownloadHours int    `json:"download_hours"`
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeUpsert(w, r)
	if !ok {
		return
	}

	cmd := h.buildUpsertCommand(req, identity.UID)
	product, err := h.products.CreateProduct(ctx, cmd)
	if err != nil {
		h.writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"product": buildSellerProduct(product)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeUpsert(w, r)
	if !ok {
		return
	}

	cmd := h.buildUpsertCommand(req, identity.UID)
	cmd.ProductID = strings.TrimSpace(chi.URLParam(r, "productID"))
	product, err := h.products.UpdateProduct(ctx, cmd)
	if err != nil {
		h.writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildSellerProduct(product)})
}

type uploadURLRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

func (h *ProductHandlers) issueUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req uploadURLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	signed, err := h.products.IssueUploadURL(ctx, services.ProductUploadCommand{
		SellerID:    identity.UID,
		ProductID:   strings.TrimSpace(chi.URLParam(r, "productID")),
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		h.writeProductError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"url":        signed.URL,
		"method":     signed.Method,
		"headers":    signed.Headers,
		"expires_at": formatTime(signed.ExpiresAt),
	})
}

func (h *ProductHandlers) archiveProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	deleteFile := strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("delete_file")), "true")
	product, err := h.products.ArchiveProduct(ctx, services.ArchiveProductCommand{
		ProductID:  strings.TrimSpace(chi.URLParam(r, "productID")),
		SellerID:   identity.UID,
		DeleteFile: deleteFile,
	})
	if err != nil {
		h.writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildSellerProduct(product)})
}

func (h *ProductHandlers) decodeUpsert(w http.ResponseWriter, r *http.Request) (upsertProductRequest, bool) {
	ctx := r.Context()
	var req upsertProductRequest

	body, err := readLimitedBody(r, maxProductBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return req, false
	}
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return req, false
	}
	return req, true
}

func (h *ProductHandlers) buildUpsertCommand(req upsertProductRequest, sellerID string) services.UpsertProductCommand {
	return services.UpsertProductCommand{
		StoreID:       strings.TrimSpace(req.StoreID),
		SellerID:      sellerID,
		Title:         strings.TrimSpace(req.Title),
		Description:   h.sanitizer.Sanitize(req.Description),
		Price:         req.Price,
		Currency:      strings.TrimSpace(req.Currency),
		Status:        domain.ProductStatus(strings.TrimSpace(req.Status)),
		MaxDownloads:  req.MaxDownloads,
		DownloadHours: req.DownloadHours,
	}
}

func (h *ProductHandlers) writeProductError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProductInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("product_forbidden", "listing belongs to another seller", http.StatusForbidden))
	case errors.Is(err, services.ErrProductNotPublishable):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_publishable", err.Error(), http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("product_error", "product operation failed", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

type productListResponse[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

type publicProductPayload struct {
	ID            string `json:"id"`
	StoreID       string `json:"store_id,omitempty"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Price         int64  `json:"price"`
	Currency      string `json:"currency"`
	MaxDownloads  *int   `json:"max_downloads,omitempty"`
	DownloadHours int    `json:"download_hours,omitempty"`
}

type sellerProductPayload struct {
	publicProductPayload
	SellerID    string `json:"seller_id"`
	Status      string `json:"status"`
	StoragePath string `json:"storage_path,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildPublicProduct(product domain.Product) publicProductPayload {
	return publicProductPayload{
		ID:            product.ID,
		StoreID:       product.StoreID,
		Title:         product.Title,
		Description:   product.Description,
		Price:         product.Price,
		Currency:      product.Currency,
		MaxDownloads:  product.MaxDownloads,
		DownloadHours: product.DownloadHours,
	}
}

func buildSellerProduct(product domain.Product) sellerProductPayload {
	return sellerProductPayload{
		publicProductPayload: buildPublicProduct(product),
		SellerID:             product.SellerID,
		Status:               string(product.Status),
		StoragePath:          product.StoragePath,
		CreatedAt:            formatTime(product.CreatedAt),
		UpdatedAt:            formatTime(product.UpdatedAt),
	}
}
