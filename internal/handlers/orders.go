package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/platform/auth"
	"github.com/sellery/api/internal/platform/httpx"
	"github.com/sellery/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100

	downloadRateLimit  = 30
	downloadRateWindow = time.Minute
)

// OrderHandlers exposes the buyer-facing order endpoints: history, detail, and
// the download entitlement operations on completed order lines.
type OrderHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	downloads services.DownloadService
	limiter   rateLimiter
}

// NewOrderHandlers constructs the order handlers with a per-user rate limit on
// download issuance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, downloads services.DownloadService) *OrderHandlers {
	return &OrderHandlers{
		authn:     authn,
		orders:    orders,
		downloads: downloads,
		limiter:   newSimpleRateLimiter(downloadRateLimit, downloadRateWindow, nil),
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/lines/{lineID}:download-url", h.issueDownloadURL)
	r.Post("/{orderID}/lines/{lineID}:download", h.recordDownload)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	pager, err := parsePageQuery(r, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		UserID:     identity.UID,
		Pagination: pager,
	}
	for _, raw := range query["status"] {
		for _, piece := range strings.Split(raw, ",") {
			if status := strings.TrimSpace(piece); status != "" {
				filter.Status = append(filter.Status, domain.OrderStatus(status))
			}
		}
	}
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.CreatedRange.To = &ts
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID:      orderID,
		UserID:       identity.UID,
		IncludeLines: true,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) issueDownloadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.downloads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("download_service_unavailable", "download service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many download requests; retry later", http.StatusTooManyRequests))
		return
	}

	grant, err := h.downloads.IssueDownloadURL(ctx, services.IssueDownloadCommand{
		UserID:      identity.UID,
		OrderLineID: strings.TrimSpace(chi.URLParam(r, "lineID")),
	})
	if err != nil {
		h.writeDownloadError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"url":        grant.URL,
		"expires_at": formatTime(grant.ExpiresAt),
		"remaining":  grant.Remaining,
	})
}

func (h *OrderHandlers) recordDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.downloads == nil {
		httpx.WriteError(ctx, w, httpx.NewError("download_service_unavailable", "download service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many download requests; retry later", http.StatusTooManyRequests))
		return
	}

	line, err := h.downloads.RecordDownload(ctx, services.RecordDownloadCommand{
		UserID:      identity.UID,
		OrderLineID: strings.TrimSpace(chi.URLParam(r, "lineID")),
	})
	if err != nil {
		h.writeDownloadError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"download_count": line.DownloadCount,
		"remaining":      line.DownloadsRemaining(),
	})
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}

func (h *OrderHandlers) writeDownloadError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDownloadInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDownloadNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("download_not_found", "order line not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDownloadNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("download_not_ready", "order is not completed yet", http.StatusConflict))
	case errors.Is(err, services.ErrDownloadLimitReached):
		httpx.WriteError(ctx, w, httpx.NewError("download_limit_reached", "download limit reached for this purchase", http.StatusForbidden))
	case errors.Is(err, services.ErrDownloadNoFile):
		httpx.WriteError(ctx, w, httpx.NewError("download_no_file", "no file is attached to this purchase", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("download_error", "download operation failed", http.StatusInternalServerError))
	}
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderPayload struct {
	ID                   string             `json:"id"`
	Number               string             `json:"number"`
	Status               string             `json:"status"`
	Currency             string             `json:"currency"`
	TotalAmount          int64              `json:"total_amount"`
	PaymentMethod        string             `json:"payment_method,omitempty"`
	PaymentTransactionID string             `json:"payment_transaction_id,omitempty"`
	Notes                string             `json:"notes,omitempty"`
	Metadata             map[string]any     `json:"metadata,omitempty"`
	CreatedAt            string             `json:"created_at,omitempty"`
	UpdatedAt            string             `json:"updated_at,omitempty"`
	PaymentCompletedAt   string             `json:"payment_completed_at,omitempty"`
	Lines                []orderLinePayload `json:"lines,omitempty"`
}

type orderLinePayload struct {
	ID                string `json:"id"`
	ProductID         string `json:"product_id"`
	ProductTitle      string `json:"product_title"`
	UnitPrice         int64  `json:"unit_price"`
	Quantity          int    `json:"quantity"`
	TotalPrice        int64  `json:"total_price"`
	Currency          string `json:"currency"`
	DownloadCount     int    `json:"download_count"`
	DownloadsLeft     int    `json:"downloads_left"`
	DownloadExpiresAt string `json:"download_expires_at,omitempty"`
	HasFile           bool   `json:"has_file"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:                   order.ID,
		Number:               order.Number,
		Status:               string(order.Status),
		Currency:             order.Currency,
		TotalAmount:          order.TotalAmount,
		PaymentMethod:        order.PaymentMethod,
		PaymentTransactionID: order.PaymentTransactionID,
		Notes:                order.Notes,
		Metadata:             cloneMap(order.Metadata),
		CreatedAt:            formatTime(order.CreatedAt),
		UpdatedAt:            formatTime(order.UpdatedAt),
		PaymentCompletedAt:   formatTimePtr(order.PaymentCompletedAt),
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ID:                line.ID,
			ProductID:         line.ProductID,
			ProductTitle:      line.ProductTitle,
			UnitPrice:         line.UnitPrice,
			Quantity:          line.Quantity,
			TotalPrice:        line.TotalPrice,
			Currency:          line.Currency,
			DownloadCount:     line.DownloadCount,
			DownloadsLeft:     line.DownloadsRemaining(),
			DownloadExpiresAt: formatTimePtr(line.DownloadExpiresAt),
			HasFile:           strings.TrimSpace(line.StoragePath) != "",
		})
	}
	return payload
}
