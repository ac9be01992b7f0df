package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/platform/auth"
	"github.com/sellery/api/internal/platform/httpx"
	"github.com/sellery/api/internal/services"
)

const (
	defaultSalesPageSize = 20
	maxSalesPageSize     = 100
)

// SellerHandlers serves the seller-facing sales views: sold order lines, the
// revenue ledger, and the aggregate summary.
type SellerHandlers struct {
	authn     *auth.Authenticator
	sellers   services.SellerService
	analytics services.AnalyticsService
}

// NewSellerHandlers constructs the seller sales handlers.
func NewSellerHandlers(authn *auth.Authenticator, sellers services.SellerService, analytics services.AnalyticsService) *SellerHandlers {
	return &SellerHandlers{
		authn:     authn,
		sellers:   sellers,
		analytics: analytics,
	}
}

// Routes registers the seller sales endpoints.
func (h *SellerHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleSeller, auth.RoleAdmin))
	}
	r.Get("/sales", h.listSales)
	r.Get("/ledger", h.listLedger)
	r.Get("/summary", h.summary)
}

func (h *SellerHandlers) listSales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sellers == nil {
		httpx.WriteError(ctx, w, httpx.NewError("seller_service_unavailable", "seller service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	pager, err := parsePageQuery(r, defaultSalesPageSize, maxSalesPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.sellers.ListSoldLines(ctx, services.SellerSalesQuery{
		SellerID:   identity.UID,
		StoreID:    strings.TrimSpace(r.URL.Query().Get("store_id")),
		Pagination: pager,
	})
	if err != nil {
		h.writeSellerError(ctx, w, err)
		return
	}

	items := make([]soldLinePayload, 0, len(page.Items))
	for _, line := range page.Items {
		items = append(items, buildSoldLine(line))
	}
	writeJSONResponse(w, http.StatusOK, soldLineListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *SellerHandlers) listLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "sales analytics are disabled", http.StatusServiceUnavailable))
		return
	}

	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	pager, err := parsePageQuery(r, defaultSalesPageSize, maxSalesPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.analytics.ListSellerSales(ctx, identity.UID, pager)
	if err != nil {
		h.writeSellerError(ctx, w, err)
		return
	}

	items := make([]ledgerEntryPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildLedgerEntry(entry))
	}
	writeJSONResponse(w, http.StatusOK, ledgerListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *SellerHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.analytics == nil {
		httpx.WriteError(ctx, w, httpx.NewError("analytics_unavailable", "sales analytics are disabled", http.StatusServiceUnavailable))
		return
	}

	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}

	summary, err := h.analytics.SellerSummary(ctx, identity.UID)
	if err != nil {
		h.writeSellerError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"seller_id":       summary.SellerID,
		"currency":        summary.Currency,
		"gross":           summary.Gross,
		"platform_fees":   summary.PlatformFees,
		"seller_earnings": summary.SellerEarnings,
		"sale_count":      summary.SaleCount,
	})
}

func (h *SellerHandlers) writeSellerError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSellerInvalidInput), errors.Is(err, services.ErrAnalyticsInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("seller_error", "seller query failed", http.StatusInternalServerError))
	}
}

type soldLineListResponse struct {
	Items         []soldLinePayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type soldLinePayload struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	ProductID    string `json:"product_id"`
	ProductTitle string `json:"product_title"`
	StoreID      string `json:"store_id,omitempty"`
	UnitPrice    int64  `json:"unit_price"`
	Quantity     int    `json:"quantity"`
	TotalPrice   int64  `json:"total_price"`
	Currency     string `json:"currency"`
	SoldAt       string `json:"sold_at,omitempty"`
}

func buildSoldLine(line domain.OrderLine) soldLinePayload {
	return soldLinePayload{
		ID:           line.ID,
		OrderID:      line.OrderID,
		ProductID:    line.ProductID,
		ProductTitle: line.ProductTitle,
		StoreID:      line.StoreID,
		UnitPrice:    line.UnitPrice,
		Quantity:     line.Quantity,
		TotalPrice:   line.TotalPrice,
		Currency:     line.Currency,
		SoldAt:       formatTime(line.CreatedAt),
	}
}

type ledgerListResponse struct {
	Items         []ledgerEntryPayload `json:"items"`
	NextPageToken string               `json:"next_page_token,omitempty"`
}

type ledgerEntryPayload struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	OrderLineID    string `json:"order_line_id"`
	ProductID      string `json:"product_id"`
	Gross          int64  `json:"gross"`
	PlatformFee    int64  `json:"platform_fee"`
	SellerEarnings int64  `json:"seller_earnings"`
	Currency       string `json:"currency"`
	BuyerRegion    string `json:"buyer_region,omitempty"`
	OccurredAt     string `json:"occurred_at,omitempty"`
}

func buildLedgerEntry(entry domain.SalesLedgerEntry) ledgerEntryPayload {
	return ledgerEntryPayload{
		ID:             entry.ID,
		OrderID:        entry.OrderID,
		OrderLineID:    entry.OrderLineID,
		ProductID:      entry.ProductID,
		Gross:          entry.Gross,
		PlatformFee:    entry.PlatformFee,
		SellerEarnings: entry.SellerEarnings,
		Currency:       entry.Currency,
		BuyerRegion:    entry.BuyerRegion,
		OccurredAt:     formatTime(entry.OccurredAt),
	}
}
