package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/orders/internal/platform/httpx"
	"github.com/maplecart/orders/internal/services"
)

const maxInventoryBodySize = 4 * 1024

type upsertInventoryRequest struct {
	Available         int64  `json:"available"`
	LowStockThreshold *int64 `json:"low_stock_threshold"`
}

// InventoryHandlers exposes the operational inventory endpoints.
type InventoryHandlers struct {
	inventory services.InventoryService
}

// NewInventoryHandlers constructs handlers over the inventory service.
func NewInventoryHandlers(inventory services.InventoryService) *InventoryHandlers {
	return &InventoryHandlers{inventory: inventory}
}

// Routes registers the /inventory endpoints.
func (h *InventoryHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/low-stock", h.listLowStock)
	r.Put("/{productID}", h.upsertRecord)
}

func (h *InventoryHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.inventory.ListLowStock(ctx, services.InventoryLowStockFilter{
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	items := make([]inventoryRecordPayload, 0, len(page.Items))
	for _, record := range page.Items {
		items = append(items, buildInventoryRecordPayload(record))
	}

	writeJSONResponse(w, http.StatusOK, inventoryListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *InventoryHandlers) upsertRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxInventoryBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req upsertInventoryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	record, err := h.inventory.Upsert(ctx, services.UpsertInventoryCommand{
		ProductID:         productID,
		Available:         req.Available,
		LowStockThreshold: req.LowStockThreshold,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, inventoryRecordResponse{Record: buildInventoryRecordPayload(record)})
}

type inventoryListResponse struct {
	Items         []inventoryRecordPayload `json:"items"`
	NextPageToken string                   `json:"next_page_token,omitempty"`
}

type inventoryRecordResponse struct {
	Record inventoryRecordPayload `json:"record"`
}

type inventoryRecordPayload struct {
	ProductID         string `json:"product_id"`
	Available         int64  `json:"available"`
	LowStockThreshold int64  `json:"low_stock_threshold"`
	UpdatedAt         string `json:"updated_at,omitempty"`
}

func buildInventoryRecordPayload(record services.InventoryRecord) inventoryRecordPayload {
	return inventoryRecordPayload{
		ProductID:         strings.TrimSpace(record.ProductID),
		Available:         record.Available,
		LowStockThreshold: record.LowStockThreshold,
		UpdatedAt:         formatTime(record.UpdatedAt),
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var stockErr *services.InsufficientStockError
	if errors.As(err, &stockErr) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusConflict))
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "inventory storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
