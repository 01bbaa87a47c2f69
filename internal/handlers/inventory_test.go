package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/services"
)

type stubInventoryService struct {
	upsertFn       func(context.Context, services.UpsertInventoryCommand) (services.InventoryRecord, error)
	listLowStockFn func(context.Context, services.InventoryLowStockFilter) (domain.CursorPage[services.InventoryRecord], error)
}

var _ services.InventoryService = (*stubInventoryService)(nil)

func (s *stubInventoryService) Reserve(context.Context, string, int64) (services.InventoryRecord, error) {
	return services.InventoryRecord{}, nil
}

func (s *stubInventoryService) Release(context.Context, string, int64) (services.InventoryRecord, error) {
	return services.InventoryRecord{}, nil
}

func (s *stubInventoryService) Available(context.Context, string) (int64, error) {
	return 0, nil
}

func (s *stubInventoryService) Upsert(ctx context.Context, cmd services.UpsertInventoryCommand) (services.InventoryRecord, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, cmd)
	}
	return services.InventoryRecord{}, nil
}

func (s *stubInventoryService) ListLowStock(ctx context.Context, filter services.InventoryLowStockFilter) (domain.CursorPage[services.InventoryRecord], error) {
	if s.listLowStockFn != nil {
		return s.listLowStockFn(ctx, filter)
	}
	return domain.CursorPage[services.InventoryRecord]{}, nil
}

func newInventoryRouter(handler *InventoryHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/inventory", handler.Routes)
	return router
}

func TestInventoryHandlersListLowStock(t *testing.T) {
	updated := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	var capturedFilter services.InventoryLowStockFilter

	service := &stubInventoryService{
		listLowStockFn: func(ctx context.Context, filter services.InventoryLowStockFilter) (domain.CursorPage[services.InventoryRecord], error) {
			capturedFilter = filter
			return domain.CursorPage[services.InventoryRecord]{
				Items: []services.InventoryRecord{
					{ProductID: "prod_widget", Available: 3, LowStockThreshold: 5, UpdatedAt: updated},
				},
				NextPageToken: "tok-low",
			}, nil
		},
	}

	handler := NewInventoryHandlers(service)
	router := newInventoryRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/inventory/low-stock?page_size=10&page_token=tok123", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedFilter.Pagination.PageSize != 10 {
		t.Fatalf("expected page size 10, got %d", capturedFilter.Pagination.PageSize)
	}
	if capturedFilter.Pagination.PageToken != "tok123" {
		t.Fatalf("expected page token tok123, got %s", capturedFilter.Pagination.PageToken)
	}

	var resp inventoryListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 record, got %d", len(resp.Items))
	}
	if resp.Items[0].ProductID != "prod_widget" || resp.Items[0].Available != 3 {
		t.Fatalf("unexpected record payload: %#v", resp.Items[0])
	}
	if resp.NextPageToken != "tok-low" {
		t.Fatalf("expected next page token tok-low, got %s", resp.NextPageToken)
	}
}

func TestInventoryHandlersListLowStockInvalidPageSize(t *testing.T) {
	handler := NewInventoryHandlers(&stubInventoryService{})
	router := newInventoryRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/inventory/low-stock?page_size=abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInventoryHandlersUpsertRecord(t *testing.T) {
	var capturedCmd services.UpsertInventoryCommand

	service := &stubInventoryService{
		upsertFn: func(ctx context.Context, cmd services.UpsertInventoryCommand) (services.InventoryRecord, error) {
			capturedCmd = cmd
			return services.InventoryRecord{
				ProductID:         cmd.ProductID,
				Available:         cmd.Available,
				LowStockThreshold: 5,
			}, nil
		},
	}

	handler := NewInventoryHandlers(service)
	router := newInventoryRouter(handler)

	body := `{"available":25,"low_stock_threshold":5}`
	req := httptest.NewRequest(http.MethodPut, "/inventory/prod_widget", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedCmd.ProductID != "prod_widget" {
		t.Fatalf("expected product id prod_widget, got %s", capturedCmd.ProductID)
	}
	if capturedCmd.Available != 25 {
		t.Fatalf("expected available 25, got %d", capturedCmd.Available)
	}
	if capturedCmd.LowStockThreshold == nil || *capturedCmd.LowStockThreshold != 5 {
		t.Fatalf("expected threshold 5, got %#v", capturedCmd.LowStockThreshold)
	}

	var resp inventoryRecordResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Record.ProductID != "prod_widget" || resp.Record.Available != 25 {
		t.Fatalf("unexpected record payload: %#v", resp.Record)
	}
}

func TestInventoryHandlersUpsertRecordOmitsThreshold(t *testing.T) {
	var capturedCmd services.UpsertInventoryCommand

	service := &stubInventoryService{
		upsertFn: func(ctx context.Context, cmd services.UpsertInventoryCommand) (services.InventoryRecord, error) {
			capturedCmd = cmd
			return services.InventoryRecord{ProductID: cmd.ProductID, Available: cmd.Available}, nil
		},
	}

	handler := NewInventoryHandlers(service)
	router := newInventoryRouter(handler)

	req := httptest.NewRequest(http.MethodPut, "/inventory/prod_widget", strings.NewReader(`{"available":10}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if capturedCmd.LowStockThreshold != nil {
		t.Fatalf("expected nil threshold, got %#v", capturedCmd.LowStockThreshold)
	}
}

func TestInventoryHandlersUpsertRecordInvalidInput(t *testing.T) {
	service := &stubInventoryService{
		upsertFn: func(context.Context, services.UpsertInventoryCommand) (services.InventoryRecord, error) {
			return services.InventoryRecord{}, services.ErrOrderInvalidInput
		},
	}

	handler := NewInventoryHandlers(service)
	router := newInventoryRouter(handler)

	req := httptest.NewRequest(http.MethodPut, "/inventory/prod_widget", strings.NewReader(`{"available":-1}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInventoryHandlersUpsertRecordInvalidJSON(t *testing.T) {
	handler := NewInventoryHandlers(&stubInventoryService{})
	router := newInventoryRouter(handler)

	req := httptest.NewRequest(http.MethodPut, "/inventory/prod_widget", strings.NewReader(`{"available":`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInventoryHandlersServiceUnavailable(t *testing.T) {
	handler := NewInventoryHandlers(nil)
	router := newInventoryRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/inventory/low-stock", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
