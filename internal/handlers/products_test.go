package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/orders/internal/services"
)

type stubCatalogService struct {
	getFn func(context.Context, string) (services.Product, error)
}

var _ services.CatalogService = (*stubCatalogService)(nil)

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return services.Product{}, services.ErrProductNotFound
}

func newProductRouter(handler *ProductHandlers) chi.Router {
	router := chi.NewRouter()
	router.Route("/products", handler.Routes)
	return router
}

func TestProductHandlersGetProduct(t *testing.T) {
	created := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	service := &stubCatalogService{
		getFn: func(ctx context.Context, productID string) (services.Product, error) {
			if productID != "prod_widget" {
				t.Fatalf("unexpected product id %s", productID)
			}
			return services.Product{
				ID:        "prod_widget",
				Name:      "Widget",
				UnitPrice: 2999,
				Currency:  "usd",
				Active:    true,
				CreatedAt: created,
				UpdatedAt: created,
			}, nil
		},
	}

	handler := NewProductHandlers(service)
	router := newProductRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/products/prod_widget", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp productResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Product.ID != "prod_widget" || resp.Product.Name != "Widget" {
		t.Fatalf("unexpected product payload: %#v", resp.Product)
	}
	if resp.Product.Currency != "USD" {
		t.Fatalf("expected currency uppercased, got %s", resp.Product.Currency)
	}
	if !resp.Product.Active {
		t.Fatalf("expected product to be active")
	}
}

func TestProductHandlersGetProductNotFound(t *testing.T) {
	handler := NewProductHandlers(&stubCatalogService{})
	router := newProductRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/products/prod_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "product_not_found" {
		t.Fatalf("expected product_not_found, got %v", body["error"])
	}
}

func TestProductHandlersServiceUnavailable(t *testing.T) {
	handler := NewProductHandlers(nil)
	router := newProductRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/products/prod_widget", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
