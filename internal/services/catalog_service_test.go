package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/maplecart/orders/internal/domain"
)

func TestNewCatalogService(t *testing.T) {
	if _, err := NewCatalogService(CatalogServiceDeps{}); err == nil {
		t.Fatalf("expected error when product repository missing")
	}

	repo := &stubCatalogRepo{products: map[string]domain.Product{}}
	if _, err := NewCatalogService(CatalogServiceDeps{Products: repo}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCatalogServiceGetProduct(t *testing.T) {
	repo := &stubCatalogRepo{
		products: map[string]domain.Product{
			"prod_widget": activeProduct("prod_widget", 2999),
		},
	}
	svc, err := NewCatalogService(CatalogServiceDeps{Products: repo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("validates id", func(t *testing.T) {
		if _, err := svc.GetProduct(context.Background(), "  "); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid input error, got %v", err)
		}
		if repo.lookups != 0 {
			t.Fatalf("expected repository untouched, got %d lookups", repo.lookups)
		}
	})

	t.Run("delegates to repository", func(t *testing.T) {
		product, err := svc.GetProduct(context.Background(), " prod_widget ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if product.ID != "prod_widget" {
			t.Fatalf("expected product id prod_widget, got %s", product.ID)
		}
		if product.UnitPrice != 2999 {
			t.Fatalf("expected unit price 2999, got %d", product.UnitPrice)
		}
	})

	t.Run("maps missing products", func(t *testing.T) {
		if _, err := svc.GetProduct(context.Background(), "prod_ghost"); !errors.Is(err, ErrProductNotFound) {
			t.Fatalf("expected product not found, got %v", err)
		}
	})
}

func TestCatalogServiceGetProductUnavailableRepository(t *testing.T) {
	repo := &stubCatalogRepo{findErr: fakeRepoError{unavailable: true}}
	svc, err := NewCatalogService(CatalogServiceDeps{Products: repo})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.GetProduct(context.Background(), "prod_widget"); !errors.Is(err, ErrRepositoryUnavailable) {
		t.Fatalf("expected repository unavailable error, got %v", err)
	}
}
