package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maplecart/orders/internal/repositories"
)

// CatalogServiceDeps enumerates constructor inputs for the catalog read service.
type CatalogServiceDeps struct {
	Products repositories.ProductRepository
}

type catalogService struct {
	products repositories.ProductRepository
}

// NewCatalogService exposes read access to the product catalog.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	return &catalogService{products: deps.Products}, nil
}

// GetProduct loads a single catalog product by id.
func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapProductRepositoryError(productID, err)
	}
	return product, nil
}
