package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/maplecart/orders/internal/domain"
	pfirestore "github.com/maplecart/orders/internal/platform/firestore"
)

const productsCollection = "products"

// ProductRepository resolves catalog snapshots used to price order lines.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID, doc.CreateTime, doc.UpdateTime), nil
}

type productDocument struct {
	Name      string    `firestore:"name"`
	UnitPrice int64     `firestore:"unitPrice"`
	Currency  string    `firestore:"currency"`
	Active    bool      `firestore:"active"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string, createdAt, updatedAt time.Time) domain.Product {
	return domain.Product{
		ID:        strings.TrimSpace(id),
		Name:      strings.TrimSpace(d.Name),
		UnitPrice: d.UnitPrice,
		Currency:  strings.TrimSpace(d.Currency),
		Active:    d.Active,
		CreatedAt: chooseTime(d.CreatedAt, createdAt),
		UpdatedAt: chooseTime(d.UpdatedAt, updatedAt),
	}
}
