package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/maplecart/orders/internal/platform/firestore"
	"github.com/maplecart/orders/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract. Close releases the shared client.
type Registry struct {
	provider *pfirestore.Provider

	orders    *OrderRepository
	inventory *InventoryRepository
	products  *ProductRepository
	payments  *PaymentRecordRepository
	loyalty   *LoyaltyRepository
	auditLogs *AuditLogRepository
	counters  *CounterRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository from one shared provider.
// The health repository is supplied by the caller because its probe set spans
// dependencies beyond Firestore.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	reg := &Registry{provider: provider, health: health}

	var err error
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: orders: %w", err)
	}
	if reg.inventory, err = NewInventoryRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: inventory: %w", err)
	}
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: products: %w", err)
	}
	if reg.payments, err = NewPaymentRecordRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: payments: %w", err)
	}
	if reg.loyalty, err = NewLoyaltyRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: loyalty: %w", err)
	}
	if reg.auditLogs, err = NewAuditLogRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: audit logs: %w", err)
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: counters: %w", err)
	}

	return reg, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }

func (r *Registry) Products() repositories.ProductRepository { return r.products }

func (r *Registry) Payments() repositories.PaymentRecordRepository { return r.payments }

func (r *Registry) Loyalty() repositories.LoyaltyRepository { return r.loyalty }

func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.auditLogs }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }
