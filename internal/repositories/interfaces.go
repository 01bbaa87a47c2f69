package repositories

import (
	"context"
	"time"

	domain "github.com/maplecart/orders/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Inventory() InventoryRepository
	Products() ProductRepository
	Payments() PaymentRecordRepository
	Loyalty() LoyaltyRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order documents (lines embedded) and provides query helpers.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// InventoryRepository manages per-product available-unit counters with transactional guarantees.
// Reserve and Release perform the check-then-write inside one transaction per product record,
// so concurrent adjustments for the same product are serialized by the store.
type InventoryRepository interface {
	Reserve(ctx context.Context, adj InventoryAdjustment) (domain.InventoryRecord, error)
	Release(ctx context.Context, adj InventoryAdjustment) (domain.InventoryRecord, error)
	Find(ctx context.Context, productID string) (domain.InventoryRecord, error)
	Save(ctx context.Context, record domain.InventoryRecord) (domain.InventoryRecord, error)
	ListLowStock(ctx context.Context, query InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error)
}

// InventoryAdjustment carries one stock movement for a single product.
type InventoryAdjustment struct {
	ProductID string
	Quantity  int64
	Now       time.Time
}

// InventoryLowStockQuery controls pagination for low stock listings.
type InventoryLowStockQuery struct {
	PageSize  int
	PageToken string
}

// ProductRepository resolves catalog snapshots the order core prices against.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
}

// PaymentRecordRepository stores gateway charge/refund records underneath an order.
type PaymentRecordRepository interface {
	Insert(ctx context.Context, record domain.PaymentRecord) error
	List(ctx context.Context, orderID string) ([]domain.PaymentRecord, error)
}

// LoyaltyRepository applies point movements and keeps the per-user balance consistent
// with the entry log inside one transaction.
type LoyaltyRepository interface {
	Apply(ctx context.Context, entry domain.LoyaltyEntry) (domain.LoyaltyAccount, error)
	Account(ctx context.Context, userID string) (domain.LoyaltyAccount, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}
