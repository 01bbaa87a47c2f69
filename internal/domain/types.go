package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order is created and awaits payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates payment succeeded.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusCancelled indicates the order was cancelled or refunded; terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order captures an order header with its embedded lines. Lines live inside the
// order document so the order+lines write is a single atomic unit.
type Order struct {
	ID           string
	OrderNumber  string
	UserID       string
	Status       OrderStatus
	Currency     string
	Total        int64
	Lines        []OrderLine
	CancelReason *string
	Audit        OrderAudit
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PaidAt       *time.Time
	CancelledAt  *time.Time
}

// OrderLine snapshots one requested product at order time. UnitPrice is captured
// when the order is created and never tracks later catalog changes.
type OrderLine struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	Total     int64
}

// LineTotal returns the sum of line totals; the order invariant is
// Total == LineTotal().
func (o Order) LineTotal() int64 {
	var sum int64
	for _, line := range o.Lines {
		sum += line.UnitPrice * int64(line.Quantity)
	}
	return sum
}

// OrderAudit records the actors responsible for creating/updating the order.
type OrderAudit struct {
	CreatedBy *string
	UpdatedBy *string
}

// Product is the catalog snapshot the order core needs: identity, display name,
// and the unit price in minor units.
type Product struct {
	ID        string
	Name      string
	UnitPrice int64
	Currency  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InventoryRecord tracks sellable units for one product. Available never drops
// below zero; LowStockThreshold drives the low-stock signal.
type InventoryRecord struct {
	ProductID         string
	Available         int64
	LowStockThreshold int64
	UpdatedAt         time.Time
}

// ValidationResult reports the outcome of one validation chain run. A failed
// result carries only the failing step's errors.
type ValidationResult struct {
	Valid  bool
	Step   string
	Errors []string
}

// CommandResult is produced by every command execution and undo. Failures carry
// a message and the captured cause; commands never surface raw errors.
type CommandResult struct {
	Success bool
	Message string
	Order   *Order
	Err     error
}

// PaymentKind distinguishes charge and refund records.
type PaymentKind string

const (
	// PaymentKindCharge marks a capture of funds.
	PaymentKindCharge PaymentKind = "charge"
	// PaymentKindRefund marks a return of funds.
	PaymentKindRefund PaymentKind = "refund"
)

// PaymentRecord stores one gateway interaction for an order.
type PaymentRecord struct {
	ID          string
	OrderID     string
	Kind        PaymentKind
	Provider    string
	ProviderRef string
	Amount      int64
	Currency    string
	CreatedAt   time.Time
}

// LoyaltyEntryKind distinguishes awards from reversals.
type LoyaltyEntryKind string

const (
	// LoyaltyEntryAward credits points after a successful payment.
	LoyaltyEntryAward LoyaltyEntryKind = "award"
	// LoyaltyEntryReversal debits points when a paid order is cancelled.
	LoyaltyEntryReversal LoyaltyEntryKind = "reversal"
)

// LoyaltyEntry records one points movement tied to an order.
type LoyaltyEntry struct {
	ID        string
	UserID    string
	OrderID   string
	Kind      LoyaltyEntryKind
	Points    int64
	CreatedAt time.Time
}

// LoyaltyAccount aggregates a user's point balance.
type LoyaltyAccount struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// AuditLogEntry stores normalized audit information for operator review.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Severity  string
	RequestID string
	CreatedAt time.Time
}

// Health statuses reported by dependency probes.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck reports one dependency probe result.
type SystemHealthCheck struct {
	Status    string
	LatencyMS int64
	Error     string
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
