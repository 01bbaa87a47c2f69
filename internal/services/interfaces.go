package services

import (
	"context"
	"time"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	OrderStatus        = domain.OrderStatus
	OrderAudit         = domain.OrderAudit
	Product            = domain.Product
	InventoryRecord    = domain.InventoryRecord
	ValidationResult   = domain.ValidationResult
	CommandResult      = domain.CommandResult
	PaymentRecord      = domain.PaymentRecord
	LoyaltyEntry       = domain.LoyaltyEntry
	LoyaltyAccount     = domain.LoyaltyAccount
	AuditLogEntry      = domain.AuditLogEntry
	SystemHealthReport = domain.SystemHealthReport
)

// OrderListFilter is shared verbatim with the repository layer.
type OrderListFilter = repositories.OrderListFilter

// Logger is the narrow structured-logging contract services receive from the
// host process. Implementations must be safe for concurrent use.
type Logger func(ctx context.Context, event string, fields map[string]any)

// OrderService exposes the order lifecycle to the transport layer. Mutations
// run as commands through the invoker and report a CommandResult; reads return
// plain errors.
type OrderService interface {
	CreateOrder(ctx context.Context, callerID string, req CreateOrderRequest) CommandResult
	ProcessPayment(ctx context.Context, callerID, orderID string) CommandResult
	CancelOrder(ctx context.Context, callerID, orderID, reason string) CommandResult
	RefundOrder(ctx context.Context, callerID, orderID, reason string) CommandResult
	UndoLastCommand(ctx context.Context, callerID string) CommandResult
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	AvailableActions(ctx context.Context, orderID string) (OrderActions, error)
	CanTransitionTo(ctx context.Context, orderID string, target OrderStatus) (bool, error)
	UndoState(callerID string) UndoState
}

// InventoryService centralizes stock reservation, release, and low-stock reads.
type InventoryService interface {
	Reserve(ctx context.Context, productID string, quantity int64) (InventoryRecord, error)
	Release(ctx context.Context, productID string, quantity int64) (InventoryRecord, error)
	Available(ctx context.Context, productID string) (int64, error)
	Upsert(ctx context.Context, cmd UpsertInventoryCommand) (InventoryRecord, error)
	ListLowStock(ctx context.Context, filter InventoryLowStockFilter) (domain.CursorPage[InventoryRecord], error)
}

// CatalogService resolves catalog products for the transport layer.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
}

// LoyaltyService accrues and reverses loyalty points for paid orders.
type LoyaltyService interface {
	AwardForOrder(ctx context.Context, order Order) (LoyaltyEntry, error)
	ReverseForOrder(ctx context.Context, order Order) (LoyaltyEntry, error)
	Account(ctx context.Context, userID string) (LoyaltyAccount, error)
}

// NotificationService enqueues customer notification jobs with a negotiated locale.
type NotificationService interface {
	EnqueueOrderNotification(ctx context.Context, cmd OrderNotificationCommand) (NotificationMessage, error)
}

// AuditLogService centralizes audit trail persistence and retrieval. Record is
// fire-and-forget: persistence failures are logged, never returned.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// SystemService aggregates utility surface data (health checks, build metadata).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Outbound publishers -------------------------------------------------------

// OrderEventPublisher pushes order lifecycle events to the event stream. The
// returned string is the broker-assigned message id.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// LowStockPublisher delivers low-stock alerts to the replenishment pipeline.
type LowStockPublisher interface {
	PublishLowStockAlert(ctx context.Context, message LowStockAlertMessage) (string, error)
}

// NotificationPublisher hands customer notification jobs to the delivery queue.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, message NotificationMessage) (string, error)
}

// OrderEventMessage is the wire payload for one order lifecycle event.
type OrderEventMessage struct {
	EventID     string    `json:"eventId"`
	Type        string    `json:"type"`
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	Total       int64     `json:"total"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// LowStockAlertMessage is the wire payload for a low-stock alert. OrderID is
// set when a reservation triggered the alert and empty for manual adjustments.
type LowStockAlertMessage struct {
	ProductID  string    `json:"productId"`
	Available  int64     `json:"available"`
	Threshold  int64     `json:"threshold"`
	OrderID    string    `json:"orderId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NotificationMessage is the wire payload for a queued customer notification.
type NotificationMessage struct {
	NotificationID string    `json:"notificationId"`
	UserID         string    `json:"userId"`
	OrderID        string    `json:"orderId"`
	Template       string    `json:"template"`
	Locale         string    `json:"locale"`
	QueuedAt       time.Time `json:"queuedAt"`
}

// Command and DTO definitions ------------------------------------------------

// CreateOrderRequest is the inbound order creation payload validated by the pipeline.
type CreateOrderRequest struct {
	UserID   string
	Lines    []OrderLineRequest
	Metadata map[string]any
}

// OrderLineRequest is one requested product and quantity pair.
type OrderLineRequest struct {
	ProductID string
	Quantity  int
}

// OrderActions reports which lifecycle operations are legal for an order right now.
type OrderActions struct {
	OrderID      string
	Status       OrderStatus
	Actions      string
	CanPay       bool
	CanCancel    bool
	CanRefund    bool
	LegalTargets []OrderStatus
}

// UndoState summarizes a caller's undo history.
type UndoState struct {
	Count           int
	LastDescription string
}

// UpsertInventoryCommand seeds or adjusts a product's inventory record.
type UpsertInventoryCommand struct {
	ProductID         string
	Available         int64
	LowStockThreshold *int64
}

// InventoryLowStockFilter pages through records at or below their threshold.
type InventoryLowStockFilter struct {
	Pagination Pagination
}

// OrderNotificationCommand requests a customer notification about an order.
// Locale is optional; the order metadata and the service default fill the gap.
type OrderNotificationCommand struct {
	Order    Order
	Template string
	Locale   string
}

// AuditLogRecord is the payload accepted by the audit writer.
type AuditLogRecord struct {
	Actor      string
	ActorType  string
	Action     string
	TargetRef  string
	Severity   string
	RequestID  string
	OccurredAt time.Time
	Metadata   map[string]any
}

// AuditLogFilter narrows audit trail listings.
type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}
