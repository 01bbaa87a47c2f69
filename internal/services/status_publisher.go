package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/orders/internal/domain"
)

// Lifecycle event names shared by the event stream and notification templates.
const (
	orderEventCreated   = "order.created"
	orderEventPaid      = "order.paid"
	orderEventCancelled = "order.cancelled"

	eventStatusHandlerFailed = "orders.status.handler.failed"
)

// StatusChangeHandler reacts to a committed order status change. ShouldNotify
// is a cheap filter consulted before OnStatusChanged runs; the creation of an
// order is delivered with an empty old status.
type StatusChangeHandler interface {
	Name() string
	ShouldNotify(oldStatus, newStatus OrderStatus) bool
	OnStatusChanged(ctx context.Context, order Order, oldStatus, newStatus OrderStatus) error
}

// StatusChangeNotifier is the publisher contract commands depend on.
type StatusChangeNotifier interface {
	NotifyStatusChange(ctx context.Context, order Order, oldStatus, newStatus OrderStatus)
}

// StatusChangePublisher fans a committed status change out to its handlers in
// registration order. Handler failures and panics are logged and contained so
// one reaction can never block the others or unwind the committed change.
type StatusChangePublisher struct {
	handlers []StatusChangeHandler
	logger   Logger
}

// NewStatusChangePublisher registers handlers; their order is the delivery order.
func NewStatusChangePublisher(logger Logger, handlers ...StatusChangeHandler) *StatusChangePublisher {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StatusChangePublisher{handlers: handlers, logger: logger}
}

// Register appends a handler after construction.
func (p *StatusChangePublisher) Register(handler StatusChangeHandler) {
	if handler == nil {
		return
	}
	p.handlers = append(p.handlers, handler)
}

// NotifyStatusChange delivers the change to every handler whose filter passes.
func (p *StatusChangePublisher) NotifyStatusChange(ctx context.Context, order Order, oldStatus, newStatus OrderStatus) {
	for _, handler := range p.handlers {
		if handler == nil || !handler.ShouldNotify(oldStatus, newStatus) {
			continue
		}
		if err := dispatchStatusChange(ctx, handler, order, oldStatus, newStatus); err != nil {
			p.logger(ctx, eventStatusHandlerFailed, map[string]any{
				"handler": handler.Name(),
				"orderId": order.ID,
				"from":    string(oldStatus),
				"to":      string(newStatus),
				"error":   err.Error(),
			})
		}
	}
}

func dispatchStatusChange(ctx context.Context, handler StatusChangeHandler, order Order, oldStatus, newStatus OrderStatus) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.OnStatusChanged(ctx, order, oldStatus, newStatus)
}

// orderEventType names the lifecycle event emitted for a transition, or ""
// when the transition produces no event.
func orderEventType(oldStatus, newStatus OrderStatus) string {
	switch {
	case oldStatus == "" && newStatus == domain.OrderStatusPending:
		return orderEventCreated
	case newStatus == domain.OrderStatusPaid && oldStatus != newStatus:
		return orderEventPaid
	case newStatus == domain.OrderStatusCancelled && oldStatus != newStatus:
		return orderEventCancelled
	default:
		return ""
	}
}

// Handlers --------------------------------------------------------------------

type orderEventHandler struct {
	events OrderEventPublisher
	clock  func() time.Time
	newID  func() string
}

// NewOrderEventHandler publishes an event to the order event stream for every
// lifecycle change, creation included.
func NewOrderEventHandler(events OrderEventPublisher, clock func() time.Time, idGen func() string) StatusChangeHandler {
	if clock == nil {
		clock = time.Now
	}
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &orderEventHandler{events: events, clock: clock, newID: idGen}
}

func (h *orderEventHandler) Name() string { return "order-events" }

func (h *orderEventHandler) ShouldNotify(oldStatus, newStatus OrderStatus) bool {
	return orderEventType(oldStatus, newStatus) != ""
}

func (h *orderEventHandler) OnStatusChanged(ctx context.Context, order Order, oldStatus, newStatus OrderStatus) error {
	if h.events == nil {
		return errors.New("order event publisher not configured")
	}
	_, err := h.events.PublishOrderEvent(ctx, OrderEventMessage{
		EventID:     "evt_" + h.newID(),
		Type:        orderEventType(oldStatus, newStatus),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(newStatus),
		Total:       order.Total,
		Currency:    order.Currency,
		OccurredAt:  h.clock().UTC(),
	})
	return err
}

type inventoryReleaseHandler struct {
	ledger InventoryService
}

// NewInventoryReleaseHandler returns every line's reserved units to the ledger
// when an order reaches the cancelled status.
func NewInventoryReleaseHandler(ledger InventoryService) StatusChangeHandler {
	return &inventoryReleaseHandler{ledger: ledger}
}

func (h *inventoryReleaseHandler) Name() string { return "inventory-release" }

func (h *inventoryReleaseHandler) ShouldNotify(oldStatus, newStatus OrderStatus) bool {
	return newStatus == domain.OrderStatusCancelled && oldStatus != newStatus
}

func (h *inventoryReleaseHandler) OnStatusChanged(ctx context.Context, order Order, _, _ OrderStatus) error {
	if h.ledger == nil {
		return errors.New("inventory ledger not configured")
	}
	var errs []error
	for _, line := range order.Lines {
		if line.Quantity <= 0 {
			continue
		}
		if _, err := h.ledger.Release(ctx, line.ProductID, int64(line.Quantity)); err != nil {
			errs = append(errs, fmt.Errorf("release %s x%d: %w", line.ProductID, line.Quantity, err))
		}
	}
	return errors.Join(errs...)
}

type notificationHandler struct {
	notifications NotificationService
}

// NewNotificationHandler queues a customer notification for creation, payment,
// and cancellation. The template name matches the lifecycle event.
func NewNotificationHandler(notifications NotificationService) StatusChangeHandler {
	return &notificationHandler{notifications: notifications}
}

func (h *notificationHandler) Name() string { return "customer-notification" }

func (h *notificationHandler) ShouldNotify(oldStatus, newStatus OrderStatus) bool {
	return orderEventType(oldStatus, newStatus) != ""
}

func (h *notificationHandler) OnStatusChanged(ctx context.Context, order Order, oldStatus, newStatus OrderStatus) error {
	if h.notifications == nil {
		return errors.New("notification service not configured")
	}
	_, err := h.notifications.EnqueueOrderNotification(ctx, OrderNotificationCommand{
		Order:    order,
		Template: orderEventType(oldStatus, newStatus),
	})
	return err
}

type auditTrailHandler struct {
	audit AuditLogService
}

// NewAuditTrailHandler records every status change in the audit log.
func NewAuditTrailHandler(audit AuditLogService) StatusChangeHandler {
	return &auditTrailHandler{audit: audit}
}

func (h *auditTrailHandler) Name() string { return "audit-trail" }

func (h *auditTrailHandler) ShouldNotify(oldStatus, newStatus OrderStatus) bool {
	return oldStatus != newStatus
}

func (h *auditTrailHandler) OnStatusChanged(ctx context.Context, order Order, oldStatus, newStatus OrderStatus) error {
	if h.audit == nil {
		return errors.New("audit log service not configured")
	}

	actor := "system"
	if order.Audit.UpdatedBy != nil && strings.TrimSpace(*order.Audit.UpdatedBy) != "" {
		actor = strings.TrimSpace(*order.Audit.UpdatedBy)
	}
	actorType := "service"
	if actor == "system" {
		actorType = "system"
	}

	action := "order.status_changed"
	if oldStatus == "" {
		action = orderEventCreated
	}

	metadata := map[string]any{
		"from":        string(oldStatus),
		"to":          string(newStatus),
		"orderNumber": order.OrderNumber,
		"total":       order.Total,
	}
	if newStatus == domain.OrderStatusCancelled && order.CancelReason != nil {
		metadata["reason"] = *order.CancelReason
	}

	h.audit.Record(ctx, AuditLogRecord{
		Actor:     actor,
		ActorType: actorType,
		Action:    action,
		TargetRef: "/orders/" + order.ID,
		Severity:  "info",
		Metadata:  metadata,
	})
	return nil
}

type loyaltyHandler struct {
	loyalty LoyaltyService
}

// NewLoyaltyHandler accrues points when an order is paid and reverses them
// when a paid order is cancelled.
func NewLoyaltyHandler(loyalty LoyaltyService) StatusChangeHandler {
	return &loyaltyHandler{loyalty: loyalty}
}

func (h *loyaltyHandler) Name() string { return "loyalty-points" }

func (h *loyaltyHandler) ShouldNotify(oldStatus, newStatus OrderStatus) bool {
	if oldStatus == domain.OrderStatusPending && newStatus == domain.OrderStatusPaid {
		return true
	}
	return oldStatus == domain.OrderStatusPaid && newStatus == domain.OrderStatusCancelled
}

func (h *loyaltyHandler) OnStatusChanged(ctx context.Context, order Order, _, newStatus OrderStatus) error {
	if h.loyalty == nil {
		return errors.New("loyalty service not configured")
	}
	if newStatus == domain.OrderStatusPaid {
		_, err := h.loyalty.AwardForOrder(ctx, order)
		return err
	}
	_, err := h.loyalty.ReverseForOrder(ctx, order)
	return err
}
