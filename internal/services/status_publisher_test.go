package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/maplecart/orders/internal/domain"
)

type fakeHandler struct {
	name     string
	notifyFn func(oldStatus, newStatus OrderStatus) bool
	changeFn func(ctx context.Context, order Order, oldStatus, newStatus OrderStatus) error
}

func (h *fakeHandler) Name() string { return h.name }

func (h *fakeHandler) ShouldNotify(oldStatus, newStatus OrderStatus) bool {
	if h.notifyFn != nil {
		return h.notifyFn(oldStatus, newStatus)
	}
	return true
}

func (h *fakeHandler) OnStatusChanged(ctx context.Context, order Order, oldStatus, newStatus OrderStatus) error {
	if h.changeFn != nil {
		return h.changeFn(ctx, order, oldStatus, newStatus)
	}
	return nil
}

type captureLogger struct {
	events []string
	fields []map[string]any
}

func (c *captureLogger) Log(_ context.Context, event string, fields map[string]any) {
	c.events = append(c.events, event)
	c.fields = append(c.fields, fields)
}

func TestStatusChangePublisherDeliversInRegistrationOrder(t *testing.T) {
	var delivered []string
	record := func(name string) *fakeHandler {
		return &fakeHandler{
			name: name,
			changeFn: func(context.Context, Order, OrderStatus, OrderStatus) error {
				delivered = append(delivered, name)
				return nil
			},
		}
	}

	publisher := NewStatusChangePublisher(nil, record("first"), record("second"))
	publisher.Register(record("third"))

	publisher.NotifyStatusChange(context.Background(), Order{ID: "ord_1"}, domain.OrderStatusPending, domain.OrderStatusPaid)

	if len(delivered) != 3 {
		t.Fatalf("expected 3 deliveries, got %v", delivered)
	}
	for i, want := range []string{"first", "second", "third"} {
		if delivered[i] != want {
			t.Fatalf("delivery %d: expected %s, got %s", i, want, delivered[i])
		}
	}
}

func TestStatusChangePublisherIsolatesFailures(t *testing.T) {
	logger := &captureLogger{}
	var reached bool

	failing := &fakeHandler{
		name: "failing",
		changeFn: func(context.Context, Order, OrderStatus, OrderStatus) error {
			return errors.New("smtp unreachable")
		},
	}
	panicking := &fakeHandler{
		name: "panicking",
		changeFn: func(context.Context, Order, OrderStatus, OrderStatus) error {
			panic("nil template")
		},
	}
	healthy := &fakeHandler{
		name: "healthy",
		changeFn: func(context.Context, Order, OrderStatus, OrderStatus) error {
			reached = true
			return nil
		},
	}

	publisher := NewStatusChangePublisher(logger.Log, failing, panicking, healthy)
	publisher.NotifyStatusChange(context.Background(), Order{ID: "ord_1"}, domain.OrderStatusPending, domain.OrderStatusPaid)

	if !reached {
		t.Fatal("expected later handler to run despite earlier failures")
	}
	if len(logger.events) != 2 {
		t.Fatalf("expected 2 failure logs, got %d", len(logger.events))
	}
	for _, event := range logger.events {
		if event != eventStatusHandlerFailed {
			t.Fatalf("unexpected event %q", event)
		}
	}
	if logger.fields[0]["handler"] != "failing" || logger.fields[1]["handler"] != "panicking" {
		t.Fatalf("unexpected handler fields: %v", logger.fields)
	}
	if msg, _ := logger.fields[1]["error"].(string); !strings.Contains(msg, "handler panicked") {
		t.Fatalf("expected panic captured as error, got %q", msg)
	}
}

func TestStatusChangePublisherHonorsFilters(t *testing.T) {
	var invoked bool
	selective := &fakeHandler{
		name: "selective",
		notifyFn: func(oldStatus, newStatus OrderStatus) bool {
			return newStatus == domain.OrderStatusCancelled
		},
		changeFn: func(context.Context, Order, OrderStatus, OrderStatus) error {
			invoked = true
			return nil
		},
	}

	publisher := NewStatusChangePublisher(nil, selective)
	publisher.NotifyStatusChange(context.Background(), Order{ID: "ord_1"}, domain.OrderStatusPending, domain.OrderStatusPaid)
	if invoked {
		t.Fatal("handler ran despite filter rejecting the transition")
	}

	publisher.NotifyStatusChange(context.Background(), Order{ID: "ord_1"}, domain.OrderStatusPending, domain.OrderStatusCancelled)
	if !invoked {
		t.Fatal("handler skipped a transition its filter accepts")
	}
}

func TestOrderEventTypeMapping(t *testing.T) {
	cases := []struct {
		oldStatus OrderStatus
		newStatus OrderStatus
		want      string
	}{
		{oldStatus: "", newStatus: domain.OrderStatusPending, want: orderEventCreated},
		{oldStatus: domain.OrderStatusPending, newStatus: domain.OrderStatusPaid, want: orderEventPaid},
		{oldStatus: domain.OrderStatusPending, newStatus: domain.OrderStatusCancelled, want: orderEventCancelled},
		{oldStatus: domain.OrderStatusPaid, newStatus: domain.OrderStatusCancelled, want: orderEventCancelled},
		{oldStatus: domain.OrderStatusPending, newStatus: domain.OrderStatusPending, want: ""},
		{oldStatus: domain.OrderStatusPaid, newStatus: domain.OrderStatusPaid, want: ""},
		{oldStatus: domain.OrderStatusCancelled, newStatus: domain.OrderStatusCancelled, want: ""},
	}
	for _, tc := range cases {
		if got := orderEventType(tc.oldStatus, tc.newStatus); got != tc.want {
			t.Fatalf("orderEventType(%q, %q) = %q, want %q", tc.oldStatus, tc.newStatus, got, tc.want)
		}
	}
}

type captureOrderEvents struct {
	messages []OrderEventMessage
	err      error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, msg OrderEventMessage) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.messages = append(c.messages, msg)
	return "m1", nil
}

func TestOrderEventHandlerPublishesLifecycleEvents(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	events := &captureOrderEvents{}
	handler := NewOrderEventHandler(events, func() time.Time { return now }, func() string { return "TESTID" })

	if !handler.ShouldNotify("", domain.OrderStatusPending) {
		t.Fatal("expected creation to notify")
	}
	if handler.ShouldNotify(domain.OrderStatusPending, domain.OrderStatusPending) {
		t.Fatal("expected no event for unchanged status")
	}

	order := Order{
		ID:          "ord_1",
		OrderNumber: "MC-2025-000001",
		UserID:      "user_1",
		Total:       9998,
		Currency:    "USD",
		Status:      domain.OrderStatusPending,
	}
	if err := handler.OnStatusChanged(context.Background(), order, "", domain.OrderStatusPending); err != nil {
		t.Fatalf("on status changed: %v", err)
	}

	if len(events.messages) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events.messages))
	}
	event := events.messages[0]
	if event.EventID != "evt_TESTID" {
		t.Fatalf("unexpected event id %q", event.EventID)
	}
	if event.Type != orderEventCreated {
		t.Fatalf("unexpected type %q", event.Type)
	}
	if event.OrderNumber != "MC-2025-000001" || event.Status != "pending" || event.Total != 9998 {
		t.Fatalf("unexpected event payload %+v", event)
	}
	if !event.OccurredAt.Equal(now) {
		t.Fatalf("expected clock timestamp, got %v", event.OccurredAt)
	}
}

// handlerLedger records Release calls for the inventory release handler tests.
type handlerLedger struct {
	released   []string
	releaseErr map[string]error
}

func (l *handlerLedger) Reserve(context.Context, string, int64) (InventoryRecord, error) {
	return InventoryRecord{}, errors.New("not implemented")
}

func (l *handlerLedger) Release(_ context.Context, productID string, quantity int64) (InventoryRecord, error) {
	if err := l.releaseErr[productID]; err != nil {
		return InventoryRecord{}, err
	}
	l.released = append(l.released, productID)
	return InventoryRecord{ProductID: productID, Available: quantity}, nil
}

func (l *handlerLedger) Available(context.Context, string) (int64, error) {
	return 0, errors.New("not implemented")
}

func (l *handlerLedger) Upsert(context.Context, UpsertInventoryCommand) (InventoryRecord, error) {
	return InventoryRecord{}, errors.New("not implemented")
}

func (l *handlerLedger) ListLowStock(context.Context, InventoryLowStockFilter) (domain.CursorPage[InventoryRecord], error) {
	return domain.CursorPage[InventoryRecord]{}, errors.New("not implemented")
}

func TestInventoryReleaseHandlerReturnsStock(t *testing.T) {
	ledger := &handlerLedger{}
	handler := NewInventoryReleaseHandler(ledger)

	if handler.ShouldNotify(domain.OrderStatusPending, domain.OrderStatusPaid) {
		t.Fatal("release handler must ignore payment transitions")
	}
	if !handler.ShouldNotify(domain.OrderStatusPaid, domain.OrderStatusCancelled) {
		t.Fatal("release handler must react to cancellation")
	}

	order := Order{
		ID: "ord_1",
		Lines: []OrderLine{
			{ProductID: "prod_1", Quantity: 2},
			{ProductID: "prod_2", Quantity: 1},
			{ProductID: "prod_zero", Quantity: 0},
		},
	}
	if err := handler.OnStatusChanged(context.Background(), order, domain.OrderStatusPending, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("on status changed: %v", err)
	}
	if len(ledger.released) != 2 || ledger.released[0] != "prod_1" || ledger.released[1] != "prod_2" {
		t.Fatalf("unexpected releases %v", ledger.released)
	}
}

func TestInventoryReleaseHandlerReportsPartialFailure(t *testing.T) {
	ledger := &handlerLedger{releaseErr: map[string]error{"prod_1": errors.New("record locked")}}
	handler := NewInventoryReleaseHandler(ledger)

	order := Order{
		ID: "ord_1",
		Lines: []OrderLine{
			{ProductID: "prod_1", Quantity: 2},
			{ProductID: "prod_2", Quantity: 1},
		},
	}
	err := handler.OnStatusChanged(context.Background(), order, domain.OrderStatusPaid, domain.OrderStatusCancelled)
	if err == nil || !strings.Contains(err.Error(), "prod_1") {
		t.Fatalf("expected error naming failed product, got %v", err)
	}
	if len(ledger.released) != 1 || ledger.released[0] != "prod_2" {
		t.Fatalf("expected remaining lines released, got %v", ledger.released)
	}
}

type captureNotificationService struct {
	commands []OrderNotificationCommand
}

func (c *captureNotificationService) EnqueueOrderNotification(_ context.Context, cmd OrderNotificationCommand) (NotificationMessage, error) {
	c.commands = append(c.commands, cmd)
	return NotificationMessage{NotificationID: "ntf_1"}, nil
}

func TestNotificationHandlerUsesLifecycleTemplate(t *testing.T) {
	notifications := &captureNotificationService{}
	handler := NewNotificationHandler(notifications)

	order := Order{ID: "ord_1", UserID: "user_1"}
	if err := handler.OnStatusChanged(context.Background(), order, domain.OrderStatusPending, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("on status changed: %v", err)
	}

	if len(notifications.commands) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications.commands))
	}
	if notifications.commands[0].Template != orderEventCancelled {
		t.Fatalf("unexpected template %q", notifications.commands[0].Template)
	}
	if notifications.commands[0].Order.ID != "ord_1" {
		t.Fatalf("unexpected order %+v", notifications.commands[0].Order)
	}
}

type captureAuditService struct {
	records []AuditLogRecord
}

func (c *captureAuditService) Record(_ context.Context, record AuditLogRecord) {
	c.records = append(c.records, record)
}

func (c *captureAuditService) List(context.Context, AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	return domain.CursorPage[AuditLogEntry]{}, errors.New("not implemented")
}

func TestAuditTrailHandlerRecordsTransition(t *testing.T) {
	audit := &captureAuditService{}
	handler := NewAuditTrailHandler(audit)

	updatedBy := "user:9"
	reason := "changed mind"
	order := Order{
		ID:           "ord_1",
		OrderNumber:  "MC-2025-000001",
		Total:        9998,
		CancelReason: &reason,
		Audit:        domain.OrderAudit{UpdatedBy: &updatedBy},
	}
	if err := handler.OnStatusChanged(context.Background(), order, domain.OrderStatusPaid, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("on status changed: %v", err)
	}

	if len(audit.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(audit.records))
	}
	record := audit.records[0]
	if record.Actor != "user:9" || record.ActorType != "service" {
		t.Fatalf("unexpected actor %q/%q", record.Actor, record.ActorType)
	}
	if record.Action != "order.status_changed" {
		t.Fatalf("unexpected action %q", record.Action)
	}
	if record.TargetRef != "/orders/ord_1" {
		t.Fatalf("unexpected target ref %q", record.TargetRef)
	}
	if record.Metadata["from"] != "paid" || record.Metadata["to"] != "cancelled" {
		t.Fatalf("unexpected metadata %v", record.Metadata)
	}
	if record.Metadata["reason"] != "changed mind" {
		t.Fatalf("expected cancel reason in metadata, got %v", record.Metadata)
	}
}

func TestAuditTrailHandlerRecordsCreation(t *testing.T) {
	audit := &captureAuditService{}
	handler := NewAuditTrailHandler(audit)

	if err := handler.OnStatusChanged(context.Background(), Order{ID: "ord_1"}, "", domain.OrderStatusPending); err != nil {
		t.Fatalf("on status changed: %v", err)
	}

	record := audit.records[0]
	if record.Action != orderEventCreated {
		t.Fatalf("unexpected action %q", record.Action)
	}
	if record.Actor != "system" || record.ActorType != "system" {
		t.Fatalf("unexpected actor %q/%q", record.Actor, record.ActorType)
	}
}

type captureLoyaltyService struct {
	awarded  []string
	reversed []string
}

func (c *captureLoyaltyService) AwardForOrder(_ context.Context, order Order) (LoyaltyEntry, error) {
	c.awarded = append(c.awarded, order.ID)
	return LoyaltyEntry{}, nil
}

func (c *captureLoyaltyService) ReverseForOrder(_ context.Context, order Order) (LoyaltyEntry, error) {
	c.reversed = append(c.reversed, order.ID)
	return LoyaltyEntry{}, nil
}

func (c *captureLoyaltyService) Account(context.Context, string) (LoyaltyAccount, error) {
	return LoyaltyAccount{}, errors.New("not implemented")
}

func TestLoyaltyHandlerAwardsAndReverses(t *testing.T) {
	loyalty := &captureLoyaltyService{}
	handler := NewLoyaltyHandler(loyalty)

	if handler.ShouldNotify(domain.OrderStatusPending, domain.OrderStatusCancelled) {
		t.Fatal("loyalty handler must ignore unpaid cancellations")
	}
	if !handler.ShouldNotify(domain.OrderStatusPending, domain.OrderStatusPaid) {
		t.Fatal("loyalty handler must react to payment")
	}
	if !handler.ShouldNotify(domain.OrderStatusPaid, domain.OrderStatusCancelled) {
		t.Fatal("loyalty handler must react to refund cancellation")
	}

	order := Order{ID: "ord_1", UserID: "user_1", Total: 9998}
	if err := handler.OnStatusChanged(context.Background(), order, domain.OrderStatusPending, domain.OrderStatusPaid); err != nil {
		t.Fatalf("award: %v", err)
	}
	if err := handler.OnStatusChanged(context.Background(), order, domain.OrderStatusPaid, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	if len(loyalty.awarded) != 1 || loyalty.awarded[0] != "ord_1" {
		t.Fatalf("unexpected awards %v", loyalty.awarded)
	}
	if len(loyalty.reversed) != 1 || loyalty.reversed[0] != "ord_1" {
		t.Fatalf("unexpected reversals %v", loyalty.reversed)
	}
}
