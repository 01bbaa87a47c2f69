package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/repositories"
)

type stubInventoryRepo struct {
	reserveFn func(ctx context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error)
	releaseFn func(ctx context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error)
	findFn    func(ctx context.Context, productID string) (domain.InventoryRecord, error)
	saveFn    func(ctx context.Context, record domain.InventoryRecord) (domain.InventoryRecord, error)
	listFn    func(ctx context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error)
	reserves  int
	releases  int
}

func (s *stubInventoryRepo) Reserve(ctx context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error) {
	s.reserves++
	if s.reserveFn != nil {
		return s.reserveFn(ctx, adj)
	}
	return domain.InventoryRecord{ProductID: adj.ProductID}, nil
}

func (s *stubInventoryRepo) Release(ctx context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error) {
	s.releases++
	if s.releaseFn != nil {
		return s.releaseFn(ctx, adj)
	}
	return domain.InventoryRecord{ProductID: adj.ProductID}, nil
}

func (s *stubInventoryRepo) Find(ctx context.Context, productID string) (domain.InventoryRecord, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.InventoryRecord{}, fakeRepoError{notFound: true}
}

func (s *stubInventoryRepo) Save(ctx context.Context, record domain.InventoryRecord) (domain.InventoryRecord, error) {
	if s.saveFn != nil {
		return s.saveFn(ctx, record)
	}
	return record, nil
}

func (s *stubInventoryRepo) ListLowStock(ctx context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.CursorPage[domain.InventoryRecord]{}, nil
}

type captureLowStockPublisher struct {
	alerts []LowStockAlertMessage
	err    error
}

func (c *captureLowStockPublisher) PublishLowStockAlert(_ context.Context, msg LowStockAlertMessage) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.alerts = append(c.alerts, msg)
	return "m1", nil
}

func TestInventoryServiceReserveAdjustsStock(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := &stubInventoryRepo{}
	alerts := &captureLowStockPublisher{}
	repo.reserveFn = func(_ context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error) {
		if adj.ProductID != "prod_1" {
			t.Fatalf("unexpected product id %s", adj.ProductID)
		}
		if adj.Quantity != 3 {
			t.Fatalf("expected quantity 3, got %d", adj.Quantity)
		}
		if !adj.Now.Equal(now) {
			t.Fatalf("expected clock timestamp, got %v", adj.Now)
		}
		return domain.InventoryRecord{ProductID: "prod_1", Available: 8, LowStockThreshold: 5, UpdatedAt: adj.Now}, nil
	}

	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: repo,
		Alerts:    alerts,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	record, err := svc.Reserve(context.Background(), "prod_1", 3)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if record.Available != 8 {
		t.Fatalf("expected 8 available, got %d", record.Available)
	}
	if len(alerts.alerts) != 0 {
		t.Fatalf("expected no alert above threshold, got %d", len(alerts.alerts))
	}
}

func TestInventoryServiceReserveEmitsLowStockAlert(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := &stubInventoryRepo{}
	alerts := &captureLowStockPublisher{}
	repo.reserveFn = func(_ context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error) {
		return domain.InventoryRecord{ProductID: "prod_1", Available: 2, LowStockThreshold: 5, UpdatedAt: adj.Now}, nil
	}

	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: repo,
		Alerts:    alerts,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	if _, err := svc.Reserve(context.Background(), "prod_1", 3); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(alerts.alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts.alerts))
	}
	alert := alerts.alerts[0]
	if alert.ProductID != "prod_1" || alert.Available != 2 || alert.Threshold != 5 {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if !alert.OccurredAt.Equal(now) {
		t.Fatalf("expected clock timestamp, got %v", alert.OccurredAt)
	}
}

func TestInventoryServiceReserveLogsAlertFailure(t *testing.T) {
	repo := &stubInventoryRepo{}
	repo.reserveFn = func(_ context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error) {
		return domain.InventoryRecord{ProductID: "prod_1", Available: 0, LowStockThreshold: 5}, nil
	}
	alerts := &captureLowStockPublisher{err: errors.New("topic gone")}

	var loggedEvent string
	var loggedFields map[string]any
	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: repo,
		Alerts:    alerts,
		Logger: func(_ context.Context, event string, fields map[string]any) {
			loggedEvent = event
			loggedFields = fields
		},
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	if _, err := svc.Reserve(context.Background(), "prod_1", 1); err != nil {
		t.Fatalf("reserve should not fail on alert delivery: %v", err)
	}
	if loggedEvent != eventLowStockPublishFailed {
		t.Fatalf("expected publish failure event, got %q", loggedEvent)
	}
	if loggedFields["productId"] != "prod_1" {
		t.Fatalf("expected product id in fields, got %#v", loggedFields)
	}
}

func TestInventoryServiceReserveValidatesInput(t *testing.T) {
	repo := &stubInventoryRepo{}
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	if _, err := svc.Reserve(context.Background(), "  ", 1); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for blank product, got %v", err)
	}
	if _, err := svc.Reserve(context.Background(), "prod_1", 0); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for zero quantity, got %v", err)
	}
	if repo.reserves != 0 {
		t.Fatalf("expected repository untouched, saw %d reserves", repo.reserves)
	}
}

func TestInventoryServiceReserveMapsInsufficientStock(t *testing.T) {
	repo := &stubInventoryRepo{}
	repo.reserveFn = func(_ context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error) {
		return domain.InventoryRecord{}, &repositories.InventoryError{
			Op:        "inventory.reserve",
			Code:      repositories.InventoryErrorInsufficientStock,
			Message:   "only 1 remaining",
			Requested: 3,
			Available: 1,
		}
	}

	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	_, err = svc.Reserve(context.Background(), "prod_1", 3)
	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if stockErr.ProductID != "prod_1" || stockErr.Requested != 3 || stockErr.Available != 1 {
		t.Fatalf("unexpected error detail %+v", stockErr)
	}
}

func TestInventoryServiceReleaseReturnsUnits(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := &stubInventoryRepo{}
	alerts := &captureLowStockPublisher{}
	repo.releaseFn = func(_ context.Context, adj repositories.InventoryAdjustment) (domain.InventoryRecord, error) {
		if adj.Quantity != 2 {
			t.Fatalf("expected quantity 2, got %d", adj.Quantity)
		}
		return domain.InventoryRecord{ProductID: adj.ProductID, Available: 1, LowStockThreshold: 5, UpdatedAt: adj.Now}, nil
	}

	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: repo,
		Alerts:    alerts,
		Clock:     func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	record, err := svc.Release(context.Background(), "prod_1", 2)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if record.Available != 1 {
		t.Fatalf("expected 1 available, got %d", record.Available)
	}
	if len(alerts.alerts) != 0 {
		t.Fatalf("release must not emit alerts, got %d", len(alerts.alerts))
	}
}

func TestInventoryServiceAvailable(t *testing.T) {
	repo := &stubInventoryRepo{}
	repo.findFn = func(_ context.Context, productID string) (domain.InventoryRecord, error) {
		if productID != "prod_1" {
			return domain.InventoryRecord{}, fakeRepoError{notFound: true}
		}
		return domain.InventoryRecord{ProductID: "prod_1", Available: 7}, nil
	}

	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	available, err := svc.Available(context.Background(), "prod_1")
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if available != 7 {
		t.Fatalf("expected 7, got %d", available)
	}

	if _, err := svc.Available(context.Background(), "prod_missing"); !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInventoryServiceUpsertAppliesDefaultThreshold(t *testing.T) {
	repo := &stubInventoryRepo{}
	var saved domain.InventoryRecord
	repo.saveFn = func(_ context.Context, record domain.InventoryRecord) (domain.InventoryRecord, error) {
		saved = record
		return record, nil
	}

	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory:        repo,
		DefaultThreshold: 5,
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	if _, err := svc.Upsert(context.Background(), UpsertInventoryCommand{ProductID: " prod_1 ", Available: 40}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if saved.ProductID != "prod_1" {
		t.Fatalf("expected trimmed product id, got %q", saved.ProductID)
	}
	if saved.LowStockThreshold != 5 {
		t.Fatalf("expected default threshold 5, got %d", saved.LowStockThreshold)
	}

	override := int64(12)
	if _, err := svc.Upsert(context.Background(), UpsertInventoryCommand{ProductID: "prod_1", Available: 40, LowStockThreshold: &override}); err != nil {
		t.Fatalf("upsert with override: %v", err)
	}
	if saved.LowStockThreshold != 12 {
		t.Fatalf("expected threshold 12, got %d", saved.LowStockThreshold)
	}
}

func TestInventoryServiceUpsertValidatesInput(t *testing.T) {
	repo := &stubInventoryRepo{}
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	if _, err := svc.Upsert(context.Background(), UpsertInventoryCommand{Available: 1}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected error for missing product id, got %v", err)
	}
	if _, err := svc.Upsert(context.Background(), UpsertInventoryCommand{ProductID: "prod_1", Available: -1}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected error for negative available, got %v", err)
	}
	negative := int64(-1)
	if _, err := svc.Upsert(context.Background(), UpsertInventoryCommand{ProductID: "prod_1", Available: 1, LowStockThreshold: &negative}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected error for negative threshold, got %v", err)
	}
}

func TestInventoryServiceListLowStock(t *testing.T) {
	repo := &stubInventoryRepo{}
	repo.listFn = func(_ context.Context, query repositories.InventoryLowStockQuery) (domain.CursorPage[domain.InventoryRecord], error) {
		if query.PageSize != 25 || query.PageToken != "tok" {
			t.Fatalf("pagination not forwarded: %+v", query)
		}
		return domain.CursorPage[domain.InventoryRecord]{
			Items:         []domain.InventoryRecord{{ProductID: "prod_1", Available: 2, LowStockThreshold: 5}},
			NextPageToken: "next",
		}, nil
	}

	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: repo})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}

	page, err := svc.ListLowStock(context.Background(), InventoryLowStockFilter{
		Pagination: Pagination{PageSize: 25, PageToken: "tok"},
	})
	if err != nil {
		t.Fatalf("list low stock: %v", err)
	}
	if page.NextPageToken != "next" {
		t.Fatalf("expected next token, got %q", page.NextPageToken)
	}
	if len(page.Items) != 1 || page.Items[0].ProductID != "prod_1" {
		t.Fatalf("unexpected page contents: %+v", page.Items)
	}
}
