package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/repositories"
)

const eventLowStockPublishFailed = "inventory.lowstock.publish.failed"

// InventoryServiceDeps enumerates collaborators required to construct the ledger.
type InventoryServiceDeps struct {
	Inventory        repositories.InventoryRepository
	Alerts           LowStockPublisher
	DefaultThreshold int64
	Clock            func() time.Time
	Logger           Logger
}

type inventoryService struct {
	repo             repositories.InventoryRepository
	alerts           LowStockPublisher
	defaultThreshold int64
	clock            func() time.Time
	logger           Logger
}

// NewInventoryService wires dependencies into an InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	threshold := deps.DefaultThreshold
	if threshold < 0 {
		threshold = 0
	}

	return &inventoryService{
		repo:             deps.Inventory,
		alerts:           deps.Alerts,
		defaultThreshold: threshold,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Reserve decrements available units for the product and emits a low-stock
// alert when the remaining units sit at or below the record's threshold.
func (s *inventoryService) Reserve(ctx context.Context, productID string, quantity int64) (InventoryRecord, error) {
	productID, err := validAdjustment(productID, quantity)
	if err != nil {
		return InventoryRecord{}, err
	}

	record, err := s.repo.Reserve(ctx, repositories.InventoryAdjustment{
		ProductID: productID,
		Quantity:  quantity,
		Now:       s.now(),
	})
	if err != nil {
		return InventoryRecord{}, s.mapRepositoryError(productID, err)
	}

	s.alertIfLow(ctx, record)

	return record, nil
}

// Release returns units to the product's pool, compensating a reservation.
func (s *inventoryService) Release(ctx context.Context, productID string, quantity int64) (InventoryRecord, error) {
	productID, err := validAdjustment(productID, quantity)
	if err != nil {
		return InventoryRecord{}, err
	}

	record, err := s.repo.Release(ctx, repositories.InventoryAdjustment{
		ProductID: productID,
		Quantity:  quantity,
		Now:       s.now(),
	})
	if err != nil {
		return InventoryRecord{}, s.mapRepositoryError(productID, err)
	}
	return record, nil
}

// Available reports the sellable units for the product.
func (s *inventoryService) Available(ctx context.Context, productID string) (int64, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return 0, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}

	record, err := s.repo.Find(ctx, productID)
	if err != nil {
		return 0, s.mapRepositoryError(productID, err)
	}
	return record.Available, nil
}

// Upsert seeds or replaces the product's inventory record. A nil threshold in
// the command falls back to the configured default.
func (s *inventoryService) Upsert(ctx context.Context, cmd UpsertInventoryCommand) (InventoryRecord, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return InventoryRecord{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}
	if cmd.Available < 0 {
		return InventoryRecord{}, fmt.Errorf("%w: available must not be negative", ErrOrderInvalidInput)
	}

	threshold := s.defaultThreshold
	if cmd.LowStockThreshold != nil {
		threshold = *cmd.LowStockThreshold
	}
	if threshold < 0 {
		return InventoryRecord{}, fmt.Errorf("%w: low stock threshold must not be negative", ErrOrderInvalidInput)
	}

	record, err := s.repo.Save(ctx, domain.InventoryRecord{
		ProductID:         productID,
		Available:         cmd.Available,
		LowStockThreshold: threshold,
		UpdatedAt:         s.now(),
	})
	if err != nil {
		return InventoryRecord{}, s.mapRepositoryError(productID, err)
	}
	return record, nil
}

// ListLowStock pages through records at or below their configured threshold.
func (s *inventoryService) ListLowStock(ctx context.Context, filter InventoryLowStockFilter) (domain.CursorPage[InventoryRecord], error) {
	page, err := s.repo.ListLowStock(ctx, repositories.InventoryLowStockQuery{
		PageSize:  filter.Pagination.PageSize,
		PageToken: filter.Pagination.PageToken,
	})
	if err != nil {
		return domain.CursorPage[InventoryRecord]{}, s.mapRepositoryError("", err)
	}
	return page, nil
}

// alertIfLow emits a low-stock signal for records at or below their threshold.
// Delivery is best effort: failures are logged and never returned.
func (s *inventoryService) alertIfLow(ctx context.Context, record InventoryRecord) {
	if s.alerts == nil || record.Available > record.LowStockThreshold {
		return
	}
	if _, err := s.alerts.PublishLowStockAlert(ctx, LowStockAlertMessage{
		ProductID:  record.ProductID,
		Available:  record.Available,
		Threshold:  record.LowStockThreshold,
		OccurredAt: s.now(),
	}); err != nil {
		s.logger(ctx, eventLowStockPublishFailed, map[string]any{
			"productId": record.ProductID,
			"available": record.Available,
			"error":     err.Error(),
		})
	}
}

func (s *inventoryService) mapRepositoryError(productID string, err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return &InsufficientStockError{
				ProductID: productID,
				Requested: invErr.Requested,
				Available: invErr.Available,
			}
		case repositories.InventoryErrorRecordNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryNotFound, productID)
		case repositories.InventoryErrorInvalidQuantity:
			return fmt.Errorf("%w: %s", ErrOrderInvalidInput, invErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrInventoryNotFound, productID)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
		}
	}

	return err
}

func (s *inventoryService) now() time.Time {
	return s.clock()
}

func validAdjustment(productID string, quantity int64) (string, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return "", fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}
	if quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive", ErrOrderInvalidInput)
	}
	return productID, nil
}
