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

// loyaltyMinorUnitsPerPoint is the accrual rate: one point per 100 minor units spent.
const loyaltyMinorUnitsPerPoint = 100

// LoyaltyServiceDeps enumerates collaborators required to construct the loyalty service.
type LoyaltyServiceDeps struct {
	Loyalty repositories.LoyaltyRepository
	Clock   func() time.Time
	Logger  Logger
}

type loyaltyService struct {
	repo   repositories.LoyaltyRepository
	clock  func() time.Time
	logger Logger
}

// NewLoyaltyService wires dependencies into a LoyaltyService implementation.
func NewLoyaltyService(deps LoyaltyServiceDeps) (LoyaltyService, error) {
	if deps.Loyalty == nil {
		return nil, errors.New("loyalty service: loyalty repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &loyaltyService{
		repo: deps.Loyalty,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// AwardForOrder credits points for a paid order. The entry id derives from the
// order so a replayed award conflicts instead of double counting.
func (s *loyaltyService) AwardForOrder(ctx context.Context, order Order) (LoyaltyEntry, error) {
	return s.apply(ctx, order, domain.LoyaltyEntryAward)
}

// ReverseForOrder debits the points previously awarded for an order that was
// paid and later cancelled.
func (s *loyaltyService) ReverseForOrder(ctx context.Context, order Order) (LoyaltyEntry, error) {
	return s.apply(ctx, order, domain.LoyaltyEntryReversal)
}

// Account reports the user's current point balance.
func (s *loyaltyService) Account(ctx context.Context, userID string) (LoyaltyAccount, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return LoyaltyAccount{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	account, err := s.repo.Account(ctx, userID)
	if err != nil {
		return LoyaltyAccount{}, s.mapRepositoryError(err)
	}
	return account, nil
}

func (s *loyaltyService) apply(ctx context.Context, order Order, kind domain.LoyaltyEntryKind) (LoyaltyEntry, error) {
	orderID := strings.TrimSpace(order.ID)
	userID := strings.TrimSpace(order.UserID)
	if orderID == "" || userID == "" {
		return LoyaltyEntry{}, fmt.Errorf("%w: order id and user id are required", ErrOrderInvalidInput)
	}

	entry := domain.LoyaltyEntry{
		ID:        loyaltyEntryID(orderID, kind),
		UserID:    userID,
		OrderID:   orderID,
		Kind:      kind,
		Points:    pointsForTotal(order.Total),
		CreatedAt: s.clock(),
	}

	if _, err := s.repo.Apply(ctx, entry); err != nil {
		return LoyaltyEntry{}, s.mapRepositoryError(err)
	}
	return entry, nil
}

func (s *loyaltyService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrLoyaltyAlreadyApplied, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
		}
	}
	return err
}

// pointsForTotal converts an order total in minor units into loyalty points.
func pointsForTotal(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return total / loyaltyMinorUnitsPerPoint
}

// loyaltyEntryID is deterministic per order and kind so the ledger stays
// exactly-once under retries.
func loyaltyEntryID(orderID string, kind domain.LoyaltyEntryKind) string {
	return fmt.Sprintf("loy_%s_%s", orderID, kind)
}
