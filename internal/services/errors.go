package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates required fields were missing or malformed.
	ErrOrderInvalidInput = errors.New("orders: invalid input")
	// ErrOrderNotFound indicates the requested order could not be located.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrProductNotFound indicates a referenced catalog product does not exist.
	ErrProductNotFound = errors.New("orders: product not found")
	// ErrInventoryNotFound indicates a product has no inventory record.
	ErrInventoryNotFound = errors.New("orders: inventory record not found")
	// ErrOrderConflict indicates a duplicate write or concurrent modification.
	ErrOrderConflict = errors.New("orders: conflict")
	// ErrLoyaltyAlreadyApplied indicates the order's points were already awarded or reversed.
	ErrLoyaltyAlreadyApplied = errors.New("orders: loyalty entry already applied")
	// ErrRepositoryUnavailable wraps storage outages surfaced by repositories.
	ErrRepositoryUnavailable = errors.New("orders: repository unavailable")
)

// ValidationError carries the failing pipeline step with its collected messages.
type ValidationError struct {
	Step   string
	Errors []string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s failed", e.Step)
	}
	return fmt.Sprintf("%s failed: %s", e.Step, strings.Join(e.Errors, "; "))
}

// StateViolationError reports an operation or transition that is illegal for
// the order's current status.
type StateViolationError struct {
	OrderID   string
	Status    domain.OrderStatus
	Operation string
	Reason    string
}

func (e *StateViolationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s not allowed for order %s (%s): %s", e.Operation, e.OrderID, e.Status, e.Reason)
}

// InsufficientStockError carries the requested versus available detail for a
// failed reservation.
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// PaymentDeclinedError reports a gateway refusal to capture funds.
type PaymentDeclinedError struct {
	OrderID string
	Reason  string
}

func (e *PaymentDeclinedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason == "" {
		return fmt.Sprintf("payment declined for order %s", e.OrderID)
	}
	return fmt.Sprintf("payment declined for order %s: %s", e.OrderID, e.Reason)
}

// mapOrderRepositoryError translates repository categories into the service
// error taxonomy so transports can map them without knowing the store.
func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
		}
	}
	return err
}

func mapProductRepositoryError(productID string, err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
