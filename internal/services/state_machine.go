package services

import (
	"fmt"
	"strings"

	domain "github.com/maplecart/orders/internal/domain"
)

// Order lifecycle operations arbitrated by the state machine.
const (
	OperationPay    = "pay"
	OperationCancel = "cancel"
	OperationRefund = "refund"
)

// orderTransitions is the authoritative transition table: for each status, the
// statuses an order may move to. Cancelled is terminal and maps to nothing.
var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:      {domain.OrderStatusCancelled},
	domain.OrderStatusCancelled: {},
}

// StateMachine decides which lifecycle operations and status transitions are
// legal for an order. It holds no state; the zero value is ready to use.
type StateMachine struct{}

// CanProcessPayment reports whether the order can move to paid.
func (StateMachine) CanProcessPayment(order Order) bool {
	return order.Status == domain.OrderStatusPending
}

// CanCancel reports whether the order can be cancelled. Cancelling a paid
// order additionally refunds the captured payment.
func (StateMachine) CanCancel(order Order) bool {
	return order.Status == domain.OrderStatusPending || order.Status == domain.OrderStatusPaid
}

// CanRefund reports whether the order's captured payment can be refunded.
func (StateMachine) CanRefund(order Order) bool {
	return order.Status == domain.OrderStatusPaid
}

// CanTransitionTo reports whether moving the order to target is legal.
func (StateMachine) CanTransitionTo(order Order, target domain.OrderStatus) bool {
	for _, next := range orderTransitions[order.Status] {
		if next == target {
			return true
		}
	}
	return false
}

// LegalTargets lists the statuses reachable from the order's current status.
func (StateMachine) LegalTargets(order Order) []domain.OrderStatus {
	targets := orderTransitions[order.Status]
	out := make([]domain.OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// AvailableActions describes the operations legal for the order right now.
func (StateMachine) AvailableActions(order Order) string {
	switch order.Status {
	case domain.OrderStatusPending:
		return "pay, cancel"
	case domain.OrderStatusPaid:
		return "refund, cancel (cancelling a paid order refunds its payment)"
	case domain.OrderStatusCancelled:
		return "none: order is already cancelled"
	default:
		return fmt.Sprintf("none: unknown order status %q", order.Status)
	}
}

// ReasonOperationDisallowed explains why the operation is illegal for the
// order's current status. It returns "" when the operation is allowed.
func (m StateMachine) ReasonOperationDisallowed(order Order, operation string) string {
	switch strings.ToLower(strings.TrimSpace(operation)) {
	case OperationPay:
		if m.CanProcessPayment(order) {
			return ""
		}
		switch order.Status {
		case domain.OrderStatusPaid:
			return "order is already paid"
		case domain.OrderStatusCancelled:
			return "order is already cancelled"
		default:
			return fmt.Sprintf("payment is not allowed from status %q", order.Status)
		}
	case OperationCancel:
		if m.CanCancel(order) {
			return ""
		}
		if order.Status == domain.OrderStatusCancelled {
			return "order is already cancelled"
		}
		return fmt.Sprintf("cancellation is not allowed from status %q", order.Status)
	case OperationRefund:
		if m.CanRefund(order) {
			return ""
		}
		switch order.Status {
		case domain.OrderStatusPending:
			return "order has not been paid, there is no payment to refund"
		case domain.OrderStatusCancelled:
			return "order is already cancelled"
		default:
			return fmt.Sprintf("refund is not allowed from status %q", order.Status)
		}
	default:
		return fmt.Sprintf("unknown operation %q", operation)
	}
}

// ValidateOperation returns a StateViolationError when the operation is not
// legal for the order's current status.
func (m StateMachine) ValidateOperation(order Order, operation string) error {
	reason := m.ReasonOperationDisallowed(order, operation)
	if reason == "" {
		return nil
	}
	return &StateViolationError{
		OrderID:   order.ID,
		Status:    order.Status,
		Operation: operation,
		Reason:    reason,
	}
}

// ValidateTransition returns a StateViolationError when moving the order to
// target is illegal.
func (m StateMachine) ValidateTransition(order Order, target domain.OrderStatus) error {
	if m.CanTransitionTo(order, target) {
		return nil
	}
	reason := fmt.Sprintf("%s is not reachable from %s", target, order.Status)
	if order.Status == domain.OrderStatusCancelled {
		reason = "order is already cancelled"
	}
	return &StateViolationError{
		OrderID:   order.ID,
		Status:    order.Status,
		Operation: fmt.Sprintf("transition to %s", target),
		Reason:    reason,
	}
}
