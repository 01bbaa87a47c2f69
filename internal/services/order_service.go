package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/repositories"
)

// OrderServiceDeps enumerates collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders          repositories.OrderRepository
	Products        repositories.ProductRepository
	PaymentRecords  repositories.PaymentRecordRepository
	Counters        repositories.CounterRepository
	Inventory       InventoryService
	Payments        paymentGateway
	Publisher       StatusChangeNotifier
	Invoker         *CommandInvoker
	MaxLineQuantity int
	Clock           func() time.Time
	IDGenerator     func() string
	Logger          Logger
}

type orderService struct {
	core    *commandCore
	invoker *CommandInvoker
	machine StateMachine
}

// NewOrderService wires dependencies into an OrderService implementation. The
// validation pipeline is assembled here so every creation runs the same chain:
// structural checks, then product existence, then stock availability.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("order service: status change publisher is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	invoker := deps.Invoker
	if invoker == nil {
		invoker = NewCommandInvoker(defaultUndoHistoryDepth, logger)
	}

	core := &commandCore{
		orders:         deps.Orders,
		products:       deps.Products,
		paymentRecords: deps.PaymentRecords,
		counters:       deps.Counters,
		ledger:         deps.Inventory,
		gateway:        deps.Payments,
		publisher:      deps.Publisher,
		pipeline: NewValidationPipeline(
			NewStructuralValidator(deps.MaxLineQuantity),
			NewProductExistenceValidator(deps.Products),
			NewStockAvailabilityValidator(deps.Inventory),
		),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}

	return &orderService{core: core, invoker: invoker}, nil
}

// CreateOrder validates, reserves, and persists a new pending order.
func (s *orderService) CreateOrder(ctx context.Context, callerID string, req CreateOrderRequest) CommandResult {
	cmd := NewCreateOrderCommand(s.core, normalizeCaller(callerID), req)
	return s.invoker.Execute(ctx, callerID, cmd)
}

// ProcessPayment captures payment for a pending order.
func (s *orderService) ProcessPayment(ctx context.Context, callerID, orderID string) CommandResult {
	cmd := NewPayOrderCommand(s.core, normalizeCaller(callerID), orderID)
	return s.invoker.Execute(ctx, callerID, cmd)
}

// CancelOrder moves the order to the cancelled terminal status.
func (s *orderService) CancelOrder(ctx context.Context, callerID, orderID, reason string) CommandResult {
	cmd := NewCancelOrderCommand(s.core, normalizeCaller(callerID), orderID, reason)
	return s.invoker.Execute(ctx, callerID, cmd)
}

// RefundOrder refunds a paid order's payment and cancels it.
func (s *orderService) RefundOrder(ctx context.Context, callerID, orderID, reason string) CommandResult {
	cmd := NewRefundOrderCommand(s.core, normalizeCaller(callerID), orderID, reason)
	return s.invoker.Execute(ctx, callerID, cmd)
}

// UndoLastCommand reverses the caller's most recent undoable command.
func (s *orderService) UndoLastCommand(ctx context.Context, callerID string) CommandResult {
	return s.invoker.UndoLast(ctx, callerID)
}

// GetOrder loads a single order by id.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.core.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	return order, nil
}

// ListOrders pages through orders matching the filter.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	page, err := s.core.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapOrderRepositoryError(err)
	}
	return page, nil
}

// AvailableActions reports which lifecycle operations are legal for the order.
func (s *orderService) AvailableActions(ctx context.Context, orderID string) (OrderActions, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return OrderActions{}, err
	}
	return OrderActions{
		OrderID:      order.ID,
		Status:       order.Status,
		Actions:      s.machine.AvailableActions(order),
		CanPay:       s.machine.CanProcessPayment(order),
		CanCancel:    s.machine.CanCancel(order),
		CanRefund:    s.machine.CanRefund(order),
		LegalTargets: s.machine.LegalTargets(order),
	}, nil
}

// CanTransitionTo reports whether moving the order to target is legal.
func (s *orderService) CanTransitionTo(ctx context.Context, orderID string, target OrderStatus) (bool, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	return s.machine.CanTransitionTo(order, target), nil
}

// UndoState summarizes the caller's undo history.
func (s *orderService) UndoState(callerID string) UndoState {
	return UndoState{
		Count:           s.invoker.UndoableCount(callerID),
		LastDescription: s.invoker.LastUndoableDescription(callerID),
	}
}
