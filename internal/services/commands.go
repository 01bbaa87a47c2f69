package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/payments"
	"github.com/maplecart/orders/internal/repositories"
)

const (
	eventCreateCompensationFailed = "orders.create.compensation.failed"
	eventPaymentRecordFailed      = "orders.payment.record.failed"
	eventRefundRecordFailed       = "orders.refund.record.failed"
)

// paymentGateway abstracts payments.Manager for easier testing.
type paymentGateway interface {
	Charge(ctx context.Context, paymentCtx payments.PaymentContext, req payments.ChargeRequest) (payments.PaymentDetails, error)
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
}

// commandCore carries the collaborators every order command composes. One core
// is shared by the facade and all commands it builds.
type commandCore struct {
	orders         repositories.OrderRepository
	products       repositories.ProductRepository
	paymentRecords repositories.PaymentRecordRepository
	counters       repositories.CounterRepository
	ledger         InventoryService
	gateway        paymentGateway
	publisher      StatusChangeNotifier
	pipeline       *ValidationPipeline
	machine        StateMachine
	clock          func() time.Time
	newID          func() string
	logger         Logger
}

func (c *commandCore) now() time.Time {
	return c.clock()
}

// nextOrderNumber allocates the next human-facing order number from the
// current year's counter sequence.
func (c *commandCore) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := c.counters.Next(ctx, fmt.Sprintf("orders-%d", now.Year()), 1)
	if err != nil {
		return "", fmt.Errorf("order number: %w", err)
	}
	return fmt.Sprintf("MC-%04d-%06d", now.Year(), seq), nil
}

func successResult(message string, order domain.Order) CommandResult {
	copied := order
	return CommandResult{Success: true, Message: message, Order: &copied}
}

func failedResult(message string, err error) CommandResult {
	return CommandResult{Success: false, Message: message, Err: err}
}

func stateViolationResult(err error) CommandResult {
	var violation *StateViolationError
	if errors.As(err, &violation) {
		return failedResult(violation.Reason, err)
	}
	return failedResult(err.Error(), err)
}

// CreateOrderCommand validates a request, reserves stock line by line, prices
// and persists the order, and fans the creation out. Its undo cancels the
// created order exactly once.
type CreateOrderCommand struct {
	core    *commandCore
	actor   string
	request CreateOrderRequest
	created *domain.Order
}

// NewCreateOrderCommand builds the command; actor is recorded on the order audit.
func NewCreateOrderCommand(core *commandCore, actor string, request CreateOrderRequest) *CreateOrderCommand {
	return &CreateOrderCommand{core: core, actor: strings.TrimSpace(actor), request: request}
}

func (c *CreateOrderCommand) Description() string {
	return fmt.Sprintf("create order for user %s (%d lines)", strings.TrimSpace(c.request.UserID), len(c.request.Lines))
}

func (c *CreateOrderCommand) SupportsUndo() bool { return true }

func (c *CreateOrderCommand) Execute(ctx context.Context) CommandResult {
	verdict, err := c.core.pipeline.Validate(ctx, c.request)
	if err != nil {
		return failedResult("order validation could not run", err)
	}
	if !verdict.Valid {
		return failedResult(
			fmt.Sprintf("order validation failed: %s", strings.Join(verdict.Errors, "; ")),
			&ValidationError{Step: verdict.Step, Errors: verdict.Errors},
		)
	}

	now := c.core.now()
	order := domain.Order{
		ID:        "ord_" + c.core.newID(),
		UserID:    strings.TrimSpace(c.request.UserID),
		Status:    domain.OrderStatusPending,
		Metadata:  maps.Clone(c.request.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if c.actor != "" {
		actor := c.actor
		order.Audit.CreatedBy = &actor
		order.Audit.UpdatedBy = &actor
	}

	// Reserved lines are released in reverse on any later failure so a failed
	// creation leaves the ledger untouched.
	var reserved []domain.OrderLine
	compensate := func() {
		for i := len(reserved) - 1; i >= 0; i-- {
			line := reserved[i]
			if _, err := c.core.ledger.Release(ctx, line.ProductID, int64(line.Quantity)); err != nil {
				c.core.logger(ctx, eventCreateCompensationFailed, map[string]any{
					"orderId":   order.ID,
					"productId": line.ProductID,
					"quantity":  line.Quantity,
					"error":     err.Error(),
				})
			}
		}
	}

	var total int64
	lines := make([]domain.OrderLine, 0, len(c.request.Lines))
	for _, req := range c.request.Lines {
		productID := strings.TrimSpace(req.ProductID)

		product, err := c.core.products.FindByID(ctx, productID)
		if err != nil {
			compensate()
			return failedResult(
				fmt.Sprintf("product %s could not be resolved", productID),
				mapProductRepositoryError(productID, err),
			)
		}
		if order.Currency == "" {
			order.Currency = product.Currency
		} else if product.Currency != order.Currency {
			compensate()
			return failedResult(
				"order lines must share a single currency",
				fmt.Errorf("%w: product %s is priced in %s, order is %s", ErrOrderInvalidInput, productID, product.Currency, order.Currency),
			)
		}

		if _, err := c.core.ledger.Reserve(ctx, productID, int64(req.Quantity)); err != nil {
			compensate()
			return failedResult(fmt.Sprintf("stock reservation failed for product %s", productID), err)
		}

		line := domain.OrderLine{
			ProductID: productID,
			Name:      product.Name,
			Quantity:  req.Quantity,
			UnitPrice: product.UnitPrice,
			Total:     product.UnitPrice * int64(req.Quantity),
		}
		reserved = append(reserved, line)
		lines = append(lines, line)
		total += line.Total
	}

	order.Lines = lines
	order.Total = total

	number, err := c.core.nextOrderNumber(ctx, now)
	if err != nil {
		compensate()
		return failedResult("order number allocation failed", err)
	}
	order.OrderNumber = number

	if err := c.core.orders.Insert(ctx, order); err != nil {
		compensate()
		return failedResult("order could not be persisted", mapOrderRepositoryError(err))
	}

	c.created = &order
	c.core.publisher.NotifyStatusChange(ctx, order, "", domain.OrderStatusPending)

	return successResult(fmt.Sprintf("order %s created", order.OrderNumber), order)
}

// Undo cancels the order this command created. It fails when no order exists,
// either because validation rejected the request or because the undo already
// ran; a creation is undoable exactly once.
func (c *CreateOrderCommand) Undo(ctx context.Context) CommandResult {
	if c.created == nil {
		return failedResult("no order was created to undo", nil)
	}
	result := c.core.cancelOrder(ctx, c.created.ID, "creation undone", c.actor, false)
	if result.Success {
		c.created = nil
	}
	return result
}

// PayOrderCommand captures payment for a pending order and marks it paid.
// Reversal is the refund operation, so undo is unsupported.
type PayOrderCommand struct {
	core    *commandCore
	orderID string
	actor   string
}

// NewPayOrderCommand builds the command for the given order.
func NewPayOrderCommand(core *commandCore, actor, orderID string) *PayOrderCommand {
	return &PayOrderCommand{core: core, orderID: strings.TrimSpace(orderID), actor: strings.TrimSpace(actor)}
}

func (c *PayOrderCommand) Description() string {
	return fmt.Sprintf("process payment for order %s", c.orderID)
}

func (c *PayOrderCommand) SupportsUndo() bool { return false }

func (c *PayOrderCommand) Undo(context.Context) CommandResult {
	return failedResult("a processed payment cannot be undone, refund the order instead", nil)
}

func (c *PayOrderCommand) Execute(ctx context.Context) CommandResult {
	if c.orderID == "" {
		return failedResult("order id is required", fmt.Errorf("%w: order id is required", ErrOrderInvalidInput))
	}

	order, err := c.core.orders.FindByID(ctx, c.orderID)
	if err != nil {
		return failedResult(fmt.Sprintf("order %s could not be loaded", c.orderID), mapOrderRepositoryError(err))
	}

	if err := c.core.machine.ValidateOperation(order, OperationPay); err != nil {
		return stateViolationResult(err)
	}
	if c.core.gateway == nil {
		return failedResult("payment gateway not configured", errors.New("payment gateway not configured"))
	}

	now := c.core.now()
	details, err := c.core.gateway.Charge(ctx, payments.PaymentContext{
		Currency: order.Currency,
	}, payments.ChargeRequest{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Amount:         order.Total,
		Currency:       order.Currency,
		IdempotencyKey: fmt.Sprintf("order-%s-charge", order.ID),
	})
	if err != nil {
		if errors.Is(err, payments.ErrChargeDeclined) {
			declined := &PaymentDeclinedError{OrderID: order.ID, Reason: err.Error()}
			return failedResult(fmt.Sprintf("payment for order %s was declined", order.OrderNumber), declined)
		}
		return failedResult(fmt.Sprintf("payment for order %s failed", order.OrderNumber), err)
	}

	c.recordPayment(ctx, order, domain.PaymentKindCharge, details, now)

	oldStatus := order.Status
	order.Status = domain.OrderStatusPaid
	order.PaidAt = &now
	order.UpdatedAt = now
	if c.actor != "" {
		actor := c.actor
		order.Audit.UpdatedBy = &actor
	}

	if err := c.core.orders.Update(ctx, order); err != nil {
		return failedResult(fmt.Sprintf("order %s could not be persisted", c.orderID), mapOrderRepositoryError(err))
	}

	c.core.publisher.NotifyStatusChange(ctx, order, oldStatus, order.Status)

	return successResult(fmt.Sprintf("order %s paid", order.OrderNumber), order)
}

// recordPayment stores the gateway interaction. The charge is already captured
// at this point, so a failed write is logged rather than failing the command.
func (c *PayOrderCommand) recordPayment(ctx context.Context, order domain.Order, kind domain.PaymentKind, details payments.PaymentDetails, now time.Time) {
	if c.core.paymentRecords == nil {
		return
	}
	record := domain.PaymentRecord{
		ID:          "pay_" + c.core.newID(),
		OrderID:     order.ID,
		Kind:        kind,
		Provider:    details.Provider,
		ProviderRef: details.ProviderRef,
		Amount:      order.Total,
		Currency:    order.Currency,
		CreatedAt:   now,
	}
	if err := c.core.paymentRecords.Insert(ctx, record); err != nil {
		c.core.logger(ctx, eventPaymentRecordFailed, map[string]any{
			"orderId": order.ID,
			"kind":    string(kind),
			"error":   err.Error(),
		})
	}
}

// CancelOrderCommand moves an order to the cancelled terminal status,
// refunding the captured payment first when the order was paid. Cancellation
// never supports undo: stock has been returned and money refunded.
type CancelOrderCommand struct {
	core    *commandCore
	orderID string
	reason  string
	actor   string
}

// NewCancelOrderCommand builds the command for the given order.
func NewCancelOrderCommand(core *commandCore, actor, orderID, reason string) *CancelOrderCommand {
	return &CancelOrderCommand{
		core:    core,
		orderID: strings.TrimSpace(orderID),
		reason:  strings.TrimSpace(reason),
		actor:   strings.TrimSpace(actor),
	}
}

func (c *CancelOrderCommand) Description() string {
	return fmt.Sprintf("cancel order %s", c.orderID)
}

func (c *CancelOrderCommand) SupportsUndo() bool { return false }

func (c *CancelOrderCommand) Undo(context.Context) CommandResult {
	return failedResult("a cancellation cannot be undone", nil)
}

func (c *CancelOrderCommand) Execute(ctx context.Context) CommandResult {
	return c.core.cancelOrder(ctx, c.orderID, c.reason, c.actor, false)
}

// RefundOrderCommand refunds a paid order's captured payment and cancels it.
// Refunding shares the cancellation path; the order ends cancelled either way.
type RefundOrderCommand struct {
	core    *commandCore
	orderID string
	reason  string
	actor   string
}

// NewRefundOrderCommand builds the command for the given order.
func NewRefundOrderCommand(core *commandCore, actor, orderID, reason string) *RefundOrderCommand {
	return &RefundOrderCommand{
		core:    core,
		orderID: strings.TrimSpace(orderID),
		reason:  strings.TrimSpace(reason),
		actor:   strings.TrimSpace(actor),
	}
}

func (c *RefundOrderCommand) Description() string {
	return fmt.Sprintf("refund order %s", c.orderID)
}

func (c *RefundOrderCommand) SupportsUndo() bool { return false }

func (c *RefundOrderCommand) Undo(context.Context) CommandResult {
	return failedResult("a refund cannot be undone", nil)
}

func (c *RefundOrderCommand) Execute(ctx context.Context) CommandResult {
	return c.core.cancelOrder(ctx, c.orderID, c.reason, c.actor, true)
}

// cancelOrder loads the order, enforces the state machine, refunds the
// captured payment when one exists, persists the terminal status, and fans the
// change out. viaRefund selects the refund operation's stricter gate (paid
// orders only) and marks the order metadata accordingly.
func (c *commandCore) cancelOrder(ctx context.Context, orderID, reason, actor string, viaRefund bool) CommandResult {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return failedResult("order id is required", fmt.Errorf("%w: order id is required", ErrOrderInvalidInput))
	}

	order, err := c.orders.FindByID(ctx, orderID)
	if err != nil {
		return failedResult(fmt.Sprintf("order %s could not be loaded", orderID), mapOrderRepositoryError(err))
	}

	operation := OperationCancel
	if viaRefund {
		operation = OperationRefund
	}
	if err := c.machine.ValidateOperation(order, operation); err != nil {
		return stateViolationResult(err)
	}
	if err := c.machine.ValidateTransition(order, domain.OrderStatusCancelled); err != nil {
		return stateViolationResult(err)
	}

	oldStatus := order.Status
	now := c.now()

	if oldStatus == domain.OrderStatusPaid {
		if err := c.refundPayment(ctx, order, reason, now); err != nil {
			return failedResult(fmt.Sprintf("refund for order %s failed", orderID), err)
		}
	}

	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		order.CancelReason = &trimmed
	}
	if trimmed := strings.TrimSpace(actor); trimmed != "" {
		order.Audit.UpdatedBy = &trimmed
	}
	if viaRefund {
		if order.Metadata == nil {
			order.Metadata = make(map[string]any, 1)
		}
		order.Metadata["refund_requested"] = true
	}

	if err := c.orders.Update(ctx, order); err != nil {
		return failedResult(fmt.Sprintf("order %s could not be persisted", orderID), mapOrderRepositoryError(err))
	}

	c.publisher.NotifyStatusChange(ctx, order, oldStatus, order.Status)

	message := fmt.Sprintf("order %s cancelled", order.OrderNumber)
	if viaRefund {
		message = fmt.Sprintf("order %s refunded and cancelled", order.OrderNumber)
	}
	return successResult(message, order)
}

// refundPayment reverses the captured charge through the gateway and records
// the refund. A missing charge record or gateway failure aborts the
// cancellation before any status change.
func (c *commandCore) refundPayment(ctx context.Context, order domain.Order, reason string, now time.Time) error {
	if c.gateway == nil {
		return errors.New("payment gateway not configured")
	}

	charge, err := c.findCapturedCharge(ctx, order.ID)
	if err != nil {
		return err
	}

	details, err := c.gateway.Refund(ctx, payments.PaymentContext{
		PreferredGateway: charge.Provider,
		Currency:         order.Currency,
	}, payments.RefundRequest{
		ProviderRef:    charge.ProviderRef,
		Reason:         strings.TrimSpace(reason),
		IdempotencyKey: fmt.Sprintf("order-%s-refund", order.ID),
	})
	if err != nil {
		return fmt.Errorf("gateway refund: %w", err)
	}

	if c.paymentRecords != nil {
		record := domain.PaymentRecord{
			ID:          "pay_" + c.newID(),
			OrderID:     order.ID,
			Kind:        domain.PaymentKindRefund,
			Provider:    details.Provider,
			ProviderRef: details.ProviderRef,
			Amount:      order.Total,
			Currency:    order.Currency,
			CreatedAt:   now,
		}
		if err := c.paymentRecords.Insert(ctx, record); err != nil {
			c.logger(ctx, eventRefundRecordFailed, map[string]any{
				"orderId": order.ID,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

// findCapturedCharge locates the most recent charge record for the order.
func (c *commandCore) findCapturedCharge(ctx context.Context, orderID string) (domain.PaymentRecord, error) {
	if c.paymentRecords == nil {
		return domain.PaymentRecord{}, errors.New("payment records not configured")
	}
	records, err := c.paymentRecords.List(ctx, orderID)
	if err != nil {
		return domain.PaymentRecord{}, mapOrderRepositoryError(err)
	}
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Kind == domain.PaymentKindCharge {
			return records[i], nil
		}
	}
	return domain.PaymentRecord{}, fmt.Errorf("no captured charge recorded for order %s", orderID)
}
