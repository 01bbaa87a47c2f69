package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/platform/httpx"
	"github.com/maplecart/orders/internal/platform/requestctx"
	"github.com/maplecart/orders/internal/services"
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

const (
	defaultOrderPageSize   = 20
	maxOrderPageSize       = 100
	maxOrderCreateBodySize = 16 * 1024
	maxOrderActionBodySize = 4 * 1024
)

type createOrderRequest struct {
	UserID   string             `json:"user_id"`
	Lines    []orderLineRequest `json:"lines"`
	Metadata map[string]any     `json:"metadata"`
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderActionRequest struct {
	Reason string `json:"reason"`
}

// OrderHandlers exposes the order lifecycle endpoints: creation, payment,
// cancellation, refund, undo, and the read surface backing them.
type OrderHandlers struct {
	orders    services.OrderService
	audit     services.AuditLogService
	sanitizer *bluemonday.Policy
	limiter   rateLimiter
}

// OrderOption customises the order handlers.
type OrderOption func(*OrderHandlers)

// WithOrderRateLimit bounds mutating order requests per caller inside the window.
func WithOrderRateLimit(limit int, window time.Duration) OrderOption {
	return func(h *OrderHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewOrderHandlers constructs handlers over the order and audit services.
func NewOrderHandlers(orders services.OrderService, audit services.AuditLogService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{
		orders:    orders,
		audit:     audit,
		sanitizer: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:pay", h.payOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:refund", h.refundOrder)
	r.Get("/{orderID}/actions", h.orderActions)
	r.Get("/{orderID}/audit", h.orderAudit)
}

// UndoRoutes registers the caller-scoped undo endpoints.
func (h *OrderHandlers) UndoRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/undo", h.undoLast)
	r.Get("/undo", h.undoState)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	callerID := callerFromContext(ctx)
	if !h.allow(callerID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order requests", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxOrderCreateBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	lines := make([]services.OrderLineRequest, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.OrderLineRequest{
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}

	result := h.orders.CreateOrder(ctx, callerID, services.CreateOrderRequest{
		UserID:   strings.TrimSpace(req.UserID),
		Lines:    lines,
		Metadata: cloneMap(req.Metadata),
	})
	writeCommandResult(ctx, w, result, http.StatusCreated)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	statusFilters := parseFilterValues(query["status"])

	var dateRange domain.RangeQuery[time.Time]
	var hasDateRange bool
	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_after must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.From = &ts
		hasDateRange = true
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_before must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		dateRange.To = &ts
		hasDateRange = true
	}

	pageSize, err := parsePageSize(query.Get("page_size"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID: strings.TrimSpace(query.Get("user_id")),
		Status: statusFilters,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if hasDateRange {
		filter.DateRange = dateRange
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	response := orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) payOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	callerID := callerFromContext(ctx)
	if !h.allow(callerID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order requests", http.StatusTooManyRequests))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	result := h.orders.ProcessPayment(ctx, callerID, orderID)
	writeCommandResult(ctx, w, result, http.StatusOK)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	callerID := callerFromContext(ctx)
	if !h.allow(callerID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order requests", http.StatusTooManyRequests))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	reason, ok := h.readActionReason(ctx, w, r)
	if !ok {
		return
	}

	result := h.orders.CancelOrder(ctx, callerID, orderID, reason)
	writeCommandResult(ctx, w, result, http.StatusOK)
}

func (h *OrderHandlers) refundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	callerID := callerFromContext(ctx)
	if !h.allow(callerID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order requests", http.StatusTooManyRequests))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	reason, ok := h.readActionReason(ctx, w, r)
	if !ok {
		return
	}

	result := h.orders.RefundOrder(ctx, callerID, orderID, reason)
	writeCommandResult(ctx, w, result, http.StatusOK)
}

func (h *OrderHandlers) orderActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	actions, err := h.orders.AvailableActions(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	targets := make([]string, 0, len(actions.LegalTargets))
	for _, target := range actions.LegalTargets {
		targets = append(targets, string(target))
	}

	writeJSONResponse(w, http.StatusOK, orderActionsPayload{
		OrderID:      actions.OrderID,
		Status:       string(actions.Status),
		Actions:      actions.Actions,
		CanPay:       actions.CanPay,
		CanCancel:    actions.CanCancel,
		CanRefund:    actions.CanRefund,
		LegalTargets: targets,
	})
}

func (h *OrderHandlers) orderAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_service_unavailable", "audit service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
		return
	}

	page, err := h.audit.List(ctx, services.AuditLogFilter{
		TargetRef: "/orders/" + orderID,
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]auditEntryPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildAuditEntryPayload(entry))
	}

	writeJSONResponse(w, http.StatusOK, auditListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) undoLast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	callerID := callerFromContext(ctx)
	if !h.allow(callerID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order requests", http.StatusTooManyRequests))
		return
	}

	result := h.orders.UndoLastCommand(ctx, callerID)
	writeCommandResult(ctx, w, result, http.StatusOK)
}

func (h *OrderHandlers) undoState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	callerID := callerFromContext(ctx)
	state := h.orders.UndoState(callerID)

	writeJSONResponse(w, http.StatusOK, undoStatePayload{
		Count:           state.Count,
		LastDescription: strings.TrimSpace(state.LastDescription),
	})
}

// readActionReason parses the optional {"reason": ...} body shared by cancel
// and refund. A missing body means no reason was given.
func (h *OrderHandlers) readActionReason(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := readLimitedBody(r, maxOrderActionBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			return "", true
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return "", false
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return "", false
		}
	}

	var req orderActionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return "", false
	}
	return h.sanitizeReason(req.Reason), true
}

func (h *OrderHandlers) sanitizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" || h.sanitizer == nil {
		return reason
	}
	return strings.TrimSpace(h.sanitizer.Sanitize(reason))
}

func (h *OrderHandlers) allow(callerID string) bool {
	if h.limiter == nil {
		return true
	}
	return h.limiter.Allow(callerID)
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	Currency    string `json:"currency"`
	Total       int64  `json:"total"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type commandResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Order   *orderPayload `json:"order,omitempty"`
}

type orderPayload struct {
	ID           string             `json:"id"`
	OrderNumber  string             `json:"order_number"`
	UserID       string             `json:"user_id"`
	Status       string             `json:"status"`
	Currency     string             `json:"currency"`
	Total        int64              `json:"total"`
	Lines        []orderLinePayload `json:"lines"`
	CancelReason *string            `json:"cancel_reason,omitempty"`
	Audit        *orderAuditPayload `json:"audit,omitempty"`
	Metadata     map[string]any     `json:"metadata,omitempty"`
	CreatedAt    string             `json:"created_at"`
	UpdatedAt    string             `json:"updated_at,omitempty"`
	PaidAt       string             `json:"paid_at,omitempty"`
	CancelledAt  string             `json:"cancelled_at,omitempty"`
}

type orderLinePayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Total     int64  `json:"total"`
}

type orderAuditPayload struct {
	CreatedBy *string `json:"created_by,omitempty"`
	UpdatedBy *string `json:"updated_by,omitempty"`
}

type orderActionsPayload struct {
	OrderID      string   `json:"order_id"`
	Status       string   `json:"status"`
	Actions      string   `json:"actions"`
	CanPay       bool     `json:"can_pay"`
	CanCancel    bool     `json:"can_cancel"`
	CanRefund    bool     `json:"can_refund"`
	LegalTargets []string `json:"legal_targets"`
}

type undoStatePayload struct {
	Count           int    `json:"count"`
	LastDescription string `json:"last_description,omitempty"`
}

type auditListResponse struct {
	Items         []auditEntryPayload `json:"items"`
	NextPageToken string              `json:"next_page_token,omitempty"`
}

type auditEntryPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	ActorType string         `json:"actor_type,omitempty"`
	Action    string         `json:"action"`
	TargetRef string         `json:"target_ref"`
	Severity  string         `json:"severity,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		Status:      strings.TrimSpace(string(order.Status)),
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:       order.Total,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:           strings.TrimSpace(order.ID),
		OrderNumber:  strings.TrimSpace(order.OrderNumber),
		UserID:       strings.TrimSpace(order.UserID),
		Status:       strings.TrimSpace(string(order.Status)),
		Currency:     strings.ToUpper(strings.TrimSpace(order.Currency)),
		Total:        order.Total,
		Lines:        make([]orderLinePayload, 0, len(order.Lines)),
		CancelReason: cloneStringPointer(order.CancelReason),
		Metadata:     cloneMap(order.Metadata),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
		PaidAt:       formatTime(pointerTime(order.PaidAt)),
		CancelledAt:  formatTime(pointerTime(order.CancelledAt)),
	}

	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ProductID: strings.TrimSpace(line.ProductID),
			Name:      strings.TrimSpace(line.Name),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Total:     line.Total,
		})
	}

	if order.Audit.CreatedBy != nil || order.Audit.UpdatedBy != nil {
		payload.Audit = &orderAuditPayload{
			CreatedBy: cloneStringPointer(order.Audit.CreatedBy),
			UpdatedBy: cloneStringPointer(order.Audit.UpdatedBy),
		}
	}

	return payload
}

func buildAuditEntryPayload(entry services.AuditLogEntry) auditEntryPayload {
	return auditEntryPayload{
		ID:        strings.TrimSpace(entry.ID),
		Actor:     strings.TrimSpace(entry.Actor),
		ActorType: strings.TrimSpace(entry.ActorType),
		Action:    strings.TrimSpace(entry.Action),
		TargetRef: strings.TrimSpace(entry.TargetRef),
		Severity:  strings.TrimSpace(entry.Severity),
		RequestID: strings.TrimSpace(entry.RequestID),
		Metadata:  cloneMap(entry.Metadata),
		CreatedAt: formatTime(entry.CreatedAt),
	}
}

// writeCommandResult maps a command outcome onto the HTTP surface. Failures
// with a captured cause follow the error taxonomy; business rejections without
// one (an empty undo stack, an unrepeatable undo) become a conflict.
func writeCommandResult(ctx context.Context, w http.ResponseWriter, result services.CommandResult, successStatus int) {
	if result.Success {
		response := commandResponse{Success: true, Message: strings.TrimSpace(result.Message)}
		if result.Order != nil {
			payload := buildOrderPayload(*result.Order)
			response.Order = &payload
		}
		writeJSONResponse(w, successStatus, response)
		return
	}

	if result.Err != nil {
		writeOrderError(ctx, w, result.Err)
		return
	}

	message := strings.TrimSpace(result.Message)
	if message == "" {
		message = "command failed"
	}
	httpx.WriteError(ctx, w, httpx.NewError("command_failed", message, http.StatusConflict))
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		httpx.WriteError(ctx, w, httpx.NewError("order_validation_failed", validationErr.Error(), http.StatusBadRequest).WithDetails(map[string]any{
			"step":   validationErr.Step,
			"errors": validationErr.Errors,
		}))
		return
	}

	var stateErr *services.StateViolationError
	if errors.As(err, &stateErr) {
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", stateErr.Error(), http.StatusConflict))
		return
	}

	var stockErr *services.InsufficientStockError
	if errors.As(err, &stockErr) {
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", stockErr.Error(), http.StatusConflict).WithDetails(map[string]any{
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		}))
		return
	}

	var declinedErr *services.PaymentDeclinedError
	if errors.As(err, &declinedErr) {
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", declinedErr.Error(), http.StatusPaymentRequired))
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrRepositoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "order storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func callerFromContext(ctx context.Context) string {
	callerID, _ := requestctx.Caller(ctx)
	return callerID
}

func parsePageSize(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultOrderPageSize, nil
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	switch {
	case size <= 0:
		return defaultOrderPageSize, nil
	case size > maxOrderPageSize:
		return maxOrderPageSize, nil
	default:
		return size, nil
	}
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("must be RFC3339 timestamp")
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxOrderActionBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func pointerTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
