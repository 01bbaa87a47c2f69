package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across gateways.
type Status string

const (
	// StatusPending indicates the payment is awaiting PSP confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusRefunded indicates the payment has been refunded (partially or fully).
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedGateway is returned when the manager cannot locate a gateway.
var ErrUnsupportedGateway = errors.New("payments: unsupported gateway")

// ErrChargeDeclined is returned when the PSP rejects a charge attempt. Callers
// can treat it as a business failure rather than an infrastructure one.
var ErrChargeDeclined = errors.New("payments: charge declined")

// ChargeRequest captures a synchronous capture attempt for one order.
type ChargeRequest struct {
	OrderID        string
	UserID         string
	Amount         int64
	Currency       string
	PaymentMethod  string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundRequest defines a PSP refund attempt against a prior charge.
type RefundRequest struct {
	ProviderRef    string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// LookupRequest returns gateway specific payment details for reconciliation.
type LookupRequest struct {
	ProviderRef string
}

// PaymentDetails normalises PSP specific fields for storage.
type PaymentDetails struct {
	Provider    string
	ProviderRef string
	Status      Status
	Amount      int64
	Currency    string
	Captured    bool
	CapturedAt  *time.Time
	RefundedAt  *time.Time
	Raw         map[string]any
}

// Gateway defines the contract for PSP adapters to implement.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager coordinates gateway selection and exposes the aggregated interface.
type Manager struct {
	gateways       map[string]Gateway
	defaultGateway string
	currencyRoutes map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultGateway overrides the default gateway for currencies without explicit routing.
func WithDefaultGateway(gateway string) ManagerOption {
	return func(m *Manager) {
		m.defaultGateway = gateway
	}
}

// WithCurrencyRoutes configures static currency to gateway mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied gateways.
func NewManager(gateways map[string]Gateway, opts ...ManagerOption) (*Manager, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	copyMap := make(map[string]Gateway, len(gateways))
	for k, v := range gateways {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid gateway registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		gateways: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultGateway = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a gateway.
type PaymentContext struct {
	PreferredGateway string
	Currency         string
	Metadata         map[string]string
}

func (m *Manager) resolveGateway(ctx PaymentContext) (string, Gateway, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.gateways) == 0 {
		return "", nil, errors.New("payments: no gateways registered")
	}
	if gateway := strings.TrimSpace(strings.ToLower(ctx.PreferredGateway)); gateway != "" {
		if g, ok := m.gateways[gateway]; ok {
			return gateway, g, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if gatewayKey, ok := m.currencyRoutes[currency]; ok {
			gateway := strings.TrimSpace(strings.ToLower(gatewayKey))
			if g, ok := m.gateways[gateway]; ok {
				return gateway, g, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultGateway)); def != "" {
		if g, ok := m.gateways[def]; ok {
			return def, g, nil
		}
	}
	if len(m.gateways) == 1 {
		for key, g := range m.gateways {
			return key, g, nil
		}
	}
	return "", nil, ErrUnsupportedGateway
}

// Charge delegates to the resolved gateway.
func (m *Manager) Charge(ctx context.Context, paymentCtx PaymentContext, req ChargeRequest) (PaymentDetails, error) {
	key, gateway, err := m.resolveGateway(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := gateway.Charge(ctx, req)
	if details.Provider == "" {
		details.Provider = key
	}
	return details, err
}

// Refund delegates to the resolved gateway.
func (m *Manager) Refund(ctx context.Context, paymentCtx PaymentContext, req RefundRequest) (PaymentDetails, error) {
	key, gateway, err := m.resolveGateway(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := gateway.Refund(ctx, req)
	if details.Provider == "" {
		details.Provider = key
	}
	return details, err
}

// LookupPayment delegates to the resolved gateway.
func (m *Manager) LookupPayment(ctx context.Context, paymentCtx PaymentContext, req LookupRequest) (PaymentDetails, error) {
	_, gateway, err := m.resolveGateway(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	return gateway.LookupPayment(ctx, req)
}
