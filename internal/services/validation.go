package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/maplecart/orders/internal/domain"
	"github.com/maplecart/orders/internal/repositories"
)

// Validation step names reported in failed results and error envelopes.
const (
	StepStructural        = "Structural Validation"
	StepProductExistence  = "Product Existence Validation"
	StepStockAvailability = "Stock Availability Validation"
)

// OrderValidator checks one concern of an order request. The business verdict
// rides in the ValidationResult; a non-nil error means the check itself could
// not run (storage outage) and aborts the pipeline.
type OrderValidator interface {
	Step() string
	Validate(ctx context.Context, req CreateOrderRequest) (domain.ValidationResult, error)
}

// ValidationPipeline runs validators in registration order and stops at the
// first failing step, so a rejection carries only one concern's messages.
type ValidationPipeline struct {
	validators []OrderValidator
}

// NewValidationPipeline assembles the chain. Validator order is significant:
// cheap structural checks run before the ones that hit storage.
func NewValidationPipeline(validators ...OrderValidator) *ValidationPipeline {
	return &ValidationPipeline{validators: validators}
}

// Validate runs the chain against the request.
func (p *ValidationPipeline) Validate(ctx context.Context, req CreateOrderRequest) (domain.ValidationResult, error) {
	for _, v := range p.validators {
		result, err := v.Validate(ctx, req)
		if err != nil {
			return domain.ValidationResult{}, fmt.Errorf("%s: %w", v.Step(), err)
		}
		if !result.Valid {
			return result, nil
		}
	}
	return domain.ValidationResult{Valid: true}, nil
}

func verdict(step string, failures []string) domain.ValidationResult {
	if len(failures) > 0 {
		return domain.ValidationResult{Valid: false, Step: step, Errors: failures}
	}
	return domain.ValidationResult{Valid: true, Step: step}
}

type structuralValidator struct {
	maxLineQuantity int
}

// NewStructuralValidator checks request shape: a known user, at least one
// line, and per-line quantities in (0, maxLineQuantity].
func NewStructuralValidator(maxLineQuantity int) OrderValidator {
	if maxLineQuantity <= 0 {
		maxLineQuantity = 100
	}
	return &structuralValidator{maxLineQuantity: maxLineQuantity}
}

func (v *structuralValidator) Step() string { return StepStructural }

func (v *structuralValidator) Validate(_ context.Context, req CreateOrderRequest) (domain.ValidationResult, error) {
	var failures []string
	if strings.TrimSpace(req.UserID) == "" {
		failures = append(failures, "user id is required")
	}
	if len(req.Lines) == 0 {
		failures = append(failures, "order must contain at least one line")
	}
	for i, line := range req.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			failures = append(failures, fmt.Sprintf("line %d: product id is required", i))
		}
		if line.Quantity <= 0 || line.Quantity > v.maxLineQuantity {
			failures = append(failures, fmt.Sprintf("line %d: quantity must be between 1 and %d, got %d", i, v.maxLineQuantity, line.Quantity))
		}
	}
	return verdict(StepStructural, failures), nil
}

type productExistenceValidator struct {
	products repositories.ProductRepository
}

// NewProductExistenceValidator resolves every referenced product through the
// catalog. Unknown and inactive products fail individually so the caller sees
// all offending lines at once.
func NewProductExistenceValidator(products repositories.ProductRepository) OrderValidator {
	return &productExistenceValidator{products: products}
}

func (v *productExistenceValidator) Step() string { return StepProductExistence }

func (v *productExistenceValidator) Validate(ctx context.Context, req CreateOrderRequest) (domain.ValidationResult, error) {
	var failures []string
	seen := make(map[string]bool, len(req.Lines))
	for _, line := range req.Lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" || seen[productID] {
			continue
		}
		seen[productID] = true

		product, err := v.products.FindByID(ctx, productID)
		if err != nil {
			if isRepoNotFound(err) {
				failures = append(failures, fmt.Sprintf("product %s does not exist", productID))
				continue
			}
			return domain.ValidationResult{}, err
		}
		if !product.Active {
			failures = append(failures, fmt.Sprintf("product %s is not available", productID))
		}
	}
	return verdict(StepProductExistence, failures), nil
}

type stockAvailabilityValidator struct {
	ledger InventoryService
}

// NewStockAvailabilityValidator compares each line's quantity against the
// ledger. A product without an inventory record counts as zero available.
func NewStockAvailabilityValidator(ledger InventoryService) OrderValidator {
	return &stockAvailabilityValidator{ledger: ledger}
}

func (v *stockAvailabilityValidator) Step() string { return StepStockAvailability }

func (v *stockAvailabilityValidator) Validate(ctx context.Context, req CreateOrderRequest) (domain.ValidationResult, error) {
	var failures []string
	for _, line := range req.Lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			continue
		}
		available, err := v.ledger.Available(ctx, productID)
		if err != nil {
			if !errors.Is(err, ErrInventoryNotFound) {
				return domain.ValidationResult{}, err
			}
			available = 0
		}
		if available < int64(line.Quantity) {
			failures = append(failures, fmt.Sprintf("product %s: requested %d, available %d", productID, line.Quantity, available))
		}
	}
	return verdict(StepStockAvailability, failures), nil
}
