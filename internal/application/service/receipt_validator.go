package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/p2p-approval/internal/domain/entity"
)

// ValidatorConfig holds receipt matching tolerances. Zero means exact match.
type ValidatorConfig struct {
	PriceTolerance    decimal.Decimal
	QuantityTolerance int
}

// ReceiptValidator compares a receipt against its purchase order
type ReceiptValidator interface {
	Validate(order *entity.PurchaseOrder, seller string, items []entity.LineItem) entity.ValidationResult
}

type receiptValidatorImpl struct {
	config ValidatorConfig
}

// NewReceiptValidator creates a new ReceiptValidator
func NewReceiptValidator(config ValidatorConfig) ReceiptValidator {
	if config.PriceTolerance.IsNegative() {
		config.PriceTolerance = decimal.Zero
	}
	if config.QuantityTolerance < 0 {
		config.QuantityTolerance = 0
	}
	return &receiptValidatorImpl{config: config}
}

// Validate matches items by normalized description. Duplicate descriptions
// pair in order of appearance. Discrepancies are reported vendor first, then
// per order item, then for receipt items left unmatched.
func (v *receiptValidatorImpl) Validate(order *entity.PurchaseOrder, seller string, items []entity.LineItem) entity.ValidationResult {
	discrepancies := []entity.Discrepancy{}

	if d, ok := vendorDiscrepancy(order.Vendor, seller); ok {
		discrepancies = append(discrepancies, d)
	}

	matched := make([]bool, len(items))
	for _, want := range order.Items {
		idx := findUnmatched(items, matched, want.Description)
		if idx < 0 {
			discrepancies = append(discrepancies, entity.Discrepancy{
				Type:        entity.DiscrepancyMissingItem,
				Description: want.Description,
				Message:     fmt.Sprintf("PO item '%s' not found in receipt", want.Description),
			})
			continue
		}
		matched[idx] = true
		got := items[idx]

		if abs(got.Quantity-want.Quantity) > v.config.QuantityTolerance {
			discrepancies = append(discrepancies, entity.Discrepancy{
				Type:        entity.DiscrepancyQuantityMismatch,
				Description: want.Description,
				Message:     fmt.Sprintf("'%s' quantity %d on receipt, %d on PO", want.Description, got.Quantity, want.Quantity),
			})
		}
		if got.UnitPrice.Sub(want.UnitPrice).Abs().GreaterThan(v.config.PriceTolerance) {
			discrepancies = append(discrepancies, entity.Discrepancy{
				Type:        entity.DiscrepancyPriceMismatch,
				Description: want.Description,
				Message: fmt.Sprintf("'%s' unit price %s on receipt, %s on PO",
					want.Description, got.UnitPrice.StringFixed(2), want.UnitPrice.StringFixed(2)),
			})
		}
	}

	for i, item := range items {
		if matched[i] {
			continue
		}
		discrepancies = append(discrepancies, entity.Discrepancy{
			Type:        entity.DiscrepancyUnexpectedItem,
			Description: item.Description,
			Message:     fmt.Sprintf("Receipt item '%s' is not on the PO", item.Description),
		})
	}

	return entity.ValidationResult{
		Validated:     len(discrepancies) == 0,
		Discrepancies: discrepancies,
	}
}

func vendorDiscrepancy(vendor, seller string) (entity.Discrepancy, bool) {
	v, s := normalize(vendor), normalize(seller)
	if v == "" || s == "" || strings.Contains(v, s) || strings.Contains(s, v) {
		return entity.Discrepancy{}, false
	}
	return entity.Discrepancy{
		Type:    entity.DiscrepancyVendorMismatch,
		Message: fmt.Sprintf("Receipt seller '%s' does not match PO vendor '%s'", seller, vendor),
	}, true
}

func findUnmatched(items []entity.LineItem, matched []bool, description string) int {
	key := normalize(description)
	for i, item := range items {
		if !matched[i] && normalize(item.Description) == key {
			return i
		}
	}
	return -1
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
