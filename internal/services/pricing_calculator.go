package services

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidLineItem indicates a line with a negative price, a non-positive quantity, or totals
// that do not fit the money type.
var ErrInvalidLineItem = errors.New("pricing: invalid line item")

type pricingCalculator struct {
	taxRate decimal.Decimal
}

// NewPricingCalculator builds a calculator applying taxRate (0.1 for 10%) to the subtotal.
func NewPricingCalculator(taxRate decimal.Decimal) (PricingCalculator, error) {
	if taxRate.IsNegative() {
		return nil, errors.New("pricing calculator: tax rate must not be negative")
	}
	return &pricingCalculator{taxRate: taxRate}, nil
}

// Calculate sums price × quantity and applies tax once, rounding half away from zero to the minor
// unit. The grand total is never rounded again.
func (c *pricingCalculator) Calculate(lines []PricingLine) (PricingResult, error) {
	var subtotal int64
	for i, line := range lines {
		if line.UnitPrice < 0 {
			return PricingResult{}, fmt.Errorf("%w: line %d has negative price", ErrInvalidLineItem, i)
		}
		if line.Quantity < 1 {
			return PricingResult{}, fmt.Errorf("%w: line %d quantity must be at least 1", ErrInvalidLineItem, i)
		}
		qty := int64(line.Quantity)
		if line.UnitPrice > math.MaxInt64/qty {
			return PricingResult{}, fmt.Errorf("%w: line %d total overflows", ErrInvalidLineItem, i)
		}
		total := line.UnitPrice * qty
		if subtotal > math.MaxInt64-total {
			return PricingResult{}, fmt.Errorf("%w: subtotal overflows", ErrInvalidLineItem)
		}
		subtotal += total
	}

	tax := decimal.NewFromInt(subtotal).Mul(c.taxRate).Round(0)
	if tax.GreaterThan(decimal.NewFromInt(math.MaxInt64-subtotal)) {
		return PricingResult{}, fmt.Errorf("%w: tax overflows", ErrInvalidLineItem)
	}
	taxAmount := tax.IntPart()

	return PricingResult{
		Subtotal:   subtotal,
		TaxAmount:  taxAmount,
		GrandTotal: subtotal + taxAmount,
	}, nil
}
