package domain

// PricingLine is a single priced input to the pricing calculator.
type PricingLine struct {
	UnitPrice int64
	Quantity  int
}

// PricingResult captures the computed totals for a list of priced lines.
type PricingResult struct {
	Subtotal   int64
	TaxAmount  int64
	GrandTotal int64
}

// Totals converts the pricing result into order totals without advance payment fields.
func (p PricingResult) Totals() OrderTotals {
	return OrderTotals{
		Subtotal:   p.Subtotal,
		TaxAmount:  p.TaxAmount,
		GrandTotal: p.GrandTotal,
	}
}
