package domain

import "strings"

// NormalizeSize returns the canonical variant key for a size label.
func NormalizeSize(size string) string {
	return strings.ToLower(strings.TrimSpace(size))
}

// NormalizeVariants keys variants by normalized size. Later duplicates replace earlier ones while
// keeping the position of the first occurrence. Entries with an empty size are dropped and
// negative quantities are clamped to zero.
func NormalizeVariants(variants []VariantStock) []VariantStock {
	if len(variants) == 0 {
		return nil
	}
	index := make(map[string]int, len(variants))
	result := make([]VariantStock, 0, len(variants))
	for _, v := range variants {
		size := NormalizeSize(v.Size)
		if size == "" {
			continue
		}
		qty := v.Quantity
		if qty < 0 {
			qty = 0
		}
		if pos, ok := index[size]; ok {
			result[pos].Quantity = qty
			continue
		}
		index[size] = len(result)
		result = append(result, VariantStock{Size: size, Quantity: qty})
	}
	return result
}

// AnyInStock reports whether any variant has a positive quantity.
func AnyInStock(variants []VariantStock) bool {
	for _, v := range variants {
		if v.Quantity > 0 {
			return true
		}
	}
	return false
}
