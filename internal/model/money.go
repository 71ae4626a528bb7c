package model

import "github.com/shopspring/decimal"

func init() {
	// Amounts go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// FromPaise converts a stored amount in paise to rupees.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

// ToPaise converts a rupee amount to paise. Amounts with sub-paisa precision
// or outside the int64 range are rejected.
func ToPaise(d decimal.Decimal) (int64, error) {
	if d.IsNegative() || !d.Equal(d.Truncate(2)) {
		return 0, ErrInvalidPrice
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() || shifted.GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, ErrInvalidPrice
	}
	return shifted.IntPart(), nil
}
