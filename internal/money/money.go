// Package money provides truncating fixed-point arithmetic for monetary
// and asset quantities. Every value in the system carries at most Scale
// fractional digits; results of multiplication are truncated (never
// rounded) back to Scale so that arithmetic is reproducible regardless of
// operand order.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by all quantities.
const Scale = 8

// Mul multiplies two quantities and truncates the result to Scale.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(Scale)
}

// Add adds two quantities. Inputs at Scale produce an exact result; the
// truncation only normalizes the exponent.
func Add(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b).Truncate(Scale)
}

// Sub subtracts b from a, truncated to Scale.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Truncate(Scale)
}

// Parse converts a decimal string into a quantity. It rejects values that
// are not valid decimals or that carry more than Scale fractional digits.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.Exponent() < -Scale {
		return decimal.Zero, fmt.Errorf("%q exceeds %d decimal places", s, Scale)
	}
	return d, nil
}

// MustParse is Parse for trusted constants; it panics on bad input.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders a quantity with exactly Scale fractional digits, the
// canonical wire representation ("750.00000000").
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
