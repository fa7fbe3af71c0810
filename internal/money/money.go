// Package money holds the exact-decimal helpers used for order and payment amounts.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept for stored amounts.
const Places = 2

var (
	Zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Round rounds d half away from zero to Places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// NonNegative clamps d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return Zero
	}
	return d
}

// Percent returns rate percent of base, rounded.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return Round(base.Mul(rate).Div(hundred))
}

// LineTotal is unit price times quantity.
func LineTotal(unit decimal.Decimal, quantity int) decimal.Decimal {
	return Round(unit.Mul(decimal.NewFromInt(int64(quantity))))
}

// Sum adds amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// ToMinorUnits converts a major-unit amount (rupees) into minor units (paise).
// Amounts with more than Places fractional digits are rejected rather than rounded.
func ToMinorUnits(d decimal.Decimal) (int64, error) {
	minor := d.Mul(hundred)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), Places)
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts minor units back into a major-unit amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -Places)
}

// Parse parses a decimal string and rounds it to Places.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Round(d), nil
}

// MustParse is Parse for literals in seeds and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
