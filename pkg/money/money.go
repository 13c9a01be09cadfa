// Package money holds the decimal arithmetic shared by every amount in the ledger.
// Amounts are never represented as floats.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the scale every stored amount is rounded to.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Zero is 0.00.
var Zero = decimal.Zero

// Round rounds to cents with half-to-even, matching Decimal.quantize defaults
// in the systems that feed us sale amounts.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Places)
}

// Percent returns round(amount * rate / 100).
func Percent(amount, rate decimal.Decimal) decimal.Decimal {
	return Round(amount.Mul(rate).Div(hundred))
}

// Parse reads a decimal amount from user input.
func Parse(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", value)
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(value string) decimal.Decimal {
	d, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return d
}

// Format renders an amount with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixedBank(Places)
}

// Sum adds the given amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
