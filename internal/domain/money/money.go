// Package money parses and represents bank-notification amounts.
//
// Interac subjects write amounts the French-Canadian way ("320,00 $"),
// sometimes with stray whitespace around the decimal separator
// ("98, 00 $"). Amounts are fixed-point with exactly two fractional
// digits; equality is defined on cents, never on binary floats.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseBankAmount parses a currency-adjacent numeric token into a
// two-decimal fixed-point amount.
//
// Accepted: "320", "320,00", "50.00", "98, 00", "98,5".
// Rejected: empty tokens, tokens with more than one separator run
// (no real sample shows thousands separators, so "1,234.56" is an
// error until one arrives), and more than two fractional digits.
func ParseBankAmount(token string) (decimal.Decimal, error) {
	compact := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == ' ' {
			return -1
		}
		return r
	}, token)

	if compact == "" {
		return decimal.Zero, fmt.Errorf("empty amount token %q", token)
	}

	intPart := compact
	fracPart := ""
	seps := 0
	for i, r := range compact {
		if r == ',' || r == '.' {
			seps++
			if seps > 1 {
				return decimal.Zero, fmt.Errorf("amount %q has more than one separator", token)
			}
			intPart = compact[:i]
			fracPart = compact[i+1:]
		}
	}

	if !digitsOnly(intPart) || !digitsOnly(fracPart) {
		return decimal.Zero, fmt.Errorf("amount %q is not numeric", token)
	}
	if intPart == "" {
		return decimal.Zero, fmt.Errorf("amount %q has no integer part", token)
	}
	if seps == 1 && fracPart == "" {
		return decimal.Zero, fmt.Errorf("amount %q has a dangling separator", token)
	}
	if len(fracPart) > 2 {
		return decimal.Zero, fmt.Errorf("amount %q has more than two fractional digits", token)
	}

	normalized := intPart
	if fracPart != "" {
		normalized += "." + fracPart
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", token, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %q is not positive", token)
	}
	return d.Round(2), nil
}

// Cents converts a two-decimal amount to integer cents, the storage
// and comparison representation.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer cents back to a two-decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
