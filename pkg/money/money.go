// Package money provides currency-safe helpers around ISO-4217 codes and
// decimal amounts for the import and insights pipelines.
package money

import (
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
)

// NormalizeCode upper-cases and truncates a raw currency value to a 3-letter
// code. The second return reports whether go-money recognizes the code; an
// unrecognized code is still returned, since bank exports sometimes carry
// internal codes worth preserving.
func NormalizeCode(raw string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) > 3 {
		code = code[:3]
	}
	if code == "" {
		return "", false
	}
	return code, gomoney.GetCurrency(code) != nil
}

// Round2 rounds to the 2-decimal precision every canonical amount carries.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Format renders a decimal amount with its currency symbol, e.g. "$4.50".
// Unknown or empty codes fall back to USD display.
func Format(d decimal.Decimal, code string) string {
	currency := gomoney.GetCurrency(code)
	if currency == nil {
		currency = gomoney.GetCurrency(USD)
	}
	cents := d.Mul(decimal.New(1, int32(currency.Fraction))).Round(0).IntPart()
	return gomoney.New(cents, currency.Code).Display()
}
