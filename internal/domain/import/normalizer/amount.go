package normalizer

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/fstrauf/txapp/internal/domain/import/mapping"
	"github.com/fstrauf/txapp/internal/domain/import/repository"
	"github.com/fstrauf/txapp/internal/domain/import/sniffer"
	"github.com/fstrauf/txapp/pkg/money"
)

var (
	ErrMissingAmount = errors.New("missing amount")
	ErrInvalidAmount = errors.New("invalid amount")
)

// ParsedAmount is the resolved value for one row: a non-negative 2-decimal
// amount whose direction lives entirely in Type.
type ParsedAmount struct {
	Amount decimal.Decimal
	Type   repository.TransactionType
}

// ParseAmount parses a raw amount and resolves its direction per the batch's
// amount format. signValue is the raw direction-column value for the row and
// is only consulted when the format is sign_column.
func ParseAmount(raw string, format mapping.AmountFormat, signValue string, direction *sniffer.DirectionInfo) (ParsedAmount, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ParsedAmount{}, ErrMissingAmount
	}

	// Accounting convention: a parenthesized value is negative.
	negative := false
	if strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")") {
		negative = true
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")")
	}

	cleaned := stripCurrencyNoise(raw)
	cleaned = normalizeDecimalSeparator(cleaned)
	if strings.HasPrefix(cleaned, "-") {
		negative = !negative
		cleaned = strings.TrimPrefix(cleaned, "-")
	}

	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return ParsedAmount{}, ErrInvalidAmount
	}
	if negative {
		value = value.Neg()
	}

	switch format {
	case mapping.AmountNegate:
		value = value.Neg()
	case mapping.AmountSignColumn:
		value = applySignColumn(value, signValue, direction)
	}

	txType := repository.TypeCredit
	if value.IsNegative() {
		txType = repository.TypeDebit
	}
	return ParsedAmount{
		Amount: money.Round2(value.Abs()),
		Type:   txType,
	}, nil
}

// stripCurrencyNoise removes currency symbols, letters, grouping spaces and
// anything else that is not a digit, separator, or sign.
func stripCurrencyNoise(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == ',' || r == '.' || r == '-' || r == '+' {
			return r
		}
		return -1
	}, strings.TrimPrefix(raw, "+"))
}

// normalizeDecimalSeparator turns comma-decimal values into dot-decimal
// form. When both separators appear the last one wins as the decimal mark;
// a lone comma is decimal only when at most two digits follow it.
func normalizeDecimalSeparator(s string) string {
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")

	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			// European: 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// US: 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		idx := strings.LastIndex(s, ",")
		if len(s)-idx-1 <= 2 {
			s = s[:idx] + "." + s[idx+1:]
			s = strings.ReplaceAll(s[:strings.LastIndex(s, ".")], ",", "") + s[strings.LastIndex(s, "."):]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return strings.ReplaceAll(s, "+", "")
}

// applySignColumn forces the value's sign from the direction column. With a
// classified mapping the raw value resolves directly; otherwise a keyword
// heuristic applies, and when that fails too the amount's own sign stands.
func applySignColumn(value decimal.Decimal, signValue string, direction *sniffer.DirectionInfo) decimal.Decimal {
	key := strings.ToLower(strings.TrimSpace(signValue))
	if key == "" {
		return value
	}

	resolved := ""
	if direction != nil && direction.ValueMapping != nil {
		resolved = direction.ValueMapping[key]
	}
	if resolved == "" {
		resolved = signKeywordHeuristic(key)
	}

	switch resolved {
	case sniffer.Debit:
		return value.Abs().Neg()
	case sniffer.Credit:
		return value.Abs()
	default:
		return value
	}
}

func signKeywordHeuristic(key string) string {
	switch {
	case strings.Contains(key, "debit"), key == "dr", key == "out", key == "-",
		strings.Contains(key, "withdraw"), strings.Contains(key, "negative"):
		return sniffer.Debit
	case strings.Contains(key, "credit"), key == "cr", key == "in", key == "+",
		strings.Contains(key, "deposit"), strings.Contains(key, "positive"):
		return sniffer.Credit
	default:
		return ""
	}
}
