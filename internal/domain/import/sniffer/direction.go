package sniffer

import "strings"

// DirectionFormat identifies how a direction column encodes money in/out.
type DirectionFormat string

const (
	DirectionInOut            DirectionFormat = "in_out"
	DirectionDebitCredit      DirectionFormat = "debit_credit"
	DirectionPositiveNegative DirectionFormat = "positive_negative"
	DirectionUnknown          DirectionFormat = "unknown"
)

// Direction values used in ValueMapping.
const (
	Debit  = "debit"
	Credit = "credit"
)

// DirectionInfo describes a classified direction column. Derived, read-only.
type DirectionInfo struct {
	Column         string
	Format         DirectionFormat
	ValueMapping   map[string]string // raw value (lower-cased) → Debit/Credit
	ObservedValues []string
}

// ClassifyDirection infers the encoding of a direction column from a sample
// of its values. This is a priority chain, not a voting scheme: a file whose
// column contains both "credit" and "+" classifies by the first rule that
// matches in source order, so in_out beats debit_credit beats
// positive_negative. When nothing matches the format is unknown, no mapping
// is produced, and consumers must fall back to the sign of the amount.
func ClassifyDirection(column string, values []string) *DirectionInfo {
	unique := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		unique = append(unique, v)
	}

	info := &DirectionInfo{
		Column:         column,
		Format:         DirectionUnknown,
		ObservedValues: unique,
	}

	switch {
	case seen["in"] || seen["out"] || seen["neutral"]:
		info.Format = DirectionInOut
		// Internal transfers ("neutral") default to credit treatment.
		info.ValueMapping = map[string]string{
			"in":      Credit,
			"out":     Debit,
			"neutral": Credit,
		}
	case seen["debit"] || seen["credit"] || seen["dr"] || seen["cr"]:
		info.Format = DirectionDebitCredit
		info.ValueMapping = map[string]string{
			"debit":  Debit,
			"dr":     Debit,
			"credit": Credit,
			"cr":     Credit,
		}
	case seen["+"] || seen["-"] || seen["positive"] || seen["negative"]:
		info.Format = DirectionPositiveNegative
		info.ValueMapping = map[string]string{
			"+":        Credit,
			"positive": Credit,
			"-":        Debit,
			"negative": Debit,
		}
	}

	return info
}
