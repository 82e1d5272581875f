// Package mapping resolves analyzer suggestions and user overrides into a
// validated column-mapping contract for an import batch.
package mapping

import (
	"fmt"

	"github.com/fstrauf/txapp/internal/domain/import/sniffer"
)

// AmountFormat controls how the raw amount's sign is interpreted.
type AmountFormat string

const (
	// AmountStandard trusts the sign as written in the file.
	AmountStandard AmountFormat = "standard"
	// AmountNegate flips the sign (files where expenses are positive).
	AmountNegate AmountFormat = "negate"
	// AmountSignColumn forces the sign from a separate direction column.
	AmountSignColumn AmountFormat = "sign_column"
)

// ColumnMapping is the finalized contract for one import batch. It is
// immutable once resolved: invalid combinations never exist as a constructed
// value because Resolve validates before building it.
type ColumnMapping struct {
	Date         string
	Amount       string
	Description  string
	Description2 string // optional secondary description column
	Currency     string // optional
	Category     string // optional
	Direction    string // optional
	Balance      string // optional
	Reference    string // optional
	SignColumn   string // required when AmountFormat is AmountSignColumn

	AmountFormat AmountFormat
	DateFormat   string // template such as "yyyy-MM-dd" or "dd/MM/yyyy"
	Delimiter    rune
	SkipRows     int

	// DirectionInfo carries the classified direction column, when present.
	DirectionInfo *sniffer.DirectionInfo
}

// FieldError identifies which mapping field failed validation, so callers can
// point at the offending form field instead of showing a generic failure.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("mapping field %q: %s", e.Field, e.Message)
}

// Overrides is the caller-confirmed header assignment merged on top of the
// analyzer's suggestions. Empty strings mean "no override".
type Overrides struct {
	Date         string
	Amount       string
	Description  string
	Description2 string
	Currency     string
	Category     string
	Direction    string
	Balance      string
	Reference    string
	SignColumn   string

	AmountFormat AmountFormat
	DateFormat   string
}

// Resolve merges analyzer output with caller overrides into a validated
// ColumnMapping. Pure function: no I/O, trivially unit-testable. Overrides
// win over suggestions; required fields must resolve to exactly one header
// each, and the finalized assignment must be a bijection.
func Resolve(analysis *sniffer.Analysis, o Overrides) (*ColumnMapping, error) {
	pick := func(override, field string) string {
		if override != "" {
			return override
		}
		return analysis.Suggestions[field]
	}

	m := &ColumnMapping{
		Date:         pick(o.Date, sniffer.FieldDate),
		Amount:       pick(o.Amount, sniffer.FieldAmount),
		Description:  pick(o.Description, sniffer.FieldDescription),
		Description2: o.Description2,
		Currency:     o.Currency,
		Category:     o.Category,
		Direction:    pick(o.Direction, sniffer.FieldDirection),
		Balance:      pick(o.Balance, sniffer.FieldBalance),
		Reference:    o.Reference,
		SignColumn:   o.SignColumn,
		AmountFormat: o.AmountFormat,
		DateFormat:   o.DateFormat,
		Delimiter:    analysis.Delimiter,
		SkipRows:     analysis.SkipRows,
	}
	if m.AmountFormat == "" {
		m.AmountFormat = AmountStandard
	}

	required := []struct{ field, header string }{
		{"date", m.Date},
		{"amount", m.Amount},
		{"description", m.Description},
	}
	for _, r := range required {
		if r.header == "" {
			return nil, &FieldError{Field: r.field, Message: "no column assigned"}
		}
		if !headerExists(analysis.Headers, r.header) {
			return nil, &FieldError{Field: r.field, Message: fmt.Sprintf("column %q not present in file", r.header)}
		}
	}

	optional := []struct{ field, header string }{
		{"description2", m.Description2},
		{"currency", m.Currency},
		{"category", m.Category},
		{"direction", m.Direction},
		{"balance", m.Balance},
		{"reference", m.Reference},
	}
	for _, opt := range optional {
		if opt.header != "" && !headerExists(analysis.Headers, opt.header) {
			return nil, &FieldError{Field: opt.field, Message: fmt.Sprintf("column %q not present in file", opt.header)}
		}
	}

	switch m.AmountFormat {
	case AmountStandard, AmountNegate:
	case AmountSignColumn:
		if m.SignColumn == "" {
			return nil, &FieldError{Field: "signColumn", Message: "required when amount format is sign_column"}
		}
		if !headerExists(analysis.Headers, m.SignColumn) {
			return nil, &FieldError{Field: "signColumn", Message: fmt.Sprintf("column %q not present in file", m.SignColumn)}
		}
	default:
		return nil, &FieldError{Field: "amountFormat", Message: fmt.Sprintf("unknown format %q", m.AmountFormat)}
	}

	// Bijection check at submit time: interactive editing is last-write-wins,
	// but a finalized mapping may not assign one header to two fields.
	assigned := map[string]string{}
	for _, a := range []struct{ field, header string }{
		{"date", m.Date},
		{"amount", m.Amount},
		{"description", m.Description},
		{"description2", m.Description2},
		{"currency", m.Currency},
		{"category", m.Category},
		{"balance", m.Balance},
		{"reference", m.Reference},
	} {
		if a.header == "" {
			continue
		}
		if prev, dup := assigned[a.header]; dup {
			return nil, &FieldError{
				Field:   a.field,
				Message: fmt.Sprintf("column %q already assigned to %s", a.header, prev),
			}
		}
		assigned[a.header] = a.field
	}

	if m.AmountFormat == AmountSignColumn && analysis.Direction != nil && analysis.Direction.Column == m.SignColumn {
		m.DirectionInfo = analysis.Direction
	}

	return m, nil
}

func headerExists(headers []string, name string) bool {
	for _, h := range headers {
		if h == name {
			return true
		}
	}
	return false
}
