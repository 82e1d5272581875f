// Package normalizer turns raw CSV rows into canonical transactions:
// description assembly, multi-strategy date parsing, amount and sign
// resolution, currency extraction, category resolution, and duplicate checks.
package normalizer

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned when every parsing strategy has been exhausted.
var ErrInvalidDate = errors.New("invalid date")

// dateStrategy is one pure parsing attempt. ParseDate tries each in order
// and stops at the first success, which keeps every strategy independently
// testable instead of one deep conditional.
type dateStrategy func(raw, format string) (time.Time, bool)

var dateStrategies = []dateStrategy{
	parseWithTemplate,
	parseGeneric,
	parseManualFallback,
}

// ParseDate parses a raw date using the batch's configured format template
// (e.g. "yyyy-MM-dd", "dd/MM/yyyy"), falling back to generic parsing and
// finally to a manual tokenizer. Successful dates are normalized to UTC
// midnight.
func ParseDate(raw, format string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, strategy := range dateStrategies {
		if t, ok := strategy(raw, format); ok {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// parseWithTemplate converts the mapping's template to a Go reference layout
// and attempts an exact parse.
func parseWithTemplate(raw, format string) (time.Time, bool) {
	layout := templateToLayout(format)
	if layout == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(layout, raw)
	return t, err == nil
}

var templateReplacer = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MM", "01",
	"M", "1",
	"dd", "02",
	"d", "2",
)

func templateToLayout(format string) string {
	if format == "" {
		return ""
	}
	return templateReplacer.Replace(format)
}

// parseGeneric handles ISO-like strings the configured template did not
// anticipate.
func parseGeneric(raw, _ string) (time.Time, bool) {
	layouts := []string{
		"2006-01-02",
		"2006/01/02",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"02 Jan 2006",
		"Jan 2, 2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseManualFallback tokenizes on [-/.] and reassigns day/month/year
// positions according to the configured format family. Two-digit years are
// padded into the current century, and a resulting year beyond the current
// year is clamped down to it — a defensive rule against locale misparses
// that silently swap day and month into a future date.
func parseManualFallback(raw, format string) (time.Time, bool) {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '-' || r == '/' || r == '.'
	})
	if len(parts) != 3 {
		return time.Time{}, false
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, false
		}
		nums[i] = n
	}

	var day, month, year int
	switch formatFamily(format) {
	case familyYearFirst:
		year, month, day = nums[0], nums[1], nums[2]
	case familyMonthFirst:
		month, day, year = nums[0], nums[1], nums[2]
	default:
		day, month, year = nums[0], nums[1], nums[2]
	}

	if year < 100 {
		year += 2000
	}
	if currentYear := time.Now().UTC().Year(); year > currentYear {
		year = currentYear
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, false // e.g. February 31st rolled over
	}
	return t, true
}

type dateFamily int

const (
	familyDayFirst dateFamily = iota
	familyMonthFirst
	familyYearFirst
)

// formatFamily reads the component order out of the template. Day-first is
// the default: ambiguous bank exports are overwhelmingly DD/MM in the
// markets this pipeline sees.
func formatFamily(format string) dateFamily {
	y := strings.IndexAny(format, "yY")
	m := strings.Index(format, "M")
	d := strings.IndexAny(format, "dD")

	switch {
	case y >= 0 && (m < 0 || y < m) && (d < 0 || y < d):
		return familyYearFirst
	case m >= 0 && (d < 0 || m < d):
		return familyMonthFirst
	default:
		return familyDayFirst
	}
}
