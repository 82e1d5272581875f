package sniffer

import "regexp"

// Semantic field names used throughout the import pipeline.
const (
	FieldDate        = "date"
	FieldAmount      = "amount"
	FieldDescription = "description"
	FieldDirection   = "direction"
	FieldBalance     = "balance"
)

// HeaderMatches groups raw column headers by the semantic field they could
// serve. Each slice preserves the original header order. A header may appear
// in more than one slice; this matcher never breaks ties — that is the
// resolver's (or the user's) call.
type HeaderMatches struct {
	DateColumns        []string
	AmountColumns      []string
	DescriptionColumns []string
	DirectionColumns   []string
	BalanceColumns     []string
}

// Ordered signal lists per semantic field. Multi-language, matching the bank
// exports we have seen in the wild (English, Portuguese, Spanish, German).
var (
	dateSignals = compileSignals(
		`transaction.?date`,
		`value.?date`,
		`post(ing|ed)?.?date`,
		`booking.?date`,
		`data\s*mov`,
		`\bdate\b`,
		`\bdata\b`,
		`\bfecha\b`,
		`\bdatum\b`,
	)

	amountSignals = compileSignals(
		`\bamount\b`,
		`^value$`, // "Value Date" is a date column, not an amount
		`\bvalor\b`,
		`\bimporte\b`,
		`\bmontant(e)?\b`,
		`debit|credit`,
		`d[eé]bito|cr[eé]dito`,
		`\bcargo\b|\babono\b`,
		`\bsum\b`,
	)

	descriptionSignals = compileSignals(
		`descri`,
		`narrative|particulars|memo`,
		`\bdetails?\b`,
		`merchant|payee`,
		`\bname\b|\bnome\b`,
		`\btext\b`,
	)

	directionSignals = compileSignals(
		`in.?out`,
		`debit|credit`,
		`\bdr\b|\bcr\b`,
		`direction`,
		`transaction.?type`,
		`\btype\b|\btipo\b`,
	)

	balanceSignals = compileSignals(
		`running.?balance`,
		`closing.?balance`,
		`\bbalance\b`,
		`\bsaldo\b`,
	)
)

func compileSignals(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(`(?i)`+p))
	}
	return out
}

// MatchHeaders classifies the given column headers into semantic field
// candidates. There are no error conditions: an unknown layout simply yields
// empty candidate lists, which downstream treats as a warning so the file can
// still reach manual mapping.
func MatchHeaders(headers []string) *HeaderMatches {
	m := &HeaderMatches{}
	for _, h := range headers {
		if matchesAny(h, dateSignals) {
			m.DateColumns = append(m.DateColumns, h)
		}
		if matchesAny(h, amountSignals) {
			m.AmountColumns = append(m.AmountColumns, h)
		}
		if matchesAny(h, descriptionSignals) {
			m.DescriptionColumns = append(m.DescriptionColumns, h)
		}
		if matchesAny(h, directionSignals) {
			m.DirectionColumns = append(m.DirectionColumns, h)
		}
		if matchesAny(h, balanceSignals) {
			m.BalanceColumns = append(m.BalanceColumns, h)
		}
	}
	return m
}

func matchesAny(header string, signals []*regexp.Regexp) bool {
	for _, re := range signals {
		if re.MatchString(header) {
			return true
		}
	}
	return false
}

// signalHits counts how many distinct semantic fields a header line scores
// against. Used by header-row detection to tell headers apart from metadata.
func signalHits(line string) int {
	hits := 0
	for _, signals := range [][]*regexp.Regexp{dateSignals, amountSignals, descriptionSignals, directionSignals, balanceSignals} {
		if matchesAny(line, signals) {
			hits++
		}
	}
	return hits
}
