// Package sniffer provides automatic detection of CSV/TSV bank-export
// structure. It identifies delimiters, metadata lines, and header rows, and
// suggests a column-to-field mapping with a confidence score.
package sniffer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// MaxFileSize caps the accepted upload size. Anything larger is rejected
// before a single line is parsed.
const MaxFileSize = 10 << 20 // 10 MiB

const maxSampleRows = 5

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrFileTooLarge     = fmt.Errorf("file exceeds %d bytes", MaxFileSize)
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrNoDataRows       = errors.New("file has no data rows")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// Analysis is the result of analyzing an uploaded file. Validation failures
// (unreadable file, zero headers, zero data rows) are hard errors; everything
// else degrades to Warnings so unknown layouts still reach manual mapping.
type Analysis struct {
	Headers    []string
	SampleRows [][]string
	Delimiter  rune
	SkipRows   int

	// Suggestions maps a semantic field to the single header that matched it
	// unambiguously. Ambiguous or unmatched fields are absent.
	Suggestions map[string]string

	// Confidence is a heuristic 0–100 score: the fraction of
	// {date, amount, description} that received exactly one candidate header.
	Confidence int

	// Matches lists every candidate per field, including ambiguous ones, so a
	// mapping UI can present choices the suggestions left out.
	Matches *HeaderMatches

	// Direction describes the first direction-column candidate, classified
	// from its sample values. Nil when no direction column matched.
	Direction *DirectionInfo

	Warnings []string
}

// Analyze inspects raw CSV/TSV bytes and produces structure and mapping
// suggestions.
func Analyze(data []byte) (*Analysis, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	data = normalizeBytes(data)

	lines := strings.Split(string(data), "\n")
	delimiter, skipRows, err := findHeaderRow(lines)
	if err != nil {
		return nil, err
	}

	headerLine := cleanLine(lines[skipRows])
	reader := csv.NewReader(strings.NewReader(headerLine))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("unparseable header row: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	if len(headers) == 0 {
		return nil, ErrNoHeadersFound
	}

	sampleRows := readSampleRows(data, delimiter, skipRows+1)
	if len(sampleRows) == 0 {
		return nil, ErrNoDataRows
	}

	matches := MatchHeaders(headers)

	a := &Analysis{
		Headers:    headers,
		SampleRows: sampleRows,
		Delimiter:  delimiter,
		SkipRows:   skipRows,
		Matches:    matches,
	}
	a.buildSuggestions()
	a.classifyDirection()

	return a, nil
}

// buildSuggestions keeps only unambiguous single-header matches and scores
// confidence over the three fields every import needs.
func (a *Analysis) buildSuggestions() {
	a.Suggestions = make(map[string]string)

	single := func(field string, candidates []string) bool {
		switch len(candidates) {
		case 0:
			a.Warnings = append(a.Warnings, fmt.Sprintf("no %s column detected", field))
			return false
		case 1:
			a.Suggestions[field] = candidates[0]
			return true
		default:
			a.Warnings = append(a.Warnings, fmt.Sprintf("ambiguous %s column: %s", field, strings.Join(candidates, ", ")))
			return false
		}
	}

	matched := 0
	if single(FieldDate, a.Matches.DateColumns) {
		matched++
	}
	if single(FieldAmount, a.Matches.AmountColumns) {
		matched++
	}
	if single(FieldDescription, a.Matches.DescriptionColumns) {
		matched++
	}
	a.Confidence = matched * 100 / 3

	// Optional fields only suggest when unambiguous; silence otherwise.
	if len(a.Matches.DirectionColumns) == 1 {
		a.Suggestions[FieldDirection] = a.Matches.DirectionColumns[0]
	}
	if len(a.Matches.BalanceColumns) == 1 {
		a.Suggestions[FieldBalance] = a.Matches.BalanceColumns[0]
	}
}

// classifyDirection samples the first direction candidate, in header order.
func (a *Analysis) classifyDirection() {
	if len(a.Matches.DirectionColumns) == 0 {
		return
	}
	column := a.Matches.DirectionColumns[0]
	idx := headerIndex(a.Headers, column)
	if idx < 0 {
		return
	}

	values := make([]string, 0, len(a.SampleRows))
	for _, row := range a.SampleRows {
		if idx < len(row) {
			values = append(values, row[idx])
		}
	}
	a.Direction = ClassifyDirection(column, values)
}

func headerIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

// findHeaderRow locates the header row and its delimiter, skipping metadata
// lines (account numbers, statement periods) that banks put above the table.
func findHeaderRow(lines []string) (rune, int, error) {
	bestIndex := -1
	bestDelimiter := rune(0)
	bestScore := 0

	fallbackIndex := -1
	fallbackDelimiter := rune(0)
	fallbackCount := 0

	for i, line := range lines {
		if i > 20 { // headers never hide deeper than this
			break
		}
		line = cleanLine(line)
		if line == "" {
			continue
		}

		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue
		}

		hits := signalHits(line)
		if hits > 0 {
			// Real headers have many columns and several field signals;
			// metadata lines rarely have either.
			score := count*10 + hits
			if score > bestScore {
				bestScore = score
				bestDelimiter = delimiter
				bestIndex = i
			}
		} else if count > fallbackCount {
			fallbackCount = count
			fallbackDelimiter = delimiter
			fallbackIndex = i
		}
	}

	if bestIndex >= 0 {
		return bestDelimiter, bestIndex, nil
	}
	if fallbackCount >= 2 {
		return fallbackDelimiter, fallbackIndex, nil
	}
	return 0, 0, ErrNoHeadersFound
}

func cleanLine(line string) string {
	line = strings.TrimRight(line, "\r")
	line = strings.TrimPrefix(line, "\uFEFF")
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

// readSampleRows returns up to maxSampleRows data rows after the header.
func readSampleRows(data []byte, delimiter rune, startLine int) [][]string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	lineNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if lineNum >= startLine {
			rows = append(rows, record)
			if len(rows) >= maxSampleRows {
				break
			}
		}
		lineNum++
	}
	return rows
}

// normalizeBytes strips a UTF-8 BOM and transcodes Latin-1 exports, which
// some banks still produce.
func normalizeBytes(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		data = data[3:]
	}
	if utf8.Valid(data) {
		return data
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return []byte(string(runes))
}
