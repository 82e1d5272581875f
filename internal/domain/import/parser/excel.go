// Package parser adapts non-CSV upload formats into the CSV byte stream the
// rest of the import pipeline consumes.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoSheet is returned when a workbook has no sheets at all.
var ErrNoSheet = errors.New("workbook has no sheets")

// xlsxMagic is the ZIP local-file-header signature every XLSX starts with.
var xlsxMagic = []byte{0x50, 0x4b, 0x03, 0x04}

// IsXLSX reports whether the bytes look like an XLSX workbook.
func IsXLSX(data []byte) bool {
	return bytes.HasPrefix(data, xlsxMagic)
}

// ConvertXLSX renders the workbook's transaction sheet as CSV bytes, so XLSX
// uploads flow through the same analysis and import path as CSV files. Cell
// values come back formatted the way the sheet displays them, which is what
// the downstream parsing expects from a bank export.
func ConvertXLSX(data []byte) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := findTransactionSheet(f)
	if sheet == "" {
		return nil, ErrNoSheet
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush rows: %w", err)
	}
	return buf.Bytes(), nil
}

// findTransactionSheet prefers sheets whose names suggest statement data and
// falls back to the first sheet.
func findTransactionSheet(f *excelize.File) string {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ""
	}

	preferredNames := []string{
		"transactions", "movimentos", "extrato",
		"statement", "data", "sheet1",
	}
	for _, preferred := range preferredNames {
		for _, sheet := range sheets {
			if strings.EqualFold(sheet, preferred) {
				return sheet
			}
		}
	}
	return sheets[0]
}
