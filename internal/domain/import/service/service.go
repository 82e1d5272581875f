// Package service provides the import orchestration logic: file analysis,
// batch normalization, and the commit policy.
package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/fstrauf/txapp/internal/domain/import/mapping"
	"github.com/fstrauf/txapp/internal/domain/import/normalizer"
	"github.com/fstrauf/txapp/internal/domain/import/repository"
	"github.com/fstrauf/txapp/internal/domain/import/sniffer"
	"github.com/fstrauf/txapp/pkg/metrics"
)

// Mode selects the commit policy for a batch.
type Mode string

const (
	// ModeAtomic is validate-all-then-commit-all: one hard row error voids
	// the whole batch. This is the default and matches what users expect
	// from "import my statement" — either everything landed or nothing did.
	// The cost is real: a single malformed row blocks an otherwise clean
	// batch of thousands.
	ModeAtomic Mode = "atomic"

	// ModeBestEffort commits every clean row and reports the failures. It is
	// a separate, explicit contract — never a silent fallback.
	ModeBestEffort Mode = "best_effort"
)

// ErrNoMapping is returned when Import is called without a resolved mapping.
var ErrNoMapping = errors.New("no column mapping resolved")

// ImportRequest describes one import batch.
type ImportRequest struct {
	UserID    uuid.UUID
	AccountID uuid.UUID
	FileData  []byte
	Mapping   *mapping.ColumnMapping
	Decisions map[string]repository.CategoryDecision
	Mode      Mode
}

// ImportResult reports one batch. Per the commit policy, InsertedCount and
// Errors are mutually exclusive in atomic mode: any hard error means nothing
// was inserted.
type ImportResult struct {
	JobID          uuid.UUID
	RowsTotal      int
	InsertedCount  int
	InsertedIDs    []uuid.UUID
	DuplicateCount int
	ErrorCount     int
	Errors         []*normalizer.RowError
	Warnings       []string
}

// CacheInvalidator drops a user's derived caches after new transactions land.
type CacheInvalidator interface {
	Invalidate(userID uuid.UUID)
}

// ImportService orchestrates file analysis and import batches.
type ImportService struct {
	repo        repository.ImportRepository
	invalidator CacheInvalidator
	logger      *slog.Logger
}

// NewImportService creates a new import service.
func NewImportService(repo repository.ImportRepository, logger *slog.Logger) *ImportService {
	return &ImportService{repo: repo, logger: logger}
}

// WithInvalidator registers a cache to drop after each committed batch.
func (s *ImportService) WithInvalidator(inv CacheInvalidator) *ImportService {
	s.invalidator = inv
	return s
}

// AnalyzeFile inspects uploaded bytes and returns structure, mapping
// suggestions, and confidence.
func (s *ImportService) AnalyzeFile(_ context.Context, fileData []byte) (*sniffer.Analysis, error) {
	analysis, err := sniffer.Analyze(fileData)
	if err != nil {
		return nil, fmt.Errorf("analyze file: %w", err)
	}
	metrics.FilesAnalyzed.Inc()
	return analysis, nil
}

// Import runs one batch: rows are normalized sequentially in source order
// (category-creation side effects of earlier rows feed later ones), then
// committed per the requested mode.
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if req.Mapping == nil {
		return nil, ErrNoMapping
	}
	if req.Mode == "" {
		req.Mode = ModeAtomic
	}
	started := time.Now()
	defer func() { metrics.ImportDuration.Observe(time.Since(started).Seconds()) }()

	rows, err := readRows(req.FileData, req.Mapping)
	if err != nil {
		return nil, err
	}

	job := &repository.ImportJob{
		ID:        uuid.New(),
		UserID:    req.UserID,
		AccountID: req.AccountID,
		Status:    "running",
		RowsTotal: len(rows),
		StartedAt: started,
	}
	if err := s.repo.CreateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create import job: %w", err)
	}

	norm, err := normalizer.NewRowNormalizer(ctx, req.UserID, req.AccountID, req.Mapping, s.repo, s.repo, req.Decisions)
	if err != nil {
		s.finishJob(ctx, job.ID, "failed", 0, 0, err)
		return nil, err
	}

	result := &ImportResult{JobID: job.ID, RowsTotal: len(rows)}
	var prepared []*repository.CanonicalTransaction

	for i, row := range rows {
		rowResult, rowErr := norm.Normalize(ctx, i, row)
		if rowErr != nil {
			result.Errors = append(result.Errors, rowErr)
			continue
		}
		if rowResult.Duplicate {
			result.DuplicateCount++
			metrics.DuplicatesSkipped.Inc()
			continue
		}
		result.Warnings = append(result.Warnings, rowResult.Warnings...)
		prepared = append(prepared, rowResult.Tx)
	}
	result.ErrorCount = len(result.Errors)

	if req.Mode == ModeAtomic && result.ErrorCount > 0 {
		metrics.BatchesAborted.Inc()
		metrics.RowsFailed.Add(float64(result.ErrorCount))
		s.finishJob(ctx, job.ID, "aborted", 0, result.ErrorCount, nil)
		s.logger.Warn("import batch aborted",
			slog.String("jobID", job.ID.String()),
			slog.Int("errors", result.ErrorCount),
			slog.Int("rows", result.RowsTotal),
		)
		return result, nil
	}

	if len(prepared) > 0 {
		ids, err := s.repo.BulkInsertTransactions(ctx, prepared)
		if err != nil {
			s.finishJob(ctx, job.ID, "failed", 0, result.ErrorCount, err)
			return nil, fmt.Errorf("insert transactions: %w", err)
		}
		result.InsertedIDs = ids
		result.InsertedCount = len(ids)
		if s.invalidator != nil {
			s.invalidator.Invalidate(req.UserID)
		}
	}

	metrics.RowsImported.Add(float64(result.InsertedCount))
	metrics.RowsFailed.Add(float64(result.ErrorCount))
	s.finishJob(ctx, job.ID, "succeeded", result.InsertedCount, result.ErrorCount, nil)

	s.logger.Info("import batch finished",
		slog.String("jobID", job.ID.String()),
		slog.Int("inserted", result.InsertedCount),
		slog.Int("duplicates", result.DuplicateCount),
		slog.Int("errors", result.ErrorCount),
	)
	return result, nil
}

func (s *ImportService) finishJob(ctx context.Context, id uuid.UUID, status string, imported, failed int, cause error) {
	var msg *string
	if cause != nil {
		m := cause.Error()
		msg = &m
	}
	if err := s.repo.FinishImportJob(ctx, id, status, imported, failed, msg); err != nil {
		s.logger.Warn("failed to finish import job", slog.String("jobID", id.String()), slog.Any("error", err))
	}
}

// UnmappedCategories scans a file for distinct raw category values that match
// none of the user's existing categories, so the caller can collect
// CategoryDecisions before importing.
func (s *ImportService) UnmappedCategories(ctx context.Context, userID uuid.UUID, fileData []byte, m *mapping.ColumnMapping) ([]string, error) {
	if m == nil || m.Category == "" {
		return nil, nil
	}
	existing, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[strings.ToLower(c.Name)] = true
	}

	rows, err := readRows(fileData, m)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var unmapped []string
	for _, row := range rows {
		raw := strings.TrimSpace(row[m.Category])
		if raw == "" {
			continue
		}
		key := strings.ToLower(raw)
		if known[key] || seen[key] {
			continue
		}
		seen[key] = true
		unmapped = append(unmapped, raw)
	}
	sort.Strings(unmapped)
	return unmapped, nil
}

// SuggestDecisions ranks each unmapped raw category name against the user's
// existing category names by fuzzy similarity. Informational only: actual
// resolution during import stays exact case-insensitive equality.
func (s *ImportService) SuggestDecisions(ctx context.Context, userID uuid.UUID, rawNames []string) (map[string][]string, error) {
	existing, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	names := make([]string, 0, len(existing))
	for _, c := range existing {
		names = append(names, c.Name)
	}

	const maxSuggestions = 3
	suggestions := make(map[string][]string, len(rawNames))
	for _, raw := range rawNames {
		type scored struct {
			name     string
			distance int
		}
		var matches []scored
		rawStem := categoryStem(raw)
		for _, name := range names {
			d := symmetricRank(raw, name)
			if sd := symmetricRank(rawStem, categoryStem(name)); sd != -1 && (d == -1 || sd < d) {
				d = sd
			}
			if d == -1 {
				continue
			}
			matches = append(matches, scored{name: name, distance: d})
		}
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].distance < matches[j].distance })

		var top []string
		for _, m := range matches {
			top = append(top, m.name)
			if len(top) == maxSuggestions {
				break
			}
		}
		suggestions[raw] = top
	}
	return suggestions, nil
}

// symmetricRank ranks in both directions, since either the raw name or the
// category may be the longer string. -1 means no match.
func symmetricRank(a, b string) int {
	d := fuzzy.RankMatchNormalizedFold(a, b)
	if rev := fuzzy.RankMatchNormalizedFold(b, a); rev != -1 && (d == -1 || rev < d) {
		d = rev
	}
	return d
}

// categoryStem collapses trivial English plurals so "grocery" can still find
// "Groceries".
func categoryStem(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasSuffix(s, "ies"):
		return strings.TrimSuffix(s, "ies") + "y"
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}

// errorReportRow is the CSV shape of one hard row error.
type errorReportRow struct {
	Row     int    `csv:"row"`
	Field   string `csv:"field"`
	Message string `csv:"message"`
	RawData string `csv:"raw_data"`
}

// ErrorReportCSV renders a batch's hard-error list as a downloadable CSV so
// users can fix the offending rows at the source.
func ErrorReportCSV(rowErrors []*normalizer.RowError) ([]byte, error) {
	report := make([]*errorReportRow, 0, len(rowErrors))
	for _, e := range rowErrors {
		report = append(report, &errorReportRow{
			Row:     e.RowIndex,
			Field:   e.Field,
			Message: e.Message,
			RawData: flattenRow(e.RawRow),
		})
	}
	return gocsv.MarshalBytes(&report)
}

func flattenRow(row map[string]string) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+row[k])
	}
	return strings.Join(parts, "; ")
}

// readRows materializes the file into header-keyed rows using the mapping's
// delimiter and skip count. Short records are padded with empty values so a
// missing trailing field reads as empty rather than out-of-bounds.
func readRows(fileData []byte, m *mapping.ColumnMapping) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(fileData))
	if m.Delimiter != 0 {
		reader.Comma = m.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	for i := 0; i < m.SkipRows; i++ {
		if _, err := reader.Read(); err != nil {
			return nil, fmt.Errorf("skip metadata line %d: %w", i, err)
		}
	}

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header row: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read data row %d: %w", len(rows), err)
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = record[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
