// Package handler exposes the import pipeline over HTTP/JSON.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fstrauf/txapp/internal/domain/import/mapping"
	"github.com/fstrauf/txapp/internal/domain/import/normalizer"
	"github.com/fstrauf/txapp/internal/domain/import/parser"
	"github.com/fstrauf/txapp/internal/domain/import/repository"
	importservice "github.com/fstrauf/txapp/internal/domain/import/service"
	"github.com/fstrauf/txapp/internal/domain/import/sniffer"
	"github.com/fstrauf/txapp/pkg/storage"
)

// maxErrorPreview caps the inline error list in import responses. The full
// list is available through the error-report download.
const maxErrorPreview = 10

// ImportHandler handles import HTTP endpoints.
type ImportHandler struct {
	importSvc   *importservice.ImportService
	archive     storage.Archive
	maxFileSize int64
	defaultMode importservice.Mode
	logger      *slog.Logger
}

// NewImportHandler creates a new import handler.
func NewImportHandler(importSvc *importservice.ImportService, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc:   importSvc,
		maxFileSize: sniffer.MaxFileSize,
		defaultMode: importservice.ModeAtomic,
		logger:      logger,
	}
}

// WithArchive enables archiving of original statement uploads per import job.
func (h *ImportHandler) WithArchive(archive storage.Archive) *ImportHandler {
	h.archive = archive
	return h
}

// WithMaxFileSize lowers the accepted upload size below the analyzer's cap.
func (h *ImportHandler) WithMaxFileSize(limit int64) *ImportHandler {
	if limit > 0 {
		h.maxFileSize = limit
	}
	return h
}

// WithDefaultMode sets the commit mode used when a request names none.
func (h *ImportHandler) WithDefaultMode(mode importservice.Mode) *ImportHandler {
	if mode != "" {
		h.defaultMode = mode
	}
	return h
}

// Register mounts the import routes.
func (h *ImportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/import/analyze", h.AnalyzeFile)
	mux.HandleFunc("POST /v1/import", h.Import)
	mux.HandleFunc("POST /v1/import/categories", h.UnmappedCategories)
	mux.HandleFunc("POST /v1/import/error-report", h.ErrorReport)
}

type analyzeRequest struct {
	FileData []byte `json:"fileData"`
}

type analyzeResponse struct {
	Headers     []string               `json:"headers"`
	SampleRows  [][]string             `json:"sampleRows"`
	Delimiter   string                 `json:"delimiter"`
	SkipRows    int                    `json:"skipRows"`
	Suggestions map[string]string      `json:"suggestions"`
	Confidence  int                    `json:"confidence"`
	Direction   *sniffer.DirectionInfo `json:"direction,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
}

// AnalyzeFile inspects an uploaded file and returns the detected structure
// and mapping suggestions.
func (h *ImportHandler) AnalyzeFile(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	analysis, err := h.analyze(r, req.FileData)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toAnalyzeResponse(analysis))
}

func toAnalyzeResponse(a *sniffer.Analysis) analyzeResponse {
	return analyzeResponse{
		Headers:     a.Headers,
		SampleRows:  a.SampleRows,
		Delimiter:   string(a.Delimiter),
		SkipRows:    a.SkipRows,
		Suggestions: a.Suggestions,
		Confidence:  a.Confidence,
		Direction:   a.Direction,
		Warnings:    a.Warnings,
	}
}

type overridesDTO struct {
	Date         string `json:"date"`
	Amount       string `json:"amount"`
	Description  string `json:"description"`
	Description2 string `json:"description2"`
	Currency     string `json:"currency"`
	Category     string `json:"category"`
	Direction    string `json:"direction"`
	Balance      string `json:"balance"`
	Reference    string `json:"reference"`
	SignColumn   string `json:"signColumn"`
	AmountFormat string `json:"amountFormat"`
	DateFormat   string `json:"dateFormat"`
}

func (o overridesDTO) toOverrides() mapping.Overrides {
	return mapping.Overrides{
		Date:         o.Date,
		Amount:       o.Amount,
		Description:  o.Description,
		Description2: o.Description2,
		Currency:     o.Currency,
		Category:     o.Category,
		Direction:    o.Direction,
		Balance:      o.Balance,
		Reference:    o.Reference,
		SignColumn:   o.SignColumn,
		AmountFormat: mapping.AmountFormat(o.AmountFormat),
		DateFormat:   o.DateFormat,
	}
}

type decisionDTO struct {
	TargetID *uuid.UUID `json:"targetId,omitempty"`
	Create   bool       `json:"create"`
	NewName  string     `json:"newName,omitempty"`
}

type importRequest struct {
	UserID    uuid.UUID              `json:"userId"`
	AccountID uuid.UUID              `json:"accountId"`
	FileName  string                 `json:"fileName,omitempty"`
	FileData  []byte                 `json:"fileData"`
	Overrides overridesDTO           `json:"overrides"`
	Decisions map[string]decisionDTO `json:"decisions,omitempty"`
	Mode      string                 `json:"mode,omitempty"`
}

type rowErrorDTO struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

type importResponse struct {
	JobID          uuid.UUID     `json:"jobId"`
	RowsTotal      int           `json:"rowsTotal"`
	InsertedCount  int           `json:"insertedCount"`
	DuplicateCount int           `json:"duplicateCount"`
	ErrorCount     int           `json:"errorCount"`
	Errors         []rowErrorDTO `json:"errors,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// Import runs one import batch.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil || req.AccountID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "userId and accountId are required")
		return
	}

	fileData, analysis, err := h.analyzeWithData(r, req.FileData)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}

	m, err := mapping.Resolve(analysis, req.Overrides.toOverrides())
	if err != nil {
		var fieldErr *mapping.FieldError
		if errors.As(err, &fieldErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fieldErr.Message,
				"field": fieldErr.Field,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	decisions := make(map[string]repository.CategoryDecision, len(req.Decisions))
	for name, d := range req.Decisions {
		decisions[name] = repository.CategoryDecision{
			TargetID: d.TargetID,
			Create:   d.Create,
			NewName:  d.NewName,
		}
	}

	mode := importservice.Mode(req.Mode)
	if mode == "" {
		mode = h.defaultMode
	}

	result, err := h.importSvc.Import(r.Context(), importservice.ImportRequest{
		UserID:    req.UserID,
		AccountID: req.AccountID,
		FileData:  fileData,
		Mapping:   m,
		Decisions: decisions,
		Mode:      mode,
	})
	if err != nil {
		h.logger.Error("import failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "import failed")
		return
	}

	// Archive the original upload for audit purposes. Failures here do not
	// affect the committed batch.
	if h.archive != nil && result.InsertedCount > 0 {
		name := req.FileName
		if name == "" {
			name = "statement.csv"
		}
		if _, err := h.archive.SaveStatement(r.Context(), req.UserID, result.JobID, name, req.FileData); err != nil {
			h.logger.Warn("failed to archive statement", slog.Any("error", err), slog.String("jobId", result.JobID.String()))
			result.Warnings = append(result.Warnings, "original statement could not be archived")
		}
	}

	resp := importResponse{
		JobID:          result.JobID,
		RowsTotal:      result.RowsTotal,
		InsertedCount:  result.InsertedCount,
		DuplicateCount: result.DuplicateCount,
		ErrorCount:     result.ErrorCount,
		Warnings:       result.Warnings,
	}
	for i, e := range result.Errors {
		if i == maxErrorPreview {
			break
		}
		resp.Errors = append(resp.Errors, rowErrorDTO{Row: e.RowIndex, Field: e.Field, Message: e.Message})
	}

	status := http.StatusOK
	if result.ErrorCount > 0 && result.InsertedCount == 0 {
		status = http.StatusUnprocessableEntity
	}
	h.writeJSON(w, status, resp)
}

type categoriesRequest struct {
	UserID    uuid.UUID    `json:"userId"`
	FileData  []byte       `json:"fileData"`
	Overrides overridesDTO `json:"overrides"`
}

type categoriesResponse struct {
	Unmapped    []string            `json:"unmapped"`
	Suggestions map[string][]string `json:"suggestions,omitempty"`
}

// UnmappedCategories lists raw category values that need a decision before
// import, along with fuzzy-matched suggestions from the user's categories.
func (h *ImportHandler) UnmappedCategories(w http.ResponseWriter, r *http.Request) {
	var req categoriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	fileData, analysis, err := h.analyzeWithData(r, req.FileData)
	if err != nil {
		h.writeAnalysisError(w, err)
		return
	}

	m, err := mapping.Resolve(analysis, req.Overrides.toOverrides())
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	unmapped, err := h.importSvc.UnmappedCategories(r.Context(), req.UserID, fileData, m)
	if err != nil {
		h.logger.Error("failed to scan categories", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "failed to scan categories")
		return
	}

	resp := categoriesResponse{Unmapped: unmapped}
	if len(unmapped) > 0 {
		suggestions, err := h.importSvc.SuggestDecisions(r.Context(), req.UserID, unmapped)
		if err != nil {
			h.logger.Error("failed to build suggestions", slog.Any("error", err))
		} else {
			resp.Suggestions = suggestions
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type errorReportRequest struct {
	Errors []struct {
		Row     int               `json:"row"`
		Field   string            `json:"field"`
		Message string            `json:"message"`
		RawRow  map[string]string `json:"rawRow,omitempty"`
	} `json:"errors"`
}

// ErrorReport renders a batch's error list as a downloadable CSV.
func (h *ImportHandler) ErrorReport(w http.ResponseWriter, r *http.Request) {
	var req errorReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rowErrors := make([]*normalizer.RowError, 0, len(req.Errors))
	for _, e := range req.Errors {
		rowErrors = append(rowErrors, &normalizer.RowError{
			RowIndex: e.Row,
			Field:    e.Field,
			Message:  e.Message,
			RawRow:   e.RawRow,
		})
	}

	report, err := importservice.ErrorReportCSV(rowErrors)
	if err != nil {
		h.logger.Error("failed to render error report", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "failed to render error report")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="import-errors.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(report)
}

// analyze converts XLSX uploads to CSV bytes and runs the structure analyzer.
func (h *ImportHandler) analyze(r *http.Request, fileData []byte) (*sniffer.Analysis, error) {
	_, analysis, err := h.analyzeWithData(r, fileData)
	return analysis, err
}

func (h *ImportHandler) analyzeWithData(r *http.Request, fileData []byte) ([]byte, *sniffer.Analysis, error) {
	if int64(len(fileData)) > h.maxFileSize {
		return nil, nil, sniffer.ErrFileTooLarge
	}
	if parser.IsXLSX(fileData) {
		converted, err := parser.ConvertXLSX(fileData)
		if err != nil {
			return nil, nil, err
		}
		fileData = converted
	}
	analysis, err := h.importSvc.AnalyzeFile(r.Context(), fileData)
	if err != nil {
		return nil, nil, err
	}
	return fileData, analysis, nil
}

func (h *ImportHandler) writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sniffer.ErrEmptyFile),
		errors.Is(err, sniffer.ErrNoDataRows),
		errors.Is(err, sniffer.ErrNoHeadersFound),
		errors.Is(err, parser.ErrNoSheet):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, sniffer.ErrFileTooLarge):
		h.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		h.logger.Error("file analysis failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "file analysis failed")
	}
}

func (h *ImportHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *ImportHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
