package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fstrauf/txapp/internal/domain/import/repository"
	importservice "github.com/fstrauf/txapp/internal/domain/import/service"
)

type stubRepo struct {
	inserted []*repository.CanonicalTransaction
}

func (s *stubRepo) ListCategories(_ context.Context, _ uuid.UUID) ([]repository.Category, error) {
	return nil, nil
}

func (s *stubRepo) CreateCategory(_ context.Context, _ uuid.UUID, _ string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s *stubRepo) DuplicateExists(_ context.Context, _, _ uuid.UUID, _ time.Time, _ decimal.Decimal, _ string) (bool, error) {
	return false, nil
}

func (s *stubRepo) BulkInsertTransactions(_ context.Context, txs []*repository.CanonicalTransaction) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(txs))
	for _, tx := range txs {
		s.inserted = append(s.inserted, tx)
		ids = append(ids, tx.ID)
	}
	return ids, nil
}

func (s *stubRepo) CreateImportJob(_ context.Context, _ *repository.ImportJob) error {
	return nil
}

func (s *stubRepo) FinishImportJob(_ context.Context, _ uuid.UUID, _ string, _, _ int, _ *string) error {
	return nil
}

func newTestHandler(repo *stubRepo) *ImportHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewImportHandler(importservice.NewImportService(repo, logger), logger)
}

func postJSON(t *testing.T, h *ImportHandler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	mux.ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeFileSizeCap(t *testing.T) {
	file := []byte("Date,Amount,Description\n2023-06-01,-5.20,STARBUCKS #123\n")

	t.Run("within the configured cap", func(t *testing.T) {
		h := newTestHandler(&stubRepo{})
		rec := postJSON(t, h, "/v1/import/analyze", map[string]any{"fileData": file})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("over the configured cap", func(t *testing.T) {
		h := newTestHandler(&stubRepo{}).WithMaxFileSize(16)
		rec := postJSON(t, h, "/v1/import/analyze", map[string]any{"fileData": file})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestImportDefaultMode(t *testing.T) {
	// One parseable row, one broken date.
	file := []byte("Date,Amount,Description\n" +
		"2023-06-01,-5.20,STARBUCKS #123\n" +
		"not a date,-4.00,COFFEE\n")
	body := map[string]any{
		"userId":    uuid.New(),
		"accountId": uuid.New(),
		"fileData":  file,
	}

	t.Run("atomic by default", func(t *testing.T) {
		repo := &stubRepo{}
		rec := postJSON(t, newTestHandler(repo), "/v1/import", body)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		var resp importResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Zero(t, resp.InsertedCount)
		assert.Equal(t, 1, resp.ErrorCount)
		assert.Empty(t, repo.inserted)
	})

	t.Run("configured best-effort default commits the good rows", func(t *testing.T) {
		repo := &stubRepo{}
		h := newTestHandler(repo).WithDefaultMode(importservice.ModeBestEffort)
		rec := postJSON(t, h, "/v1/import", body)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp importResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.InsertedCount)
		assert.Equal(t, 1, resp.ErrorCount)
		require.Len(t, repo.inserted, 1)
	})
}
