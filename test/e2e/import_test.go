// Package e2etest exercises the full import pipeline — file analysis, mapping
// resolution, normalization, and persistence — over realistic bank exports.
package e2etest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/fstrauf/txapp/internal/domain/import/mapping"
	"github.com/fstrauf/txapp/internal/domain/import/parser"
	"github.com/fstrauf/txapp/internal/domain/import/repository"
	"github.com/fstrauf/txapp/internal/domain/import/service"
	"github.com/fstrauf/txapp/internal/domain/import/sniffer"
)

// germanStatement mimics a German bank export: metadata lines above the
// table, semicolon delimiter, day-first dates, comma decimal separator.
const germanStatement = "GLS Bank Kontoauszug\n" +
	"Konto 1234567890, Zeitraum 01.06.2023 - 30.06.2023\n" +
	"Datum;Verwendungszweck;Betrag;Saldo\n" +
	"05.06.2023;REWE SAGT DANKE 4411;-54,30;1.445,70\n" +
	"07.06.2023;SPOTIFY AB 12345;-9,99;1.435,71\n" +
	"12.06.2023;GEHALT JUNI ACME GMBH;2.500,00;3.935,71\n"

// directionStatement mimics an English export where every amount is positive
// and a separate column carries the direction.
const directionStatement = "Date,Description,Amount,Type,Balance\n" +
	"2023-06-01,Coffee Shop,4.50,Debit,995.50\n" +
	"2023-06-02,Salary,2000.00,Credit,2995.50\n" +
	"2023-06-03,Grocery Store,54.20,Debit,2941.30\n"

type pipelineRepo struct {
	inserted []*repository.CanonicalTransaction
	jobs     map[uuid.UUID]*repository.ImportJob
}

func newPipelineRepo() *pipelineRepo {
	return &pipelineRepo{jobs: make(map[uuid.UUID]*repository.ImportJob)}
}

func (p *pipelineRepo) ListCategories(_ context.Context, _ uuid.UUID) ([]repository.Category, error) {
	return nil, nil
}

func (p *pipelineRepo) CreateCategory(_ context.Context, userID uuid.UUID, name string) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (p *pipelineRepo) DuplicateExists(_ context.Context, _, _ uuid.UUID, date time.Time, amount decimal.Decimal, description string) (bool, error) {
	for _, tx := range p.inserted {
		if tx.Date.Equal(date) && tx.Amount.Equal(amount) && tx.Description == description {
			return true, nil
		}
	}
	return false, nil
}

func (p *pipelineRepo) BulkInsertTransactions(_ context.Context, txs []*repository.CanonicalTransaction) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(txs))
	for _, tx := range txs {
		p.inserted = append(p.inserted, tx)
		ids = append(ids, tx.ID)
	}
	return ids, nil
}

func (p *pipelineRepo) CreateImportJob(_ context.Context, job *repository.ImportJob) error {
	p.jobs[job.ID] = job
	return nil
}

func (p *pipelineRepo) FinishImportJob(_ context.Context, id uuid.UUID, status string, rowsImported, rowsFailed int, errorMessage *string) error {
	job, ok := p.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	job.Status = status
	job.RowsImported = rowsImported
	job.RowsFailed = rowsFailed
	job.ErrorMessage = errorMessage
	return nil
}

func newPipeline(repo *pipelineRepo) *service.ImportService {
	return service.NewImportService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// runImport drives the same flow a client does: analyze the file, resolve the
// mapping with the given overrides, then import.
func runImport(t *testing.T, svc *service.ImportService, userID, accountID uuid.UUID, data []byte, o mapping.Overrides) *service.ImportResult {
	t.Helper()
	ctx := context.Background()

	analysis, err := svc.AnalyzeFile(ctx, data)
	require.NoError(t, err)

	m, err := mapping.Resolve(analysis, o)
	require.NoError(t, err)

	result, err := svc.Import(ctx, service.ImportRequest{
		UserID:    userID,
		AccountID: accountID,
		FileData:  data,
		Mapping:   m,
	})
	require.NoError(t, err)
	return result
}

func TestGermanStatementImport(t *testing.T) {
	data := []byte(germanStatement)

	t.Run("analysis detects structure", func(t *testing.T) {
		analysis, err := sniffer.Analyze(data)
		require.NoError(t, err)

		assert.Equal(t, ';', analysis.Delimiter)
		assert.Equal(t, 2, analysis.SkipRows)
		assert.Equal(t, []string{"Datum", "Verwendungszweck", "Betrag", "Saldo"}, analysis.Headers)
		assert.Len(t, analysis.SampleRows, 3)

		// German amount and purpose headers carry no recognizable signal, so
		// those fields stay unassigned and surface as warnings.
		assert.Equal(t, "Datum", analysis.Suggestions[sniffer.FieldDate])
		assert.Equal(t, "Saldo", analysis.Suggestions[sniffer.FieldBalance])
		assert.NotContains(t, analysis.Suggestions, sniffer.FieldAmount)
		assert.NotEmpty(t, analysis.Warnings)
	})

	t.Run("import with manual overrides", func(t *testing.T) {
		repo := newPipelineRepo()
		svc := newPipeline(repo)
		userID := uuid.New()
		accountID := uuid.New()

		result := runImport(t, svc, userID, accountID, data, mapping.Overrides{
			Amount:      "Betrag",
			Description: "Verwendungszweck",
		})

		assert.Equal(t, 3, result.RowsTotal)
		assert.Equal(t, 3, result.InsertedCount)
		assert.Zero(t, result.ErrorCount)
		assert.Zero(t, result.DuplicateCount)

		require.Len(t, repo.inserted, 3)

		rewe := repo.inserted[0]
		assert.Equal(t, time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC), rewe.Date)
		assert.Equal(t, "REWE SAGT DANKE 4411", rewe.Description)
		assert.True(t, rewe.Amount.Equal(decimal.RequireFromString("54.30")), "got %s", rewe.Amount)
		assert.Equal(t, repository.TypeDebit, rewe.Type)

		salary := repo.inserted[2]
		assert.True(t, salary.Amount.Equal(decimal.RequireFromString("2500.00")), "got %s", salary.Amount)
		assert.Equal(t, repository.TypeCredit, salary.Type)

		job := repo.jobs[result.JobID]
		require.NotNil(t, job)
		assert.Equal(t, "succeeded", job.Status)
		assert.Equal(t, 3, job.RowsImported)
	})

	t.Run("re-importing the same file skips every row", func(t *testing.T) {
		repo := newPipelineRepo()
		svc := newPipeline(repo)
		userID := uuid.New()
		accountID := uuid.New()
		overrides := mapping.Overrides{Amount: "Betrag", Description: "Verwendungszweck"}

		first := runImport(t, svc, userID, accountID, data, overrides)
		require.Equal(t, 3, first.InsertedCount)

		second := runImport(t, svc, userID, accountID, data, overrides)
		assert.Zero(t, second.InsertedCount)
		assert.Equal(t, 3, second.DuplicateCount)
		assert.Zero(t, second.ErrorCount)
		assert.Len(t, repo.inserted, 3)
	})
}

func TestDirectionColumnImport(t *testing.T) {
	data := []byte(directionStatement)

	t.Run("analysis classifies the direction column", func(t *testing.T) {
		analysis, err := sniffer.Analyze(data)
		require.NoError(t, err)

		assert.Equal(t, ',', analysis.Delimiter)
		assert.Zero(t, analysis.SkipRows)
		assert.Equal(t, 100, analysis.Confidence)

		require.NotNil(t, analysis.Direction)
		assert.Equal(t, "Type", analysis.Direction.Column)
		assert.Equal(t, sniffer.DirectionDebitCredit, analysis.Direction.Format)
	})

	t.Run("sign column overrides the amount sign", func(t *testing.T) {
		repo := newPipelineRepo()
		svc := newPipeline(repo)

		result := runImport(t, svc, uuid.New(), uuid.New(), data, mapping.Overrides{
			AmountFormat: mapping.AmountSignColumn,
			SignColumn:   "Type",
		})

		assert.Equal(t, 3, result.InsertedCount)
		require.Len(t, repo.inserted, 3)

		assert.Equal(t, repository.TypeDebit, repo.inserted[0].Type)
		assert.Equal(t, repository.TypeCredit, repo.inserted[1].Type)
		assert.Equal(t, repository.TypeDebit, repo.inserted[2].Type)
		assert.True(t, repo.inserted[1].Amount.Equal(decimal.RequireFromString("2000.00")))
	})
}

func TestWorkbookImport(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	rows := [][]any{
		{"Date", "Description", "Amount"},
		{"2023-06-01", "Coffee Shop", "-4.50"},
		{"2023-06-02", "Salary", "2000.00"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	var workbook []byte
	{
		buf, err := f.WriteToBuffer()
		require.NoError(t, err)
		workbook = buf.Bytes()
	}

	require.True(t, parser.IsXLSX(workbook))

	data, err := parser.ConvertXLSX(workbook)
	require.NoError(t, err)

	repo := newPipelineRepo()
	svc := newPipeline(repo)

	result := runImport(t, svc, uuid.New(), uuid.New(), data, mapping.Overrides{})
	assert.Equal(t, 2, result.InsertedCount)
	require.Len(t, repo.inserted, 2)
	assert.Equal(t, repository.TypeDebit, repo.inserted[0].Type)
	assert.Equal(t, repository.TypeCredit, repo.inserted[1].Type)
}
