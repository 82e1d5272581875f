package service

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

	"github.com/fstrauf/txapp/internal/domain/import/mapping"
	"github.com/fstrauf/txapp/internal/domain/import/normalizer"
	"github.com/fstrauf/txapp/internal/domain/import/repository"
)

type fakeRepo struct {
	categories []repository.Category
	duplicates map[string]bool
	inserted   []*repository.CanonicalTransaction
	jobs       map[uuid.UUID]*repository.ImportJob

	insertErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		duplicates: make(map[string]bool),
		jobs:       make(map[uuid.UUID]*repository.ImportJob),
	}
}

func (f *fakeRepo) ListCategories(_ context.Context, _ uuid.UUID) ([]repository.Category, error) {
	return f.categories, nil
}

func (f *fakeRepo) CreateCategory(_ context.Context, userID uuid.UUID, name string) (uuid.UUID, error) {
	id := uuid.New()
	f.categories = append(f.categories, repository.Category{ID: id, UserID: userID, Name: name})
	return id, nil
}

func dupKey(date time.Time, amount decimal.Decimal, description string) string {
	return fmt.Sprintf("%s|%s|%s", date.Format("2006-01-02"), amount.String(), description)
}

func (f *fakeRepo) DuplicateExists(_ context.Context, _, _ uuid.UUID, date time.Time, amount decimal.Decimal, description string) (bool, error) {
	return f.duplicates[dupKey(date, amount, description)], nil
}

func (f *fakeRepo) BulkInsertTransactions(_ context.Context, txs []*repository.CanonicalTransaction) ([]uuid.UUID, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	ids := make([]uuid.UUID, 0, len(txs))
	for _, tx := range txs {
		f.inserted = append(f.inserted, tx)
		ids = append(ids, tx.ID)
	}
	return ids, nil
}

func (f *fakeRepo) CreateImportJob(_ context.Context, job *repository.ImportJob) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeRepo) FinishImportJob(_ context.Context, id uuid.UUID, status string, rowsImported, rowsFailed int, errorMessage *string) error {
	job, ok := f.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	job.Status = status
	job.RowsImported = rowsImported
	job.RowsFailed = rowsFailed
	job.ErrorMessage = errorMessage
	now := time.Now()
	job.FinishedAt = &now
	return nil
}

func testService(repo *fakeRepo) *ImportService {
	return NewImportService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeInvalidator struct {
	calls []uuid.UUID
}

func (f *fakeInvalidator) Invalidate(userID uuid.UUID) {
	f.calls = append(f.calls, userID)
}

func simpleMapping() *mapping.ColumnMapping {
	return &mapping.ColumnMapping{
		Date:         "Date",
		Amount:       "Amount",
		Description:  "Description",
		AmountFormat: mapping.AmountStandard,
		Delimiter:    ',',
	}
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	accountID := uuid.New()

	t.Run("clean batch inserts every row", func(t *testing.T) {
		file := []byte("Date,Amount,Description\n" +
			"2023-06-01,-5.20,STARBUCKS #123\n" +
			"2023-06-08,-5.20,STARBUCKS #123\n" +
			"2023-06-15,-5.20,STARBUCKS #123\n")

		repo := newFakeRepo()
		result, err := testService(repo).Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID,
			FileData: file, Mapping: simpleMapping(),
		})
		require.NoError(t, err)

		assert.Equal(t, 3, result.RowsTotal)
		assert.Equal(t, 3, result.InsertedCount)
		assert.Empty(t, result.Errors)
		require.Len(t, repo.inserted, 3)
		for _, tx := range repo.inserted {
			assert.Equal(t, repository.TypeDebit, tx.Type)
			assert.True(t, tx.Amount.Equal(decimal.RequireFromString("5.2")))
			assert.Equal(t, "STARBUCKS #123", tx.Description)
		}

		job := repo.jobs[result.JobID]
		require.NotNil(t, job)
		assert.Equal(t, "succeeded", job.Status)
		assert.Equal(t, 3, job.RowsImported)
	})

	t.Run("one bad row aborts the whole batch", func(t *testing.T) {
		file := []byte("Date,Amount,Description\n" +
			"2023-06-01,-5.20,STARBUCKS #123\n" +
			"not-a-date,-9.99,BROKEN ROW\n" +
			"2023-06-15,-5.20,STARBUCKS #123\n")

		repo := newFakeRepo()
		result, err := testService(repo).Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID,
			FileData: file, Mapping: simpleMapping(),
		})
		require.NoError(t, err)

		assert.Equal(t, 0, result.InsertedCount)
		assert.Empty(t, repo.inserted)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 1, result.Errors[0].RowIndex)
		assert.Equal(t, "date", result.Errors[0].Field)

		job := repo.jobs[result.JobID]
		require.NotNil(t, job)
		assert.Equal(t, "aborted", job.Status)
	})

	t.Run("best effort commits clean rows past the bad one", func(t *testing.T) {
		file := []byte("Date,Amount,Description\n" +
			"2023-06-01,-5.20,STARBUCKS #123\n" +
			"not-a-date,-9.99,BROKEN ROW\n" +
			"2023-06-15,-5.20,STARBUCKS #123\n")

		repo := newFakeRepo()
		result, err := testService(repo).Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID,
			FileData: file, Mapping: simpleMapping(),
			Mode: ModeBestEffort,
		})
		require.NoError(t, err)

		assert.Equal(t, 2, result.InsertedCount)
		assert.Equal(t, 1, result.ErrorCount)
		job := repo.jobs[result.JobID]
		assert.Equal(t, "succeeded", job.Status)
		assert.Equal(t, 1, job.RowsFailed)
	})

	t.Run("duplicates are skipped without erroring", func(t *testing.T) {
		file := []byte("Date,Amount,Description\n" +
			"2023-06-01,-5.20,STARBUCKS #123\n" +
			"2023-06-08,-12.00,LUNCH\n")

		repo := newFakeRepo()
		date := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
		repo.duplicates[dupKey(date, decimal.RequireFromString("5.2"), "STARBUCKS #123")] = true

		result, err := testService(repo).Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID,
			FileData: file, Mapping: simpleMapping(),
		})
		require.NoError(t, err)

		assert.Equal(t, 1, result.InsertedCount)
		assert.Equal(t, 1, result.DuplicateCount)
		assert.Empty(t, result.Errors)
	})

	t.Run("repeated row within one batch inserts once", func(t *testing.T) {
		file := []byte("Date,Amount,Description\n" +
			"2023-06-01,-5.20,STARBUCKS #123\n" +
			"2023-06-01,-5.20,STARBUCKS #123\n" +
			"2023-06-08,-12.00,LUNCH\n")

		repo := newFakeRepo()
		result, err := testService(repo).Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID,
			FileData: file, Mapping: simpleMapping(),
		})
		require.NoError(t, err)

		assert.Equal(t, 2, result.InsertedCount)
		assert.Equal(t, 1, result.DuplicateCount)
		assert.Empty(t, result.Errors)
		require.Len(t, repo.inserted, 2)
	})

	t.Run("respects delimiter and skip rows", func(t *testing.T) {
		file := []byte("Account statement 2023\n" +
			"Exported 2023-07-01\n" +
			"Date;Amount;Description\n" +
			"01.06.2023;-5,20;KAFFEE HAUS\n")

		m := simpleMapping()
		m.Delimiter = ';'
		m.SkipRows = 2

		repo := newFakeRepo()
		result, err := testService(repo).Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID,
			FileData: file, Mapping: m,
		})
		require.NoError(t, err)
		require.Equal(t, 1, result.InsertedCount)
		assert.True(t, repo.inserted[0].Amount.Equal(decimal.RequireFromString("5.2")))
	})

	t.Run("missing mapping is rejected", func(t *testing.T) {
		_, err := testService(newFakeRepo()).Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID, FileData: []byte("a,b\n1,2\n"),
		})
		assert.ErrorIs(t, err, ErrNoMapping)
	})

	t.Run("insert failure marks the job failed", func(t *testing.T) {
		repo := newFakeRepo()
		repo.insertErr = fmt.Errorf("connection reset")

		_, err := testService(repo).Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID,
			FileData: []byte("Date,Amount,Description\n2023-06-01,-5.20,COFFEE\n"),
			Mapping:  simpleMapping(),
		})
		require.Error(t, err)

		require.Len(t, repo.jobs, 1)
		for _, job := range repo.jobs {
			assert.Equal(t, "failed", job.Status)
			require.NotNil(t, job.ErrorMessage)
			assert.Contains(t, *job.ErrorMessage, "connection reset")
		}
	})
}

func TestImportInvalidatesInsightsCache(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	accountID := uuid.New()

	t.Run("committed batch drops the user's cache", func(t *testing.T) {
		file := []byte("Date,Amount,Description\n2023-06-01,-5.20,STARBUCKS #123\n")

		inv := &fakeInvalidator{}
		svc := testService(newFakeRepo()).WithInvalidator(inv)

		result, err := svc.Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID,
			FileData: file, Mapping: simpleMapping(),
		})
		require.NoError(t, err)
		require.Equal(t, 1, result.InsertedCount)
		assert.Equal(t, []uuid.UUID{userID}, inv.calls)
	})

	t.Run("aborted batch leaves the cache alone", func(t *testing.T) {
		file := []byte("Date,Amount,Description\n2023-06-01,-5.20,STARBUCKS #123\nnot a date,-4.00,COFFEE\n")

		inv := &fakeInvalidator{}
		svc := testService(newFakeRepo()).WithInvalidator(inv)

		result, err := svc.Import(ctx, ImportRequest{
			UserID: userID, AccountID: accountID,
			FileData: file, Mapping: simpleMapping(),
		})
		require.NoError(t, err)
		require.Zero(t, result.InsertedCount)
		assert.Empty(t, inv.calls)
	})
}

func TestUnmappedCategories(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	repo := newFakeRepo()
	repo.categories = []repository.Category{
		{ID: uuid.New(), UserID: userID, Name: "Groceries"},
	}

	file := []byte("Date,Amount,Description,Category\n" +
		"2023-06-01,-5.20,COFFEE,Eating Out\n" +
		"2023-06-02,-80.00,SUPERMARKET,groceries\n" +
		"2023-06-03,-15.00,CINEMA,Entertainment\n" +
		"2023-06-04,-5.20,COFFEE,Eating Out\n")

	m := simpleMapping()
	m.Category = "Category"

	unmapped, err := testService(repo).UnmappedCategories(ctx, userID, file, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"Eating Out", "Entertainment"}, unmapped)
}

func TestSuggestDecisions(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	repo := newFakeRepo()
	repo.categories = []repository.Category{
		{ID: uuid.New(), UserID: userID, Name: "Groceries"},
		{ID: uuid.New(), UserID: userID, Name: "Entertainment"},
		{ID: uuid.New(), UserID: userID, Name: "Transport"},
	}

	suggestions, err := testService(repo).SuggestDecisions(ctx, userID, []string{"grocery", "Transportation"})
	require.NoError(t, err)

	// Singular raw name against a plural category, and vice versa.
	require.Contains(t, suggestions, "grocery")
	assert.Contains(t, suggestions["grocery"], "Groceries")
	assert.NotContains(t, suggestions["grocery"], "Entertainment")

	require.Contains(t, suggestions, "Transportation")
	assert.Contains(t, suggestions["Transportation"], "Transport")
}

func TestErrorReportCSV(t *testing.T) {
	report, err := ErrorReportCSV([]*normalizer.RowError{
		{RowIndex: 4, Field: "date", Message: `invalid date "garbage"`, RawRow: map[string]string{"Date": "garbage", "Amount": "-5.20"}},
	})
	require.NoError(t, err)

	out := string(report)
	assert.Contains(t, out, "row,field,message,raw_data")
	assert.Contains(t, out, "4,date")
	assert.Contains(t, out, "Amount=-5.20; Date=garbage")
}

func TestReadRows(t *testing.T) {
	t.Run("pads short records", func(t *testing.T) {
		m := simpleMapping()
		rows, err := readRows([]byte("Date,Amount,Description\n2023-06-01,-5.20\n"), m)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "", rows[0]["Description"])
	})

	t.Run("trims header whitespace", func(t *testing.T) {
		m := simpleMapping()
		rows, err := readRows([]byte("Date , Amount ,Description\n2023-06-01,-5.20,X\n"), m)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "-5.20", rows[0]["Amount"])
	})
}
