package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DB is the subset of pgxpool.Pool this repository needs. Satisfied by
// *pgxpool.Pool in production and pgxmock in tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresImportRepository implements ImportRepository using PostgreSQL.
type PostgresImportRepository struct {
	db DB
}

// NewPostgresImportRepository creates a new PostgreSQL import repository.
func NewPostgresImportRepository(db DB) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

// ListCategories retrieves all categories for a user.
func (r *PostgresImportRepository) ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error) {
	query := `
		SELECT id, user_id, name
		FROM categories
		WHERE user_id = $1
		ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a new category and returns its ID.
func (r *PostgresImportRepository) CreateCategory(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, error) {
	query := `
		INSERT INTO categories (id, user_id, name)
		VALUES ($1, $2, $3)
		RETURNING id`

	id := uuid.New()
	if err := r.db.QueryRow(ctx, query, id, userID, name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create category: %w", err)
	}
	return id, nil
}

// DuplicateExists reports whether a transaction with the same account, date,
// amount, and description is already stored.
func (r *PostgresImportRepository) DuplicateExists(ctx context.Context, userID, accountID uuid.UUID, date time.Time, amount decimal.Decimal, description string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE user_id = $1 AND bank_account_id = $2
			  AND date = $3 AND amount = $4 AND description = $5
		)`

	var exists bool
	err := r.db.QueryRow(ctx, query, userID, accountID, date, amount, description).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return exists, nil
}

// BulkInsertTransactions inserts a batch inside one database transaction, so
// the batch lands fully or not at all.
func (r *PostgresImportRepository) BulkInsertTransactions(ctx context.Context, txs []*CanonicalTransaction) ([]uuid.UUID, error) {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	query := `
		INSERT INTO transactions (id, user_id, bank_account_id, date, description, amount, currency, type, category_id, source_row, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ids := make([]uuid.UUID, 0, len(txs))
	for _, t := range txs {
		sourceRow, err := json.Marshal(t.SourceRow)
		if err != nil {
			return nil, fmt.Errorf("failed to encode source row: %w", err)
		}
		_, err = dbTx.Exec(ctx, query,
			t.ID,
			t.UserID,
			t.BankAccountID,
			t.Date,
			t.Description,
			t.Amount,
			t.Currency,
			t.Type,
			t.CategoryID,
			sourceRow,
			t.Source,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transaction: %w", err)
		}
		ids = append(ids, t.ID)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return ids, nil
}

// CreateImportJob records the start of an import run.
func (r *PostgresImportRepository) CreateImportJob(ctx context.Context, job *ImportJob) error {
	query := `
		INSERT INTO import_jobs (id, user_id, bank_account_id, status, rows_total, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.AccountID,
		job.Status,
		job.RowsTotal,
		job.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

// FinishImportJob records the terminal state of an import run.
func (r *PostgresImportRepository) FinishImportJob(ctx context.Context, id uuid.UUID, status string, rowsImported, rowsFailed int, errorMessage *string) error {
	query := `
		UPDATE import_jobs
		SET status = $2, rows_imported = $3, rows_failed = $4, error_message = $5, finished_at = $6
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, rowsImported, rowsFailed, errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to finish import job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("import job %s not found", id)
	}
	return nil
}
