// Package repository provides data access for imported transactions and
// their categories.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType carries a transaction's direction. Amounts themselves are
// always non-negative; the sign lives here and nowhere else.
type TransactionType string

const (
	TypeDebit  TransactionType = "debit"
	TypeCredit TransactionType = "credit"
)

// SourceCSVImport marks transactions created by the import pipeline.
const SourceCSVImport = "csv_import"

// CanonicalTransaction is a normalized, deduplicated financial record. Never
// mutated after creation by this package.
type CanonicalTransaction struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	BankAccountID uuid.UUID
	Date          time.Time // UTC midnight
	Description   string
	Amount        decimal.Decimal // ≥ 0, 2-decimal precision
	Currency      *string         // 3-letter code, nil when absent
	Type          TransactionType
	CategoryID    *uuid.UUID
	SourceRow     map[string]string // original raw row, by header
	Source        string
}

// Category is a user-scoped spending category.
type Category struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Name   string
}

// CategoryDecision instructs the importer how to resolve one previously
// unseen raw category name: reuse an existing category, create a new one, or
// (both zero) leave the row uncategorized.
type CategoryDecision struct {
	TargetID *uuid.UUID
	Create   bool
	NewName  string // optional rename when Create is set; raw name otherwise
}

// ImportJob tracks one import run.
type ImportJob struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	AccountID    uuid.UUID
	Status       string // "running", "succeeded", "failed", "aborted"
	RowsTotal    int
	RowsImported int
	RowsFailed   int
	ErrorMessage *string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// CategoryStore is the category lookup/creation collaborator.
type CategoryStore interface {
	ListCategories(ctx context.Context, userID uuid.UUID) ([]Category, error)
	CreateCategory(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, error)
}

// TransactionStore is the duplicate-lookup and persistence collaborator.
// BulkInsertTransactions is a single all-or-nothing operation.
type TransactionStore interface {
	DuplicateExists(ctx context.Context, userID, accountID uuid.UUID, date time.Time, amount decimal.Decimal, description string) (bool, error)
	BulkInsertTransactions(ctx context.Context, txs []*CanonicalTransaction) ([]uuid.UUID, error)
}

// ImportRepository bundles everything the import service needs.
type ImportRepository interface {
	CategoryStore
	TransactionStore

	CreateImportJob(ctx context.Context, job *ImportJob) error
	FinishImportJob(ctx context.Context, id uuid.UUID, status string, rowsImported, rowsFailed int, errorMessage *string) error
}
