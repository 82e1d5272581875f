package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fstrauf/txapp/internal/domain/import/repository"
)

// TransactionReader loads the analyzer's input window.
type TransactionReader interface {
	ListTransactions(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]Transaction, error)
}

// PostgresInsightsRepository implements TransactionReader using PostgreSQL.
type PostgresInsightsRepository struct {
	db repository.DB
}

// NewPostgresInsightsRepository creates a new PostgreSQL insights repository.
func NewPostgresInsightsRepository(db repository.DB) *PostgresInsightsRepository {
	return &PostgresInsightsRepository{db: db}
}

// ListTransactions loads a user's transactions in [from, to), joined with
// their category names.
func (r *PostgresInsightsRepository) ListTransactions(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]Transaction, error) {
	query := `
		SELECT t.date, t.description, t.amount, t.type, COALESCE(c.name, '')
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = $1 AND t.date >= $2 AND t.date < $3
		ORDER BY t.date ASC`

	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		var amount decimal.Decimal
		var txType string
		if err := rows.Scan(&tx.Date, &tx.Description, &amount, &txType, &tx.Category); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Amount = amount
		tx.Type = repository.TransactionType(txType)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// ListActiveUserIDs returns users with at least one transaction since the
// cutoff. Used by the nightly cache warmer.
func (r *PostgresInsightsRepository) ListActiveUserIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT user_id
		FROM transactions
		WHERE date >= $1`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
