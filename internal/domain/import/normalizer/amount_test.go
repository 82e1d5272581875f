package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fstrauf/txapp/internal/domain/import/mapping"
	"github.com/fstrauf/txapp/internal/domain/import/repository"
	"github.com/fstrauf/txapp/internal/domain/import/sniffer"
)

func TestParseAmount(t *testing.T) {
	t.Run("standard format", func(t *testing.T) {
		tests := []struct {
			name   string
			raw    string
			amount string
			txType repository.TransactionType
		}{
			{"negative is a debit", "-4.50", "4.5", repository.TypeDebit},
			{"positive is a credit", "4.50", "4.5", repository.TypeCredit},
			{"parenthesized accounting negative", "(50.00)", "50", repository.TypeDebit},
			{"US grouping", "1,234.56", "1234.56", repository.TypeCredit},
			{"ungrouped equals grouped", "1234.56", "1234.56", repository.TypeCredit},
			{"european comma decimal", "-4,55", "4.55", repository.TypeDebit},
			{"european grouping", "1.234,56", "1234.56", repository.TypeCredit},
			{"currency symbol stripped", "$ 12.00", "12", repository.TypeCredit},
			{"euro symbol stripped", "€9,99", "9.99", repository.TypeCredit},
			{"rounds to two decimals", "4.555", "4.56", repository.TypeCredit},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := ParseAmount(tt.raw, mapping.AmountStandard, "", nil)
				require.NoError(t, err)
				assert.Equal(t, tt.amount, got.Amount.String())
				assert.Equal(t, tt.txType, got.Type)
				assert.False(t, got.Amount.IsNegative())
			})
		}
	})

	t.Run("negate flips the raw sign", func(t *testing.T) {
		got, err := ParseAmount("4.50", mapping.AmountNegate, "", nil)
		require.NoError(t, err)
		assert.Equal(t, repository.TypeDebit, got.Type)

		got, err = ParseAmount("-4.50", mapping.AmountNegate, "", nil)
		require.NoError(t, err)
		assert.Equal(t, repository.TypeCredit, got.Type)
	})

	t.Run("sign column with classified mapping", func(t *testing.T) {
		direction := &sniffer.DirectionInfo{
			Format: sniffer.DirectionInOut,
			ValueMapping: map[string]string{
				"in": sniffer.Credit, "out": sniffer.Debit, "neutral": sniffer.Credit,
			},
		}

		got, err := ParseAmount("4.50", mapping.AmountSignColumn, "OUT", direction)
		require.NoError(t, err)
		assert.Equal(t, repository.TypeDebit, got.Type)

		// The direction column overrules the amount's own sign.
		got, err = ParseAmount("-4.50", mapping.AmountSignColumn, "in", direction)
		require.NoError(t, err)
		assert.Equal(t, repository.TypeCredit, got.Type)
	})

	t.Run("sign column falls back to keyword heuristic", func(t *testing.T) {
		got, err := ParseAmount("4.50", mapping.AmountSignColumn, "Withdrawal", nil)
		require.NoError(t, err)
		assert.Equal(t, repository.TypeDebit, got.Type)
	})

	t.Run("sign column with unknown value trusts the raw sign", func(t *testing.T) {
		got, err := ParseAmount("-4.50", mapping.AmountSignColumn, "??", nil)
		require.NoError(t, err)
		assert.Equal(t, repository.TypeDebit, got.Type)
	})

	t.Run("empty is missing", func(t *testing.T) {
		_, err := ParseAmount("  ", mapping.AmountStandard, "", nil)
		assert.ErrorIs(t, err, ErrMissingAmount)
	})

	t.Run("non-numeric is invalid", func(t *testing.T) {
		_, err := ParseAmount("abc", mapping.AmountStandard, "", nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}
