package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  string
		known bool
	}{
		{"lowercase iso code", "usd", USD, true},
		{"padded euro", "  eur ", EUR, true},
		{"truncates long values", "EUROS", "EUR", true},
		{"unknown code is preserved", "XZQ", "XZQ", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := NormalizeCode(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, "4.56", Round2(decimal.RequireFromString("4.555")).String())
	assert.Equal(t, "4.55", Round2(decimal.RequireFromString("4.554")).String())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "$4.50", Format(decimal.RequireFromString("4.50"), USD))
	assert.Equal(t, "$1,234.56", Format(decimal.RequireFromString("1234.56"), USD))
	// Unknown codes fall back to USD display.
	assert.Equal(t, "$9.99", Format(decimal.RequireFromString("9.99"), "XZQ"))
}
