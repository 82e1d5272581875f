package money

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// TestDataGenerator produces realistic transaction fixtures for tests.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a generator with a fixed seed so fixtures are
// reproducible across runs.
func NewTestDataGenerator(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// TestTransaction is a generated transaction fixture.
type TestTransaction struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Category    string
	IsExpense   bool
}

// Amount generates a random amount between min and max with 2 decimals.
func (g *TestDataGenerator) Amount(min, max float64) decimal.Decimal {
	return decimal.NewFromFloat(g.faker.Float64Range(min, max)).Round(2)
}

// Expense generates an expense fixture in the given category, dated within
// the window.
func (g *TestDataGenerator) Expense(category string, start time.Time, spanDays int, min, max float64) TestTransaction {
	day := g.faker.IntRange(0, spanDays)
	return TestTransaction{
		Date:        start.AddDate(0, 0, day),
		Description: g.faker.Company(),
		Amount:      g.Amount(min, max),
		Category:    category,
		IsExpense:   true,
	}
}
