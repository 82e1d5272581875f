// Package insights derives spending patterns and savings opportunities from
// normalized transactions.
package insights

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/fstrauf/txapp/internal/domain/import/repository"
)

// Confidence levels for recurring patterns, based on relative standard
// deviation of the group's amounts.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Impact levels for category concentration.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// Difficulty levels for acting on a savings opportunity.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Transaction is the analyzer's input record. Category is the resolved name,
// empty when uncategorized.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Type        repository.TransactionType
	Category    string
}

// RecurringExpensePattern is one group of repeated expenses sharing a
// normalized description.
type RecurringExpensePattern struct {
	Pattern           string  `json:"pattern"`
	SampleDescription string  `json:"sampleDescription"`
	Category          string  `json:"category,omitempty"`
	Frequency         int     `json:"frequency"`
	AverageAmount     float64 `json:"averageAmount"`
	MonthlyFrequency  float64 `json:"monthlyFrequency"`
	MonthlyCost       float64 `json:"monthlyCost"`
	AnnualCost        float64 `json:"annualCost"`
	Confidence        string  `json:"confidence"`
	Insight           string  `json:"insight"`
	SuggestedAction   string  `json:"suggestedAction"`
	EstimatedSavings  float64 `json:"estimatedSavings"`
}

// CategoryInsight reports one category's share of total spending.
type CategoryInsight struct {
	Category         string  `json:"category"`
	TransactionCount int     `json:"transactionCount"`
	TotalAmount      float64 `json:"totalAmount"`
	ShareOfExpenses  float64 `json:"shareOfExpenses"` // percent of expense total
	Impact           string  `json:"impact"`
	SuggestedAction  string  `json:"suggestedAction"`
	EstimatedSavings float64 `json:"estimatedSavings"`
	Difficulty       string  `json:"difficulty"`
}

// FrequencyPattern reports a behavioral spending pattern that is independent
// of category.
type FrequencyPattern struct {
	Name             string  `json:"name"`
	TransactionCount int     `json:"transactionCount"`
	TotalAmount      float64 `json:"totalAmount"`
	Insight          string  `json:"insight"`
	SuggestedAction  string  `json:"suggestedAction"`
	EstimatedSavings float64 `json:"estimatedSavings"`
}

// SavingsOpportunity is one ranked, actionable saving.
type SavingsOpportunity struct {
	Source           string  `json:"source"`
	Description      string  `json:"description"`
	EstimatedSavings float64 `json:"estimatedSavings"`
	Difficulty       string  `json:"difficulty,omitempty"`
}

// AnalysisResult is the full analyzer output for one transaction window.
type AnalysisResult struct {
	TotalTransactions       int                       `json:"totalTransactions"`
	ExpenseTotal            float64                   `json:"expenseTotal"`
	IncomeTotal             float64                   `json:"incomeTotal"`
	RecurringExpenses       []RecurringExpensePattern `json:"recurringExpenses"`
	CategoryInsights        []CategoryInsight         `json:"categoryInsights"`
	FrequencyPatterns       []FrequencyPattern        `json:"frequencyPatterns"`
	TopSavingsOpportunities []SavingsOpportunity      `json:"topSavingsOpportunities"`
	Summary                 string                    `json:"summary"`
}

const (
	minRecurringCount       = 3
	minConcentrationCount   = 2
	smallPurchaseLimit      = 20.0
	smallPurchaseMinCount   = 10
	weekendShareThreshold   = 0.4
	weekendMinCount         = 5
	minRankedSavings        = 50.0
	maxSavingsOpportunities = 5
	softSummaryThreshold    = 100.0
)

// Analyze is a pure function over a transaction window. Stateless across
// calls; results are order-independent.
func Analyze(txs []Transaction) *AnalysisResult {
	result := &AnalysisResult{TotalTransactions: len(txs)}

	var expenses []Transaction
	for _, tx := range txs {
		amount := tx.Amount.InexactFloat64()
		if tx.Type == repository.TypeCredit {
			result.IncomeTotal += amount
			continue
		}
		result.ExpenseTotal += amount
		expenses = append(expenses, tx)
	}

	result.RecurringExpenses = detectRecurring(expenses)
	result.CategoryInsights = analyzeCategories(expenses, result.ExpenseTotal)
	result.FrequencyPatterns = analyzeFrequency(expenses)
	result.TopSavingsOpportunities = rankSavings(result.CategoryInsights, result.FrequencyPatterns)
	result.Summary = buildSummary(result)
	return result
}

// normalizePattern lower-cases a description, strips digits and punctuation,
// and collapses whitespace, so "STARBUCKS #123" and "Starbucks #456" share a
// grouping key.
func normalizePattern(description string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(description) {
		switch {
		case unicode.IsDigit(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// recurringTreatment holds one category heuristic for recurring groups,
// evaluated top to bottom on the group's dominant category.
type recurringTreatment struct {
	keywords   []string
	savingsPct float64
	insight    string
	action     string
}

var recurringTreatments = []recurringTreatment{
	{
		keywords:   []string{"coffee", "food"},
		savingsPct: 0.40,
		insight:    "You buy this regularly. Small frequent purchases add up fast.",
		action:     "Try cutting back to every other visit, or set a weekly budget for it.",
	},
	{
		keywords:   []string{"subscription", "streaming"},
		savingsPct: 0.30,
		insight:    "This looks like a subscription you pay on a schedule.",
		action:     "Check whether you still use it; cancelling unused subscriptions is the easiest saving.",
	},
	{
		keywords:   []string{"transport"},
		savingsPct: 0.25,
		insight:    "Regular transport spending detected.",
		action:     "Look into passes or bulk tickets, which are usually cheaper than paying per ride.",
	},
}

// smallFrequentTreatment applies to recurring groups with no keyword match
// when the purchases are small and frequent.
var smallFrequentTreatment = recurringTreatment{
	savingsPct: 0.30,
	insight:    "Frequent small purchases on this merchant add up over time.",
	action:     "Track these for a month and decide a cap that feels right.",
}

func detectRecurring(expenses []Transaction) []RecurringExpensePattern {
	groups := make(map[string][]Transaction)
	for _, tx := range expenses {
		key := normalizePattern(tx.Description)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], tx)
	}

	keys := make([]string, 0, len(groups))
	for key, members := range groups {
		if len(members) >= minRecurringCount {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var patterns []RecurringExpensePattern
	for _, key := range keys {
		members := groups[key]

		var sum float64
		earliest, latest := members[0].Date, members[0].Date
		for _, tx := range members {
			sum += tx.Amount.InexactFloat64()
			if tx.Date.Before(earliest) {
				earliest = tx.Date
			}
			if tx.Date.After(latest) {
				latest = tx.Date
			}
		}
		avg := sum / float64(len(members))

		spanDays := latest.Sub(earliest).Hours() / 24
		if spanDays < 1 {
			spanDays = 1
		}
		monthlyFreq := float64(len(members)) / spanDays * 30
		monthlyCost := monthlyFreq * avg
		annualCost := monthlyCost * 12

		p := RecurringExpensePattern{
			Pattern:           key,
			SampleDescription: members[0].Description,
			Category:          dominantCategory(members),
			Frequency:         len(members),
			AverageAmount:     round2(avg),
			MonthlyFrequency:  monthlyFreq,
			MonthlyCost:       round2(monthlyCost),
			AnnualCost:        round2(annualCost),
			Confidence:        amountConfidence(members, avg),
		}

		treatment, matched := matchRecurringTreatment(p.Category, avg, len(members))
		if matched {
			p.Insight = treatment.insight
			p.SuggestedAction = treatment.action
			p.EstimatedSavings = round2(monthlyCost * treatment.savingsPct)
		} else {
			p.Insight = fmt.Sprintf("You've paid %s %d times in this period.", p.SampleDescription, len(members))
			p.SuggestedAction = "Review whether this recurring expense still earns its place."
		}
		patterns = append(patterns, p)
	}
	return patterns
}

func matchRecurringTreatment(category string, avg float64, count int) (recurringTreatment, bool) {
	lower := strings.ToLower(category)
	for _, t := range recurringTreatments {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t, true
			}
		}
	}
	if avg < 10 && count > smallPurchaseMinCount {
		return smallFrequentTreatment, true
	}
	return recurringTreatment{}, false
}

// amountConfidence classifies how consistent a group's amounts are, using
// population standard deviation relative to the mean.
func amountConfidence(members []Transaction, mean float64) string {
	if mean == 0 {
		return ConfidenceLow
	}
	var sumSq float64
	for _, tx := range members {
		d := tx.Amount.InexactFloat64() - mean
		sumSq += d * d
	}
	stddev := math.Sqrt(sumSq / float64(len(members)))
	switch {
	case stddev < 0.20*mean:
		return ConfidenceHigh
	case stddev < 0.50*mean:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func dominantCategory(members []Transaction) string {
	counts := make(map[string]int)
	for _, tx := range members {
		if tx.Category != "" {
			counts[tx.Category]++
		}
	}
	best, bestCount := "", 0
	for name, count := range counts {
		if count > bestCount || (count == bestCount && name < best) {
			best, bestCount = name, count
		}
	}
	return best
}

// categoryTreatment holds one concentration heuristic, evaluated top to
// bottom on the category name.
type categoryTreatment struct {
	keywords   []string
	savingsPct float64
	difficulty string
	action     string
}

var categoryTreatments = []categoryTreatment{
	{
		keywords:   []string{"subscription"},
		savingsPct: 0.50,
		difficulty: DifficultyEasy,
		action:     "Audit your subscriptions and cancel the ones you haven't used this month.",
	},
	{
		keywords:   []string{"food", "grocer", "restaurant", "dining"},
		savingsPct: 0.30,
		difficulty: DifficultyMedium,
		action:     "Plan meals ahead and cook at home a few more nights per week.",
	},
	{
		keywords:   []string{"entertainment"},
		savingsPct: 0.40,
		difficulty: DifficultyMedium,
		action:     "Set a monthly entertainment budget and pick free alternatives when it runs out.",
	},
	{
		keywords:   []string{"transport", "housing", "rent", "utilities"},
		savingsPct: 0.15,
		difficulty: DifficultyHard,
		action:     "Structural costs are hard to move, but worth a yearly comparison shop.",
	},
}

var defaultCategoryTreatment = categoryTreatment{
	savingsPct: 0.15,
	difficulty: DifficultyMedium,
	action:     "Review the biggest charges in this category for anything avoidable.",
}

func analyzeCategories(expenses []Transaction, expenseTotal float64) []CategoryInsight {
	if expenseTotal == 0 {
		return nil
	}

	type bucket struct {
		count int
		total float64
	}
	buckets := make(map[string]*bucket)
	for _, tx := range expenses {
		if tx.Category == "" {
			continue
		}
		b := buckets[tx.Category]
		if b == nil {
			b = &bucket{}
			buckets[tx.Category] = b
		}
		b.count++
		b.total += tx.Amount.InexactFloat64()
	}

	names := make([]string, 0, len(buckets))
	for name, b := range buckets {
		if b.count >= minConcentrationCount {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var insights []CategoryInsight
	for _, name := range names {
		b := buckets[name]
		share := b.total / expenseTotal * 100

		impact := ImpactLow
		switch {
		case share > 20:
			impact = ImpactHigh
		case share > 10:
			impact = ImpactMedium
		}

		treatment := matchCategoryTreatment(name)
		insights = append(insights, CategoryInsight{
			Category:         name,
			TransactionCount: b.count,
			TotalAmount:      round2(b.total),
			ShareOfExpenses:  round2(share),
			Impact:           impact,
			SuggestedAction:  treatment.action,
			EstimatedSavings: round2(b.total * treatment.savingsPct),
			Difficulty:       treatment.difficulty,
		})
	}

	sort.Slice(insights, func(i, j int) bool {
		return insights[i].TotalAmount > insights[j].TotalAmount
	})
	return insights
}

func matchCategoryTreatment(category string) categoryTreatment {
	lower := strings.ToLower(category)
	for _, t := range categoryTreatments {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t
			}
		}
	}
	return defaultCategoryTreatment
}

func analyzeFrequency(expenses []Transaction) []FrequencyPattern {
	var patterns []FrequencyPattern

	// Small purchases under the limit.
	var smallCount int
	var smallTotal float64
	var earliest, latest time.Time
	for _, tx := range expenses {
		amount := tx.Amount.InexactFloat64()
		if amount >= smallPurchaseLimit {
			continue
		}
		if smallCount == 0 {
			earliest, latest = tx.Date, tx.Date
		}
		if tx.Date.Before(earliest) {
			earliest = tx.Date
		}
		if tx.Date.After(latest) {
			latest = tx.Date
		}
		smallCount++
		smallTotal += amount
	}
	if smallCount > smallPurchaseMinCount {
		spanDays := latest.Sub(earliest).Hours() / 24
		if spanDays < 1 {
			spanDays = 1
		}
		monthlyTotal := smallTotal / spanDays * 30
		patterns = append(patterns, FrequencyPattern{
			Name:             "small_purchases",
			TransactionCount: smallCount,
			TotalAmount:      round2(monthlyTotal),
			Insight:          fmt.Sprintf("You made %d purchases under $%.0f, about $%.2f per month.", smallCount, smallPurchaseLimit, monthlyTotal),
			SuggestedAction:  "Batch small purchases or set a weekly cash limit for them.",
			EstimatedSavings: round2(monthlyTotal * 0.30),
		})
	}

	// Weekend versus weekday spending.
	var weekendCount int
	var weekendTotal, weekdayTotal float64
	for _, tx := range expenses {
		amount := tx.Amount.InexactFloat64()
		switch tx.Date.Weekday() {
		case time.Saturday, time.Sunday:
			weekendCount++
			weekendTotal += amount
		default:
			weekdayTotal += amount
		}
	}
	if weekendCount > weekendMinCount && weekendTotal > weekdayTotal*weekendShareThreshold {
		patterns = append(patterns, FrequencyPattern{
			Name:             "weekend_spending",
			TransactionCount: weekendCount,
			TotalAmount:      round2(weekendTotal),
			Insight:          fmt.Sprintf("Weekend spending ($%.2f) is heavy relative to weekdays ($%.2f).", weekendTotal, weekdayTotal),
			SuggestedAction:  "Plan one low-cost weekend activity per week to take the edge off.",
			EstimatedSavings: round2(weekendTotal * 0.25),
		})
	}

	return patterns
}

// rankSavings merges category and frequency opportunities, drops small ones,
// and keeps the top few by estimated savings.
func rankSavings(categories []CategoryInsight, frequencies []FrequencyPattern) []SavingsOpportunity {
	var opportunities []SavingsOpportunity
	for _, c := range categories {
		if c.EstimatedSavings > minRankedSavings {
			opportunities = append(opportunities, SavingsOpportunity{
				Source:           c.Category,
				Description:      c.SuggestedAction,
				EstimatedSavings: c.EstimatedSavings,
				Difficulty:       c.Difficulty,
			})
		}
	}
	for _, f := range frequencies {
		if f.EstimatedSavings > minRankedSavings {
			opportunities = append(opportunities, SavingsOpportunity{
				Source:           f.Name,
				Description:      f.SuggestedAction,
				EstimatedSavings: f.EstimatedSavings,
			})
		}
	}

	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].EstimatedSavings > opportunities[j].EstimatedSavings
	})
	if len(opportunities) > maxSavingsOpportunities {
		opportunities = opportunities[:maxSavingsOpportunities]
	}
	return opportunities
}

func buildSummary(r *AnalysisResult) string {
	var recurringMonthly float64
	for _, p := range r.RecurringExpenses {
		recurringMonthly += p.MonthlyCost
	}
	var totalSavings float64
	for _, o := range r.TopSavingsOpportunities {
		totalSavings += o.EstimatedSavings
	}

	base := fmt.Sprintf("You spent $%.2f across %d transactions", r.ExpenseTotal, r.TotalTransactions)
	if len(r.RecurringExpenses) > 0 {
		base += fmt.Sprintf(", including %d recurring expenses costing about $%.2f per month", len(r.RecurringExpenses), recurringMonthly)
	}

	if totalSavings > softSummaryThreshold {
		return base + fmt.Sprintf(". You could save around $%.2f per month by acting on the top opportunities.", totalSavings)
	}
	if totalSavings > 0 {
		return base + fmt.Sprintf(". A few small adjustments could free up about $%.2f per month.", totalSavings)
	}
	return base + ". Your spending looks steady, with no large savings opportunities right now."
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
