package normalizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fstrauf/txapp/internal/domain/import/mapping"
	"github.com/fstrauf/txapp/internal/domain/import/repository"
	"github.com/fstrauf/txapp/pkg/money"
)

// RowError is a hard, row-scoped failure. Field names the normalization step
// that short-circuited; RawRow is the original row snapshot for the caller's
// error report.
type RowError struct {
	RowIndex int
	Field    string
	Message  string
	RawRow   map[string]string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.RowIndex, e.Field, e.Message)
}

// Result is the outcome for one successfully processed row. Duplicate rows
// carry no transaction; Warnings record soft degradations such as a failed
// category creation.
type Result struct {
	Tx        *repository.CanonicalTransaction
	Duplicate bool
	Warnings  []string
}

// RowNormalizer processes rows for one import batch. It owns the per-batch
// category memoization, so rows must be fed sequentially in source order:
// later rows depend on category-creation side effects of earlier ones.
type RowNormalizer struct {
	userID    uuid.UUID
	accountID uuid.UUID
	mapping   *mapping.ColumnMapping

	categories repository.CategoryStore
	txs        repository.TransactionStore

	known     map[string]uuid.UUID                   // existing category names, lower-cased
	decisions map[string]repository.CategoryDecision // caller decisions for unmapped names
	resolved  map[string]*uuid.UUID                  // per-batch memo; nil value = uncategorized
	seen      map[string]bool                        // duplicate keys earlier in this batch
}

// NewRowNormalizer builds a normalizer for one batch. It loads the user's
// existing categories once up front so per-row resolution stays in memory.
func NewRowNormalizer(
	ctx context.Context,
	userID, accountID uuid.UUID,
	m *mapping.ColumnMapping,
	categories repository.CategoryStore,
	txs repository.TransactionStore,
	decisions map[string]repository.CategoryDecision,
) (*RowNormalizer, error) {
	existing, err := categories.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	known := make(map[string]uuid.UUID, len(existing))
	for _, c := range existing {
		known[strings.ToLower(c.Name)] = c.ID
	}

	normalized := make(map[string]repository.CategoryDecision, len(decisions))
	for name, d := range decisions {
		normalized[strings.ToLower(strings.TrimSpace(name))] = d
	}

	return &RowNormalizer{
		userID:     userID,
		accountID:  accountID,
		mapping:    m,
		categories: categories,
		txs:        txs,
		known:      known,
		decisions:  normalized,
		resolved:   make(map[string]*uuid.UUID),
		seen:       make(map[string]bool),
	}, nil
}

// Normalize runs the per-row pipeline: description assembly, date parsing,
// amount and sign resolution, currency extraction, category resolution, and
// the duplicate check. Each step can short-circuit with a field-specific
// RowError.
func (n *RowNormalizer) Normalize(ctx context.Context, rowIndex int, row map[string]string) (*Result, *RowError) {
	fail := func(field, message string) (*Result, *RowError) {
		return nil, &RowError{RowIndex: rowIndex, Field: field, Message: message, RawRow: snapshotRow(row)}
	}

	// 1. Description: primary plus optional secondary, single-space joined.
	description := joinDescription(row[n.mapping.Description], row[n.mapping.Description2])
	if description == "" {
		return fail("description", "empty description")
	}

	// 2. Date.
	date, err := ParseDate(row[n.mapping.Date], n.mapping.DateFormat)
	if err != nil {
		return fail("date", fmt.Sprintf("invalid date %q", row[n.mapping.Date]))
	}

	// 3. Amount and direction.
	signValue := ""
	if n.mapping.SignColumn != "" {
		signValue = row[n.mapping.SignColumn]
	}
	parsed, err := ParseAmount(row[n.mapping.Amount], n.mapping.AmountFormat, signValue, n.mapping.DirectionInfo)
	if err != nil {
		if err == ErrMissingAmount {
			return fail("amount", "missing amount")
		}
		return fail("amount", fmt.Sprintf("invalid amount %q", row[n.mapping.Amount]))
	}

	// 4. Currency (optional).
	var currency *string
	if n.mapping.Currency != "" {
		if code, _ := money.NormalizeCode(row[n.mapping.Currency]); code != "" {
			currency = &code
		}
	}

	result := &Result{}

	// 5. Category resolution, memoized per batch.
	var categoryID *uuid.UUID
	if n.mapping.Category != "" {
		var warning string
		categoryID, warning = n.resolveCategory(ctx, row[n.mapping.Category])
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
		}
	}

	// 6. Duplicate check: first against rows earlier in this batch, then
	// against already-stored transactions.
	dupKey := fmt.Sprintf("%s|%s|%s", date.Format("2006-01-02"), parsed.Amount.String(), description)
	if n.seen[dupKey] {
		result.Duplicate = true
		return result, nil
	}
	exists, err := n.txs.DuplicateExists(ctx, n.userID, n.accountID, date, parsed.Amount, description)
	if err != nil {
		return fail("duplicate", fmt.Sprintf("duplicate lookup failed: %v", err))
	}
	if exists {
		result.Duplicate = true
		return result, nil
	}
	n.seen[dupKey] = true

	result.Tx = &repository.CanonicalTransaction{
		ID:            uuid.New(),
		UserID:        n.userID,
		BankAccountID: n.accountID,
		Date:          date,
		Description:   description,
		Amount:        parsed.Amount,
		Currency:      currency,
		Type:          parsed.Type,
		CategoryID:    categoryID,
		SourceRow:     snapshotRow(row),
		Source:        repository.SourceCSVImport,
	}
	return result, nil
}

// resolveCategory applies the priority order: known name match, then the
// caller's decision for this raw name, else uncategorized. Creation happens
// at most once per lower-cased name per batch; a creation failure is
// non-fatal and reported as a warning.
func (n *RowNormalizer) resolveCategory(ctx context.Context, raw string) (*uuid.UUID, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ""
	}
	key := strings.ToLower(raw)

	if id, ok := n.known[key]; ok {
		return &id, ""
	}
	if id, ok := n.resolved[key]; ok {
		return id, ""
	}

	decision, ok := n.decisions[key]
	if !ok {
		n.resolved[key] = nil
		return nil, ""
	}

	switch {
	case decision.Create:
		name := decision.NewName
		if name == "" {
			name = raw
		}
		id, err := n.categories.CreateCategory(ctx, n.userID, name)
		if err != nil {
			n.resolved[key] = nil
			return nil, fmt.Sprintf("could not create category %q: %v", name, err)
		}
		n.resolved[key] = &id
		return &id, ""
	case decision.TargetID != nil:
		n.resolved[key] = decision.TargetID
		return decision.TargetID, ""
	default:
		// Explicit "leave uncategorized".
		n.resolved[key] = nil
		return nil, ""
	}
}

func joinDescription(primary, secondary string) string {
	primary = strings.TrimSpace(primary)
	secondary = strings.TrimSpace(secondary)
	switch {
	case primary == "":
		return secondary
	case secondary == "":
		return primary
	default:
		return primary + " " + secondary
	}
}

func snapshotRow(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
