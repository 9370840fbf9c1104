package transaction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types as delivered by the finance API
const (
	TypeExpense = "EXPENSE"
	TypeIncome  = "INCOME"
)

var (
	ErrInvalidType = errors.New("invalid transaction type")
	ErrNoDate      = errors.New("transaction has no creation date")
)

// Transaction is a single income or expense record.
// Amount is always stored as an unsigned magnitude; Type carries the direction.
type Transaction struct {
	ID           int64           `json:"id"`
	Label        string          `json:"label"`
	Amount       decimal.Decimal `json:"amount"`
	CreationDate string          `json:"creationDate"` // ISO-8601, zone optional
	Type         string          `json:"transactionTypeEnum"`
	Category     *Category       `json:"category,omitempty"`
	Budget       *BudgetRef      `json:"budget,omitempty"`
	Location     *Location       `json:"location"`
	Frequency    string          `json:"frequencyEnum,omitempty"`
	Note         string          `json:"note,omitempty"`
	Filename     string          `json:"filename,omitempty"`
	Currency     string          `json:"currency,omitempty"`
}

// Category is resolved server-side and embedded in the transaction
type Category struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// BudgetRef is the budget a transaction is booked against
type BudgetRef struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

// Location is an optional place attached to a transaction
type Location struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsValidType reports whether t is one of the known transaction types
func IsValidType(t string) bool {
	return t == TypeExpense || t == TypeIncome
}

// Normalize converts the transaction to the canonical representation:
// unsigned amount plus explicit type. A negative amount without a type is an expense.
func (t *Transaction) Normalize() {
	if t.Amount.IsNegative() {
		if t.Type == "" {
			t.Type = TypeExpense
		}
		t.Amount = t.Amount.Abs()
	}
	if t.Type == "" {
		t.Type = TypeExpense
	}
}

// NormalizeAll normalizes every transaction in place and returns the same slice
func NormalizeAll(items []Transaction) []Transaction {
	for i := range items {
		items[i].Normalize()
	}
	return items
}

// SignedAmount returns the amount with the sign derived from the type:
// negative for expenses, positive for income.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TypeIncome {
		return t.Amount.Abs()
	}
	return t.Amount.Abs().Neg()
}

// FormatAmount renders the signed amount with two decimals and the currency
func (t *Transaction) FormatAmount() string {
	currency := t.Currency
	if currency == "" {
		currency = "€"
	}
	sign := "-"
	if t.Type == TypeIncome {
		sign = "+"
	}
	return fmt.Sprintf("%s%s%s", sign, t.Amount.Abs().StringFixed(2), currency)
}

var creationDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// GetCreationDate parses the creation date. Timestamps without a zone are read as UTC.
func (t *Transaction) GetCreationDate() (time.Time, error) {
	if t.CreationDate == "" {
		return time.Time{}, ErrNoDate
	}
	for _, layout := range creationDateLayouts {
		if parsed, err := time.Parse(layout, t.CreationDate); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse creationDate '%s'", t.CreationDate)
}

// Filter selects transactions for a list view
type Filter struct {
	Query string // case-insensitive substring of the label
	Type  string // empty for all
}

// Apply returns the transactions matching the filter, preserving order
func (f Filter) Apply(items []Transaction) []Transaction {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]Transaction, 0, len(items))
	for _, item := range items {
		if query != "" && !strings.Contains(strings.ToLower(item.Label), query) {
			continue
		}
		if f.Type != "" && item.Type != f.Type {
			continue
		}
		out = append(out, item)
	}
	return out
}

// SortByCreationDate sorts in place. Records with unparseable dates sort last.
func SortByCreationDate(items []Transaction, ascending bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, errA := items[i].GetCreationDate()
		b, errB := items[j].GetCreationDate()
		switch {
		case errA != nil && errB != nil:
			return false
		case errA != nil:
			return false
		case errB != nil:
			return true
		}
		if ascending {
			return a.Before(b)
		}
		return a.After(b)
	})
}
