package budget

import (
	"github.com/shopspring/decimal"
)

// Budget is a spending envelope that the server resets every interval.
// Reset scheduling happens server-side; the client only displays the fields.
type Budget struct {
	ID            int64           `json:"id"`
	Label         string          `json:"label"`
	Amount        decimal.Decimal `json:"amount"`
	InitialAmount decimal.Decimal `json:"initialAmount"`
	StartDate     string          `json:"startDate"`
	IntervalValue int             `json:"intervalValue"`
	IntervalEnum  string          `json:"intervalEnum"`
	LastResetDate string          `json:"lastResetDate"`
}

// Spent returns how much of the initial amount has been used
func (b *Budget) Spent() decimal.Decimal {
	return b.InitialAmount.Sub(b.Amount)
}

// SameID reports whether two budgets are the same record
func SameID(a, b Budget) bool {
	return a.ID == b.ID
}
