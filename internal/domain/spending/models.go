package spending

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnknownPeriod = errors.New("unknown spending period")

// Period is the aggregation window of the expenses dashboard
type Period string

const (
	PeriodDay   Period = "DAY"
	PeriodWeek  Period = "WEEK"
	PeriodMonth Period = "MONTH"
)

// Periods lists every period in dashboard order
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth}

// CategorySpending is the total spent in one category over a period
type CategorySpending struct {
	CategoryName string          `json:"category_name"`
	Amount       decimal.Decimal `json:"amount"`
}

// ParsePeriod accepts both the cache form (DAY, WEEK, MONTH) and the
// API path form (today, week, month), case-insensitively.
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "today":
		return PeriodDay, nil
	case "week":
		return PeriodWeek, nil
	case "month":
		return PeriodMonth, nil
	}
	return "", ErrUnknownPeriod
}

// PathSegment returns the period as used in GET /transactions/expenses/{period}
func (p Period) PathSegment() string {
	switch p {
	case PeriodDay:
		return "today"
	case PeriodWeek:
		return "week"
	case PeriodMonth:
		return "month"
	}
	return ""
}

// CacheKey returns the persistent cache key for the period
func (p Period) CacheKey() string {
	return "spending_" + string(p)
}

// Total sums the amounts of all categories
func Total(items []CategorySpending) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}
