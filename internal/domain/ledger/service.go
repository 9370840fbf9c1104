// Package ledger binds the finance API collections to their cache keys
package ledger

import (
	"context"
	"fmt"
	"strconv"

	"finsync/internal/domain/budget"
	"finsync/internal/domain/offline"
	"finsync/internal/domain/spending"
	"finsync/internal/domain/transaction"
	"finsync/internal/infrastructure/financeapi"
)

// BudgetTransactionsKey is the cache key for the transactions of one budget
func BudgetTransactionsKey(budgetID int64) string {
	return offline.KeyTransactions + "_budget_" + strconv.FormatInt(budgetID, 10)
}

// Service loads every collection the client shows through the sync engine
type Service struct {
	client financeapi.ClientInterface
	engine *offline.Engine
}

// NewService creates a new collections service
func NewService(client financeapi.ClientInterface, engine *offline.Engine) *Service {
	return &Service{client: client, engine: engine}
}

// Transactions loads the user's transactions (cachedTransactions). Cached
// snapshots written with signed amounts come back normalized.
func (s *Service) Transactions(ctx context.Context) offline.Result[transaction.Transaction] {
	res := offline.Load(ctx, s.engine, offline.KeyTransactions, s.client.GetTransactions)
	res.Items = transaction.NormalizeAll(res.Items)
	return res
}

// BudgetTransactions loads the transactions booked against a budget
func (s *Service) BudgetTransactions(ctx context.Context, budgetID int64) offline.Result[transaction.Transaction] {
	res := offline.Load(ctx, s.engine, BudgetTransactionsKey(budgetID), func(ctx context.Context) ([]transaction.Transaction, error) {
		return s.client.GetBudgetTransactions(ctx, budgetID)
	})
	res.Items = transaction.NormalizeAll(res.Items)
	return res
}

// Budgets loads the user's budgets (cachedBudgets)
func (s *Service) Budgets(ctx context.Context) offline.Result[budget.Budget] {
	return offline.Load(ctx, s.engine, offline.KeyBudgets, s.client.GetBudgets)
}

// Budget loads one budget and keeps it current inside cachedBudgets
func (s *Service) Budget(ctx context.Context, budgetID int64) offline.ItemResult[budget.Budget] {
	return offline.LoadItem(ctx, s.engine, offline.KeyBudgets, budget.Budget{ID: budgetID}, budget.SameID,
		func(ctx context.Context) (*budget.Budget, error) {
			return s.client.GetBudget(ctx, budgetID)
		})
}

// Spending loads per-category expenses for the period (spending_<PERIOD>)
func (s *Service) Spending(ctx context.Context, period spending.Period) offline.Result[spending.CategorySpending] {
	return offline.Load(ctx, s.engine, period.CacheKey(), func(ctx context.Context) ([]spending.CategorySpending, error) {
		return s.client.GetExpenses(ctx, period)
	})
}

// CachedTransaction finds a transaction in cachedTransactions without touching the network
func (s *Service) CachedTransaction(ctx context.Context, id int64) (*transaction.Transaction, error) {
	t, err := offline.FindCached(ctx, s.engine.Store(), offline.KeyTransactions, func(t transaction.Transaction) bool {
		return t.ID == id
	})
	if err != nil {
		return nil, err
	}
	t.Normalize()
	return t, nil
}

// CachedBudget finds a budget in cachedBudgets without touching the network
func (s *Service) CachedBudget(ctx context.Context, id int64) (*budget.Budget, error) {
	return offline.FindCached(ctx, s.engine.Store(), offline.KeyBudgets, func(b budget.Budget) bool {
		return b.ID == id
	})
}

// Refresher reloads one collection and reports how it went
type Refresher struct {
	Key  string
	Load func(ctx context.Context) (offline.Status, error)
}

// Refreshers returns one refresher per top-level collection: transactions,
// budgets and every spending period
func (s *Service) Refreshers() []Refresher {
	refreshers := []Refresher{
		{
			Key: offline.KeyTransactions,
			Load: func(ctx context.Context) (offline.Status, error) {
				res := s.Transactions(ctx)
				return res.Status, res.Err
			},
		},
		{
			Key: offline.KeyBudgets,
			Load: func(ctx context.Context) (offline.Status, error) {
				res := s.Budgets(ctx)
				return res.Status, res.Err
			},
		},
	}

	for _, period := range spending.Periods {
		p := period
		refreshers = append(refreshers, Refresher{
			Key: p.CacheKey(),
			Load: func(ctx context.Context) (offline.Status, error) {
				res := s.Spending(ctx, p)
				return res.Status, res.Err
			},
		})
	}
	return refreshers
}

// RefreshAll runs every refresher in turn and returns the status per key.
// The error lists the collections that could not be refreshed.
func (s *Service) RefreshAll(ctx context.Context) (map[string]offline.Status, error) {
	statuses := make(map[string]offline.Status)
	var failed []string

	for _, r := range s.Refreshers() {
		if ctx.Err() != nil {
			return statuses, ctx.Err()
		}
		status, _ := r.Load(ctx)
		statuses[r.Key] = status
		if status != offline.StatusFresh {
			failed = append(failed, r.Key)
		}
	}

	if len(failed) > 0 {
		return statuses, fmt.Errorf("%d of %d collections not refreshed: %v", len(failed), len(statuses), failed)
	}
	return statuses, nil
}
