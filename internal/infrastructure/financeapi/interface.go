package financeapi

import (
	"context"

	"finsync/internal/domain/budget"
	"finsync/internal/domain/spending"
	"finsync/internal/domain/transaction"
)

// ClientInterface defines the methods required from the finance REST API client
type ClientInterface interface {
	GetTransactions(ctx context.Context) ([]transaction.Transaction, error)
	GetBudgetTransactions(ctx context.Context, budgetID int64) ([]transaction.Transaction, error)
	GetExpenses(ctx context.Context, period spending.Period) ([]spending.CategorySpending, error)
	GetBudgets(ctx context.Context) ([]budget.Budget, error)
	GetBudget(ctx context.Context, budgetID int64) (*budget.Budget, error)
}
