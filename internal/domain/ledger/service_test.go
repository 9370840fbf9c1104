package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"finsync/internal/domain/budget"
	"finsync/internal/domain/offline"
	"finsync/internal/domain/spending"
	"finsync/internal/domain/transaction"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MockClient implements financeapi.ClientInterface
type MockClient struct {
	GetTransactionsFunc       func(ctx context.Context) ([]transaction.Transaction, error)
	GetBudgetTransactionsFunc func(ctx context.Context, budgetID int64) ([]transaction.Transaction, error)
	GetExpensesFunc           func(ctx context.Context, period spending.Period) ([]spending.CategorySpending, error)
	GetBudgetsFunc            func(ctx context.Context) ([]budget.Budget, error)
	GetBudgetFunc             func(ctx context.Context, budgetID int64) (*budget.Budget, error)
}

func (m *MockClient) GetTransactions(ctx context.Context) ([]transaction.Transaction, error) {
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx)
	}
	return []transaction.Transaction{}, nil
}

func (m *MockClient) GetBudgetTransactions(ctx context.Context, budgetID int64) ([]transaction.Transaction, error) {
	if m.GetBudgetTransactionsFunc != nil {
		return m.GetBudgetTransactionsFunc(ctx, budgetID)
	}
	return []transaction.Transaction{}, nil
}

func (m *MockClient) GetExpenses(ctx context.Context, period spending.Period) ([]spending.CategorySpending, error) {
	if m.GetExpensesFunc != nil {
		return m.GetExpensesFunc(ctx, period)
	}
	return []spending.CategorySpending{}, nil
}

func (m *MockClient) GetBudgets(ctx context.Context) ([]budget.Budget, error) {
	if m.GetBudgetsFunc != nil {
		return m.GetBudgetsFunc(ctx)
	}
	return []budget.Budget{}, nil
}

func (m *MockClient) GetBudget(ctx context.Context, budgetID int64) (*budget.Budget, error) {
	if m.GetBudgetFunc != nil {
		return m.GetBudgetFunc(ctx, budgetID)
	}
	return nil, errors.New("not found")
}

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (s *mapStore) Get(ctx context.Context, key string) (*offline.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, offline.ErrNotFound
	}
	return &offline.Entry{Key: key, Value: v}, nil
}

func (s *mapStore) Put(ctx context.Context, key string, value []byte) (*offline.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return &offline.Entry{Key: key, Value: value}, nil
}

func (s *mapStore) Delete(ctx context.Context, key string) error { return nil }

func (s *mapStore) Keys(ctx context.Context) ([]string, error) { return nil, nil }

type switchMonitor struct{ online bool }

func (m *switchMonitor) Online(context.Context) bool { return m.online }

func newTestService(client *MockClient) (*Service, *mapStore, *switchMonitor) {
	store := &mapStore{data: map[string][]byte{}}
	monitor := &switchMonitor{online: true}
	engine := offline.NewEngine(store, monitor, zerolog.New(io.Discard))
	return NewService(client, engine), store, monitor
}

func TestService_TransactionsOnlineThenOffline(t *testing.T) {
	calls := 0
	client := &MockClient{
		GetTransactionsFunc: func(ctx context.Context) ([]transaction.Transaction, error) {
			calls++
			return []transaction.Transaction{{ID: 1, Label: "Coffee", Amount: decimal.RequireFromString("3.5"), Type: transaction.TypeExpense}}, nil
		},
	}
	svc, store, monitor := newTestService(client)

	fresh := svc.Transactions(context.Background())
	if fresh.Status != offline.StatusFresh || len(fresh.Items) != 1 {
		t.Fatalf("fresh = %+v", fresh)
	}
	if _, ok := store.data[offline.KeyTransactions]; !ok {
		t.Fatal("cachedTransactions not written")
	}

	monitor.online = false
	cached := svc.Transactions(context.Background())
	if cached.Status != offline.StatusOfflineCached {
		t.Errorf("Status = %q, want %q", cached.Status, offline.StatusOfflineCached)
	}
	if len(cached.Items) != 1 || cached.Items[0].Label != "Coffee" {
		t.Errorf("Items = %+v", cached.Items)
	}
	if calls != 1 {
		t.Errorf("API called %d times, want 1", calls)
	}
}

func TestService_BudgetTransactionsUsesScopedKey(t *testing.T) {
	var gotID int64
	client := &MockClient{
		GetBudgetTransactionsFunc: func(ctx context.Context, budgetID int64) ([]transaction.Transaction, error) {
			gotID = budgetID
			return []transaction.Transaction{{ID: 5}}, nil
		},
	}
	svc, store, _ := newTestService(client)

	res := svc.BudgetTransactions(context.Background(), 12)
	if res.Status != offline.StatusFresh || gotID != 12 {
		t.Fatalf("res = %+v, budget id %d", res, gotID)
	}
	if _, ok := store.data["cachedTransactions_budget_12"]; !ok {
		t.Error("budget transactions not cached under cachedTransactions_budget_12")
	}
	if _, ok := store.data[offline.KeyTransactions]; ok {
		t.Error("budget transactions overwrote cachedTransactions")
	}
}

func TestService_SpendingKeys(t *testing.T) {
	client := &MockClient{
		GetExpensesFunc: func(ctx context.Context, period spending.Period) ([]spending.CategorySpending, error) {
			return []spending.CategorySpending{{CategoryName: string(period), Amount: decimal.NewFromInt(10)}}, nil
		},
	}
	svc, store, _ := newTestService(client)

	for _, period := range spending.Periods {
		res := svc.Spending(context.Background(), period)
		if res.Status != offline.StatusFresh {
			t.Errorf("%s: Status = %q", period, res.Status)
		}
	}
	for _, key := range []string{"spending_DAY", "spending_WEEK", "spending_MONTH"} {
		if _, ok := store.data[key]; !ok {
			t.Errorf("%s not cached", key)
		}
	}
}

func TestService_BudgetUpsertsIntoCollection(t *testing.T) {
	client := &MockClient{
		GetBudgetsFunc: func(ctx context.Context) ([]budget.Budget, error) {
			return []budget.Budget{{ID: 1, Label: "Food"}, {ID: 2, Label: "Travel"}}, nil
		},
		GetBudgetFunc: func(ctx context.Context, budgetID int64) (*budget.Budget, error) {
			return &budget.Budget{ID: budgetID, Label: "Holidays"}, nil
		},
	}
	svc, store, monitor := newTestService(client)

	svc.Budgets(context.Background())
	res := svc.Budget(context.Background(), 2)
	if res.Status != offline.StatusFresh || res.Item.Label != "Holidays" {
		t.Fatalf("Budget() = %+v", res)
	}

	var cached []budget.Budget
	if err := json.Unmarshal(store.data[offline.KeyBudgets], &cached); err != nil {
		t.Fatalf("decode cachedBudgets: %v", err)
	}
	if len(cached) != 2 || cached[1].Label != "Holidays" {
		t.Errorf("cachedBudgets = %+v", cached)
	}

	monitor.online = false
	offlineRes := svc.Budget(context.Background(), 1)
	if offlineRes.Status != offline.StatusOfflineCached || offlineRes.Item.Label != "Food" {
		t.Errorf("offline Budget() = %+v", offlineRes)
	}

	got, err := svc.CachedBudget(context.Background(), 2)
	if err != nil || got.Label != "Holidays" {
		t.Errorf("CachedBudget() = (%+v, %v)", got, err)
	}
}

func TestService_CachedTransactionMissing(t *testing.T) {
	svc, _, _ := newTestService(&MockClient{})

	if _, err := svc.CachedTransaction(context.Background(), 1); !errors.Is(err, offline.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestService_RefreshAll(t *testing.T) {
	client := &MockClient{
		GetBudgetsFunc: func(ctx context.Context) ([]budget.Budget, error) {
			return nil, errors.New("502 bad gateway")
		},
	}
	svc, _, _ := newTestService(client)

	if n := len(svc.Refreshers()); n != 5 {
		t.Errorf("Refreshers() = %d, want 5", n)
	}

	statuses, err := svc.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("RefreshAll() error = nil, want failure for budgets")
	}
	if statuses[offline.KeyBudgets] != offline.StatusError {
		t.Errorf("budgets status = %q, want %q", statuses[offline.KeyBudgets], offline.StatusError)
	}
	if statuses[offline.KeyTransactions] != offline.StatusFresh {
		t.Errorf("transactions status = %q, want %q", statuses[offline.KeyTransactions], offline.StatusFresh)
	}
	if len(statuses) != 5 {
		t.Errorf("got %d statuses, want 5", len(statuses))
	}
}

func TestService_NormalizesSignedCachedTransactions(t *testing.T) {
	svc, store, monitor := newTestService(&MockClient{})
	store.data[offline.KeyTransactions] = []byte(`[{"id":7,"label":"Coffee","amount":-3.5,"creationDate":"2024-03-01T10:00:00Z"}]`)
	monitor.online = false

	res := svc.Transactions(context.Background())
	if res.Status != offline.StatusOfflineCached || len(res.Items) != 1 {
		t.Fatalf("Transactions() = %+v", res)
	}
	got := res.Items[0]
	if !got.Amount.Equal(decimal.RequireFromString("3.5")) || got.Type != transaction.TypeExpense {
		t.Errorf("item = amount %s type %q, want 3.5 EXPENSE", got.Amount, got.Type)
	}

	cached, err := svc.CachedTransaction(context.Background(), 7)
	if err != nil {
		t.Fatalf("CachedTransaction() error = %v", err)
	}
	if cached.Amount.IsNegative() || cached.Type != transaction.TypeExpense {
		t.Errorf("cached = amount %s type %q", cached.Amount, cached.Type)
	}
}
