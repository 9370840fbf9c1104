// Package financeapi is the HTTP client for the finance REST API
package financeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finsync/internal/domain/budget"
	"finsync/internal/domain/spending"
	"finsync/internal/domain/transaction"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout          = 30 * time.Second
	transactionsPath        = "/transactions"
	budgetTransactionsPath  = "/transactions/budget/"
	expensesPath            = "/transactions/expenses/"
	budgetsByUsernamePath   = "/budgets/byUsername"
	budgetPath              = "/budgets/"
	loginPath               = "/auth/login"
	maxErrorBodyBytes int64 = 4096
)

// TokenSource supplies the bearer token attached to every request.
// An empty token sends the request without an Authorization header.
type TokenSource interface {
	Token() string
}

// Client handles communication with the finance REST API
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new finance API client. A zero timeout uses the default.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
	}
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /auth/login
type LoginResponse struct {
	AccessToken string `json:"accessToken"`
}

// GetTransactions fetches every transaction of the authenticated user.
// Amounts are normalized to unsigned magnitude plus type.
func (c *Client) GetTransactions(ctx context.Context) ([]transaction.Transaction, error) {
	var items []transaction.Transaction
	if err := c.get(ctx, transactionsPath, &items); err != nil {
		return nil, err
	}
	return transaction.NormalizeAll(items), nil
}

// GetBudgetTransactions fetches the transactions booked against one budget
func (c *Client) GetBudgetTransactions(ctx context.Context, budgetID int64) ([]transaction.Transaction, error) {
	var items []transaction.Transaction
	if err := c.get(ctx, budgetTransactionsPath+strconv.FormatInt(budgetID, 10), &items); err != nil {
		return nil, err
	}
	return transaction.NormalizeAll(items), nil
}

// GetExpenses fetches per-category spending for the period
func (c *Client) GetExpenses(ctx context.Context, period spending.Period) ([]spending.CategorySpending, error) {
	var items []spending.CategorySpending
	if err := c.get(ctx, expensesPath+period.PathSegment(), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetBudgets fetches the budgets of the authenticated user
func (c *Client) GetBudgets(ctx context.Context) ([]budget.Budget, error) {
	var items []budget.Budget
	if err := c.get(ctx, budgetsByUsernamePath, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetBudget fetches a single budget
func (c *Client) GetBudget(ctx context.Context, budgetID int64) (*budget.Budget, error) {
	var b budget.Budget
	if err := c.get(ctx, budgetPath+strconv.FormatInt(budgetID, 10), &b); err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, fmt.Errorf("%w: budget %d", ErrEmptyRecord, budgetID)
	}
	return &b, nil
}

// Login exchanges credentials for an access token
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body, err := json.Marshal(LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal login request: %w", err)
	}

	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, loginPath, bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", ErrEmptyToken
	}
	return resp.AccessToken, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	// A body cut off mid-read is a transport failure; a complete but
	// malformed body is not.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Method: method, URL: url, Err: fmt.Errorf("reading response body: %w", err)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	serr := &ServerError{StatusCode: resp.StatusCode, Body: string(raw)}
	var errResp ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil {
		switch {
		case errResp.Message != "" && errResp.Error != "":
			serr.Message = errResp.Error + " - " + errResp.Message
		case errResp.Message != "":
			serr.Message = errResp.Message
		default:
			serr.Message = errResp.Error
		}
	}
	return serr
}
