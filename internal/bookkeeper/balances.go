package bookkeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/punchamoorthee/bookkeeper/internal/domain"
)

// Balances reads the current balance of each code. Codes travel as repeated
// account_codes parameters. Records keep the engine's order, and a read
// may trail entries committed moments earlier.
//
// An empty code list returns an empty result without calling the engine.
func (c *Client) Balances(ctx context.Context, accountCodes ...string) ([]domain.BalanceRecord, error) {
	if len(accountCodes) == 0 {
		return []domain.BalanceRecord{}, nil
	}
	for i, code := range accountCodes {
		if code == "" {
			return nil, fmt.Errorf("get_balances: %w",
				&domain.ValidationError{Field: fmt.Sprintf("account_codes[%d]", i), Message: "is required"})
		}
	}

	q := url.Values{}
	q.Set("tenant_id", c.tenantID)
	for _, code := range accountCodes {
		q.Add("account_codes", code)
	}

	rcpt, err := c.do(ctx, request{
		op:     "get_balances",
		method: http.MethodGet,
		path:   "accounts/balances",
		query:  q,
		accept: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	records := []domain.BalanceRecord{}
	if len(rcpt.Body) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(rcpt.Body, &records); err != nil {
		return nil, fmt.Errorf("get_balances: decode response: %w", err)
	}
	return records, nil
}
