package bookkeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/punchamoorthee/bookkeeper/internal/domain"
	"github.com/punchamoorthee/bookkeeper/internal/models"
)

const (
	DefaultSourceOfFundsAccount = "sys_rate_limiter_credit"
	DefaultCloseDestination     = "PAYABLES_EXTERNAL"
	DefaultCloseCurrency        = "INR"
)

// CreateAccounts sets up accounts. Flags and max balance are sent only when
// set on the account.
func (c *Client) CreateAccounts(ctx context.Context, accounts ...domain.Account) (Receipt, error) {
	if len(accounts) == 0 {
		return Receipt{}, fmt.Errorf("create_accounts: %w",
			&domain.ValidationError{Field: "accounts", Message: "at least one account is required"})
	}
	for i, acc := range accounts {
		if err := domain.ValidateAccount(acc); err != nil {
			return Receipt{}, fmt.Errorf("create_accounts: accounts[%d]: %w", i, err)
		}
	}
	return c.do(ctx, request{
		op:      "create_accounts",
		method:  http.MethodPost,
		path:    "accounts",
		payload: models.CreateAccountsRequest{TenantID: c.tenantID, Accounts: accounts},
		accept:  []int{http.StatusOK, http.StatusCreated, http.StatusNoContent},
	})
}

// Refill moves allowance from source into capped accounts as an ordinary
// balanced transfer. An empty source selects DefaultSourceOfFundsAccount.
func (c *Client) Refill(ctx context.Context, source string, accounts ...domain.RefillAccount) (Receipt, error) {
	if source == "" {
		source = DefaultSourceOfFundsAccount
	}
	if err := domain.ValidateRefill(source, accounts); err != nil {
		return Receipt{}, fmt.Errorf("refill_limiter_accounts: %w", err)
	}
	return c.do(ctx, request{
		op:     "refill_limiter_accounts",
		method: http.MethodPost,
		path:   "admin/limiter-accounts/refill",
		payload: models.RefillRequest{
			TenantID:                 c.tenantID,
			SourceOfFundsAccountCode: source,
			AccountsToRefill:         accounts,
		},
		accept: []int{http.StatusNoContent, http.StatusOK},
	})
}

// CloseAccount sweeps the remaining balance of code into destination and
// closes it for good. Empty destination or currency take the defaults.
func (c *Client) CloseAccount(ctx context.Context, code, destination, currency string) (Receipt, error) {
	if code == "" {
		return Receipt{}, fmt.Errorf("close_account: %w",
			&domain.ValidationError{Field: "account_code", Message: "is required"})
	}
	if destination == "" {
		destination = DefaultCloseDestination
	}
	if currency == "" {
		currency = DefaultCloseCurrency
	}
	if destination == code {
		return Receipt{}, fmt.Errorf("close_account: %w",
			&domain.ValidationError{Field: "destination_account_code", Message: "must differ from the closed account"})
	}
	return c.do(ctx, request{
		op:     "close_account",
		method: http.MethodPost,
		path:   "accounts/" + url.PathEscape(code) + "/close",
		payload: models.CloseAccountRequest{
			TenantID:               c.tenantID,
			DestinationAccountCode: destination,
			Currency:               currency,
		},
		accept: []int{http.StatusOK, http.StatusNoContent},
	})
}

// CorrectionReceipt carries the id of the reversing entry.
type CorrectionReceipt struct {
	Receipt
	ReversalJournalID models.JournalID
}

// Correct posts a new entry reversing journalID. The original entry is
// never modified.
func (c *Client) Correct(ctx context.Context, journalID models.JournalID) (CorrectionReceipt, error) {
	if journalID == "" {
		return CorrectionReceipt{}, fmt.Errorf("correct_journal_entry: %w",
			&domain.ValidationError{Field: "journal_id", Message: "is required"})
	}
	q := url.Values{}
	q.Set("tenant_id", c.tenantID)

	rcpt, err := c.do(ctx, request{
		op:     "correct_journal_entry",
		method: http.MethodPost,
		path:   "admin/journal-entries/" + url.PathEscape(journalID.String()) + "/correct",
		query:  q,
		accept: []int{http.StatusOK, http.StatusCreated},
	})
	if err != nil {
		return CorrectionReceipt{}, err
	}

	var resp models.CorrectionResponse
	if err := json.Unmarshal(rcpt.Body, &resp); err != nil {
		return CorrectionReceipt{}, fmt.Errorf("correct_journal_entry: decode response: %w", err)
	}
	if resp.ReversalJournalID == "" || resp.ReversalJournalID == journalID {
		return CorrectionReceipt{}, fmt.Errorf("correct_journal_entry: engine returned reversal id %q for %q: %w",
			resp.ReversalJournalID, journalID, domain.ErrRejected)
	}
	return CorrectionReceipt{Receipt: rcpt, ReversalJournalID: resp.ReversalJournalID}, nil
}
