package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/punchamoorthee/bookkeeper/internal/domain"
)

// CreateAccountsRequest is the setup payload.
type CreateAccountsRequest struct {
	TenantID string           `json:"tenant_id"`
	Accounts []domain.Account `json:"accounts"`
}

// EntryRequest is the payload for journal entries, compound transfers and
// their pending variants. TimeoutSeconds is only sent for pending entries.
type EntryRequest struct {
	TenantID       string              `json:"tenant_id"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
	EntryDate      string              `json:"entry_date"`
	Narration      string              `json:"narration"`
	DebitLegs      []domain.JournalLeg `json:"debit_legs"`
	CreditLegs     []domain.JournalLeg `json:"credit_legs"`
	TimeoutSeconds int                 `json:"timeout_seconds,omitempty"`
}

// TenantRequest carries only the tenant, as commit and void do.
type TenantRequest struct {
	TenantID string `json:"tenant_id"`
}

// RefillRequest moves allowance from a source-of-funds account into capped
// accounts.
type RefillRequest struct {
	TenantID                 string                 `json:"tenant_id"`
	SourceOfFundsAccountCode string                 `json:"source_of_funds_account_code"`
	AccountsToRefill         []domain.RefillAccount `json:"accounts_to_refill"`
}

// CloseAccountRequest sweeps the remaining balance to a destination.
type CloseAccountRequest struct {
	TenantID               string `json:"tenant_id"`
	DestinationAccountCode string `json:"destination_account_code"`
	Currency               string `json:"currency"`
}

// JournalResponse is returned by every entry-creating call.
type JournalResponse struct {
	JournalID JournalID `json:"journal_id"`
	Status    string    `json:"status,omitempty"`
}

// CorrectionResponse is returned by the correct operation.
type CorrectionResponse struct {
	ReversalJournalID JournalID `json:"reversal_journal_id"`
}

// ErrorResponse is the engine's error envelope.
type ErrorResponse struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// IdempotencyRecord holds the stored outcome for a replayed key.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	ResponseBody   json.RawMessage
	ResponseStatus int
}

// JournalID is an engine-assigned identifier. Engines emit it either as a
// JSON string or as a bare number; both decode to the same text.
type JournalID string

func (id *JournalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = JournalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("journal id: %w", err)
	}
	*id = JournalID(n.String())
	return nil
}

func (id JournalID) String() string { return string(id) }
