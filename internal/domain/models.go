package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is forwarded verbatim; the ledger engine owns its validation.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
	AccountTypeEquity    AccountType = "equity"
)

// Account describes a ledger account as submitted at setup time.
// MaxBalance and Flags are nil when no constraint applies.
type Account struct {
	Code       string        `json:"code" validate:"required"`
	Name       string        `json:"name" validate:"required"`
	Type       AccountType   `json:"type"`
	MaxBalance *int64        `json:"max_balance,omitempty"`
	Flags      *AccountFlags `json:"flags,omitempty"`
}

// NewAccount builds an unconstrained account.
func NewAccount(code, name string, typ AccountType) Account {
	return Account{Code: code, Name: name, Type: typ}
}

// WithMaxBalance returns a copy of a with an upper balance bound.
func (a Account) WithMaxBalance(max int64) Account {
	a.MaxBalance = &max
	return a
}

// WithFlags returns a copy of a carrying the given policy flags.
func (a Account) WithFlags(f AccountFlags) Account {
	a.Flags = &f
	return a
}

// JournalLeg is one debit or credit movement, in minor currency units.
type JournalLeg struct {
	AccountCode string `json:"account_code" validate:"required"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Currency    string `json:"currency" validate:"required"`
}

// Leg is shorthand for building a JournalLeg.
func Leg(accountCode string, amount int64, currency string) JournalLeg {
	return JournalLeg{AccountCode: accountCode, Amount: amount, Currency: currency}
}

// Entry is a balanced set of legs posted as one unit. The same shape backs
// plain journal entries, compound transfers and their pending variants.
type Entry struct {
	EntryDate      string       `validate:"omitempty,datetime=2006-01-02"`
	Narration      string
	DebitLegs      []JournalLeg `validate:"required,min=1,dive"`
	CreditLegs     []JournalLeg `validate:"required,min=1,dive"`
	IdempotencyKey string
}

// WithIdempotencyKey returns a copy of e tagged with key. The key must stay
// the same for every retry of the same logical operation.
func (e Entry) WithIdempotencyKey(key string) Entry {
	e.IdempotencyKey = key
	return e
}

// RefillAccount tops up a capped account from a source-of-funds account.
type RefillAccount struct {
	AccountCode string `json:"account_code" validate:"required"`
	Amount      int64  `json:"amount" validate:"gt=0"`
	Currency    string `json:"currency" validate:"required"`
}

// BalanceRecord is one account balance as reported by the engine. Totals
// other than Balance are zero when the engine does not report them.
type BalanceRecord struct {
	AccountCode    string          `json:"account_code"`
	Currency       string          `json:"currency,omitempty"`
	Balance        decimal.Decimal `json:"balance"`
	DebitsPosted   decimal.Decimal `json:"debits_posted"`
	CreditsPosted  decimal.Decimal `json:"credits_posted"`
	DebitsPending  decimal.Decimal `json:"debits_pending"`
	CreditsPending decimal.Decimal `json:"credits_pending"`
}

// EntryDateLayout is the calendar-date format the engine expects.
const EntryDateLayout = "2006-01-02"

// EntryDateFor formats the UTC calendar date of t. The server's local
// timezone never affects the result.
func EntryDateFor(t time.Time) string {
	return t.UTC().Format(EntryDateLayout)
}
