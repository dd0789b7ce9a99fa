package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sale(debit, credit int64) Entry {
	return Entry{
		Narration:  "sale",
		DebitLegs:  []JournalLeg{Leg("1001", debit, "USD")},
		CreditLegs: []JournalLeg{Leg("4001", credit, "USD")},
	}
}

func TestValidateEntryAcceptsBalancedLegs(t *testing.T) {
	require.NoError(t, ValidateEntry(sale(1000, 1000)))
}

func TestValidateEntryRejectsUnbalancedLegs(t *testing.T) {
	err := ValidateEntry(sale(100, 50))

	var violation *BalanceInvariantViolation
	require.ErrorAs(t, err, &violation)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "USD", violation.Currency)
	assert.Equal(t, "100", violation.Debits.String())
	assert.Equal(t, "50", violation.Credits.String())
}

func TestCheckBalanceIsPerCurrency(t *testing.T) {
	// 100 USD + 50 EUR against 50 USD + 100 EUR nets to zero overall but
	// is unbalanced in each currency.
	debits := []JournalLeg{Leg("1001", 100, "USD"), Leg("1002", 50, "EUR")}
	credits := []JournalLeg{Leg("4001", 50, "USD"), Leg("4002", 100, "EUR")}

	var violation *BalanceInvariantViolation
	require.ErrorAs(t, CheckBalance(debits, credits), &violation)
	assert.Equal(t, "EUR", violation.Currency)
}

func TestCheckBalanceMultiLeg(t *testing.T) {
	debits := []JournalLeg{Leg("1001", 700, "USD"), Leg("limiter", 1, "CALLS")}
	credits := []JournalLeg{Leg("4001", 500, "USD"), Leg("2001", 200, "USD"), Leg("limiter_src", 1, "CALLS")}

	assert.NoError(t, CheckBalance(debits, credits))
}

func TestValidateEntryRejectsMalformedLegs(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
		field string
	}{
		{"zero amount", sale(0, 0), "DebitLegs[0].amount"},
		{"negative amount", Entry{
			DebitLegs:  []JournalLeg{Leg("1001", -5, "USD")},
			CreditLegs: []JournalLeg{Leg("4001", -5, "USD")},
		}, "DebitLegs[0].amount"},
		{"empty account", Entry{
			DebitLegs:  []JournalLeg{Leg("1001", 5, "USD")},
			CreditLegs: []JournalLeg{Leg("", 5, "USD")},
		}, "CreditLegs[0].account_code"},
		{"empty currency", Entry{
			DebitLegs:  []JournalLeg{Leg("1001", 5, "")},
			CreditLegs: []JournalLeg{Leg("4001", 5, "USD")},
		}, "DebitLegs[0].currency"},
		{"no credit legs", Entry{
			DebitLegs: []JournalLeg{Leg("1001", 5, "USD")},
		}, "CreditLegs"},
		{"bad date", Entry{
			EntryDate:  "01/02/2024",
			DebitLegs:  []JournalLeg{Leg("1001", 5, "USD")},
			CreditLegs: []JournalLeg{Leg("4001", 5, "USD")},
		}, "EntryDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEntry(tt.entry)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateRefill(t *testing.T) {
	ok := []RefillAccount{{AccountCode: "limiter", Amount: 10, Currency: "USD"}}

	assert.NoError(t, ValidateRefill("src", ok))
	assert.ErrorIs(t, ValidateRefill("", ok), ErrValidation)
	assert.ErrorIs(t, ValidateRefill("src", nil), ErrValidation)
	assert.ErrorIs(t, ValidateRefill("src", []RefillAccount{{AccountCode: "limiter", Amount: 0, Currency: "USD"}}), ErrValidation)
}

func TestValidateTimeout(t *testing.T) {
	assert.NoError(t, ValidateTimeout(2))
	assert.ErrorIs(t, ValidateTimeout(0), ErrValidation)
	assert.ErrorIs(t, ValidateTimeout(-1), ErrValidation)
}

func TestValidateAccountDoesNotCheckType(t *testing.T) {
	assert.NoError(t, ValidateAccount(NewAccount("x", "X", "made-up")))
	assert.ErrorIs(t, ValidateAccount(NewAccount("", "X", AccountTypeAsset)), ErrValidation)
}
