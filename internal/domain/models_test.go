package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountOmitsUnsetConstraints(t *testing.T) {
	data, err := json.Marshal(NewAccount("1001", "Cash", AccountTypeAsset))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "max_balance")
	assert.NotContains(t, raw, "flags")
	assert.Equal(t, "asset", raw["type"])
}

func TestAccountSendsExplicitZeroConstraints(t *testing.T) {
	acc := NewAccount("w", "Wallet", AccountTypeLiability).WithMaxBalance(0).WithFlags(AccountFlags{})
	data, err := json.Marshal(acc)
	require.NoError(t, err)

	assert.JSONEq(t, `{"code":"w","name":"Wallet","type":"liability","max_balance":0,"flags":0}`, string(data))
}

func TestAccountFlagsBits(t *testing.T) {
	assert.Equal(t, uint32(256), AccountFlags{CreditsMustNotExceedDebits: true}.Bits())
	assert.Equal(t, uint32(512), AccountFlags{DebitsMustNotExceedCredits: true}.Bits())
	assert.Equal(t, uint32(768), AccountFlags{CreditsMustNotExceedDebits: true, DebitsMustNotExceedCredits: true}.Bits())
}

func TestAccountFlagsKeepUnknownBits(t *testing.T) {
	var f AccountFlags
	require.NoError(t, json.Unmarshal([]byte(`513`), &f))

	assert.True(t, f.DebitsMustNotExceedCredits)
	assert.False(t, f.CreditsMustNotExceedDebits)

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, "513", string(out))
}

func TestAccountFlagsRejectNonNumeric(t *testing.T) {
	var f AccountFlags
	assert.Error(t, json.Unmarshal([]byte(`"512"`), &f))
}

func TestEntryDateForUsesUTC(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	late := time.Date(2024, 3, 1, 23, 30, 0, 0, est)

	assert.Equal(t, "2024-03-02", EntryDateFor(late))
}

func TestPendingKindResource(t *testing.T) {
	assert.Equal(t, "pending-journal-entries", PendingJournalEntry.Resource())
	assert.Equal(t, "pending-compound-transfers", PendingCompoundTransfer.Resource())
	assert.True(t, PendingStateExpired.Terminal())
	assert.False(t, PendingStatePending.Terminal())
}
