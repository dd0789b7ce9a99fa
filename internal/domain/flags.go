package domain

import (
	"encoding/json"
	"fmt"
)

// Bit values understood by the ledger engine.
const (
	flagCreditsMustNotExceedDebits uint32 = 256
	flagDebitsMustNotExceedCredits uint32 = 512

	knownFlags = flagCreditsMustNotExceedDebits | flagDebitsMustNotExceedCredits
)

// AccountFlags is the set of balance-direction policies attached to an
// account. The client never interprets them; it only transports them. Bits
// it does not recognise survive a decode/encode round trip.
type AccountFlags struct {
	// CreditsMustNotExceedDebits caps the balance of asset-like accounts.
	CreditsMustNotExceedDebits bool
	// DebitsMustNotExceedCredits backs limiter accounts: a debit beyond the
	// credited allowance is rejected.
	DebitsMustNotExceedCredits bool

	other uint32
}

// FlagsFromBits decodes a raw engine bitmask.
func FlagsFromBits(bits uint32) AccountFlags {
	return AccountFlags{
		CreditsMustNotExceedDebits: bits&flagCreditsMustNotExceedDebits != 0,
		DebitsMustNotExceedCredits: bits&flagDebitsMustNotExceedCredits != 0,
		other:                      bits &^ knownFlags,
	}
}

// Bits encodes the set into the engine bitmask.
func (f AccountFlags) Bits() uint32 {
	bits := f.other
	if f.CreditsMustNotExceedDebits {
		bits |= flagCreditsMustNotExceedDebits
	}
	if f.DebitsMustNotExceedCredits {
		bits |= flagDebitsMustNotExceedCredits
	}
	return bits
}

func (f AccountFlags) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Bits())
}

func (f *AccountFlags) UnmarshalJSON(data []byte) error {
	var bits uint32
	if err := json.Unmarshal(data, &bits); err != nil {
		return fmt.Errorf("account flags: %w", err)
	}
	*f = FlagsFromBits(bits)
	return nil
}
