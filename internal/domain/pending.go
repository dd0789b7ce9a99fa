package domain

// PendingState is the lifecycle of a two-phase entry.
//
//	pending -> committed | voided | expired
//
// Terminal states have no outgoing transitions. Expiry is decided by the
// engine's clock and is only observed through a failed commit or void.
type PendingState string

const (
	PendingStatePending   PendingState = "pending"
	PendingStateCommitted PendingState = "committed"
	PendingStateVoided    PendingState = "voided"
	PendingStateExpired   PendingState = "expired"
)

// Terminal reports whether no further transition is possible.
func (s PendingState) Terminal() bool {
	switch s {
	case PendingStateCommitted, PendingStateVoided, PendingStateExpired:
		return true
	}
	return false
}

// PendingKind selects which engine resource backs a two-phase entry.
type PendingKind int

const (
	PendingJournalEntry PendingKind = iota
	PendingCompoundTransfer
)

// Resource is the engine collection path for the kind.
func (k PendingKind) Resource() string {
	if k == PendingCompoundTransfer {
		return "pending-compound-transfers"
	}
	return "pending-journal-entries"
}

func (k PendingKind) String() string {
	if k == PendingCompoundTransfer {
		return "pending compound transfer"
	}
	return "pending journal entry"
}
