package bookkeeper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/punchamoorthee/bookkeeper/internal/domain"
	"github.com/punchamoorthee/bookkeeper/internal/models"
)

// PendingEntry is the caller's handle on a two-phase entry. State is the
// last state this handle observed; the engine may already have expired an
// entry the handle still sees as pending. A handle is not safe for
// concurrent use; the engine arbitrates between competing handles.
type PendingEntry struct {
	JournalID      models.JournalID
	Kind           domain.PendingKind
	TimeoutSeconds int
	State          domain.PendingState
	Receipt        Receipt
}

// CreatePending reserves e for up to timeoutSeconds. The engine starts the
// expiry clock on arrival.
func (c *Client) CreatePending(ctx context.Context, kind domain.PendingKind, e domain.Entry, timeoutSeconds int) (*PendingEntry, error) {
	op := "create_" + operationSuffix(kind)
	if err := domain.ValidateTimeout(timeoutSeconds); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rcpt, err := c.submit(ctx, op, kind.Resource(), e, timeoutSeconds,
		http.StatusAccepted, http.StatusOK)
	if err != nil {
		return nil, err
	}
	if rcpt.JournalID == "" {
		return nil, fmt.Errorf("%s: engine returned no journal id", op)
	}
	return &PendingEntry{
		JournalID:      rcpt.JournalID,
		Kind:           kind,
		TimeoutSeconds: timeoutSeconds,
		State:          domain.PendingStatePending,
		Receipt:        rcpt.Receipt,
	}, nil
}

// CreatePendingJournalEntry is CreatePending for a plain journal entry.
func (c *Client) CreatePendingJournalEntry(ctx context.Context, e domain.Entry, timeoutSeconds int) (*PendingEntry, error) {
	return c.CreatePending(ctx, domain.PendingJournalEntry, e, timeoutSeconds)
}

// CreatePendingCompoundTransfer is CreatePending for a compound transfer.
func (c *Client) CreatePendingCompoundTransfer(ctx context.Context, e domain.Entry, timeoutSeconds int) (*PendingEntry, error) {
	return c.CreatePending(ctx, domain.PendingCompoundTransfer, e, timeoutSeconds)
}

// Commit finalizes p. Funds move exactly as a direct post of the same legs.
func (c *Client) Commit(ctx context.Context, p *PendingEntry) error {
	return c.transition(ctx, p, "commit", domain.PendingStateCommitted)
}

// Void releases p. No funds move and any reserved capacity is freed.
func (c *Client) Void(ctx context.Context, p *PendingEntry) error {
	return c.transition(ctx, p, "void", domain.PendingStateVoided)
}

// CommitPending commits by id, for callers that did not keep a handle.
func (c *Client) CommitPending(ctx context.Context, kind domain.PendingKind, journalID models.JournalID) (Receipt, error) {
	return c.resolve(ctx, kind, journalID, "commit")
}

// VoidPending voids by id, for callers that did not keep a handle.
func (c *Client) VoidPending(ctx context.Context, kind domain.PendingKind, journalID models.JournalID) (Receipt, error) {
	return c.resolve(ctx, kind, journalID, "void")
}

func (c *Client) transition(ctx context.Context, p *PendingEntry, action string, target domain.PendingState) error {
	if p == nil || p.JournalID == "" {
		return &domain.ValidationError{Field: "journal_id", Message: "is required"}
	}
	if p.State.Terminal() {
		return fmt.Errorf("%s %s %s: handle is %s: %w", action, p.Kind, p.JournalID, p.State, domain.ErrConflict)
	}

	_, err := c.resolve(ctx, p.Kind, p.JournalID, action)
	switch {
	case err == nil:
		p.State = target
	case errors.Is(err, domain.ErrExpiredEntry):
		p.State = domain.PendingStateExpired
	}
	return err
}

func (c *Client) resolve(ctx context.Context, kind domain.PendingKind, journalID models.JournalID, action string) (Receipt, error) {
	op := action + "_" + operationSuffix(kind)
	if journalID == "" {
		return Receipt{}, fmt.Errorf("%s: %w", op, &domain.ValidationError{Field: "journal_id", Message: "is required"})
	}
	return c.do(ctx, request{
		op:       op,
		method:   http.MethodPost,
		path:     kind.Resource() + "/" + url.PathEscape(journalID.String()) + "/" + action,
		payload:  models.TenantRequest{TenantID: c.tenantID},
		accept:   []int{http.StatusOK, http.StatusNoContent},
		classify: c.resolutionKind,
	})
}

func operationSuffix(kind domain.PendingKind) string {
	if kind == domain.PendingCompoundTransfer {
		return "pending_compound_transfer"
	}
	return "pending_journal_entry"
}
