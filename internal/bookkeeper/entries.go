package bookkeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/punchamoorthee/bookkeeper/internal/domain"
	"github.com/punchamoorthee/bookkeeper/internal/models"
)

// JournalReceipt is the outcome of an entry-creating call. JournalID is
// empty when the engine answered without a body.
type JournalReceipt struct {
	Receipt
	JournalID models.JournalID
}

// PostJournalEntry posts a balanced entry in one phase. A 200 answer is the
// engine replaying an earlier outcome for the same idempotency key.
func (c *Client) PostJournalEntry(ctx context.Context, e domain.Entry) (JournalReceipt, error) {
	return c.submit(ctx, "post_journal_entry", "journal-entries", e, 0,
		http.StatusCreated, http.StatusOK)
}

// CompoundTransfer applies any number of debit and credit legs atomically:
// every leg is applied or none is.
func (c *Client) CompoundTransfer(ctx context.Context, e domain.Entry) (JournalReceipt, error) {
	return c.submit(ctx, "compound_transfer", "transfers/compound", e, 0,
		http.StatusOK, http.StatusCreated, http.StatusNoContent)
}

// submit validates e and sends it. Nothing reaches the network when
// validation fails.
func (c *Client) submit(ctx context.Context, op, path string, e domain.Entry, timeoutSeconds int, accept ...int) (JournalReceipt, error) {
	if err := domain.ValidateEntry(e); err != nil {
		return JournalReceipt{}, fmt.Errorf("%s: %w", op, err)
	}

	payload := models.EntryRequest{
		TenantID:       c.tenantID,
		IdempotencyKey: e.IdempotencyKey,
		EntryDate:      c.entryDate(e.EntryDate),
		Narration:      e.Narration,
		DebitLegs:      e.DebitLegs,
		CreditLegs:     e.CreditLegs,
		TimeoutSeconds: timeoutSeconds,
	}
	rcpt, err := c.do(ctx, request{
		op:      op,
		method:  http.MethodPost,
		path:    path,
		payload: payload,
		accept:  accept,
	})
	if err != nil {
		return JournalReceipt{}, err
	}

	out := JournalReceipt{Receipt: rcpt}
	if len(rcpt.Body) == 0 || rcpt.StatusCode == http.StatusNoContent {
		return out, nil
	}
	var resp models.JournalResponse
	if err := json.Unmarshal(rcpt.Body, &resp); err != nil {
		return out, fmt.Errorf("%s: decode response: %w", op, err)
	}
	out.JournalID = resp.JournalID
	return out, nil
}
