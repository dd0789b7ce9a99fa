// Package idempotency keeps idempotency keys stable across retries. A key
// is bound to a caller-chosen operation reference the first time it is
// requested and returned unchanged on every later request for the same
// reference, including after a process restart when the store is durable.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/bookkeeper/internal/domain"
)

var ErrEmptyReference = errors.New("operation reference is required")

// Store binds operation references to keys.
type Store interface {
	// Reserve returns the key already bound to ref, or binds candidate and
	// returns it.
	Reserve(ctx context.Context, tenantID, ref, candidate string) (string, error)
}

// Guard hands out keys for one tenant.
type Guard struct {
	store    Store
	tenantID string
	newKey   func() string
	now      func() time.Time
}

func NewGuard(store Store, tenantID string) *Guard {
	return &Guard{store: store, tenantID: tenantID, newKey: NewKey, now: time.Now}
}

// NewKey generates a fresh random key.
func NewKey() string {
	return uuid.NewString()
}

// Key returns the key for ref.
func (g *Guard) Key(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmptyReference
	}
	key, err := g.store.Reserve(ctx, g.tenantID, ref, g.newKey())
	if err != nil {
		return "", fmt.Errorf("reserve idempotency key for %q: %w", ref, err)
	}
	return key, nil
}

// Stamp returns e carrying the key for ref. A key already set on e wins.
// An empty entry date is pinned to today (UTC) so that resending the
// stamped entry later produces the same payload; reuse the returned entry
// for every retry.
func (g *Guard) Stamp(ctx context.Context, ref string, e domain.Entry) (domain.Entry, error) {
	if e.EntryDate == "" {
		e.EntryDate = domain.EntryDateFor(g.now())
	}
	if e.IdempotencyKey != "" {
		return e, nil
	}
	key, err := g.Key(ctx, ref)
	if err != nil {
		return e, err
	}
	return e.WithIdempotencyKey(key), nil
}

// MemoryStore keeps bindings for the life of the process.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]string)}
}

func (s *MemoryStore) Reserve(_ context.Context, tenantID, ref, candidate string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := tenantID + "\x00" + ref
	if key, ok := s.keys[k]; ok {
		return key, nil
	}
	s.keys[k] = candidate
	return candidate, nil
}
