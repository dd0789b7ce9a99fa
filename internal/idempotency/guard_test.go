package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bookkeeper/internal/domain"
)

func TestKeyIsStablePerReference(t *testing.T) {
	g := NewGuard(NewMemoryStore(), "tenant-a")
	ctx := context.Background()

	first, err := g.Key(ctx, "order-1")
	require.NoError(t, err)
	again, err := g.Key(ctx, "order-1")
	require.NoError(t, err)
	other, err := g.Key(ctx, "order-2")
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, other)
}

func TestKeysAreScopedByTenant(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a, err := NewGuard(store, "tenant-a").Key(ctx, "order-1")
	require.NoError(t, err)
	b, err := NewGuard(store, "tenant-b").Key(ctx, "order-1")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestKeyRequiresReference(t *testing.T) {
	g := NewGuard(NewMemoryStore(), "tenant-a")
	_, err := g.Key(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestConcurrentReservationsAgree(t *testing.T) {
	g := NewGuard(NewMemoryStore(), "tenant-a")

	keys := make([]string, 16)
	var wg sync.WaitGroup
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], _ = g.Key(context.Background(), "order-1")
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
}

func TestStampPinsDateAndKey(t *testing.T) {
	g := NewGuard(NewMemoryStore(), "tenant-a")
	g.now = func() time.Time { return time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC) }
	ctx := context.Background()

	e := domain.Entry{
		DebitLegs:  []domain.JournalLeg{domain.Leg("1001", 1, "USD")},
		CreditLegs: []domain.JournalLeg{domain.Leg("4001", 1, "USD")},
	}
	first, err := g.Stamp(ctx, "order-1", e)
	require.NoError(t, err)

	// A retry after midnight still carries the original date.
	g.now = func() time.Time { return time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC) }
	retry, err := g.Stamp(ctx, "order-1", e)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-01", first.EntryDate)
	assert.NotEmpty(t, first.IdempotencyKey)
	assert.Equal(t, first.IdempotencyKey, retry.IdempotencyKey)

	resent, err := g.Stamp(ctx, "order-1", first)
	require.NoError(t, err)
	assert.Equal(t, first, resent)
}

func TestStampKeepsCallerKey(t *testing.T) {
	g := NewGuard(NewMemoryStore(), "tenant-a")
	e := domain.Entry{IdempotencyKey: "mine", EntryDate: "2024-01-01"}

	out, err := g.Stamp(context.Background(), "order-1", e)
	require.NoError(t, err)
	assert.Equal(t, "mine", out.IdempotencyKey)
}

type failingStore struct{}

func (failingStore) Reserve(context.Context, string, string, string) (string, error) {
	return "", errors.New("store down")
}

func TestStampSurfacesStoreErrors(t *testing.T) {
	g := NewGuard(failingStore{}, "tenant-a")
	_, err := g.Stamp(context.Background(), "order-1", domain.Entry{})
	assert.ErrorContains(t, err, "store down")
}
