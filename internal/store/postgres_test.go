package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bookkeeper/internal/idempotency"
)

// openTestStore needs a reachable PostgreSQL in DB_SOURCE.
func openTestStore(t *testing.T) *KeyStore {
	t.Helper()
	dsn := os.Getenv("DB_SOURCE")
	if dsn == "" {
		t.Skip("DB_SOURCE not set")
	}
	ctx := context.Background()
	ks, err := NewKeyStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(ks.Close)
	require.NoError(t, ks.EnsureSchema(ctx))
	return ks
}

func TestReserveKeepsFirstBinding(t *testing.T) {
	ks := openTestStore(t)
	ctx := context.Background()
	ref := fmt.Sprintf("ref-%d", time.Now().UnixNano())

	first, err := ks.Reserve(ctx, "tenant-a", ref, "key-1")
	require.NoError(t, err)
	second, err := ks.Reserve(ctx, "tenant-a", ref, "key-2")
	require.NoError(t, err)

	assert.Equal(t, "key-1", first)
	assert.Equal(t, "key-1", second)
}

func TestReserveRaceHasOneWinner(t *testing.T) {
	ks := openTestStore(t)
	ctx := context.Background()
	ref := fmt.Sprintf("race-%d", time.Now().UnixNano())

	keys := make([]string, 10)
	var wg sync.WaitGroup
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k, err := ks.Reserve(ctx, "tenant-a", ref, fmt.Sprintf("key-%d", i))
			assert.NoError(t, err)
			keys[i] = k
		}(i)
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, keys[0], k)
	}
}

func TestGuardSurvivesRestart(t *testing.T) {
	ks := openTestStore(t)
	ctx := context.Background()
	ref := fmt.Sprintf("restart-%d", time.Now().UnixNano())

	before, err := idempotency.NewGuard(ks, "tenant-a").Key(ctx, ref)
	require.NoError(t, err)

	reopened, err := NewKeyStore(ctx, os.Getenv("DB_SOURCE"))
	require.NoError(t, err)
	defer reopened.Close()

	after, err := idempotency.NewGuard(reopened, "tenant-a").Key(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOpenGuardStoreFallsBackToMemory(t *testing.T) {
	s, closeFn, err := OpenGuardStore(context.Background(), "")
	require.NoError(t, err)
	defer closeFn()

	_, ok := s.(*idempotency.MemoryStore)
	assert.True(t, ok)
}
