package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bookkeeper/internal/bookkeeper"
	"github.com/punchamoorthee/bookkeeper/internal/idempotency"
	"github.com/punchamoorthee/bookkeeper/internal/sandbox"
)

type brokenStore struct{}

func (brokenStore) Reserve(context.Context, string, string, string) (string, error) {
	return "", errors.New("connection refused")
}

// resetRun restores the flag defaults and zeroes the counters.
func resetRun(t *testing.T) {
	t.Helper()
	concurrency, duration, workload, totalAccounts, replayRatio = 1, 50*time.Millisecond, "uniform", 4, 0.5
	for _, c := range []*uint64{&totalRequests, &created, &replayed, &rejected, &failTransport, &failKeyStore} {
		atomic.StoreUint64(c, 0)
	}
}

func newSandboxClient(t *testing.T) (*bookkeeper.Client, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	router := sandbox.NewHandler(sandbox.NewEngine(), nil).Router(bookkeeper.DefaultAPIPrefix)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := bookkeeper.New(srv.URL, "", "bench-tenant")
	require.NoError(t, err)
	return client, &hits
}

func runWorker(client *bookkeeper.Client, guard *idempotency.Guard) {
	var wg sync.WaitGroup
	wg.Add(1)
	worker(context.Background(), &wg, client, guard, "w0", time.Now())
	wg.Wait()
}

func TestValidateFlags(t *testing.T) {
	resetRun(t)
	assert.NoError(t, validateFlags())

	for _, n := range []int{1, 0, -3} {
		totalAccounts = n
		assert.Error(t, validateFlags(), n)
	}

	resetRun(t)
	replayRatio = 1.5
	assert.Error(t, validateFlags())
}

func TestGenerateAccountsPicksDistinctPair(t *testing.T) {
	resetRun(t)
	totalAccounts = 2
	for i := 0; i < 100; i++ {
		a, b := generateAccounts()
		assert.NotEqual(t, a, b)
		assert.True(t, a >= 1 && a <= 2 && b >= 1 && b <= 2)
	}
}

func TestKeyStoreFailuresAreNotTransportFailures(t *testing.T) {
	resetRun(t)
	client, hits := newSandboxClient(t)

	runWorker(client, idempotency.NewGuard(brokenStore{}, client.TenantID()))

	assert.NotZero(t, atomic.LoadUint64(&failKeyStore))
	assert.Zero(t, atomic.LoadUint64(&failTransport))
	assert.Zero(t, atomic.LoadUint64(&totalRequests))
	assert.Zero(t, hits.Load())
}

func TestWorkerCountsCreatedAndReplayed(t *testing.T) {
	resetRun(t)
	client, _ := newSandboxClient(t)
	require.NoError(t, setupAccounts(context.Background(), client))

	runWorker(client, idempotency.NewGuard(idempotency.NewMemoryStore(), client.TenantID()))

	total := atomic.LoadUint64(&totalRequests)
	require.NotZero(t, total)
	assert.NotZero(t, atomic.LoadUint64(&created))
	assert.Zero(t, atomic.LoadUint64(&failTransport))
	assert.Zero(t, atomic.LoadUint64(&failKeyStore))
	assert.Equal(t, total, atomic.LoadUint64(&created)+atomic.LoadUint64(&replayed)+atomic.LoadUint64(&rejected))
}
