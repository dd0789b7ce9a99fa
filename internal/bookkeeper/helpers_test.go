package bookkeeper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/bookkeeper/internal/bookkeeper"
	"github.com/punchamoorthee/bookkeeper/internal/domain"
	"github.com/punchamoorthee/bookkeeper/internal/sandbox"
)

const tenant = "tenant-test"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type ledger struct {
	client   *bookkeeper.Client
	clock    *fakeClock
	requests atomic.Int64
	server   *httptest.Server
}

// newLedger serves a fresh sandbox engine and points a client at it.
func newLedger(t *testing.T, opts ...bookkeeper.Option) *ledger {
	t.Helper()

	l := &ledger{clock: newFakeClock()}
	engine := sandbox.NewEngine(sandbox.WithClock(l.clock.Now))
	router := sandbox.NewHandler(engine, nil).Router(bookkeeper.DefaultAPIPrefix)
	l.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.requests.Add(1)
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(l.server.Close)

	opts = append([]bookkeeper.Option{bookkeeper.WithClock(l.clock.Now)}, opts...)
	client, err := bookkeeper.New(l.server.URL, "", tenant, opts...)
	require.NoError(t, err)
	l.client = client
	return l
}

func (l *ledger) setup(t *testing.T, accounts ...domain.Account) {
	t.Helper()
	_, err := l.client.CreateAccounts(context.Background(), accounts...)
	require.NoError(t, err)
}

func (l *ledger) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	records, err := l.client.Balances(context.Background(), code)
	require.NoError(t, err)
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.Balance)
	}
	return total
}

func (l *ledger) record(t *testing.T, code string) domain.BalanceRecord {
	t.Helper()
	records, err := l.client.Balances(context.Background(), code)
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

func salesAccounts() []domain.Account {
	return []domain.Account{
		domain.NewAccount("1001", "Cash", domain.AccountTypeAsset),
		domain.NewAccount("4001", "Sales Revenue", domain.AccountTypeRevenue),
	}
}

func limiterAccounts() []domain.Account {
	return []domain.Account{
		domain.NewAccount("limiter", "Limiter", domain.AccountTypeAsset).
			WithFlags(domain.AccountFlags{DebitsMustNotExceedCredits: true}),
		domain.NewAccount(bookkeeper.DefaultSourceOfFundsAccount, "Limiter Source", domain.AccountTypeLiability),
		domain.NewAccount("usage", "Usage", domain.AccountTypeExpense),
	}
}

func sale(amount int64) domain.Entry {
	return domain.Entry{
		Narration:  "sale",
		DebitLegs:  []domain.JournalLeg{domain.Leg("1001", amount, "USD")},
		CreditLegs: []domain.JournalLeg{domain.Leg("4001", amount, "USD")},
	}
}

// consume debits the limiter into usage.
func consume(amount int64) domain.Entry {
	return domain.Entry{
		Narration:  "api call",
		DebitLegs:  []domain.JournalLeg{domain.Leg("limiter", amount, "CALLS")},
		CreditLegs: []domain.JournalLeg{domain.Leg("usage", amount, "CALLS")},
	}
}
