package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/punchamoorthee/bookkeeper/internal/bookkeeper"
	"github.com/punchamoorthee/bookkeeper/internal/config"
	"github.com/punchamoorthee/bookkeeper/internal/domain"
	"github.com/punchamoorthee/bookkeeper/internal/idempotency"
	"github.com/punchamoorthee/bookkeeper/internal/logger"
	"github.com/punchamoorthee/bookkeeper/internal/models"
	"github.com/punchamoorthee/bookkeeper/internal/store"
	"github.com/punchamoorthee/bookkeeper/internal/tracing"
)

type runner struct {
	client *bookkeeper.Client
	guard  *idempotency.Guard
	log    *zap.Logger
	runID  string

	posted        domain.Entry
	postedJournal models.JournalID
	expiryWait    time.Duration
}

type scenario struct {
	name string
	run  func(ctx context.Context) error
}

func main() {
	expiryWait := flag.Duration("expiry-wait", 5*time.Second, "How long to wait for a 2s pending entry to expire")
	traceSpans := flag.Bool("trace", false, "Print client spans to stdout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	tp, shutdownTracing, err := tracing.Setup(*traceSpans)
	if err != nil {
		log.Fatal("unable to set up tracing", zap.Error(err))
	}

	client, err := bookkeeper.FromConfig(cfg, log,
		bookkeeper.WithTracerProvider(tp),
		bookkeeper.WithPropagator(tracing.Propagator()))
	if err != nil {
		log.Fatal("unable to build ledger client", zap.Error(err))
	}

	ctx := context.Background()
	defer shutdownTracing(ctx)
	keyStore, closeStore, err := store.OpenGuardStore(ctx, cfg.DBSource)
	if err != nil {
		log.Fatal("unable to open idempotency store", zap.Error(err))
	}
	defer closeStore()

	r := &runner{
		client:     client,
		guard:      idempotency.NewGuard(keyStore, client.TenantID()),
		log:        log,
		runID:      fmt.Sprintf("conformance-%d", time.Now().UnixNano()),
		expiryWait: *expiryWait,
	}

	if err := r.runAll(ctx); err != nil {
		log.Error("conformance failed", zap.Error(err))
		shutdownTracing(ctx)
		log.Sync()
		os.Exit(1)
	}
	log.Info("all scenarios passed")
}

func (r *runner) runAll(ctx context.Context) error {
	scenarios := []scenario{
		{"accounts", r.accounts},
		{"single-phase commit", r.singlePhase},
		{"idempotent replay", r.replay},
		{"two-phase commit", r.twoPhaseCommit},
		{"two-phase void", r.twoPhaseVoid},
		{"balances", r.balances},
		{"refill", r.refill},
		{"compound transfer", r.compound},
		{"correction", r.correction},
		{"unbalanced entry", r.unbalanced},
		{"pending timeout", r.pendingTimeout},
	}
	for _, s := range scenarios {
		r.log.Info("--- running scenario ---", zap.String("scenario", s.name))
		if err := s.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		r.log.Info("scenario passed", zap.String("scenario", s.name))
	}
	return nil
}

func (r *runner) sale(ctx context.Context, ref string, amount int64) (domain.Entry, error) {
	e := domain.Entry{
		Narration:  "conformance " + ref,
		DebitLegs:  []domain.JournalLeg{domain.Leg("1001", amount, "USD")},
		CreditLegs: []domain.JournalLeg{domain.Leg("4001", amount, "USD")},
	}
	return r.guard.Stamp(ctx, r.runID+"-"+ref, e)
}

func (r *runner) accounts(ctx context.Context) error {
	_, err := r.client.CreateAccounts(ctx,
		domain.NewAccount("1001", "Cash", domain.AccountTypeAsset),
		domain.NewAccount("4001", "Sales Revenue", domain.AccountTypeRevenue),
		domain.NewAccount("Wallet-Cust001", "Customer 001 Wallet", domain.AccountTypeLiability).WithMaxBalance(200000),
		domain.NewAccount("Wallet-Cust002", "Customer 002 Wallet", domain.AccountTypeLiability).WithMaxBalance(200000),
		domain.NewAccount("sys_rate_limiter_debit", "Rate Limiter Debit", domain.AccountTypeAsset),
		domain.NewAccount(bookkeeper.DefaultSourceOfFundsAccount, "Rate Limiter Credit", domain.AccountTypeLiability),
	)
	return err
}

func (r *runner) singlePhase(ctx context.Context) error {
	before, err := r.balanceOf(ctx, "1001", "4001")
	if err != nil {
		return err
	}
	e, err := r.sale(ctx, "single-phase", 1000)
	if err != nil {
		return err
	}
	rcpt, err := r.client.PostJournalEntry(ctx, e)
	if err != nil {
		return err
	}
	r.posted, r.postedJournal = e, rcpt.JournalID

	after, err := r.balanceOf(ctx, "1001", "4001")
	if err != nil {
		return err
	}
	for _, code := range []string{"1001", "4001"} {
		if delta := after[code].Sub(before[code]); !delta.Equal(decimal.NewFromInt(1000)) {
			r.log.Warn("balance delta differs (reads may lag)", zap.String("account", code), zap.String("delta", delta.String()))
		}
	}
	return nil
}

// replay resends the single-phase entry exactly as first stamped.
func (r *runner) replay(ctx context.Context) error {
	rcpt, err := r.client.PostJournalEntry(ctx, r.posted)
	if err != nil {
		return err
	}
	if rcpt.JournalID != r.postedJournal {
		return fmt.Errorf("replay produced journal %s, want %s", rcpt.JournalID, r.postedJournal)
	}
	return nil
}

func (r *runner) twoPhaseCommit(ctx context.Context) error {
	e, err := r.sale(ctx, "commit", 500)
	if err != nil {
		return err
	}
	p, err := r.client.CreatePendingJournalEntry(ctx, e, 60)
	if err != nil {
		return err
	}
	return r.client.Commit(ctx, p)
}

func (r *runner) twoPhaseVoid(ctx context.Context) error {
	e, err := r.sale(ctx, "void", 250)
	if err != nil {
		return err
	}
	p, err := r.client.CreatePendingJournalEntry(ctx, e, 60)
	if err != nil {
		return err
	}
	if err := r.client.Void(ctx, p); err != nil {
		return err
	}
	if err := r.client.Commit(ctx, p); !errors.Is(err, domain.ErrConflict) {
		return fmt.Errorf("commit after void: got %v, want conflict", err)
	}
	return nil
}

func (r *runner) compound(ctx context.Context) error {
	e := domain.Entry{
		Narration: "conformance compound purchase",
		DebitLegs: []domain.JournalLeg{
			domain.Leg("1001", 300, "USD"),
			domain.Leg("sys_rate_limiter_debit", 1, "USD"),
		},
		CreditLegs: []domain.JournalLeg{
			domain.Leg("4001", 300, "USD"),
			domain.Leg(bookkeeper.DefaultSourceOfFundsAccount, 1, "USD"),
		},
	}
	e, err := r.guard.Stamp(ctx, r.runID+"-compound", e)
	if err != nil {
		return err
	}
	_, err = r.client.CompoundTransfer(ctx, e)
	return err
}

func (r *runner) balances(ctx context.Context) error {
	records, err := r.client.Balances(ctx, "1001", "4001", "Wallet-Cust001")
	if err != nil {
		return err
	}
	r.log.Info("retrieved balances", zap.Int("count", len(records)))

	empty, err := r.client.Balances(ctx)
	if err != nil || len(empty) != 0 {
		return fmt.Errorf("empty query: records=%d err=%v", len(empty), err)
	}
	return nil
}

func (r *runner) refill(ctx context.Context) error {
	_, err := r.client.Refill(ctx, bookkeeper.DefaultSourceOfFundsAccount,
		domain.RefillAccount{AccountCode: "sys_rate_limiter_debit", Amount: 10000, Currency: "USD"})
	return err
}

func (r *runner) correction(ctx context.Context) error {
	rcpt, err := r.client.Correct(ctx, r.postedJournal)
	if err != nil {
		return err
	}
	r.log.Info("created reversal journal entry", zap.String("reversal_journal_id", rcpt.ReversalJournalID.String()))
	return nil
}

func (r *runner) unbalanced(ctx context.Context) error {
	e := domain.Entry{
		Narration:  "unbalanced entry test",
		DebitLegs:  []domain.JournalLeg{domain.Leg("1001", 100, "USD")},
		CreditLegs: []domain.JournalLeg{domain.Leg("4001", 50, "USD")},
	}
	_, err := r.client.PostJournalEntry(ctx, e)
	var violation *domain.BalanceInvariantViolation
	if !errors.As(err, &violation) {
		return fmt.Errorf("got %v, want balance invariant violation", err)
	}
	return nil
}

func (r *runner) pendingTimeout(ctx context.Context) error {
	e, err := r.sale(ctx, "timeout", 100)
	if err != nil {
		return err
	}
	p, err := r.client.CreatePendingJournalEntry(ctx, e, 2)
	if err != nil {
		return err
	}
	r.log.Info("waiting for pending entry to expire", zap.String("journal_id", p.JournalID.String()), zap.Duration("wait", r.expiryWait))
	time.Sleep(r.expiryWait)

	err = r.client.Commit(ctx, p)
	if !errors.Is(err, domain.ErrExpiredEntry) {
		return fmt.Errorf("commit after expiry: got %v, want expired", err)
	}
	return nil
}

func (r *runner) balanceOf(ctx context.Context, codes ...string) (map[string]decimal.Decimal, error) {
	records, err := r.client.Balances(ctx, codes...)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(codes))
	for _, rec := range records {
		if rec.Currency == "USD" || rec.Currency == "" {
			out[rec.AccountCode] = out[rec.AccountCode].Add(rec.Balance)
		}
	}
	return out, nil
}
