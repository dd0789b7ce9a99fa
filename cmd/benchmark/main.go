package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/bookkeeper/internal/bookkeeper"
	"github.com/punchamoorthee/bookkeeper/internal/config"
	"github.com/punchamoorthee/bookkeeper/internal/domain"
	"github.com/punchamoorthee/bookkeeper/internal/idempotency"
	"github.com/punchamoorthee/bookkeeper/internal/logger"
	"github.com/punchamoorthee/bookkeeper/internal/store"
)

// Config holds the benchmark settings
var (
	concurrency   int
	duration      time.Duration
	workload      string
	totalAccounts int
	replayRatio   float64
)

// Metrics
var (
	totalRequests uint64
	created       uint64 // 201
	replayed      uint64 // 200, idempotent replays
	rejected      uint64 // engine said no
	failTransport uint64
	failKeyStore  uint64 // key reservation failed, nothing sent
)

func init() {
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&totalAccounts, "accounts", 100, "Number of benchmark accounts")
	flag.Float64Var(&replayRatio, "replay", 0.1, "Share of requests resent with an already used idempotency key")
}

func main() {
	flag.Parse()
	if err := validateFlags(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	client, err := bookkeeper.FromConfig(cfg, zap.NewNop())
	if err != nil {
		log.Fatal("unable to build ledger client", zap.Error(err))
	}

	ctx := context.Background()
	keyStore, closeStore, err := store.OpenGuardStore(ctx, cfg.DBSource)
	if err != nil {
		log.Fatal("unable to open idempotency store", zap.Error(err))
	}
	defer closeStore()
	guard := idempotency.NewGuard(keyStore, client.TenantID())

	if err := setupAccounts(ctx, client); err != nil {
		log.Fatal("account setup failed", zap.Error(err))
	}

	log.Info("starting benchmark",
		zap.String("workload", workload),
		zap.Int("workers", concurrency),
		zap.Duration("duration", duration))

	runID := time.Now().UnixNano()
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(ctx, &wg, client, guard, fmt.Sprintf("bench-%d-w%d", runID, i), start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// validateFlags rejects settings the workers cannot run with.
func validateFlags() error {
	if totalAccounts < 2 {
		return fmt.Errorf("-accounts must be at least 2, got %d", totalAccounts)
	}
	if concurrency < 1 {
		return fmt.Errorf("-workers must be at least 1, got %d", concurrency)
	}
	if replayRatio < 0 || replayRatio > 1 {
		return fmt.Errorf("-replay must be within [0, 1], got %g", replayRatio)
	}
	return nil
}

func setupAccounts(ctx context.Context, client *bookkeeper.Client) error {
	accounts := make([]domain.Account, 0, totalAccounts)
	for i := 1; i <= totalAccounts; i++ {
		accounts = append(accounts, domain.NewAccount(accountCode(i), fmt.Sprintf("Benchmark %d", i), domain.AccountTypeAsset))
	}
	_, err := client.CreateAccounts(ctx, accounts...)
	return err
}

func worker(ctx context.Context, wg *sync.WaitGroup, client *bookkeeper.Client, guard *idempotency.Guard, prefix string, start time.Time) {
	defer wg.Done()

	var last *domain.Entry
	for seq := 0; time.Since(start) < duration; seq++ {
		entry := last
		if entry == nil || rand.Float64() >= replayRatio {
			from, to := generateAccounts()
			fresh := domain.Entry{
				Narration:  "benchmark transfer",
				DebitLegs:  []domain.JournalLeg{domain.Leg(accountCode(from), 100, "USD")},
				CreditLegs: []domain.JournalLeg{domain.Leg(accountCode(to), 100, "USD")},
			}
			stamped, err := guard.Stamp(ctx, fmt.Sprintf("%s-%d", prefix, seq), fresh)
			if err != nil {
				atomic.AddUint64(&failKeyStore, 1)
				continue
			}
			entry = &stamped
		}
		last = entry

		rcpt, err := client.PostJournalEntry(ctx, *entry)
		atomic.AddUint64(&totalRequests, 1)
		switch {
		case err == nil && rcpt.StatusCode == http.StatusOK:
			atomic.AddUint64(&replayed, 1)
		case err == nil:
			atomic.AddUint64(&created, 1)
		case errors.Is(err, domain.ErrTransport):
			atomic.AddUint64(&failTransport, 1)
		default:
			atomic.AddUint64(&rejected, 1)
		}
	}
}

func generateAccounts() (int, int) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes to Account 1 & 2
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return 1, 2
			}
			return 2, 1
		}
	}

	// Uniform Random
	a := rand.Intn(totalAccounts) + 1
	b := rand.Intn(totalAccounts) + 1
	for a == b {
		b = rand.Intn(totalAccounts) + 1
	}
	return a, b
}

func accountCode(i int) string {
	return fmt.Sprintf("bench-%04d", i)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	c := atomic.LoadUint64(&created)
	r := atomic.LoadUint64(&replayed)
	rej := atomic.LoadUint64(&rejected)
	fErr := atomic.LoadUint64(&failTransport)
	fKey := atomic.LoadUint64(&failKeyStore)

	var rejectRate float64
	if total > 0 {
		rejectRate = float64(rej) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":         workload,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   float64(total) / d.Seconds(),
		"success_created":  c,
		"success_replay":   r,
		"rejected":         rej,
		"reject_rate_pct":  rejectRate,
		"transport_errors": fErr,
		"key_store_errors": fKey,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
