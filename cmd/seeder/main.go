package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/punchamoorthee/bookkeeper/internal/bookkeeper"
	"github.com/punchamoorthee/bookkeeper/internal/config"
	"github.com/punchamoorthee/bookkeeper/internal/domain"
	"github.com/punchamoorthee/bookkeeper/internal/logger"
)

const (
	WalletMaxBalance = 200000
	InitialAllowance = 10000
)

// chartOfAccounts is the setup every environment starts from.
func chartOfAccounts() []domain.Account {
	return []domain.Account{
		domain.NewAccount("1001", "Cash", domain.AccountTypeAsset),
		domain.NewAccount("4001", "Sales Revenue", domain.AccountTypeRevenue),
		domain.NewAccount("Wallet-Cust001", "Customer 001 Wallet", domain.AccountTypeLiability).WithMaxBalance(WalletMaxBalance),
		domain.NewAccount("Wallet-Cust002", "Customer 002 Wallet", domain.AccountTypeLiability).WithMaxBalance(WalletMaxBalance),
		domain.NewAccount("PAYABLES_EXTERNAL", "External Payables", domain.AccountTypeLiability),
		domain.NewAccount("sys_rate_limiter_debit", "Rate Limiter Debit", domain.AccountTypeAsset).
			WithFlags(domain.AccountFlags{DebitsMustNotExceedCredits: true}),
		domain.NewAccount(bookkeeper.DefaultSourceOfFundsAccount, "Rate Limiter Credit", domain.AccountTypeLiability),
	}
}

func main() {
	currency := flag.String("currency", "USD", "Currency of the initial limiter allowance")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	client, err := bookkeeper.FromConfig(cfg, log)
	if err != nil {
		log.Fatal("unable to build ledger client", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info("--- Seeding Ledger ---", zap.String("tenant_id", client.TenantID()))

	// 1. Accounts (safe to repeat)
	accounts := chartOfAccounts()
	if _, err := client.CreateAccounts(ctx, accounts...); err != nil {
		log.Fatal("account setup failed", zap.Error(err))
	}
	log.Info("accounts ready", zap.Int("count", len(accounts)))

	// 2. Initial limiter allowance
	refill := domain.RefillAccount{AccountCode: "sys_rate_limiter_debit", Amount: InitialAllowance, Currency: *currency}
	if _, err := client.Refill(ctx, bookkeeper.DefaultSourceOfFundsAccount, refill); err != nil {
		log.Fatal("limiter refill failed", zap.Error(err))
	}

	log.Info("seeding complete", zap.Int64("allowance", InitialAllowance), zap.String("currency", *currency))
}
