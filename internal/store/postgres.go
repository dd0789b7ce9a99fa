package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/bookkeeper/internal/idempotency"
)

const schema = `
CREATE TABLE IF NOT EXISTS client_idempotency_keys (
	tenant_id       TEXT        NOT NULL,
	operation_ref   TEXT        NOT NULL,
	idempotency_key TEXT        NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, operation_ref)
)`

// KeyStore persists idempotency key bindings so a restarted client retries
// with the key it used before the crash.
type KeyStore struct {
	Db *pgxpool.Pool
}

func NewKeyStore(ctx context.Context, connString string) (*KeyStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &KeyStore{Db: pool}, nil
}

func (s *KeyStore) Close() {
	s.Db.Close()
}

// EnsureSchema creates the bindings table if missing.
func (s *KeyStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create idempotency schema: %w", err)
	}
	return nil
}

// Reserve binds candidate to ref unless a binding already exists. Two
// clients racing on the same ref both end up with the winner's key.
func (s *KeyStore) Reserve(ctx context.Context, tenantID, ref, candidate string) (string, error) {
	// 1. Lookup
	key, err := s.lookup(ctx, tenantID, ref)
	if err == nil {
		return key, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("idempotency query failed: %w", err)
	}

	// 2. Reservation
	_, err = s.Db.Exec(ctx,
		"INSERT INTO client_idempotency_keys (tenant_id, operation_ref, idempotency_key) VALUES ($1, $2, $3)",
		tenantID, ref, candidate,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost the race; the winner's key is authoritative.
			return s.lookup(ctx, tenantID, ref)
		}
		return "", fmt.Errorf("key reservation failed: %w", err)
	}
	return candidate, nil
}

func (s *KeyStore) lookup(ctx context.Context, tenantID, ref string) (string, error) {
	var key string
	err := s.Db.QueryRow(ctx,
		"SELECT idempotency_key FROM client_idempotency_keys WHERE tenant_id = $1 AND operation_ref = $2",
		tenantID, ref,
	).Scan(&key)
	return key, err
}

// OpenGuardStore picks the PostgreSQL key store when dbSource is set and an
// in-process store otherwise. The returned func releases resources.
func OpenGuardStore(ctx context.Context, dbSource string) (idempotency.Store, func(), error) {
	if dbSource == "" {
		return idempotency.NewMemoryStore(), func() {}, nil
	}
	ks, err := NewKeyStore(ctx, dbSource)
	if err != nil {
		return nil, nil, err
	}
	if err := ks.EnsureSchema(ctx); err != nil {
		ks.Close()
		return nil, nil, err
	}
	return ks, ks.Close, nil
}
