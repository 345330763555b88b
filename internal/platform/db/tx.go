package db

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the active transaction from context, if any.
// Repositories route their queries through it so that every statement issued
// inside a service-level transaction shares one connection.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx begins a transaction on the pool and returns a derived context that
// carries it. The caller owns commit/rollback.
func WithTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, DBTxKey, tx), tx, nil
}

// InTx runs fn inside a transaction stored in the context. On error the
// transaction is rolled back; otherwise it commits before returning, so
// readers never observe a partial update.
func InTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	txCtx, tx, err := WithTx(ctx, pool)
	if err != nil {
		return err
	}
	defer tx.Rollback(txCtx)

	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(txCtx)
}

// AdvisoryLockKey maps a UUID to the signed 64-bit key space used by
// pg_advisory_xact_lock.
func AdvisoryLockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	return int64(h.Sum64())
}

// AcquireEncounterLock takes a transaction-scoped exclusive advisory lock for
// the given aggregate id. It blocks until the lock is granted and releases
// automatically at commit or rollback. Must be called with a transaction in
// the context.
func AcquireEncounterLock(ctx context.Context, id uuid.UUID) error {
	tx := TxFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("advisory lock requires a transaction in context")
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, AdvisoryLockKey(id)); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	return nil
}
