package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresQueue implements Queue with Postgres-specific locking. LeaseNext
// uses FOR UPDATE SKIP LOCKED so competing workers never wait on each other
// and never double-lease an item.
type PostgresQueue struct {
	*SQLQueue
}

// OpenPostgres opens a pool from a DSN and wraps it.
func OpenPostgres(dsn string) (*PostgresQueue, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("queue: open postgres: %w", err)
	}
	return NewPostgresQueue(db)
}

// NewPostgresQueue wraps an existing connection pool and runs migrations.
func NewPostgresQueue(db *sql.DB) (*PostgresQueue, error) {
	sq, err := NewSQLQueue(db)
	if err != nil {
		return nil, err
	}
	return &PostgresQueue{SQLQueue: sq}, nil
}

// LeaseNext locks the oldest available item inside a transaction. SKIP
// LOCKED makes concurrent workers pick distinct rows instead of blocking.
func (q *PostgresQueue) LeaseNext(ctx context.Context, workerID string, duration time.Duration) (Item, error) {
	now := q.clock().UTC()
	leasedUntil := now.Add(duration)

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return Item{}, fmt.Errorf("queue: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM deep_work
		WHERE state = $1 OR (state = $2 AND leased_until < $3)
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, StateQueued, StateLeased, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrEmpty
	}
	if err != nil {
		return Item{}, fmt.Errorf("queue: lease next: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE deep_work
		SET leased_by = $1, leased_until = $2, updated_at = $3, state = $4,
		    attempts = attempts + 1
		WHERE id = $5
	`, workerID, leasedUntil, now, StateLeased, id)
	if err != nil {
		return Item{}, fmt.Errorf("queue: lease %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return Item{}, fmt.Errorf("queue: commit: %w", err)
	}
	return q.Get(ctx, id)
}
