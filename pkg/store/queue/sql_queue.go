package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLQueue implements Queue over database/sql. The $N placeholders work on
// both Postgres and SQLite, so one implementation covers lite and full mode.
type SQLQueue struct {
	db    *sql.DB
	clock func() time.Time
}

// OpenSQLite opens (or creates) a sqlite-backed queue at path. Use
// ":memory:" for an ephemeral queue.
func OpenSQLite(path string) (*SQLQueue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", path, err)
	}
	return NewSQLQueue(db)
}

// NewSQLQueue wraps an existing handle and runs migrations.
func NewSQLQueue(db *sql.DB) (*SQLQueue, error) {
	q := &SQLQueue{db: db, clock: time.Now}
	if err := q.migrate(); err != nil {
		return nil, err
	}
	return q, nil
}

// WithClock overrides the time source. Tests use this to step leases
// past expiry without sleeping.
func (q *SQLQueue) WithClock(clock func() time.Time) *SQLQueue {
	q.clock = clock
	return q
}

func (q *SQLQueue) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS deep_work (
		id TEXT PRIMARY KEY,
		decision_id TEXT NOT NULL,
		question TEXT NOT NULL,
		reason TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		leased_by TEXT NOT NULL DEFAULT '',
		leased_until TIMESTAMP,
		attempts INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_deep_work_state ON deep_work(state);`
	_, err := q.db.ExecContext(context.Background(), query)
	return err
}

// Close closes the underlying handle.
func (q *SQLQueue) Close() error { return q.db.Close() }

func (q *SQLQueue) Enqueue(ctx context.Context, item Item) error {
	now := q.clock().UTC()
	query := `
		INSERT INTO deep_work (id, decision_id, question, reason, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.db.ExecContext(ctx, query,
		item.ID, item.DecisionID, item.Question, item.Reason, StateQueued, now, now,
	)
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", item.ID, err)
	}
	return nil
}

const itemColumns = `id, decision_id, question, reason, state, created_at, updated_at, leased_by, leased_until, attempts`

func (q *SQLQueue) Get(ctx context.Context, id string) (Item, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM deep_work WHERE id = $1`, id)
	return scanItem(row)
}

func (q *SQLQueue) Lease(ctx context.Context, id, workerID string, duration time.Duration) (Item, error) {
	now := q.clock().UTC()
	leasedUntil := now.Add(duration)

	query := `
		UPDATE deep_work
		SET leased_by = $1, leased_until = $2, updated_at = $3, state = $4,
		    attempts = attempts + 1
		WHERE id = $5 AND (leased_until IS NULL OR leased_until < $3 OR leased_by = $1)
	`
	res, err := q.db.ExecContext(ctx, query, workerID, leasedUntil, now, StateLeased, id)
	if err != nil {
		return Item{}, fmt.Errorf("queue: lease %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return Item{}, err
	}
	if rows == 0 {
		if _, err := q.Get(ctx, id); errors.Is(err, ErrNotFound) {
			return Item{}, ErrNotFound
		}
		return Item{}, ErrLeaseHeld
	}
	return q.Get(ctx, id)
}

func (q *SQLQueue) LeaseNext(ctx context.Context, workerID string, duration time.Duration) (Item, error) {
	now := q.clock().UTC()
	var id string
	err := q.db.QueryRowContext(ctx, `
		SELECT id FROM deep_work
		WHERE state = $1 OR (state = $2 AND leased_until < $3)
		ORDER BY created_at ASC
		LIMIT 1
	`, StateQueued, StateLeased, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrEmpty
	}
	if err != nil {
		return Item{}, fmt.Errorf("queue: lease next: %w", err)
	}
	return q.Lease(ctx, id, workerID, duration)
}

func (q *SQLQueue) SetState(ctx context.Context, id string, state State) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE deep_work SET state = $1, updated_at = $2 WHERE id = $3`,
		state, q.clock().UTC(), id)
	if err != nil {
		return fmt.Errorf("queue: set state %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *SQLQueue) ListQueued(ctx context.Context) ([]Item, error) {
	return q.list(ctx,
		`SELECT `+itemColumns+` FROM deep_work WHERE state = $1 ORDER BY created_at ASC`,
		StateQueued)
}

func (q *SQLQueue) ListAll(ctx context.Context) ([]Item, error) {
	return q.list(ctx,
		`SELECT `+itemColumns+` FROM deep_work ORDER BY created_at ASC`)
}

func (q *SQLQueue) list(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var leasedUntil sql.NullTime
	err := row.Scan(&item.ID, &item.DecisionID, &item.Question, &item.Reason,
		&item.State, &item.CreatedAt, &item.UpdatedAt, &item.LeasedBy,
		&leasedUntil, &item.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	if leasedUntil.Valid {
		item.LeasedUntil = leasedUntil.Time
	}
	return item, nil
}
