// Package store persists decision receipts. The trace is stored verbatim as
// JSON next to its canonical hash, so any stored decision can be re-verified
// later without re-running the pipeline.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/helix/core/pkg/pipeline"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no receipt matches the query.
var ErrNotFound = errors.New("store: decision not found")

// DecisionStore is a sqlite-backed receipt store. Safe for concurrent use;
// sqlite serializes writers internally.
type DecisionStore struct {
	db *sql.DB
}

// Open opens (or creates) the store at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*DecisionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return NewDecisionStore(db)
}

// NewDecisionStore wraps an existing handle and runs migrations.
func NewDecisionStore(db *sql.DB) (*DecisionStore, error) {
	s := &DecisionStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DecisionStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS decisions (
		decision_id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		trace_hash TEXT NOT NULL,
		final_mode TEXT NOT NULL,
		certify_allowed INTEGER NOT NULL DEFAULT 0,
		trace JSON NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_trace_hash ON decisions(trace_hash);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Close closes the underlying handle.
func (s *DecisionStore) Close() error { return s.db.Close() }

// Save persists one decision. Saving the same decision ID twice is an error.
func (s *DecisionStore) Save(ctx context.Context, d *pipeline.Decision) error {
	traceJSON, err := json.Marshal(d.Trace)
	if err != nil {
		return fmt.Errorf("store: marshal trace: %w", err)
	}
	query := `INSERT INTO decisions (
		decision_id, created_at, trace_hash, final_mode, certify_allowed, trace
	) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		d.DecisionID,
		d.CreatedAt.UTC().Format(time.RFC3339Nano),
		d.TraceHash,
		string(d.Trace.FinalMode),
		boolToInt(d.Trace.CertifyAllowed),
		string(traceJSON),
	)
	if err != nil {
		return fmt.Errorf("store: insert decision %s: %w", d.DecisionID, err)
	}
	return nil
}

// Get loads one decision by ID.
func (s *DecisionStore) Get(ctx context.Context, decisionID string) (*pipeline.Decision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT decision_id, created_at, trace_hash, trace FROM decisions WHERE decision_id = ?`,
		decisionID)
	return scanDecision(row)
}

// GetByTraceHash loads the earliest decision carrying the given trace hash.
func (s *DecisionStore) GetByTraceHash(ctx context.Context, hash string) (*pipeline.Decision, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT decision_id, created_at, trace_hash, trace FROM decisions
		 WHERE trace_hash = ? ORDER BY created_at ASC LIMIT 1`,
		hash)
	return scanDecision(row)
}

// List returns the most recent decisions, newest first.
func (s *DecisionStore) List(ctx context.Context, limit int) ([]*pipeline.Decision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision_id, created_at, trace_hash, trace FROM decisions
		 ORDER BY created_at DESC, decision_id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*pipeline.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify reloads a stored decision, recomputes the canonical hash of its
// trace, and reports whether it still matches the stored hash. A mismatch
// means the row was tampered with or the trace schema drifted.
func (s *DecisionStore) Verify(ctx context.Context, decisionID string) (bool, error) {
	d, err := s.Get(ctx, decisionID)
	if err != nil {
		return false, err
	}
	recomputed, err := d.Trace.Hash()
	if err != nil {
		return false, err
	}
	return recomputed == d.TraceHash, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*pipeline.Decision, error) {
	var (
		d         pipeline.Decision
		createdAt string
		traceJSON string
	)
	err := row.Scan(&d.DecisionID, &createdAt, &d.TraceHash, &traceJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(traceJSON), &d.Trace); err != nil {
		return nil, fmt.Errorf("store: unmarshal trace: %w", err)
	}
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
