package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresRegistry reads registry rows from a Postgres document store.
// The store is read-only from the decision core's perspective; row curation
// happens out of band.
type PostgresRegistry struct {
	db *sql.DB
}

// NewPostgresRegistry wraps an existing connection pool.
func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// OpenPostgresRegistry opens a pool from a DSN and wraps it.
func OpenPostgresRegistry(dsn string) (*PostgresRegistry, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("knowledge: open postgres registry: %w", err)
	}
	return NewPostgresRegistry(db), nil
}

const pgRowsQuery = `
SELECT id, runtime_safety_eligible, cross_lane_bridge, uncertainty_model_id, claim_tier
FROM knowledge_rows
ORDER BY id
`

// Rows implements Registry. Results are ordered by id so validator output is
// deterministic across calls.
func (p *PostgresRegistry) Rows(ctx context.Context) ([]Row, error) {
	rows, err := p.db.QueryContext(ctx, pgRowsQuery)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query registry rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var (
			r           Row
			uncertainty sql.NullString
			tier        sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RuntimeSafetyEligible, &r.CrossLaneBridge, &uncertainty, &tier); err != nil {
			return nil, fmt.Errorf("knowledge: scan registry row: %w", err)
		}
		r.UncertaintyModelID = uncertainty.String
		r.ClaimTier = tier.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: iterate registry rows: %w", err)
	}
	return out, nil
}

// Close releases the underlying pool.
func (p *PostgresRegistry) Close() error { return p.db.Close() }
