package queue

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresQueue(t *testing.T) (*PostgresQueue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS deep_work").
		WillReturnResult(sqlmock.NewResult(0, 0))

	q, err := NewPostgresQueue(db)
	require.NoError(t, err)
	return q, mock
}

// Workers must pick distinct rows without blocking on each other, which
// hinges on the row lock being taken with SKIP LOCKED.
func TestPostgresLeaseNextUsesSkipLocked(t *testing.T) {
	q, mock := newMockPostgresQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	q.clock = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM deep_work .* FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("dw-1"))
	mock.ExpectExec("UPDATE deep_work").
		WithArgs("worker-1", sqlmock.AnyArg(), sqlmock.AnyArg(), string(StateLeased), "dw-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectQuery("SELECT .* FROM deep_work").
		WithArgs("dw-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "decision_id", "question", "reason", "state",
			"created_at", "updated_at", "leased_by", "leased_until", "attempts",
		}).AddRow("dw-1", "dec-0001", "q", "budget_queue_deep_work", "LEASED",
			now, now, "worker-1", now.Add(10*time.Minute), 1))

	item, err := q.LeaseNext(ctx, "worker-1", 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "dw-1", item.ID)
	assert.Equal(t, StateLeased, item.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLeaseNextEmpty(t *testing.T) {
	q, mock := newMockPostgresQueue(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM deep_work`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := q.LeaseNext(context.Background(), "worker-1", time.Minute)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
