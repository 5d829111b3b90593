package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/helix/core/pkg/alignment"
	"github.com/Mindburn-Labs/helix/core/pkg/arbiter"
	"github.com/Mindburn-Labs/helix/core/pkg/pipeline"
)

func openTestStore(t *testing.T) *DecisionStore {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDecision(t *testing.T, id string, at time.Time) *pipeline.Decision {
	t.Helper()
	tr := pipeline.Trace{
		Question:    "does the soliton profile respect the charter envelope?",
		Gate:        alignment.Result{Decision: alignment.DecisionPass},
		FinalMode:   arbiter.ModeRepoGrounded,
		FinalReason: arbiter.ReasonRepoRatio,
	}
	hash, err := tr.Hash()
	require.NoError(t, err)
	return &pipeline.Decision{
		DecisionID: id,
		CreatedAt:  at,
		TraceHash:  hash,
		Trace:      tr,
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := sampleDecision(t, "dec-0001", time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Get(ctx, "dec-0001")
	require.NoError(t, err)
	assert.Equal(t, want.DecisionID, got.DecisionID)
	assert.Equal(t, want.TraceHash, got.TraceHash)
	assert.Equal(t, want.Trace, got.Trace)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveDuplicateIDFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	d := sampleDecision(t, "dec-0001", time.Now().UTC())

	require.NoError(t, s.Save(ctx, d))
	assert.Error(t, s.Save(ctx, d))
}

func TestGetByTraceHashReturnsEarliest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := sampleDecision(t, "dec-0001", time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	second := sampleDecision(t, "dec-0002", time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	require.Equal(t, first.TraceHash, second.TraceHash)

	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	got, err := s.GetByTraceHash(ctx, first.TraceHash)
	require.NoError(t, err)
	assert.Equal(t, "dec-0001", got.DecisionID)
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, ts := range []time.Time{
		time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC),
	} {
		d := sampleDecision(t, []string{"dec-a", "dec-b", "dec-c"}[i], ts)
		require.NoError(t, s.Save(ctx, d))
	}

	got, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "dec-c", got[0].DecisionID)
	assert.Equal(t, "dec-b", got[1].DecisionID)
}

func TestVerifyDetectsTampering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	d := sampleDecision(t, "dec-0001", time.Now().UTC())
	require.NoError(t, s.Save(ctx, d))

	ok, err := s.Verify(ctx, "dec-0001")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.db.ExecContext(ctx,
		`UPDATE decisions SET trace = json_set(trace, '$.question', 'altered') WHERE decision_id = ?`,
		"dec-0001")
	require.NoError(t, err)

	ok, err = s.Verify(ctx, "dec-0001")
	require.NoError(t, err)
	assert.False(t, ok)
}
