package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/helix/core/pkg/alignment"
	"github.com/Mindburn-Labs/helix/core/pkg/arbiter"
	"github.com/Mindburn-Labs/helix/core/pkg/assembly"
	"github.com/Mindburn-Labs/helix/core/pkg/budget"
	"github.com/Mindburn-Labs/helix/core/pkg/guardian"
	"github.com/Mindburn-Labs/helix/core/pkg/knowledge"
)

func testRegistry(t *testing.T) *knowledge.MemoryRegistry {
	t.Helper()
	reg, err := knowledge.LoadRegistry([]byte(`[
		{"id": "warp.soliton", "runtime_safety_eligible": true, "cross_lane_bridge": true, "uncertainty_model_id": "um-gp-01"},
		{"id": "ethos.charter", "runtime_safety_eligible": false, "cross_lane_bridge": false, "uncertainty_model_id": ""}
	]`))
	require.NoError(t, err)
	return reg
}

func testEngine(t *testing.T, reg knowledge.Registry) *Engine {
	t.Helper()
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	n := 0
	return NewEngine(DefaultPolicies(), reg).
		WithClock(func() time.Time { return fixed }).
		WithIDSource(func() string { n++; return "dec-0001" })
}

// healthyRequest is a baseline that clears every stage: two domains, both
// floors met, a clean alignment sample, idle budget, and strong retrieval.
func healthyRequest() Request {
	return Request{
		Context: assembly.BuildInput{
			Question: "How does the soliton lattice interact with the ethos charter limits?",
			Blocks: []assembly.DocumentBlock{
				{Path: "sim_core/warp/soliton.go", Block: "soliton lattice stability envelope", StartLine: 10, EndLine: 24},
				{Path: "ethos/charter.md", Block: "charter principle on runtime limits", StartLine: 3, EndLine: 9},
			},
		},
		Retrieval: arbiter.RetrievalSignal{
			ConfidenceRatio:        0.91,
			HasConceptMatch:        true,
			HasRepoHints:           true,
			MustIncludeOk:          true,
			ViabilityMustIncludeOk: true,
		},
		Sample: alignment.Sample{
			AlignmentReal:     0.95,
			AlignmentDecoy:    0.40,
			Stability:         0.92,
			ContradictionRate: 0.01,
			SampleCount:       200,
		},
		Counters: budget.Counters{
			P95LatencyMs: 300,
			QueueDepth:   1,
			TokensUsed:   1_000,
			TokenBudget:  100_000,
		},
		UserExpectsRepo:     true,
		StrictCertainty:     true,
		CertaintyEvidenceOk: true,
		OpenWorldAllowed:    true,
	}
}

func TestEvaluateHealthyPath(t *testing.T) {
	e := testEngine(t, testRegistry(t))

	dec, err := e.Evaluate(context.Background(), healthyRequest())
	require.NoError(t, err)

	assert.Equal(t, arbiter.ModeRepoGrounded, dec.Trace.FinalMode)
	assert.Equal(t, arbiter.ReasonRepoRatio, dec.Trace.FinalReason)
	assert.True(t, dec.Trace.Floor.OK)
	assert.True(t, dec.Trace.Topology.DualDomainAnchors)
	assert.Equal(t, alignment.DecisionPass, dec.Trace.Gate.Decision)
	assert.Equal(t, budget.LevelOK, dec.Trace.Budget.Level)
	assert.False(t, dec.Trace.Guard.Triggered)
	assert.False(t, dec.Trace.UncertaintyMarker)
	assert.True(t, dec.Trace.CertifyAllowed)
	assert.Empty(t, dec.Trace.FailReasons)

	assert.Equal(t, "dec-0001", dec.DecisionID)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC), dec.CreatedAt)
}

func TestEvaluateDeterministicTraceHash(t *testing.T) {
	reg := testRegistry(t)
	req := healthyRequest()

	first, err := testEngine(t, reg).Evaluate(context.Background(), req)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := testEngine(t, reg).Evaluate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.TraceHash, again.TraceHash)
		assert.Equal(t, first.Trace, again.Trace)
	}
}

func TestEvaluateClockNeverAffectsHash(t *testing.T) {
	reg := testRegistry(t)
	req := healthyRequest()

	early, err := NewEngine(DefaultPolicies(), reg).
		WithClock(func() time.Time { return time.Unix(0, 0) }).
		WithIDSource(func() string { return "a" }).
		Evaluate(context.Background(), req)
	require.NoError(t, err)

	late, err := NewEngine(DefaultPolicies(), reg).
		WithClock(func() time.Time { return time.Unix(1<<33, 0) }).
		WithIDSource(func() string { return "b" }).
		Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, early.TraceHash, late.TraceHash)
	assert.NotEqual(t, early.DecisionID, late.DecisionID)
}

func TestEvaluateFloorFailureDowngradesRepoToHybrid(t *testing.T) {
	e := testEngine(t, testRegistry(t))
	req := healthyRequest()
	// Single-domain context: no bridge claims, so the bridge floor fails.
	req.Context.Blocks = req.Context.Blocks[:1]

	dec, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, dec.Trace.Floor.OK)
	assert.Equal(t, assembly.FailBridgeCountLow, dec.Trace.Floor.FailReason)
	assert.Equal(t, arbiter.ModeRepoGrounded, dec.Trace.Arbiter.Mode)
	assert.Equal(t, arbiter.ModeHybrid, dec.Trace.FinalMode)
	assert.Equal(t, assembly.FailBridgeCountLow, dec.Trace.FinalReason)
	assert.False(t, dec.Trace.CertifyAllowed)
	assert.Contains(t, dec.Trace.FailReasons, assembly.FailBridgeCountLow)
}

func TestEvaluateGuardOverridesEverything(t *testing.T) {
	e := testEngine(t, testRegistry(t))
	req := healthyRequest()
	// High stakes would normally force repo-grounded, but zero support
	// trips the hard guard last and wins.
	req.HasHighStakesConstraints = true
	req.Retrieval.ConfidenceRatio = 0

	dec, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, dec.Trace.Guard.Triggered)
	assert.Equal(t, guardian.ActionClarifyFailClosed, dec.Trace.Guard.Action)
	assert.Equal(t, arbiter.ModeClarify, dec.Trace.FinalMode)
	assert.Equal(t, guardian.ReasonSupportRatioZero, dec.Trace.FinalReason)
	assert.False(t, dec.Trace.UncertaintyMarker)
	assert.False(t, dec.Trace.CertifyAllowed)
}

func TestEvaluateOpenWorldBypassSetsUncertaintyMarker(t *testing.T) {
	e := testEngine(t, testRegistry(t))
	req := healthyRequest()
	// A failing gate with an open world and no repo requirement bypasses
	// with an explicit uncertainty marker instead of failing closed.
	req.Sample = alignment.Sample{
		AlignmentReal:     0.40,
		AlignmentDecoy:    0.38,
		Stability:         0.50,
		ContradictionRate: 0.30,
		SampleCount:       100,
	}
	req.RequiresRepoEvidence = false
	req.OpenWorldAllowed = true

	dec, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, alignment.DecisionFail, dec.Trace.Gate.Decision)
	assert.Equal(t, alignment.ActionBypassWithUncertain, dec.Trace.Bypass.Action)
	assert.True(t, dec.Trace.UncertaintyMarker)
	assert.Equal(t, arbiter.ModeRepoGrounded, dec.Trace.FinalMode)
	assert.False(t, dec.Trace.CertifyAllowed)
	assert.Contains(t, dec.Trace.FailReasons, alignment.FailReasonGate)
}

func TestEvaluateGateFailRepoRequiredFailsClosed(t *testing.T) {
	e := testEngine(t, testRegistry(t))
	req := healthyRequest()
	req.Sample.AlignmentReal = 0.30
	req.Sample.ContradictionRate = 0.40
	req.RequiresRepoEvidence = true

	dec, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, alignment.ActionClarifyFailClosed, dec.Trace.Bypass.Action)
	assert.Equal(t, arbiter.ModeClarify, dec.Trace.FinalMode)
	assert.Equal(t, alignment.ReasonAlignmentFailRepoRequired, dec.Trace.FinalReason)
	assert.False(t, dec.Trace.UncertaintyMarker)
}

func TestEvaluateStrictCertaintyOverride(t *testing.T) {
	e := testEngine(t, testRegistry(t))
	req := healthyRequest()
	req.CertaintyEvidenceOk = false

	dec, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, arbiter.ModeClarify, dec.Trace.Arbiter.Mode)
	assert.Equal(t, arbiter.FailCertaintyEvidenceMissing, dec.Trace.Arbiter.FailReason)
	assert.Equal(t, arbiter.ModeClarify, dec.Trace.FinalMode)
	assert.False(t, dec.Trace.CertifyAllowed)
	assert.Contains(t, dec.Trace.FailReasons, arbiter.FailCertaintyEvidenceMissing)
}

func TestEvaluateCrossLaneViolationBlocksCertify(t *testing.T) {
	reg, err := knowledge.LoadRegistry([]byte(`[
		{"id": "warp.soliton", "runtime_safety_eligible": true, "cross_lane_bridge": true, "uncertainty_model_id": ""}
	]`))
	require.NoError(t, err)
	e := testEngine(t, reg)

	dec, err := e.Evaluate(context.Background(), healthyRequest())
	require.NoError(t, err)

	// The violation surfaces and blocks certification but never changes
	// the answer mode.
	assert.False(t, dec.Trace.CrossLane.Pass)
	assert.Equal(t, arbiter.ModeRepoGrounded, dec.Trace.FinalMode)
	assert.False(t, dec.Trace.CertifyAllowed)
	assert.Contains(t, dec.Trace.FailReasons, knowledge.FailCrossLaneMissingUncertaintyModel)
}

func TestEvaluateMaturityCeilingBlocksCertify(t *testing.T) {
	e := testEngine(t, testRegistry(t))
	req := healthyRequest()
	req.Context.Blocks[0].ClaimTier = assembly.TierCertified
	req.MaxClaimTier = assembly.TierDiagnostic

	dec, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, dec.Trace.Maturity.Pass)
	assert.Equal(t, knowledge.FailMaturityCeilingViolation, dec.Trace.Maturity.FailReason)
	assert.Equal(t, arbiter.ModeRepoGrounded, dec.Trace.FinalMode)
	assert.False(t, dec.Trace.CertifyAllowed)
}

func TestEvaluateMissingAnchorsReported(t *testing.T) {
	e := testEngine(t, testRegistry(t))
	req := healthyRequest()
	req.ExpectedDomains = []string{"warp", "ethos", "verification"}

	dec, err := e.Evaluate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"verification"}, dec.Trace.Topology.MissingAnchors)
}

func TestEvaluateEmptyQuestionRejected(t *testing.T) {
	e := testEngine(t, testRegistry(t))
	req := healthyRequest()
	req.Context.Question = "   "

	_, err := e.Evaluate(context.Background(), req)
	require.Error(t, err)
}
