package knowledge_test

import (
	"context"
	"testing"

	"github.com/Mindburn-Labs/helix/core/pkg/assembly"
	"github.com/Mindburn-Labs/helix/core/pkg/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRegistry(t *testing.T, doc string) *knowledge.MemoryRegistry {
	t.Helper()
	reg, err := knowledge.LoadRegistry([]byte(doc))
	require.NoError(t, err)
	return reg
}

func TestValidateCrossLanePasses(t *testing.T) {
	reg := mustRegistry(t, `[
		{"id": "k1", "runtime_safety_eligible": true, "cross_lane_bridge": true, "uncertainty_model_id": "um-7"},
		{"id": "k2", "runtime_safety_eligible": false, "cross_lane_bridge": true, "uncertainty_model_id": ""}
	]`)

	res, err := knowledge.ValidateCrossLane(context.Background(), reg)
	require.NoError(t, err)
	assert.True(t, res.Referenced)
	assert.True(t, res.Pass)
	assert.Empty(t, res.FailReason)
}

func TestValidateCrossLaneFailsClosed(t *testing.T) {
	reg := mustRegistry(t, `[
		{"id": "k1", "runtime_safety_eligible": true, "cross_lane_bridge": true, "uncertainty_model_id": "um-7"},
		{"id": "k2", "runtime_safety_eligible": true, "cross_lane_bridge": true, "uncertainty_model_id": ""}
	]`)

	res, err := knowledge.ValidateCrossLane(context.Background(), reg)
	require.NoError(t, err)
	assert.True(t, res.Referenced)
	assert.False(t, res.Pass)
	assert.Equal(t, knowledge.FailCrossLaneMissingUncertaintyModel, res.FailReason)
	assert.Equal(t, []string{"k2"}, res.Violations)
}

func TestValidateCrossLaneNotApplicable(t *testing.T) {
	reg := mustRegistry(t, `[
		{"id": "k1", "runtime_safety_eligible": false, "cross_lane_bridge": false, "uncertainty_model_id": ""}
	]`)

	res, err := knowledge.ValidateCrossLane(context.Background(), reg)
	require.NoError(t, err)
	assert.False(t, res.Referenced, "no applicable rows must read as not-applicable, not as passing coverage")
	assert.True(t, res.Pass)
}

func TestValidateMaturityCeiling(t *testing.T) {
	entries := []assembly.EvidenceEntry{
		{EvidenceID: "ev-001", ClaimTier: assembly.TierDiagnostic},
		{EvidenceID: "ev-002", ClaimTier: assembly.TierCertified},
	}

	res := knowledge.ValidateMaturity(entries, assembly.TierDiagnostic)
	assert.True(t, res.Referenced)
	assert.False(t, res.Pass)
	assert.Equal(t, knowledge.FailMaturityCeilingViolation, res.FailReason)
	assert.Equal(t, []string{"ev-002"}, res.Violations)

	ok := knowledge.ValidateMaturity(entries, assembly.TierCertified)
	assert.True(t, ok.Pass)

	none := knowledge.ValidateMaturity([]assembly.EvidenceEntry{{EvidenceID: "ev-001"}}, assembly.TierDiagnostic)
	assert.False(t, none.Referenced)
	assert.True(t, none.Pass)
}

func TestLoadRegistryRejectsMalformedRows(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"missing required field", `[{"id": "k1", "cross_lane_bridge": true}]`},
		{"wrong type", `[{"id": "k1", "runtime_safety_eligible": "yes", "cross_lane_bridge": true}]`},
		{"unknown field", `[{"id": "k1", "runtime_safety_eligible": true, "cross_lane_bridge": true, "extra": 1}]`},
		{"bad tier", `[{"id": "k1", "runtime_safety_eligible": true, "cross_lane_bridge": true, "claim_tier": "gold"}]`},
		{"duplicate id", `[
			{"id": "k1", "runtime_safety_eligible": true, "cross_lane_bridge": false},
			{"id": "k1", "runtime_safety_eligible": true, "cross_lane_bridge": false}
		]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := knowledge.LoadRegistry([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
