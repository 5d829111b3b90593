package assembly_test

import (
	"testing"

	"github.com/Mindburn-Labs/helix/core/pkg/assembly"
	"github.com/stretchr/testify/assert"
)

func TestEvaluateFloor(t *testing.T) {
	tests := []struct {
		name       string
		packet     assembly.RelationAssemblyPacket
		thresholds assembly.FloorThresholds
		wantOK     bool
		wantReason string
	}{
		{
			name: "passes both floors",
			packet: assembly.RelationAssemblyPacket{
				BridgeClaims: []string{"a-b"},
				Evidence:     []assembly.EvidenceEntry{{EvidenceID: "ev-001"}, {EvidenceID: "ev-002"}},
			},
			thresholds: assembly.FloorThresholds{MinBridges: 1, MinEvidence: 2},
			wantOK:     true,
		},
		{
			name: "single bridge below floor of two",
			packet: assembly.RelationAssemblyPacket{
				BridgeClaims: []string{"only-one"},
				Evidence:     []assembly.EvidenceEntry{{EvidenceID: "ev-001"}, {EvidenceID: "ev-002"}},
			},
			thresholds: assembly.FloorThresholds{MinBridges: 2, MinEvidence: 2},
			wantOK:     false,
			wantReason: assembly.FailBridgeCountLow,
		},
		{
			name: "evidence below floor",
			packet: assembly.RelationAssemblyPacket{
				BridgeClaims: []string{"a-b"},
				Evidence:     []assembly.EvidenceEntry{{EvidenceID: "ev-001"}},
			},
			thresholds: assembly.FloorThresholds{MinBridges: 1, MinEvidence: 2},
			wantOK:     false,
			wantReason: assembly.FailEvidenceCountLow,
		},
		{
			name:       "both floors failing reports bridge_count_low",
			packet:     assembly.RelationAssemblyPacket{},
			thresholds: assembly.FloorThresholds{MinBridges: 1, MinEvidence: 1},
			wantOK:     false,
			wantReason: assembly.FailBridgeCountLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := assembly.EvaluateFloor(&tt.packet, tt.thresholds)
			assert.Equal(t, tt.wantOK, got.OK)
			assert.Equal(t, tt.wantReason, got.FailReason)
		})
	}
}

func TestTopologySignal(t *testing.T) {
	pkt := &assembly.RelationAssemblyPacket{Domains: []string{"warp", "ethos"}}

	sig := assembly.Topology(pkt, []string{"warp", "ethos", "verification"})
	assert.True(t, sig.DualDomainAnchors)
	assert.Equal(t, []string{"verification"}, sig.MissingAnchors)

	single := assembly.Topology(&assembly.RelationAssemblyPacket{Domains: []string{"warp"}}, []string{"warp"})
	assert.False(t, single.DualDomainAnchors)
	assert.Empty(t, single.MissingAnchors)
}
