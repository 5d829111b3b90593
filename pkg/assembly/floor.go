package assembly

// Deterministic failure codes for evidence floor evaluation.
const (
	FailBridgeCountLow   = "bridge_count_low"
	FailEvidenceCountLow = "evidence_count_low"
)

// FloorThresholds are the minimum counts a packet must meet.
type FloorThresholds struct {
	MinBridges  int `json:"min_bridges" yaml:"min_bridges"`
	MinEvidence int `json:"min_evidence" yaml:"min_evidence"`
}

// DefaultFloorThresholds returns the production floor.
func DefaultFloorThresholds() FloorThresholds {
	return FloorThresholds{MinBridges: 1, MinEvidence: 2}
}

// FloorEvaluation is the outcome of an evidence-floor check.
type FloorEvaluation struct {
	OK         bool   `json:"ok"`
	FailReason string `json:"fail_reason,omitempty"`
}

// EvaluateFloor checks a packet against minimum bridge/evidence counts.
// The bridge-count check runs strictly first so a packet failing both floors
// always reports bridge_count_low.
func EvaluateFloor(p *RelationAssemblyPacket, th FloorThresholds) FloorEvaluation {
	if len(p.BridgeClaims) < th.MinBridges {
		return FloorEvaluation{OK: false, FailReason: FailBridgeCountLow}
	}
	if len(p.Evidence) < th.MinEvidence {
		return FloorEvaluation{OK: false, FailReason: FailEvidenceCountLow}
	}
	return FloorEvaluation{OK: true}
}

// TopologySignal reports whether retrieved context already spans two domains
// and which expected domains have no supporting evidence. Callers use it to
// decide whether to request more retrieval before arbitration.
type TopologySignal struct {
	DualDomainAnchors bool     `json:"dual_domain_anchors"`
	MissingAnchors    []string `json:"missing_anchors,omitempty"`
}

// Topology computes the relation topology signal for a packet against the
// list of domains the caller expected to see.
func Topology(p *RelationAssemblyPacket, expected []string) TopologySignal {
	present := make(map[string]bool, len(p.Domains))
	for _, d := range p.Domains {
		present[d] = true
	}
	sig := TopologySignal{DualDomainAnchors: len(p.Domains) >= 2}
	for _, d := range expected {
		if !present[d] {
			sig.MissingAnchors = append(sig.MissingAnchors, d)
		}
	}
	return sig
}
