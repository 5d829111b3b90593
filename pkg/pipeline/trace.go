package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Mindburn-Labs/helix/core/pkg/alignment"
	"github.com/Mindburn-Labs/helix/core/pkg/arbiter"
	"github.com/Mindburn-Labs/helix/core/pkg/assembly"
	"github.com/Mindburn-Labs/helix/core/pkg/budget"
	"github.com/Mindburn-Labs/helix/core/pkg/guardian"
	"github.com/Mindburn-Labs/helix/core/pkg/knowledge"
	"github.com/gowebpki/jcs"
)

// Trace is the canonical record of one pipeline run. It contains every
// stage's input-derived output and nothing time- or identity-dependent, so
// hashing it is replayable: identical requests always produce identical
// trace hashes.
type Trace struct {
	Question  string                           `json:"question"`
	Packet    *assembly.RelationAssemblyPacket `json:"packet"`
	Floor     assembly.FloorEvaluation         `json:"floor"`
	Topology  assembly.TopologySignal          `json:"topology"`
	CrossLane knowledge.ValidationResult       `json:"cross_lane"`
	Maturity  knowledge.ValidationResult       `json:"maturity"`
	Gate      alignment.Result                 `json:"gate"`
	Bypass    alignment.BypassOutcome          `json:"bypass"`
	Budget    budget.State                     `json:"budget"`
	Arbiter   arbiter.Result                   `json:"arbiter"`
	Guard     guardian.Outcome                 `json:"guard"`

	FinalMode         arbiter.Mode `json:"final_mode"`
	FinalReason       string       `json:"final_reason"`
	UncertaintyMarker bool         `json:"uncertainty_marker"`
	CertifyAllowed    bool         `json:"certify_allowed"`
	FailReasons       []string     `json:"fail_reasons,omitempty"`
}

// Hash returns the RFC 8785 canonical sha256 digest of the trace.
func (tr *Trace) Hash() (string, error) {
	raw, err := json.Marshal(tr)
	if err != nil {
		return "", fmt.Errorf("pipeline: trace marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("pipeline: trace canonicalization failed: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
