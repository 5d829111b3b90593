// Package arbiter combines retrieval confidence, evidence-floor outcomes,
// budget recommendations and high-stakes flags into exactly one answer mode.
// The decision is a strict priority list evaluated top-to-bottom with early
// return — never a set of independently combined boolean flags — so every
// outcome is attributable to exactly one rule.
package arbiter

import (
	"github.com/Mindburn-Labs/helix/core/pkg/budget"
)

// Mode is the answer mode the generation layer must operate in.
type Mode string

const (
	ModeRepoGrounded Mode = "repo_grounded"
	ModeHybrid       Mode = "hybrid"
	ModeGeneral      Mode = "general"
	ModeClarify      Mode = "clarify"
)

// Strictness is informational only: it tells downstream generation how
// aggressively to hedge claims, and never changes the mode.
type Strictness string

const (
	StrictnessLow  Strictness = "low"
	StrictnessMed  Strictness = "med"
	StrictnessHigh Strictness = "high"
)

// ProvenanceClass labels how the eventual answer's claims are sourced.
type ProvenanceClass string

const (
	ProvenanceMeasured ProvenanceClass = "measured"
	ProvenanceProxy    ProvenanceClass = "proxy"
	ProvenanceInferred ProvenanceClass = "inferred"
)

// Decision reasons, one per rule.
const (
	ReasonHighStakes             = "high_stakes"
	ReasonBudgetForceClarify     = "budget_force_clarify"
	ReasonBudgetQueueDeepWork    = "budget_queue_deep_work"
	ReasonRepoRatio              = "repo_ratio"
	ReasonHybridRatio            = "hybrid_ratio"
	ReasonExpectRepoWeakEvidence = "expect_repo_weak_evidence"
	ReasonNoRepoExpectation      = "no_repo_expectation"
	ReasonStrictContractMissing  = "strict_ready_contract_missing"
)

// FailCertaintyEvidenceMissing is recorded when the strict-certainty override
// forces clarification.
const FailCertaintyEvidenceMissing = "CERTAINTY_EVIDENCE_MISSING"

// RetrievalSignal is produced by the retrieval collaborator and immutable
// once handed to the core. TopicMustIncludeOk is nil when the retrieval layer
// did not evaluate topic must-includes.
type RetrievalSignal struct {
	ConfidenceRatio        float64  `json:"confidence_ratio"`
	HasConceptMatch        bool     `json:"has_concept_match"`
	HasRepoHints           bool     `json:"has_repo_hints"`
	TopicTags              []string `json:"topic_tags,omitempty"`
	MustIncludeOk          bool     `json:"must_include_ok"`
	ViabilityMustIncludeOk bool     `json:"viability_must_include_ok"`
	TopicMustIncludeOk     *bool    `json:"topic_must_include_ok,omitempty"`
}

// Input bundles every signal the arbiter consumes.
type Input struct {
	Retrieval RetrievalSignal `json:"retrieval"`
	Budget    budget.State    `json:"budget"`

	HasHighStakesConstraints bool `json:"has_high_stakes_constraints"`
	UserExpectsRepo          bool `json:"user_expects_repo"`
	ExplicitRepoExpectation  bool `json:"explicit_repo_expectation"`
	StrictCertainty          bool `json:"strict_certainty"`

	// RequireVerificationAnchor gates the hybrid rule on an external
	// verification anchor; when false the requirement is vacuous.
	RequireVerificationAnchor bool `json:"require_verification_anchor"`
	VerificationAnchorOk      bool `json:"verification_anchor_ok"`

	// CertaintyEvidenceOk reports whether the certainty-evidence contract
	// is satisfied; only consulted when StrictCertainty is set.
	CertaintyEvidenceOk bool `json:"certainty_evidence_ok"`

	// GeneralIntent marks questions with no repo expectation at all.
	GeneralIntent bool `json:"general_intent"`
}

// Result is the arbitration outcome.
type Result struct {
	Mode            Mode            `json:"mode"`
	Reason          string          `json:"reason"`
	Strictness      Strictness      `json:"strictness"`
	ProvenanceClass ProvenanceClass `json:"provenance_class"`
	ClaimTier       string          `json:"claim_tier"`
	Certifying      bool            `json:"certifying"`
	FailReason      string          `json:"fail_reason,omitempty"`
}

// Thresholds are the confidence boundaries for repo/hybrid grounding.
type Thresholds struct {
	RepoRatio   float64 `json:"repo_ratio" yaml:"repo_ratio"`
	HybridRatio float64 `json:"hybrid_ratio" yaml:"hybrid_ratio"`
}

// DefaultThresholds returns the production confidence boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{RepoRatio: 0.62, HybridRatio: 0.45}
}

// rule is one (predicate, outcome) pair of the priority list.
type rule struct {
	name    string
	applies func(Input, Thresholds) bool
	outcome func(Input) (Mode, string)
}

// rules is the strict priority order. First match wins.
var rules = []rule{
	{
		// Safety overrides economy.
		name: ReasonHighStakes,
		applies: func(in Input, _ Thresholds) bool {
			return in.HasHighStakesConstraints
		},
		outcome: func(Input) (Mode, string) { return ModeRepoGrounded, ReasonHighStakes },
	},
	{
		name: ReasonBudgetForceClarify,
		applies: func(in Input, _ Thresholds) bool {
			return in.Budget.Level == budget.LevelOver && in.Budget.Recommend == budget.RecommendForceClarify
		},
		outcome: func(Input) (Mode, string) { return ModeClarify, ReasonBudgetForceClarify },
	},
	{
		name: ReasonBudgetQueueDeepWork,
		applies: func(in Input, _ Thresholds) bool {
			return in.Budget.Level == budget.LevelOver && in.Budget.Recommend == budget.RecommendQueueDeepWork
		},
		outcome: func(Input) (Mode, string) { return ModeHybrid, ReasonBudgetQueueDeepWork },
	},
	{
		name: ReasonRepoRatio,
		applies: func(in Input, th Thresholds) bool {
			return in.Retrieval.ConfidenceRatio >= maxf(th.RepoRatio, th.HybridRatio) &&
				in.Retrieval.MustIncludeOk &&
				in.Retrieval.ViabilityMustIncludeOk
		},
		outcome: func(Input) (Mode, string) { return ModeRepoGrounded, ReasonRepoRatio },
	},
	{
		name: ReasonHybridRatio,
		applies: func(in Input, th Thresholds) bool {
			if in.Retrieval.ConfidenceRatio < minf(th.RepoRatio, th.HybridRatio) {
				return false
			}
			if !in.Retrieval.HasConceptMatch && !in.Retrieval.HasRepoHints && len(in.Retrieval.TopicTags) == 0 {
				return false
			}
			if in.RequireVerificationAnchor && !in.VerificationAnchorOk {
				return false
			}
			return true
		},
		outcome: func(Input) (Mode, string) { return ModeHybrid, ReasonHybridRatio },
	},
	{
		name: ReasonExpectRepoWeakEvidence,
		applies: func(in Input, _ Thresholds) bool {
			return in.UserExpectsRepo
		},
		outcome: func(Input) (Mode, string) { return ModeClarify, ReasonExpectRepoWeakEvidence },
	},
	{
		name:    ReasonNoRepoExpectation,
		applies: func(Input, Thresholds) bool { return true },
		outcome: func(Input) (Mode, string) { return ModeGeneral, ReasonNoRepoExpectation },
	},
}

// Decide runs the priority list and applies the strict-certainty override.
// The override always wins over the rules above; only the frontier hard
// guard may override it further downstream.
func Decide(in Input, th Thresholds) Result {
	var (
		mode   Mode
		reason string
	)
	for _, r := range rules {
		if r.applies(in, th) {
			mode, reason = r.outcome(in)
			break
		}
	}

	res := Result{Mode: mode, Reason: reason}

	if in.StrictCertainty && !in.CertaintyEvidenceOk {
		res.Mode = ModeClarify
		res.Reason = ReasonStrictContractMissing
		res.FailReason = FailCertaintyEvidenceMissing
	}

	res.Strictness = strictnessFor(in)
	res.ProvenanceClass, res.ClaimTier = annotate(res.Mode)
	res.Certifying = res.Mode == ModeRepoGrounded && in.StrictCertainty && in.CertaintyEvidenceOk
	return res
}

// strictnessFor is informational: high when stakes or expectations demand
// hedged certainty, low for purely general intent, med otherwise.
func strictnessFor(in Input) Strictness {
	switch {
	case in.HasHighStakesConstraints || in.ExplicitRepoExpectation:
		return StrictnessHigh
	case in.GeneralIntent:
		return StrictnessLow
	default:
		return StrictnessMed
	}
}

// annotate maps a mode onto its provenance class and default claim tier.
// Certification beyond reduced-order is the promotion gate's job alone.
func annotate(m Mode) (ProvenanceClass, string) {
	switch m {
	case ModeRepoGrounded:
		return ProvenanceMeasured, "reduced-order"
	case ModeHybrid:
		return ProvenanceProxy, "diagnostic"
	default:
		return ProvenanceInferred, "diagnostic"
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
