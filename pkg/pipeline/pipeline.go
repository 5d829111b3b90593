// Package pipeline wires the decision stages into one request-scoped run:
// packet assembly, floor evaluation, registry validators, alignment gate,
// budget model, arbiter, and the frontier hard guard, in that order. All
// state lives in the request and the returned Decision; nothing survives a
// run except what the caller chooses to persist.
package pipeline

import (
	"context"
	"time"

	"github.com/Mindburn-Labs/helix/core/pkg/alignment"
	"github.com/Mindburn-Labs/helix/core/pkg/arbiter"
	"github.com/Mindburn-Labs/helix/core/pkg/assembly"
	"github.com/Mindburn-Labs/helix/core/pkg/budget"
	"github.com/Mindburn-Labs/helix/core/pkg/guardian"
	"github.com/Mindburn-Labs/helix/core/pkg/knowledge"
	"github.com/google/uuid"
)

// Policies bundles every stage's policy parameters.
type Policies struct {
	Builder   assembly.BuilderPolicy   `json:"builder" yaml:"builder"`
	Floor     assembly.FloorThresholds `json:"floor" yaml:"floor"`
	Alignment alignment.Policy         `json:"alignment" yaml:"alignment"`
	Budget    budget.Thresholds        `json:"budget" yaml:"budget"`
	Arbiter   arbiter.Thresholds       `json:"arbiter" yaml:"arbiter"`
}

// DefaultPolicies returns the production defaults for every stage.
func DefaultPolicies() Policies {
	return Policies{
		Builder:   assembly.DefaultBuilderPolicy(),
		Floor:     assembly.DefaultFloorThresholds(),
		Alignment: alignment.DefaultPolicy(),
		Budget:    budget.DefaultThresholds(),
		Arbiter:   arbiter.DefaultThresholds(),
	}
}

// Request is everything one pipeline run consumes.
type Request struct {
	Context assembly.BuildInput `json:"context"`

	Retrieval arbiter.RetrievalSignal `json:"retrieval"`
	Sample    alignment.Sample        `json:"sample"`
	Counters  budget.Counters         `json:"counters"`

	HasHighStakesConstraints bool `json:"has_high_stakes_constraints"`
	UserExpectsRepo          bool `json:"user_expects_repo"`
	ExplicitRepoExpectation  bool `json:"explicit_repo_expectation"`
	StrictCertainty          bool `json:"strict_certainty"`
	CertaintyEvidenceOk      bool `json:"certainty_evidence_ok"`
	GeneralIntent            bool `json:"general_intent"`

	RequireVerificationAnchor bool `json:"require_verification_anchor"`
	VerificationAnchorOk      bool `json:"verification_anchor_ok"`

	RequiresRepoEvidence bool `json:"requires_repo_evidence"`
	OpenWorldAllowed     bool `json:"open_world_allowed"`

	// ExpectedDomains drive the topology signal's missing-anchor report.
	ExpectedDomains []string `json:"expected_domains,omitempty"`

	// MaxClaimTier is the maturity ceiling of the surrounding context.
	// Empty means diagnostic, the most conservative ceiling.
	MaxClaimTier assembly.ClaimTier `json:"max_claim_tier,omitempty"`
}

// Decision is the full outcome of a run: the replayable trace plus the
// per-run identity assigned at completion.
type Decision struct {
	DecisionID string    `json:"decision_id"`
	CreatedAt  time.Time `json:"created_at"`
	TraceHash  string    `json:"trace_hash"`
	Trace      Trace     `json:"trace"`
}

// Engine evaluates requests. An Engine is immutable after construction and
// safe for concurrent use.
type Engine struct {
	policies Policies
	builder  *assembly.Builder
	registry knowledge.Registry
	clock    func() time.Time
	newID    func() string
}

// NewEngine builds an engine over a read-only knowledge registry.
func NewEngine(policies Policies, registry knowledge.Registry) *Engine {
	return &Engine{
		policies: policies,
		builder:  assembly.NewBuilder(policies.Builder),
		registry: registry,
		clock:    time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// WithClock overrides the receipt clock for deterministic testing. The clock
// never influences the trace or its hash.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// WithIDSource overrides decision ID generation.
func (e *Engine) WithIDSource(newID func() string) *Engine {
	e.newID = newID
	return e
}

// Evaluate runs the full decision pipeline.
func (e *Engine) Evaluate(ctx context.Context, req Request) (*Decision, error) {
	pkt, err := e.builder.Build(req.Context)
	if err != nil {
		return nil, err
	}

	tr := Trace{Question: pkt.Question, Packet: pkt}
	tr.Floor = assembly.EvaluateFloor(pkt, e.policies.Floor)
	tr.Topology = assembly.Topology(pkt, req.ExpectedDomains)

	tr.CrossLane, err = knowledge.ValidateCrossLane(ctx, e.registry)
	if err != nil {
		return nil, err
	}
	maxTier := req.MaxClaimTier
	if maxTier == "" {
		maxTier = assembly.TierDiagnostic
	}
	tr.Maturity = knowledge.ValidateMaturity(pkt.Evidence, maxTier)

	tr.Gate = alignment.Evaluate(req.Sample, e.policies.Alignment)
	tr.Bypass = alignment.ResolveBypass(alignment.BypassInput{
		GateDecision:         tr.Gate.Decision,
		RequiresRepoEvidence: req.RequiresRepoEvidence,
		OpenWorldAllowed:     req.OpenWorldAllowed,
	})

	tr.Budget = budget.Evaluate(req.Counters, e.policies.Budget)

	tr.Arbiter = arbiter.Decide(arbiter.Input{
		Retrieval:                 req.Retrieval,
		Budget:                    tr.Budget,
		HasHighStakesConstraints:  req.HasHighStakesConstraints,
		UserExpectsRepo:           req.UserExpectsRepo,
		ExplicitRepoExpectation:   req.ExplicitRepoExpectation,
		StrictCertainty:           req.StrictCertainty,
		CertaintyEvidenceOk:       req.CertaintyEvidenceOk,
		GeneralIntent:             req.GeneralIntent,
		RequireVerificationAnchor: req.RequireVerificationAnchor,
		VerificationAnchorOk:      req.VerificationAnchorOk,
	}, e.policies.Arbiter)

	e.resolve(&tr, req)

	hash, err := tr.Hash()
	if err != nil {
		return nil, err
	}
	return &Decision{
		DecisionID: e.newID(),
		CreatedAt:  e.clock().UTC(),
		TraceHash:  hash,
		Trace:      tr,
	}, nil
}

// resolve folds the stage outcomes into the final mode, applying the
// evidence-insufficiency downgrades, the bypass policy, and — last of all —
// the frontier hard guard, which may override everything above it.
func (e *Engine) resolve(tr *Trace, req Request) {
	mode := tr.Arbiter.Mode
	reason := tr.Arbiter.Reason
	uncertainty := false
	fail := appendNonEmpty(nil, tr.Arbiter.FailReason)

	// Evidence insufficiency downgrades, never fatal: a repo-grounded
	// answer without its floors becomes hybrid; a repo-expecting caller
	// with no floors gets a clarification instead.
	if !tr.Floor.OK {
		fail = append(fail, tr.Floor.FailReason)
		switch {
		case mode == arbiter.ModeRepoGrounded:
			mode = arbiter.ModeHybrid
			reason = tr.Floor.FailReason
		case mode == arbiter.ModeHybrid && req.UserExpectsRepo:
			mode = arbiter.ModeClarify
			reason = tr.Floor.FailReason
		}
	}

	// Safety-floor violations surface and block certification; they do
	// not change the mode.
	if tr.CrossLane.Referenced && !tr.CrossLane.Pass {
		fail = append(fail, tr.CrossLane.FailReason)
	}
	if tr.Maturity.Referenced && !tr.Maturity.Pass {
		fail = append(fail, tr.Maturity.FailReason)
	}

	switch tr.Bypass.Action {
	case alignment.ActionClarifyFailClosed:
		mode = arbiter.ModeClarify
		reason = tr.Bypass.Reason
		fail = append(fail, alignment.FailReasonGate)
	case alignment.ActionBypassWithUncertain:
		uncertainty = true
		fail = append(fail, alignment.FailReasonGate)
	}

	tr.Guard = guardian.Evaluate(guardian.Input{
		SupportRatio:          req.Retrieval.ConfidenceRatio,
		MissingRequiredSlots:  tr.Topology.MissingAnchors,
		OpenWorldBypassActive: tr.Bypass.Action == alignment.ActionBypassWithUncertain,
	})
	if tr.Guard.Triggered {
		fail = append(fail, tr.Guard.Reason)
		switch tr.Guard.Action {
		case guardian.ActionClarifyFailClosed:
			mode = arbiter.ModeClarify
			reason = tr.Guard.Reason
			uncertainty = false
		case guardian.ActionBypassWithUncertain:
			uncertainty = true
		}
	}

	tr.FinalMode = mode
	tr.FinalReason = reason
	tr.UncertaintyMarker = uncertainty
	tr.CertifyAllowed = tr.Arbiter.Certifying &&
		tr.Floor.OK &&
		tr.CrossLane.Pass &&
		tr.Maturity.Pass &&
		tr.Gate.Decision == alignment.DecisionPass &&
		!tr.Guard.Triggered
	tr.FailReasons = fail
}

func appendNonEmpty(dst []string, v string) []string {
	if v == "" {
		return dst
	}
	return append(dst, v)
}
