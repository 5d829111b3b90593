// Package alignment implements the statistical alignment gate that separates
// genuine evidence support from coincidental overlap. The gate is a pure
// function of one AlignmentSample and a Policy; for fixed inputs it returns
// byte-identical results, and it is monotone in the strength of the sample.
package alignment

import (
	"math"
)

// Decision is the gate's three-way outcome.
type Decision string

const (
	DecisionPass       Decision = "PASS"
	DecisionBorderline Decision = "BORDERLINE"
	DecisionFail       Decision = "FAIL"
)

// FailReasonGate is recorded whenever the gate fails.
const FailReasonGate = "alignment_gate_fail"

// Sample holds the alignment measurements for one answer candidate.
// All ratios are in [0,1]; SampleCount is the number of alignment trials.
type Sample struct {
	AlignmentReal     float64 `json:"alignment_real"`
	AlignmentDecoy    float64 `json:"alignment_decoy"`
	Stability         float64 `json:"stability"`
	ContradictionRate float64 `json:"contradiction_rate"`
	SampleCount       int     `json:"sample_count"`
}

// Metrics are the derived quantities the decision is based on.
type Metrics struct {
	CoincidenceMargin float64 `json:"coincidence_margin"`
	Lower95Bound      float64 `json:"lower95_bound"`
	SampleCount       int     `json:"sample_count"`
}

// Result is the gate outcome, cached for the lifetime of one answer attempt.
type Result struct {
	Decision   Decision `json:"decision"`
	Metrics    Metrics  `json:"metrics"`
	FailReason string   `json:"fail_reason,omitempty"`
}

// Policy holds the decision boundaries. These are policy constants, not
// physics; the defaults are the production-observed values and every field is
// overridable through the policy profile.
type Policy struct {
	Z                 float64 `json:"z" yaml:"z"`                                   // normal quantile for the lower bound
	PassMargin        float64 `json:"pass_margin" yaml:"pass_margin"`               // margin at or above which PASS is possible
	FailMargin        float64 `json:"fail_margin" yaml:"fail_margin"`               // margin below which the gate fails outright
	PassStability     float64 `json:"pass_stability" yaml:"pass_stability"`         // minimum stability for PASS
	PassContradiction float64 `json:"pass_contradiction" yaml:"pass_contradiction"` // maximum contradiction rate for PASS
	FailContradiction float64 `json:"fail_contradiction" yaml:"fail_contradiction"` // contradiction rate above which the gate fails
	LowerBoundFloor   float64 `json:"lower_bound_floor" yaml:"lower_bound_floor"`   // lower bound must clear chance
}

// DefaultPolicy returns the production gate boundaries.
func DefaultPolicy() Policy {
	return Policy{
		Z:                 1.96,
		PassMargin:        0.25,
		FailMargin:        0.10,
		PassStability:     0.80,
		PassContradiction: 0.05,
		FailContradiction: 0.15,
		LowerBoundFloor:   0.50,
	}
}

// Evaluate runs the gate over one sample.
//
// Monotonicity: holding all else fixed, increasing AlignmentReal or Stability,
// or decreasing ContradictionRate, never moves the decision from a stronger
// category to a weaker one (PASS > BORDERLINE > FAIL).
func Evaluate(s Sample, p Policy) Result {
	margin := s.AlignmentReal - s.AlignmentDecoy
	lower := lowerBound(s.AlignmentReal, s.SampleCount, p.Z)

	m := Metrics{
		CoincidenceMargin: margin,
		Lower95Bound:      lower,
		SampleCount:       s.SampleCount,
	}

	if margin < p.FailMargin || s.ContradictionRate > p.FailContradiction {
		return Result{Decision: DecisionFail, Metrics: m, FailReason: FailReasonGate}
	}

	// A perfect small sample collapses the Wilson-style interval onto the
	// point estimate (p(1-p) = 0), so tiny but flawless evidence is not
	// rejected merely for having few trials.
	boundOK := lower >= p.LowerBoundFloor
	if margin >= p.PassMargin &&
		s.Stability >= p.PassStability &&
		s.ContradictionRate <= p.PassContradiction &&
		boundOK {
		return Result{Decision: DecisionPass, Metrics: m}
	}

	return Result{Decision: DecisionBorderline, Metrics: m}
}

// lowerBound shrinks the alignment point estimate toward chance as the sample
// count drops: real - z*sqrt(real*(1-real)/max(1,n)), clipped to [0,1].
func lowerBound(real float64, n int, z float64) float64 {
	trials := float64(n)
	if trials < 1 {
		trials = 1
	}
	bound := real - z*math.Sqrt(real*(1-real)/trials)
	if bound < 0 {
		return 0
	}
	if bound > 1 {
		return 1
	}
	return bound
}
