//go:build property
// +build property

// Property-based tests for alignment gate determinism and monotonicity.
package alignment_test

import (
	"testing"

	"github.com/Mindburn-Labs/helix/core/pkg/alignment"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func unitFloat() gopter.Gen {
	return gen.Float64Range(0, 1)
}

func TestGateDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("identical samples produce identical results", prop.ForAll(
		func(real, decoy, stab, contra float64, n int) bool {
			s := alignment.Sample{
				AlignmentReal:     real,
				AlignmentDecoy:    decoy,
				Stability:         stab,
				ContradictionRate: contra,
				SampleCount:       n,
			}
			p := alignment.DefaultPolicy()
			return alignment.Evaluate(s, p) == alignment.Evaluate(s, p)
		},
		unitFloat(), unitFloat(), unitFloat(), unitFloat(), gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}

func TestGateMonotoneProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	rank := func(d alignment.Decision) int {
		switch d {
		case alignment.DecisionFail:
			return 0
		case alignment.DecisionBorderline:
			return 1
		default:
			return 2
		}
	}

	properties.Property("raising alignment_real never weakens the decision", prop.ForAll(
		func(real, bump, decoy, stab, contra float64, n int) bool {
			lo := alignment.Sample{
				AlignmentReal:     real,
				AlignmentDecoy:    decoy,
				Stability:         stab,
				ContradictionRate: contra,
				SampleCount:       n,
			}
			hi := lo
			hi.AlignmentReal = real + (1-real)*bump
			p := alignment.DefaultPolicy()
			return rank(alignment.Evaluate(hi, p).Decision) >= rank(alignment.Evaluate(lo, p).Decision)
		},
		unitFloat(), unitFloat(), unitFloat(), unitFloat(), unitFloat(), gen.IntRange(1, 500),
	))

	properties.TestingRun(t)
}
