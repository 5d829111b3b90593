package guardian_test

import (
	"testing"

	"github.com/Mindburn-Labs/helix/core/pkg/guardian"
	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		in   guardian.Input
		want guardian.Outcome
	}{
		{
			name: "nonzero support never triggers",
			in:   guardian.Input{SupportRatio: 0.01, MissingRequiredSlots: []string{"anchor"}},
			want: guardian.Outcome{Triggered: false, Action: guardian.ActionNone},
		},
		{
			name: "zero support without bypass fails closed",
			in:   guardian.Input{SupportRatio: 0},
			want: guardian.Outcome{
				Triggered: true,
				Action:    guardian.ActionClarifyFailClosed,
				Reason:    guardian.ReasonSupportRatioZero,
			},
		},
		{
			name: "zero support with bypass and missing slots continues flagged",
			in: guardian.Input{
				SupportRatio:          0,
				OpenWorldBypassActive: true,
				MissingRequiredSlots:  []string{"definition", "anchor"},
			},
			want: guardian.Outcome{
				Triggered: true,
				Action:    guardian.ActionBypassWithUncertain,
				Reason:    guardian.ReasonSupportZeroRequiredSlotsMissing,
			},
		},
		{
			name: "zero support with bypass but complete slots still fails closed",
			in:   guardian.Input{SupportRatio: 0, OpenWorldBypassActive: true},
			want: guardian.Outcome{
				Triggered: true,
				Action:    guardian.ActionClarifyFailClosed,
				Reason:    guardian.ReasonSupportRatioZero,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guardian.Evaluate(tt.in))
		})
	}
}

func TestGuardOverridesRegardlessOfBypassFlagWhenInactive(t *testing.T) {
	// Zero support and no bypass must always fail closed no matter what
	// mode the arbiter picked upstream.
	for i := 0; i < 5; i++ {
		got := guardian.Evaluate(guardian.Input{SupportRatio: 0, OpenWorldBypassActive: false})
		assert.True(t, got.Triggered)
		assert.Equal(t, guardian.ActionClarifyFailClosed, got.Action)
	}
}
