// Package guardian implements the frontier hard guard — the last check in
// the decision pipeline. The arbiter's ratio thresholds can produce
// non-conservative results at the exact zero-support boundary, so the guard
// runs after everything else and may override the arbiter's mode entirely.
package guardian

// Action is what the guard instructs the caller to do.
type Action string

const (
	ActionNone                Action = "none"
	ActionClarifyFailClosed   Action = "clarify_fail_closed"
	ActionBypassWithUncertain Action = "bypass_with_uncertainty"
)

// Guard trigger reasons.
const (
	ReasonSupportRatioZero                = "support_ratio_zero"
	ReasonSupportZeroRequiredSlotsMissing = "support_ratio_zero_and_required_slots_missing"
)

// Input is the guard's view of the finished pipeline run.
type Input struct {
	SupportRatio          float64  `json:"support_ratio"`
	MissingRequiredSlots  []string `json:"missing_required_slots,omitempty"`
	OpenWorldBypassActive bool     `json:"open_world_bypass_active"`
}

// Outcome reports whether the guard fired and what must happen instead.
type Outcome struct {
	Triggered bool   `json:"triggered"`
	Action    Action `json:"action"`
	Reason    string `json:"reason,omitempty"`
}

// Evaluate applies the hard guard. Zero evidentiary support always triggers:
// fail closed unless an open-world bypass is already active and required
// slots are also missing, in which case the bypass continues flagged.
func Evaluate(in Input) Outcome {
	if in.SupportRatio != 0 {
		return Outcome{Triggered: false, Action: ActionNone}
	}
	if in.OpenWorldBypassActive && len(in.MissingRequiredSlots) > 0 {
		return Outcome{
			Triggered: true,
			Action:    ActionBypassWithUncertain,
			Reason:    ReasonSupportZeroRequiredSlotsMissing,
		}
	}
	return Outcome{
		Triggered: true,
		Action:    ActionClarifyFailClosed,
		Reason:    ReasonSupportRatioZero,
	}
}
