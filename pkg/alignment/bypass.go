package alignment

// BypassAction is what the caller must do after a gate decision.
type BypassAction string

const (
	ActionNone                BypassAction = "none"
	ActionClarifyFailClosed   BypassAction = "clarify_fail_closed"
	ActionBypassWithUncertain BypassAction = "bypass_with_uncertainty"
)

// Bypass policy reasons.
const (
	ReasonAlignmentFailRepoRequired    = "alignment_fail_repo_required"
	ReasonAlignmentFailOpenWorldBypass = "alignment_fail_open_world_bypass"
)

// BypassInput carries the gate decision plus the caller's answering policy.
type BypassInput struct {
	GateDecision         Decision `json:"gate_decision"`
	RequiresRepoEvidence bool     `json:"requires_repo_evidence"`
	OpenWorldAllowed     bool     `json:"open_world_allowed"`
}

// BypassOutcome is the resolved post-gate action. When the action is
// bypass_with_uncertainty the output MUST carry an explicit uncertainty
// marker; UncertaintyMarker is therefore set on that path and nowhere else.
type BypassOutcome struct {
	Action            BypassAction `json:"action"`
	Reason            string       `json:"reason,omitempty"`
	UncertaintyMarker bool         `json:"uncertainty_marker"`
}

// ResolveBypass applies the open-world bypass policy. This is the system's
// only path to answering despite a failed statistical gate: repo-mandatory
// questions fail closed, open-world questions may proceed flagged.
func ResolveBypass(in BypassInput) BypassOutcome {
	if in.GateDecision != DecisionFail {
		return BypassOutcome{Action: ActionNone}
	}
	if in.RequiresRepoEvidence {
		return BypassOutcome{
			Action: ActionClarifyFailClosed,
			Reason: ReasonAlignmentFailRepoRequired,
		}
	}
	if in.OpenWorldAllowed {
		return BypassOutcome{
			Action:            ActionBypassWithUncertain,
			Reason:            ReasonAlignmentFailOpenWorldBypass,
			UncertaintyMarker: true,
		}
	}
	// Neither repo-mandatory nor open-world: fail closed on the raw gate
	// failure rather than inventing a policy reason.
	return BypassOutcome{
		Action: ActionClarifyFailClosed,
		Reason: FailReasonGate,
	}
}
