package knowledge

import (
	"context"
	"sort"

	"github.com/Mindburn-Labs/helix/core/pkg/assembly"
)

// Safety-floor failure codes. These are always surfaced, never silently
// dropped, and block promotion downstream.
const (
	FailCrossLaneMissingUncertaintyModel = "FAIL_CROSS_LANE_MISSING_UNCERTAINTY_MODEL"
	FailMaturityCeilingViolation         = "FAIL_MATURITY_CEILING_VIOLATION"
)

// ValidationResult distinguishes "not applicable" from "applicable and
// passing": Referenced reports whether the validator found anything to check.
type ValidationResult struct {
	Referenced bool     `json:"referenced"`
	Pass       bool     `json:"pass"`
	FailReason string   `json:"fail_reason,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

// ValidateCrossLane checks that every registry row marked both
// runtime_safety_eligible and cross_lane_bridge declares an uncertainty
// model. Any violation fails the whole validation closed.
func ValidateCrossLane(ctx context.Context, reg Registry) (ValidationResult, error) {
	rows, err := reg.Rows(ctx)
	if err != nil {
		return ValidationResult{}, err
	}

	res := ValidationResult{Pass: true}
	for _, r := range rows {
		if !r.RuntimeSafetyEligible || !r.CrossLaneBridge {
			continue
		}
		res.Referenced = true
		if r.UncertaintyModelID == "" {
			res.Pass = false
			res.FailReason = FailCrossLaneMissingUncertaintyModel
			res.Violations = append(res.Violations, r.ID)
		}
	}
	sort.Strings(res.Violations)
	return res, nil
}

// ValidateMaturity scans evidence entries for certified-tier claims appearing
// where the surrounding context allows at most maxTier. A draft answer must
// not silently inherit a certified-sounding claim.
func ValidateMaturity(entries []assembly.EvidenceEntry, maxTier assembly.ClaimTier) ValidationResult {
	res := ValidationResult{Pass: true}
	ceiling := assembly.TierRank(maxTier)
	for _, e := range entries {
		if e.ClaimTier == "" {
			continue
		}
		res.Referenced = true
		if e.ClaimTier == assembly.TierCertified && assembly.TierRank(assembly.TierCertified) > ceiling {
			res.Pass = false
			res.FailReason = FailMaturityCeilingViolation
			res.Violations = append(res.Violations, e.EvidenceID)
		}
	}
	sort.Strings(res.Violations)
	return res
}
