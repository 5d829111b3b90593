// Package promotion decides whether a single claim may be certified.
// Certification is the highest-trust output of the whole pipeline: the gate
// is a strict AND-chain with no bypass, evaluated in a fixed order so the
// first failing check alone names the denial.
package promotion

import (
	"strings"

	"github.com/Mindburn-Labs/helix/core/pkg/assembly"
)

// Denial codes, one per chain position.
const (
	CodeCertifiedOnlyRequired        = "KNOWLEDGE_PROMOTION_CERTIFIED_ONLY_REQUIRED"
	CodeMissingEvidenceRef           = "KNOWLEDGE_PROMOTION_MISSING_EVIDENCE_REF"
	CodeUnresolvedEvidenceRef        = "KNOWLEDGE_PROMOTION_UNRESOLVED_EVIDENCE_REF"
	CodeMissingCasimirVerification   = "KNOWLEDGE_PROMOTION_MISSING_CASIMIR_VERIFICATION"
	CodeCertificateIntegrityRequired = "KNOWLEDGE_PROMOTION_CERTIFICATE_INTEGRITY_REQUIRED"
)

// EnforcementEnforce marks a granted promotion as actively enforced.
const EnforcementEnforce = "enforce"

// Verdict is the verification collaborator's output.
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Request is one claim's promotion attempt.
type Request struct {
	ClaimID                string             `json:"claim_id"`
	ClaimTier              assembly.ClaimTier `json:"claim_tier"`
	EvidenceRef            string             `json:"evidence_ref"`
	EvidenceResolved       bool               `json:"evidence_resolved"`
	VerificationVerdict    Verdict            `json:"verification_verdict"`
	CertificateHash        string             `json:"certificate_hash"`
	CertificateIntegrityOk bool               `json:"certificate_integrity_ok"`
}

// Decision is the one-shot, per-claim outcome.
type Decision struct {
	OK          bool   `json:"ok"`
	Code        string `json:"code,omitempty"`
	Enforcement string `json:"enforcement,omitempty"`
}

// Evaluate runs the promotion AND-chain. First failure wins; a granted
// promotion always carries enforcement "enforce".
func Evaluate(req Request) Decision {
	if req.ClaimTier != assembly.TierCertified {
		return Decision{OK: false, Code: CodeCertifiedOnlyRequired}
	}
	if strings.TrimSpace(req.EvidenceRef) == "" {
		return Decision{OK: false, Code: CodeMissingEvidenceRef}
	}
	if !req.EvidenceResolved {
		return Decision{OK: false, Code: CodeUnresolvedEvidenceRef}
	}
	if req.VerificationVerdict != VerdictPass {
		return Decision{OK: false, Code: CodeMissingCasimirVerification}
	}
	if req.CertificateHash == "" || !req.CertificateIntegrityOk {
		return Decision{OK: false, Code: CodeCertificateIntegrityRequired}
	}
	return Decision{OK: true, Enforcement: EnforcementEnforce}
}
