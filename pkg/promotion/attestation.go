package promotion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gowebpki/jcs"
)

// CertificatePayload is the canonical verification record whose hash the
// promotion gate checks. Hashing goes through RFC 8785 canonicalization so
// key order and whitespace can never change the digest.
type CertificatePayload struct {
	ClaimID     string  `json:"claim_id"`
	EvidenceRef string  `json:"evidence_ref"`
	Verdict     Verdict `json:"verdict"`
	VerifierID  string  `json:"verifier_id"`
	IssuedAt    string  `json:"issued_at"` // RFC 3339, supplied by the verifier
}

// HashCertificate computes the canonical sha256 digest of a payload.
func HashCertificate(p CertificatePayload) (string, error) {
	raw, err := jcsMarshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// VerifyCertificate recomputes the payload digest and compares it to the
// stored hash. A mismatch means the certificate was altered after issuance.
func VerifyCertificate(p CertificatePayload, storedHash string) (bool, error) {
	if storedHash == "" {
		return false, errors.New("promotion: stored certificate hash is empty")
	}
	got, err := HashCertificate(p)
	if err != nil {
		return false, err
	}
	return got == storedHash, nil
}

func jcsMarshal(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("promotion: certificate marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("promotion: certificate canonicalization failed: %w", err)
	}
	return canonical, nil
}

// AttestationClaims is the signed record minted for a granted promotion.
// Consumed by downstream ledgers; never an input to the decision itself.
type AttestationClaims struct {
	ClaimID         string `json:"claim_id"`
	ClaimTier       string `json:"claim_tier"`
	EvidenceRef     string `json:"evidence_ref"`
	Verdict         string `json:"verdict"`
	CertificateHash string `json:"certificate_hash"`
	jwt.RegisteredClaims
}

// Attestor mints promotion attestation tokens.
type Attestor struct {
	key    []byte
	issuer string
	clock  func() time.Time
}

// NewAttestor creates an HMAC-signing attestor. The clock is injectable for
// deterministic tests.
func NewAttestor(key []byte, issuer string) *Attestor {
	return &Attestor{key: key, issuer: issuer, clock: time.Now}
}

// WithClock overrides the clock.
func (a *Attestor) WithClock(clock func() time.Time) *Attestor {
	a.clock = clock
	return a
}

// Mint signs an attestation for a granted promotion. Denied promotions can
// never be attested.
func (a *Attestor) Mint(req Request, dec Decision) (string, error) {
	if !dec.OK {
		return "", errors.New("promotion: cannot attest a denied promotion")
	}
	if len(a.key) == 0 {
		return "", errors.New("promotion: attestor signing key not configured")
	}

	now := a.clock().UTC()
	claims := AttestationClaims{
		ClaimID:         req.ClaimID,
		ClaimTier:       string(req.ClaimTier),
		EvidenceRef:     req.EvidenceRef,
		Verdict:         string(req.VerificationVerdict),
		CertificateHash: req.CertificateHash,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   a.issuer,
			Subject:  req.ClaimID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("promotion: attestation signing failed: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an attestation token.
func (a *Attestor) Verify(tokenString string) (*AttestationClaims, error) {
	claims := &AttestationClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("promotion: unexpected signing method %v", t.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("promotion: attestation verify failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("promotion: attestation token invalid")
	}
	return claims, nil
}
