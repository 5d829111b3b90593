// Package assembly builds RelationAssemblyPackets — the structured,
// multi-domain evidence packets consumed by the floor evaluator and the
// arbiter. Domain detection is keyword/path driven; packet construction is
// deterministic for identical inputs so packet hashes are replayable.
package assembly

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ClaimTier is the maturity label attached to an evidence-backed assertion.
type ClaimTier string

const (
	TierDiagnostic   ClaimTier = "diagnostic"
	TierReducedOrder ClaimTier = "reduced-order"
	TierCertified    ClaimTier = "certified"
)

// TierRank orders claim tiers: diagnostic < reduced-order < certified.
// Unknown tiers rank below diagnostic so they can never satisfy a ceiling.
func TierRank(t ClaimTier) int {
	switch t {
	case TierDiagnostic:
		return 1
	case TierReducedOrder:
		return 2
	case TierCertified:
		return 3
	default:
		return 0
	}
}

// EvidenceEntry is a single piece of supporting context inside a packet.
// The EvidenceID is unique within its packet; Span is a stable line range.
type EvidenceEntry struct {
	EvidenceID string    `json:"evidence_id"`
	Path       string    `json:"path"`
	Span       string    `json:"span"`
	Snippet    string    `json:"snippet"`
	Domain     string    `json:"domain"`
	ClaimTier  ClaimTier `json:"claim_tier,omitempty"`
}

// RelationAssemblyPacket is the assembled cross-domain evidence packet.
//
// Invariants:
//   - every evidence_id referenced by SourceMap exists in Evidence
//   - Domains is non-empty whenever BridgeClaims is non-empty
//   - Domains is deduplicated and deterministically ordered
type RelationAssemblyPacket struct {
	Question            string            `json:"question"`
	Domains             []string          `json:"domains"`
	Definitions         map[string]string `json:"definitions,omitempty"`
	BridgeClaims        []string          `json:"bridge_claims"`
	Constraints         []string          `json:"constraints,omitempty"`
	FalsifiabilityHooks []string          `json:"falsifiability_hooks,omitempty"`
	Evidence            []EvidenceEntry   `json:"evidence"`
	SourceMap           map[string]string `json:"source_map"`
}

// DocumentBlock is one retrieved block of context attached to a path.
type DocumentBlock struct {
	Path      string    `json:"path"`
	Block     string    `json:"block"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	ClaimTier ClaimTier `json:"claim_tier,omitempty"`
}

// DomainRule maps a path segment or keyword onto a knowledge domain.
type DomainRule struct {
	Domain   string   `json:"domain" yaml:"domain"`
	Segments []string `json:"segments" yaml:"segments"` // path segments, matched case-insensitively
	Keywords []string `json:"keywords" yaml:"keywords"` // free-text keywords
}

// BuilderPolicy holds the domain-detection table and builder limits.
type BuilderPolicy struct {
	Rules         []DomainRule `json:"rules" yaml:"rules"`
	MaxSnippetLen int          `json:"max_snippet_len" yaml:"max_snippet_len"`
	DefaultDomain string       `json:"default_domain" yaml:"default_domain"`
}

// DefaultBuilderPolicy returns the production domain table.
func DefaultBuilderPolicy() BuilderPolicy {
	return BuilderPolicy{
		Rules: []DomainRule{
			{Domain: "warp", Segments: []string{"warp", "sim_core"}, Keywords: []string{"warp", "metric tensor", "bubble"}},
			{Domain: "ethos", Segments: []string{"ethos"}, Keywords: []string{"ethos", "principle"}},
			{Domain: "verification", Segments: []string{"verifier", "verification"}, Keywords: []string{"casimir", "certificate"}},
			{Domain: "telemetry", Segments: []string{"telemetry", "metrics"}, Keywords: []string{"gauge", "lane pressure"}},
		},
		MaxSnippetLen: 480,
		DefaultDomain: "general",
	}
}

// Builder assembles packets. It carries no mutable state; a Builder value is
// safe for concurrent use.
type Builder struct {
	policy BuilderPolicy
}

// NewBuilder returns a Builder using the given policy.
func NewBuilder(policy BuilderPolicy) *Builder {
	if policy.MaxSnippetLen <= 0 {
		policy.MaxSnippetLen = DefaultBuilderPolicy().MaxSnippetLen
	}
	if policy.DefaultDomain == "" {
		policy.DefaultDomain = DefaultBuilderPolicy().DefaultDomain
	}
	return &Builder{policy: policy}
}

// BuildInput bundles the raw context the retrieval layer hands over.
type BuildInput struct {
	Question     string          `json:"question"`
	ContextPaths []string        `json:"context_paths"`
	ContextText  string          `json:"context_text"`
	Blocks       []DocumentBlock `json:"blocks"`
}

// Build assembles a RelationAssemblyPacket from raw context fragments.
// The result is deterministic: identical inputs produce identical packets.
func (b *Builder) Build(in BuildInput) (*RelationAssemblyPacket, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, fmt.Errorf("assembly: question must not be empty")
	}

	pkt := &RelationAssemblyPacket{
		Question:  norm.NFC.String(strings.TrimSpace(in.Question)),
		SourceMap: make(map[string]string),
	}

	seen := make(map[string]bool)
	addDomain := func(d string) {
		if d == "" || seen[d] {
			return
		}
		seen[d] = true
		pkt.Domains = append(pkt.Domains, d)
	}

	// Paths come first so path-derived domains take the leading positions.
	paths := append([]string(nil), in.ContextPaths...)
	sort.Strings(paths)
	for _, p := range paths {
		addDomain(b.domainForPath(p))
	}
	for _, d := range b.domainsForText(in.ContextText) {
		addDomain(d)
	}

	for i, blk := range in.Blocks {
		domain := b.domainForPath(blk.Path)
		if domain == "" {
			domain = b.policy.DefaultDomain
		}
		addDomain(domain)

		span := spanOf(blk)
		entry := EvidenceEntry{
			EvidenceID: fmt.Sprintf("ev-%03d", i+1),
			Path:       blk.Path,
			Span:       span,
			Snippet:    b.clipSnippet(blk.Block),
			Domain:     domain,
			ClaimTier:  blk.ClaimTier,
		}
		pkt.Evidence = append(pkt.Evidence, entry)
		pkt.SourceMap[entry.EvidenceID] = blk.Path + "#" + span
	}

	// Bridge claims assert a relation between two domains. They exist only
	// when the retrieved context actually spans at least two domains.
	if len(pkt.Domains) >= 2 {
		pkt.Definitions = make(map[string]string, len(pkt.Domains))
		for _, d := range pkt.Domains {
			pkt.Definitions[d] = b.definitionFor(d)
		}
		for i := 0; i+1 < len(pkt.Domains); i++ {
			a, c := pkt.Domains[i], pkt.Domains[i+1]
			pkt.BridgeClaims = append(pkt.BridgeClaims,
				fmt.Sprintf("Evidence in %s constrains the %s interpretation of the question.", a, c))
			pkt.FalsifiabilityHooks = append(pkt.FalsifiabilityHooks,
				fmt.Sprintf("A contradiction between %s and %s evidence falsifies the bridge.", a, c))
		}
	}

	return pkt, nil
}

// Validate checks the packet invariants. Builders always produce valid
// packets; this exists for packets that crossed a serialization boundary.
func (p *RelationAssemblyPacket) Validate() error {
	ids := make(map[string]bool, len(p.Evidence))
	for _, e := range p.Evidence {
		if ids[e.EvidenceID] {
			return fmt.Errorf("assembly: duplicate evidence_id %q", e.EvidenceID)
		}
		ids[e.EvidenceID] = true
	}
	for id := range p.SourceMap {
		if !ids[id] {
			return fmt.Errorf("assembly: source_map references unknown evidence_id %q", id)
		}
	}
	if len(p.BridgeClaims) > 0 && len(p.Domains) == 0 {
		return fmt.Errorf("assembly: bridge claims present without any domain")
	}
	return nil
}

func (b *Builder) domainForPath(path string) string {
	lower := strings.ToLower(path)
	segments := strings.FieldsFunc(lower, func(r rune) bool { return r == '/' || r == '\\' })
	for _, rule := range b.policy.Rules {
		for _, want := range rule.Segments {
			for _, seg := range segments {
				if seg == want {
					return rule.Domain
				}
			}
		}
	}
	return ""
}

func (b *Builder) domainsForText(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	for _, rule := range b.policy.Rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				out = append(out, rule.Domain)
				break
			}
		}
	}
	return out
}

func (b *Builder) definitionFor(domain string) string {
	return fmt.Sprintf("Knowledge lane %q as declared in the domain table.", domain)
}

func (b *Builder) clipSnippet(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	if len(s) > b.policy.MaxSnippetLen {
		s = s[:b.policy.MaxSnippetLen]
	}
	return s
}

func spanOf(blk DocumentBlock) string {
	start, end := blk.StartLine, blk.EndLine
	if start <= 0 {
		start = 1
	}
	if end < start {
		end = start
	}
	return fmt.Sprintf("L%d-L%d", start, end)
}
