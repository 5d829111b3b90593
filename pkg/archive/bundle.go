package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/Mindburn-Labs/helix/core/pkg/pipeline"
)

// SealedBundle is the archive record of one decision: the digest under which
// its canonical JSON is stored, plus the trace hash for cross-checking.
type SealedBundle struct {
	Digest     string `json:"digest"`
	DecisionID string `json:"decision_id"`
	TraceHash  string `json:"trace_hash"`
}

// Archive seals decisions into a blob store and reopens them with full
// integrity verification.
type Archive struct {
	store BlobStore
}

// New returns an archive over the given store.
func New(store BlobStore) *Archive {
	return &Archive{store: store}
}

// Seal writes the decision's canonical JSON to the store. Sealing the same
// decision twice yields the same digest.
func (a *Archive) Seal(ctx context.Context, d *pipeline.Decision) (*SealedBundle, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal decision: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("archive: canonicalize decision: %w", err)
	}
	digest, err := a.store.Put(ctx, canonical)
	if err != nil {
		return nil, err
	}
	return &SealedBundle{
		Digest:     digest,
		DecisionID: d.DecisionID,
		TraceHash:  d.TraceHash,
	}, nil
}

// Open retrieves a sealed decision and verifies it twice over: the blob
// bytes against the digest, and the embedded trace against its stored hash.
func (a *Archive) Open(ctx context.Context, digest string) (*pipeline.Decision, error) {
	data, err := a.store.Get(ctx, digest)
	if err != nil {
		return nil, err
	}
	if got := Digest(data); got != digest {
		return nil, fmt.Errorf("archive: digest mismatch: stored under %s, content is %s", digest, got)
	}

	var d pipeline.Decision
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("archive: unmarshal decision: %w", err)
	}
	recomputed, err := d.Trace.Hash()
	if err != nil {
		return nil, err
	}
	if recomputed != d.TraceHash {
		return nil, fmt.Errorf("archive: trace hash mismatch for decision %s", d.DecisionID)
	}
	return &d, nil
}
