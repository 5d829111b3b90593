// Package knowledge provides the read-only knowledge/uncertainty-model
// registry and the safety validators that run over it. Registry rows have a
// strongly-typed schema validated at load time; malformed rows are rejected
// early instead of being treated as silently falsy.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Row is one knowledge-registry entry. A row marked both
// runtime_safety_eligible and cross_lane_bridge is usable for runtime
// cross-lane claims and must therefore declare an uncertainty model.
type Row struct {
	ID                    string `json:"id"`
	RuntimeSafetyEligible bool   `json:"runtime_safety_eligible"`
	CrossLaneBridge       bool   `json:"cross_lane_bridge"`
	UncertaintyModelID    string `json:"uncertainty_model_id"`
	ClaimTier             string `json:"claim_tier,omitempty"`
}

// Registry is the read-only row source consulted by the validators.
type Registry interface {
	// Rows returns every registry row. Implementations must not mutate
	// rows after returning them.
	Rows(ctx context.Context) ([]Row, error)
}

const rowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "runtime_safety_eligible", "cross_lane_bridge"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "runtime_safety_eligible": {"type": "boolean"},
      "cross_lane_bridge": {"type": "boolean"},
      "uncertainty_model_id": {"type": "string"},
      "claim_tier": {"type": "string", "enum": ["diagnostic", "reduced-order", "certified", ""]}
    },
    "additionalProperties": false
  }
}`

var rowSchema = jsonschema.MustCompileString("https://helix.schemas.local/knowledge/rows.schema.json", rowSchemaJSON)

// MemoryRegistry is an immutable in-memory registry, loaded once and then
// safe for concurrent reads.
type MemoryRegistry struct {
	rows []Row
}

// LoadRegistry parses and schema-validates a JSON row document.
// Validation failures name the offending location; no partial load occurs.
func LoadRegistry(data []byte) (*MemoryRegistry, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("knowledge: registry document is not valid JSON: %w", err)
	}
	if err := rowSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("knowledge: registry document rejected by schema: %w", err)
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("knowledge: registry decode failed: %w", err)
	}
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if id := strings.TrimSpace(r.ID); id == "" {
			return nil, fmt.Errorf("knowledge: registry row has blank id")
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("knowledge: duplicate registry row id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return &MemoryRegistry{rows: rows}, nil
}

// Rows implements Registry.
func (m *MemoryRegistry) Rows(ctx context.Context) ([]Row, error) {
	out := make([]Row, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

// Len reports the number of loaded rows.
func (m *MemoryRegistry) Len() int { return len(m.rows) }
