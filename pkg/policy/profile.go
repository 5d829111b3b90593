// Package policy loads and validates decision-policy profiles: versioned
// YAML documents that override the built-in stage defaults and declare the
// high-stakes predicates evaluated per request. Profiles are validated
// against a JSON Schema at load time and checked for engine compatibility
// before any override is applied.
package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/helix/core/pkg/pipeline"
)

// EngineVersion is the decision-engine compatibility version profiles
// constrain against. Bump the minor on additive profile fields, the major on
// incompatible ones.
const EngineVersion = "1.2.0"

// Profile is one named, versioned policy document.
type Profile struct {
	Name      string `yaml:"name" json:"name"`
	Version   string `yaml:"version" json:"version"`
	MinEngine string `yaml:"min_engine,omitempty" json:"min_engine,omitempty"`

	// Pipeline holds the stage overrides. Fields absent from the document
	// keep their production defaults.
	Pipeline pipeline.Policies `yaml:"pipeline" json:"pipeline"`

	// HighStakesRules are CEL predicates over the request; any rule
	// evaluating true marks the request high-stakes.
	HighStakesRules []string `yaml:"high_stakes_rules,omitempty" json:"high_stakes_rules,omitempty"`
}

const profileSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "version"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "min_engine": {"type": "string"},
    "pipeline": {
      "type": "object",
      "properties": {
        "builder": {"type": "object"},
        "floor": {
          "type": "object",
          "properties": {
            "min_bridges": {"type": "integer", "minimum": 0},
            "min_evidence": {"type": "integer", "minimum": 0}
          },
          "additionalProperties": false
        },
        "alignment": {
          "type": "object",
          "properties": {
            "z": {"type": "number", "exclusiveMinimum": 0},
            "pass_margin": {"type": "number"},
            "fail_margin": {"type": "number"},
            "pass_stability": {"type": "number", "minimum": 0, "maximum": 1},
            "pass_contradiction": {"type": "number", "minimum": 0, "maximum": 1},
            "fail_contradiction": {"type": "number", "minimum": 0, "maximum": 1},
            "lower_bound_floor": {"type": "number", "minimum": 0, "maximum": 1}
          },
          "additionalProperties": false
        },
        "budget": {"type": "object"},
        "arbiter": {
          "type": "object",
          "properties": {
            "repo_ratio": {"type": "number", "minimum": 0, "maximum": 1},
            "hybrid_ratio": {"type": "number", "minimum": 0, "maximum": 1}
          },
          "additionalProperties": false
        }
      },
      "additionalProperties": false
    },
    "high_stakes_rules": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    }
  },
  "additionalProperties": false
}`

var profileSchema = jsonschema.MustCompileString("https://helix.schemas.local/policy/profile.schema.json", profileSchemaJSON)

// Load reads, validates, and decodes one profile file. Overrides are applied
// on top of the production defaults, so a minimal profile of just name and
// version is valid and equivalent to DefaultPolicies.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: load profile: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy: profile %s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// Parse validates and decodes a profile document.
func Parse(data []byte) (*Profile, error) {
	// Schema validation runs over the JSON rendering of the YAML document
	// so unknown and mistyped keys fail loudly instead of being dropped.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	normalized, err := normalizeForSchema(doc)
	if err != nil {
		return nil, err
	}
	if err := profileSchema.Validate(normalized); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	p := &Profile{Pipeline: pipeline.DefaultPolicies()}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if _, err := semver.NewVersion(p.Version); err != nil {
		return nil, fmt.Errorf("version %q: %w", p.Version, err)
	}
	if err := p.checkEngineCompatibility(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadAll loads every profile_*.yaml in dir, keyed by profile name.
func LoadAll(dir string) (map[string]*Profile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}
	profiles := make(map[string]*Profile, len(matches))
	for _, path := range matches {
		p, err := Load(path)
		if err != nil {
			return nil, err
		}
		if _, dup := profiles[p.Name]; dup {
			return nil, fmt.Errorf("policy: duplicate profile name %q", p.Name)
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}

func (p *Profile) checkEngineCompatibility() error {
	if strings.TrimSpace(p.MinEngine) == "" {
		return nil
	}
	c, err := semver.NewConstraint(p.MinEngine)
	if err != nil {
		return fmt.Errorf("min_engine %q: %w", p.MinEngine, err)
	}
	engine := semver.MustParse(EngineVersion)
	if !c.Check(engine) {
		return fmt.Errorf("profile %q requires engine %q, running %s", p.Name, p.MinEngine, EngineVersion)
	}
	return nil
}

// normalizeForSchema converts YAML-decoded values into the shapes the JSON
// Schema validator expects (string-keyed maps, json.Number-free scalars).
func normalizeForSchema(doc any) (any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	return out, nil
}
