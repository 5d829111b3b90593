package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/helix/core/pkg/pipeline"
)

func TestRunDispatch(t *testing.T) {
	var stdout, stderr bytes.Buffer

	called := false
	orig := startServer
	startServer = func() { called = true }
	defer func() { startServer = orig }()

	assert.Equal(t, 0, Run([]string{"helix"}, &stdout, &stderr))
	assert.True(t, called)

	assert.Equal(t, 0, Run([]string{"helix", "version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "helix")

	assert.Equal(t, 2, Run([]string{"helix", "bogus"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestDecideCmdEndToEnd(t *testing.T) {
	dir := t.TempDir()

	registryPath := filepath.Join(dir, "registry.json")
	require.NoError(t, os.WriteFile(registryPath, []byte(`[
		{"id": "warp.soliton", "runtime_safety_eligible": true, "cross_lane_bridge": true, "uncertainty_model_id": "um-gp-01"},
		{"id": "ethos.charter", "runtime_safety_eligible": false, "cross_lane_bridge": false, "uncertainty_model_id": ""}
	]`), 0o644))

	inputPath := filepath.Join(dir, "request.json")
	require.NoError(t, os.WriteFile(inputPath, []byte(`{
		"context": {
			"question": "How does the soliton lattice interact with the charter limits?",
			"blocks": [
				{"path": "sim_core/warp/soliton.go", "block": "lattice stability envelope", "start_line": 10, "end_line": 24},
				{"path": "ethos/charter.md", "block": "charter principle on runtime limits", "start_line": 3, "end_line": 9}
			]
		},
		"retrieval": {"confidence_ratio": 0.91, "has_concept_match": true, "must_include_ok": true, "viability_must_include_ok": true},
		"sample": {"alignment_real": 0.95, "alignment_decoy": 0.40, "stability": 0.92, "contradiction_rate": 0.01, "sample_count": 200},
		"counters": {"token_budget": 100000},
		"user_expects_repo": true,
		"strict_certainty": true,
		"certainty_evidence_ok": true
	}`), 0o644))

	var stdout, stderr bytes.Buffer
	code := runDecideCmd([]string{"--input", inputPath, "--registry", registryPath}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	var dec pipeline.Decision
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &dec))
	assert.True(t, dec.Trace.CertifyAllowed)
	assert.NotEmpty(t, dec.TraceHash)
}

func TestDecideCmdMissingInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, runDecideCmd(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "--input is required")
}

func TestVerifyCmdMissingID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, runVerifyCmd(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "--id is required")
}
