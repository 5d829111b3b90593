package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Mindburn-Labs/helix/core/pkg/pipeline"
	"github.com/Mindburn-Labs/helix/core/pkg/policy"
)

// runDecideCmd implements `helix decide`.
//
// Arbitrates a single request offline: no server, no receipt store, no
// escalation windows. Useful for replaying captured requests and for
// policy-profile dry runs.
//
// Exit codes:
//
//	0 = decision produced
//	1 = decision produced but certification blocked
//	2 = runtime error
func runDecideCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("decide", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inputPath    string
		registryPath string
		profilePath  string
	)

	cmd.StringVar(&inputPath, "input", "", "Path to request JSON, or - for stdin (REQUIRED)")
	cmd.StringVar(&registryPath, "registry", "data/registry.json", "Path to knowledge registry JSON")
	cmd.StringVar(&profilePath, "profile", "", "Path to a policy profile YAML (defaults apply when empty)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if inputPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --input is required")
		return 2
	}

	var raw []byte
	var err error
	if inputPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(inputPath)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: read input: %v\n", err)
		return 2
	}

	var req pipeline.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: parse request: %v\n", err)
		return 2
	}

	registry, err := loadRegistry(registryPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	policies := pipeline.DefaultPolicies()
	if profilePath != "" {
		profile, err := policy.Load(profilePath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		policies = profile.Pipeline
	}

	engine := pipeline.NewEngine(policies, registry)
	dec, err := engine.Evaluate(context.Background(), req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: evaluate: %v\n", err)
		return 2
	}

	writeResult(stdout, dec)
	if !dec.Trace.CertifyAllowed {
		return 1
	}
	return 0
}
