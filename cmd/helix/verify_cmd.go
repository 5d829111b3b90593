package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/helix/core/pkg/store"
)

// runVerifyCmd implements `helix verify`.
//
// Recomputes a stored decision's canonical trace hash and compares it to
// the hash recorded when the decision was made. A mismatch means the
// receipt was altered after the fact.
//
// Exit codes:
//
//	0 = trace hash verified
//	1 = verification failed
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		decisionID string
		dbPath     string
		jsonOutput bool
	)

	cmd.StringVar(&decisionID, "id", "", "Decision ID to verify (REQUIRED)")
	cmd.StringVar(&dbPath, "db", "data/decisions.db", "Path to the receipt database")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if decisionID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --id is required")
		return 2
	}

	receipts, err := store.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: open receipt store: %v\n", err)
		return 2
	}
	defer func() { _ = receipts.Close() }()

	ctx := context.Background()
	ok, err := receipts.Verify(ctx, decisionID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: verify: %v\n", err)
		return 2
	}

	if jsonOutput {
		writeResult(stdout, map[string]any{
			"decision_id": decisionID,
			"verified":    ok,
		})
	} else if ok {
		fmt.Fprintf(stdout, "%s✓ trace hash verified%s %s\n", ColorGreen, ColorReset, decisionID)
	} else {
		fmt.Fprintf(stdout, "✗ trace hash MISMATCH %s\n", decisionID)
	}

	if !ok {
		return 1
	}
	return 0
}
