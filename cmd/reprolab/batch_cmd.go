package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Nullpoint56/Warships2-sub000/pkg/replay"
)

// runBatchCmd implements `reprolab batch`: the nightly regression gate over
// a directory of recorded sessions.
//
// Exit codes:
//
//	0 = every session passed
//	1 = at least one session failed
//	2 = invalid input
func runBatchCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("batch", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dir         string
		modeName    string
		harnessName string
		jsonOutput  bool
	)
	cmd.StringVar(&dir, "dir", "", "Directory of session documents (REQUIRED)")
	cmd.StringVar(&modeName, "mode", "fail-fast", "Divergence handling per session: fail-fast or collect-all")
	cmd.StringVar(&harnessName, "harness", "lockstep", "Simulation harness to drive")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the aggregate report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dir == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -dir is required")
		return 2
	}
	mode, ok := parseMode(modeName, stderr)
	if !ok {
		return 2
	}
	harness, ok := lookupHarness(harnessName, stderr)
	if !ok {
		return 2
	}

	ctx, stop := signalContext()
	defer stop()

	report, err := replay.ValidateBatch(ctx, dir, harness.Hooks, replay.Options{Mode: mode})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		for _, r := range report.Results {
			switch {
			case r.Error != "":
				_, _ = fmt.Fprintf(stdout, "ERROR %s: %s\n", r.Name, r.Error)
			case r.Passed:
				_, _ = fmt.Fprintf(stdout, "PASS  %s\n", r.Name)
			default:
				_, _ = fmt.Fprintf(stdout, "FAIL  %s: %d mismatch(es)\n", r.Name, r.Mismatches)
			}
		}
		_, _ = fmt.Fprintf(stdout, "%d passed, %d failed\n", report.Passed, report.Failed)
	}

	if report.Failed > 0 {
		return 1
	}
	return 0
}
