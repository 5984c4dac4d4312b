package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/Nullpoint56/Warships2-sub000/pkg/replay"
	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
)

// runValidateCmd implements `reprolab validate`.
//
// Exit codes:
//
//	0 = session replayed cleanly
//	1 = at least one checkpoint diverged
//	2 = invalid input or malformed session
func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		sessionPath string
		modeName    string
		harnessName string
		radius      uint64
		jsonOutput  bool
	)
	cmd.StringVar(&sessionPath, "session", "", "Path to session document (REQUIRED)")
	cmd.StringVar(&modeName, "mode", "fail-fast", "Divergence handling: fail-fast or collect-all")
	cmd.StringVar(&harnessName, "harness", "lockstep", "Simulation harness to drive")
	cmd.Uint64Var(&radius, "radius", replay.DefaultContextRadius, "Ticks of command context around a mismatch")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if sessionPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -session is required")
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

	sess, err := session.Load(sessionPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signalContext()
	defer stop()

	report, err := replay.Validate(ctx, sess, harness.Hooks, replay.Options{Mode: mode, ContextRadius: radius})
	if err != nil {
		if errors.Is(err, context.Canceled) && report != nil {
			_, _ = fmt.Fprintf(stderr, "Interrupted after %d ticks\n", report.TicksExecuted)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else {
		printReport(stdout, report)
	}

	if !report.Passed() {
		return 1
	}
	return 0
}

func printReport(w io.Writer, report *replay.Report) {
	if report.Passed() {
		_, _ = fmt.Fprintf(w, "PASS %s (%s): %d ticks, %d checkpoints\n",
			report.SessionID, report.BuildID, report.TicksExecuted, report.CheckpointsChecked)
		return
	}

	_, _ = fmt.Fprintf(w, "FAIL %s (%s): %d mismatch(es)\n",
		report.SessionID, report.BuildID, len(report.Mismatches))
	for _, m := range report.Mismatches {
		_, _ = fmt.Fprintf(w, "  tick %d: expected %s, got %s (confidence %.1f)\n",
			m.Tick, m.Expected, m.Actual, m.Confidence)
		for _, cmd := range m.NearbyCommands {
			_, _ = fmt.Fprintf(w, "    tick %d seq %d: %s\n", cmd.Tick, cmd.Seq, cmd.Kind)
		}
	}
}
