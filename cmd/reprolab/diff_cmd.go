package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Nullpoint56/Warships2-sub000/pkg/replay"
	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
)

// runDiffCmd implements `reprolab diff`: two harnesses, one recording,
// report the first tick where their live state hashes disagree.
//
// Exit codes:
//
//	0 = builds agree over the whole session
//	1 = builds diverged
//	2 = invalid input
func runDiffCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("diff", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		sessionPath   string
		baselineName  string
		candidateName string
		jsonOutput    bool
	)
	cmd.StringVar(&sessionPath, "session", "", "Path to session document (REQUIRED)")
	cmd.StringVar(&baselineName, "baseline", "lockstep", "Baseline harness")
	cmd.StringVar(&candidateName, "candidate", "", "Candidate harness (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if sessionPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -session is required")
		return 2
	}
	if candidateName == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -candidate is required")
		return 2
	}
	baseline, ok := lookupHarness(baselineName, stderr)
	if !ok {
		return 2
	}
	candidate, ok := lookupHarness(candidateName, stderr)
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

	report, err := replay.ValidateDifferential(ctx, sess, baseline.Hooks, candidate.Hooks)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if report.Diverged {
		_, _ = fmt.Fprintf(stdout, "DIVERGED %s at tick %d: %s=%s %s=%s\n",
			report.SessionID, report.FirstDivergenceTick,
			baselineName, report.BaselineHash, candidateName, report.CandidateHash)
	} else {
		_, _ = fmt.Fprintf(stdout, "AGREE %s: %d ticks\n", report.SessionID, report.TicksExecuted)
	}

	if report.Diverged {
		return 1
	}
	return 0
}
