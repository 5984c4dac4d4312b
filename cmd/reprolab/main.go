// Command reprolab is the offline replay and triage tool: it validates
// recorded sessions against a deterministic simulation harness, compares two
// builds over the same recording, and inspects the session archive.
//
// Exit codes:
//
//	0 = pass
//	1 = divergence or regression detected
//	2 = invalid input, malformed session, or runtime error
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Nullpoint56/Warships2-sub000/pkg/replay"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// harnesses is swapped out in tests; a shipping build registers the real
// simulation harness here during init.
var harnesses = replay.DefaultHarnesses()

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "validate":
		return runValidateCmd(args[2:], stdout, stderr)
	case "batch":
		return runBatchCmd(args[2:], stdout, stderr)
	case "diff":
		return runDiffCmd(args[2:], stdout, stderr)
	case "inspect":
		return runInspectCmd(args[2:], stdout, stderr)
	case "sessions":
		return runSessionsCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `Usage: reprolab <command> [flags]

Commands:
  validate   replay one session and check its state-hash checkpoints
  batch      validate every session in a directory
  diff       run two harnesses over one session and report first divergence
  inspect    print a session's manifest summary
  sessions   list or update the session index

Run "reprolab <command> -h" for command flags.`)
}

// signalContext cancels on SIGINT/SIGTERM so long replays stop cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func lookupHarness(name string, stderr io.Writer) (replay.Harness, bool) {
	h, ok := harnesses.Get(name)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Error: unknown harness %q (available: %v)\n", name, harnesses.Names())
	}
	return h, ok
}

func parseMode(s string, stderr io.Writer) (replay.Mode, bool) {
	switch s {
	case "fail-fast", "fail_fast", "":
		return replay.ModeFailFast, true
	case "collect-all", "collect_all":
		return replay.ModeCollectAll, true
	default:
		_, _ = fmt.Fprintf(stderr, "Error: unknown mode %q (use fail-fast or collect-all)\n", s)
		return "", false
	}
}
