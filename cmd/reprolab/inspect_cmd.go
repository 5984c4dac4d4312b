package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
)

// runInspectCmd implements `reprolab inspect`: print a session manifest
// without replaying it.
func runInspectCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("inspect", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		sessionPath string
		jsonOutput  bool
	)
	cmd.StringVar(&sessionPath, "session", "", "Path to session document (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output the manifest as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if sessionPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -session is required")
		return 2
	}

	sess, err := session.Load(sessionPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		manifest := map[string]any{
			"schema_version": sess.SchemaVersion,
			"session_id":     sess.SessionID,
			"build_id":       sess.BuildID,
			"seed":           sess.Seed,
			"tick_rate":      sess.TickRate,
			"created_at":     sess.CreatedAt,
			"max_tick":       sess.MaxTick,
			"commands":       len(sess.Commands),
			"checkpoints":    len(sess.Checkpoints),
		}
		data, _ := json.MarshalIndent(manifest, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "Session:     %s\n", sess.SessionID)
	_, _ = fmt.Fprintf(stdout, "Build:       %s\n", sess.BuildID)
	_, _ = fmt.Fprintf(stdout, "Schema:      %s\n", sess.SchemaVersion)
	_, _ = fmt.Fprintf(stdout, "Seed:        %d\n", sess.Seed)
	_, _ = fmt.Fprintf(stdout, "Tick rate:   %d\n", sess.TickRate)
	_, _ = fmt.Fprintf(stdout, "Created:     %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	_, _ = fmt.Fprintf(stdout, "Max tick:    %d\n", sess.MaxTick)
	_, _ = fmt.Fprintf(stdout, "Commands:    %d\n", len(sess.Commands))
	_, _ = fmt.Fprintf(stdout, "Checkpoints: %d\n", len(sess.Checkpoints))
	return 0
}
