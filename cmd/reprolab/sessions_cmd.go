package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Nullpoint56/Warships2-sub000/pkg/sessionstore"
)

// runSessionsCmd implements `reprolab sessions`: the SQLite session index.
// With -add it indexes a session file; otherwise it lists the newest
// entries.
func runSessionsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sessions", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath     string
		addPath    string
		limit      int
		jsonOutput bool
	)
	cmd.StringVar(&dbPath, "db", "reprolab.db", "Path to the session index database")
	cmd.StringVar(&addPath, "add", "", "Index a session document instead of listing")
	cmd.IntVar(&limit, "limit", 50, "Maximum sessions to list")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	store, err := sessionstore.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signalContext()
	defer stop()

	if addPath != "" {
		meta, err := store.AddFile(ctx, addPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "indexed %s (%s)\n", meta.SessionID, meta.ContentHash[:12])
		return 0
	}

	metas, err := store.List(ctx, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(metas, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
		return 0
	}

	if len(metas) == 0 {
		_, _ = fmt.Fprintln(stdout, "no sessions indexed")
		return 0
	}
	for _, m := range metas {
		_, _ = fmt.Fprintf(stdout, "%-16s %-20s seed=%-12d ticks=%-8d cmds=%-6d %s\n",
			m.SessionID, m.BuildID, m.Seed, m.MaxTick, m.Commands, m.Path)
	}
	return 0
}
