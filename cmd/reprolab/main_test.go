package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nullpoint56/Warships2-sub000/pkg/replay"
	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
	"github.com/Nullpoint56/Warships2-sub000/pkg/statehash"
)

// writeFixture records a session by running the lockstep harness, so the
// checkpoint hashes are correct unless tamper rewrites one.
func writeFixture(t *testing.T, path string, seed int64, checkpointTicks []uint64, tamper bool) {
	t.Helper()

	hooks := replay.LockstepHooks()
	sess := &session.Session{
		SchemaVersion: session.CurrentSchemaVersion,
		SessionID:     "sess-" + filepath.Base(path),
		Seed:          seed,
		BuildID:       "warships2-test",
		TickRate:      60,
		Commands: []session.Command{
			{Tick: 2, Seq: 0, Kind: "fire"},
			{Tick: 4, Seq: 0, Kind: "turn"},
		},
	}
	for _, tick := range checkpointTicks {
		if tick > sess.MaxTick {
			sess.MaxTick = tick
		}
	}

	state := hooks.Init(seed)
	for tick := uint64(0); tick <= sess.MaxTick; tick++ {
		for _, cmd := range sess.Commands {
			if cmd.Tick == tick {
				state = hooks.Apply(state, cmd)
			}
		}
		state = hooks.Step(state)
		for _, cpTick := range checkpointTicks {
			if cpTick == tick {
				sess.Checkpoints = append(sess.Checkpoints, session.Checkpoint{
					Tick: tick,
					Hash: statehash.Format(hooks.Hash(state)),
				})
			}
		}
	}

	if tamper {
		sess.Checkpoints[len(sess.Checkpoints)-1].Hash = "0000000000000000"
	}
	require.NoError(t, session.WriteFile(path, sess))
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"reprolab"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_NoArgs(t *testing.T) {
	code, _, stderr := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Usage")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown command")
}

func TestValidateCmd_Pass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean.json")
	writeFixture(t, path, 42, []uint64{5, 10}, false)

	code, stdout, _ := runCLI(t, "validate", "-session", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "PASS")
}

func TestValidateCmd_Divergence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	writeFixture(t, path, 42, []uint64{5, 10}, true)

	code, stdout, _ := runCLI(t, "validate", "-session", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "FAIL")
	assert.Contains(t, stdout, "tick 10")
}

func TestValidateCmd_JSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	writeFixture(t, path, 42, []uint64{5}, true)

	code, stdout, _ := runCLI(t, "validate", "-session", path, "-json", "-mode", "collect-all")
	assert.Equal(t, 1, code)

	var report replay.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Len(t, report.Mismatches, 1)
	assert.Equal(t, uint64(5), report.Mismatches[0].Tick)
}

func TestValidateCmd_MissingFile(t *testing.T) {
	code, _, stderr := runCLI(t, "validate", "-session", filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Error")
}

func TestValidateCmd_MissingFlag(t *testing.T) {
	code, _, stderr := runCLI(t, "validate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "-session is required")
}

func TestValidateCmd_BadMode(t *testing.T) {
	code, _, stderr := runCLI(t, "validate", "-session", "x.json", "-mode", "whatever")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown mode")
}

func TestValidateCmd_BadHarness(t *testing.T) {
	code, _, stderr := runCLI(t, "validate", "-session", "x.json", "-harness", "real-game")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "unknown harness")
}

func TestBatchCmd_MixedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "a.json"), 1, []uint64{5}, false)
	writeFixture(t, filepath.Join(dir, "b.json"), 2, []uint64{5}, true)
	writeFixture(t, filepath.Join(dir, "c.json"), 3, []uint64{5}, false)

	code, stdout, _ := runCLI(t, "batch", "-dir", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "2 passed, 1 failed")
	assert.Contains(t, stdout, "FAIL  b.json")
}

func TestBatchCmd_AllPass(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "a.json"), 1, []uint64{5}, false)

	code, stdout, _ := runCLI(t, "batch", "-dir", dir)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "1 passed, 0 failed")
}

func TestBatchCmd_MissingDir(t *testing.T) {
	code, _, _ := runCLI(t, "batch", "-dir", filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, 2, code)
}

func TestDiffCmd_Agreement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sess.json")
	writeFixture(t, path, 9, []uint64{8}, false)

	code, stdout, _ := runCLI(t, "diff", "-session", path, "-candidate", "lockstep")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "AGREE")
}

func TestDiffCmd_RequiresCandidate(t *testing.T) {
	code, _, stderr := runCLI(t, "diff", "-session", "x.json")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "-candidate is required")
}

func TestInspectCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sess.json")
	writeFixture(t, path, 7, []uint64{6}, false)

	code, stdout, _ := runCLI(t, "inspect", "-session", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "warships2-test")
	assert.Contains(t, stdout, "Checkpoints: 1")
}

func TestSessionsCmd_AddThenList(t *testing.T) {
	dir := t.TempDir()
	sessPath := filepath.Join(dir, "sess.json")
	dbPath := filepath.Join(dir, "index.db")
	writeFixture(t, sessPath, 3, []uint64{4}, false)

	code, stdout, _ := runCLI(t, "sessions", "-db", dbPath, "-add", sessPath)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "indexed")

	code, stdout, _ = runCLI(t, "sessions", "-db", dbPath)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "sess-sess.json")
	assert.Contains(t, stdout, sessPath)
}

func TestSessionsCmd_EmptyIndex(t *testing.T) {
	code, stdout, _ := runCLI(t, "sessions", "-db", filepath.Join(t.TempDir(), "index.db"))
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "no sessions indexed")
}
