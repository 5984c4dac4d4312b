package record

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
)

func fixedClock() func() time.Time {
	fixed := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return fixed }
}

func TestStart_ValidatesArguments(t *testing.T) {
	_, err := Start(1, "", 60)
	require.Error(t, err)
	_, err = Start(1, "build", 0)
	require.Error(t, err)

	r, err := Start(42, "warships2-2026.08.1", 60)
	require.NoError(t, err)
	require.Equal(t, StateRecording, r.State())
	require.NotEmpty(t, r.SessionID())
}

func TestRecordCommand_AppendsInOrder(t *testing.T) {
	r, err := Start(1, "build", 60)
	require.NoError(t, err)

	require.NoError(t, r.RecordCommand(5, "fire", json.RawMessage(`{"turret":1}`)))
	require.NoError(t, r.RecordCommand(5, "turn", nil))
	require.NoError(t, r.RecordCommand(8, "fire", nil))

	sess := r.Session()
	require.Len(t, sess.Commands, 3)
	require.Equal(t, 0, sess.Commands[0].Seq)
	require.Equal(t, 1, sess.Commands[1].Seq)
	require.Equal(t, 0, sess.Commands[2].Seq)
	require.Equal(t, uint64(8), sess.MaxTick)
}

func TestRecordCommand_RejectsOutOfOrder(t *testing.T) {
	r, err := Start(1, "build", 60)
	require.NoError(t, err)

	require.NoError(t, r.RecordCommand(10, "fire", nil))
	err = r.RecordCommand(9, "fire", nil)
	require.ErrorIs(t, err, ErrOrderingViolation)

	// The rejected write left no trace.
	require.Len(t, r.Session().Commands, 1)
}

func TestRecordCommand_RejectsTickBeforeCheckpoint(t *testing.T) {
	r, err := Start(1, "build", 60)
	require.NoError(t, err)

	require.NoError(t, r.Checkpoint(10, 0xaa))
	err = r.RecordCommand(9, "fire", nil)
	require.ErrorIs(t, err, ErrOrderingViolation)
	require.NoError(t, r.RecordCommand(10, "fire", nil))
}

func TestCheckpoint_StrictlyIncreasing(t *testing.T) {
	r, err := Start(1, "build", 60)
	require.NoError(t, err)

	require.NoError(t, r.Checkpoint(10, 0xaa))
	require.ErrorIs(t, r.Checkpoint(10, 0xab), ErrOrderingViolation)
	require.ErrorIs(t, r.Checkpoint(3, 0xac), ErrOrderingViolation)
	require.NoError(t, r.Checkpoint(20, 0xad))

	sess := r.Session()
	require.Len(t, sess.Checkpoints, 2)
	require.Equal(t, "00000000000000aa", sess.Checkpoints[0].Hash)
	require.Equal(t, uint64(20), sess.MaxTick)
}

func TestExport_SealsRecorder(t *testing.T) {
	r, err := Start(7, "build", 60)
	require.NoError(t, err)
	r.WithClock(fixedClock())
	require.NoError(t, r.RecordCommand(1, "fire", nil))

	path := filepath.Join(t.TempDir(), "sess.json")
	exported, err := r.Export(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, StateExported, r.State())
	require.Len(t, exported.Commands, 1)

	require.ErrorIs(t, r.RecordCommand(2, "fire", nil), ErrSessionSealed)
	require.ErrorIs(t, r.Checkpoint(2, 1), ErrSessionSealed)
}

func TestExport_IdempotentBytes(t *testing.T) {
	r, err := Start(7, "build", 60)
	require.NoError(t, err)
	r.WithClock(fixedClock())
	require.NoError(t, r.RecordCommand(1, "fire", nil))
	require.NoError(t, r.Checkpoint(2, 99))

	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.json")
	p2 := filepath.Join(dir, "b.json")
	_, err = r.Export(context.Background(), p1)
	require.NoError(t, err)
	_, err = r.Export(context.Background(), p2)
	require.NoError(t, err)

	b1, err := os.ReadFile(p1)
	require.NoError(t, err)
	b2, err := os.ReadFile(p2)
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestExport_ProducesLoadableSession(t *testing.T) {
	r, err := Start(99, "warships2-2026.08.1", 30)
	require.NoError(t, err)
	r.WithClock(fixedClock())
	require.NoError(t, r.RecordCommand(3, "spawn", json.RawMessage(`{"class":"destroyer"}`)))
	require.NoError(t, r.Checkpoint(4, 0xdeadbeef))

	path := filepath.Join(t.TempDir(), "sess.json")
	_, err = r.Export(context.Background(), path)
	require.NoError(t, err)

	loaded, err := session.Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(99), loaded.Seed)
	require.Equal(t, 30, loaded.TickRate)
	require.Equal(t, uint64(4), loaded.MaxTick)
}

func TestExport_WriteFailureLeavesRecorderRecording(t *testing.T) {
	r, err := Start(1, "build", 60)
	require.NoError(t, err)
	require.NoError(t, r.RecordCommand(1, "fire", nil))

	// A file where the session directory should be makes the write fail.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err = r.Export(context.Background(), filepath.Join(blocker, "sess.json"))
	require.Error(t, err)
	require.Equal(t, StateRecording, r.State())
	require.NoError(t, r.RecordCommand(2, "turn", nil))

	// The retry to a writable path seals as usual.
	path := filepath.Join(t.TempDir(), "sess.json")
	_, err = r.Export(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, StateExported, r.State())
	require.ErrorIs(t, r.RecordCommand(3, "fire", nil), ErrSessionSealed)
}

func TestExport_Canceled(t *testing.T) {
	r, err := Start(1, "build", 60)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Export(ctx, filepath.Join(t.TempDir(), "x.json"))
	require.Error(t, err)
	// Cancellation before sealing leaves the recorder usable.
	require.Equal(t, StateRecording, r.State())
}

func TestCorridor(t *testing.T) {
	r, err := Start(1, "build", 60)
	require.NoError(t, err)

	for tick := uint64(1); tick <= 100; tick++ {
		require.NoError(t, r.RecordCommand(tick, "move", nil))
	}

	corridor := r.Corridor(10)
	require.Len(t, corridor, 11) // ticks 90..100 inclusive
	require.Equal(t, uint64(90), corridor[0].Tick)

	empty, err := Start(1, "build", 60)
	require.NoError(t, err)
	require.Nil(t, empty.Corridor(10))
}
