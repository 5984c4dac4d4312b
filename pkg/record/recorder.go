// Package record captures a deterministic run as an append-only replay
// session.
//
// The recorder is a single-writer structure: RecordCommand and Checkpoint
// are called from the simulation tick loop. It enforces strictly increasing
// tick order — out-of-order writes are rejected with an explicit error, never
// silently reordered — but does not enforce checkpoint cadence; that is the
// caller's policy.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
	"github.com/Nullpoint56/Warships2-sub000/pkg/statehash"
)

var (
	// ErrOrderingViolation is returned for out-of-order command or
	// checkpoint writes.
	ErrOrderingViolation = errors.New("ordering violation")
	// ErrSessionSealed is returned when writing to an exported session.
	ErrSessionSealed = errors.New("session sealed")
)

// State is the recorder lifecycle state.
type State string

const (
	StateRecording State = "RECORDING"
	StateExported  State = "EXPORTED"
)

// Recorder accumulates commands and checkpoints for one run.
type Recorder struct {
	mu    sync.Mutex
	sess  session.Session
	state State

	lastCommandTick    uint64
	hasCommands        bool
	lastCheckpointTick uint64
	hasCheckpoints     bool
	seqInTick          int

	clock func() time.Time
}

// Start begins recording a new session.
func Start(seed int64, buildID string, tickRate int) (*Recorder, error) {
	if buildID == "" {
		return nil, fmt.Errorf("build_id is required")
	}
	if tickRate <= 0 {
		return nil, fmt.Errorf("tick_rate must be positive, got %d", tickRate)
	}

	r := &Recorder{
		state: StateRecording,
		clock: time.Now,
	}
	r.sess = session.Session{
		SchemaVersion: session.CurrentSchemaVersion,
		SessionID:     uuid.NewString(),
		Seed:          seed,
		BuildID:       buildID,
		TickRate:      tickRate,
		Commands:      []session.Command{},
		Checkpoints:   []session.Checkpoint{},
	}
	r.sess.CreatedAt = r.clock()
	return r, nil
}

// WithClock overrides the clock for testing. CreatedAt is restamped so a
// fixed clock yields a fully deterministic session.
func (r *Recorder) WithClock(clock func() time.Time) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
	r.sess.CreatedAt = clock()
	return r
}

// State returns the lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SessionID returns the identifier assigned at Start.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess.SessionID
}

// RecordCommand appends a command at the given tick. Multiple commands may
// share a tick; their relative order is preserved via seq. A command tick
// may never move backwards, and may not precede the latest checkpoint.
func (r *Recorder) RecordCommand(tick uint64, kind string, payload json.RawMessage) error {
	if kind == "" {
		return fmt.Errorf("command kind is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return fmt.Errorf("%w: cannot record command after export", ErrSessionSealed)
	}
	if r.hasCommands && tick < r.lastCommandTick {
		return fmt.Errorf("%w: command tick %d after tick %d", ErrOrderingViolation, tick, r.lastCommandTick)
	}
	if r.hasCheckpoints && tick < r.lastCheckpointTick {
		return fmt.Errorf("%w: command tick %d precedes checkpoint tick %d", ErrOrderingViolation, tick, r.lastCheckpointTick)
	}

	if r.hasCommands && tick == r.lastCommandTick {
		r.seqInTick++
	} else {
		r.seqInTick = 0
	}
	r.lastCommandTick = tick
	r.hasCommands = true

	r.sess.Commands = append(r.sess.Commands, session.Command{
		Tick:    tick,
		Seq:     r.seqInTick,
		Kind:    kind,
		Payload: payload,
	})
	if tick > r.sess.MaxTick {
		r.sess.MaxTick = tick
	}
	return nil
}

// Checkpoint appends a state hash supplied by the simulation. Checkpoint
// ticks are strictly increasing and may not precede the latest command.
func (r *Recorder) Checkpoint(tick uint64, hash uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return fmt.Errorf("%w: cannot checkpoint after export", ErrSessionSealed)
	}
	if r.hasCheckpoints && tick <= r.lastCheckpointTick {
		return fmt.Errorf("%w: checkpoint tick %d after tick %d", ErrOrderingViolation, tick, r.lastCheckpointTick)
	}
	if r.hasCommands && tick < r.lastCommandTick {
		return fmt.Errorf("%w: checkpoint tick %d precedes command tick %d", ErrOrderingViolation, tick, r.lastCommandTick)
	}

	r.lastCheckpointTick = tick
	r.hasCheckpoints = true

	r.sess.Checkpoints = append(r.sess.Checkpoints, session.Checkpoint{
		Tick: tick,
		Hash: statehash.Format(hash),
	})
	if tick > r.sess.MaxTick {
		r.sess.MaxTick = tick
	}
	return nil
}

// Corridor returns the commands recorded within the last n ticks, for crash
// bundle context.
func (r *Recorder) Corridor(n uint64) []session.Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasCommands {
		return nil
	}
	var floor uint64
	if r.lastCommandTick > n {
		floor = r.lastCommandTick - n
	}

	var out []session.Command
	for _, cmd := range r.sess.Commands {
		if cmd.Tick >= floor {
			out = append(out, cmd)
		}
	}
	return out
}

// Export writes the canonical session document atomically and seals the
// recorder. A failed write leaves the recorder recording, so a transient
// I/O error does not freeze a live run. Re-exporting a sealed session is
// allowed and produces byte-identical output; further writes are rejected.
func (r *Recorder) Export(ctx context.Context, path string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("export canceled: %w", err)
	}

	r.mu.Lock()
	snapshot := r.snapshotLocked()
	r.mu.Unlock()

	if err := session.WriteFile(path, snapshot); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.state = StateExported
	r.mu.Unlock()
	return snapshot, nil
}

// Session returns a copy of the accumulated session, exported or not.
func (r *Recorder) Session() *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Recorder) snapshotLocked() *session.Session {
	copied := r.sess
	copied.Commands = append([]session.Command(nil), r.sess.Commands...)
	copied.Checkpoints = append([]session.Checkpoint(nil), r.sess.Checkpoints...)
	return &copied
}
