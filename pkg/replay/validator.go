// Package replay re-executes recorded sessions against an externally
// supplied deterministic step function and reports divergence from the
// recorded state-hash checkpoints.
//
// The validator never touches the live diagnostic hub: sessions are read
// from disk, the simulation is driven through the Hooks callbacks, and the
// result is a read-only report. Divergence is never downgraded to a pass.
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
	"github.com/Nullpoint56/Warships2-sub000/pkg/statehash"
)

// State is the opaque simulation state threaded through the callbacks.
type State any

// Hooks are the simulation callbacks the validator drives. All four are
// required and must be deterministic: same inputs, same outputs, bit for
// bit.
type Hooks struct {
	// Init builds the initial state from the session seed.
	Init func(seed int64) State
	// Apply applies one recorded command.
	Apply func(state State, cmd session.Command) State
	// Step advances one fixed tick.
	Step func(state State) State
	// Hash digests the current state.
	Hash func(state State) uint64
}

func (h Hooks) validate() error {
	if h.Init == nil || h.Apply == nil || h.Step == nil || h.Hash == nil {
		return errors.New("hooks require Init, Apply, Step, and Hash")
	}
	return nil
}

// Mode controls behavior after the first mismatch.
type Mode string

const (
	// ModeFailFast stops at the first mismatch.
	ModeFailFast Mode = "fail_fast"
	// ModeCollectAll keeps validating and records every mismatch.
	ModeCollectAll Mode = "collect_all"
)

// DefaultContextRadius is how many ticks of surrounding commands a mismatch
// report carries.
const DefaultContextRadius uint64 = 3

// Options tunes a validation run.
type Options struct {
	Mode          Mode
	ContextRadius uint64
}

func (o *Options) fill() {
	if o.Mode == "" {
		o.Mode = ModeFailFast
	}
	if o.ContextRadius == 0 {
		o.ContextRadius = DefaultContextRadius
	}
}

// Mismatch describes one checkpoint divergence.
type Mismatch struct {
	Tick           uint64            `json:"tick"`
	Expected       string            `json:"expected"`
	Actual         string            `json:"actual"`
	NearbyCommands []session.Command `json:"nearby_commands,omitempty"`
	// Confidence is 1.0 for the first divergence; later mismatches in a
	// collect-all run are likely cascade effects and carry 0.5.
	Confidence float64 `json:"confidence"`
}

// Report is the outcome of validating one session.
type Report struct {
	SessionID          string     `json:"session_id"`
	BuildID            string     `json:"build_id"`
	TicksExecuted      uint64     `json:"ticks_executed"`
	CheckpointsChecked int        `json:"checkpoints_checked"`
	Mismatches         []Mismatch `json:"mismatches,omitempty"`
	Canceled           bool       `json:"canceled,omitempty"`
}

// Passed reports whether the session replayed without divergence.
func (r *Report) Passed() bool {
	return !r.Canceled && len(r.Mismatches) == 0
}

// ticksPerCancelCheck bounds how stale a cancellation can go unnoticed.
const ticksPerCancelCheck = 1024

// Validate re-executes a session tick by tick. On cancellation the partial
// report collected so far is returned along with the context error.
func Validate(ctx context.Context, sess *session.Session, hooks Hooks, opts Options) (*Report, error) {
	if err := hooks.validate(); err != nil {
		return nil, err
	}
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	opts.fill()

	commandsByTick := indexCommands(sess)
	checkpoints := indexCheckpoints(sess)

	report := &Report{SessionID: sess.SessionID, BuildID: sess.BuildID}
	state := hooks.Init(sess.Seed)

	for tick := uint64(0); tick <= sess.MaxTick; tick++ {
		if tick%ticksPerCancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				report.Canceled = true
				return report, err
			}
		}

		for _, cmd := range commandsByTick[tick] {
			state = hooks.Apply(state, cmd)
		}
		state = hooks.Step(state)
		report.TicksExecuted = tick + 1

		expected, ok := checkpoints[tick]
		if !ok {
			continue
		}
		report.CheckpointsChecked++

		actual := statehash.Format(hooks.Hash(state))
		if actual == expected {
			continue
		}

		confidence := 1.0
		if len(report.Mismatches) > 0 {
			confidence = 0.5
		}
		report.Mismatches = append(report.Mismatches, Mismatch{
			Tick:           tick,
			Expected:       expected,
			Actual:         actual,
			NearbyCommands: nearbyCommands(sess, tick, opts.ContextRadius),
			Confidence:     confidence,
		})
		if opts.Mode == ModeFailFast {
			break
		}
	}

	return report, nil
}

func indexCommands(sess *session.Session) map[uint64][]session.Command {
	idx := make(map[uint64][]session.Command)
	for _, cmd := range sess.Commands {
		idx[cmd.Tick] = append(idx[cmd.Tick], cmd)
	}
	return idx
}

func indexCheckpoints(sess *session.Session) map[uint64]string {
	idx := make(map[uint64]string, len(sess.Checkpoints))
	for _, cp := range sess.Checkpoints {
		idx[cp.Tick] = cp.Hash
	}
	return idx
}

// nearbyCommands collects commands within ±radius ticks of the divergence.
func nearbyCommands(sess *session.Session, tick, radius uint64) []session.Command {
	var floor uint64
	if tick > radius {
		floor = tick - radius
	}
	ceil := tick + radius

	var out []session.Command
	for _, cmd := range sess.Commands {
		if cmd.Tick >= floor && cmd.Tick <= ceil {
			out = append(out, cmd)
		}
	}
	return out
}

// SelfCheck validates a freshly exported session against the same hooks that
// produced it. A recording pipeline is only trustworthy if this round trip
// is clean.
func SelfCheck(ctx context.Context, path string, hooks Hooks) error {
	sess, err := session.Load(path)
	if err != nil {
		return err
	}
	report, err := Validate(ctx, sess, hooks, Options{Mode: ModeFailFast})
	if err != nil {
		return err
	}
	if !report.Passed() {
		m := report.Mismatches[0]
		return fmt.Errorf("self-check diverged at tick %d: expected %s, got %s", m.Tick, m.Expected, m.Actual)
	}
	return nil
}
