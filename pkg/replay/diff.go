package replay

import (
	"context"

	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
	"github.com/Nullpoint56/Warships2-sub000/pkg/statehash"
)

// DiffReport is the outcome of a differential run: two candidate builds
// executing the same session, compared against each other rather than
// against the recorded checkpoints.
type DiffReport struct {
	SessionID           string `json:"session_id"`
	TicksExecuted       uint64 `json:"ticks_executed"`
	Diverged            bool   `json:"diverged"`
	FirstDivergenceTick uint64 `json:"first_divergence_tick,omitempty"`
	BaselineHash        string `json:"baseline_hash,omitempty"`
	CandidateHash       string `json:"candidate_hash,omitempty"`
	Canceled            bool   `json:"canceled,omitempty"`
}

// ValidateDifferential runs baseline and candidate hooks in lockstep over
// one session and reports the first tick where their live state hashes
// disagree. The recorded checkpoints are ignored: this mode answers "did
// the change alter behavior", not "does either build match the recording".
func ValidateDifferential(ctx context.Context, sess *session.Session, baseline, candidate Hooks) (*DiffReport, error) {
	if err := baseline.validate(); err != nil {
		return nil, err
	}
	if err := candidate.validate(); err != nil {
		return nil, err
	}
	if err := sess.Validate(); err != nil {
		return nil, err
	}

	commandsByTick := indexCommands(sess)
	report := &DiffReport{SessionID: sess.SessionID}

	baseState := baseline.Init(sess.Seed)
	candState := candidate.Init(sess.Seed)

	for tick := uint64(0); tick <= sess.MaxTick; tick++ {
		if tick%ticksPerCancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				report.Canceled = true
				return report, err
			}
		}

		for _, cmd := range commandsByTick[tick] {
			baseState = baseline.Apply(baseState, cmd)
			candState = candidate.Apply(candState, cmd)
		}
		baseState = baseline.Step(baseState)
		candState = candidate.Step(candState)
		report.TicksExecuted = tick + 1

		baseHash := baseline.Hash(baseState)
		candHash := candidate.Hash(candState)
		if baseHash != candHash {
			report.Diverged = true
			report.FirstDivergenceTick = tick
			report.BaselineHash = statehash.Format(baseHash)
			report.CandidateHash = statehash.Format(candHash)
			return report, nil
		}
	}

	return report, nil
}
