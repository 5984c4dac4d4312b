// Package session defines the exported, immutable recording of a
// deterministic run: seed, build manifest, tick-indexed command stream, and
// periodic state-hash checkpoints.
//
// A session is produced by the recorder during a live run and consumed
// read-only by the validator, potentially much later and in a different
// process, so the on-disk document carries an explicit schema version and is
// validated structurally before decode.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Nullpoint56/Warships2-sub000/pkg/canonicalize"
)

// CurrentSchemaVersion is written into every exported session.
const CurrentSchemaVersion = "1.0.0"

var (
	// ErrSchemaMismatch marks a session document this build cannot read.
	ErrSchemaMismatch = errors.New("session schema mismatch")
	// ErrIncompleteSession marks a session missing required manifest fields.
	ErrIncompleteSession = errors.New("incomplete session")
)

// Command is one recorded simulation command. Commands at the same tick are
// ordered by Seq.
type Command struct {
	Tick    uint64          `json:"tick"`
	Seq     int             `json:"seq"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Checkpoint is a tick-indexed state hash supplied by the simulation.
// Hashes are stored as fixed-width hex so they survive JSON number
// precision limits.
type Checkpoint struct {
	Tick uint64 `json:"tick"`
	Hash string `json:"hash"`
}

// Session is the exported recording document.
type Session struct {
	SchemaVersion string       `json:"schema_version"`
	SessionID     string       `json:"session_id"`
	Seed          int64        `json:"seed"`
	BuildID       string       `json:"build_id"`
	TickRate      int          `json:"tick_rate"`
	CreatedAt     time.Time    `json:"created_at"`
	MaxTick       uint64       `json:"max_tick"`
	Commands      []Command    `json:"commands"`
	Checkpoints   []Checkpoint `json:"checkpoints"`
}

// Validate checks manifest completeness and schema compatibility.
func (s *Session) Validate() error {
	if s.SchemaVersion == "" {
		return fmt.Errorf("%w: schema_version is empty", ErrIncompleteSession)
	}
	if err := CheckSchemaVersion(s.SchemaVersion); err != nil {
		return err
	}
	if s.SessionID == "" {
		return fmt.Errorf("%w: session_id is empty", ErrIncompleteSession)
	}
	if s.BuildID == "" {
		return fmt.Errorf("%w: build_id is empty", ErrIncompleteSession)
	}
	if s.TickRate <= 0 {
		return fmt.Errorf("%w: tick_rate must be positive", ErrIncompleteSession)
	}
	return nil
}

// CheckSchemaVersion accepts any session whose major version matches this
// build's.
func CheckSchemaVersion(version string) error {
	theirs, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: unparseable schema_version %q", ErrSchemaMismatch, version)
	}
	ours := semver.MustParse(CurrentSchemaVersion)
	if theirs.Major() != ours.Major() {
		return fmt.Errorf("%w: document is v%s, reader understands v%s", ErrSchemaMismatch, version, CurrentSchemaVersion)
	}
	return nil
}

// CommandsAt returns the commands recorded at one tick, in seq order. The
// command stream is already tick-then-seq ordered, so this is a linear scan
// used only by tooling; the validator builds its own index.
func (s *Session) CommandsAt(tick uint64) []Command {
	var out []Command
	for _, cmd := range s.Commands {
		if cmd.Tick == tick {
			out = append(out, cmd)
		}
	}
	return out
}

// CheckpointAt returns the checkpoint recorded at one tick.
func (s *Session) CheckpointAt(tick uint64) (Checkpoint, bool) {
	for _, cp := range s.Checkpoints {
		if cp.Tick == tick {
			return cp, true
		}
	}
	return Checkpoint{}, false
}

// Encode renders the canonical byte form of the session. Encoding the same
// session twice yields identical bytes. The input is not modified; nil
// command and checkpoint slices are normalized on a copy.
func Encode(s *Session) ([]byte, error) {
	doc := *s
	if doc.Commands == nil {
		doc.Commands = []Command{}
	}
	if doc.Checkpoints == nil {
		doc.Checkpoints = []Checkpoint{}
	}
	return canonicalize.Marshal(&doc)
}

// WriteFile writes the canonical session document atomically.
func WriteFile(path string, s *Session) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write session: commit: %w", err)
	}
	return nil
}

// Load reads a session document, validating its structure against the
// embedded JSON Schema before decoding.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return Decode(data)
}

// Decode parses and validates session bytes.
func Decode(data []byte) (*Session, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
