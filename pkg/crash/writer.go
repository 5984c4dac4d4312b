// Package crash assembles and durably writes a diagnostic bundle when the
// game hits an unhandled failure: the failure summary and stack, the most
// recent hub events, the latest metrics and profiling snapshots, process
// metadata, and optionally the tail of the active replay recording.
//
// Capture is a best-effort side channel. A capture failure is returned to
// the caller and logged but must never mask the original fault, so nothing
// in this package panics.
package crash

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/Nullpoint56/Warships2-sub000/pkg/canonicalize"
	"github.com/Nullpoint56/Warships2-sub000/pkg/envelope"
	"github.com/Nullpoint56/Warships2-sub000/pkg/metrics"
	"github.com/Nullpoint56/Warships2-sub000/pkg/profiling"
	"github.com/Nullpoint56/Warships2-sub000/pkg/session"
)

// CurrentSchemaVersion is written into every bundle.
const CurrentSchemaVersion = "1.0.0"

// DefaultMaxEvents bounds how many recent hub events a bundle carries.
const DefaultMaxEvents = 256

// DefaultCorridorTicks bounds the replay corridor attached to a bundle.
const DefaultCorridorTicks = 120

// ErrSchemaMismatch marks a bundle document this build cannot read.
var ErrSchemaMismatch = errors.New("crash bundle schema mismatch")

// State tracks the writer lifecycle.
type State string

const (
	StateIdle      State = "IDLE"
	StateCapturing State = "CAPTURING"
	StateWritten   State = "WRITTEN"
	StateFailed    State = "FAILED"
)

// FailureContext describes the fault being captured. Stack may be left nil;
// the writer fills it from the calling goroutine.
type FailureContext struct {
	Summary string
	Detail  string
	Tick    uint64
	Stack   []byte
}

// RuntimeInfo is the process metadata embedded in a bundle.
type RuntimeInfo struct {
	GoVersion string `json:"go_version"`
	GOOS      string `json:"goos"`
	GOARCH    string `json:"goarch"`
	PID       int    `json:"pid"`
	NumCPU    int    `json:"num_cpu"`
	Hostname  string `json:"hostname,omitempty"`
}

// Bundle is the on-disk crash document. Immutable after write.
type Bundle struct {
	SchemaVersion  string              `json:"schema_version"`
	BundleID       string              `json:"bundle_id"`
	CapturedAt     time.Time           `json:"captured_at"`
	Summary        string              `json:"summary"`
	Detail         string              `json:"detail,omitempty"`
	Tick           uint64              `json:"tick,omitempty"`
	Stack          string              `json:"stack"`
	RecentEvents   []envelope.Envelope `json:"recent_events"`
	Metrics        *metrics.Stats      `json:"metrics,omitempty"`
	Profiling      *profiling.Snapshot `json:"profiling,omitempty"`
	Runtime        RuntimeInfo         `json:"runtime"`
	ReplayCorridor []session.Command   `json:"replay_corridor,omitempty"`
}

// Writer captures at most one bundle per failure. The data sources are
// optional; an unwired source simply leaves its section empty.
type Writer struct {
	dir           string
	maxEvents     int
	corridorTicks uint64
	events        func(limit int) []envelope.Envelope
	metrics       *metrics.Window
	profiling     *profiling.Collector
	recorder      interface{ Corridor(n uint64) []session.Command }
	log           *slog.Logger
	clock         func() time.Time

	mu    sync.Mutex
	state State
	path  string
	err   error
}

// Option configures a Writer.
type Option func(*Writer)

// WithEvents wires a recent-event source, typically hub.Query or a ring
// buffer snapshot.
func WithEvents(fn func(limit int) []envelope.Envelope) Option {
	return func(w *Writer) { w.events = fn }
}

// WithMetrics attaches the frame-time window.
func WithMetrics(win *metrics.Window) Option {
	return func(w *Writer) { w.metrics = win }
}

// WithProfiling attaches the span collector.
func WithProfiling(c *profiling.Collector) Option {
	return func(w *Writer) { w.profiling = c }
}

// WithRecorder attaches an active replay recorder so bundles carry the last
// corridor of recorded commands.
func WithRecorder(r interface{ Corridor(n uint64) []session.Command }) Option {
	return func(w *Writer) { w.recorder = r }
}

// WithMaxEvents overrides the recent-event bound.
func WithMaxEvents(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.maxEvents = n
		}
	}
}

// WithCorridorTicks overrides the replay corridor length.
func WithCorridorTicks(n uint64) Option {
	return func(w *Writer) {
		if n > 0 {
			w.corridorTicks = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *Writer) { w.log = log }
}

// WithClock overrides time stamping in tests.
func WithClock(clock func() time.Time) Option {
	return func(w *Writer) { w.clock = clock }
}

// NewWriter creates a writer that stores bundles under dir.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{
		dir:           dir,
		maxEvents:     DefaultMaxEvents,
		corridorTicks: DefaultCorridorTicks,
		log:           slog.Default(),
		clock:         time.Now,
		state:         StateIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the writer lifecycle state.
func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Capture assembles and writes a bundle, returning its path. Only the first
// successful capture writes; concurrent or repeat callers get the first
// bundle's path back. After a write failure the writer returns to a state
// where Capture may be retried.
func (w *Writer) Capture(fc FailureContext) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateWritten {
		return w.path, nil
	}
	w.state = StateCapturing

	bundle := w.assemble(fc)
	path, err := w.write(bundle)
	if err != nil {
		w.state = StateFailed
		w.err = err
		w.log.Error("crash bundle write failed", "error", err, "summary", fc.Summary)
		return "", err
	}

	w.state = StateWritten
	w.path = path
	w.log.Info("crash bundle written", "path", path, "bundle_id", bundle.BundleID)
	return path, nil
}

// Err returns the last write failure, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Writer) assemble(fc FailureContext) *Bundle {
	stack := fc.Stack
	if stack == nil {
		stack = debug.Stack()
	}

	hostname, _ := os.Hostname()
	bundle := &Bundle{
		SchemaVersion: CurrentSchemaVersion,
		BundleID:      uuid.NewString(),
		CapturedAt:    w.clock().UTC(),
		Summary:       fc.Summary,
		Detail:        fc.Detail,
		Tick:          fc.Tick,
		Stack:         string(stack),
		RecentEvents:  []envelope.Envelope{},
		Runtime: RuntimeInfo{
			GoVersion: runtime.Version(),
			GOOS:      runtime.GOOS,
			GOARCH:    runtime.GOARCH,
			PID:       os.Getpid(),
			NumCPU:    runtime.NumCPU(),
			Hostname:  hostname,
		},
	}

	if w.events != nil {
		if recent := w.events(w.maxEvents); recent != nil {
			bundle.RecentEvents = recent
		}
	}
	if w.metrics != nil {
		stats := w.metrics.Snapshot()
		bundle.Metrics = &stats
	}
	if w.profiling != nil {
		snap := w.profiling.Snapshot(0, 10)
		bundle.Profiling = &snap
	}
	if w.recorder != nil {
		bundle.ReplayCorridor = w.recorder.Corridor(w.corridorTicks)
	}
	return bundle
}

func (w *Writer) write(bundle *Bundle) (string, error) {
	data, err := canonicalize.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("encode crash bundle: %w", err)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("crash dir: %w", err)
	}

	name := fmt.Sprintf("crash-%s-%s.json", bundle.CapturedAt.Format("20060102T150405Z"), bundle.BundleID[:8])
	path := filepath.Join(w.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write crash bundle: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write crash bundle: commit: %w", err)
	}
	return path, nil
}

// Load reads a bundle back, validating its structure against the embedded
// JSON Schema and rejecting documents from an incompatible major schema
// version.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crash bundle: %w", err)
	}
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	theirs, err := semver.NewVersion(bundle.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable schema_version %q", ErrSchemaMismatch, bundle.SchemaVersion)
	}
	if theirs.Major() != semver.MustParse(CurrentSchemaVersion).Major() {
		return nil, fmt.Errorf("%w: document is v%s, reader understands v%s", ErrSchemaMismatch, bundle.SchemaVersion, CurrentSchemaVersion)
	}
	return &bundle, nil
}
