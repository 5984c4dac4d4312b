// Package profiling captures paired begin/end spans with bounded retention.
//
// When profiling is disabled the begin path is a single atomic load. Spans
// left open at a frame boundary are force-closed with a diagnostic flag
// rather than leaked.
package profiling

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Nullpoint56/Warships2-sub000/pkg/envelope"
)

// Mode selects how much the collector retains.
type Mode string

const (
	// ModeOff disables span capture entirely.
	ModeOff Mode = "off"
	// ModeLight keeps per-key aggregates but no individual spans.
	ModeLight Mode = "light"
	// ModeTimeline retains every completed span up to the retention bound.
	ModeTimeline Mode = "timeline"
	// ModeTimelineSample retains every Nth completed span.
	ModeTimelineSample Mode = "timeline_sample"
)

// Retention and sampling defaults.
const (
	DefaultMaxRetained = 4096
	DefaultSampleEvery = 8
	maxAggregateRecent = 64
)

// Handle identifies an open span. The zero Handle is inert: End on it is a
// no-op, which is what Begin returns while profiling is off.
type Handle struct {
	id uint64
}

// Span is one completed begin/end pair.
type Span struct {
	Category    string            `json:"category"`
	Name        string            `json:"name"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Duration    time.Duration     `json:"duration_ns"`
	Tick        uint64            `json:"tick,omitempty"`
	ForceClosed bool              `json:"force_closed,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Contributor summarizes one (category, name) key for top-N reporting.
type Contributor struct {
	Key   string        `json:"key"`
	Count uint64        `json:"count"`
	Total time.Duration `json:"total_ns"`
	P95   time.Duration `json:"p95_ns"`
}

// Snapshot is the exportable timeline view.
type Snapshot struct {
	Mode       Mode          `json:"mode"`
	Spans      []Span        `json:"spans,omitempty"`
	TopByTotal []Contributor `json:"top_by_total"`
	TopByP95   []Contributor `json:"top_by_p95"`
}

type openSpan struct {
	category string
	name     string
	start    time.Time
}

type aggregate struct {
	count  uint64
	total  time.Duration
	recent []time.Duration // bounded reservoir for p95
}

// Collector captures spans from the single render/sim thread driving it.
// Begin/End are cheap; Snapshot copies under the lock.
type Collector struct {
	enabled atomic.Bool
	nextID  atomic.Uint64

	mu          sync.Mutex
	mode        Mode
	open        map[uint64]openSpan
	retained    []Span
	maxRetained int
	sampleEvery int
	completed   uint64
	aggregates  map[string]*aggregate

	clock     func() time.Time
	log       *slog.Logger
	warnLimit *rate.Limiter
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(c *Collector) { c.clock = clock }
}

// WithLogger sets the logger used for force-close diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Collector) { c.log = log }
}

// WithMaxRetained bounds the span timeline.
func WithMaxRetained(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.maxRetained = n
		}
	}
}

// WithSampleEvery sets the retention stride for ModeTimelineSample.
func WithSampleEvery(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.sampleEvery = n
		}
	}
}

// NewCollector creates a collector in the given mode.
func NewCollector(mode Mode, opts ...Option) *Collector {
	c := &Collector{
		mode:        mode,
		open:        make(map[uint64]openSpan),
		maxRetained: DefaultMaxRetained,
		sampleEvery: DefaultSampleEvery,
		aggregates:  make(map[string]*aggregate),
		clock:       time.Now,
		warnLimit:   rate.NewLimiter(rate.Every(time.Second), 4),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.enabled.Store(mode != ModeOff && mode != "")
	return c
}

// Enabled reports whether span capture is on.
func (c *Collector) Enabled() bool {
	return c.enabled.Load()
}

// Begin opens a span. While profiling is off this is a single boolean check.
func (c *Collector) Begin(category, name string) Handle {
	if !c.enabled.Load() {
		return Handle{}
	}
	id := c.nextID.Add(1)
	start := c.clock()

	c.mu.Lock()
	c.open[id] = openSpan{category: category, name: name, start: start}
	c.mu.Unlock()
	return Handle{id: id}
}

// End closes a span. Ending the zero handle, or a span already force-closed
// at a frame boundary, is a no-op.
func (c *Collector) End(h Handle) {
	if h.id == 0 || !c.enabled.Load() {
		return
	}
	end := c.clock()

	c.mu.Lock()
	os, ok := c.open[h.id]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.open, h.id)
	c.complete(Span{
		Category: os.category,
		Name:     os.name,
		Start:    os.start,
		End:      end,
		Duration: end.Sub(os.start),
	})
	c.mu.Unlock()
}

// FrameBoundary force-closes every span still open, marking it and logging a
// throttled warning. Call once per frame from the tick loop.
func (c *Collector) FrameBoundary(tick uint64) {
	if !c.enabled.Load() {
		return
	}
	now := c.clock()

	c.mu.Lock()
	dangling := len(c.open)
	for id, os := range c.open {
		delete(c.open, id)
		c.complete(Span{
			Category:    os.category,
			Name:        os.name,
			Start:       os.start,
			End:         now,
			Duration:    now.Sub(os.start),
			Tick:        tick,
			ForceClosed: true,
		})
	}
	c.mu.Unlock()

	if dangling > 0 && c.warnLimit.Allow() {
		c.log.Warn("profiling spans force-closed at frame boundary",
			"count", dangling, "tick", tick)
	}
}

// complete records a finished span. Caller holds c.mu.
func (c *Collector) complete(span Span) {
	key := envelope.Key(span.Category, span.Name)
	agg, ok := c.aggregates[key]
	if !ok {
		agg = &aggregate{}
		c.aggregates[key] = agg
	}
	agg.count++
	agg.total += span.Duration
	if len(agg.recent) < maxAggregateRecent {
		agg.recent = append(agg.recent, span.Duration)
	} else {
		agg.recent[int(agg.count)%maxAggregateRecent] = span.Duration
	}

	c.completed++
	switch c.mode {
	case ModeLight:
		return
	case ModeTimelineSample:
		if (c.completed-1)%uint64(c.sampleEvery) != 0 && !span.ForceClosed {
			return
		}
	}

	if len(c.retained) >= c.maxRetained {
		// Drop the oldest half instead of shifting one-by-one each call.
		keep := c.maxRetained / 2
		copy(c.retained, c.retained[len(c.retained)-keep:])
		c.retained = c.retained[:keep]
	}
	c.retained = append(c.retained, span)
}

// Snapshot returns the most recent spans (up to limit) and the top
// contributors by total time and by p95 duration.
func (c *Collector) Snapshot(limit, topN int) Snapshot {
	c.mu.Lock()
	spans := make([]Span, len(c.retained))
	copy(spans, c.retained)
	contributors := make([]Contributor, 0, len(c.aggregates))
	for key, agg := range c.aggregates {
		contributors = append(contributors, Contributor{
			Key:   key,
			Count: agg.count,
			Total: agg.total,
			P95:   p95Of(agg.recent),
		})
	}
	mode := c.mode
	c.mu.Unlock()

	if limit > 0 && len(spans) > limit {
		spans = spans[len(spans)-limit:]
	}
	if topN <= 0 {
		topN = 5
	}

	byTotal := make([]Contributor, len(contributors))
	copy(byTotal, contributors)
	sort.Slice(byTotal, func(i, j int) bool {
		if byTotal[i].Total != byTotal[j].Total {
			return byTotal[i].Total > byTotal[j].Total
		}
		return byTotal[i].Key < byTotal[j].Key
	})
	if len(byTotal) > topN {
		byTotal = byTotal[:topN]
	}

	byP95 := make([]Contributor, len(contributors))
	copy(byP95, contributors)
	sort.Slice(byP95, func(i, j int) bool {
		if byP95[i].P95 != byP95[j].P95 {
			return byP95[i].P95 > byP95[j].P95
		}
		return byP95[i].Key < byP95[j].Key
	})
	if len(byP95) > topN {
		byP95 = byP95[:topN]
	}

	return Snapshot{Mode: mode, Spans: spans, TopByTotal: byTotal, TopByP95: byP95}
}

func p95Of(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := (95*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
