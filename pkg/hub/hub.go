// Package hub is the emission entry point of the diagnostics core.
//
// Producers call Emit from any thread; the hub resolves the event's
// capability, applies profile gating and deterministic sampling, then pushes
// to the ring buffer and fans out to subscribers synchronously in emission
// order. The gated-off path costs a map lookup and a counter bump — no
// allocation, no I/O, no long-lived lock.
//
// There is no ambient singleton: the runtime composition root owns the Hub
// instance and hands it to producers.
package hub

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Nullpoint56/Warships2-sub000/pkg/capability"
	"github.com/Nullpoint56/Warships2-sub000/pkg/config"
	"github.com/Nullpoint56/Warships2-sub000/pkg/envelope"
	"github.com/Nullpoint56/Warships2-sub000/pkg/ringbuf"
)

// Token identifies a subscription.
type Token string

// Filter selects envelopes for subscriptions and queries. Zero values match
// everything.
type Filter struct {
	Category  string
	Name      string
	MinLevel  envelope.Level
	SinceTick uint64
}

// Matches reports whether an envelope passes the filter.
func (f Filter) Matches(env envelope.Envelope) bool {
	if f.Category != "" && env.Category != f.Category {
		return false
	}
	if f.Name != "" && env.Name != f.Name {
		return false
	}
	if f.MinLevel != "" && !env.Level.AtLeast(f.MinLevel) {
		return false
	}
	if f.SinceTick > 0 && env.Tick < f.SinceTick {
		return false
	}
	return true
}

// gate is the per-capability hot-path state. Built once per capability on
// first emission, then only the counter mutates.
type gate struct {
	cap         *capability.Capability
	enabled     bool
	sampleEvery uint64
	counter     atomic.Uint64
}

type subscription struct {
	token  Token
	filter Filter
	fn     func(envelope.Envelope)
}

// Hub routes diagnostic events to the ring buffer and subscribers.
type Hub struct {
	profile  config.Profile
	registry *capability.Registry
	buf      *ringbuf.Buffer

	gatesMu sync.RWMutex
	gates   map[string]*gate

	subsMu sync.RWMutex
	subs   []*subscription

	clock func() time.Time
	log   *slog.Logger
	warn  *rate.Limiter

	// closeMu serializes the enqueue in ExportAsync against the channel
	// close in Close, so a racing enqueue gets ErrHubClosed instead of a
	// send-on-closed-channel panic.
	closeMu  sync.RWMutex
	exportCh chan ExportRequest
	exportWG sync.WaitGroup
	closed   atomic.Bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(h *Hub) { h.clock = clock }
}

// WithLogger sets the logger for subscriber failures and export results.
func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// New creates a Hub for the given profile and capability registry. The
// returned Hub owns a background export worker; call Close to drain it.
func New(profile config.Profile, registry *capability.Registry, opts ...Option) *Hub {
	depth := profile.ExportQueueDepth
	if depth < 1 {
		depth = 16
	}
	h := &Hub{
		profile:  profile,
		registry: registry,
		buf:      ringbuf.New(profile.BufferCapacity),
		gates:    make(map[string]*gate),
		clock:    time.Now,
		warn:     rate.NewLimiter(rate.Every(time.Second), 4),
		exportCh: make(chan ExportRequest, depth),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	h.exportWG.Add(1)
	go h.exportWorker()
	return h
}

// Buffer exposes the backing ring buffer for components that snapshot it
// directly (crash capture).
func (h *Hub) Buffer() *ringbuf.Buffer {
	return h.buf
}

// Emit routes one diagnostic event. Unknown capabilities and missing
// required metadata are rejected with a typed error; a disabled or
// sampled-out capability makes Emit a no-op returning nil.
func (h *Hub) Emit(category, name string, tick uint64, value float64, metadata map[string]string, level envelope.Level) error {
	g, err := h.gate(category, name)
	if err != nil {
		return err
	}
	if !g.enabled {
		return nil
	}

	// Deterministic sampling: a per-capability modulo counter, never a
	// random draw, so a recorded run gates identically when replayed.
	n := g.counter.Add(1)
	if g.sampleEvery > 1 && (n-1)%g.sampleEvery != 0 {
		return nil
	}

	if err := capability.CheckRequired(g.cap, metadata); err != nil {
		return err
	}

	env := envelope.Envelope{
		SchemaVersion: envelope.CurrentSchemaVersion,
		Timestamp:     h.clock(),
		Tick:          tick,
		Category:      category,
		Name:          name,
		Level:         level,
		Value:         value,
		Metadata:      envelope.BoundMetadata(metadata),
	}

	h.buf.Push(env)
	h.fanOut(env)
	return nil
}

// gate resolves the hot-path state for a capability key, building it from
// the registry and profile on first use.
func (h *Hub) gate(category, name string) (*gate, error) {
	key := envelope.Key(category, name)

	h.gatesMu.RLock()
	g, ok := h.gates[key]
	h.gatesMu.RUnlock()
	if ok {
		return g, nil
	}

	cap, ok := h.registry.Resolve(category, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", capability.ErrUnknownCapability, key)
	}

	h.gatesMu.Lock()
	defer h.gatesMu.Unlock()
	if g, ok := h.gates[key]; ok {
		return g, nil
	}
	g = &gate{
		cap:         cap,
		enabled:     h.profile.CapabilityEnabled(key),
		sampleEvery: uint64(h.profile.SampleRate(key, cap.DefaultSampleRate)),
	}
	h.gates[key] = g
	return g, nil
}

func (h *Hub) fanOut(env envelope.Envelope) {
	h.subsMu.RLock()
	subs := h.subs
	h.subsMu.RUnlock()

	for _, s := range subs {
		if !s.filter.Matches(env) {
			continue
		}
		h.deliver(s, env)
	}
}

// deliver invokes one subscriber, containing panics so a broken consumer
// cannot break delivery to the rest.
func (h *Hub) deliver(s *subscription, env envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			if h.warn.Allow() {
				h.log.Warn("diagnostic subscriber panicked",
					"token", string(s.token), "capability", env.Key(), "panic", fmt.Sprint(r))
			}
		}
	}()
	s.fn(env)
}

// Subscribe registers a synchronous consumer for envelopes matching the
// filter. The callback runs on the emitting goroutine; keep it cheap.
func (h *Hub) Subscribe(filter Filter, fn func(envelope.Envelope)) Token {
	token := Token(uuid.NewString())

	h.subsMu.Lock()
	// Copy-on-write keeps fan-out lock-free beyond the RLock.
	subs := make([]*subscription, len(h.subs), len(h.subs)+1)
	copy(subs, h.subs)
	h.subs = append(subs, &subscription{token: token, filter: filter, fn: fn})
	h.subsMu.Unlock()
	return token
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (h *Hub) Unsubscribe(token Token) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	for i, s := range h.subs {
		if s.token == token {
			subs := make([]*subscription, 0, len(h.subs)-1)
			subs = append(subs, h.subs[:i]...)
			subs = append(subs, h.subs[i+1:]...)
			h.subs = subs
			return
		}
	}
}

// Query returns a point-in-time copy of buffered envelopes matching the
// filter, oldest first, bounded by limit (0 = no bound).
func (h *Hub) Query(filter Filter, limit int) []envelope.Envelope {
	snap := h.buf.Snapshot(ringbuf.SnapshotOptions{
		Category: filter.Category,
		Name:     filter.Name,
	})

	if filter.MinLevel != "" || filter.SinceTick > 0 {
		kept := snap[:0]
		for _, env := range snap {
			if filter.Matches(env) {
				kept = append(kept, env)
			}
		}
		snap = kept
	}
	if limit > 0 && len(snap) > limit {
		snap = snap[len(snap)-limit:]
	}
	return snap
}

// ActiveCapabilities returns the sorted keys of registered capabilities the
// profile currently enables, so consumers can tell "capability off" from
// "no events yet".
func (h *Hub) ActiveCapabilities() []string {
	var active []string
	for _, cap := range h.registry.Definitions() {
		key := envelope.Key(cap.Category, cap.Name)
		if h.profile.CapabilityEnabled(key) {
			active = append(active, key)
		}
	}
	sort.Strings(active)
	return active
}
