// Package capability implements the schema registry of diagnostic event
// families.
//
// A capability declares which producer owns a (category, name) family, its
// default sampling rate, and the metadata fields every envelope of the family
// must carry. Emission of an envelope whose key does not resolve to exactly
// one registered capability is rejected, never silently renamed.
package capability

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Nullpoint56/Warships2-sub000/pkg/envelope"
)

var (
	// ErrCapabilityConflict is returned when a re-registration changes an
	// existing definition.
	ErrCapabilityConflict = errors.New("capability conflict")
	// ErrUnknownCapability is returned when an envelope's key resolves to no
	// registered capability.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrMissingField is returned when an envelope lacks a metadata field the
	// capability requires.
	ErrMissingField = errors.New("missing required metadata field")
)

// ID identifies a registered capability. IDs are deterministic: the same
// (category, name) always yields the same ID in every process.
type ID string

// Capability is a registered family of diagnostic events.
type Capability struct {
	ID                ID       `json:"id"`
	Category          string   `json:"category"`
	Name              string   `json:"name"`
	RequiredFields    []string `json:"required_fields,omitempty"`
	DefaultSampleRate int      `json:"default_sample_rate"`
}

// Registry resolves capability keys at registration time. It performs no I/O
// and holds no state beyond the definitions themselves.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]*Capability // key → capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]*Capability)}
}

// Register declares a capability. Registration is idempotent for identical
// definitions and fails with ErrCapabilityConflict if a second registration
// changes the required fields or sample rate of an existing key.
func (r *Registry) Register(category, name string, required []string, sampleRate int) (ID, error) {
	if category == "" || name == "" {
		return "", fmt.Errorf("capability requires category and name")
	}
	if sampleRate < 1 {
		sampleRate = 1
	}

	fields := append([]string(nil), required...)
	sort.Strings(fields)

	key := envelope.Key(category, name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.caps[key]; ok {
		if existing.DefaultSampleRate != sampleRate || !equalFields(existing.RequiredFields, fields) {
			return "", fmt.Errorf("%w: %s already registered with a different definition", ErrCapabilityConflict, key)
		}
		return existing.ID, nil
	}

	cap := &Capability{
		ID:                ID(key),
		Category:          category,
		Name:              name,
		RequiredFields:    fields,
		DefaultSampleRate: sampleRate,
	}
	r.caps[key] = cap
	return cap.ID, nil
}

// Resolve returns the capability owning a (category, name) family.
func (r *Registry) Resolve(category, name string) (*Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cap, ok := r.caps[envelope.Key(category, name)]
	return cap, ok
}

// Validate checks an envelope against its registered capability.
func (r *Registry) Validate(env envelope.Envelope) error {
	r.mu.RLock()
	cap, ok := r.caps[env.Key()]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, env.Key())
	}
	return CheckRequired(cap, env.Metadata)
}

// CheckRequired verifies the metadata map carries every field the capability
// requires.
func CheckRequired(cap *Capability, metadata map[string]string) error {
	for _, field := range cap.RequiredFields {
		if _, ok := metadata[field]; !ok {
			return fmt.Errorf("%w: %s requires %q", ErrMissingField, envelope.Key(cap.Category, cap.Name), field)
		}
	}
	return nil
}

// Definitions returns a snapshot of all registered capabilities sorted by key.
func (r *Registry) Definitions() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capability, 0, len(r.caps))
	for _, cap := range r.caps {
		out = append(out, *cap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
