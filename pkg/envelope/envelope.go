// Package envelope defines the versioned diagnostic record that every
// producer in the engine emits.
//
// An envelope is immutable once constructed. Its (category, name) pair forms
// the capability key that the registry resolves before emission is allowed.
package envelope

import (
	"sort"
	"time"
	"unicode/utf8"
)

// CurrentSchemaVersion is stamped onto every envelope this build produces.
// Readers accept any envelope whose major version matches their own.
const CurrentSchemaVersion = "1.0.0"

// Metadata bounds. The metadata map is open-ended by design but clamped at
// construction so a hot-path emit can never allocate without limit.
const (
	MaxMetadataKeys     = 16
	MaxMetadataValueLen = 256
)

// Level classifies the severity of a diagnostic event.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// rank orders levels for filtering. Unknown levels rank lowest.
func (l Level) rank() int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	}
	return -1
}

// AtLeast reports whether l is at or above min severity.
func (l Level) AtLeast(min Level) bool {
	return l.rank() >= min.rank()
}

// Envelope is a single versioned diagnostic record.
type Envelope struct {
	SchemaVersion string            `json:"schema_version"`
	Timestamp     time.Time         `json:"timestamp"`
	Tick          uint64            `json:"tick"`
	Category      string            `json:"category"`
	Name          string            `json:"name"`
	Level         Level             `json:"level"`
	Value         float64           `json:"value"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Key returns the capability key for this envelope.
func (e Envelope) Key() string {
	return Key(e.Category, e.Name)
}

// Key builds a capability key from a category and name.
func Key(category, name string) string {
	return category + "/" + name
}

// BoundMetadata clamps an open metadata map to the construction limits.
// When the map exceeds MaxMetadataKeys the lexicographically smallest keys
// are kept so the result is deterministic. A nil input returns nil.
func BoundMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}

	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	if len(keys) > MaxMetadataKeys {
		sort.Strings(keys)
		keys = keys[:MaxMetadataKeys]
	}

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		v := in[k]
		if len(v) > MaxMetadataValueLen {
			// Back off to a rune boundary so the clamp never produces
			// invalid UTF-8 in exports.
			cut := MaxMetadataValueLen
			for cut > 0 && !utf8.RuneStart(v[cut]) {
				cut--
			}
			v = v[:cut]
		}
		out[k] = v
	}
	return out
}
