// Package config defines the immutable diagnostics profile handed to the
// core by the host application.
//
// The core never reads environment variables itself: the host resolves a
// Profile (typically from a YAML file shipped next to the game binary) and
// injects it at composition time.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Nullpoint56/Warships2-sub000/pkg/profiling"
)

// Duration wraps time.Duration so profiles can say "16ms" instead of raw
// nanosecond integers.
type Duration time.Duration

// UnmarshalYAML parses Go duration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders Go duration syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Profile is the finished, typed settings object for the diagnostics core.
type Profile struct {
	// EnabledCapabilities lists capability keys ("category/name") or
	// category wildcards ("category/*") to enable. An empty list enables
	// every registered capability.
	EnabledCapabilities []string `yaml:"enabled_capabilities" json:"enabled_capabilities"`

	// SamplingOverrides maps capability keys to a sampling stride that
	// replaces the capability's default (1 = every occurrence, N = every
	// Nth).
	SamplingOverrides map[string]int `yaml:"sampling_overrides" json:"sampling_overrides,omitempty"`

	// BufferCapacity sizes the diagnostic ring buffer.
	BufferCapacity int `yaml:"buffer_capacity" json:"buffer_capacity"`

	// ProfilingMode selects span capture depth.
	ProfilingMode profiling.Mode `yaml:"profiling_mode" json:"profiling_mode"`

	// HitchThreshold flags frame samples exceeding this duration.
	HitchThreshold Duration `yaml:"hitch_threshold" json:"hitch_threshold_ns"`

	// MetricsWindow is the number of frame samples in the rolling window.
	MetricsWindow int `yaml:"metrics_window" json:"metrics_window"`

	// CheckpointInterval is the advisory tick cadence for replay
	// checkpoints. Ordering is enforced by the recorder; cadence is not.
	CheckpointInterval uint64 `yaml:"checkpoint_interval" json:"checkpoint_interval"`

	// CrashDir is where crash bundles are written.
	CrashDir string `yaml:"crash_dir" json:"crash_dir"`

	// ExportQueueDepth bounds the background export request queue.
	ExportQueueDepth int `yaml:"export_queue_depth" json:"export_queue_depth"`
}

// Default returns the profile used when the host supplies nothing.
func Default() Profile {
	return Profile{
		BufferCapacity:     4096,
		ProfilingMode:      profiling.ModeLight,
		HitchThreshold:     Duration(time.Second / 60),
		MetricsWindow:      60,
		CheckpointInterval: 60,
		CrashDir:           "crash",
		ExportQueueDepth:   16,
	}
}

// Load reads a YAML profile, overlaying it on the defaults.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	profile := Default()
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Validate rejects profiles the core cannot honor.
func (p Profile) Validate() error {
	if p.BufferCapacity < 1 {
		return fmt.Errorf("buffer_capacity must be positive, got %d", p.BufferCapacity)
	}
	if p.MetricsWindow < 1 {
		return fmt.Errorf("metrics_window must be positive, got %d", p.MetricsWindow)
	}
	switch p.ProfilingMode {
	case profiling.ModeOff, profiling.ModeLight, profiling.ModeTimeline, profiling.ModeTimelineSample:
	default:
		return fmt.Errorf("unknown profiling_mode %q", p.ProfilingMode)
	}
	for key, rate := range p.SamplingOverrides {
		if rate < 1 {
			return fmt.Errorf("sampling override for %s must be >= 1, got %d", key, rate)
		}
	}
	return nil
}

// CapabilityEnabled reports whether a capability key passes the enable set.
func (p Profile) CapabilityEnabled(key string) bool {
	if len(p.EnabledCapabilities) == 0 {
		return true
	}
	for _, entry := range p.EnabledCapabilities {
		if entry == key {
			return true
		}
		if n := len(entry); n > 1 && entry[n-1] == '*' && entry[n-2] == '/' {
			if len(key) >= n-1 && key[:n-1] == entry[:n-1] {
				return true
			}
		}
	}
	return false
}

// SampleRate resolves the effective sampling stride for a capability key.
func (p Profile) SampleRate(key string, capabilityDefault int) int {
	if rate, ok := p.SamplingOverrides[key]; ok && rate >= 1 {
		return rate
	}
	if capabilityDefault < 1 {
		return 1
	}
	return capabilityDefault
}
