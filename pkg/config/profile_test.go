package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Nullpoint56/Warships2-sub000/pkg/profiling"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	doc := `
enabled_capabilities:
  - sim/*
  - render/draw_calls
sampling_overrides:
  sim/step_ms: 4
buffer_capacity: 128
profiling_mode: timeline
hitch_threshold: 20ms
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 128, p.BufferCapacity)
	require.Equal(t, profiling.ModeTimeline, p.ProfilingMode)
	require.Equal(t, 20*time.Millisecond, p.HitchThreshold.Std())
	// Untouched fields keep their defaults.
	require.Equal(t, Default().MetricsWindow, p.MetricsWindow)
	require.Equal(t, Default().CheckpointInterval, p.CheckpointInterval)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiling_mode: warp_speed\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "profiling_mode")
}

func TestValidate_SamplingOverrides(t *testing.T) {
	p := Default()
	p.SamplingOverrides = map[string]int{"sim/step_ms": 0}
	require.Error(t, p.Validate())
}

func TestCapabilityEnabled_EmptyMeansAll(t *testing.T) {
	p := Default()
	require.True(t, p.CapabilityEnabled("anything/at_all"))
}

func TestCapabilityEnabled_ExactAndWildcard(t *testing.T) {
	p := Default()
	p.EnabledCapabilities = []string{"render/*", "sim/step_ms"}

	require.True(t, p.CapabilityEnabled("render/draw_calls"))
	require.True(t, p.CapabilityEnabled("render/tris"))
	require.True(t, p.CapabilityEnabled("sim/step_ms"))
	require.False(t, p.CapabilityEnabled("sim/desync"))
	require.False(t, p.CapabilityEnabled("rendering/draw_calls"))
}

func TestSampleRate_OverrideBeatsDefault(t *testing.T) {
	p := Default()
	p.SamplingOverrides = map[string]int{"net/rtt_ms": 10}

	require.Equal(t, 10, p.SampleRate("net/rtt_ms", 2))
	require.Equal(t, 2, p.SampleRate("net/packet_loss", 2))
	require.Equal(t, 1, p.SampleRate("net/packet_loss", 0))
}
