package capability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Nullpoint56/Warships2-sub000/pkg/envelope"
)

func TestRegister_AssignsDeterministicID(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register("sim", "step_ms", nil, 1)
	require.NoError(t, err)
	require.Equal(t, ID("sim/step_ms"), id)
}

func TestRegister_IdempotentForIdenticalDefinition(t *testing.T) {
	r := NewRegistry()

	id1, err := r.Register("net", "packet_loss", []string{"peer"}, 4)
	require.NoError(t, err)
	id2, err := r.Register("net", "packet_loss", []string{"peer"}, 4)
	require.NoError(t, err)

	require.Equal(t, id1, id2)
	require.Equal(t, 1, r.Count())
}

func TestRegister_ConflictOnChangedFields(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("net", "packet_loss", []string{"peer"}, 1)
	require.NoError(t, err)

	_, err = r.Register("net", "packet_loss", []string{"peer", "channel"}, 1)
	require.ErrorIs(t, err, ErrCapabilityConflict)

	_, err = r.Register("net", "packet_loss", []string{"peer"}, 8)
	require.ErrorIs(t, err, ErrCapabilityConflict)
}

func TestRegister_FieldOrderDoesNotConflict(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("ai", "path_cost", []string{"unit", "goal"}, 1)
	require.NoError(t, err)
	_, err = r.Register("ai", "path_cost", []string{"goal", "unit"}, 1)
	require.NoError(t, err)
}

func TestRegister_RequiresCategoryAndName(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("", "x", nil, 1)
	require.Error(t, err)
	_, err = r.Register("x", "", nil, 1)
	require.Error(t, err)
}

func TestValidate_UnknownCapability(t *testing.T) {
	r := NewRegistry()
	err := r.Validate(envelope.Envelope{Category: "ghost", Name: "event"})
	require.ErrorIs(t, err, ErrUnknownCapability)
}

func TestValidate_RequiredFields(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("sim", "desync", []string{"tick", "peer"}, 1)
	require.NoError(t, err)

	err = r.Validate(envelope.Envelope{
		Category: "sim", Name: "desync",
		Metadata: map[string]string{"tick": "9"},
	})
	require.ErrorIs(t, err, ErrMissingField)

	err = r.Validate(envelope.Envelope{
		Category: "sim", Name: "desync",
		Metadata: map[string]string{"tick": "9", "peer": "p2"},
	})
	require.NoError(t, err)
}

func TestDefinitions_SortedSnapshot(t *testing.T) {
	r := NewRegistry()
	_, _ = r.Register("render", "draw_calls", nil, 1)
	_, _ = r.Register("ai", "path_cost", nil, 1)
	_, _ = r.Register("net", "rtt_ms", nil, 2)

	defs := r.Definitions()
	require.Len(t, defs, 3)
	require.Equal(t, ID("ai/path_cost"), defs[0].ID)
	require.Equal(t, ID("net/rtt_ms"), defs[1].ID)
	require.Equal(t, ID("render/draw_calls"), defs[2].ID)
}

func TestRegister_NormalizesSampleRate(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("sim", "tick", nil, 0)
	require.NoError(t, err)

	cap, ok := r.Resolve("sim", "tick")
	require.True(t, ok)
	require.Equal(t, 1, cap.DefaultSampleRate)
}
