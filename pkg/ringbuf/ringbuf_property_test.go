//go:build property
// +build property

// Property-based tests for ring buffer retention.
package ringbuf

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Nullpoint56/Warships2-sub000/pkg/envelope"
)

// TestRetentionProperty verifies that for any N pushes into a buffer of
// capacity C, a snapshot holds exactly min(N, C) records and they are the
// most recent ones in push order.
func TestRetentionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("snapshot holds the most recent min(N,C) pushes in order", prop.ForAll(
		func(capacity int, pushes int) bool {
			b := New(capacity)
			for i := 0; i < pushes; i++ {
				b.Push(envelope.Envelope{Tick: uint64(i + 1)})
			}

			snap := b.Snapshot(SnapshotOptions{})

			want := pushes
			if capacity < 1 {
				capacity = 1
			}
			if want > capacity {
				want = capacity
			}
			if len(snap) != want {
				return false
			}
			for i, env := range snap {
				if env.Tick != uint64(pushes-want+i+1) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 64),
		gen.IntRange(0, 512),
	))

	properties.TestingRun(t)
}
