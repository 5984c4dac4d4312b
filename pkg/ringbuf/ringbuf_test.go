package ringbuf

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Nullpoint56/Warships2-sub000/pkg/envelope"
)

func numbered(n int) envelope.Envelope {
	return envelope.Envelope{
		Category: "sim",
		Name:     "tick",
		Tick:     uint64(n),
		Value:    float64(n),
	}
}

func TestPush_BelowCapacity(t *testing.T) {
	b := New(10)
	for i := 1; i <= 3; i++ {
		b.Push(numbered(i))
	}

	snap := b.Snapshot(SnapshotOptions{})
	require.Len(t, snap, 3)
	require.Equal(t, uint64(1), snap[0].Tick)
	require.Equal(t, uint64(3), snap[2].Tick)
	require.Equal(t, 3, b.Len())
	require.Equal(t, uint64(0), b.Dropped())
}

// Scenario: 100 pushes into a capacity-10 buffer retain exactly 91–100 in
// push order.
func TestPush_OverwritesOldest(t *testing.T) {
	b := New(10)
	for i := 1; i <= 100; i++ {
		b.Push(numbered(i))
	}

	snap := b.Snapshot(SnapshotOptions{Limit: 10})
	require.Len(t, snap, 10)
	for i, env := range snap {
		require.Equal(t, uint64(91+i), env.Tick)
	}
	require.Equal(t, 10, b.Len())
	require.Equal(t, uint64(90), b.Dropped())
}

func TestSnapshot_CategoryAndNameFilter(t *testing.T) {
	b := New(16)
	b.Push(envelope.Envelope{Category: "render", Name: "draw_calls", Value: 1})
	b.Push(envelope.Envelope{Category: "sim", Name: "step_ms", Value: 2})
	b.Push(envelope.Envelope{Category: "render", Name: "tris", Value: 3})
	b.Push(envelope.Envelope{Category: "render", Name: "draw_calls", Value: 4})

	byCat := b.Snapshot(SnapshotOptions{Category: "render"})
	require.Len(t, byCat, 3)

	byName := b.Snapshot(SnapshotOptions{Category: "render", Name: "draw_calls"})
	require.Len(t, byName, 2)
	require.Equal(t, float64(1), byName[0].Value)
	require.Equal(t, float64(4), byName[1].Value)
}

func TestSnapshot_LimitKeepsMostRecent(t *testing.T) {
	b := New(8)
	for i := 1; i <= 5; i++ {
		b.Push(numbered(i))
	}
	snap := b.Snapshot(SnapshotOptions{Limit: 2})
	require.Len(t, snap, 2)
	require.Equal(t, uint64(4), snap[0].Tick)
	require.Equal(t, uint64(5), snap[1].Tick)
}

func TestSnapshot_IsACopy(t *testing.T) {
	b := New(4)
	b.Push(numbered(1))
	snap := b.Snapshot(SnapshotOptions{})
	b.Push(numbered(2))
	require.Len(t, snap, 1)
}

func TestNew_ClampsCapacity(t *testing.T) {
	b := New(0)
	require.Equal(t, 1, b.Cap())
	b.Push(numbered(1))
	b.Push(numbered(2))
	snap := b.Snapshot(SnapshotOptions{})
	require.Len(t, snap, 1)
	require.Equal(t, uint64(2), snap[0].Tick)
}

// Concurrent pushes must never tear a record: every snapshotted envelope is
// one of the values actually pushed, whole.
func TestPush_ConcurrentProducers(t *testing.T) {
	b := New(64)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.Push(envelope.Envelope{
					Category: "sim",
					Name:     fmt.Sprintf("producer_%d", p),
					Tick:     uint64(i),
					Value:    float64(i),
				})
			}
		}(p)
	}
	wg.Wait()

	snap := b.Snapshot(SnapshotOptions{})
	require.Len(t, snap, 64)
	for _, env := range snap {
		// Tick and Value were written together; a torn record would break this.
		require.Equal(t, env.Value, float64(env.Tick))
	}
}
