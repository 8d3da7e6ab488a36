package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/rulegraph/internal/digest"
)

func key(name string) NodeKey {
	return NodeKey{Rule: name, Params: digest.FromBytes([]byte(name))}
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, uint64(1), g.Generation())
}

func TestGetOrCreateDedupes(t *testing.T) {
	g := New()

	a := g.GetOrCreate(key("a"))
	again := g.GetOrCreate(key("a"))
	b := g.GetOrCreate(key("b"))

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, Pending, a.State())
}

func TestNodeLifecycle(t *testing.T) {
	g := New()
	n := g.GetOrCreate(key("n"))

	attempt, started := n.TryStart(nil)
	require.True(t, started)
	assert.Equal(t, Running, n.State())

	_, startedAgain := n.TryStart(nil)
	assert.False(t, startedAgain, "a Running node must not be claimed twice")

	installed := g.Complete(n, attempt, "result", nil)
	require.True(t, installed)

	snap := n.Snapshot()
	assert.Equal(t, Completed, snap.State)
	assert.Equal(t, "result", snap.Value)
	assert.Equal(t, g.Generation(), snap.Generation)
}

func TestNodeFailure(t *testing.T) {
	g := New()
	n := g.GetOrCreate(key("n"))

	attempt, started := n.TryStart(nil)
	require.True(t, started)

	boom := errors.New("boom")
	require.True(t, g.Complete(n, attempt, nil, boom))

	snap := n.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, boom, snap.Err)
}

func TestStaleAttemptDiscarded(t *testing.T) {
	g := New()
	n := g.GetOrCreate(key("n"))

	attempt, started := n.TryStart(nil)
	require.True(t, started)

	// Invalidation resets the node while the attempt is in flight.
	g.Invalidate([]*Node{n})

	installed := g.Complete(n, attempt, "stale result", nil)
	assert.False(t, installed, "a reset node must not accept the old attempt's result")
	assert.Equal(t, Pending, n.State())
	assert.Nil(t, n.Snapshot().Value)
}

func TestCompleteWakesWaiters(t *testing.T) {
	g := New()
	n := g.GetOrCreate(key("n"))
	attempt, _ := n.TryStart(nil)

	snap := n.Snapshot()
	done := make(chan struct{})
	go func() {
		<-snap.Done
		close(done)
	}()

	g.Complete(n, attempt, 42, nil)
	<-done // must not hang
}

func TestRecordDependency(t *testing.T) {
	t.Run("success and idempotency", func(t *testing.T) {
		g := New()
		a := g.GetOrCreate(key("a"))
		b := g.GetOrCreate(key("b"))

		require.NoError(t, g.RecordDependency(a, b))
		require.NoError(t, g.RecordDependency(a, b))
	})

	t.Run("self dependency", func(t *testing.T) {
		g := New()
		a := g.GetOrCreate(key("a"))

		err := g.RecordDependency(a, a)
		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
	})

	t.Run("two node cycle", func(t *testing.T) {
		g := New()
		a := g.GetOrCreate(key("a"))
		b := g.GetOrCreate(key("b"))

		require.NoError(t, g.RecordDependency(a, b))
		err := g.RecordDependency(b, a)
		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
		assert.Contains(t, cycle.Chain, a.Key)
		assert.Contains(t, cycle.Chain, b.Key)
	})

	t.Run("longer cycle", func(t *testing.T) {
		g := New()
		a := g.GetOrCreate(key("a"))
		b := g.GetOrCreate(key("b"))
		c := g.GetOrCreate(key("c"))

		require.NoError(t, g.RecordDependency(a, b))
		require.NoError(t, g.RecordDependency(b, c))
		err := g.RecordDependency(c, a)
		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
		assert.Len(t, cycle.Chain, 3)
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		g := New()
		a := g.GetOrCreate(key("a"))
		b := g.GetOrCreate(key("b"))
		c := g.GetOrCreate(key("c"))
		d := g.GetOrCreate(key("d"))

		require.NoError(t, g.RecordDependency(a, b))
		require.NoError(t, g.RecordDependency(a, c))
		require.NoError(t, g.RecordDependency(b, d))
		require.NoError(t, g.RecordDependency(c, d))
	})

	t.Run("completed nodes break cycles", func(t *testing.T) {
		g := New()
		a := g.GetOrCreate(key("a"))
		b := g.GetOrCreate(key("b"))

		require.NoError(t, g.RecordDependency(a, b))
		attempt, _ := b.TryStart(nil)
		require.True(t, g.Complete(b, attempt, "done", nil))

		// b is settled; an edge back to a cannot deadlock anything.
		require.NoError(t, g.RecordDependency(b, a))
	})
}

func completeAll(t *testing.T, g *Graph, nodes ...*Node) {
	t.Helper()
	for _, n := range nodes {
		attempt, started := n.TryStart(nil)
		require.True(t, started)
		require.True(t, g.Complete(n, attempt, "v", nil))
	}
}

func TestInvalidateReverseWalk(t *testing.T) {
	g := New()
	// a depends on b, b depends on c; x is unrelated.
	a := g.GetOrCreate(key("a"))
	b := g.GetOrCreate(key("b"))
	c := g.GetOrCreate(key("c"))
	x := g.GetOrCreate(key("x"))

	require.NoError(t, g.RecordDependency(a, b))
	require.NoError(t, g.RecordDependency(b, c))
	completeAll(t, g, c, b, a, x)

	genBefore := g.Generation()
	xGen := x.Snapshot().Generation

	keys := g.Invalidate([]*Node{c})
	assert.Len(t, keys, 3)
	assert.Contains(t, keys, a.Key)
	assert.Contains(t, keys, b.Key)
	assert.Contains(t, keys, c.Key)

	assert.Equal(t, Pending, a.State())
	assert.Equal(t, Pending, b.State())
	assert.Equal(t, Pending, c.State())

	assert.Equal(t, Completed, x.State(), "unrelated node must keep its result")
	assert.Equal(t, xGen, x.Snapshot().Generation, "unrelated node keeps its generation tag")
	assert.Equal(t, genBefore+1, g.Generation())
}

func TestInvalidateMidChain(t *testing.T) {
	g := New()
	a := g.GetOrCreate(key("a"))
	b := g.GetOrCreate(key("b"))
	c := g.GetOrCreate(key("c"))

	require.NoError(t, g.RecordDependency(a, b))
	require.NoError(t, g.RecordDependency(b, c))
	completeAll(t, g, c, b, a)

	keys := g.Invalidate([]*Node{b})
	assert.Len(t, keys, 2, "only b and its dependents reset")
	assert.Equal(t, Completed, c.State(), "b's dependency is untouched")
}

func TestInvalidateEmpty(t *testing.T) {
	g := New()
	gen := g.Generation()
	assert.Nil(t, g.Invalidate(nil))
	assert.Equal(t, gen, g.Generation(), "no-op invalidation must not advance the generation")
}

func TestInvalidateWakesWaiters(t *testing.T) {
	g := New()
	n := g.GetOrCreate(key("n"))
	n.TryStart(nil)

	snap := n.Snapshot()
	g.Invalidate([]*Node{n})

	select {
	case <-snap.Done:
		// woken; the new snapshot shows a fresh attempt
		assert.Greater(t, n.Snapshot().Attempt, snap.Attempt)
	default:
		t.Fatal("reset must close the previous done channel")
	}
}
