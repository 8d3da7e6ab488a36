package graph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Graph is the set of all nodes created so far, their edges, and the
// current generation. All operations are concurrency-safe.
type Graph struct {
	mu         sync.Mutex
	nodes      map[NodeKey]*Node
	generation atomic.Uint64
}

// New creates an empty graph at generation 1.
func New() *Graph {
	g := &Graph{nodes: make(map[NodeKey]*Node)}
	g.generation.Store(1)
	return g
}

// Generation returns the current invalidation epoch.
func (g *Graph) Generation() uint64 {
	return g.generation.Load()
}

// GetOrCreate returns the node for key, allocating a Pending node on first
// request. Memoization dedup starts here: every requester for a key sees
// the same node.
func (g *Graph) GetOrCreate(key NodeKey) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[key]; ok {
		return n
	}
	n := newNode(key)
	g.nodes[key] = n
	return n
}

// Lookup returns the node for key if it exists.
func (g *Graph) Lookup(key NodeKey) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[key]
	return n, ok
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// RecordDependency registers that from's execution requested to's value.
// Edges are discovered at request time, not declared, so the cycle check
// runs incrementally here: if the new edge closes a cycle among
// not-yet-completed nodes, the edge is rejected with a CycleError naming
// the chain. The error is fatal to the requesting execution only.
func (g *Graph) RecordDependency(from, to *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from == to {
		return &CycleError{Chain: []NodeKey{from.Key}}
	}
	if _, ok := from.deps[to.Key]; ok {
		return nil
	}
	if chain := g.findPath(to, from); chain != nil {
		// chain runs to -> ... -> from; rotate from to the front so the
		// reported cycle starts at the requester.
		cycle := append([]NodeKey{from.Key}, chain[:len(chain)-1]...)
		return &CycleError{Chain: cycle}
	}
	from.deps[to.Key] = to
	to.dependents[from.Key] = from
	return nil
}

// findPath runs a depth-first search along dependency edges from start to
// target, skipping settled nodes: a Completed or Failed node is no longer
// waiting on anything, so it cannot take part in a deadlock cycle.
func (g *Graph) findPath(start, target *Node) []NodeKey {
	seen := make(map[NodeKey]bool)
	var walk func(n *Node, path []NodeKey) []NodeKey
	walk = func(n *Node, path []NodeKey) []NodeKey {
		if seen[n.Key] {
			return nil
		}
		seen[n.Key] = true
		switch n.State() {
		case Completed, Failed:
			return nil
		}
		path = append(path, n.Key)
		if n == target {
			return append([]NodeKey(nil), path...)
		}
		for _, dep := range n.deps {
			if found := walk(dep, path); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(start, nil)
}

// Complete installs an attempt's result, transitioning Running to
// Completed or Failed and waking every waiter. The result is discarded
// (returning false) when the attempt token is stale, which happens when
// invalidation reset the node while the attempt was in flight. A result
// whose error is context cancellation reverts the node to Pending instead
// of recording a Failed state, so an abandoned attempt never poisons the
// cache.
func (g *Graph) Complete(n *Node, attempt uint64, value any, err error) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.attempt != attempt || State(n.state.Load()) != Running {
		return false
	}
	if err != nil && errors.Is(err, context.Canceled) {
		n.attempt++
		n.state.Store(int32(Pending))
		n.cancelAttempt = nil
		close(n.done)
		n.done = make(chan struct{})
		return false
	}

	n.value = value
	n.err = err
	n.generation = g.generation.Load()
	n.cancelAttempt = nil
	if err != nil {
		n.state.Store(int32(Failed))
	} else {
		n.state.Store(int32(Completed))
	}
	close(n.done)
	n.done = make(chan struct{})
	return true
}

// Invalidate bumps the generation and resets the given nodes plus
// everything reverse-reachable from them through dependent edges. Each
// reset node's outgoing edges are dropped; they are rediscovered when the
// node re-executes. Returns the keys of every node newly marked Pending.
func (g *Graph) Invalidate(dirty []*Node) []NodeKey {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(dirty) == 0 {
		return nil
	}
	g.generation.Add(1)

	affected := make(map[NodeKey]*Node)
	var mark func(n *Node)
	mark = func(n *Node) {
		if _, ok := affected[n.Key]; ok {
			return
		}
		affected[n.Key] = n
		for _, dep := range n.dependents {
			mark(dep)
		}
	}
	for _, n := range dirty {
		mark(n)
	}

	keys := make([]NodeKey, 0, len(affected))
	for key, n := range affected {
		for _, dep := range n.deps {
			delete(dep.dependents, n.Key)
		}
		n.deps = make(map[NodeKey]*Node)
		n.reset()
		keys = append(keys, key)
	}
	return keys
}
