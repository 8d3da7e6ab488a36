package graph

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vk/rulegraph/internal/digest"
)

// NodeKey identifies a memoizable computation: a rule plus the fingerprint
// of the param set it was requested with.
type NodeKey struct {
	Rule   string
	Params digest.Digest
}

func (k NodeKey) String() string {
	return k.Rule + "@" + k.Params.Short()
}

// State is a node's position in its lifecycle.
type State int32

const (
	Pending State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Node is one vertex of the dependency graph. Transitions go
// Pending -> Running -> Completed/Failed, with invalidation the only way
// back to Pending. The attempt counter distinguishes executions across
// resets so a stale completion never installs over a newer epoch.
type Node struct {
	Key NodeKey

	// state is readable without the lock for cheap short-circuiting;
	// transitions always hold mu.
	state atomic.Int32

	mu         sync.Mutex
	attempt    uint64
	done       chan struct{}
	value      any
	err        error
	generation uint64
	// cancelAttempt tears down the running attempt when the last waiter
	// abandons it.
	cancelAttempt context.CancelFunc
	// waiters counts the executions and root requests currently parked
	// on this node.
	waiters int

	deps       map[NodeKey]*Node
	dependents map[NodeKey]*Node
}

func newNode(key NodeKey) *Node {
	return &Node{
		Key:        key,
		done:       make(chan struct{}),
		deps:       make(map[NodeKey]*Node),
		dependents: make(map[NodeKey]*Node),
	}
}

// State returns the node's current lifecycle state.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Snapshot is a consistent view of a node taken under its lock. Waiters
// select on Done; when it closes they re-snapshot and either consume the
// result or, if the attempt changed underneath them, retry.
type Snapshot struct {
	State      State
	Attempt    uint64
	Done       <-chan struct{}
	Value      any
	Err        error
	Generation uint64
}

// Snapshot captures the node's state, result, and current done channel.
func (n *Node) Snapshot() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Snapshot{
		State:      State(n.state.Load()),
		Attempt:    n.attempt,
		Done:       n.done,
		Value:      n.value,
		Err:        n.err,
		Generation: n.generation,
	}
}

// TryStart claims the node for execution, moving Pending to Running. The
// returned attempt token must be passed back to Complete. Only one caller
// wins per attempt; losers wait on the done channel instead.
func (n *Node) TryStart(cancel context.CancelFunc) (attempt uint64, started bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if State(n.state.Load()) != Pending {
		return 0, false
	}
	n.state.Store(int32(Running))
	n.cancelAttempt = cancel
	return n.attempt, true
}

// AddWaiter registers a party parked on the node.
func (n *Node) AddWaiter() {
	n.mu.Lock()
	n.waiters++
	n.mu.Unlock()
}

// RemoveWaiter deregisters a parked party. When the last waiter leaves a
// still-running node, the attempt's cancel func is invoked so work owned
// by no live root is torn down; nodes referenced elsewhere keep running.
func (n *Node) RemoveWaiter() {
	n.mu.Lock()
	n.waiters--
	abandoned := n.waiters == 0 && State(n.state.Load()) == Running
	cancel := n.cancelAttempt
	n.mu.Unlock()
	if abandoned && cancel != nil {
		cancel()
	}
}

// reset returns the node to Pending under the graph's invalidation lock.
// The old done channel is closed so parked waiters wake, observe the
// attempt change, and re-request.
func (n *Node) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempt++
	n.state.Store(int32(Pending))
	n.value = nil
	n.err = nil
	n.cancelAttempt = nil
	close(n.done)
	n.done = make(chan struct{})
}
