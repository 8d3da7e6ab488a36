// Package graph owns the engine's dependency graph: memoized computation
// nodes keyed by rule identity and param fingerprint, edges discovered
// while rules run, and the generation counter that tracks invalidation
// epochs. The graph is the only owner of node state; the scheduler drives
// transitions through the completion protocol and never mutates nodes
// directly.
package graph
