package watch

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/vk/rulegraph/internal/ctxlog"
	"github.com/vk/rulegraph/internal/graph"
)

// SourceKind distinguishes the classes of external input the engine
// tracks.
type SourceKind int

const (
	// FileSource is a path on the local filesystem.
	FileSource SourceKind = iota
	// EnvSource is an environment variable.
	EnvSource
)

func (k SourceKind) String() string {
	switch k {
	case FileSource:
		return "file"
	case EnvSource:
		return "env"
	default:
		return "unknown"
	}
}

// Source identifies one external input. File sources are normalized to
// absolute paths so watcher events and rule reads agree on identity.
type Source struct {
	Kind SourceKind
	Name string
}

// FileOf builds a file Source from a possibly relative path.
func FileOf(path string) Source {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return Source{Kind: FileSource, Name: abs}
}

// EnvOf builds an environment-variable Source.
func EnvOf(name string) Source {
	return Source{Kind: EnvSource, Name: name}
}

// Tracker records which nodes read which external sources and drives
// invalidation through the graph when sources change. Safe for concurrent
// use.
type Tracker struct {
	graph *graph.Graph

	mu      sync.Mutex
	readers map[Source]map[graph.NodeKey]*graph.Node
	byNode  map[graph.NodeKey][]Source
}

// NewTracker creates a tracker bound to the given graph.
func NewTracker(g *graph.Graph) *Tracker {
	return &Tracker{
		graph:   g,
		readers: make(map[Source]map[graph.NodeKey]*graph.Node),
		byNode:  make(map[graph.NodeKey][]Source),
	}
}

// Record notes that n's current execution read src. Called by the rule
// execution context on every ReadFile/Env; rule bodies never call it.
func (t *Tracker) Record(n *graph.Node, src Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	nodes, ok := t.readers[src]
	if !ok {
		nodes = make(map[graph.NodeKey]*graph.Node)
		t.readers[src] = nodes
	}
	if _, ok := nodes[n.Key]; !ok {
		nodes[n.Key] = n
		t.byNode[n.Key] = append(t.byNode[n.Key], src)
	}
}

// Invalidate marks every node that read one of the changed sources, plus
// all transitive dependents, Pending. It returns the keys newly marked;
// an empty result means no completed work depended on the change. The
// reset nodes' recorded reads are dropped, to be re-recorded when they
// re-execute.
func (t *Tracker) Invalidate(ctx context.Context, changed []Source) []graph.NodeKey {
	logger := ctxlog.FromContext(ctx)

	t.mu.Lock()
	var dirty []*graph.Node
	seen := make(map[graph.NodeKey]bool)
	for _, src := range changed {
		for key, n := range t.readers[src] {
			if !seen[key] {
				seen[key] = true
				dirty = append(dirty, n)
			}
		}
	}
	t.mu.Unlock()

	if len(dirty) == 0 {
		logger.Debug("Invalidation found no readers.", "sources", len(changed))
		return nil
	}

	keys := t.graph.Invalidate(dirty)

	t.mu.Lock()
	for _, key := range keys {
		for _, src := range t.byNode[key] {
			delete(t.readers[src], key)
			if len(t.readers[src]) == 0 {
				delete(t.readers, src)
			}
		}
		delete(t.byNode, key)
	}
	t.mu.Unlock()

	logger.Info("Invalidated nodes.",
		"changedSources", len(changed),
		"directReaders", len(dirty),
		"invalidated", len(keys),
		"generation", t.graph.Generation())
	return keys
}
