package config

import (
	"time"

	"github.com/zclconf/go-cty/cty"
)

// Model is the unified representation of a run's configuration.
type Model struct {
	Engine   Engine
	Requests []*RequestSpec
}

// Engine holds the engine-wide settings.
type Engine struct {
	// Workers caps concurrently executing rule bodies.
	Workers int
	// StorePath is the on-disk content store location.
	StorePath string
	// InMemoryStore replaces the persistent store with a throwaway one.
	InMemoryStore bool
	// DefaultTimeout bounds each node attempt; zero disables.
	DefaultTimeout time.Duration
	// WatchRoots are the directories watched in watch mode.
	WatchRoots []string
	// WatchDebounce is the quiet period before a change batch fires.
	WatchDebounce time.Duration
}

// RequestSpec is one named `request` block: an output type to produce and
// the raw attribute values its params are decoded from. Decoding is
// deferred to the module that registered the output's request decoder.
type RequestSpec struct {
	Name   string
	Output string
	Attrs  map[string]cty.Value
}
