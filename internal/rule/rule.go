package rule

import (
	"context"

	"github.com/vk/rulegraph/internal/store"
)

// Request asks the engine for the value of an output type, given a set of
// params. Requests are the unit of memoization: two requests resolving to
// the same rule with the same param fingerprint share one execution.
type Request struct {
	// Output is the tag of the requested output type, or of a union base.
	Output string
	// Params are the typed inputs available to the producing rule.
	Params ParamSet
}

// Result carries a fallible get's outcome as a value.
type Result struct {
	Value any
	Err   error
}

// BodyFunc is a rule's implementation. It runs single-threaded and may
// suspend at any Get or Concurrently call on its context. Bodies must
// treat every input as immutable and hold no locks across suspension
// points.
type BodyFunc func(Context) (any, error)

// Rule is a registered computation producing one output type.
type Rule struct {
	// Name identifies the rule in logs, errors, and memoization keys.
	Name string
	// Output is the tag of the type this rule produces.
	Output string
	// UnionBase, when non-empty, registers the rule as a member
	// implementation of that union output.
	UnionBase string
	// Selector is the param kind whose presence selects this member when
	// a union base is requested. Required when UnionBase is set.
	Selector string
	// ParamKinds documents the param kinds the body consumes; requests
	// missing one fail before the body runs.
	ParamKinds []string
	// Body is the implementation.
	Body BodyFunc
}

// Context is the per-execution environment a rule body runs against. Every
// dependency request and every external read goes through it, so the
// engine can record edges and inputs without the body's involvement.
type Context interface {
	// StdContext returns the context.Context for this attempt, carrying
	// the logger, cancellation, and the attempt deadline.
	StdContext() context.Context

	// Get requests another output, suspending the body until it
	// resolves. A failed dependency fails this body with the same error.
	Get(Request) (any, error)

	// GetFallible is Get with the error delivered as a value, letting
	// the body handle a dependency's failure instead of propagating it.
	GetFallible(Request) Result

	// Concurrently issues several gets in parallel and resumes when all
	// complete, or as soon as the first fails.
	Concurrently(...Request) ([]any, error)

	// Param returns one of the requesting ParamSet's values by kind.
	Param(kind string) (Param, bool)

	// ReadFile reads a local file and records it as an external input of
	// the running node, so a later change re-executes the node.
	ReadFile(path string) ([]byte, error)

	// Track records a path as an external input without reading it.
	// Rules that list directories track them so that files appearing or
	// vanishing re-execute the listing.
	Track(path string)

	// Env reads an environment variable, recording it like ReadFile.
	Env(name string) (string, bool)

	// Store returns the engine's content store.
	Store() *store.Store
}
