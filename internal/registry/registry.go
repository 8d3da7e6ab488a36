package registry

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/rulegraph/internal/rule"
)

// Module is the interface plugin packages implement to contribute rules to
// an engine instance.
type Module interface {
	Register(r *Registry)
}

// RequestDecoder turns the attributes of a configured request block into
// the ParamSet a root request carries. Each module registers a decoder for
// the output types it makes addressable from configuration.
type RequestDecoder func(attrs map[string]cty.Value) (rule.ParamSet, error)

// Registry accumulates registrations for a single engine instance. It is
// populated during startup and then resolved; it is not safe for
// concurrent registration.
type Registry struct {
	rules    []rule.Rule
	unions   map[string]bool
	decoders map[string]RequestDecoder
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		unions:   make(map[string]bool),
		decoders: make(map[string]RequestDecoder),
	}
}

// Register adds a rule. Conflicts surface at Resolve, not here.
func (r *Registry) Register(rl rule.Rule) {
	r.rules = append(r.rules, rl)
}

// RegisterUnion declares an abstract output slot that member rules attach
// to via their UnionBase field.
func (r *Registry) RegisterUnion(base string) {
	r.unions[base] = true
}

// RegisterRequestDecoder makes an output type addressable from request
// configuration.
func (r *Registry) RegisterRequestDecoder(output string, d RequestDecoder) {
	r.decoders[output] = d
}
