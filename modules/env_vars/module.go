// Package env_vars exposes environment variables as tracked inputs: a
// Name param produces a Value, and the read is recorded so invalidating
// the variable re-executes everything that consumed it.
package env_vars

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	hclconv "github.com/vk/rulegraph/internal/hcl"
	"github.com/vk/rulegraph/internal/registry"
	"github.com/vk/rulegraph/internal/rule"
)

// NameKind is the param kind tag for Name.
const NameKind = "env.Name"

// ValueOutput is the output type tag produced by this module.
const ValueOutput = "env.Value"

// Name selects the environment variable to read.
type Name struct {
	Name string `json:"name"`
}

// ParamKind implements rule.Param.
func (Name) ParamKind() string { return NameKind }

// Value is the observed state of one environment variable.
type Value struct {
	Name  string
	Value string
	Found bool
}

// Module implements registry.Module.
type Module struct{}

// Register registers the read rule and its request decoder.
func (m *Module) Register(r *registry.Registry) {
	r.Register(rule.Rule{
		Name:       "env_vars.read",
		Output:     ValueOutput,
		ParamKinds: []string{NameKind},
		Body:       OnRead,
	})
	r.RegisterRequestDecoder(ValueOutput, decodeParams)
}

// OnRead is the rule body reading one environment variable.
func OnRead(ctx rule.Context) (any, error) {
	p, _ := ctx.Param(NameKind)
	name := p.(Name)
	if name.Name == "" {
		return nil, fmt.Errorf("env_vars: empty variable name")
	}
	value, found := ctx.Env(name.Name)
	return Value{Name: name.Name, Value: value, Found: found}, nil
}

func decodeParams(attrs map[string]cty.Value) (rule.ParamSet, error) {
	var name Name
	var err error
	for attr, v := range attrs {
		switch attr {
		case "name":
			name.Name, err = hclconv.StringFromCty(v)
		default:
			err = fmt.Errorf("unknown param %q", attr)
		}
		if err != nil {
			return rule.ParamSet{}, fmt.Errorf("env_vars: %w", err)
		}
	}
	return rule.NewParamSet(name), nil
}
