// Package exec exposes the process execution boundary as a rule: a
// process.Request param produces a process.Result, memoized by the
// request's content unless it opts out of caching.
package exec

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	hclconv "github.com/vk/rulegraph/internal/hcl"
	"github.com/vk/rulegraph/internal/process"
	"github.com/vk/rulegraph/internal/registry"
	"github.com/vk/rulegraph/internal/rule"
)

// ResultOutput is the output type tag produced by this module.
const ResultOutput = "process.Result"

// Module implements registry.Module.
type Module struct{}

// Register registers the run rule and its request decoder.
func (m *Module) Register(r *registry.Registry) {
	r.Register(rule.Rule{
		Name:       "exec.run",
		Output:     ResultOutput,
		ParamKinds: []string{process.RequestKind},
		Body:       OnRun,
	})
	r.RegisterRequestDecoder(ResultOutput, decodeParams)
}

// OnRun is the rule body executing one process request.
func OnRun(ctx rule.Context) (any, error) {
	p, _ := ctx.Param(process.RequestKind)
	req := p.(process.Request)
	runner := process.NewRunner(ctx.Store())
	result, err := runner.Run(ctx.StdContext(), req)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func decodeParams(attrs map[string]cty.Value) (rule.ParamSet, error) {
	var req process.Request
	var err error
	for name, v := range attrs {
		switch name {
		case "argv":
			req.Argv, err = hclconv.StringsFromCty(v)
		case "env":
			req.Env, err = hclconv.StringMapFromCty(v)
		case "output_files":
			req.OutputFiles, err = hclconv.StringsFromCty(v)
		case "output_dirs":
			req.OutputDirs, err = hclconv.StringsFromCty(v)
		case "description":
			req.Description, err = hclconv.StringFromCty(v)
		case "uncacheable":
			req.Uncacheable, err = hclconv.BoolFromCty(v)
		default:
			err = fmt.Errorf("unknown param %q", name)
		}
		if err != nil {
			return rule.ParamSet{}, fmt.Errorf("exec: %w", err)
		}
	}
	if len(req.Argv) == 0 {
		return rule.ParamSet{}, fmt.Errorf("exec: argv is required")
	}
	return rule.NewParamSet(req), nil
}
