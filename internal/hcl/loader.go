package hcl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/rulegraph/internal/config"
	"github.com/vk/rulegraph/internal/ctxlog"
)

// Loader implements config.Loader for HCL files.
type Loader struct{}

// NewLoader creates an HCL loader.
func NewLoader() *Loader { return &Loader{} }

var _ config.Loader = (*Loader)(nil)

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "engine"},
		{Type: "request", LabelNames: []string{"name"}},
	},
}

var engineSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "workers"},
		{Name: "store_path"},
		{Name: "in_memory_store"},
		{Name: "default_timeout"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "watch"},
	},
}

var watchSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "roots"},
		{Name: "debounce"},
	},
}

var requestSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "output"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "params"},
	},
}

// Load parses every .hcl file under the given paths and merges them into
// one model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loading HCL configuration.", "files", len(files))

	parser := hclparse.NewParser()
	var parsed []*hcl.File
	for _, path := range files {
		f, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parsing %s: %s", path, diags.Error())
		}
		parsed = append(parsed, f)
	}

	body := hcl.MergeFiles(parsed)
	content, diags := body.Content(rootSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %s", diags.Error())
	}

	model := &config.Model{}
	seenEngine := false
	for _, block := range content.Blocks {
		switch block.Type {
		case "engine":
			if seenEngine {
				return nil, fmt.Errorf("duplicate engine block at %s", block.DefRange)
			}
			seenEngine = true
			engine, err := decodeEngine(block.Body)
			if err != nil {
				return nil, err
			}
			model.Engine = engine
		case "request":
			req, err := decodeRequest(block)
			if err != nil {
				return nil, err
			}
			model.Requests = append(model.Requests, req)
		}
	}

	names := make(map[string]bool, len(model.Requests))
	for _, req := range model.Requests {
		if names[req.Name] {
			return nil, fmt.Errorf("duplicate request block %q", req.Name)
		}
		names[req.Name] = true
	}
	return model, nil
}

func decodeEngine(body hcl.Body) (config.Engine, error) {
	var engine config.Engine
	content, diags := body.Content(engineSchema)
	if diags.HasErrors() {
		return engine, fmt.Errorf("invalid engine block: %s", diags.Error())
	}

	attrs, err := evalAttributes(content.Attributes)
	if err != nil {
		return engine, err
	}
	if v, ok := attrs["workers"]; ok {
		if engine.Workers, err = IntFromCty(v); err != nil {
			return engine, fmt.Errorf("engine.workers: %w", err)
		}
	}
	if v, ok := attrs["store_path"]; ok {
		if engine.StorePath, err = StringFromCty(v); err != nil {
			return engine, fmt.Errorf("engine.store_path: %w", err)
		}
	}
	if v, ok := attrs["in_memory_store"]; ok {
		if engine.InMemoryStore, err = BoolFromCty(v); err != nil {
			return engine, fmt.Errorf("engine.in_memory_store: %w", err)
		}
	}
	if v, ok := attrs["default_timeout"]; ok {
		if engine.DefaultTimeout, err = DurationFromCty(v); err != nil {
			return engine, fmt.Errorf("engine.default_timeout: %w", err)
		}
	}

	for _, block := range content.Blocks {
		watchContent, diags := block.Body.Content(watchSchema)
		if diags.HasErrors() {
			return engine, fmt.Errorf("invalid watch block: %s", diags.Error())
		}
		watchAttrs, err := evalAttributes(watchContent.Attributes)
		if err != nil {
			return engine, err
		}
		if v, ok := watchAttrs["roots"]; ok {
			if engine.WatchRoots, err = StringsFromCty(v); err != nil {
				return engine, fmt.Errorf("watch.roots: %w", err)
			}
		}
		if v, ok := watchAttrs["debounce"]; ok {
			if engine.WatchDebounce, err = DurationFromCty(v); err != nil {
				return engine, fmt.Errorf("watch.debounce: %w", err)
			}
		}
	}
	return engine, nil
}

func decodeRequest(block *hcl.Block) (*config.RequestSpec, error) {
	name := block.Labels[0]
	content, diags := block.Body.Content(requestSchema)
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid request %q: %s", name, diags.Error())
	}

	spec := &config.RequestSpec{Name: name, Attrs: map[string]cty.Value{}}
	outputAttr, ok := content.Attributes["output"]
	if !ok {
		return nil, fmt.Errorf("request %q: missing required attribute \"output\"", name)
	}
	outputVal, diags := outputAttr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("request %q: %s", name, diags.Error())
	}
	output, err := StringFromCty(outputVal)
	if err != nil {
		return nil, fmt.Errorf("request %q output: %w", name, err)
	}
	spec.Output = output

	for _, paramsBlock := range content.Blocks {
		attrs, diags := paramsBlock.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("request %q params: %s", name, diags.Error())
		}
		for attrName, attr := range attrs {
			v, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("request %q param %q: %s", name, attrName, diags.Error())
			}
			spec.Attrs[attrName] = v
		}
	}
	return spec, nil
}

func evalAttributes(attrs hcl.Attributes) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %s", name, diags.Error())
		}
		out[name] = v
	}
	return out, nil
}

// collectFiles expands files and directories into a sorted list of .hcl
// files.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("config path %q: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".hcl") {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found under %v", paths)
	}
	return files, nil
}

// DurationFromCty parses a duration from its HCL string form ("30s").
func DurationFromCty(v cty.Value) (time.Duration, error) {
	s, err := StringFromCty(v)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("expected a duration string: %w", err)
	}
	return d, nil
}
