// Package fileset captures source files from the local filesystem into
// the content store. Every file read and every directory listed is
// recorded as an external input, so edits, additions, and deletions
// invalidate exactly the snapshots that saw them.
package fileset

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/rulegraph/internal/digest"
	hclconv "github.com/vk/rulegraph/internal/hcl"
	"github.com/vk/rulegraph/internal/registry"
	"github.com/vk/rulegraph/internal/rule"
	"github.com/vk/rulegraph/internal/store"
)

// SpecKind is the param kind tag for Spec.
const SpecKind = "fileset.Spec"

// SnapshotOutput is the output type tag produced by this module.
const SnapshotOutput = "fileset.Snapshot"

// Spec selects the files to capture. Include and Exclude are glob
// patterns matched against the root-relative slash path; an empty Include
// matches everything.
type Spec struct {
	Root    string   `json:"root"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// ParamKind implements rule.Param.
func (Spec) ParamKind() string { return SpecKind }

// Snapshot is the captured tree plus the root-relative paths inside it.
type Snapshot struct {
	Digest digest.Digest
	Files  []string
}

// Module implements registry.Module.
type Module struct{}

// Register registers the snapshot rule and its request decoder.
func (m *Module) Register(r *registry.Registry) {
	r.Register(rule.Rule{
		Name:       "fileset.snapshot",
		Output:     SnapshotOutput,
		ParamKinds: []string{SpecKind},
		Body:       OnSnapshot,
	})
	r.RegisterRequestDecoder(SnapshotOutput, decodeParams)
}

// OnSnapshot is the rule body producing a Snapshot from a Spec.
func OnSnapshot(ctx rule.Context) (any, error) {
	p, _ := ctx.Param(SpecKind)
	spec := p.(Spec)
	if spec.Root == "" {
		return nil, fmt.Errorf("fileset: spec has no root")
	}

	var listing []store.FileListing
	var files []string
	err := filepath.WalkDir(spec.Root, func(fullPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Listing a directory is itself an input: a file appearing
			// here must re-run the snapshot.
			ctx.Track(fullPath)
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(spec.Root, fullPath)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !spec.matches(rel) {
			return nil
		}
		content, err := ctx.ReadFile(fullPath)
		if err != nil {
			return err
		}
		blob, err := ctx.Store().WriteBlob(content)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		listing = append(listing, store.FileListing{
			Path:       rel,
			Digest:     blob,
			Executable: info.Mode()&0o111 != 0,
		})
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fileset: walking %q: %w", spec.Root, err)
	}

	tree, err := ctx.Store().TreeOf(listing)
	if err != nil {
		return nil, err
	}
	return Snapshot{Digest: tree, Files: files}, nil
}

// matches applies include then exclude patterns to a relative slash path.
// Patterns match either the whole relative path or its base name.
func (s Spec) matches(rel string) bool {
	match := func(patterns []string) bool {
		for _, pat := range patterns {
			if ok, _ := path.Match(pat, rel); ok {
				return true
			}
			if ok, _ := path.Match(pat, path.Base(rel)); ok {
				return true
			}
		}
		return false
	}
	if len(s.Include) > 0 && !match(s.Include) {
		return false
	}
	return !match(s.Exclude)
}

func decodeParams(attrs map[string]cty.Value) (rule.ParamSet, error) {
	var spec Spec
	var err error
	for name, v := range attrs {
		switch name {
		case "root":
			spec.Root, err = hclconv.StringFromCty(v)
		case "include":
			spec.Include, err = hclconv.StringsFromCty(v)
		case "exclude":
			spec.Exclude, err = hclconv.StringsFromCty(v)
		default:
			err = fmt.Errorf("unknown param %q", name)
		}
		if err != nil {
			return rule.ParamSet{}, fmt.Errorf("fileset: %w", err)
		}
	}
	return rule.NewParamSet(spec), nil
}
