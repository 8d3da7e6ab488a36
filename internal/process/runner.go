package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/vk/rulegraph/internal/ctxlog"
	"github.com/vk/rulegraph/internal/digest"
	"github.com/vk/rulegraph/internal/store"
)

// Runner executes process requests against a content store. Sandboxes are
// temporary directories created per execution and removed afterwards;
// everything that should survive must be a declared output.
type Runner struct {
	store *store.Store
	// SandboxRoot overrides the directory sandboxes are created under.
	// Empty means the system temp dir.
	SandboxRoot string
}

// NewRunner creates a Runner backed by st.
func NewRunner(st *store.Store) *Runner {
	return &Runner{store: st}
}

// Run executes one request. A process that spawns and exits returns a
// Result whatever its exit code; only sandbox setup, spawn, or output
// capture problems are errors.
func (rn *Runner) Run(ctx context.Context, req Request) (Result, error) {
	logger := ctxlog.FromContext(ctx)
	if len(req.Argv) == 0 {
		return Result{}, errors.New("process: empty argv")
	}

	sandbox, err := os.MkdirTemp(rn.SandboxRoot, "rulegraph-sandbox-")
	if err != nil {
		return Result{}, fmt.Errorf("process: creating sandbox: %w", err)
	}
	defer os.RemoveAll(sandbox)

	if !req.InputDigest.IsZero() {
		if err := rn.store.Materialize(req.InputDigest, sandbox); err != nil {
			return Result{}, fmt.Errorf("process: materializing input %s: %w", req.InputDigest.Short(), err)
		}
	}

	cmd := exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = sandbox
	cmd.Env = flattenEnv(req.Env)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Spawning process.", "description", req.Description, "argv0", req.Argv[0])
	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{}, fmt.Errorf("process: spawning %q: %w", req.Argv[0], runErr)
		}
		exitCode = exitErr.ExitCode()
	}

	outDigest, err := rn.captureOutputs(sandbox, req)
	if err != nil {
		return Result{}, err
	}
	stdoutDigest, err := rn.store.WriteBlob(stdout.Bytes())
	if err != nil {
		return Result{}, err
	}
	stderrDigest, err := rn.store.WriteBlob(stderr.Bytes())
	if err != nil {
		return Result{}, err
	}

	logger.Debug("Process finished.",
		"description", req.Description,
		"exitCode", exitCode,
		"outputDigest", outDigest.Short())
	return Result{
		ExitCode:     exitCode,
		Stdout:       stdoutDigest,
		Stderr:       stderrDigest,
		OutputDigest: outDigest,
	}, nil
}

// captureOutputs snapshots the declared output paths out of the sandbox
// and merges them into one tree. Declared outputs that the process did not
// produce are skipped rather than failing the execution; consumers can
// tell from the result tree what actually appeared.
func (rn *Runner) captureOutputs(sandbox string, req Request) (digest.Digest, error) {
	trees := make([]digest.Digest, 0, len(req.OutputFiles)+len(req.OutputDirs))

	for _, rel := range req.OutputFiles {
		rel = path.Clean(rel)
		if strings.HasPrefix(rel, "..") {
			return digest.Digest{}, fmt.Errorf("process: output file %q escapes the sandbox", rel)
		}
		content, err := os.ReadFile(filepath.Join(sandbox, filepath.FromSlash(rel)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return digest.Digest{}, fmt.Errorf("process: capturing output %q: %w", rel, err)
		}
		blob, err := rn.store.WriteBlob(content)
		if err != nil {
			return digest.Digest{}, err
		}
		tree, err := rn.store.WriteTree([]store.Entry{{Name: path.Base(rel), Digest: blob}})
		if err != nil {
			return digest.Digest{}, err
		}
		if dir := path.Dir(rel); dir != "." {
			tree, err = rn.store.AddPrefix(tree, dir)
			if err != nil {
				return digest.Digest{}, err
			}
		}
		trees = append(trees, tree)
	}

	for _, rel := range req.OutputDirs {
		rel = path.Clean(rel)
		if strings.HasPrefix(rel, "..") {
			return digest.Digest{}, fmt.Errorf("process: output dir %q escapes the sandbox", rel)
		}
		target := filepath.Join(sandbox, filepath.FromSlash(rel))
		if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
			continue
		}
		snap, err := rn.store.SnapshotDir(target, nil)
		if err != nil {
			return digest.Digest{}, err
		}
		tree := snap.Digest
		if rel != "." {
			tree, err = rn.store.AddPrefix(tree, rel)
			if err != nil {
				return digest.Digest{}, err
			}
		}
		trees = append(trees, tree)
	}

	return rn.store.Merge(trees...)
}

func flattenEnv(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
