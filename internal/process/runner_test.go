package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/rulegraph/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(store.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sh(script string) []string {
	return []string{"/bin/sh", "-c", script}
}

func TestRunCapturesStdoutAndStderr(t *testing.T) {
	st := newTestStore(t)
	rn := NewRunner(st)

	res, err := rn.Run(context.Background(), Request{
		Argv:        sh("echo out; echo err >&2"),
		Description: "echo both streams",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	stdout, err := st.ReadBlob(res.Stdout)
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(stdout))

	stderr, err := st.ReadBlob(res.Stderr)
	require.NoError(t, err)
	assert.Equal(t, "err\n", string(stderr))
}

func TestRunNonzeroExitIsData(t *testing.T) {
	st := newTestStore(t)
	rn := NewRunner(st)

	res, err := rn.Run(context.Background(), Request{Argv: sh("exit 3")})
	require.NoError(t, err, "a nonzero exit code is a result, not an engine error")
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunRejectsEmptyArgv(t *testing.T) {
	st := newTestStore(t)
	rn := NewRunner(st)

	_, err := rn.Run(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty argv")
}

func TestRunCapturesOutputFile(t *testing.T) {
	st := newTestStore(t)
	rn := NewRunner(st)

	res, err := rn.Run(context.Background(), Request{
		Argv:        sh("printf hello > result.txt"),
		OutputFiles: []string{"result.txt"},
	})
	require.NoError(t, err)

	files, err := st.ListFiles(res.OutputDigest)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "result.txt", files[0].Path)

	content, err := st.ReadBlob(files[0].Digest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestRunCapturesOutputDir(t *testing.T) {
	st := newTestStore(t)
	rn := NewRunner(st)

	res, err := rn.Run(context.Background(), Request{
		Argv:       sh("mkdir -p gen/sub && printf a > gen/a.txt && printf b > gen/sub/b.txt"),
		OutputDirs: []string{"gen"},
	})
	require.NoError(t, err)

	files, err := st.ListFiles(res.OutputDigest)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "gen/a.txt", files[0].Path)
	assert.Equal(t, "gen/sub/b.txt", files[1].Path)
}

func TestRunMaterializesInputTree(t *testing.T) {
	st := newTestStore(t)
	rn := NewRunner(st)

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "in.txt"), []byte("data"), 0o644))
	snap, err := st.SnapshotDir(srcDir, nil)
	require.NoError(t, err)

	res, err := rn.Run(context.Background(), Request{
		Argv:        sh("cat in.txt > copied.txt"),
		InputDigest: snap.Digest,
		OutputFiles: []string{"copied.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	files, err := st.ListFiles(res.OutputDigest)
	require.NoError(t, err)
	require.Len(t, files, 1)
	content, err := st.ReadBlob(files[0].Digest)
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
}

func TestRunSkipsMissingDeclaredOutputs(t *testing.T) {
	st := newTestStore(t)
	rn := NewRunner(st)

	res, err := rn.Run(context.Background(), Request{
		Argv:        sh("true"),
		OutputFiles: []string{"never-written.txt"},
		OutputDirs:  []string{"never-made"},
	})
	require.NoError(t, err)

	files, err := st.ListFiles(res.OutputDigest)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunRejectsSandboxEscape(t *testing.T) {
	st := newTestStore(t)
	rn := NewRunner(st)

	_, err := rn.Run(context.Background(), Request{
		Argv:        sh("true"),
		OutputFiles: []string{"../outside.txt"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes the sandbox")
}

func TestFingerprintStableForCacheable(t *testing.T) {
	req := Request{Argv: sh("true"), Description: "noop"}

	a, err := req.Fingerprint()
	require.NoError(t, err)
	b, err := req.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := Request{Argv: sh("false"), Description: "noop"}
	c, err := other.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestFingerprintUncacheableNeverRepeats(t *testing.T) {
	req := Request{Argv: sh("date"), Uncacheable: true}

	a, err := req.Fingerprint()
	require.NoError(t, err)
	b, err := req.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "uncacheable requests never land on a memoized node")
}
