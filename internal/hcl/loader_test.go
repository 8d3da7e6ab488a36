package hcl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "main.hcl", `
engine {
  workers         = 4
  store_path      = "/var/lib/rulegraph"
  in_memory_store = true
  default_timeout = "30s"

  watch {
    roots    = ["src", "configs"]
    debounce = "250ms"
  }
}

request "build" {
  output = "process.Result"

  params {
    argv        = ["make", "all"]
    description = "full build"
  }
}
`)

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 4, model.Engine.Workers)
	assert.Equal(t, "/var/lib/rulegraph", model.Engine.StorePath)
	assert.True(t, model.Engine.InMemoryStore)
	assert.Equal(t, 30*time.Second, model.Engine.DefaultTimeout)
	assert.Equal(t, []string{"src", "configs"}, model.Engine.WatchRoots)
	assert.Equal(t, 250*time.Millisecond, model.Engine.WatchDebounce)

	require.Len(t, model.Requests, 1)
	req := model.Requests[0]
	assert.Equal(t, "build", req.Name)
	assert.Equal(t, "process.Result", req.Output)
	assert.Equal(t, cty.StringVal("full build"), req.Attrs["description"])

	argv, err := StringsFromCty(req.Attrs["argv"])
	require.NoError(t, err)
	assert.Equal(t, []string{"make", "all"}, argv)
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "engine.hcl", `
engine {
  workers = 2
}
`)
	writeConfig(t, dir, "requests.hcl", `
request "snapshot" {
  output = "fileset.Snapshot"
}

request "env" {
  output = "env.Value"
}
`)
	writeConfig(t, dir, "notes.txt", "not hcl, not loaded")

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, model.Engine.Workers)
	assert.Len(t, model.Requests, 2)
}

func TestLoadRejectsDuplicateRequestNames(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "dup.hcl", `
request "build" {
  output = "process.Result"
}

request "build" {
  output = "process.Result"
}
`)

	_, err := NewLoader().Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate request block "build"`)
}

func TestLoadRejectsDuplicateEngineBlocks(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.hcl", "engine {\n  workers = 1\n}\n")
	writeConfig(t, dir, "b.hcl", "engine {\n  workers = 2\n}\n")

	_, err := NewLoader().Load(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate engine block")
}

func TestLoadRejectsRequestWithoutOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "bad.hcl", `
request "broken" {
  params {
    argv = ["true"]
  }
}
`)

	_, err := NewLoader().Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `request "broken"`)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "broken.hcl", "engine {{{")

	_, err := NewLoader().Load(context.Background(), path)
	require.Error(t, err)
}

func TestLoadMissingPath(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), "/no/such/config.hcl")
	require.Error(t, err)
}

func TestDurationFromCty(t *testing.T) {
	d, err := DurationFromCty(cty.StringVal("1m30s"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = DurationFromCty(cty.StringVal("not-a-duration"))
	require.Error(t, err)

	_, err = DurationFromCty(cty.NumberIntVal(5))
	require.Error(t, err)
}
