package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherBatchesBurstsOfChanges(t *testing.T) {
	dir := t.TempDir()
	batches := make(chan []Source, 4)

	w, err := NewWatcher([]string{dir}, 100*time.Millisecond, func(changed []Source) {
		batches <- changed
	})
	require.NoError(t, err)
	defer w.Close()
	w.Start(context.Background())

	// Two writes inside one debounce window.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))

	select {
	case batch := <-batches:
		seen := make(map[string]bool)
		for _, src := range batch {
			assert.Equal(t, FileSource, src.Kind)
			seen[filepath.Base(src.Name)] = true
		}
		assert.True(t, seen["a.txt"])
		assert.True(t, seen["b.txt"])
	case <-time.After(3 * time.Second):
		t.Fatal("no batch arrived")
	}

	select {
	case batch := <-batches:
		t.Fatalf("burst produced a second batch: %v", batch)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher([]string{t.TempDir()}, 50*time.Millisecond, func([]Source) {})
	require.NoError(t, err)
	w.Start(context.Background())

	require.NoError(t, w.Close())
	assert.NotPanics(t, func() { w.Close() })
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	dir := t.TempDir()
	batches := make(chan []Source, 4)

	w, err := NewWatcher([]string{dir}, 50*time.Millisecond, func(changed []Source) {
		batches <- changed
	})
	require.NoError(t, err)
	defer w.Close()
	w.Start(context.Background())

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	select {
	case <-batches:
	case <-time.After(3 * time.Second):
		t.Fatal("directory creation not observed")
	}

	// A later write inside the new directory is seen too.
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.txt"), []byte("c"), 0o644))
	select {
	case batch := <-batches:
		require.NotEmpty(t, batch)
		assert.Equal(t, "c.txt", filepath.Base(batch[0].Name))
	case <-time.After(3 * time.Second):
		t.Fatal("nested write not observed")
	}
}
