package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/rulegraph/internal/ctxlog"
)

// ChangeHandler receives a debounced batch of changed sources.
type ChangeHandler func(changed []Source)

// Watcher turns raw filesystem events under a set of roots into debounced
// Source batches. Events arriving inside the debounce window are folded
// into one batch, so a burst of editor writes triggers a single
// invalidation round.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	handler  ChangeHandler

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWatcher creates a watcher over the given root directories, added
// recursively. Directories created later under a root are picked up as
// their create events arrive.
func NewWatcher(roots []string, debounce time.Duration, handler ChangeHandler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return fsw.Add(path)
			}
			return nil
		})
		if err != nil {
			fsw.Close()
			return nil, err
		}
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &Watcher{
		fsw:      fsw,
		debounce: debounce,
		handler:  handler,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the event loop. It returns immediately; the handler is
// invoked from a single goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.loop(ctx)
}

// Close stops the loop and releases the underlying watcher. Closing more
// than once is a no-op.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()
	err := w.fsw.Close()
	if started {
		close(w.stop)
		<-w.done
	}
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	logger := ctxlog.FromContext(ctx)

	var pending []Source
	seen := make(map[Source]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		seen = make(map[Source]bool)
		fire = nil
		logger.Debug("Flushing debounced file changes.", "count", len(batch))
		w.handler(batch)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				flush()
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			// New directories join the watch set so nested changes are seen.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						logger.Warn("Failed to watch new directory.", "path", event.Name, "error", err)
					}
				}
			}
			src := FileOf(event.Name)
			if !seen[src] {
				seen[src] = true
				pending = append(pending, src)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				flush()
				return
			}
			logger.Warn("File watcher error.", "error", err)
		case <-fire:
			flush()
		}
	}
}
