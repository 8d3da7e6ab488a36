package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/rulegraph/internal/ctxlog"
	"github.com/vk/rulegraph/internal/rule"
	"github.com/vk/rulegraph/internal/watch"
)

// Run executes every configured request once and, in watch mode, keeps
// re-running affected requests as tracked inputs change until ctx is
// cancelled.
func (a *App) Run(ctx context.Context, appConfig *Config) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	defer a.Close()

	if len(a.model.Requests) == 0 {
		return errors.New("configuration defines no request blocks")
	}

	if err := a.RunRequests(ctx); err != nil && !appConfig.Watch {
		return err
	}
	if !appConfig.Watch {
		return nil
	}
	return a.watchLoop(ctx)
}

// RunRequests resolves every configured request against the engine.
// Requests already memoized for the current generation return without
// re-execution.
func (a *App) RunRequests(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var failures []error
	for _, spec := range a.model.Requests {
		req, err := a.buildRequest(spec.Output, spec.Attrs)
		if err != nil {
			failures = append(failures, fmt.Errorf("request %q: %w", spec.Name, err))
			continue
		}
		value, err := a.sched.Run(ctx, req)
		if err != nil {
			logger.Error("Request failed.", "request", spec.Name, "error", err)
			failures = append(failures, fmt.Errorf("request %q: %w", spec.Name, err))
			continue
		}
		logger.Info("Request resolved.", "request", spec.Name, "output", spec.Output, "value", fmt.Sprintf("%+v", value))
	}
	return errors.Join(failures...)
}

// buildRequest turns a configured request spec into an engine request via
// the decoder its module registered.
func (a *App) buildRequest(output string, attrs map[string]cty.Value) (rule.Request, error) {
	decoder, ok := a.resolved.Decoder(output)
	if !ok {
		return rule.Request{}, fmt.Errorf("output %q is not addressable from configuration", output)
	}
	params, err := decoder(attrs)
	if err != nil {
		return rule.Request{}, err
	}
	return rule.Request{Output: output, Params: params}, nil
}

// watchLoop re-runs configured requests whenever the tracker invalidates
// nodes for a batch of file changes.
func (a *App) watchLoop(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	roots := a.model.Engine.WatchRoots
	if len(roots) == 0 {
		roots = []string{"."}
	}

	rerun := make(chan struct{}, 1)
	watcher, err := watch.NewWatcher(roots, a.model.Engine.WatchDebounce, func(changed []watch.Source) {
		// Directory listings track their parent dirs, so a created or
		// deleted file also invalidates via its containing directory.
		expanded := changed
		for _, src := range changed {
			if src.Kind == watch.FileSource {
				expanded = append(expanded, watch.FileOf(filepath.Dir(src.Name)))
			}
		}
		if keys := a.tracker.Invalidate(ctx, expanded); len(keys) > 0 {
			select {
			case rerun <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("starting file watcher: %w", err)
	}
	defer watcher.Close()
	watcher.Start(ctx)
	logger.Info("Watching for changes.", "roots", roots)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-rerun:
			if err := a.RunRequests(ctx); err != nil {
				logger.Error("Re-run failed; continuing to watch.", "error", err)
			}
			if err := a.store.RunGC(ctx); err != nil {
				logger.Warn("Store GC failed.", "error", err)
			}
		}
	}
}
