// Package app wires a complete engine instance: configuration, logger,
// content store, dependency graph, rule registry, scheduler, and the
// invalidation tracker, plus the run and watch loops driving them.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/rulegraph/internal/config"
	"github.com/vk/rulegraph/internal/ctxlog"
	"github.com/vk/rulegraph/internal/graph"
	"github.com/vk/rulegraph/internal/registry"
	"github.com/vk/rulegraph/internal/scheduler"
	"github.com/vk/rulegraph/internal/store"
	"github.com/vk/rulegraph/internal/watch"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	model    *config.Model
	resolved *registry.Resolved
	store    *store.Store
	graph    *graph.Graph
	tracker  *watch.Tracker
	sched    *scheduler.Scheduler

	// baseCancel tears down every execution the scheduler owns.
	baseCancel context.CancelFunc
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App with its own isolated logger, store, and registry.
// Startup problems are programmer or configuration errors, so it panics;
// the CLI entrypoint recovers and turns the panic into a clean exit.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, appConfig.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	applyOverrides(&model.Engine, appConfig)
	logger.Debug("Configuration loaded.", "requests", len(model.Requests))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All rule modules registered.", "count", len(modules))

	resolved, err := reg.Resolve(ctx)
	if err != nil {
		panic(err)
	}

	st, err := store.New(store.Config{
		Path:     model.Engine.StorePath,
		InMemory: model.Engine.InMemoryStore,
		Logger:   logger,
	})
	if err != nil {
		panic(fmt.Errorf("failed to open content store: %w", err))
	}
	logger.Debug("Content store opened.", "path", model.Engine.StorePath, "inMemory", model.Engine.InMemoryStore)

	g := graph.New()
	tracker := watch.NewTracker(g)

	base, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))
	sched := scheduler.New(base, g, resolved, st, tracker, scheduler.Options{
		Workers:        model.Engine.Workers,
		DefaultTimeout: model.Engine.DefaultTimeout,
	})

	return &App{
		outW:       outW,
		logger:     logger,
		model:      model,
		resolved:   resolved,
		store:      st,
		graph:      g,
		tracker:    tracker,
		sched:      sched,
		baseCancel: cancel,
	}
}

// applyOverrides lets CLI flags win over the engine block.
func applyOverrides(engine *config.Engine, appConfig *Config) {
	if appConfig.Workers > 0 {
		engine.Workers = appConfig.Workers
	}
	if appConfig.StorePath != "" {
		engine.StorePath = appConfig.StorePath
	}
	if appConfig.InMemoryStore {
		engine.InMemoryStore = true
	}
	if engine.StorePath == "" && !engine.InMemoryStore {
		engine.StorePath = ".rulegraph/store"
	}
}

// Close tears down the scheduler's executions and the content store.
func (a *App) Close() error {
	a.baseCancel()
	if err := a.store.RunGC(context.Background()); err != nil {
		a.logger.Warn("Store GC failed during shutdown.", "error", err)
	}
	return a.store.Close()
}

// Scheduler returns the app's scheduler. This is primarily for testing.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Tracker returns the app's invalidation tracker. Primarily for testing.
func (a *App) Tracker() *watch.Tracker { return a.tracker }
