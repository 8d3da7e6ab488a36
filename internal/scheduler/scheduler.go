package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vk/rulegraph/internal/ctxlog"
	"github.com/vk/rulegraph/internal/graph"
	"github.com/vk/rulegraph/internal/registry"
	"github.com/vk/rulegraph/internal/rule"
	"github.com/vk/rulegraph/internal/store"
	"github.com/vk/rulegraph/internal/watch"
)

// Options bound the scheduler's resource usage.
type Options struct {
	// Workers caps the number of rule bodies executing (not suspended)
	// at once. Zero means 8.
	Workers int
	// DefaultTimeout bounds each node attempt. Zero disables timeouts.
	DefaultTimeout time.Duration
}

// Scheduler executes requests against the graph. A single Scheduler
// serves any number of concurrent Run calls, sharing memoized state
// between them.
type Scheduler struct {
	graph   *graph.Graph
	rules   *registry.Resolved
	store   *store.Store
	tracker *watch.Tracker

	// base is the engine-lifetime context node executions detach onto,
	// so one root's cancellation never tears down a node another root
	// still waits on.
	base context.Context

	slots          chan struct{}
	defaultTimeout time.Duration
}

// New creates a Scheduler. The base context bounds the lifetime of every
// execution the scheduler ever launches.
func New(base context.Context, g *graph.Graph, rules *registry.Resolved, st *store.Store, tracker *watch.Tracker, opts Options) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	return &Scheduler{
		graph:          g,
		rules:          rules,
		store:          st,
		tracker:        tracker,
		base:           base,
		slots:          make(chan struct{}, workers),
		defaultTimeout: opts.DefaultTimeout,
	}
}

// Graph exposes the scheduler's graph, mainly for invalidation wiring.
func (s *Scheduler) Graph() *graph.Graph { return s.graph }

// Run resolves a root request, blocking until its node completes or ctx is
// cancelled. Memoized results return without re-execution.
func (s *Scheduler) Run(ctx context.Context, req rule.Request) (any, error) {
	session := uuid.NewString()
	ctx = ctxlog.With(ctx, "session", session)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Root request starting.", "output", req.Output, "generation", s.graph.Generation())

	value, err := s.await(ctx, nil, req)
	if err != nil {
		logger.Debug("Root request failed.", "output", req.Output, "error", err)
		return nil, err
	}
	logger.Debug("Root request resolved.", "output", req.Output)
	return value, nil
}

// await resolves one request on behalf of caller (nil for a root). It
// records the dependency edge, attaches to the node's in-flight execution
// or claims it, and parks until a result installs.
func (s *Scheduler) await(ctx context.Context, caller *execCtx, req rule.Request) (any, error) {
	rl, err := s.rules.RuleFor(req)
	if err != nil {
		return nil, err
	}
	fp, err := req.Params.Fingerprint()
	if err != nil {
		return nil, err
	}
	node := s.graph.GetOrCreate(graph.NodeKey{Rule: rl.Name, Params: fp})

	if caller != nil {
		if err := s.graph.RecordDependency(caller.node, node); err != nil {
			return nil, err
		}
	}

	node.AddWaiter()
	defer node.RemoveWaiter()

	for {
		snap := node.Snapshot()
		switch snap.State {
		case graph.Completed:
			return snap.Value, nil
		case graph.Failed:
			return nil, snap.Err
		case graph.Pending:
			if err := s.base.Err(); err != nil {
				return nil, fmt.Errorf("scheduler shut down: %w", err)
			}
			s.startIfPending(ctx, node, rl, req)
			continue
		}
		select {
		case <-snap.Done:
			// Result installed, or the node was reset; re-snapshot.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// startIfPending claims a Pending node and launches its execution
// detached from the requester. Losing the claim race is fine; the caller
// just waits like everyone else.
func (s *Scheduler) startIfPending(ctx context.Context, node *graph.Node, rl *rule.Rule, req rule.Request) {
	runCtx, cancel := context.WithCancel(ctxlog.WithLogger(s.base, ctxlog.FromContext(ctx)))
	attempt, started := node.TryStart(cancel)
	if !started {
		cancel()
		return
	}
	go s.execute(runCtx, cancel, node, attempt, rl, req)
}

// execute runs one attempt of a node's rule body on a worker slot and
// installs the outcome through the graph's completion protocol.
func (s *Scheduler) execute(ctx context.Context, cancel context.CancelFunc, node *graph.Node, attempt uint64, rl *rule.Rule, req rule.Request) {
	defer cancel()
	logger := ctxlog.FromContext(ctx).With("rule", rl.Name, "nodeID", node.Key.String())
	ctx = ctxlog.WithLogger(ctx, logger)

	if s.defaultTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.defaultTimeout)
		defer cancelTimeout()
	}

	value, err := s.runAttempt(ctx, node, attempt, rl, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &TimeoutError{Rule: rl.Name, Timeout: s.defaultTimeout}
		}
		if !errors.Is(err, context.Canceled) {
			err = chainError(rl.Name, err)
		}
	}

	installed := s.graph.Complete(node, attempt, value, err)
	switch {
	case !installed:
		logger.Debug("Discarding stale attempt result.", "attempt", attempt)
	case err != nil:
		logger.Debug("Node failed.", "error", err)
	default:
		logger.Debug("Node completed.", "generation", s.graph.Generation())
	}
}

func (s *Scheduler) runAttempt(ctx context.Context, node *graph.Node, attempt uint64, rl *rule.Rule, req rule.Request) (value any, err error) {
	for _, kind := range rl.ParamKinds {
		if _, ok := req.Params.Get(kind); !ok {
			return nil, fmt.Errorf("rule %q requires param %q, request has %v", rl.Name, kind, req.Params.Kinds())
		}
	}

	if err := s.acquireSlot(ctx); err != nil {
		return nil, err
	}
	defer s.releaseSlot()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule body panicked: %v", r)
		}
	}()

	ec := &execCtx{
		sched:  s,
		node:   node,
		params: req.Params,
		ctx:    ctx,
	}
	return rl.Body(ec)
}

func (s *Scheduler) acquireSlot(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) releaseSlot() {
	<-s.slots
}
