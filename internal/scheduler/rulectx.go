package scheduler

import (
	"context"
	"os"

	"github.com/vk/rulegraph/internal/graph"
	"github.com/vk/rulegraph/internal/rule"
	"github.com/vk/rulegraph/internal/store"
	"github.com/vk/rulegraph/internal/watch"
)

// execCtx is the rule.Context handed to one attempt of one rule body. It
// carries the node identity implicitly, so every Get records its edge and
// every external read lands in the tracker without the body's
// cooperation.
type execCtx struct {
	sched  *Scheduler
	node   *graph.Node
	params rule.ParamSet
	ctx    context.Context
}

var _ rule.Context = (*execCtx)(nil)

// StdContext returns the attempt's context.
func (c *execCtx) StdContext() context.Context { return c.ctx }

// Param returns a value from the requesting ParamSet.
func (c *execCtx) Param(kind string) (rule.Param, bool) {
	return c.params.Get(kind)
}

// Store returns the engine's content store.
func (c *execCtx) Store() *store.Store { return c.sched.store }

// Get requests a dependency, suspending this body until it resolves. The
// worker slot is released for the duration of the park, so suspended
// bodies never starve the pool.
func (c *execCtx) Get(req rule.Request) (any, error) {
	c.sched.releaseSlot()
	defer func() {
		// Reacquire unconditionally; a cancelled reacquire still has to
		// restore the slot invariant before the body observes the error.
		c.sched.slots <- struct{}{}
	}()
	return c.sched.await(c.ctx, c, req)
}

// GetFallible is Get with the failure delivered as a value.
func (c *execCtx) GetFallible(req rule.Request) rule.Result {
	value, err := c.Get(req)
	return rule.Result{Value: value, Err: err}
}

// Concurrently issues the requests in parallel and resumes when all have
// completed, or as soon as the first fails. On failure the remaining
// in-flight dependencies keep executing and memoizing; only their
// delivery to this caller is abandoned.
func (c *execCtx) Concurrently(reqs ...rule.Request) ([]any, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	c.sched.releaseSlot()
	defer func() {
		c.sched.slots <- struct{}{}
	}()

	type outcome struct {
		index int
		value any
		err   error
	}
	ch := make(chan outcome, len(reqs))
	for i, req := range reqs {
		go func(i int, req rule.Request) {
			value, err := c.sched.await(c.ctx, c, req)
			ch <- outcome{index: i, value: value, err: err}
		}(i, req)
	}

	results := make([]any, len(reqs))
	for remaining := len(reqs); remaining > 0; remaining-- {
		o := <-ch
		if o.err != nil {
			return nil, o.err
		}
		results[o.index] = o.value
	}
	return results, nil
}

// ReadFile reads a local file, recording it as an external input of the
// running node. The read is recorded even when it fails, so creating a
// previously missing file invalidates the node that looked for it.
func (c *execCtx) ReadFile(path string) ([]byte, error) {
	if c.sched.tracker != nil {
		c.sched.tracker.Record(c.node, watch.FileOf(path))
	}
	return os.ReadFile(path)
}

// Track records a path as an external input without reading it.
func (c *execCtx) Track(path string) {
	if c.sched.tracker != nil {
		c.sched.tracker.Record(c.node, watch.FileOf(path))
	}
}

// Env reads an environment variable, recorded like ReadFile.
func (c *execCtx) Env(name string) (string, bool) {
	if c.sched.tracker != nil {
		c.sched.tracker.Record(c.node, watch.EnvOf(name))
	}
	return os.LookupEnv(name)
}
