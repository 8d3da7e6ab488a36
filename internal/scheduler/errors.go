package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeoutError reports a rule attempt that exceeded its execution
// deadline. It is surfaced to that node's waiters only; the scheduler
// keeps running.
type TimeoutError struct {
	Rule    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rule %q timed out after %s", e.Rule, e.Timeout)
}

// ExecutionError reports a failed rule body. Chain records the dependency
// path from the waiter's side down to the originating rule, so a failure
// deep in the graph reads as a trace rather than a bare message.
type ExecutionError struct {
	// Chain lists rule names from the outermost waiter to the rule that
	// actually failed.
	Chain []string
	// Err is the originating fault.
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("rule %q failed (via %s): %v",
		e.Chain[len(e.Chain)-1], strings.Join(e.Chain, " -> "), e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// chainError extends an error's dependency chain with the given rule, or
// starts a chain for a fresh fault. Bodies often wrap a dependency's
// failure before returning it, so the chain is recovered from anywhere in
// the wrap chain, not just the top.
func chainError(ruleName string, err error) error {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return &ExecutionError{
			Chain: append([]string{ruleName}, ee.Chain...),
			Err:   ee.Err,
		}
	}
	return &ExecutionError{Chain: []string{ruleName}, Err: err}
}
