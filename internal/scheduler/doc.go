// Package scheduler turns the lazily discovered dependency graph into
// concurrent execution. A bounded worker pool runs rule bodies; a body
// suspends at every Get, releasing its worker slot while parked, so a full
// pool never deadlocks on its own dependencies. Concurrent requests for
// one node attach to a single in-flight execution, and failures propagate
// to every waiter exactly like values.
package scheduler
