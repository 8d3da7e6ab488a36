// Package watch tracks the external inputs (files, environment variables)
// each graph node read while executing, and turns detected changes into
// minimal invalidation: exactly the reader nodes and their transitive
// dependents go back to Pending, nothing else.
package watch
