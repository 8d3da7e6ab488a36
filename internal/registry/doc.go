// Package registry collects rule registrations from plugin modules and
// resolves them into a closed dispatch table before any execution starts.
// Ambiguous or missing producers are startup errors, never call-time
// surprises.
package registry
