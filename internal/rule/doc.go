// Package rule defines the value model shared by the registry, the
// scheduler, and plugin modules: typed params, requests addressed to an
// output type, and the execution context handed to rule bodies.
package rule
