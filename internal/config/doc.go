// Package config defines the format-agnostic configuration model the
// engine runs from: engine settings plus the named root requests a run
// executes. Format-specific loaders (see internal/hcl) translate their
// syntax into this model.
package config
