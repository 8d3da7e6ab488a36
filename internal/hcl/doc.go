// Package hcl loads engine configuration written in HCL and translates it
// into the format-agnostic config model. Request params stay as raw cty
// values here; the module that registered the request's output type
// decodes them into typed params.
package hcl
