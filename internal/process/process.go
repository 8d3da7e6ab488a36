// Package process implements the engine's process execution boundary:
// an external command described as an immutable request value, run in a
// sandbox materialized from the content store, with declared outputs
// captured back into the store. The engine treats the whole execution as
// an opaque leaf node, memoized by the request's fingerprint unless the
// request opts out of caching.
package process

import (
	"github.com/google/uuid"

	"github.com/vk/rulegraph/internal/digest"
	"github.com/vk/rulegraph/internal/rule"
)

// RequestKind is the param kind tag for Request.
const RequestKind = "process.Request"

// Request describes one external process execution. Requests are compared
// by content, so identical specs dedupe onto one node.
type Request struct {
	// Argv is the command and its arguments. Argv[0] is resolved via
	// PATH when not absolute.
	Argv []string `json:"argv"`

	// Env is the complete environment for the process. Nothing from the
	// engine's own environment leaks in.
	Env map[string]string `json:"env,omitempty"`

	// InputDigest is the tree materialized into the sandbox before the
	// process starts. Zero means an empty sandbox.
	InputDigest digest.Digest `json:"input_digest"`

	// OutputFiles and OutputDirs are sandbox-relative paths captured
	// into the result digest after the process exits.
	OutputFiles []string `json:"output_files,omitempty"`
	OutputDirs  []string `json:"output_dirs,omitempty"`

	// Description labels the execution in logs and errors.
	Description string `json:"description,omitempty"`

	// Uncacheable forces a fresh execution on every request instead of
	// memoizing by content.
	Uncacheable bool `json:"uncacheable,omitempty"`
}

// ParamKind implements rule.Param.
func (Request) ParamKind() string { return RequestKind }

// Fingerprint implements rule.Fingerprinter. An uncacheable request salts
// its identity with a fresh UUID, so it never collides with a memoized
// node.
func (r Request) Fingerprint() (digest.Digest, error) {
	if !r.Uncacheable {
		return digest.Fingerprint(RequestKind, r)
	}
	salted := struct {
		Request
		Salt string `json:"salt"`
	}{Request: r, Salt: uuid.NewString()}
	return digest.Fingerprint(RequestKind, salted)
}

var _ rule.Fingerprinter = Request{}

// Result is the outcome of a process execution. A non-zero exit code is
// data, not an engine error; rules decide what failure means for them.
type Result struct {
	ExitCode     int           `json:"exit_code"`
	Stdout       digest.Digest `json:"stdout"`
	Stderr       digest.Digest `json:"stderr"`
	OutputDigest digest.Digest `json:"output_digest"`
}
