package store

import (
	"errors"
	"fmt"

	"github.com/vk/rulegraph/internal/digest"
)

// ErrNotFound reports a digest unknown to the store.
var ErrNotFound = errors.New("digest not found in store")

// NotFoundError wraps ErrNotFound with the digest that was requested.
type NotFoundError struct {
	Digest digest.Digest
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("digest %s not found in store", e.Digest)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a merge where two trees define different content at
// the same path.
type ConflictError struct {
	Path string
	A, B digest.Digest
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge conflict at %q: %s vs %s", e.Path, e.A.Short(), e.B.Short())
}

// PathNotFoundError reports a prefix that does not exist in a tree.
type PathNotFoundError struct {
	Path string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("path %q not found in tree", e.Path)
}
