package erpcache

import (
	"errors"
	"fmt"
)

// The four failure kinds of this package. None of them crosses the Resolver
// or Mutator API boundary: reads absorb them into empty results, writes into
// CreateResult.Success=false, and all of them are logged. They exist as
// distinct types so logs and tests can tell them apart.

// ErrNoBackend reports that no BackendClient was wired in.
var ErrNoBackend = errors.New("erpcache: no backend client configured")

// BackendError wraps a failed remote call.
type BackendError struct {
	Class string
	Op    string // "list" or "create"
	Err   error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s %s failed: %v", e.Class, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// CacheError wraps a failed store operation. The read path treats it as
// "not cached"; it never surfaces to callers.
type CacheError struct {
	Op  string // "get", "set" or "delete"
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ValidationError reports a missing required field on Create.
type ValidationError struct {
	Class string
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing required field %q", e.Class, e.Field)
}
