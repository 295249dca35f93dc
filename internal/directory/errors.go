package directory

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a name did not resolve to a directory object.
var ErrNotFound = errors.New("directory object not found")

// DiscoveryError wraps a failure while reading from the directory
// (root resolution, OU enumeration, or a computer query).
type DiscoveryError struct {
	Op  string // "resolve-root", "list-ous", "query-computers", "find-computer"
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("directory discovery (%s): %v", e.Op, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ActionError wraps a failure while mutating a single directory object.
type ActionError struct {
	Op  string // "enable", "disable", "delete"
	DN  string
	Err error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("directory %s of %q: %v", e.Op, e.DN, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }
