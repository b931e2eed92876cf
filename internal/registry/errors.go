package registry

import "errors"

var (
	// ErrAbsent is returned by WhereIs for a name with no binding. It is the
	// "absent" sentinel from the spec, not a failure.
	ErrAbsent = errors.New("registry: name not registered")

	// ErrNotOwner is returned by SetMeta when the name is bound to a
	// principal not local to this node. The spec's README/code mismatch on
	// this exact case is resolved in favor of a distinct rejection — see
	// SPEC_FULL.md §6.
	ErrNotOwner = errors.New("registry: name not owned by this node")
)
