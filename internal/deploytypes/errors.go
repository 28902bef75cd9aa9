package deploytypes

import "errors"

var (
	// ErrDenied is returned when the actor is not on the allow-list.
	ErrDenied = errors.New("permission denied")
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAmbiguousRequest is returned for a rollback selector that cannot be
	// interpreted, such as a revision name without the revision keyword.
	ErrAmbiguousRequest = errors.New("ambiguous request")
	// ErrInvalidRequest is returned for a request that is not well-formed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMisconfigured is returned when a collaborator needed by the action is
	// not configured.
	ErrMisconfigured = errors.New("missing configuration")
)
