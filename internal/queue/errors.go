package queue

import "errors"

var (
	// ErrNotFound reports an unknown node ID.
	ErrNotFound = errors.New("node not found")
	// ErrInvalidSpec reports a transfer spec that cannot be appended.
	ErrInvalidSpec = errors.New("invalid transfer spec")
	// ErrInvalidTransition reports a command that is not valid for the node's kind or status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownProperty reports a property name that does not exist for the node kind.
	ErrUnknownProperty = errors.New("unknown property")
)
