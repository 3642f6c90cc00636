package timeline

import "errors"

// Domain errors for the timeline package.
var (
	// ErrUnresolvedReference is returned when a Ref targets an object that is
	// not part of the same generation.
	ErrUnresolvedReference = errors.New("timeline: unresolved reference")

	// ErrDuplicateID is returned when two objects share an id.
	ErrDuplicateID = errors.New("timeline: duplicate object id")

	// ErrUnknownHandle is returned when a Handle does not belong to the Graph.
	ErrUnknownHandle = errors.New("timeline: unknown handle")

	// ErrInvalidExpression is returned when a wire expression cannot be parsed.
	ErrInvalidExpression = errors.New("timeline: invalid expression")
)
