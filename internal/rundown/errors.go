package rundown

import "errors"

// Domain errors shared by the generation pipeline.
var (
	// ErrStateCorruption means persisted playout state is missing a value the
	// generator cannot guess (previous part start, infinite executedAt).
	ErrStateCorruption = errors.New("rundown: state corruption")

	// ErrUnsupportedOperation means the generator was asked for something it
	// cannot express (unknown transition type, next group without duration).
	ErrUnsupportedOperation = errors.New("rundown: unsupported operation")

	// ErrInvalidPart is returned when an authored part fails validation.
	ErrInvalidPart = errors.New("rundown: invalid part")

	// ErrInvalidPiece is returned when an authored piece fails validation.
	ErrInvalidPiece = errors.New("rundown: invalid piece")
)
