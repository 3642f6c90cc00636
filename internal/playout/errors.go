package playout

import "errors"

// Domain errors for the playout package.
var (
	// ErrPlaylistNotFound is returned when a playlist does not exist.
	ErrPlaylistNotFound = errors.New("playout: playlist not found")

	// ErrPartNotFound is returned when a part id is not in the playlist.
	ErrPartNotFound = errors.New("playout: part not found")

	// ErrPartInstanceNotFound is returned when a part instance does not exist.
	ErrPartInstanceNotFound = errors.New("playout: part instance not found")

	// ErrTimelineNotFound is returned before the first generation is stored.
	ErrTimelineNotFound = errors.New("playout: timeline not found")

	// ErrNotActive is returned for playout operations on an inactive playlist.
	ErrNotActive = errors.New("playout: playlist not active")

	// ErrNoCurrentPart is returned when an operation needs an on-air part.
	ErrNoCurrentPart = errors.New("playout: no part on air")

	// ErrNoNextPart is returned by Take when no part is set as next.
	ErrNoNextPart = errors.New("playout: no next part")

	// ErrPieceExists is returned when an ad-lib would reuse a piece instance id
	// of the part on air.
	ErrPieceExists = errors.New("playout: piece already on air")

	// ErrTakeBlocked is returned while a take is not allowed yet.
	ErrTakeBlocked = errors.New("playout: take blocked")

	// ErrHoldNotAllowed is returned when a hold cannot be toggled.
	ErrHoldNotAllowed = errors.New("playout: hold not allowed")

	// ErrEngineClosed is returned after Close.
	ErrEngineClosed = errors.New("playout: engine closed")
)
