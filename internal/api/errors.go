package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tv2/tv-automation-server-core-sub000/internal/blueprint"
	"github.com/tv2/tv-automation-server-core-sub000/internal/playout"
	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeTakeBlocked = "take_blocked"
	ErrCodeGeneration  = "generation_failed"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writePlayoutError maps engine errors to HTTP responses.
//
// Generation failures (corrupt state, unsupported timing, broken references,
// a blueprint moving an anchor) are 422: the request was valid but the
// resulting timeline was not published and the previous one stays on air.
func (s *Server) writePlayoutError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, playout.ErrPlaylistNotFound):
		writeNotFound(w, "playlist not found")
	case errors.Is(err, playout.ErrPartNotFound):
		writeNotFound(w, "part not found")
	case errors.Is(err, playout.ErrTimelineNotFound):
		writeNotFound(w, "no timeline generated yet")
	case errors.Is(err, playout.ErrTakeBlocked):
		writeError(w, http.StatusConflict, ErrCodeTakeBlocked, err.Error())
	case errors.Is(err, playout.ErrNotActive),
		errors.Is(err, playout.ErrNoCurrentPart),
		errors.Is(err, playout.ErrNoNextPart),
		errors.Is(err, playout.ErrHoldNotAllowed),
		errors.Is(err, playout.ErrPieceExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, rundown.ErrInvalidPart),
		errors.Is(err, rundown.ErrInvalidPiece):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, rundown.ErrStateCorruption),
		errors.Is(err, rundown.ErrUnsupportedOperation),
		errors.Is(err, timeline.ErrUnresolvedReference),
		errors.Is(err, timeline.ErrDuplicateID),
		errors.Is(err, blueprint.ErrAnchorAltered),
		errors.Is(err, blueprint.ErrNilTimeline):
		s.logger.Error("timeline generation failed", "op", op, "error", err)
		writeError(w, http.StatusUnprocessableEntity, ErrCodeGeneration, err.Error())
	case errors.Is(err, playout.ErrEngineClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "playout engine is shutting down")
	default:
		s.logger.Error("playout operation failed", "op", op, "error", err)
		writeInternalError(w, "failed to "+op)
	}
}
