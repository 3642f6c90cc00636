package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tv2/tv-automation-server-core-sub000/internal/audit"
	"github.com/tv2/tv-automation-server-core-sub000/internal/playout"
	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
)

// maxQueryParamLen bounds ids taken from the URL.
const maxQueryParamLen = 100

// playlistResponse is a playlist plus its scheduled auto-next take.
type playlistResponse struct {
	*playout.Playlist
	AutoNextAt int64 `json:"auto_next_at,omitempty"`
}

type activateRequest struct {
	Rehearsal bool `json:"rehearsal"`
}

type setNextRequest struct {
	PartID string `json:"part_id"`
}

type stopLayersRequest struct {
	Layers []string `json:"layers"`
}

type playbackRequest struct {
	Objects []playout.PlaybackConfirmation `json:"objects"`
}

type ingestRequest struct {
	Name     string          `json:"name"`
	StudioID string          `json:"studio_id"`
	Parts    []*rundown.Part `json:"parts"`
}

// playlistID reads and validates the {id} URL parameter.
func playlistID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid playlist ID")
		return "", false
	}
	return id, true
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// writePlaylist responds with the current state of a playlist.
func (s *Server) writePlaylist(w http.ResponseWriter, r *http.Request, id string, status int) {
	pl, err := s.engine.Playlist(r.Context(), id)
	if err != nil {
		s.writePlayoutError(w, "get playlist", err)
		return
	}
	resp := playlistResponse{Playlist: pl}
	if at, ok := s.engine.PendingAutoNext(id); ok {
		resp.AutoNextAt = at
	}
	writeJSON(w, status, resp)
}

// ─── Inspection ─────────────────────────────────────────────────────────────

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	playlists, err := s.engine.Playlists(r.Context())
	if err != nil {
		s.writePlayoutError(w, "list playlists", err)
		return
	}
	if playlists == nil {
		playlists = []playout.Playlist{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"playlists": playlists,
		"count":     len(playlists),
	})
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	s.writePlaylist(w, r, id, http.StatusOK)
}

func (s *Server) handleListParts(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	parts, err := s.engine.Parts(r.Context(), id)
	if err != nil {
		s.writePlayoutError(w, "list parts", err)
		return
	}
	if parts == nil {
		parts = []*rundown.Part{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"parts": parts,
		"count": len(parts),
	})
}

// handleGetTimeline returns the latest generated timeline in its wire form.
func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	tl, err := s.engine.Timeline(r.Context(), id)
	if err != nil {
		s.writePlayoutError(w, "get timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

// ─── Ingest ─────────────────────────────────────────────────────────────────

// handleIngestParts replaces the full part list of a playlist, creating the
// playlist when it is new.
func (s *Server) handleIngestParts(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	studio := req.StudioID
	if studio == "" {
		studio = s.studioID
	}

	pl := playout.Playlist{ID: id, Name: req.Name, StudioID: studio}
	if err := s.engine.ApplyIngest(r.Context(), pl, req.Parts); err != nil {
		s.writePlayoutError(w, "ingest parts", err)
		return
	}
	s.auditLog(r, audit.ActionIngest, audit.EntityPlaylist, id, id, map[string]any{"parts": len(req.Parts)})
	s.writePlaylist(w, r, id, http.StatusOK)
}

// ─── Operator actions ───────────────────────────────────────────────────────

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	var req activateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.Activate(r.Context(), id, req.Rehearsal); err != nil {
		s.writePlayoutError(w, "activate playlist", err)
		return
	}
	s.auditLog(r, audit.ActionActivate, audit.EntityPlaylist, id, id, map[string]any{"rehearsal": req.Rehearsal})
	s.writePlaylist(w, r, id, http.StatusOK)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Deactivate(r.Context(), id); err != nil {
		s.writePlayoutError(w, "deactivate playlist", err)
		return
	}
	s.auditLog(r, audit.ActionDeactivate, audit.EntityPlaylist, id, id, nil)
	s.writePlaylist(w, r, id, http.StatusOK)
}

func (s *Server) handleSetNext(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	var req setNextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.PartID == "" || len(req.PartID) > maxQueryParamLen {
		writeBadRequest(w, "part_id is required")
		return
	}
	if err := s.engine.SetNext(r.Context(), id, req.PartID); err != nil {
		s.writePlayoutError(w, "set next part", err)
		return
	}
	s.auditLog(r, audit.ActionSetNext, audit.EntityPart, req.PartID, id, nil)
	s.writePlaylist(w, r, id, http.StatusOK)
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Take(r.Context(), id); err != nil {
		s.writePlayoutError(w, "take", err)
		return
	}
	s.auditLog(r, audit.ActionTake, audit.EntityPlaylist, id, id, nil)
	s.writePlaylist(w, r, id, http.StatusOK)
}

func (s *Server) handleToggleHold(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	if err := s.engine.ToggleHold(r.Context(), id); err != nil {
		s.writePlayoutError(w, "toggle hold", err)
		return
	}
	s.auditLog(r, audit.ActionHold, audit.EntityPlaylist, id, id, nil)
	s.writePlaylist(w, r, id, http.StatusOK)
}

// handleInsertAdLib starts an ad-lib piece in the part on air.
func (s *Server) handleInsertAdLib(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	var piece rundown.Piece
	if err := json.NewDecoder(r.Body).Decode(&piece); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	inst, err := s.engine.InsertAdLib(r.Context(), id, &piece)
	if err != nil {
		s.writePlayoutError(w, "insert adlib", err)
		return
	}
	s.auditLog(r, audit.ActionAdLib, audit.EntityPiece, inst.Piece.ID, id, map[string]any{
		"layer": inst.Piece.Layer,
		"name":  inst.Piece.Name,
	})
	writeJSON(w, http.StatusCreated, inst)
}

func (s *Server) handleStopLayers(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	var req stopLayersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Layers) == 0 {
		writeBadRequest(w, "at least one layer is required")
		return
	}
	stopped, err := s.engine.StopPiecesOnLayers(r.Context(), id, req.Layers)
	if err != nil {
		s.writePlayoutError(w, "stop layers", err)
		return
	}
	s.auditLog(r, audit.ActionStop, audit.EntityPlaylist, id, id, map[string]any{
		"layers":  req.Layers,
		"stopped": stopped,
	})
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

// handlePlayback accepts playback confirmations from devices that report
// over HTTP instead of MQTT.
func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	updated, err := s.engine.OnPlaybackConfirmed(r.Context(), id, req.Objects)
	if err != nil {
		s.writePlayoutError(w, "confirm playback", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := playlistID(w, r)
	if !ok {
		return
	}
	if err := s.engine.Regenerate(r.Context(), id); err != nil {
		s.writePlayoutError(w, "regenerate timeline", err)
		return
	}
	tl, err := s.engine.Timeline(r.Context(), id)
	if err != nil {
		s.writePlayoutError(w, "get timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, tl)
}
