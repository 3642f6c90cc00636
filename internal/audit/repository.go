// Package audit records operator playout actions (activate, take, next,
// hold, adlib, stop, ingest) in the audit_logs table and lists them back.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is an operator action on a playlist.
type Action string

const (
	ActionIngest     Action = "ingest"
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
	ActionSetNext    Action = "set_next"
	ActionTake       Action = "take"
	ActionHold       Action = "hold"
	ActionAdLib      Action = "adlib"
	ActionStop       Action = "stop"
)

var actions = map[Action]struct{}{
	ActionIngest: {}, ActionActivate: {}, ActionDeactivate: {}, ActionSetNext: {},
	ActionTake: {}, ActionHold: {}, ActionAdLib: {}, ActionStop: {},
}

// Entity types an action applies to.
const (
	EntityPlaylist = "playlist"
	EntityPart     = "part"
	EntityPiece    = "piece"
)

// ErrUnknownAction is returned by Create for an action outside the list above.
var ErrUnknownAction = errors.New("audit: unknown action")

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// AuditLog is one recorded operator action.
type AuditLog struct { //nolint:revive // audit.AuditLog reads better than audit.Log at call sites
	ID         string         `json:"id"`
	Action     Action         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	PlaylistID string         `json:"playlist_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects audit logs. Zero fields match everything.
type Filter struct {
	Action     Action
	EntityType string
	EntityID   string
	PlaylistID string
	// Since keeps entries at or after the instant, e.g. the start of a show.
	Since  time.Time
	Limit  int
	Offset int
}

func (f *Filter) clamp() {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// where renders the filter as a parameterised WHERE clause.
func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	eq := func(col, val string) {
		if val != "" {
			conds = append(conds, col+" = ?")
			args = append(args, val)
		}
	}
	eq("action", string(f.Action))
	eq("entity_type", f.EntityType)
	eq("entity_id", f.EntityID)
	eq("playlist_id", f.PlaylistID)
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// ListResult is one page of audit logs.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository stores and lists audit logs.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts log, filling in ID and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if _, ok := actions[log.Action]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, log.Action)
	}
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()[:8]
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, playlist_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, string(log.Action), log.EntityType,
		sql.NullString{String: log.EntityID, Valid: log.EntityID != ""},
		sql.NullString{String: log.PlaylistID, Valid: log.PlaylistID != ""},
		log.Source, details,
		log.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns the page of logs matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter.clamp()
	where, args := filter.where()

	res := &ListResult{Logs: []AuditLog{}, Limit: filter.Limit, Offset: filter.Offset}

	//nolint:gosec // where only holds ? placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	//nolint:gosec // where only holds ? placeholders
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, action, entity_type, entity_id, playlist_id, source, details, created_at FROM audit_logs "+
			where+" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		res.Logs = append(res.Logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}
	return res, nil
}

func scanLog(rows *sql.Rows) (AuditLog, error) {
	var (
		log                           AuditLog
		action, createdAt             string
		entityID, playlistID, details sql.NullString
	)
	if err := rows.Scan(&log.ID, &action, &log.EntityType,
		&entityID, &playlistID, &log.Source, &details, &createdAt); err != nil {
		return log, fmt.Errorf("scanning audit log: %w", err)
	}
	log.Action = Action(action)
	log.EntityID = entityID.String
	log.PlaylistID = playlistID.String

	// Malformed details are dropped rather than failing the page.
	if details.Valid && details.String != "" {
		_ = json.Unmarshal([]byte(details.String), &log.Details) //nolint:errcheck // see above
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return log, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	log.CreatedAt = t
	return log, nil
}
