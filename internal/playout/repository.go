package playout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// Repository defines the interface for playout persistence.
type Repository interface {
	// Playlists
	GetPlaylist(ctx context.Context, id string) (*Playlist, error)
	ListPlaylists(ctx context.Context) ([]Playlist, error)
	SavePlaylist(ctx context.Context, pl *Playlist) error

	// Parts, in rank order
	ListParts(ctx context.Context, playlistID string) ([]*rundown.Part, error)
	ReplaceParts(ctx context.Context, playlistID string, parts []*rundown.Part) error

	// Part instances
	GetPartInstance(ctx context.Context, id string) (*rundown.PartInstance, error)
	SavePartInstance(ctx context.Context, pi *rundown.PartInstance) error

	// Latest published timeline per playlist
	SaveTimeline(ctx context.Context, tl *timeline.Timeline) error
	GetTimeline(ctx context.Context, playlistID string) (*timeline.Timeline, error)
}

// playlistColumns is the SELECT column list for playlist queries.
const playlistColumns = `id, name, studio_id, active, rehearsal, hold_state,
			previous_part_instance_id, current_part_instance_id, next_part_instance_id,
			generation, persistent_state, last_take_at, block_take_until, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetPlaylist retrieves a playlist by id.
func (r *SQLiteRepository) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = ?`

	pl, err := scanPlaylist(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlaylistNotFound
		}
		return nil, fmt.Errorf("querying playlist: %w", err)
	}
	return pl, nil
}

// ListPlaylists retrieves all playlists ordered by name.
func (r *SQLiteRepository) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying playlists: %w", err)
	}
	defer rows.Close()

	var out []Playlist
	for rows.Next() {
		pl, scanErr := scanPlaylist(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning playlist: %w", scanErr)
		}
		out = append(out, *pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating playlists: %w", err)
	}
	return out, nil
}

// SavePlaylist inserts or updates a playlist.
func (r *SQLiteRepository) SavePlaylist(ctx context.Context, pl *Playlist) error {
	now := time.Now().UTC()
	if pl.CreatedAt.IsZero() {
		pl.CreatedAt = now
	}
	pl.UpdatedAt = now

	query := `
		INSERT INTO playlists (
			id, name, studio_id, active, rehearsal, hold_state,
			previous_part_instance_id, current_part_instance_id, next_part_instance_id,
			generation, persistent_state, last_take_at, block_take_until, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			studio_id = excluded.studio_id,
			active = excluded.active,
			rehearsal = excluded.rehearsal,
			hold_state = excluded.hold_state,
			previous_part_instance_id = excluded.previous_part_instance_id,
			current_part_instance_id = excluded.current_part_instance_id,
			next_part_instance_id = excluded.next_part_instance_id,
			generation = excluded.generation,
			persistent_state = excluded.persistent_state,
			last_take_at = excluded.last_take_at,
			block_take_until = excluded.block_take_until,
			updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		pl.ID,
		pl.Name,
		pl.StudioID,
		boolToInt(pl.Active),
		boolToInt(pl.Rehearsal),
		string(pl.Hold),
		nullableString(pl.PreviousPartInstanceID),
		nullableString(pl.CurrentPartInstanceID),
		nullableString(pl.NextPartInstanceID),
		pl.Generation,
		nullableJSON(pl.PersistentState),
		pl.LastTakeAt,
		pl.BlockTakeUntil,
		pl.CreatedAt.Format(time.RFC3339),
		pl.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving playlist: %w", err)
	}
	return nil
}

// ListParts retrieves the parts of a playlist in rank order.
func (r *SQLiteRepository) ListParts(ctx context.Context, playlistID string) ([]*rundown.Part, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT data FROM parts WHERE playlist_id = ? ORDER BY rank, id`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("querying parts: %w", err)
	}
	defer rows.Close()

	var out []*rundown.Part
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning part: %w", err)
		}
		var p rundown.Part
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("unmarshalling part: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating parts: %w", err)
	}
	return out, nil
}

// ReplaceParts swaps the full part list of a playlist in one transaction.
func (r *SQLiteRepository) ReplaceParts(ctx context.Context, playlistID string, parts []*rundown.Part) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM parts WHERE playlist_id = ?`, playlistID); err != nil {
		return fmt.Errorf("clearing parts: %w", err)
	}
	for _, p := range parts {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshalling part %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO parts (id, playlist_id, rank, data) VALUES (?, ?, ?, ?)`,
			p.ID, playlistID, p.Rank, string(data)); err != nil {
			return fmt.Errorf("inserting part %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing parts: %w", err)
	}
	return nil
}

// GetPartInstance retrieves a part instance by id.
func (r *SQLiteRepository) GetPartInstance(ctx context.Context, id string) (*rundown.PartInstance, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM part_instances WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPartInstanceNotFound
		}
		return nil, fmt.Errorf("querying part instance: %w", err)
	}
	var pi rundown.PartInstance
	if err := json.Unmarshal([]byte(data), &pi); err != nil {
		return nil, fmt.Errorf("unmarshalling part instance: %w", err)
	}
	return &pi, nil
}

// SavePartInstance inserts or updates a part instance.
func (r *SQLiteRepository) SavePartInstance(ctx context.Context, pi *rundown.PartInstance) error {
	data, err := json.Marshal(pi)
	if err != nil {
		return fmt.Errorf("marshalling part instance: %w", err)
	}
	partID := ""
	if pi.Part != nil {
		partID = pi.Part.ID
	}

	query := `
		INSERT INTO part_instances (id, playlist_id, part_id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query,
		pi.ID, pi.PlaylistID, partID, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("saving part instance: %w", err)
	}
	return nil
}

// SaveTimeline stores tl as the latest timeline of its playlist.
func (r *SQLiteRepository) SaveTimeline(ctx context.Context, tl *timeline.Timeline) error {
	data, err := json.Marshal(tl)
	if err != nil {
		return fmt.Errorf("marshalling timeline: %w", err)
	}

	query := `
		INSERT INTO timelines (playlist_id, generation, generated_at, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(playlist_id) DO UPDATE SET
			generation = excluded.generation,
			generated_at = excluded.generated_at,
			data = excluded.data`

	if _, err := r.db.ExecContext(ctx, query, tl.PlaylistID, tl.Generation, tl.GeneratedAt, string(data)); err != nil {
		return fmt.Errorf("saving timeline: %w", err)
	}
	return nil
}

// GetTimeline retrieves the latest timeline of a playlist.
func (r *SQLiteRepository) GetTimeline(ctx context.Context, playlistID string) (*timeline.Timeline, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT data FROM timelines WHERE playlist_id = ?`, playlistID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTimelineNotFound
		}
		return nil, fmt.Errorf("querying timeline: %w", err)
	}
	var tl timeline.Timeline
	if err := json.Unmarshal([]byte(data), &tl); err != nil {
		return nil, fmt.Errorf("unmarshalling timeline: %w", err)
	}
	return &tl, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPlaylist(s scanner) (*Playlist, error) {
	var (
		pl                    Playlist
		active, rehearsal     int
		hold                  string
		prevID, curID, nextID sql.NullString
		state                 sql.NullString
		createdAt, updatedAt  string
	)
	err := s.Scan(
		&pl.ID, &pl.Name, &pl.StudioID, &active, &rehearsal, &hold,
		&prevID, &curID, &nextID,
		&pl.Generation, &state, &pl.LastTakeAt, &pl.BlockTakeUntil, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	pl.Active = active != 0
	pl.Rehearsal = rehearsal != 0
	pl.Hold = rundown.HoldState(hold)
	pl.PreviousPartInstanceID = prevID.String
	pl.CurrentPartInstanceID = curID.String
	pl.NextPartInstanceID = nextID.String
	if state.Valid && state.String != "" {
		pl.PersistentState = json.RawMessage(state.String)
	}
	pl.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // stored by SavePlaylist
	pl.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // stored by SavePlaylist
	return &pl, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
