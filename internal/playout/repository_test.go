package playout

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// setupTestDB creates an in-memory SQLite database with the playout schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	// Every pooled connection to :memory: would get its own empty database.
	db.SetMaxOpenConns(1)

	// Create the playout tables (matches migration)
	schema := `
		CREATE TABLE playlists (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			studio_id TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 0,
			rehearsal INTEGER NOT NULL DEFAULT 0,
			hold_state TEXT NOT NULL DEFAULT '',
			previous_part_instance_id TEXT,
			current_part_instance_id TEXT,
			next_part_instance_id TEXT,
			generation INTEGER NOT NULL DEFAULT 0,
			persistent_state TEXT,
			last_take_at INTEGER NOT NULL DEFAULT 0,
			block_take_until INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE parts (
			id TEXT NOT NULL,
			playlist_id TEXT NOT NULL,
			rank REAL NOT NULL DEFAULT 0,
			data TEXT NOT NULL,
			PRIMARY KEY (playlist_id, id)
		) STRICT;

		CREATE TABLE part_instances (
			id TEXT PRIMARY KEY,
			playlist_id TEXT NOT NULL,
			part_id TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE timelines (
			playlist_id TEXT PRIMARY KEY,
			generation INTEGER NOT NULL DEFAULT 0,
			generated_at INTEGER NOT NULL DEFAULT 0,
			data TEXT NOT NULL
		) STRICT;`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// ─── Playlists ──────────────────────────────────────────────────────────────

func TestSQLiteRepository_SavePlaylist(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	pl := &Playlist{
		ID:                    "pl-1",
		Name:                  "Evening News",
		StudioID:              "studio-1",
		Active:                true,
		Hold:                  rundown.HoldPending,
		CurrentPartInstanceID: "pi-1",
		Generation:            4,
		PersistentState:       json.RawMessage(`{"partsPlayed":2}`),
		LastTakeAt:            1_000,
		BlockTakeUntil:        1_500,
	}
	if err := repo.SavePlaylist(ctx, pl); err != nil {
		t.Fatalf("SavePlaylist: %v", err)
	}
	if pl.CreatedAt.IsZero() || pl.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got, err := repo.GetPlaylist(ctx, "pl-1")
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if got.Name != "Evening News" || got.StudioID != "studio-1" {
		t.Errorf("name/studio = %q/%q", got.Name, got.StudioID)
	}
	if !got.Active || got.Rehearsal {
		t.Errorf("active/rehearsal = %v/%v, want true/false", got.Active, got.Rehearsal)
	}
	if got.Hold != rundown.HoldPending {
		t.Errorf("Hold = %q, want %q", got.Hold, rundown.HoldPending)
	}
	if got.CurrentPartInstanceID != "pi-1" || got.NextPartInstanceID != "" {
		t.Errorf("instance ids = %q/%q", got.CurrentPartInstanceID, got.NextPartInstanceID)
	}
	if got.Generation != 4 || got.LastTakeAt != 1_000 || got.BlockTakeUntil != 1_500 {
		t.Errorf("generation/lastTake/block = %d/%d/%d", got.Generation, got.LastTakeAt, got.BlockTakeUntil)
	}
	if string(got.PersistentState) != `{"partsPlayed":2}` {
		t.Errorf("PersistentState = %s", got.PersistentState)
	}

	t.Run("upsert", func(t *testing.T) {
		pl.Active = false
		pl.CurrentPartInstanceID = ""
		pl.PersistentState = nil
		if err := repo.SavePlaylist(ctx, pl); err != nil {
			t.Fatalf("SavePlaylist: %v", err)
		}
		got, err := repo.GetPlaylist(ctx, "pl-1")
		if err != nil {
			t.Fatalf("GetPlaylist: %v", err)
		}
		if got.Active || got.CurrentPartInstanceID != "" || got.PersistentState != nil {
			t.Errorf("upsert not applied: %+v", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := repo.GetPlaylist(ctx, "missing"); !errors.Is(err, ErrPlaylistNotFound) {
			t.Errorf("error = %v, want ErrPlaylistNotFound", err)
		}
	})
}

func TestSQLiteRepository_ListPlaylists(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	for _, pl := range []*Playlist{
		{ID: "b", Name: "Weather"},
		{ID: "a", Name: "Breakfast"},
	} {
		if err := repo.SavePlaylist(ctx, pl); err != nil {
			t.Fatalf("SavePlaylist: %v", err)
		}
	}

	list, err := repo.ListPlaylists(ctx)
	if err != nil {
		t.Fatalf("ListPlaylists: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Breakfast" || list[1].Name != "Weather" {
		t.Errorf("ListPlaylists = %+v, want ordered by name", list)
	}
}

// ─── Parts ──────────────────────────────────────────────────────────────────

func TestSQLiteRepository_ReplaceParts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	first := []*rundown.Part{
		{ID: "p2", SegmentID: "s1", Rank: 2},
		{ID: "p1", SegmentID: "s1", Rank: 1, Pieces: []*rundown.Piece{{ID: "cam", Layer: "camera"}}},
	}
	if err := repo.ReplaceParts(ctx, "pl-1", first); err != nil {
		t.Fatalf("ReplaceParts: %v", err)
	}

	parts, err := repo.ListParts(ctx, "pl-1")
	if err != nil {
		t.Fatalf("ListParts: %v", err)
	}
	if len(parts) != 2 || parts[0].ID != "p1" || parts[1].ID != "p2" {
		t.Fatalf("ListParts order = %v, want [p1 p2]", partIDs(parts))
	}
	if len(parts[0].Pieces) != 1 || parts[0].Pieces[0].Layer != "camera" {
		t.Errorf("pieces not round-tripped: %+v", parts[0].Pieces)
	}

	if err := repo.ReplaceParts(ctx, "pl-1", []*rundown.Part{{ID: "p3", Rank: 0.5}}); err != nil {
		t.Fatalf("ReplaceParts second: %v", err)
	}
	parts, err = repo.ListParts(ctx, "pl-1")
	if err != nil {
		t.Fatalf("ListParts: %v", err)
	}
	if len(parts) != 1 || parts[0].ID != "p3" {
		t.Errorf("ListParts after replace = %v, want [p3]", partIDs(parts))
	}

	other, err := repo.ListParts(ctx, "pl-2")
	if err != nil {
		t.Fatalf("ListParts other: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other playlist has %d parts, want 0", len(other))
	}
}

func partIDs(parts []*rundown.Part) []string {
	ids := make([]string, len(parts))
	for i, p := range parts {
		ids[i] = p.ID
	}
	return ids
}

// ─── Part instances ─────────────────────────────────────────────────────────

func TestSQLiteRepository_PartInstances(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	cut := int64(2_000)
	pi := &rundown.PartInstance{
		ID:         "pi-1",
		PlaylistID: "pl-1",
		Part:       &rundown.Part{ID: "p1", Rank: 1},
		Timings:    rundown.PartTimings{Take: 1_000},
		PieceInstances: []*rundown.PieceInstance{{
			ID:             "pi-1_gfx",
			PartInstanceID: "pi-1",
			Piece:          &rundown.Piece{ID: "gfx", Layer: "graphics", Lifespan: rundown.LifespanStickyUntilRundownChange},
			Infinite:       &rundown.InfiniteInfo{InfiniteInstanceID: "pi-1_gfx", InfinitePieceID: "gfx"},
			ExecutedAt:     1_000,
			CutAt:          &cut,
		}},
	}
	if err := repo.SavePartInstance(ctx, pi); err != nil {
		t.Fatalf("SavePartInstance: %v", err)
	}

	got, err := repo.GetPartInstance(ctx, "pi-1")
	if err != nil {
		t.Fatalf("GetPartInstance: %v", err)
	}
	if got.Part.ID != "p1" || got.Timings.Take != 1_000 {
		t.Errorf("part/take = %s/%d", got.Part.ID, got.Timings.Take)
	}
	if len(got.PieceInstances) != 1 {
		t.Fatalf("piece instances = %d, want 1", len(got.PieceInstances))
	}
	p := got.PieceInstances[0]
	if p.Infinite == nil || p.Infinite.InfiniteInstanceID != "pi-1_gfx" || p.ExecutedAt != 1_000 {
		t.Errorf("infinite not round-tripped: %+v", p)
	}
	if p.CutAt == nil || *p.CutAt != 2_000 {
		t.Errorf("CutAt = %v, want 2000", p.CutAt)
	}

	pi.Timings.StartedPlayback = 1_040
	if err := repo.SavePartInstance(ctx, pi); err != nil {
		t.Fatalf("SavePartInstance update: %v", err)
	}
	got, err = repo.GetPartInstance(ctx, "pi-1")
	if err != nil {
		t.Fatalf("GetPartInstance: %v", err)
	}
	if got.Timings.StartedPlayback != 1_040 {
		t.Errorf("StartedPlayback = %d, want 1040", got.Timings.StartedPlayback)
	}

	if _, err := repo.GetPartInstance(ctx, "missing"); !errors.Is(err, ErrPartInstanceNotFound) {
		t.Errorf("error = %v, want ErrPartInstanceNotFound", err)
	}
}

// ─── Timelines ──────────────────────────────────────────────────────────────

func TestSQLiteRepository_Timeline(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	if _, err := repo.GetTimeline(ctx, "pl-1"); !errors.Is(err, ErrTimelineNotFound) {
		t.Fatalf("error = %v, want ErrTimelineNotFound", err)
	}

	tl := &timeline.Timeline{
		PlaylistID:  "pl-1",
		Generation:  1,
		GeneratedAt: 5_000,
		Groups: []*timeline.Object{{
			ID:       "part_group_pi-1",
			IsGroup:  true,
			Enable:   timeline.Enable{Start: timeline.Offset(4_000)},
			Metadata: timeline.Metadata{Kind: timeline.KindPartGroup, PartInstanceID: "pi-1"},
			Children: []*timeline.Object{{
				ID:      "part_group_pi-1_ctrl_cam",
				Layer:   "camera",
				InGroup: "part_group_pi-1",
				Enable:  timeline.Enable{Start: timeline.Offset(0)},
			}},
		}},
		AutoNext: &timeline.AutoNext{EpochTimeToTakeNext: 9_000},
	}
	if err := repo.SaveTimeline(ctx, tl); err != nil {
		t.Fatalf("SaveTimeline: %v", err)
	}

	tl.Generation = 2
	if err := repo.SaveTimeline(ctx, tl); err != nil {
		t.Fatalf("SaveTimeline second: %v", err)
	}

	got, err := repo.GetTimeline(ctx, "pl-1")
	if err != nil {
		t.Fatalf("GetTimeline: %v", err)
	}
	if got.Generation != 2 {
		t.Errorf("Generation = %d, want 2", got.Generation)
	}
	if got.AutoNext == nil || got.AutoNext.EpochTimeToTakeNext != 9_000 {
		t.Errorf("AutoNext = %+v", got.AutoNext)
	}
	obj := got.Find("part_group_pi-1_ctrl_cam")
	if obj == nil {
		t.Fatal("control object lost in round trip")
	}
	if timeline.String(obj.Enable.Start) != "0" {
		t.Errorf("control start = %q, want %q", timeline.String(obj.Enable.Start), "0")
	}
	if g := got.Find("part_group_pi-1"); g == nil || g.Metadata.PartInstanceID != "pi-1" {
		t.Errorf("group metadata lost: %+v", g)
	}
}
