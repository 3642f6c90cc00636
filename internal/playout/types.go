package playout

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
)

// Playlist is the playout state of one rundown playlist.
type Playlist struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	StudioID  string            `json:"studio_id"`
	Active    bool              `json:"active"`
	Rehearsal bool              `json:"rehearsal"`
	Hold      rundown.HoldState `json:"hold_state"`

	PreviousPartInstanceID string `json:"previous_part_instance_id,omitempty"`
	CurrentPartInstanceID  string `json:"current_part_instance_id,omitempty"`
	NextPartInstanceID     string `json:"next_part_instance_id,omitempty"`

	// Generation counts published timelines.
	Generation int64 `json:"generation"`
	// PersistentState is owned by the blueprint.
	PersistentState json.RawMessage `json:"persistent_state,omitempty"`

	LastTakeAt     int64 `json:"last_take_at,omitempty"`
	BlockTakeUntil int64 `json:"block_take_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlaybackConfirmation is a device report that an object started.
type PlaybackConfirmation struct {
	ObjectID string `json:"objectId"`
	Time     int64  `json:"time"`
}

// GenerateID creates a new unique id.
func GenerateID() string {
	return uuid.NewString()
}
