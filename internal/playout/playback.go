package playout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// PlaybackReport is the MQTT payload devices send when objects start.
type PlaybackReport struct {
	PlaylistID string                 `json:"playlistId"`
	Objects    []PlaybackConfirmation `json:"objects"`
}

// OnPlaybackConfirmed records confirmed start times reported by devices.
//
// Object ids are mapped through the latest stored timeline: a part group
// confirms its part instance, a piece control object confirms its piece
// instance and the real start of an infinite beginning in that part. Only the
// first confirmation of each instance counts. It returns the number of
// instances updated.
func (e *Engine) OnPlaybackConfirmed(ctx context.Context, playlistID string, confirmations []PlaybackConfirmation) (int, error) {
	updated := 0
	err := e.withPlaylist(ctx, playlistID, PriorityPlayout, func(s *session) error {
		if !s.pl.Active {
			return ErrNotActive
		}
		tl, err := e.repo.GetTimeline(ctx, playlistID)
		if err != nil {
			return err
		}

		instances := make(map[string]*rundown.PartInstance, 3)
		for _, pi := range []*rundown.PartInstance{s.previous, s.current, s.next} {
			if pi != nil {
				instances[pi.ID] = pi
			}
		}

		dirty := make(map[string]*rundown.PartInstance)
		for _, c := range confirmations {
			obj := tl.Find(c.ObjectID)
			if obj == nil || c.Time <= 0 {
				e.logger.Debug("playback confirmation ignored", "playlist_id", playlistID, "object_id", c.ObjectID)
				continue
			}
			pi := instances[obj.Metadata.PartInstanceID]
			if pi == nil {
				continue
			}
			if confirm(pi, obj.Metadata, c.Time) {
				dirty[pi.ID] = pi
				updated++
			}
		}
		if len(dirty) == 0 {
			return nil
		}

		for _, pi := range dirty {
			s.stage(pi)
		}
		return e.regenerate(ctx, s)
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// confirm applies one confirmation to pi and reports whether it changed.
func confirm(pi *rundown.PartInstance, meta timeline.Metadata, at int64) bool {
	switch meta.Kind {
	case timeline.KindPartGroup:
		if pi.Timings.StartedPlayback > 0 {
			return false
		}
		pi.Timings.StartedPlayback = at
		return true

	case timeline.KindControl:
		for _, p := range pi.PieceInstances {
			if p.ID != meta.PieceInstanceID || p.StartedPlayback > 0 {
				continue
			}
			p.StartedPlayback = at
			if p.Infinite != nil && !p.Infinite.FromPreviousPart {
				p.ExecutedAt = at
			}
			return true
		}
	}
	return false
}

// HandlePlaybackMessage is an MQTT handler for playback reports.
func (e *Engine) HandlePlaybackMessage(topic string, payload []byte) error {
	var report PlaybackReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("decoding playback report on %s: %w", topic, err)
	}
	if report.PlaylistID == "" || len(report.Objects) == 0 {
		return nil
	}

	n, err := e.OnPlaybackConfirmed(context.Background(), report.PlaylistID, report.Objects)
	if err != nil {
		if errors.Is(err, ErrNotActive) || errors.Is(err, ErrTimelineNotFound) {
			e.logger.Debug("playback report for idle playlist", "playlist_id", report.PlaylistID)
			return nil
		}
		return err
	}
	e.logger.Debug("playback confirmed", "playlist_id", report.PlaylistID, "instances", n)
	return nil
}
