package blueprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// ErrAnchorAltered is returned when a hook changes the enable of a root group
// the builder established.
var ErrAnchorAltered = errors.New("blueprint: anchor altered")

// ErrNilTimeline is returned when a hook drops the timeline.
var ErrNilTimeline = errors.New("blueprint: hook returned no timeline")

// Studio identifies the studio a playlist plays in.
type Studio struct {
	ID   string
	Name string
}

// ShowStyle identifies the show style of the playlist.
type ShowStyle struct {
	ID                string
	Name              string
	DefaultAudioLevel float64
}

// GenerateContext is passed to OnTimelineGenerate.
type GenerateContext struct {
	Studio     Studio
	ShowStyle  ShowStyle
	PlaylistID string
	Now        int64
}

// Blueprint is the per-show business logic the core delegates to.
type Blueprint interface {
	// OnTimelineGenerate post-processes a freshly built timeline. It may add
	// or remove objects but must leave root group anchors untouched. The
	// returned state is stored and handed back on the next call.
	OnTimelineGenerate(ctx context.Context, gc GenerateContext, previousState json.RawMessage,
		active, previous *rundown.PartInstance, tl *timeline.Timeline) (*timeline.Timeline, json.RawMessage, error)

	// GetEndStateForPart records what a part leaves behind for the next one.
	GetEndStateForPart(part *rundown.Part, previous rundown.PartEndState,
		pieces []*rundown.PieceInstance, time int64, state json.RawMessage) rundown.PartEndState
}

// Noop leaves the timeline and state unchanged.
type Noop struct{}

// OnTimelineGenerate implements Blueprint.
func (Noop) OnTimelineGenerate(_ context.Context, _ GenerateContext, previousState json.RawMessage,
	_, _ *rundown.PartInstance, tl *timeline.Timeline) (*timeline.Timeline, json.RawMessage, error) {
	return tl, previousState, nil
}

// GetEndStateForPart implements Blueprint.
func (Noop) GetEndStateForPart(*rundown.Part, rundown.PartEndState, []*rundown.PieceInstance, int64, json.RawMessage) rundown.PartEndState {
	return nil
}

// GuardAnchors fails when after changes the enable of a root group present in
// before, or changes the auto-next instant.
func GuardAnchors(before, after *timeline.Timeline) error {
	if after == nil {
		return ErrNilTimeline
	}
	roots := make(map[string]*timeline.Object, len(after.Groups))
	for _, g := range after.Groups {
		roots[g.ID] = g
	}
	for _, g := range before.Groups {
		other, ok := roots[g.ID]
		if !ok {
			continue
		}
		if !g.Enable.Equal(other.Enable) {
			return fmt.Errorf("%w: group %s", ErrAnchorAltered, g.ID)
		}
	}

	switch {
	case before.AutoNext == nil && after.AutoNext == nil:
	case before.AutoNext == nil || after.AutoNext == nil,
		before.AutoNext.EpochTimeToTakeNext != after.AutoNext.EpochTimeToTakeNext:
		return fmt.Errorf("%w: autoNext", ErrAnchorAltered)
	}
	return nil
}
