package blueprint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// End state and content keys used by Standard.
const (
	EndStateAudioLevels = "audioLevels"
	ContentAudioLevel   = "audioLevel"
)

// State is the persistent state Standard threads between generations.
type State struct {
	ActivePartInstanceID string `json:"activePartInstanceId,omitempty"`
	PartsPlayed          int    `json:"partsPlayed"`
}

// Standard carries audio levels across parts. A piece sets a level by putting
// ContentAudioLevel in its content; the level is kept on air in later parts
// that have no piece of their own on that layer.
type Standard struct {
	// AudioLayers are the layers whose levels are carried.
	AudioLayers []string
}

// OnTimelineGenerate adds one carry-over object per audio layer to the active
// part group and counts part changes in the persistent state.
func (s *Standard) OnTimelineGenerate(_ context.Context, gc GenerateContext, previousState json.RawMessage,
	active, _ *rundown.PartInstance, tl *timeline.Timeline) (*timeline.Timeline, json.RawMessage, error) {
	var st State
	if len(previousState) > 0 {
		if err := json.Unmarshal(previousState, &st); err != nil {
			return nil, nil, fmt.Errorf("decoding blueprint state: %w", err)
		}
	}
	if active == nil {
		out, err := json.Marshal(st)
		return tl, out, err
	}
	if st.ActivePartInstanceID != active.ID {
		st.ActivePartInstanceID = active.ID
		st.PartsPlayed++
	}

	group := tl.Find("part_group_" + active.ID)
	if group != nil {
		owned := make(map[string]bool)
		if active.Part != nil {
			for _, p := range active.Part.Pieces {
				if _, ok := audioLevel(p); ok {
					owned[p.Layer] = true
				}
			}
		}
		carried := levels(active.PreviousPartEndState)
		for _, layer := range s.AudioLayers {
			if owned[layer] {
				continue
			}
			level, ok := carried[layer]
			if !ok {
				level = gc.ShowStyle.DefaultAudioLevel
			}
			group.Children = append(group.Children, &timeline.Object{
				ID:       group.ID + "_audio_" + layer,
				Layer:    layer,
				Enable:   timeline.Enable{Start: timeline.Offset(0)},
				Content:  map[string]any{"type": "audio", "level": level},
				InGroup:  group.ID,
				Metadata: timeline.Metadata{Kind: timeline.KindDevice, PartInstanceID: active.ID},
			})
		}
	}

	out, err := json.Marshal(st)
	if err != nil {
		return nil, nil, err
	}
	return tl, out, nil
}

// GetEndStateForPart merges the levels set by the part's pieces over the
// levels it inherited.
func (s *Standard) GetEndStateForPart(part *rundown.Part, previous rundown.PartEndState,
	pieces []*rundown.PieceInstance, time int64, _ json.RawMessage) rundown.PartEndState {
	lv := levels(previous)
	sorted := make([]*rundown.PieceInstance, 0, len(pieces))
	for _, pi := range pieces {
		if pi != nil && pi.Piece != nil {
			sorted = append(sorted, pi)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Piece.Start < sorted[j].Piece.Start })
	for _, pi := range sorted {
		if l, ok := audioLevel(pi.Piece); ok {
			lv[pi.Piece.Layer] = l
		}
	}

	out := make(map[string]any, len(lv))
	for k, v := range lv {
		out[k] = v
	}
	state := rundown.PartEndState{EndStateAudioLevels: out, "endedAt": time}
	if part != nil {
		state["partId"] = part.ID
	}
	return state
}

func audioLevel(p *rundown.Piece) (float64, bool) {
	if p == nil || p.Content == nil {
		return 0, false
	}
	switch v := p.Content[ContentAudioLevel].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// levels reads audio levels from an end state. The state may have been
// through JSON, so values are accepted as any number type.
func levels(es rundown.PartEndState) map[string]float64 {
	out := make(map[string]float64)
	raw, ok := es[EndStateAudioLevels].(map[string]any)
	if !ok {
		return out
	}
	for layer, v := range raw {
		switch n := v.(type) {
		case float64:
			out[layer] = n
		case int:
			out[layer] = float64(n)
		case int64:
			out[layer] = float64(n)
		}
	}
	return out
}
