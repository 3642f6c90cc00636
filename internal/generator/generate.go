package generator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tv2/tv-automation-server-core-sub000/internal/blueprint"
	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// Output is a build after the blueprint hook ran.
type Output struct {
	*Result
	// PersistentState is the blueprint state to store for the next run.
	PersistentState json.RawMessage
}

// Generate builds the timeline, runs the blueprint hook once and checks that
// the hook kept every anchor and reference intact.
func Generate(ctx context.Context, snap *rundown.PlayoutSnapshot, bp blueprint.Blueprint, gc blueprint.GenerateContext, opts Options) (*Output, error) {
	res, err := Build(snap, opts)
	if err != nil {
		return nil, err
	}
	if bp == nil {
		return &Output{Result: res, PersistentState: snap.PersistentState}, nil
	}

	before := res.Timeline.Clone()
	tl, state, err := bp.OnTimelineGenerate(ctx, gc, snap.PersistentState, snap.Current, snap.Previous, res.Timeline)
	if err != nil {
		return nil, fmt.Errorf("blueprint onTimelineGenerate: %w", err)
	}
	if err := blueprint.GuardAnchors(before, tl); err != nil {
		return nil, err
	}
	if err := timeline.Validate(tl); err != nil {
		return nil, fmt.Errorf("blueprint output: %w", err)
	}
	res.Timeline = tl
	return &Output{Result: res, PersistentState: state}, nil
}
