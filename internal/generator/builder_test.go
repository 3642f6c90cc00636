package generator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/tv2/tv-automation-server-core-sub000/internal/blueprint"
	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// ─── Fixtures ───────────────────────────────────────────────────

const (
	takeAt = int64(10_000)
	nowAt  = int64(10_500)
)

func newPart(id string, pieces ...*rundown.Piece) *rundown.Part {
	return &rundown.Part{ID: id, RundownID: "rd", SegmentID: "seg", Pieces: pieces}
}

func taken(id string, p *rundown.Part, at int64) *rundown.PartInstance {
	return &rundown.PartInstance{ID: id, Part: p, Timings: rundown.PartTimings{Take: at}}
}

func snapshot(cur *rundown.PartInstance) *rundown.PlayoutSnapshot {
	snap := &rundown.PlayoutSnapshot{PlaylistID: "pl", Now: nowAt, Current: cur}
	if cur != nil {
		snap.Parts = []*rundown.Part{cur.Part}
	}
	return snap
}

func mustBuild(t *testing.T, snap *rundown.PlayoutSnapshot) *Result {
	t.Helper()
	res, err := Build(snap, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return res
}

func mustFind(t *testing.T, tl *timeline.Timeline, id string) *timeline.Object {
	t.Helper()
	o := tl.Find(id)
	if o == nil {
		t.Fatalf("object %q not found", id)
	}
	return o
}

func wire(t timeline.Time) string { return timeline.String(t) }

func countKind(tl *timeline.Timeline, kind string) int {
	n := 0
	for _, g := range tl.Groups {
		g.Walk(func(o *timeline.Object) {
			if o.Metadata.Kind == kind {
				n++
			}
		})
	}
	return n
}

// ─── Groups ─────────────────────────────────────────────────────

func TestBuildBaselineOnly(t *testing.T) {
	snap := snapshot(nil)
	snap.Baseline = []*timeline.Object{{ID: "studio_default", Layer: "mixer"}}

	res := mustBuild(t, snap)
	tl := res.Timeline
	if len(tl.Groups) != 1 || tl.Groups[0].ID != BaselineGroupID {
		t.Fatalf("groups = %+v, want baseline only", tl.Groups)
	}
	if wire(tl.Groups[0].Enable.While) != "1" {
		t.Errorf("baseline while = %q, want 1", wire(tl.Groups[0].Enable.While))
	}
	obj := mustFind(t, tl, "studio_default")
	if obj.InGroup != BaselineGroupID {
		t.Errorf("InGroup = %q", obj.InGroup)
	}
	if snap.Baseline[0].InGroup != "" {
		t.Error("baseline template mutated")
	}
	if tl.AutoNext != nil {
		t.Error("AutoNext set without a current part")
	}
}

func TestBuildActiveGroupAnchor(t *testing.T) {
	cur := taken("cur", newPart("p1", &rundown.Piece{ID: "cam", Layer: "camera"}), takeAt)

	res := mustBuild(t, snapshot(cur))
	g := mustFind(t, res.Timeline, "part_group_cur")
	if wire(g.Enable.Start) != "10000" {
		t.Errorf("start = %q, want take time", wire(g.Enable.Start))
	}
	if g.Enable.Duration != nil {
		t.Errorf("duration = %q, want open group", wire(g.Enable.Duration))
	}

	cur.Timings.StartedPlayback = 10_040
	res = mustBuild(t, snapshot(cur))
	g = mustFind(t, res.Timeline, "part_group_cur")
	if wire(g.Enable.Start) != "10040" {
		t.Errorf("start = %q, want confirmed playback", wire(g.Enable.Start))
	}

	cur.Timings = rundown.PartTimings{}
	res = mustBuild(t, snapshot(cur))
	g = mustFind(t, res.Timeline, "part_group_cur")
	if _, ok := g.Enable.Start.(timeline.Now); !ok {
		t.Errorf("start = %q, want now", wire(g.Enable.Start))
	}
}

func TestBuildPreviousGroupPresence(t *testing.T) {
	prevPart := newPart("p0", &rundown.Piece{ID: "cam", Layer: "camera"})
	curPart := newPart("p1", &rundown.Piece{ID: "vt", Layer: "video"})

	t.Run("absent without previous", func(t *testing.T) {
		res := mustBuild(t, snapshot(taken("cur", curPart, takeAt)))
		if countKind(res.Timeline, timeline.KindPartGroup) != 1 {
			t.Error("unexpected part groups")
		}
	})

	t.Run("present with previous", func(t *testing.T) {
		snap := snapshot(taken("cur", curPart, takeAt))
		snap.Previous = taken("prev", prevPart, 5_000)
		snap.Parts = []*rundown.Part{prevPart, curPart}

		res := mustBuild(t, snap)
		g := mustFind(t, res.Timeline, "part_group_prev")
		if wire(g.Enable.Start) != "5000" {
			t.Errorf("start = %q", wire(g.Enable.Start))
		}
		if wire(g.Enable.End) != "#part_group_cur.start" {
			t.Errorf("end = %q", wire(g.Enable.End))
		}
		mustFind(t, res.Timeline, "part_group_prev_ctrl_prev_cam")
		if res.Timeline.Groups[1].ID != "part_group_prev" || res.Timeline.Groups[2].ID != "part_group_cur" {
			t.Errorf("group order = %s, %s", res.Timeline.Groups[1].ID, res.Timeline.Groups[2].ID)
		}
	})

	t.Run("previous without start", func(t *testing.T) {
		snap := snapshot(taken("cur", curPart, takeAt))
		snap.Previous = taken("prev", prevPart, 0)
		if _, err := Build(snap, Options{}); !errors.Is(err, rundown.ErrStateCorruption) {
			t.Errorf("error = %v, want ErrStateCorruption", err)
		}
	})

	t.Run("previous without current", func(t *testing.T) {
		snap := snapshot(nil)
		snap.Previous = taken("prev", prevPart, 5_000)
		if _, err := Build(snap, Options{}); !errors.Is(err, rundown.ErrStateCorruption) {
			t.Errorf("error = %v, want ErrStateCorruption", err)
		}
	})
}

// ─── Piece controls ─────────────────────────────────────────────

func TestBuildNoTransitionOpenDuration(t *testing.T) {
	cur := taken("cur", newPart("p1", &rundown.Piece{ID: "cam", Layer: "camera", Start: 200}), takeAt)
	res := mustBuild(t, snapshot(cur))

	ctrl := mustFind(t, res.Timeline, "part_group_cur_ctrl_cur_cam")
	if wire(ctrl.Enable.Start) != "200" {
		t.Errorf("start = %q, want 200", wire(ctrl.Enable.Start))
	}
	if wire(ctrl.Enable.Duration) != "0" {
		t.Errorf("duration = %q, want 0", wire(ctrl.Enable.Duration))
	}
}

func TestBuildNoTransitionPostRoll(t *testing.T) {
	cur := taken("cur", newPart("p1", &rundown.Piece{ID: "vt", Layer: "video", PostRollDuration: 20}), takeAt)
	res := mustBuild(t, snapshot(cur))

	ctrl := mustFind(t, res.Timeline, "part_group_cur_ctrl_cur_vt")
	if wire(ctrl.Enable.End) != "#part_group_cur.end - 20" {
		t.Errorf("end = %q", wire(ctrl.Enable.End))
	}
	grp := mustFind(t, res.Timeline, "part_group_cur_grp_cur_vt")
	if wire(grp.Enable.End) != "#part_group_cur_ctrl_cur_vt.end - 20" {
		t.Errorf("content end = %q", wire(grp.Enable.End))
	}
}

func TestBuildExplicitDuration(t *testing.T) {
	cur := taken("cur", newPart("p1", &rundown.Piece{ID: "gfx", Layer: "gfx", Start: 100, Duration: 4000, PostRollDuration: 20}), takeAt)
	res := mustBuild(t, snapshot(cur))

	ctrl := mustFind(t, res.Timeline, "part_group_cur_ctrl_cur_gfx")
	if wire(ctrl.Enable.Duration) != "4000" || ctrl.Enable.End != nil {
		t.Errorf("enable = duration %q end %q", wire(ctrl.Enable.Duration), wire(ctrl.Enable.End))
	}
}

func TestBuildInTransition(t *testing.T) {
	prevPart := newPart("p0", &rundown.Piece{ID: "cam", Layer: "camera"})
	curPart := newPart("p1",
		&rundown.Piece{ID: "wipe", Layer: "transition", Start: 10, Duration: 500, TransitionType: rundown.TransitionIn},
		&rundown.Piece{ID: "vt", Layer: "video", Start: 0},
	)
	curPart.InTransition = &rundown.InTransition{LeadDuration: 20, PartContentDelayDuration: 40}

	t.Run("after previous", func(t *testing.T) {
		snap := snapshot(taken("cur", curPart, takeAt))
		snap.Previous = taken("prev", prevPart, 5_000)
		snap.Parts = []*rundown.Part{prevPart, curPart}
		res := mustBuild(t, snap)

		ctrl := mustFind(t, res.Timeline, "part_group_cur_ctrl_cur_wipe")
		if wire(ctrl.Enable.Start) != "30" {
			t.Errorf("start = %q, want 30", wire(ctrl.Enable.Start))
		}
		if wire(ctrl.Enable.Duration) != "500" {
			t.Errorf("duration = %q, want 500", wire(ctrl.Enable.Duration))
		}
		vt := mustFind(t, res.Timeline, "part_group_cur_ctrl_cur_vt")
		if wire(vt.Enable.Start) != "40" {
			t.Errorf("content start = %q, want delayed to 40", wire(vt.Enable.Start))
		}
	})

	t.Run("dropped without previous", func(t *testing.T) {
		res := mustBuild(t, snapshot(taken("cur", curPart, takeAt)))
		if res.Timeline.Find("part_group_cur_ctrl_cur_wipe") != nil {
			t.Error("in-transition piece emitted without a transition")
		}
	})

	t.Run("dropped in hold", func(t *testing.T) {
		snap := snapshot(taken("cur", curPart, takeAt))
		snap.Previous = taken("prev", prevPart, 5_000)
		snap.Hold = rundown.HoldActive
		res := mustBuild(t, snap)
		if res.Timeline.Find("part_group_cur_ctrl_cur_wipe") != nil {
			t.Error("in-transition piece emitted during hold")
		}
	})
}

func TestBuildOutTransition(t *testing.T) {
	prevPart := newPart("p0",
		&rundown.Piece{ID: "out", Layer: "transition", TransitionType: rundown.TransitionOut},
		&rundown.Piece{ID: "vt", Layer: "video", PostRollDuration: 20},
	)
	prevPart.OutTransition = &rundown.OutTransition{KeepaliveDuration: 30}
	curPart := newPart("p1", &rundown.Piece{ID: "cam", Layer: "camera"})

	snap := snapshot(taken("cur", curPart, takeAt))
	snap.Previous = taken("prev", prevPart, 5_000)
	snap.Parts = []*rundown.Part{prevPart, curPart}
	res := mustBuild(t, snap)

	ctrl := mustFind(t, res.Timeline, "part_group_prev_ctrl_prev_out")
	if wire(ctrl.Enable.Start) != "#part_group_prev.end - 30 - 20" {
		t.Errorf("start = %q", wire(ctrl.Enable.Start))
	}
	prev := mustFind(t, res.Timeline, "part_group_prev")
	if wire(prev.Enable.End) != "#part_group_cur.start + 50" {
		t.Errorf("previous end = %q", wire(prev.Enable.End))
	}

	t.Run("dropped without keepalive", func(t *testing.T) {
		prevPart.OutTransition = nil
		defer func() { prevPart.OutTransition = &rundown.OutTransition{KeepaliveDuration: 30} }()
		res := mustBuild(t, snap)
		if res.Timeline.Find("part_group_prev_ctrl_prev_out") != nil {
			t.Error("out-transition piece emitted without keepalive")
		}
	})

	t.Run("dropped in hold", func(t *testing.T) {
		snap.Hold = rundown.HoldActive
		defer func() { snap.Hold = rundown.HoldNone }()
		res := mustBuild(t, snap)
		if res.Timeline.Find("part_group_prev_ctrl_prev_out") != nil {
			t.Error("out-transition piece emitted while holding")
		}
		prev := mustFind(t, res.Timeline, "part_group_prev")
		if wire(prev.Enable.End) != "#part_group_cur.start + 20" {
			t.Errorf("previous end in hold = %q", wire(prev.Enable.End))
		}
	})
}

func TestBuildUnknownTransitionFails(t *testing.T) {
	cur := taken("cur", newPart("p1", &rundown.Piece{ID: "x", Layer: "l", TransitionType: "DISSOLVE"}), takeAt)
	if _, err := Build(snapshot(cur), Options{}); !errors.Is(err, rundown.ErrUnsupportedOperation) {
		t.Errorf("error = %v, want ErrUnsupportedOperation", err)
	}
}

func TestBuildPreRollObject(t *testing.T) {
	cur := taken("cur", newPart("p1", &rundown.Piece{ID: "vt", Layer: "video", PreRollDuration: 10}), takeAt)
	res := mustBuild(t, snapshot(cur))

	if n := countKind(res.Timeline, timeline.KindPreRoll); n != 1 {
		t.Fatalf("pre-roll objects = %d, want 1", n)
	}
	pre := mustFind(t, res.Timeline, "part_group_cur_ctrl_cur_vt_preroll")
	if wire(pre.Enable.Start) != "#part_group_cur.start" {
		t.Errorf("pre-roll start = %q", wire(pre.Enable.Start))
	}
	ctrl := mustFind(t, res.Timeline, "part_group_cur_ctrl_cur_vt")
	if wire(ctrl.Enable.Start) != "#part_group_cur_ctrl_cur_vt_preroll + 10" {
		t.Errorf("control start = %q", wire(ctrl.Enable.Start))
	}
	grp := mustFind(t, res.Timeline, "part_group_cur_grp_cur_vt")
	if wire(grp.Enable.Start) != "#part_group_cur_ctrl_cur_vt.start - 10" {
		t.Errorf("content start = %q", wire(grp.Enable.Start))
	}
}

func TestBuildNoPreRollObjectWhenStartNotZero(t *testing.T) {
	cur := taken("cur", newPart("p1", &rundown.Piece{ID: "vt", Layer: "video", Start: 100, PreRollDuration: 10}), takeAt)
	res := mustBuild(t, snapshot(cur))
	if n := countKind(res.Timeline, timeline.KindPreRoll); n != 0 {
		t.Errorf("pre-roll objects = %d, want 0", n)
	}
}

func TestBuildClonesDeviceObjects(t *testing.T) {
	tmpl := &timeline.Object{ID: "clip", Layer: "server1", Content: map[string]any{"file": "a.mxf"}}
	piece := &rundown.Piece{ID: "vt", Layer: "video", Objects: []*timeline.Object{tmpl}}
	cur := taken("cur", newPart("p1", piece), takeAt)

	res := mustBuild(t, snapshot(cur))
	obj := mustFind(t, res.Timeline, "part_group_cur_grp_cur_vt_vt_clip")
	if obj.InGroup != "part_group_cur_grp_cur_vt" {
		t.Errorf("InGroup = %q", obj.InGroup)
	}
	if obj == tmpl {
		t.Fatal("device object aliased")
	}
	obj.Content["file"] = "changed"
	if tmpl.Content["file"] != "a.mxf" || tmpl.ID != "clip" || tmpl.InGroup != "" {
		t.Error("template mutated")
	}
}

// ─── Infinites ──────────────────────────────────────────────────

func infiniteSnapshot(execAt int64, curPieces ...*rundown.Piece) *rundown.PlayoutSnapshot {
	logo := &rundown.Piece{ID: "logo", Layer: "bug", Lifespan: rundown.LifespanSpanningUntilRundownEnd}
	prevPart := newPart("p0", logo)
	curPart := newPart("p1", curPieces...)

	prev := taken("prev", prevPart, 5_000)
	prev.PieceInstances = []*rundown.PieceInstance{{
		ID:         "prev_logo",
		Piece:      logo,
		Infinite:   &rundown.InfiniteInfo{InfiniteInstanceID: "inf1", InfinitePieceID: "logo"},
		ExecutedAt: execAt,
	}}
	snap := snapshot(taken("cur", curPart, takeAt))
	snap.Previous = prev
	snap.Parts = []*rundown.Part{prevPart, curPart}
	return snap
}

func TestBuildInfiniteGroupAnchoredAtExecutedAt(t *testing.T) {
	snap := infiniteSnapshot(5_000)

	for i := 0; i < 3; i++ {
		snap.Now = nowAt + int64(i)*1000
		res := mustBuild(t, snap)
		g := mustFind(t, res.Timeline, "infinite_group_inf1")
		if wire(g.Enable.Start) != "5000" {
			t.Fatalf("regen %d: start = %q, want 5000", i, wire(g.Enable.Start))
		}
		if res.Timeline.Find("part_group_prev_ctrl_prev_logo") != nil {
			t.Error("continued infinite duplicated in previous group")
		}
		ctrl := mustFind(t, res.Timeline, "infinite_group_inf1_ctrl_cur_inf1")
		if wire(ctrl.Enable.Start) != "0" {
			t.Errorf("infinite control start = %q, want 0", wire(ctrl.Enable.Start))
		}
	}
}

func TestBuildInfiniteMissingExecutedAt(t *testing.T) {
	if _, err := Build(infiniteSnapshot(0), Options{}); !errors.Is(err, rundown.ErrStateCorruption) {
		t.Errorf("error = %v, want ErrStateCorruption", err)
	}
}

func TestBuildInfiniteCutByLaterPiece(t *testing.T) {
	snap := infiniteSnapshot(5_000, &rundown.Piece{ID: "newlogo", Layer: "bug", Start: 500})
	res := mustBuild(t, snap)
	g := mustFind(t, res.Timeline, "infinite_group_inf1")
	if wire(g.Enable.End) != "#part_group_cur.start + 500" {
		t.Errorf("end = %q", wire(g.Enable.End))
	}
}

func TestBuildInfiniteReplacedAtStart(t *testing.T) {
	snap := infiniteSnapshot(5_000, &rundown.Piece{ID: "newlogo", Layer: "bug"})
	res := mustBuild(t, snap)
	if res.Timeline.Find("infinite_group_inf1") != nil {
		t.Error("replaced infinite still has a group")
	}
	mustFind(t, res.Timeline, "part_group_prev_ctrl_prev_logo")
}

func TestBuildCarriedInfiniteSupersededKeepsAnchor(t *testing.T) {
	logo := &rundown.Piece{ID: "logo", Layer: "bug", Lifespan: rundown.LifespanSpanningUntilRundownEnd}
	partA := newPart("pA", logo)
	partB := newPart("pB", &rundown.Piece{ID: "cam", Layer: "camera"})
	partC := newPart("pC", &rundown.Piece{ID: "newlogo", Layer: "bug"})

	// The logo started in A at 1000 and was carried into B, taken at 5000.
	prev := taken("piB", partB, 5_000)
	prev.PieceInstances = []*rundown.PieceInstance{
		{ID: "piB_cam", Piece: partB.Pieces[0]},
		{
			ID:         "piB_logo",
			Piece:      logo,
			Infinite:   &rundown.InfiniteInfo{InfiniteInstanceID: "inf1", InfinitePieceID: "logo", FromPreviousPart: true},
			ExecutedAt: 1_000,
		},
	}
	snap := snapshot(taken("piC", partC, takeAt))
	snap.Previous = prev
	snap.Parts = []*rundown.Part{partA, partB, partC}

	res := mustBuild(t, snap)
	tl := res.Timeline

	g := mustFind(t, tl, "infinite_group_inf1")
	if wire(g.Enable.Start) != "1000" {
		t.Errorf("start = %q, want 1000", wire(g.Enable.Start))
	}
	if wire(g.Enable.End) != "#part_group_piC.start" {
		t.Errorf("end = %q, want #part_group_piC.start", wire(g.Enable.End))
	}
	if g.Metadata.PartInstanceID != "piB" {
		t.Errorf("PartInstanceID = %q, want piB", g.Metadata.PartInstanceID)
	}
	if ctrl := mustFind(t, tl, "infinite_group_inf1_ctrl_piB_logo"); wire(ctrl.Enable.Start) != "0" {
		t.Errorf("control start = %q, want 0", wire(ctrl.Enable.Start))
	}
	prevGroup := mustFind(t, tl, "part_group_piB")
	prevGroup.Walk(func(o *timeline.Object) {
		if o.Metadata.InfiniteInstanceID == "inf1" || o.Layer == "bug" {
			t.Errorf("infinite drawn inside the previous part group: %s", o.ID)
		}
	})
}

// ─── Auto-next ──────────────────────────────────────────────────

func autoNextSnapshot(expected int64, autoNext bool, nextPart *rundown.Part) *rundown.PlayoutSnapshot {
	curPart := newPart("p1", &rundown.Piece{ID: "cam", Layer: "camera"})
	curPart.ExpectedDuration = expected
	curPart.AutoNext = autoNext
	snap := snapshot(taken("cur", curPart, takeAt))
	snap.Next = &rundown.PartInstance{ID: "nxt", Part: nextPart}
	snap.Parts = []*rundown.Part{curPart, nextPart}
	return snap
}

func TestBuildAutoNext(t *testing.T) {
	nextPart := newPart("p2", &rundown.Piece{ID: "vt", Layer: "video"})

	res := mustBuild(t, autoNextSnapshot(5000, true, nextPart))
	tl := res.Timeline

	active := mustFind(t, tl, "part_group_cur")
	if wire(active.Enable.Duration) != "5000" {
		t.Errorf("active duration = %q", wire(active.Enable.Duration))
	}
	next := mustFind(t, tl, "part_group_nxt")
	if wire(next.Enable.Start) != "#part_group_cur.end" {
		t.Errorf("next start = %q", wire(next.Enable.Start))
	}
	mustFind(t, tl, "part_group_nxt_ctrl_nxt_vt")
	if tl.AutoNext == nil || tl.AutoNext.EpochTimeToTakeNext != takeAt+5000 {
		t.Errorf("AutoNext = %+v, want %d", tl.AutoNext, takeAt+5000)
	}
	if tl.Groups[len(tl.Groups)-1].ID != "part_group_nxt" {
		t.Errorf("next group not last: %s", tl.Groups[len(tl.Groups)-1].ID)
	}
}

func TestBuildAutoNextWithOverlap(t *testing.T) {
	nextPart := newPart("p2", &rundown.Piece{ID: "vt", Layer: "video"})
	nextPart.InTransition = &rundown.InTransition{LeadDuration: 20, PreviousPartKeepaliveDuration: 40}

	res := mustBuild(t, autoNextSnapshot(5000, true, nextPart))
	next := mustFind(t, res.Timeline, "part_group_nxt")
	if wire(next.Enable.Start) != "#part_group_cur.end - 40" {
		t.Errorf("next start = %q", wire(next.Enable.Start))
	}
	if got := res.Timeline.AutoNext.EpochTimeToTakeNext; got != takeAt+5000-40 {
		t.Errorf("epoch = %d, want %d", got, takeAt+5000-40)
	}
}

func TestBuildNoAutoNext(t *testing.T) {
	nextPart := newPart("p2")
	tests := []struct {
		name     string
		expected int64
		autoNext bool
	}{
		{"not armed", 5000, false},
		{"zero expected", 0, true},
		{"negative expected", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustBuild(t, autoNextSnapshot(tt.expected, tt.autoNext, nextPart))
			if res.Timeline.AutoNext != nil {
				t.Error("AutoNext emitted")
			}
			if res.Timeline.Find("part_group_nxt") != nil {
				t.Error("next group emitted")
			}
			if d := mustFind(t, res.Timeline, "part_group_cur").Enable.Duration; d != nil {
				t.Errorf("active duration = %q, want open", wire(d))
			}
		})
	}
}

// ─── Purity ─────────────────────────────────────────────────────

func TestBuildDeterministic(t *testing.T) {
	snap := infiniteSnapshot(5_000, &rundown.Piece{ID: "vt", Layer: "video", PreRollDuration: 10, PostRollDuration: 5})
	snap.Current.Part.AutoNext = true
	snap.Current.Part.ExpectedDuration = 3000
	snap.Next = &rundown.PartInstance{ID: "nxt", Part: newPart("p2", &rundown.Piece{ID: "cam", Layer: "camera"})}

	a, err := json.Marshal(mustBuild(t, snap).Timeline)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := json.Marshal(mustBuild(t, snap).Timeline)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("builds differ:\n%s\n%s", a, b)
	}
}

func TestBuildSimulationRecompute(t *testing.T) {
	cur := taken("cur", newPart("p1", &rundown.Piece{ID: "cam", Layer: "camera"}), takeAt)
	res := mustBuild(t, snapshot(cur))
	if res.RecomputeAt != takeAt+3000 {
		t.Errorf("RecomputeAt = %d, want %d", res.RecomputeAt, takeAt+3000)
	}

	cur.PieceInstances = []*rundown.PieceInstance{{ID: "cur_cam", Piece: cur.Part.Pieces[0]}}
	res = mustBuild(t, snapshot(cur))
	if res.RecomputeAt != 0 {
		t.Errorf("RecomputeAt = %d, want 0 for materialized part", res.RecomputeAt)
	}
}

// ─── Generate ───────────────────────────────────────────────────

type funcBlueprint struct {
	blueprint.Noop
	fn func(tl *timeline.Timeline)
}

func (f funcBlueprint) OnTimelineGenerate(_ context.Context, _ blueprint.GenerateContext, state json.RawMessage,
	_, _ *rundown.PartInstance, tl *timeline.Timeline) (*timeline.Timeline, json.RawMessage, error) {
	f.fn(tl)
	return tl, json.RawMessage(`{"ran":true}`), nil
}

func TestGenerate(t *testing.T) {
	newSnap := func() *rundown.PlayoutSnapshot {
		return snapshot(taken("cur", newPart("p1", &rundown.Piece{ID: "cam", Layer: "camera"}), takeAt))
	}

	t.Run("hook output published", func(t *testing.T) {
		bp := funcBlueprint{fn: func(tl *timeline.Timeline) {
			g := tl.Find("part_group_cur")
			g.Children = append(g.Children, &timeline.Object{ID: "extra", InGroup: g.ID, Enable: timeline.Enable{Start: timeline.Offset(0)}})
		}}
		out, err := Generate(context.Background(), newSnap(), bp, blueprint.GenerateContext{}, Options{})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		mustFind(t, out.Timeline, "extra")
		if string(out.PersistentState) != `{"ran":true}` {
			t.Errorf("state = %s", out.PersistentState)
		}
	})

	t.Run("moved anchor rejected", func(t *testing.T) {
		bp := funcBlueprint{fn: func(tl *timeline.Timeline) {
			tl.Find("part_group_cur").Enable.Start = timeline.Offset(1)
		}}
		if _, err := Generate(context.Background(), newSnap(), bp, blueprint.GenerateContext{}, Options{}); !errors.Is(err, blueprint.ErrAnchorAltered) {
			t.Errorf("error = %v, want ErrAnchorAltered", err)
		}
	})

	t.Run("dangling reference rejected", func(t *testing.T) {
		bp := funcBlueprint{fn: func(tl *timeline.Timeline) {
			g := tl.Find("part_group_cur")
			g.Children = append(g.Children, &timeline.Object{
				ID: "dangling", InGroup: g.ID,
				Enable: timeline.Enable{Start: timeline.Ref{Target: "gone", Edge: timeline.EdgeEnd}},
			})
		}}
		if _, err := Generate(context.Background(), newSnap(), bp, blueprint.GenerateContext{}, Options{}); !errors.Is(err, timeline.ErrUnresolvedReference) {
			t.Errorf("error = %v, want ErrUnresolvedReference", err)
		}
	})

	t.Run("nil blueprint keeps state", func(t *testing.T) {
		snap := newSnap()
		snap.PersistentState = json.RawMessage(`{"keep":1}`)
		out, err := Generate(context.Background(), snap, nil, blueprint.GenerateContext{}, Options{})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if string(out.PersistentState) != `{"keep":1}` {
			t.Errorf("state = %s", out.PersistentState)
		}
	})
}
