package generator

import (
	"fmt"
	"sort"

	"github.com/tv2/tv-automation-server-core-sub000/internal/lifespan"
	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timing"
)

// Root group ids and priorities.
const (
	BaselineGroupID = "baseline_group"

	baselinePriority = 0
	previousPriority = 1
	activePriority   = 2
	infinitePriority = 3
	nextPriority     = 4
)

// PartGroupID returns the root group id of a part instance.
func PartGroupID(partInstanceID string) string {
	return "part_group_" + partInstanceID
}

// InfiniteGroupID returns the root group id of an infinite chain.
func InfiniteGroupID(infiniteInstanceID string) string {
	return "infinite_group_" + infiniteInstanceID
}

// Options tune a build.
type Options struct {
	// SimulationWindow overrides lifespan.DefaultSimulationWindow.
	SimulationWindow int64
}

// Result is the outcome of one build.
type Result struct {
	Timeline *timeline.Timeline
	// RecomputeAt is when a simulation window lapses; zero when none is open.
	RecomputeAt int64

	PreviousPieces []*rundown.PieceInstance
	CurrentPieces  []*rundown.PieceInstance
	NextPieces     []*rundown.PieceInstance

	CurrentTimings timing.PartTimings
	NextTimings    timing.PartTimings
}

// Build assembles the timeline for snap. It either returns a complete,
// validated timeline or an error; nothing partial is returned.
func Build(snap *rundown.PlayoutSnapshot, opts Options) (*Result, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: nil snapshot", rundown.ErrStateCorruption)
	}
	if snap.Previous != nil && snap.Current == nil {
		return nil, fmt.Errorf("%w: previous part instance %s without a current one", rundown.ErrStateCorruption, snap.Previous.ID)
	}

	b := &builder{snap: snap, opts: opts, g: timeline.NewGraph(), res: &Result{}}
	if err := b.build(); err != nil {
		return nil, err
	}

	groups := b.g.Groups()
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Priority < groups[j].Priority })
	tl := &timeline.Timeline{
		PlaylistID:  snap.PlaylistID,
		GeneratedAt: snap.Now,
		Groups:      groups,
		AutoNext:    b.autoNext,
	}
	if err := timeline.Validate(tl); err != nil {
		return nil, err
	}
	b.res.Timeline = tl
	return b.res, nil
}

type builder struct {
	snap *rundown.PlayoutSnapshot
	opts Options
	g    *timeline.Graph
	res  *Result

	autoNext *timeline.AutoNext
}

func (b *builder) build() error {
	if err := b.addBaseline(); err != nil {
		return err
	}
	if b.snap.Current == nil {
		return nil
	}
	if err := b.resolve(); err != nil {
		return err
	}

	active, err := b.addActive()
	if err != nil {
		return err
	}
	if err := b.addPrevious(active); err != nil {
		return err
	}
	if err := b.addInfinites(active); err != nil {
		return err
	}
	return b.addNext(active)
}

func (b *builder) resolve() error {
	snap := b.snap
	in := lifespan.Input{Parts: snap.Parts, Now: snap.Now, Window: b.opts.SimulationWindow}

	if snap.Previous != nil {
		in.Target = snap.Previous
		r, err := lifespan.Resolve(in)
		if err != nil {
			return fmt.Errorf("resolve previous part: %w", err)
		}
		b.res.PreviousPieces = r.Pieces
		b.noteRecompute(r.RecomputeAt)
	}

	in.Target, in.Previous, in.PreviousPieces = snap.Current, snap.Previous, b.res.PreviousPieces
	r, err := lifespan.Resolve(in)
	if err != nil {
		return fmt.Errorf("resolve current part: %w", err)
	}
	b.res.CurrentPieces = r.Pieces
	b.noteRecompute(r.RecomputeAt)

	if snap.Next != nil {
		in.Target, in.Previous, in.PreviousPieces = snap.Next, snap.Current, b.res.CurrentPieces
		r, err := lifespan.Resolve(in)
		if err != nil {
			return fmt.Errorf("resolve next part: %w", err)
		}
		b.res.NextPieces = r.Pieces
		b.noteRecompute(r.RecomputeAt)
	}

	hold := snap.Hold == rundown.HoldActive
	var prevPart *rundown.Part
	if snap.Previous != nil {
		prevPart = snap.Previous.Part
	}
	b.res.CurrentTimings = timing.Calculate(timing.Input{
		Part:           snap.Current.Part,
		Pieces:         b.res.CurrentPieces,
		Previous:       prevPart,
		PreviousPieces: b.res.PreviousPieces,
		Hold:           hold,
	})
	if snap.Next != nil {
		b.res.NextTimings = timing.Calculate(timing.Input{
			Part:           snap.Next.Part,
			Pieces:         b.res.NextPieces,
			Previous:       snap.Current.Part,
			PreviousPieces: b.res.CurrentPieces,
			Hold:           hold,
		})
	}
	return nil
}

func (b *builder) noteRecompute(at int64) {
	if at > 0 && (b.res.RecomputeAt == 0 || at < b.res.RecomputeAt) {
		b.res.RecomputeAt = at
	}
}

func (b *builder) addBaseline() error {
	base, err := b.g.AddRoot(&timeline.Object{
		ID:       BaselineGroupID,
		IsGroup:  true,
		Priority: baselinePriority,
		Enable:   timeline.Enable{While: timeline.Always{}},
		Metadata: timeline.Metadata{Kind: timeline.KindBaseline},
	})
	if err != nil {
		return err
	}
	for _, src := range b.snap.Baseline {
		if src == nil {
			continue
		}
		obj := src.Clone()
		if obj.Enable.IsZero() {
			obj.Enable = timeline.Enable{While: timeline.Always{}}
		}
		obj.Metadata.Kind = timeline.KindBaseline
		if _, err := b.g.AddChild(base, obj); err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
	}
	return nil
}

// armed reports whether the current part will advance on its own.
func (b *builder) armed() bool {
	cur := b.snap.Current.Part
	return b.snap.Next != nil && cur != nil && cur.AutoNext && cur.ExpectedDuration > 0
}

func (b *builder) addActive() (timeline.Handle, error) {
	cur := b.snap.Current
	if cur.Part == nil {
		return timeline.Handle{}, fmt.Errorf("%w: part instance %s has no part", rundown.ErrStateCorruption, cur.ID)
	}

	var start timeline.Time = timeline.Now{}
	if anchor := cur.Anchor(); anchor > 0 {
		start = timeline.Offset(anchor)
	}
	enable := timeline.Enable{Start: start}
	if b.armed() {
		enable.Duration = timeline.Offset(cur.Part.ExpectedDuration + b.res.CurrentTimings.DelayStartOfPiecesDuration)
	}

	active, err := b.g.AddRoot(&timeline.Object{
		ID:       PartGroupID(cur.ID),
		IsGroup:  true,
		Priority: activePriority,
		Enable:   enable,
		Metadata: timeline.Metadata{Kind: timeline.KindPartGroup, PartInstanceID: cur.ID},
	})
	if err != nil {
		return timeline.Handle{}, err
	}

	gt := groupTimings{
		inTransitionStart: b.res.CurrentTimings.InTransitionStart,
		delay:             b.res.CurrentTimings.DelayStartOfPiecesDuration,
		outKeepalive:      b.outKeepalive(cur.Part),
		outPostRoll:       b.res.NextTimings.PostRollDuration,
	}
	meta := timeline.Metadata{PartInstanceID: cur.ID}
	for _, pi := range b.res.CurrentPieces {
		if continuingInfinite(pi) {
			continue
		}
		if _, err := addPiece(b.g, active, pi, gt, meta); err != nil {
			return timeline.Handle{}, err
		}
	}
	return active, nil
}

func (b *builder) outKeepalive(p *rundown.Part) int64 {
	if p == nil || p.OutTransition == nil || b.snap.Hold == rundown.HoldActive {
		return 0
	}
	return p.OutTransition.KeepaliveDuration
}

func (b *builder) addPrevious(active timeline.Handle) error {
	prev := b.snap.Previous
	if prev == nil {
		return nil
	}
	anchor := prev.Anchor()
	if anchor <= 0 {
		return fmt.Errorf("%w: previous part instance %s has no recorded start", rundown.ErrStateCorruption, prev.ID)
	}

	group, err := b.g.AddRoot(&timeline.Object{
		ID:       PartGroupID(prev.ID),
		IsGroup:  true,
		Priority: previousPriority,
		Enable: timeline.Enable{
			Start: timeline.Offset(anchor),
			End:   active.Start(b.res.CurrentTimings.PreviousPartContinueIntoPartDuration),
		},
		Metadata: timeline.Metadata{Kind: timeline.KindPartGroup, PartInstanceID: prev.ID},
	})
	if err != nil {
		return err
	}

	continued := make(map[string]bool)
	for _, pi := range b.res.CurrentPieces {
		if continuingInfinite(pi) {
			continued[pi.Infinite.InfiniteInstanceID] = true
		}
	}

	gt := groupTimings{
		outKeepalive: b.outKeepalive(prev.Part),
		outPostRoll:  b.res.CurrentTimings.PostRollDuration,
	}
	meta := timeline.Metadata{PartInstanceID: prev.ID}
	for _, pi := range b.res.PreviousPieces {
		if pi.Infinite != nil && continued[pi.Infinite.InfiniteInstanceID] {
			continue
		}
		if continuingInfinite(pi) {
			// Carried in from an earlier part and superseded by the current
			// one: it keeps its own anchor and stops with the previous part.
			end := active.Start(b.res.CurrentTimings.PreviousPartContinueIntoPartDuration)
			if pi.CutAt != nil {
				end = group.Start(*pi.CutAt)
			}
			if err := b.addInfiniteGroup(pi, prev.ID, end); err != nil {
				return err
			}
			continue
		}
		if _, err := addPiece(b.g, group, pi, gt, meta); err != nil {
			return err
		}
	}
	return nil
}

// addInfinites gives every infinite continuing into the current part its own
// group anchored at the absolute executedAt.
func (b *builder) addInfinites(active timeline.Handle) error {
	for _, pi := range b.res.CurrentPieces {
		if !continuingInfinite(pi) {
			continue
		}
		var end timeline.Time
		if pi.CutAt != nil {
			end = active.Start(*pi.CutAt)
		}
		if err := b.addInfiniteGroup(pi, b.snap.Current.ID, end); err != nil {
			return err
		}
	}
	return nil
}

// addInfiniteGroup emits the root group of an infinite carried into the part
// instance partInstanceID. A nil end leaves it open.
func (b *builder) addInfiniteGroup(pi *rundown.PieceInstance, partInstanceID string, end timeline.Time) error {
	if pi.ExecutedAt <= 0 {
		return fmt.Errorf("%w: infinite %s has no executedAt", rundown.ErrStateCorruption, pi.Infinite.InfiniteInstanceID)
	}
	group, err := b.g.AddRoot(&timeline.Object{
		ID:       InfiniteGroupID(pi.Infinite.InfiniteInstanceID),
		IsGroup:  true,
		Priority: infinitePriority,
		Enable:   timeline.Enable{Start: timeline.Offset(pi.ExecutedAt), End: end},
		Metadata: timeline.Metadata{
			Kind:               timeline.KindInfinite,
			PartInstanceID:     partInstanceID,
			InfiniteInstanceID: pi.Infinite.InfiniteInstanceID,
		},
	})
	if err != nil {
		return err
	}
	_, err = addPiece(b.g, group, restartAtZero(pi), groupTimings{}, timeline.Metadata{PartInstanceID: partInstanceID})
	return err
}

func (b *builder) addNext(active timeline.Handle) error {
	if !b.armed() {
		return nil
	}
	cur, next := b.snap.Current, b.snap.Next
	if cur.Part.ExpectedDuration <= 0 {
		return fmt.Errorf("%w: next group without expected duration", rundown.ErrUnsupportedOperation)
	}
	if next.Part == nil {
		return fmt.Errorf("%w: part instance %s has no part", rundown.ErrStateCorruption, next.ID)
	}

	nextContinue := b.res.NextTimings.PreviousPartContinueIntoPartDuration
	group, err := b.g.AddRoot(&timeline.Object{
		ID:       PartGroupID(next.ID),
		IsGroup:  true,
		Priority: nextPriority,
		Enable:   timeline.Enable{Start: active.End().Minus(nextContinue)},
		Metadata: timeline.Metadata{Kind: timeline.KindPartGroup, PartInstanceID: next.ID},
	})
	if err != nil {
		return err
	}

	gt := groupTimings{
		inTransitionStart: b.res.NextTimings.InTransitionStart,
		delay:             b.res.NextTimings.DelayStartOfPiecesDuration,
		outKeepalive:      b.outKeepalive(next.Part),
	}
	meta := timeline.Metadata{PartInstanceID: next.ID}
	for _, pi := range b.res.NextPieces {
		if continuingInfinite(pi) {
			continue
		}
		if _, err := addPiece(b.g, group, pi, gt, meta); err != nil {
			return err
		}
	}

	anchor := cur.Anchor()
	if anchor <= 0 {
		anchor = b.snap.Now
	}
	b.autoNext = &timeline.AutoNext{
		EpochTimeToTakeNext: anchor + cur.Part.ExpectedDuration + b.res.CurrentTimings.DelayStartOfPiecesDuration - nextContinue,
	}
	return nil
}

func continuingInfinite(pi *rundown.PieceInstance) bool {
	return pi != nil && pi.Infinite != nil && pi.Infinite.FromPreviousPart
}

// restartAtZero renders an infinite relative to the group that carries it.
func restartAtZero(pi *rundown.PieceInstance) *rundown.PieceInstance {
	c := pi.Clone()
	p := *pi.Piece
	p.Start = 0
	c.Piece = &p
	c.CutAt = nil
	c.Adlibbed = false
	return c
}
