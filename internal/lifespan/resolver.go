package lifespan

import (
	"fmt"
	"sort"

	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
)

// DefaultSimulationWindow is how long after a take or set-next synthesized
// instances are used without pruning.
const DefaultSimulationWindow int64 = 3000

// Input is everything Resolve needs for one part instance.
type Input struct {
	Target *rundown.PartInstance
	// Previous is the part instance played before Target, if any.
	Previous *rundown.PartInstance
	// PreviousPieces are the resolved pieces of Previous in this generation.
	PreviousPieces []*rundown.PieceInstance
	// Parts of the playlist in rank order.
	Parts []*rundown.Part
	Now   int64
	// Window overrides DefaultSimulationWindow when positive.
	Window int64
}

// Result lists the active pieces for the target part.
type Result struct {
	Pieces []*rundown.PieceInstance
	// Simulated is set while the simulation window is open.
	Simulated bool
	// RecomputeAt is the instant the window lapses; zero when closed.
	RecomputeAt int64
}

// Resolve determines the piece instances active for in.Target. It never
// mutates its input.
func Resolve(in Input) (*Result, error) {
	if in.Target == nil || in.Target.Part == nil {
		return &Result{}, nil
	}
	target := in.Target

	window := in.Window
	if window <= 0 {
		window = DefaultSimulationWindow
	}

	res := &Result{}
	var pieces []*rundown.PieceInstance

	if len(target.PieceInstances) > 0 {
		for _, pi := range target.PieceInstances {
			pieces = append(pieces, pi.Clone())
		}
	} else {
		if ref := max(target.Timings.Take, target.Timings.SetAsNext); ref > 0 && in.Now < ref+window {
			res.Simulated = true
			res.RecomputeAt = ref + window
		}

		carried, err := carryOver(in)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, carried...)
		pieces = append(pieces, spanningCandidates(in, carried)...)
		for _, p := range target.Part.Pieces {
			pieces = append(pieces, synthesize(target, p))
		}
		if res.Simulated {
			for _, pi := range pieces {
				pi.Simulated = true
			}
		}
	}

	for _, pi := range pieces {
		if pi.Infinite != nil && pi.Infinite.FromPreviousPart && pi.ExecutedAt <= 0 {
			return nil, fmt.Errorf("%w: infinite %s has no executedAt", rundown.ErrStateCorruption, pi.Infinite.InfiniteInstanceID)
		}
	}

	pieces = supersede(pieces)
	if !res.Simulated {
		pieces = prune(pieces, target.Anchor(), in.Now)
	}
	res.Pieces = pieces
	return res, nil
}

// InstanceID is the deterministic id of a piece instance synthesized for a
// part instance.
func InstanceID(partInstanceID, pieceID string) string {
	return partInstanceID + "_" + pieceID
}

func synthesize(target *rundown.PartInstance, p *rundown.Piece) *rundown.PieceInstance {
	pi := &rundown.PieceInstance{
		ID:             InstanceID(target.ID, p.ID),
		PartInstanceID: target.ID,
		Piece:          p,
	}
	if p.Lifespan.IsInfinite() {
		pi.Infinite = &rundown.InfiniteInfo{
			InfiniteInstanceID: pi.ID,
			InfinitePieceID:    p.ID,
		}
	}
	return pi
}

// carryOver continues the previous part's infinites that are still in scope.
func carryOver(in Input) ([]*rundown.PieceInstance, error) {
	if in.Previous == nil || in.Previous.Part == nil {
		return nil, nil
	}
	prevPart, targetPart := in.Previous.Part, in.Target.Part
	forward := rankIndex(in.Parts, targetPart.ID) > rankIndex(in.Parts, prevPart.ID)

	var out []*rundown.PieceInstance
	for _, prev := range in.PreviousPieces {
		if prev == nil || prev.Infinite == nil || prev.Piece == nil {
			continue
		}
		l := prev.Piece.Lifespan
		if !l.IsInfinite() || !inScope(l.Scope(), prevPart, targetPart) {
			continue
		}
		if !l.IsSticky() && !forward {
			continue
		}
		if prev.StoppedPlayback > 0 || prev.CutAt != nil {
			continue
		}
		if prev.ExecutedAt <= 0 {
			return nil, fmt.Errorf("%w: infinite %s has no executedAt", rundown.ErrStateCorruption, prev.Infinite.InfiniteInstanceID)
		}
		out = append(out, &rundown.PieceInstance{
			ID:             InstanceID(in.Target.ID, prev.Infinite.InfiniteInstanceID),
			PartInstanceID: in.Target.ID,
			Piece:          prev.Piece,
			Infinite: &rundown.InfiniteInfo{
				InfiniteInstanceID: prev.Infinite.InfiniteInstanceID,
				InfinitePieceID:    prev.Infinite.InfinitePieceID,
				FromPreviousPart:   true,
			},
			ExecutedAt:      prev.ExecutedAt,
			StartedPlayback: prev.StartedPlayback,
			Adlibbed:        prev.Adlibbed,
		})
	}
	return out, nil
}

// spanningCandidates returns spanning infinites authored in parts between the
// previously played part and the target, which were skipped over.
func spanningCandidates(in Input, carried []*rundown.PieceInstance) []*rundown.PieceInstance {
	targetIdx := rankIndex(in.Parts, in.Target.Part.ID)
	if targetIdx < 0 {
		return nil
	}
	from := 0
	if in.Previous != nil && in.Previous.Part != nil {
		if idx := rankIndex(in.Parts, in.Previous.Part.ID); idx >= 0 && idx < targetIdx {
			from = idx + 1
		}
	}

	byLayer := make(map[string]*rundown.Piece)
	var order []string
	for _, part := range in.Parts[from:targetIdx] {
		for _, p := range part.Pieces {
			if p.Lifespan.IsInfinite() && !p.Lifespan.IsSticky() && inScope(p.Lifespan.Scope(), part, in.Target.Part) {
				if _, seen := byLayer[p.Layer]; !seen {
					order = append(order, p.Layer)
				}
				byLayer[p.Layer] = p
				continue
			}
			delete(byLayer, p.Layer)
		}
	}

	carriedPieces := make(map[string]bool, len(carried))
	for _, c := range carried {
		carriedPieces[c.Infinite.InfinitePieceID] = true
	}

	var out []*rundown.PieceInstance
	for _, layer := range order {
		p, ok := byLayer[layer]
		if !ok || carriedPieces[p.ID] {
			continue
		}
		started := *p
		started.Start = 0
		id := InstanceID(in.Target.ID, p.ID)
		out = append(out, &rundown.PieceInstance{
			ID:             id,
			PartInstanceID: in.Target.ID,
			Piece:          &started,
			Infinite: &rundown.InfiniteInfo{
				InfiniteInstanceID: id,
				InfinitePieceID:    p.ID,
			},
		})
	}
	return out
}

func inScope(scope rundown.LifespanScope, from, to *rundown.Part) bool {
	switch scope {
	case rundown.ScopeSegment:
		return from.RundownID == to.RundownID && from.SegmentID == to.SegmentID
	case rundown.ScopeRundown:
		return from.RundownID == to.RundownID
	default:
		return false
	}
}

func rankIndex(parts []*rundown.Part, id string) int {
	for i, p := range parts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// supersede enforces one live piece per layer. Continuing infinites sort
// before own pieces, ordered by executedAt; own pieces by start. Each piece is
// dropped when the next one starts at the same instant, else cut at its start.
func supersede(pieces []*rundown.PieceInstance) []*rundown.PieceInstance {
	layers := make(map[string][]*rundown.PieceInstance)
	for _, pi := range pieces {
		if pi.Piece == nil {
			continue
		}
		layers[pi.Piece.Layer] = append(layers[pi.Piece.Layer], pi)
	}

	dropped := make(map[*rundown.PieceInstance]bool)
	for _, group := range layers {
		if len(group) < 2 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			a, b := group[i], group[j]
			ac, bc := continuing(a), continuing(b)
			if ac != bc {
				return ac
			}
			if ac {
				return a.ExecutedAt < b.ExecutedAt
			}
			return a.Piece.Start < b.Piece.Start
		})

		for i := 0; i < len(group)-1; i++ {
			cur, next := group[i], group[i+1]
			switch {
			case continuing(cur) && continuing(next):
				dropped[cur] = true
			case continuing(cur) && next.Piece.Start == 0:
				dropped[cur] = true
			case continuing(cur):
				cut := next.Piece.Start
				cur.CutAt = &cut
			case next.Piece.Start == cur.Piece.Start:
				dropped[cur] = true
			case cur.Piece.Duration == 0 || cur.Piece.Start+cur.Piece.Duration > next.Piece.Start:
				cut := next.Piece.Start
				cur.CutAt = &cut
			}
		}
	}

	out := make([]*rundown.PieceInstance, 0, len(pieces))
	for _, pi := range pieces {
		if !dropped[pi] {
			out = append(out, pi)
		}
	}
	return out
}

func continuing(pi *rundown.PieceInstance) bool {
	return pi.Infinite != nil && pi.Infinite.FromPreviousPart
}

// prune drops pieces that have ended before now. anchor is the part's on-air
// instant; zero means the part has not been taken and only stops apply.
func prune(pieces []*rundown.PieceInstance, anchor, now int64) []*rundown.PieceInstance {
	out := pieces[:0]
	for _, pi := range pieces {
		if ended(pi, anchor, now) {
			continue
		}
		out = append(out, pi)
	}
	return out
}

func ended(pi *rundown.PieceInstance, anchor, now int64) bool {
	if pi.StoppedPlayback > 0 && pi.StoppedPlayback <= now {
		return true
	}
	if continuing(pi) {
		return pi.Piece.Duration > 0 && pi.ExecutedAt+pi.Piece.Duration <= now
	}
	if anchor <= 0 {
		return false
	}
	if pi.CutAt != nil && anchor+*pi.CutAt <= now {
		return true
	}
	return pi.Piece.Duration > 0 && anchor+pi.Piece.Start+pi.Piece.Duration <= now
}
