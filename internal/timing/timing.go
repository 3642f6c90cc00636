package timing

import "github.com/tv2/tv-automation-server-core-sub000/internal/rundown"

// PartTimings are recomputed on every regeneration and never persisted.
type PartTimings struct {
	// InTransitionStart is when in-transition pieces start, relative to the
	// part. Zero when there is no in-transition or a hold is running.
	InTransitionStart int64
	// PreviousPartContinueIntoPartDuration is how long the previous part's
	// objects stay alive after this part starts.
	PreviousPartContinueIntoPartDuration int64
	// PostRollDuration is the trailing padding the previous part needs after
	// its nominal end.
	PostRollDuration int64
	// DelayStartOfPiecesDuration delays ordinary pieces behind an
	// in-transition.
	DelayStartOfPiecesDuration int64
}

// Input describes the part being timed and what it follows.
type Input struct {
	Part   *rundown.Part
	Pieces []*rundown.PieceInstance
	// Previous is the part that is on air when Part is taken.
	Previous       *rundown.Part
	PreviousPieces []*rundown.PieceInstance
	Hold           bool
}

// Calculate computes the timings for in.Part.
func Calculate(in Input) PartTimings {
	var t PartTimings
	if in.Part == nil {
		return t
	}

	it := in.Part.InTransition
	useTransition := it != nil && !in.Hold && in.Previous != nil

	if useTransition {
		t.InTransitionStart = it.LeadDuration
		t.DelayStartOfPiecesDuration = it.PartContentDelayDuration
	}

	var keepalive int64
	if !in.Hold && in.Previous != nil {
		if useTransition {
			keepalive = it.PreviousPartKeepaliveDuration
		}
		if out := in.Previous.OutTransition; out != nil {
			keepalive = max(keepalive, out.KeepaliveDuration)
		}
	}

	var preroll int64
	for _, pi := range in.Pieces {
		if pi == nil || pi.Piece == nil || !pi.Piece.TransitionType.IsNone() {
			continue
		}
		if pi.Infinite != nil && pi.Infinite.FromPreviousPart {
			continue
		}
		preroll = max(preroll, pi.Piece.PreRollDuration-t.DelayStartOfPiecesDuration-pi.Piece.Start)
	}

	if in.Previous != nil {
		for _, pi := range in.PreviousPieces {
			if pi == nil || pi.Piece == nil {
				continue
			}
			t.PostRollDuration = max(t.PostRollDuration, pi.Piece.PostRollDuration)
		}
		t.PreviousPartContinueIntoPartDuration = max(keepalive, preroll) + t.PostRollDuration
	}
	return t
}

// PieceStart returns the start of an ordinary piece inside its part, pushed
// behind the in-transition delay unless its own preroll is larger.
func PieceStart(p *rundown.Piece, t PartTimings) int64 {
	if p == nil {
		return 0
	}
	if t.DelayStartOfPiecesDuration > 0 {
		return p.Start + max(t.DelayStartOfPiecesDuration, p.PreRollDuration)
	}
	return p.Start
}
