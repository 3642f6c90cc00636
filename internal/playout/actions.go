package playout

import (
	"context"
	"errors"
	"fmt"

	"github.com/tv2/tv-automation-server-core-sub000/internal/generator"
	"github.com/tv2/tv-automation-server-core-sub000/internal/lifespan"
	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timing"
)

// Activate puts a playlist on air. The first part is set as next when
// nothing is queued yet.
func (e *Engine) Activate(ctx context.Context, playlistID string, rehearsal bool) error {
	return e.withPlaylist(ctx, playlistID, PriorityPlayout, func(s *session) error {
		s.pl.Active = true
		s.pl.Rehearsal = rehearsal

		if s.current == nil && s.next == nil && len(s.parts) > 0 {
			e.setNext(s, s.parts[0])
		}

		e.logger.Info("playlist activated",
			"playlist_id", playlistID,
			"rehearsal", rehearsal,
		)
		return e.regenerate(ctx, s)
	})
}

// Deactivate takes a playlist off air. Only the baseline remains.
func (e *Engine) Deactivate(ctx context.Context, playlistID string) error {
	return e.withPlaylist(ctx, playlistID, PriorityPlayout, func(s *session) error {
		if !s.pl.Active {
			return ErrNotActive
		}

		for _, pi := range []*rundown.PartInstance{s.previous, s.current} {
			if pi == nil || pi.Timings.StoppedPlayback > 0 {
				continue
			}
			pi.Timings.StoppedPlayback = s.now
			s.stage(pi)
		}

		s.pl.Active = false
		s.pl.Hold = rundown.HoldNone
		s.pl.PreviousPartInstanceID = ""
		s.pl.CurrentPartInstanceID = ""
		s.pl.NextPartInstanceID = ""
		s.pl.LastTakeAt = 0
		s.pl.BlockTakeUntil = 0
		s.previous, s.current, s.next = nil, nil, nil

		e.logger.Info("playlist deactivated", "playlist_id", playlistID)
		return e.regenerate(ctx, s)
	})
}

// SetNext queues partID to be taken next.
func (e *Engine) SetNext(ctx context.Context, playlistID, partID string) error {
	return e.withPlaylist(ctx, playlistID, PriorityPlayout, func(s *session) error {
		if !s.pl.Active {
			return ErrNotActive
		}
		part := findPart(s.parts, partID)
		if part == nil {
			return fmt.Errorf("%w: %s", ErrPartNotFound, partID)
		}

		switch s.pl.Hold {
		case rundown.HoldActive:
			return fmt.Errorf("%w: next part is locked while a hold is on air", ErrHoldNotAllowed)
		case rundown.HoldPending:
			s.pl.Hold = rundown.HoldNone
		}

		e.setNext(s, part)
		return e.regenerate(ctx, s)
	})
}

// setNext stages a fresh instance of part as the next part instance. A nil
// part clears the next slot.
func (e *Engine) setNext(s *session, part *rundown.Part) {
	if part == nil {
		s.next = nil
		s.pl.NextPartInstanceID = ""
		return
	}
	pi := &rundown.PartInstance{
		ID:         GenerateID(),
		PlaylistID: s.pl.ID,
		Part:       part,
		Timings:    rundown.PartTimings{SetAsNext: s.now},
		Rehearsal:  s.pl.Rehearsal,
	}
	if s.current != nil {
		pi.PreviousPartEndState = s.current.PreviousPartEndState
	}
	s.stage(pi)
	s.next = pi
	s.pl.NextPartInstanceID = pi.ID
}

// Take moves the next part on air.
func (e *Engine) Take(ctx context.Context, playlistID string) error {
	return e.withPlaylist(ctx, playlistID, PriorityPlayout, func(s *session) error {
		return e.take(ctx, s, false)
	})
}

// take shifts previous <- current <- next. Automatic takes skip the operator
// guards: they were scheduled from a timeline that already honoured them.
func (e *Engine) take(ctx context.Context, s *session, auto bool) error { //nolint:gocognit,gocyclo // take: guards, materialise, end state, hold, next selection
	pl := s.pl
	if !pl.Active {
		return ErrNotActive
	}
	if s.next == nil || s.next.Part == nil {
		return ErrNoNextPart
	}
	if !auto {
		if pl.LastTakeAt > 0 && s.now < pl.LastTakeAt+e.cfg.MinimumTakeSpan {
			return fmt.Errorf("%w: minimum take span not reached", ErrTakeBlocked)
		}
		if s.now < pl.BlockTakeUntil {
			return fmt.Errorf("%w: transition in progress", ErrTakeBlocked)
		}
	}

	res, err := e.resolveForTake(s)
	if err != nil {
		return err
	}

	switch pl.Hold {
	case rundown.HoldPending:
		pl.Hold = rundown.HoldActive
	case rundown.HoldActive:
		pl.Hold = rundown.HoldComplete
	case rundown.HoldComplete:
		pl.Hold = rundown.HoldNone
	}

	next := s.next
	next.Timings.Take = s.now
	var prevPart *rundown.Part
	if s.current != nil {
		prevPart = s.current.Part
	}
	nextTimings := timing.Calculate(timing.Input{
		Part:     next.Part,
		Pieces:   res.NextPieces,
		Previous: prevPart,
		Hold:     pl.Hold == rundown.HoldActive,
	})
	next.PieceInstances = materialize(res.NextPieces, next, s.now, nextTimings)

	curPieces := res.CurrentPieces
	if cur := s.current; cur != nil {
		if len(cur.PieceInstances) == 0 {
			cur.PieceInstances = materialize(curPieces, cur, s.now, res.CurrentTimings)
		}
		next.PreviousPartEndState = e.bp.GetEndStateForPart(cur.Part, cur.PreviousPartEndState, curPieces, s.now, pl.PersistentState)
		s.stage(cur)
	}
	if old := s.previous; old != nil && old.Timings.StoppedPlayback == 0 {
		old.Timings.StoppedPlayback = s.now
		s.stage(old)
	}
	s.stage(next)

	pl.BlockTakeUntil = 0
	if it := next.Part.InTransition; it != nil && s.current != nil && pl.Hold != rundown.HoldActive {
		pl.BlockTakeUntil = s.now + it.BlockTakeDuration
	}
	pl.LastTakeAt = s.now

	s.previous, s.current = s.current, next
	pl.PreviousPartInstanceID = ""
	if s.previous != nil {
		pl.PreviousPartInstanceID = s.previous.ID
	}
	pl.CurrentPartInstanceID = next.ID

	e.setNext(s, partAfter(s.parts, next.Part.ID))

	e.logger.Info("part taken",
		"playlist_id", pl.ID,
		"part_instance_id", next.ID,
		"part_id", next.Part.ID,
		"auto", auto,
	)
	if e.hub != nil {
		event := map[string]any{
			"playlist_id":      pl.ID,
			"part_instance_id": next.ID,
			"part_id":          next.Part.ID,
			"auto":             auto,
			"taken_at":         s.now,
		}
		s.lease.Defer(func() { e.hub.Broadcast(EventTake, event) })
	}
	return e.regenerate(ctx, s)
}

// resolveForTake returns the pieces of the current and next part as they
// stand right before the take, with the current part's timings.
func (e *Engine) resolveForTake(s *session) (*generator.Result, error) {
	if s.current == nil {
		res, err := lifespan.Resolve(lifespan.Input{
			Target: s.next,
			Parts:  s.parts,
			Now:    s.now,
			Window: e.cfg.SimulationWindow,
		})
		if err != nil {
			return nil, fmt.Errorf("resolving next part: %w", err)
		}
		return &generator.Result{NextPieces: res.Pieces}, nil
	}
	return generator.Build(e.snapshot(s), e.options())
}

// materialize turns resolved pieces into stored instances of pi. Infinites
// starting in this part get an estimated executedAt until playback confirms,
// placed where the generator starts them inside the part.
func materialize(pieces []*rundown.PieceInstance, pi *rundown.PartInstance, now int64, t timing.PartTimings) []*rundown.PieceInstance {
	anchor := pi.Anchor()
	if anchor <= 0 {
		anchor = now
	}
	out := make([]*rundown.PieceInstance, 0, len(pieces))
	for _, p := range pieces {
		c := p.Clone()
		c.Simulated = false
		c.PartInstanceID = pi.ID
		if c.Infinite != nil && !c.Infinite.FromPreviousPart && c.ExecutedAt <= 0 {
			c.ExecutedAt = anchor + c.Piece.Start
			if c.Piece.TransitionType.IsNone() {
				c.ExecutedAt = anchor + timing.PieceStart(c.Piece, t)
			}
		}
		out = append(out, c)
	}
	return out
}

// ensureMaterialized fills in the current part's resolved pieces when it has
// none yet. They are stored with the next regeneration.
func (e *Engine) ensureMaterialized(s *session) error {
	cur := s.current
	if len(cur.PieceInstances) > 0 {
		return nil
	}
	res, err := generator.Build(e.snapshot(s), e.options())
	if err != nil {
		return err
	}
	cur.PieceInstances = materialize(res.CurrentPieces, cur, s.now, res.CurrentTimings)
	return nil
}

// ToggleHold arms or disarms a hold. A hold needs a next part with an
// in-transition; once on air it runs its course.
func (e *Engine) ToggleHold(ctx context.Context, playlistID string) error {
	return e.withPlaylist(ctx, playlistID, PriorityPlayout, func(s *session) error {
		if !s.pl.Active {
			return ErrNotActive
		}
		if s.current == nil {
			return ErrNoCurrentPart
		}
		if s.next == nil || s.next.Part == nil {
			return ErrNoNextPart
		}

		switch s.pl.Hold {
		case rundown.HoldNone:
			if s.next.Part.InTransition == nil {
				return fmt.Errorf("%w: next part has no in-transition", ErrHoldNotAllowed)
			}
			s.pl.Hold = rundown.HoldPending
		case rundown.HoldPending:
			s.pl.Hold = rundown.HoldNone
		default:
			return fmt.Errorf("%w: hold is %s", ErrHoldNotAllowed, s.pl.Hold)
		}

		e.logger.Info("hold toggled", "playlist_id", playlistID, "hold", string(s.pl.Hold))
		return e.regenerate(ctx, s)
	})
}

// InsertAdLib adds piece to the part on air, starting now.
func (e *Engine) InsertAdLib(ctx context.Context, playlistID string, piece *rundown.Piece) (*rundown.PieceInstance, error) {
	if piece == nil {
		return nil, fmt.Errorf("%w: nil piece", rundown.ErrInvalidPiece)
	}
	p := *piece
	if p.ID == "" {
		p.ID = GenerateID()
	}
	p.Start = 0
	if err := rundown.ValidatePiece(&p); err != nil {
		return nil, err
	}

	var inserted *rundown.PieceInstance
	err := e.withPlaylist(ctx, playlistID, PriorityPlayout, func(s *session) error {
		if !s.pl.Active {
			return ErrNotActive
		}
		if s.current == nil {
			return ErrNoCurrentPart
		}
		if err := e.ensureMaterialized(s); err != nil {
			return err
		}

		if anchor := s.current.Anchor(); anchor > 0 && s.now > anchor {
			p.Start = s.now - anchor
		}

		id := lifespan.InstanceID(s.current.ID, p.ID)
		for _, existing := range s.current.PieceInstances {
			if existing.ID == id {
				return fmt.Errorf("%w: %s", ErrPieceExists, id)
			}
		}

		pi := &rundown.PieceInstance{
			ID:             id,
			PartInstanceID: s.current.ID,
			Piece:          &p,
			Adlibbed:       true,
		}
		if p.Lifespan.IsInfinite() {
			pi.Infinite = &rundown.InfiniteInfo{InfiniteInstanceID: pi.ID, InfinitePieceID: p.ID}
			pi.ExecutedAt = s.now
		}
		s.current.PieceInstances = append(s.current.PieceInstances, pi)
		s.stage(s.current)
		inserted = pi

		e.logger.Info("adlib inserted",
			"playlist_id", playlistID,
			"piece_id", p.ID,
			"layer", p.Layer,
		)
		return e.regenerate(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// StopPiecesOnLayers stops every piece of the on-air part playing on one of
// layers. It returns how many pieces were stopped.
func (e *Engine) StopPiecesOnLayers(ctx context.Context, playlistID string, layers []string) (int, error) {
	set := make(map[string]bool, len(layers))
	for _, l := range layers {
		set[l] = true
	}

	stopped := 0
	err := e.withPlaylist(ctx, playlistID, PriorityPlayout, func(s *session) error {
		if !s.pl.Active {
			return ErrNotActive
		}
		if s.current == nil {
			return ErrNoCurrentPart
		}
		if err := e.ensureMaterialized(s); err != nil {
			return err
		}

		for _, pi := range s.current.PieceInstances {
			if pi.Piece == nil || !set[pi.Piece.Layer] || pi.StoppedPlayback > 0 {
				continue
			}
			pi.StoppedPlayback = s.now
			stopped++
		}
		if stopped == 0 {
			return nil
		}
		s.stage(s.current)
		return e.regenerate(ctx, s)
	})
	if err != nil {
		return 0, err
	}
	return stopped, nil
}

// ApplyIngest replaces the parts of a playlist, creating the playlist when it
// does not exist. It runs with ingest priority so queued playout actions go
// first.
func (e *Engine) ApplyIngest(ctx context.Context, pl Playlist, parts []*rundown.Part) error {
	if pl.ID == "" {
		return fmt.Errorf("%w: playlist id is required", rundown.ErrInvalidPart)
	}
	for _, p := range parts {
		if err := rundown.ValidatePart(p); err != nil {
			return err
		}
	}
	if e.isClosed() {
		return ErrEngineClosed
	}

	lease, err := e.locks.Acquire(ctx, pl.ID, PriorityIngest)
	if err != nil {
		return fmt.Errorf("acquiring playlist lock: %w", err)
	}
	defer lease.Release()

	stored, err := e.repo.GetPlaylist(ctx, pl.ID)
	switch {
	case errors.Is(err, ErrPlaylistNotFound):
		stored = &Playlist{ID: pl.ID}
	case err != nil:
		return err
	}
	if pl.Name != "" {
		stored.Name = pl.Name
	}
	if pl.StudioID != "" {
		stored.StudioID = pl.StudioID
	}
	if err := e.repo.SavePlaylist(ctx, stored); err != nil {
		return err
	}
	if err := e.repo.ReplaceParts(ctx, pl.ID, parts); err != nil {
		return err
	}

	s, err := e.load(ctx, lease, pl.ID)
	if err != nil {
		return err
	}
	e.logger.Info("rundown ingested", "playlist_id", pl.ID, "parts", len(s.parts))
	if !s.pl.Active {
		return nil
	}

	e.refreshNext(s)
	return e.regenerate(ctx, s)
}

// refreshNext keeps the queued part in step with ingest. A queued part that
// was removed is replaced by the part following the one on air.
func (e *Engine) refreshNext(s *session) {
	if s.next != nil && s.next.Part != nil {
		if part := findPart(s.parts, s.next.Part.ID); part != nil {
			if len(s.next.PieceInstances) == 0 {
				s.next.Part = part
				s.stage(s.next)
			}
			return
		}
	}
	switch {
	case s.current != nil && s.current.Part != nil:
		e.setNext(s, partAfter(s.parts, s.current.Part.ID))
	case len(s.parts) > 0:
		e.setNext(s, s.parts[0])
	default:
		e.setNext(s, nil)
	}
}

// Regenerate rebuilds and publishes the timeline without changing state.
func (e *Engine) Regenerate(ctx context.Context, playlistID string) error {
	return e.withPlaylist(ctx, playlistID, PriorityPlayout, func(s *session) error {
		return e.regenerate(ctx, s)
	})
}

// Timeline returns the latest stored timeline of a playlist.
func (e *Engine) Timeline(ctx context.Context, playlistID string) (*timeline.Timeline, error) {
	return e.repo.GetTimeline(ctx, playlistID)
}

// Playlist returns the stored playout state of a playlist.
func (e *Engine) Playlist(ctx context.Context, playlistID string) (*Playlist, error) {
	return e.repo.GetPlaylist(ctx, playlistID)
}

// Playlists lists every known playlist.
func (e *Engine) Playlists(ctx context.Context) ([]Playlist, error) {
	return e.repo.ListPlaylists(ctx)
}

// Parts lists the parts of a playlist in rank order.
func (e *Engine) Parts(ctx context.Context, playlistID string) ([]*rundown.Part, error) {
	if _, err := e.repo.GetPlaylist(ctx, playlistID); err != nil {
		return nil, err
	}
	return e.repo.ListParts(ctx, playlistID)
}

func findPart(parts []*rundown.Part, id string) *rundown.Part {
	for _, p := range parts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// partAfter returns the part ranked right after id, or nil at the end.
func partAfter(parts []*rundown.Part, id string) *rundown.Part {
	for i, p := range parts {
		if p.ID == id && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return nil
}
