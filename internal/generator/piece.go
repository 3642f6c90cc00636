package generator

import (
	"fmt"

	"github.com/tv2/tv-automation-server-core-sub000/internal/rundown"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
	"github.com/tv2/tv-automation-server-core-sub000/internal/timing"
)

const piecePriority = 5

// groupTimings are the offsets that apply to the pieces of one parent group.
type groupTimings struct {
	inTransitionStart int64
	delay             int64
	// outKeepalive is the owning part's out-transition keepalive, zero when
	// unset or suppressed by a hold.
	outKeepalive int64
	outPostRoll  int64
}

// controlEnable computes a piece control's enable for its transition type.
// emit is false when the piece contributes nothing to this generation.
type controlEnable struct {
	parent timeline.Handle
	pi     *rundown.PieceInstance
	gt     groupTimings

	enable timeline.Enable
	emit   bool
}

func (c *controlEnable) VisitInTransition() error {
	if c.gt.inTransitionStart <= 0 {
		return nil
	}
	c.enable = timeline.Enable{
		Start:    timeline.Offset(c.gt.inTransitionStart + c.pi.Piece.Start),
		Duration: timeline.Offset(c.pi.Piece.Duration),
	}
	c.emit = true
	return nil
}

func (c *controlEnable) VisitOutTransition() error {
	if c.gt.outKeepalive <= 0 {
		return nil
	}
	c.enable = timeline.Enable{
		Start: c.parent.End().Minus(c.gt.outKeepalive, c.gt.outPostRoll),
	}
	c.emit = true
	return nil
}

func (c *controlEnable) VisitNoTransition() error {
	p := c.pi.Piece
	var start timeline.Time = timeline.Offset(timing.PieceStart(p, timing.PartTimings{DelayStartOfPiecesDuration: c.gt.delay}))
	if c.pi.Adlibbed && c.pi.StartedPlayback <= 0 {
		start = timeline.Now{}
	}
	c.enable = timeline.Enable{Start: start}

	switch {
	case c.pi.CutAt != nil:
		c.enable.End = timeline.Offset(*c.pi.CutAt)
	case p.Duration > 0:
		c.enable.Duration = timeline.Offset(p.Duration)
	case p.PostRollDuration > 0:
		c.enable.End = c.parent.End().Minus(p.PostRollDuration)
	default:
		c.enable.Duration = timeline.Offset(0)
	}
	c.emit = true
	return nil
}

// addPiece renders the control, pre-roll and content subgraph of pi under
// parent. It reports whether anything was emitted.
func addPiece(g *timeline.Graph, parent timeline.Handle, pi *rundown.PieceInstance, gt groupTimings, meta timeline.Metadata) (bool, error) {
	if pi == nil || pi.Piece == nil {
		return false, nil
	}
	p := pi.Piece

	ce := &controlEnable{parent: parent, pi: pi, gt: gt}
	if err := p.TransitionType.Accept(ce); err != nil {
		return false, fmt.Errorf("piece %s: %w", pi.ID, err)
	}
	if !ce.emit {
		return false, nil
	}

	meta.PieceInstanceID = pi.ID
	if pi.Infinite != nil {
		meta.InfiniteInstanceID = pi.Infinite.InfiniteInstanceID
	}

	controlID := parent.ID() + "_ctrl_" + pi.ID
	enable := ce.enable

	if start, ok := enable.Start.(timeline.Offset); ok && start == 0 && p.PreRollDuration > 0 {
		prerollMeta := meta
		prerollMeta.Kind = timeline.KindPreRoll
		pre, err := g.AddChild(parent, &timeline.Object{
			ID:       controlID + "_preroll",
			Layer:    p.Layer,
			Priority: piecePriority,
			Enable: timeline.Enable{
				Start:    parent.Start(),
				Duration: timeline.Offset(p.PreRollDuration),
			},
			Metadata: prerollMeta,
		})
		if err != nil {
			return false, err
		}
		enable.Start = pre.Self(p.PreRollDuration)
	}

	controlMeta := meta
	controlMeta.Kind = timeline.KindControl
	ctrl, err := g.AddChild(parent, &timeline.Object{
		ID:       controlID,
		Layer:    p.Layer,
		Priority: piecePriority,
		Enable:   enable,
		Content:  map[string]any{"type": "piece", "pieceId": p.ID},
		Metadata: controlMeta,
	})
	if err != nil {
		return false, err
	}

	contentMeta := meta
	contentMeta.Kind = timeline.KindContentGroup
	grp, err := g.AddChild(parent, &timeline.Object{
		ID:      parent.ID() + "_grp_" + pi.ID,
		Layer:   p.Layer,
		IsGroup: true,
		Enable: timeline.Enable{
			Start: ctrl.Start().Minus(p.PreRollDuration),
			End:   ctrl.End().Minus(p.PostRollDuration),
		},
		Metadata: contentMeta,
	})
	if err != nil {
		return false, err
	}

	deviceMeta := meta
	deviceMeta.Kind = timeline.KindDevice
	prefix := grp.ID() + "_" + p.ID + "_"
	for _, src := range p.Objects {
		if err := addDeviceObject(g, grp, src, prefix, p.Layer, deviceMeta); err != nil {
			return false, err
		}
	}
	return true, nil
}

// addDeviceObject clones src (and any nested objects) into parent. Ids are
// prefixed so the same piece can appear in several groups of one generation.
func addDeviceObject(g *timeline.Graph, parent timeline.Handle, src *timeline.Object, prefix, layer string, meta timeline.Metadata) error {
	if src == nil {
		return nil
	}
	obj := src.Clone()
	children := obj.Children
	obj.Children = nil
	obj.ID = prefix + src.ID
	if obj.Layer == "" {
		obj.Layer = layer
	}
	if obj.Enable.IsZero() {
		obj.Enable = timeline.Enable{Start: timeline.Offset(0)}
	}
	obj.Metadata = meta

	h, err := g.AddChild(parent, obj)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := addDeviceObject(g, h, child, prefix, layer, meta); err != nil {
			return err
		}
	}
	return nil
}
