package rundown

import (
	"encoding/json"
	"fmt"

	"github.com/tv2/tv-automation-server-core-sub000/internal/timeline"
)

// PieceLifespan governs how long a piece stays on air.
type PieceLifespan string

// Lifespan values.
const (
	LifespanWithinPart               PieceLifespan = "WITHIN_PART"
	LifespanStickyUntilSegmentChange PieceLifespan = "STICKY_UNTIL_SEGMENT_CHANGE"
	LifespanSpanningUntilSegmentEnd  PieceLifespan = "SPANNING_UNTIL_SEGMENT_END"
	LifespanStickyUntilRundownChange PieceLifespan = "STICKY_UNTIL_RUNDOWN_CHANGE"
	LifespanSpanningUntilRundownEnd  PieceLifespan = "SPANNING_UNTIL_RUNDOWN_END"
)

// LifespanScope is the boundary an infinite cannot cross.
type LifespanScope int

// Scope values.
const (
	ScopePart LifespanScope = iota
	ScopeSegment
	ScopeRundown
)

// IsInfinite reports whether the piece can outlive its part.
func (l PieceLifespan) IsInfinite() bool {
	return l != "" && l != LifespanWithinPart
}

// Scope returns the boundary for the lifespan.
func (l PieceLifespan) Scope() LifespanScope {
	switch l {
	case LifespanStickyUntilSegmentChange, LifespanSpanningUntilSegmentEnd:
		return ScopeSegment
	case LifespanStickyUntilRundownChange, LifespanSpanningUntilRundownEnd:
		return ScopeRundown
	default:
		return ScopePart
	}
}

// IsSticky reports whether the infinite survives a backwards move in its scope.
func (l PieceLifespan) IsSticky() bool {
	return l == LifespanStickyUntilSegmentChange || l == LifespanStickyUntilRundownChange
}

// Valid reports whether l is a known lifespan. Empty means WITHIN_PART.
func (l PieceLifespan) Valid() bool {
	switch l {
	case "", LifespanWithinPart, LifespanStickyUntilSegmentChange, LifespanSpanningUntilSegmentEnd,
		LifespanStickyUntilRundownChange, LifespanSpanningUntilRundownEnd:
		return true
	}
	return false
}

// TransitionType classifies a piece relative to the part transition.
type TransitionType string

// Transition values.
const (
	TransitionIn   TransitionType = "IN_TRANSITION"
	TransitionOut  TransitionType = "OUT_TRANSITION"
	TransitionNone TransitionType = "NO_TRANSITION"
)

// TransitionVisitor handles every transition type. Implementations must cover
// all variants; Accept reports unknown values as ErrUnsupportedOperation.
type TransitionVisitor interface {
	VisitInTransition() error
	VisitOutTransition() error
	VisitNoTransition() error
}

// Accept dispatches t to the matching visitor method. An empty value is
// ordinary content.
func (t TransitionType) Accept(v TransitionVisitor) error {
	switch t {
	case TransitionIn:
		return v.VisitInTransition()
	case TransitionOut:
		return v.VisitOutTransition()
	case TransitionNone, "":
		return v.VisitNoTransition()
	default:
		return fmt.Errorf("%w: transition type %q", ErrUnsupportedOperation, string(t))
	}
}

// IsNone reports whether the piece is ordinary content.
func (t TransitionType) IsNone() bool {
	return t == TransitionNone || t == ""
}

// Piece is an authored content unit on a device layer.
type Piece struct {
	ID               string             `json:"id"`
	Name             string             `json:"name,omitempty"`
	Layer            string             `json:"layer"`
	Start            int64              `json:"start"`
	Duration         int64              `json:"duration,omitempty"`
	PreRollDuration  int64              `json:"preRollDuration,omitempty"`
	PostRollDuration int64              `json:"postRollDuration,omitempty"`
	TransitionType   TransitionType     `json:"transitionType,omitempty"`
	Lifespan         PieceLifespan      `json:"lifespan,omitempty"`
	Objects          []*timeline.Object `json:"objects,omitempty"`
	Content          map[string]any     `json:"content,omitempty"`
}

// InTransition describes how a part is taken in.
type InTransition struct {
	// LeadDuration is the time before in-transition pieces start.
	LeadDuration int64 `json:"leadDuration"`
	// BlockTakeDuration blocks further takes while the transition plays.
	BlockTakeDuration int64 `json:"blockTakeDuration"`
	// PreviousPartKeepaliveDuration keeps the previous part on air.
	PreviousPartKeepaliveDuration int64 `json:"previousPartKeepaliveDuration"`
	// PartContentDelayDuration delays ordinary pieces of the new part.
	PartContentDelayDuration int64 `json:"partContentDelayDuration"`
}

// OutTransition describes how a part is taken out.
type OutTransition struct {
	KeepaliveDuration int64 `json:"keepaliveDuration"`
}

// Part is an ordered playable step of a rundown.
type Part struct {
	ID               string         `json:"id"`
	RundownID        string         `json:"rundownId"`
	SegmentID        string         `json:"segmentId"`
	Title            string         `json:"title,omitempty"`
	Rank             float64        `json:"rank"`
	ExpectedDuration int64          `json:"expectedDuration,omitempty"`
	AutoNext         bool           `json:"autoNext,omitempty"`
	InTransition     *InTransition  `json:"inTransition,omitempty"`
	OutTransition    *OutTransition `json:"outTransition,omitempty"`
	Pieces           []*Piece       `json:"pieces,omitempty"`
}

// PartTimings are the recorded instants of a part instance. Zero means unset.
type PartTimings struct {
	SetAsNext       int64 `json:"setAsNext,omitempty"`
	Take            int64 `json:"take,omitempty"`
	StartedPlayback int64 `json:"startedPlayback,omitempty"`
	StoppedPlayback int64 `json:"stoppedPlayback,omitempty"`
}

// PartEndState is carry-over state a blueprint records when a part is left.
type PartEndState map[string]any

// PartInstance is one playback of a Part.
type PartInstance struct {
	ID                   string           `json:"id"`
	PlaylistID           string           `json:"playlistId"`
	Part                 *Part            `json:"part"`
	Timings              PartTimings      `json:"timings"`
	PieceInstances       []*PieceInstance `json:"pieceInstances,omitempty"`
	PreviousPartEndState PartEndState     `json:"previousPartEndState,omitempty"`
	Rehearsal            bool             `json:"rehearsal,omitempty"`
}

// Anchor returns the best known on-air instant: confirmed playback, else take.
func (pi *PartInstance) Anchor() int64 {
	if pi == nil {
		return 0
	}
	if pi.Timings.StartedPlayback > 0 {
		return pi.Timings.StartedPlayback
	}
	return pi.Timings.Take
}

// InfiniteInfo links a piece instance to the infinite chain it belongs to.
type InfiniteInfo struct {
	// InfiniteInstanceID is shared by every instance continuing one infinite.
	InfiniteInstanceID string `json:"infiniteInstanceId"`
	InfinitePieceID    string `json:"infinitePieceId"`
	// FromPreviousPart is set when the instance continues an infinite that
	// started in an earlier part.
	FromPreviousPart bool `json:"fromPreviousPart,omitempty"`
}

// PieceInstance is one playback of a Piece inside a PartInstance.
type PieceInstance struct {
	ID             string        `json:"id"`
	PartInstanceID string        `json:"partInstanceId"`
	Piece          *Piece        `json:"piece"`
	Infinite       *InfiniteInfo `json:"infinite,omitempty"`
	// ExecutedAt is the absolute start of an infinite's first playback.
	ExecutedAt      int64 `json:"executedAt,omitempty"`
	StartedPlayback int64 `json:"startedPlayback,omitempty"`
	StoppedPlayback int64 `json:"stoppedPlayback,omitempty"`
	// CutAt truncates the piece relative to its part start.
	CutAt     *int64 `json:"cutAt,omitempty"`
	Adlibbed  bool   `json:"adlibbed,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
}

// IsInfinite reports whether the instance takes part in an infinite chain.
func (p *PieceInstance) IsInfinite() bool {
	return p != nil && p.Infinite != nil
}

// Clone returns a deep-enough copy for mutation by the resolver.
func (p *PieceInstance) Clone() *PieceInstance {
	if p == nil {
		return nil
	}
	c := *p
	if p.Infinite != nil {
		inf := *p.Infinite
		c.Infinite = &inf
	}
	if p.CutAt != nil {
		v := *p.CutAt
		c.CutAt = &v
	}
	return &c
}

// HoldState tracks the two-take hold sequence.
type HoldState string

// Hold values.
const (
	HoldNone     HoldState = ""
	HoldPending  HoldState = "pending"
	HoldActive   HoldState = "active"
	HoldComplete HoldState = "complete"
)

// PlayoutSnapshot is the immutable input of one regeneration.
type PlayoutSnapshot struct {
	PlaylistID string
	Now        int64
	Hold       HoldState
	// Baseline objects from the studio configuration.
	Baseline []*timeline.Object
	Previous *PartInstance
	Current  *PartInstance
	Next     *PartInstance
	// Parts of the playlist in rank order.
	Parts []*Part
	// PersistentState is opaque blueprint state threaded between generations.
	PersistentState json.RawMessage
}
