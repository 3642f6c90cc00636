package rundown

import (
	"fmt"
	"strings"
)

// ValidatePart checks an authored part before it is accepted from ingest.
// Transition pieces whose part lacks the matching transition metadata are
// accepted; the builder drops them at generation time.
func ValidatePart(p *Part) error {
	if p == nil {
		return fmt.Errorf("%w: nil part", ErrInvalidPart)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPart)
	}
	if p.ExpectedDuration < 0 {
		return fmt.Errorf("%w: %s: negative expected duration", ErrInvalidPart, p.ID)
	}
	if it := p.InTransition; it != nil {
		if it.LeadDuration < 0 || it.BlockTakeDuration < 0 ||
			it.PreviousPartKeepaliveDuration < 0 || it.PartContentDelayDuration < 0 {
			return fmt.Errorf("%w: %s: negative in-transition duration", ErrInvalidPart, p.ID)
		}
	}
	if ot := p.OutTransition; ot != nil && ot.KeepaliveDuration < 0 {
		return fmt.Errorf("%w: %s: negative out-transition keepalive", ErrInvalidPart, p.ID)
	}

	seen := make(map[string]struct{}, len(p.Pieces))
	for _, piece := range p.Pieces {
		if err := ValidatePiece(piece); err != nil {
			return fmt.Errorf("part %s: %w", p.ID, err)
		}
		if _, dup := seen[piece.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate piece id %q", ErrInvalidPart, p.ID, piece.ID)
		}
		seen[piece.ID] = struct{}{}
	}
	return nil
}

// ValidatePiece checks a single authored piece.
func ValidatePiece(p *Piece) error {
	if p == nil {
		return fmt.Errorf("%w: nil piece", ErrInvalidPiece)
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPiece)
	}
	if strings.TrimSpace(p.Layer) == "" {
		return fmt.Errorf("%w: %s: layer is required", ErrInvalidPiece, p.ID)
	}
	if p.Start < 0 || p.Duration < 0 || p.PreRollDuration < 0 || p.PostRollDuration < 0 {
		return fmt.Errorf("%w: %s: negative timing", ErrInvalidPiece, p.ID)
	}
	if !p.Lifespan.Valid() {
		return fmt.Errorf("%w: %s: unknown lifespan %q", ErrInvalidPiece, p.ID, p.Lifespan)
	}
	if err := p.TransitionType.Accept(noopTransition{}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPiece, p.ID, err)
	}
	for _, obj := range p.Objects {
		if obj == nil || obj.ID == "" {
			return fmt.Errorf("%w: %s: device object without id", ErrInvalidPiece, p.ID)
		}
	}
	return nil
}

type noopTransition struct{}

func (noopTransition) VisitInTransition() error  { return nil }
func (noopTransition) VisitOutTransition() error { return nil }
func (noopTransition) VisitNoTransition() error  { return nil }
