package timeline

import (
	"strconv"
	"strings"
)

// Edge selects which boundary of a referenced object a Ref points at.
type Edge int

const (
	// EdgeSelf lowers to a bare "#id", which the resolver reads as the start.
	EdgeSelf Edge = iota
	// EdgeStart lowers to "#id.start".
	EdgeStart
	// EdgeEnd lowers to "#id.end".
	EdgeEnd
)

// Time is a boundary of an Enable window. The concrete variants are Offset,
// Ref, Now and Always; consumers switch on them through a TimeVisitor.
type Time interface {
	Accept(v TimeVisitor)
}

// TimeVisitor must be implemented in full by every consumer of Time, so adding
// a variant breaks every consumer at compile time.
type TimeVisitor interface {
	VisitOffset(t Offset)
	VisitRef(t Ref)
	VisitNow(t Now)
	VisitAlways(t Always)
}

// Offset is a time in milliseconds.
type Offset int64

// Ref is a time relative to another object of the same generation.
type Ref struct {
	Target string
	Edge   Edge
	// Terms are added in order; negative terms lower as "- n".
	Terms []int64
}

// Now is the sentinel start resolved by the playout device.
type Now struct{}

// Always marks an object as enabled for as long as the timeline exists.
type Always struct{}

// Accept implements Time.
func (t Offset) Accept(v TimeVisitor) { v.VisitOffset(t) }

// Accept implements Time.
func (t Ref) Accept(v TimeVisitor) { v.VisitRef(t) }

// Accept implements Time.
func (t Now) Accept(v TimeVisitor) { v.VisitNow(t) }

// Accept implements Time.
func (t Always) Accept(v TimeVisitor) { v.VisitAlways(t) }

// Plus returns a copy of r with an extra term. Zero terms are skipped.
func (r Ref) Plus(terms ...int64) Ref {
	out := Ref{Target: r.Target, Edge: r.Edge}
	out.Terms = append(out.Terms, r.Terms...)
	for _, t := range terms {
		if t != 0 {
			out.Terms = append(out.Terms, t)
		}
	}
	return out
}

// Minus is Plus with every term negated.
func (r Ref) Minus(terms ...int64) Ref {
	neg := make([]int64, len(terms))
	for i, t := range terms {
		neg[i] = -t
	}
	return r.Plus(neg...)
}

// String lowers the reference to the wire syntax.
func (r Ref) String() string {
	var b strings.Builder
	b.WriteByte('#')
	b.WriteString(r.Target)
	switch r.Edge {
	case EdgeStart:
		b.WriteString(".start")
	case EdgeEnd:
		b.WriteString(".end")
	case EdgeSelf:
	}
	for _, t := range r.Terms {
		if t < 0 {
			b.WriteString(" - ")
			b.WriteString(strconv.FormatInt(-t, 10))
		} else {
			b.WriteString(" + ")
			b.WriteString(strconv.FormatInt(t, 10))
		}
	}
	return b.String()
}

// wireValue lowers a Time to its JSON representation.
type wireValue struct {
	value any
}

func (w *wireValue) VisitOffset(t Offset) { w.value = int64(t) }
func (w *wireValue) VisitRef(t Ref)       { w.value = t.String() }
func (w *wireValue) VisitNow(Now)         { w.value = "now" }
func (w *wireValue) VisitAlways(Always)   { w.value = "1" }

// Lower returns the wire representation of t: an int64 or a string.
func Lower(t Time) any {
	if t == nil {
		return nil
	}
	var w wireValue
	t.Accept(&w)
	return w.value
}

// String returns the wire form of t as text, which is handy in logs and tests.
func String(t Time) string {
	switch v := Lower(t).(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	default:
		return ""
	}
}

// refCollector gathers the targets of every Ref it visits.
type refCollector struct {
	targets []string
}

func (c *refCollector) VisitOffset(Offset) {}
func (c *refCollector) VisitRef(t Ref)     { c.targets = append(c.targets, t.Target) }
func (c *refCollector) VisitNow(Now)       {}
func (c *refCollector) VisitAlways(Always) {}

// Parse reads a wire expression. Numbers become Offset, "now" becomes Now,
// "#id[.start|.end] (+|- n)*" becomes Ref.
func Parse(expr string) (Time, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, ErrInvalidExpression
	}
	if s == "now" {
		return Now{}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Offset(n), nil
	}
	if s[0] != '#' {
		return nil, wrapExpr(expr)
	}

	fields := strings.Fields(s[1:])
	if len(fields) == 0 || len(fields)%2 != 1 {
		return nil, wrapExpr(expr)
	}

	ref := Ref{Target: fields[0], Edge: EdgeSelf}
	switch {
	case strings.HasSuffix(ref.Target, ".start"):
		ref.Target = strings.TrimSuffix(ref.Target, ".start")
		ref.Edge = EdgeStart
	case strings.HasSuffix(ref.Target, ".end"):
		ref.Target = strings.TrimSuffix(ref.Target, ".end")
		ref.Edge = EdgeEnd
	}
	if ref.Target == "" {
		return nil, wrapExpr(expr)
	}

	for i := 1; i < len(fields); i += 2 {
		n, err := strconv.ParseInt(fields[i+1], 10, 64)
		if err != nil {
			return nil, wrapExpr(expr)
		}
		switch fields[i] {
		case "+":
			ref.Terms = append(ref.Terms, n)
		case "-":
			ref.Terms = append(ref.Terms, -n)
		default:
			return nil, wrapExpr(expr)
		}
	}
	return ref, nil
}

func wrapExpr(expr string) error {
	return &exprError{expr: expr}
}

type exprError struct {
	expr string
}

func (e *exprError) Error() string {
	return ErrInvalidExpression.Error() + ": " + strconv.Quote(e.expr)
}

func (e *exprError) Unwrap() error { return ErrInvalidExpression }
