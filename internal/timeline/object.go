package timeline

import (
	"encoding/json"
	"fmt"
)

// Object kinds recorded in Metadata.Kind.
const (
	KindBaseline     = "baseline"
	KindPartGroup    = "part_group"
	KindInfinite     = "infinite_group"
	KindControl      = "piece_control"
	KindPreRoll      = "piece_preroll"
	KindContentGroup = "piece_content"
	KindDevice       = "device_object"
)

// Enable is the activity window of an Object. Unset fields are nil.
type Enable struct {
	Start    Time
	End      Time
	Duration Time
	While    Time
}

// IsZero reports whether no boundary is set.
func (e Enable) IsZero() bool {
	return e.Start == nil && e.End == nil && e.Duration == nil && e.While == nil
}

// Equal compares two enables by their wire form.
func (e Enable) Equal(o Enable) bool {
	return String(e.Start) == String(o.Start) &&
		String(e.End) == String(o.End) &&
		String(e.Duration) == String(o.Duration) &&
		String(e.While) == String(o.While)
}

type wireEnable struct {
	Start    any `json:"start,omitempty"`
	End      any `json:"end,omitempty"`
	Duration any `json:"duration,omitempty"`
	While    any `json:"while,omitempty"`
}

// MarshalJSON lowers every boundary to the wire syntax.
func (e Enable) MarshalJSON() ([]byte, error) {
	// omitempty only drops nil interfaces, so an explicit 0 survives.
	return json.Marshal(wireEnable{
		Start:    Lower(e.Start),
		End:      Lower(e.End),
		Duration: Lower(e.Duration),
		While:    Lower(e.While),
	})
}

// UnmarshalJSON parses the wire syntax back into typed boundaries.
func (e *Enable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Enable{}
	for key, val := range raw {
		t, err := parseWire(val)
		if err != nil {
			return fmt.Errorf("enable.%s: %w", key, err)
		}
		switch key {
		case "start":
			e.Start = t
		case "end":
			e.End = t
		case "duration":
			e.Duration = t
		case "while":
			// "1" and 1 both mean always-on.
			if o, ok := t.(Offset); ok && o == 1 {
				t = Always{}
			}
			e.While = t
		}
	}
	return nil
}

func parseWire(val json.RawMessage) (Time, error) {
	var n int64
	if err := json.Unmarshal(val, &n); err == nil {
		return Offset(n), nil
	}
	var s string
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpression, string(val))
	}
	return Parse(s)
}

// Metadata links a generated object back to the playout state it came from.
type Metadata struct {
	Kind               string `json:"kind,omitempty"`
	PartInstanceID     string `json:"partInstanceId,omitempty"`
	PieceInstanceID    string `json:"pieceInstanceId,omitempty"`
	InfiniteInstanceID string `json:"infiniteInstanceId,omitempty"`
}

// Object is a node of the timeline graph. Groups carry Children.
type Object struct {
	ID       string         `json:"id"`
	Layer    string         `json:"layer"`
	Enable   Enable         `json:"enable"`
	Priority int            `json:"priority"`
	Content  map[string]any `json:"content,omitempty"`
	IsGroup  bool           `json:"isGroup,omitempty"`
	Children []*Object      `json:"children,omitempty"`
	InGroup  string         `json:"inGroup,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

// Clone returns a deep copy of o. Content maps and children are not shared.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := *o
	c.Content = deepCopyMap(o.Content)
	if o.Children != nil {
		c.Children = make([]*Object, len(o.Children))
		for i, child := range o.Children {
			c.Children[i] = child.Clone()
		}
	}
	c.Enable = o.Enable.clone()
	return &c
}

func (e Enable) clone() Enable {
	return Enable{
		Start:    cloneTime(e.Start),
		End:      cloneTime(e.End),
		Duration: cloneTime(e.Duration),
		While:    cloneTime(e.While),
	}
}

func cloneTime(t Time) Time {
	if r, ok := t.(Ref); ok {
		return r.Plus()
	}
	return t
}

// Walk visits o and every descendant depth-first.
func (o *Object) Walk(fn func(*Object)) {
	if o == nil {
		return
	}
	fn(o)
	for _, c := range o.Children {
		c.Walk(fn)
	}
}

// AutoNext carries the instant at which an automatic take is due.
type AutoNext struct {
	EpochTimeToTakeNext int64 `json:"epochTimeToTakeNext"`
}

// Timeline is one complete generation of the device timeline.
type Timeline struct {
	PlaylistID  string    `json:"playlistId,omitempty"`
	Generation  int64     `json:"generation"`
	GeneratedAt int64     `json:"generatedAt"`
	Groups      []*Object `json:"groups"`
	AutoNext    *AutoNext `json:"autoNext,omitempty"`
}

// Clone returns a deep copy of tl.
func (tl *Timeline) Clone() *Timeline {
	if tl == nil {
		return nil
	}
	c := *tl
	c.Groups = make([]*Object, len(tl.Groups))
	for i, g := range tl.Groups {
		c.Groups[i] = g.Clone()
	}
	if tl.AutoNext != nil {
		an := *tl.AutoNext
		c.AutoNext = &an
	}
	return &c
}

// Find returns the object with the given id anywhere in the forest.
func (tl *Timeline) Find(id string) *Object {
	var found *Object
	for _, g := range tl.Groups {
		g.Walk(func(o *Object) {
			if found == nil && o.ID == id {
				found = o
			}
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// Count returns the number of objects in the forest.
func (tl *Timeline) Count() int {
	n := 0
	for _, g := range tl.Groups {
		g.Walk(func(*Object) { n++ })
	}
	return n
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = deepCopyValue(item)
		}
		return s
	default:
		return v
	}
}
