package timeline

import "fmt"

// Handle identifies a node added to a Graph. References to other nodes can
// only be built from a Handle, so every Ref the builder emits targets a node
// that exists in the same generation.
type Handle struct {
	id    string
	graph *Graph
}

// ID returns the id of the node.
func (h Handle) ID() string { return h.id }

// Start references the node's start edge.
func (h Handle) Start(terms ...int64) Ref {
	return Ref{Target: h.id, Edge: EdgeStart}.Plus(terms...)
}

// End references the node's end edge.
func (h Handle) End(terms ...int64) Ref {
	return Ref{Target: h.id, Edge: EdgeEnd}.Plus(terms...)
}

// Self references the node without an edge suffix ("#id + 10").
func (h Handle) Self(terms ...int64) Ref {
	return Ref{Target: h.id, Edge: EdgeSelf}.Plus(terms...)
}

// Object returns the node the handle points at.
func (h Handle) Object() *Object {
	if h.graph == nil {
		return nil
	}
	return h.graph.nodes[h.id]
}

// Graph assembles a timeline forest. Not safe for concurrent use; one Graph
// belongs to one generation.
type Graph struct {
	roots []*Object
	nodes map[string]*Object
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Object)}
}

// AddRoot appends a top-level group.
func (g *Graph) AddRoot(obj *Object) (Handle, error) {
	if err := g.register(obj); err != nil {
		return Handle{}, err
	}
	obj.InGroup = ""
	g.roots = append(g.roots, obj)
	return Handle{id: obj.ID, graph: g}, nil
}

// AddChild appends obj to the group identified by parent.
func (g *Graph) AddChild(parent Handle, obj *Object) (Handle, error) {
	p, ok := g.nodes[parent.id]
	if !ok || parent.graph != g {
		return Handle{}, fmt.Errorf("%w: %q", ErrUnknownHandle, parent.id)
	}
	if err := g.register(obj); err != nil {
		return Handle{}, err
	}
	p.IsGroup = true
	obj.InGroup = p.ID
	p.Children = append(p.Children, obj)
	return Handle{id: obj.ID, graph: g}, nil
}

func (g *Graph) register(obj *Object) error {
	if obj == nil || obj.ID == "" {
		return fmt.Errorf("%w: empty id", ErrDuplicateID)
	}
	if _, exists := g.nodes[obj.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, obj.ID)
	}
	g.nodes[obj.ID] = obj
	return nil
}

// Lookup returns the handle for an id already in the graph.
func (g *Graph) Lookup(id string) (Handle, bool) {
	if _, ok := g.nodes[id]; !ok {
		return Handle{}, false
	}
	return Handle{id: id, graph: g}, true
}

// Groups returns the root groups in insertion order.
func (g *Graph) Groups() []*Object {
	out := make([]*Object, len(g.roots))
	copy(out, g.roots)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }
