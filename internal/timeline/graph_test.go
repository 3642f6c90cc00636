package timeline

import (
	"errors"
	"testing"
)

// ─── Graph ──────────────────────────────────────────────────────

func TestGraphAddChildSetsParent(t *testing.T) {
	g := NewGraph()
	root, err := g.AddRoot(&Object{ID: "grp", Enable: Enable{Start: Offset(1000)}})
	if err != nil {
		t.Fatalf("AddRoot: %v", err)
	}
	child, err := g.AddChild(root, &Object{ID: "ctrl", Enable: Enable{Start: root.Start(10)}})
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}

	if child.Object().InGroup != "grp" {
		t.Errorf("InGroup = %q, want grp", child.Object().InGroup)
	}
	if !root.Object().IsGroup {
		t.Error("parent not marked as group")
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}
	if String(child.Object().Enable.Start) != "#grp.start + 10" {
		t.Errorf("start = %q", String(child.Object().Enable.Start))
	}
}

func TestGraphRejectsDuplicateID(t *testing.T) {
	g := NewGraph()
	if _, err := g.AddRoot(&Object{ID: "a"}); err != nil {
		t.Fatalf("AddRoot: %v", err)
	}
	if _, err := g.AddRoot(&Object{ID: "a"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("second AddRoot error = %v, want ErrDuplicateID", err)
	}
}

func TestGraphRejectsForeignHandle(t *testing.T) {
	g1 := NewGraph()
	g2 := NewGraph()
	h, _ := g1.AddRoot(&Object{ID: "a"})
	if _, err := g2.AddChild(h, &Object{ID: "b"}); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("AddChild error = %v, want ErrUnknownHandle", err)
	}
}

// ─── Validate ───────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Run("resolvable references", func(t *testing.T) {
		tl := &Timeline{Groups: []*Object{
			{ID: "a", Enable: Enable{Start: Offset(1)}},
			{ID: "b", Enable: Enable{Start: Ref{Target: "a", Edge: EdgeEnd}}},
		}}
		if err := Validate(tl); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})

	t.Run("dangling reference", func(t *testing.T) {
		tl := &Timeline{Groups: []*Object{
			{ID: "b", Enable: Enable{Start: Ref{Target: "missing", Edge: EdgeEnd}}},
		}}
		if err := Validate(tl); !errors.Is(err, ErrUnresolvedReference) {
			t.Errorf("Validate error = %v, want ErrUnresolvedReference", err)
		}
	})

	t.Run("duplicate nested id", func(t *testing.T) {
		tl := &Timeline{Groups: []*Object{
			{ID: "a", IsGroup: true, Children: []*Object{{ID: "x", InGroup: "a"}}},
			{ID: "b", IsGroup: true, Children: []*Object{{ID: "x", InGroup: "b"}}},
		}}
		if err := Validate(tl); !errors.Is(err, ErrDuplicateID) {
			t.Errorf("Validate error = %v, want ErrDuplicateID", err)
		}
	})
}

// ─── Clone ──────────────────────────────────────────────────────

func TestObjectCloneIsDeep(t *testing.T) {
	orig := &Object{
		ID:      "grp",
		Content: map[string]any{"nested": map[string]any{"level": 1.0}},
		Enable:  Enable{Start: Ref{Target: "x", Edge: EdgeEnd, Terms: []int64{5}}},
		Children: []*Object{
			{ID: "child", Content: map[string]any{"k": "v"}},
		},
	}
	c := orig.Clone()
	c.Content["nested"].(map[string]any)["level"] = 2.0
	c.Children[0].Content["k"] = "changed"
	c.Enable.Start.(Ref).Terms[0] = 99

	if orig.Content["nested"].(map[string]any)["level"] != 1.0 {
		t.Error("nested content aliased")
	}
	if orig.Children[0].Content["k"] != "v" {
		t.Error("child content aliased")
	}
	if String(orig.Enable.Start) != "#x.end + 5" {
		t.Errorf("enable aliased: %q", String(orig.Enable.Start))
	}
}

func TestTimelineFind(t *testing.T) {
	tl := &Timeline{Groups: []*Object{
		{ID: "a", Children: []*Object{{ID: "a1"}, {ID: "a2", Children: []*Object{{ID: "deep"}}}}},
	}}
	if o := tl.Find("deep"); o == nil || o.ID != "deep" {
		t.Errorf("Find(deep) = %v", o)
	}
	if o := tl.Find("nope"); o != nil {
		t.Errorf("Find(nope) = %v, want nil", o)
	}
	if tl.Count() != 4 {
		t.Errorf("Count() = %d, want 4", tl.Count())
	}
}
