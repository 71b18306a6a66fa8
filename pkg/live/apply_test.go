package live

import (
	"errors"
	"testing"

	"github.com/loom-ui/loom/pkg/vdom"
)

// applyDiff instantiates old, applies diff(old, new) and asserts the live
// tree now matches a fresh instantiation of new. This is the fundamental
// contract: full, in-order replay transforms the live output.
func applyDiff(t *testing.T, old, new *vdom.VNode) *Tree {
	t.Helper()

	tree, err := Instantiate(old)
	if err != nil {
		t.Fatalf("Instantiate(old) error = %v", err)
	}
	patches, err := vdom.Diff(old, new)
	if err != nil {
		t.Fatalf("Diff() error = %v", err)
	}
	if err := tree.Apply(patches); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want, err := Instantiate(new)
	if err != nil {
		t.Fatalf("Instantiate(new) error = %v", err)
	}
	if got, wantHTML := tree.HTML(), want.HTML(); got != wantHTML {
		t.Errorf("after apply:\n got  %q\n want %q", got, wantHTML)
	}
	return tree
}

func TestApplyTextChange(t *testing.T) {
	applyDiff(t,
		vdom.Div(nil, vdom.P(nil, vdom.Text("old"))),
		vdom.Div(nil, vdom.P(nil, vdom.Text("new"))),
	)
}

func TestApplyPropDelta(t *testing.T) {
	applyDiff(t,
		vdom.Div(vdom.Props{"class": "a", "id": "x"}),
		vdom.Div(vdom.Props{"class": "b"}),
	)
}

func TestApplyChildListGrowthAndShrink(t *testing.T) {
	one := vdom.Ul(nil, vdom.Li(nil, vdom.Text("1")))
	three := vdom.Ul(nil,
		vdom.Li(nil, vdom.Text("1")),
		vdom.Li(nil, vdom.Text("2")),
		vdom.Li(nil, vdom.Text("3")),
	)
	applyDiff(t, one, three)
	applyDiff(t, three, one)
}

func keyedList(keys ...string) *vdom.VNode {
	children := make([]*vdom.VNode, len(keys))
	for i, k := range keys {
		children[i] = vdom.Li(vdom.Props{"key": k}, vdom.Text(k))
	}
	return vdom.Ul(nil, children...)
}

func TestApplyKeyedReorder(t *testing.T) {
	applyDiff(t, keyedList("A", "B", "C"), keyedList("C", "A", "B"))
	applyDiff(t, keyedList("A", "B", "C"), keyedList("C", "B", "A"))
	applyDiff(t, keyedList("A", "B", "C", "D"), keyedList("D", "B", "A", "C"))
}

func TestApplyKeyedChurn(t *testing.T) {
	applyDiff(t, keyedList("A", "B", "C"), keyedList("B", "D"))
	applyDiff(t, keyedList(), keyedList("A", "B"))
	applyDiff(t, keyedList("A", "B"), keyedList())
	applyDiff(t, keyedList("A"), keyedList("B", "A", "C"))
}

func TestApplyReplaceSubtree(t *testing.T) {
	applyDiff(t,
		vdom.Div(nil, vdom.P(nil, vdom.Text("x"))),
		vdom.Div(nil, vdom.Span(nil, vdom.Text("y"))),
	)
}

func TestApplyRootReplace(t *testing.T) {
	applyDiff(t, vdom.Div(nil), vdom.Span(nil, vdom.Text("r")))
}

func TestApplyPropKindChange(t *testing.T) {
	// Handler becomes a plain attribute: removal must land before the add
	// so the slots never collide.
	fired := false
	old := vdom.Button(vdom.Props{"onclick": func() { fired = true }})
	new := vdom.Button(vdom.Props{"onclick": "noop()"})
	tree := applyDiff(t, old, new)

	// The handler binding must be gone.
	tree.Dispatch(nil, vdom.Event{Type: "click"})
	if fired {
		t.Error("stale handler still bound after prop kind change")
	}
}

func TestApplyUpdatesHandlerBinding(t *testing.T) {
	first, second := 0, 0
	old := vdom.Button(vdom.Props{"onclick": func() { first++ }})
	new := vdom.Button(vdom.Props{"onclick": func() { second++ }})

	tree, err := Instantiate(old)
	if err != nil {
		t.Fatal(err)
	}
	patches, err := vdom.Diff(old, new)
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Apply(patches); err != nil {
		t.Fatal(err)
	}

	tree.Dispatch(nil, vdom.Event{Type: "click"})
	if first != 0 || second != 1 {
		t.Errorf("first = %d, second = %d; want the new handler bound", first, second)
	}
}

func TestApplyOutOfRangeFailsCycle(t *testing.T) {
	tree, err := Instantiate(vdom.Div(nil, vdom.Span(nil)))
	if err != nil {
		t.Fatal(err)
	}

	err = tree.Apply([]vdom.Patch{{Op: vdom.OpRemove, Path: []int{7}}})
	if !errors.Is(err, ErrPatchApplication) {
		t.Fatalf("Apply() = %v, want ErrPatchApplication", err)
	}

	err = tree.Apply([]vdom.Patch{{Op: vdom.OpSetText, Path: []int{0}, Text: "x"}})
	if !errors.Is(err, ErrPatchApplication) {
		t.Fatalf("SetText on element = %v, want ErrPatchApplication", err)
	}
}

func TestApplyObserversSeePatchesInOrder(t *testing.T) {
	old := vdom.Div(nil, vdom.P(nil, vdom.Text("a")))
	new := vdom.Div(vdom.Props{"class": "x"}, vdom.P(nil, vdom.Text("b")))

	tree, err := Instantiate(old)
	if err != nil {
		t.Fatal(err)
	}

	var seen [][]vdom.Patch
	tree.OnPatches(func(patches []vdom.Patch) {
		seen = append(seen, patches)
	})

	patches, err := vdom.Diff(old, new)
	if err != nil {
		t.Fatal(err)
	}
	if err := tree.Apply(patches); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 1 || len(seen[0]) != len(patches) {
		t.Fatalf("observer saw %v, want one batch of %d patches", seen, len(patches))
	}
}

func TestApplyFailedPatchNotObserved(t *testing.T) {
	tree, err := Instantiate(vdom.Div(nil))
	if err != nil {
		t.Fatal(err)
	}
	called := false
	tree.OnPatches(func([]vdom.Patch) { called = true })

	if err := tree.Apply([]vdom.Patch{{Op: vdom.OpRemove, Path: []int{3}}}); err == nil {
		t.Fatal("want error")
	}
	if called {
		t.Error("failed cycle must not notify observers")
	}
}
