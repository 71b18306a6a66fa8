package live

import (
	"github.com/loom-ui/loom/pkg/render"
	"github.com/loom-ui/loom/pkg/vdom"
)

// Apply replays a patch list against the live tree, in the exact order
// received. The whole list is applied under one lock acquisition, so a
// concurrent read sees either the tree before the cycle or after it.
//
// A patch addressing a position that no longer exists fails the cycle with
// ErrPatchApplication. The tree must then be considered unusable for
// further patching; re-instantiate from a fresh render.
func (t *Tree) Apply(patches []vdom.Patch) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range patches {
		if err := t.applyOne(&patches[i]); err != nil {
			return err
		}
	}

	for _, o := range t.observers {
		o.fn(patches)
	}
	return nil
}

func (t *Tree) applyOne(p *vdom.Patch) error {
	if len(p.Path) == 0 {
		return t.applyRoot(p)
	}

	parent := t.nodeAt(p.Path[:len(p.Path)-1])
	if parent == nil {
		return ErrPatchApplication.WithDetail("%s: parent of %v not found", p.Op, p.Path)
	}
	idx := p.Path[len(p.Path)-1]

	switch p.Op {
	case vdom.OpCreate:
		if idx < 0 || idx > len(parent.Children) {
			return ErrPatchApplication.WithDetail("Create: index %d out of range (have %d children)", idx, len(parent.Children))
		}
		parent.Children = insertChild(parent.Children, idx, instantiateNode(p.Node))

	case vdom.OpRemove:
		if idx < 0 || idx >= len(parent.Children) {
			return ErrPatchApplication.WithDetail("Remove: index %d out of range (have %d children)", idx, len(parent.Children))
		}
		parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)

	case vdom.OpReplace:
		if idx < 0 || idx >= len(parent.Children) {
			return ErrPatchApplication.WithDetail("Replace: index %d out of range (have %d children)", idx, len(parent.Children))
		}
		parent.Children[idx] = instantiateNode(p.Node)

	case vdom.OpSetText:
		node := childAt(parent, idx)
		if node == nil || node.Kind != vdom.KindText {
			return ErrPatchApplication.WithDetail("SetText: no text node at %v", p.Path)
		}
		node.Text = p.Text

	case vdom.OpUpdateProps:
		node := childAt(parent, idx)
		if node == nil {
			return ErrPatchApplication.WithDetail("UpdateProps: no node at %v", p.Path)
		}
		updateProps(node, p)

	case vdom.OpMove:
		// For OpMove the path addresses the parent itself.
		node := t.nodeAt(p.Path)
		if node == nil {
			return ErrPatchApplication.WithDetail("Move: no node at %v", p.Path)
		}
		return moveChild(node, p.From, p.To)

	default:
		return ErrPatchApplication.WithDetail("unknown op %d", p.Op)
	}
	return nil
}

// applyRoot handles patches addressing the root position.
func (t *Tree) applyRoot(p *vdom.Patch) error {
	switch p.Op {
	case vdom.OpCreate, vdom.OpReplace:
		t.root = instantiateNode(p.Node)
	case vdom.OpRemove:
		t.root = nil
	case vdom.OpSetText:
		if t.root == nil || t.root.Kind != vdom.KindText {
			return ErrPatchApplication.WithDetail("SetText: root is not a text node")
		}
		t.root.Text = p.Text
	case vdom.OpUpdateProps:
		if t.root == nil {
			return ErrPatchApplication.WithDetail("UpdateProps: no root node")
		}
		updateProps(t.root, p)
	case vdom.OpMove:
		if t.root == nil {
			return ErrPatchApplication.WithDetail("Move: no root node")
		}
		return moveChild(t.root, p.From, p.To)
	}
	return nil
}

// updateProps applies a prop delta. Removals land before additions so a
// prop changing kind (handler to attribute or back) never collides.
func updateProps(node *Node, p *vdom.Patch) {
	for _, key := range p.Removed {
		delete(node.Attrs, key)
		delete(node.Handlers, eventName(key))
	}
	for key, value := range p.Added {
		// A changed prop may have switched kind; clear both slots first.
		delete(node.Attrs, key)
		delete(node.Handlers, eventName(key))

		if vdom.KindOfProp(key, value) == vdom.PropHandler {
			if node.Handlers == nil {
				node.Handlers = make(map[string]any)
			}
			node.Handlers[eventName(key)] = value
			continue
		}
		if b, ok := value.(bool); ok {
			if b {
				node.setAttr(key, "")
			}
			continue
		}
		if s := render.AttrString(key, value); s != "" {
			node.setAttr(key, s)
		}
	}
}

func moveChild(parent *Node, from, to int) error {
	n := len(parent.Children)
	if from < 0 || from >= n || to < 0 || to >= n {
		return ErrPatchApplication.WithDetail("Move: %d -> %d out of range (have %d children)", from, to, n)
	}
	child := parent.Children[from]
	rest := append(parent.Children[:from], parent.Children[from+1:]...)
	parent.Children = insertChild(rest, to, child)
	return nil
}

func insertChild(children []*Node, at int, n *Node) []*Node {
	children = append(children, nil)
	copy(children[at+1:], children[at:len(children)-1])
	children[at] = n
	return children
}

func childAt(parent *Node, idx int) *Node {
	if idx < 0 || idx >= len(parent.Children) {
		return nil
	}
	return parent.Children[idx]
}
