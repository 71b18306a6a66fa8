package vdom

import "github.com/loom-ui/loom/internal/errors"

// ErrMalformedTree is returned when a tree violates the strict-tree
// invariant: a cycle, the same node reachable from two positions, or a
// key appearing on more than one child of the same parent.
var ErrMalformedTree = errors.New("E002", errors.CategoryTree, "malformed tree")

// Validate checks the strict-tree invariant on the whole tree. The differ
// and renderers call it before touching a tree so a malformed input fails
// the operation up front instead of producing partial output.
func Validate(root *VNode) error {
	if root == nil {
		return nil
	}
	seen := make(map[*VNode]bool)
	return validate(root, seen)
}

func validate(n *VNode, seen map[*VNode]bool) error {
	if n == nil {
		return ErrMalformedTree.WithDetail("nil child node")
	}
	if seen[n] {
		return ErrMalformedTree.WithDetail("node %q reachable from more than one position", n.Tag).
			WithSuggestion("build a fresh VNode per position instead of sharing one")
	}
	seen[n] = true
	if n.Kind == KindElement && n.Tag == "" {
		return ErrMalformedTree.WithDetail("element node with empty tag")
	}
	var siblingKeys map[string]bool
	for _, child := range n.Children {
		if child != nil && child.Key != "" {
			if siblingKeys[child.Key] {
				return ErrMalformedTree.WithDetail("key %q appears on more than one child of %q", child.Key, n.Tag).
					WithSuggestion("keys must be unique among siblings")
			}
			if siblingKeys == nil {
				siblingKeys = make(map[string]bool)
			}
			siblingKeys[child.Key] = true
		}
		if err := validate(child, seen); err != nil {
			return err
		}
	}
	return nil
}
