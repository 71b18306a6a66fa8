package vdom

import (
	"reflect"
	"sort"
)

// Diff compares two trees and returns the patch list transforming old into
// new. The list must be replayed completely and in order (see Patch).
//
// Structurally incompatible trees never fail: the worst case degrades to a
// single Replace of the whole subtree. The only error path is a malformed
// input tree.
func Diff(old, new *VNode) ([]Patch, error) {
	if err := Validate(old); err != nil {
		return nil, err
	}
	if err := Validate(new); err != nil {
		return nil, err
	}
	var patches []Patch
	diffNode(old, new, nil, &patches)
	return patches, nil
}

// diffNode compares one pair of nodes at the given path.
func diffNode(old, new *VNode, path []int, patches *[]Patch) {
	if old == nil && new == nil {
		return
	}
	if old == nil {
		*patches = append(*patches, Patch{Op: OpCreate, Path: path, Node: new})
		return
	}
	if new == nil {
		*patches = append(*patches, Patch{Op: OpRemove, Path: path})
		return
	}

	// Identity fast path: kind, tag or key mismatch means the whole
	// subtree is considered new.
	if !Equal(old, new) {
		*patches = append(*patches, Patch{Op: OpReplace, Path: path, Node: new})
		return
	}

	switch old.Kind {
	case KindText:
		if old.Text != new.Text {
			*patches = append(*patches, Patch{Op: OpSetText, Path: path, Text: new.Text})
		}
	case KindElement:
		diffProps(old, new, path, patches)
		diffChildren(old.Children, new.Children, path, patches)
	case KindFragment:
		diffChildren(old.Children, new.Children, path, patches)
	}
}

// diffProps computes the prop delta and emits a single UpdateProps patch
// when it is non-empty. Prop comparison is order-independent; handler
// values compare unequal unless reference-identical.
func diffProps(old, new *VNode, path []int, patches *[]Patch) {
	var added Props
	var removed []string

	for key, oldVal := range old.Props {
		if key == "key" {
			continue
		}
		newVal, exists := new.Props[key]
		if !exists {
			removed = append(removed, key)
		} else if !propEqual(key, oldVal, newVal) {
			if added == nil {
				added = make(Props)
			}
			added[key] = newVal
		}
	}
	for key, newVal := range new.Props {
		if key == "key" {
			continue
		}
		if _, exists := old.Props[key]; !exists {
			if added == nil {
				added = make(Props)
			}
			added[key] = newVal
		}
	}

	if len(added) == 0 && len(removed) == 0 {
		return
	}
	sort.Strings(removed)
	*patches = append(*patches, Patch{
		Op:      OpUpdateProps,
		Path:    path,
		Added:   added,
		Removed: removed,
	})
}

// diffChildren dispatches to keyed reconciliation when any child on either
// side carries a key, positional matching otherwise.
func diffChildren(old, new []*VNode, path []int, patches *[]Patch) {
	if hasKeys(old) || hasKeys(new) {
		diffKeyedChildren(old, new, path, patches)
	} else {
		diffPositionalChildren(old, new, path, patches)
	}
}

// diffPositionalChildren matches children pairwise by index. Surplus new
// children are created in ascending order; surplus old children removed in
// descending order so earlier removals never shift later targets.
func diffPositionalChildren(old, new []*VNode, path []int, patches *[]Patch) {
	common := len(old)
	if len(new) < common {
		common = len(new)
	}
	for i := 0; i < common; i++ {
		diffNode(old[i], new[i], childPath(path, i), patches)
	}
	for i := common; i < len(new); i++ {
		*patches = append(*patches, Patch{Op: OpCreate, Path: childPath(path, i), Node: new[i]})
	}
	for i := len(old) - 1; i >= common; i-- {
		*patches = append(*patches, Patch{Op: OpRemove, Path: childPath(path, i)})
	}
}

// diffKeyedChildren matches children by key. Unmatched old children are
// removed, unmatched new children created, matched pairs moved into place
// and then diffed in place. Keyless children inside a keyed list never
// match across versions.
//
// The emitted patch indices are valid against the live child list as each
// patch lands, so removals come first (descending) and the remainder is
// computed against a simulation of the surviving list.
func diffKeyedChildren(old, new []*VNode, path []int, patches *[]Patch) {
	oldIndexByKey := make(map[string]int)
	for i, c := range old {
		if c != nil && c.Key != "" {
			oldIndexByKey[c.Key] = i
		}
	}
	newKeys := make(map[string]bool)
	for _, c := range new {
		if c != nil && c.Key != "" {
			newKeys[c.Key] = true
		}
	}

	for i := len(old) - 1; i >= 0; i-- {
		if old[i] == nil || old[i].Key == "" || !newKeys[old[i].Key] {
			*patches = append(*patches, Patch{Op: OpRemove, Path: childPath(path, i)})
		}
	}

	// work holds the keys of surviving children in live order; "" marks a
	// freshly created child.
	var work []string
	for _, c := range old {
		if c != nil && c.Key != "" && newKeys[c.Key] {
			work = append(work, c.Key)
		}
	}

	for j, c := range new {
		if c != nil && c.Key != "" {
			if oi, ok := oldIndexByKey[c.Key]; ok {
				p := indexOfKey(work, c.Key)
				if p != j {
					*patches = append(*patches, Patch{Op: OpMove, Path: path, From: p, To: j})
					work = moveEntry(work, p, j)
				}
				diffNode(old[oi], c, childPath(path, j), patches)
				continue
			}
		}
		*patches = append(*patches, Patch{Op: OpCreate, Path: childPath(path, j), Node: c})
		work = insertEntry(work, j, "")
	}
}

// childPath returns a fresh path slice extending base by one index.
func childPath(base []int, i int) []int {
	p := make([]int, len(base)+1)
	copy(p, base)
	p[len(base)] = i
	return p
}

func indexOfKey(work []string, key string) int {
	for i, k := range work {
		if k == key {
			return i
		}
	}
	return -1
}

func moveEntry(work []string, from, to int) []string {
	k := work[from]
	work = append(work[:from], work[from+1:]...)
	work = append(work, "")
	copy(work[to+1:], work[to:len(work)-1])
	work[to] = k
	return work
}

func insertEntry(work []string, at int, key string) []string {
	work = append(work, "")
	copy(work[at+1:], work[at:len(work)-1])
	work[at] = key
	return work
}

// hasKeys returns true if any child has a key.
func hasKeys(children []*VNode) bool {
	for _, child := range children {
		if child != nil && child.Key != "" {
			return true
		}
	}
	return false
}

// propEqual compares two prop values. Handler props are only equal when
// they reference the same function.
func propEqual(key string, a, b any) bool {
	aHandler := KindOfProp(key, a) == PropHandler
	bHandler := KindOfProp(key, b) == PropHandler
	if aHandler != bHandler {
		return false
	}
	if aHandler {
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return reflect.DeepEqual(a, b)
}
