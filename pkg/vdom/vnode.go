package vdom

import (
	"reflect"

	"github.com/loom-ui/loom/internal/errors"
)

// ErrInvalidNode is returned when a node is constructed with invalid input,
// such as an empty tag on a non-text node.
var ErrInvalidNode = errors.New("E001", errors.CategoryNode, "invalid node")

// Kind is the node type discriminator.
type Kind uint8

const (
	KindElement  Kind = iota // <div>, <button>, etc.
	KindText                 // Plain text node
	KindFragment             // Grouping without wrapper
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindFragment:
		return "Fragment"
	default:
		return "Unknown"
	}
}

// Props holds attributes and event handlers. Values may be primitives,
// nested style maps (map[string]string), class lists ([]string), or
// handler callbacks. A VNode never serializes handler values; they are
// bound by the live renderer only.
type Props map[string]any

// VNode is one node of a virtual presentation tree. A VNode is built once
// per render pass and never mutated afterwards; the differ compares whole
// trees and keeps only the newer one.
type VNode struct {
	Kind     Kind     // Node type
	Tag      string   // Element tag name (e.g., "div")
	Props    Props    // Attributes and event handlers
	Children []*VNode // Child nodes
	Key      string   // Reconciliation key, "" means positional identity
	Text     string   // For KindText
}

// New constructs an element node. It fails with ErrInvalidNode when the tag
// is empty: only text and fragment nodes may go without one.
func New(tag string, props Props, children ...*VNode) (*VNode, error) {
	if tag == "" {
		return nil, ErrInvalidNode.WithDetail("element node requires a non-empty tag")
	}
	n := &VNode{
		Kind:     KindElement,
		Tag:      tag,
		Props:    props,
		Children: children,
	}
	if props != nil {
		if key, ok := props["key"].(string); ok {
			n.Key = key
		}
	}
	return n, nil
}

// MustNew is New for tags known to be valid at compile time.
// The element constructors in elements.go are built on it.
func MustNew(tag string, props Props, children ...*VNode) *VNode {
	n, err := New(tag, props, children...)
	if err != nil {
		panic(err)
	}
	return n
}

// Text creates a text node.
func Text(s string) *VNode {
	return &VNode{Kind: KindText, Text: s}
}

// Fragment groups children without a wrapper element.
func Fragment(children ...*VNode) *VNode {
	return &VNode{Kind: KindFragment, Children: children}
}

// WithKey returns the node with its reconciliation key set.
func (v *VNode) WithKey(key string) *VNode {
	v.Key = key
	return v
}

// Equal is the fast-path identity check used by the differ before any deep
// prop or child comparison: two nodes are candidates for in-place update
// iff their kind, tag and key all match.
func Equal(a, b *VNode) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Kind == b.Kind && a.Tag == b.Tag && a.Key == b.Key
}

// PropKind classifies a prop as a plain attribute or an event handler.
type PropKind uint8

const (
	PropAttribute PropKind = iota
	PropHandler
)

// KindOfProp returns PropHandler for handler-valued props under an "on"
// prefixed key, PropAttribute for everything else. The split drives the
// renderer: attributes serialize to markup, handlers only bind live.
func KindOfProp(key string, value any) PropKind {
	if isEventKey(key) && isFunc(value) {
		return PropHandler
	}
	return PropAttribute
}

// isEventKey reports whether the prop key names an event ("onclick",
// "onInput", ...). Case-insensitive on the prefix.
func isEventKey(key string) bool {
	if len(key) <= 2 {
		return false
	}
	return (key[0] == 'o' || key[0] == 'O') && (key[1] == 'n' || key[1] == 'N')
}

// isFunc reports whether the value is callable.
func isFunc(value any) bool {
	if value == nil {
		return false
	}
	return reflect.TypeOf(value).Kind() == reflect.Func
}

// Event is the typed record delivered to handler props by the live
// renderer. Browser-side bridges post these over the event channel.
type Event struct {
	Type    string // "click", "input", ...
	Value   string // input value, if any
	Checked bool   // checkbox state, if any
}

// Handler is the canonical handler prop signature. Zero-argument funcs
// are accepted too and invoked without the event record.
type Handler func(Event)
