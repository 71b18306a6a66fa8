// Package live maintains an instantiated output tree and replays patch
// sequences against it. It is the in-process presentation target of the
// engine: a browser bridge mirrors it remotely, tests read it directly.
package live

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/loom-ui/loom/internal/errors"
	"github.com/loom-ui/loom/pkg/render"
	"github.com/loom-ui/loom/pkg/vdom"
)

// ErrPatchApplication is returned when a patch references a live position
// that no longer exists. The diff cycle is fatal; the caller re-renders
// from scratch rather than recovering partially.
var ErrPatchApplication = errors.New("E003", errors.CategoryPatch, "patch application failed")

// Node is one element of the live tree.
type Node struct {
	Kind     vdom.Kind
	Tag      string
	Text     string
	Attrs    map[string]string // bare boolean attributes hold ""
	Handlers map[string]any    // event name ("click") -> callback
	Children []*Node
}

// Tree is a live output handle. All access goes through its lock, so a
// patch cycle is atomic with respect to concurrent reads: no partially
// patched state is observable.
type Tree struct {
	mu        sync.Mutex
	root      *Node
	observers []patchObserver
	nextObsID uint64

	retired     bool
	retireHooks []retireHook
}

type patchObserver struct {
	id uint64
	fn func([]vdom.Patch)
}

type retireHook struct {
	id uint64
	fn func()
}

// Instantiate creates a live tree mirroring the given VNode tree and binds
// its handler props.
func Instantiate(node *vdom.VNode) (*Tree, error) {
	if err := vdom.Validate(node); err != nil {
		return nil, err
	}
	return &Tree{root: instantiateNode(node)}, nil
}

func instantiateNode(node *vdom.VNode) *Node {
	if node == nil {
		return nil
	}
	n := &Node{
		Kind: node.Kind,
		Tag:  node.Tag,
		Text: node.Text,
	}
	for key, value := range node.Props {
		if key == "key" {
			continue
		}
		if vdom.KindOfProp(key, value) == vdom.PropHandler {
			if n.Handlers == nil {
				n.Handlers = make(map[string]any)
			}
			n.Handlers[eventName(key)] = value
			continue
		}
		if b, ok := value.(bool); ok {
			if b {
				n.setAttr(key, "")
			}
			continue
		}
		if s := render.AttrString(key, value); s != "" {
			n.setAttr(key, s)
		}
	}
	for _, child := range node.Children {
		n.Children = append(n.Children, instantiateNode(child))
	}
	return n
}

func (n *Node) setAttr(key, value string) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[key] = value
}

// OnPatches registers an observer invoked with every successfully applied
// patch list, in apply order. Observers run under the tree lock and must
// not call back into the tree. The returned cancel deregisters the
// observer; calling it more than once is a no-op.
func (t *Tree) OnPatches(fn func([]vdom.Patch)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextObsID++
	id := t.nextObsID
	t.observers = append(t.observers, patchObserver{id: id, fn: fn})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, o := range t.observers {
			if o.id == id {
				t.observers = append(t.observers[:i], t.observers[i+1:]...)
				return
			}
		}
	}
}

// OnRetire registers a hook that runs when the tree is retired (see
// Retire). A hook registered after retirement runs immediately. The
// returned cancel deregisters the hook.
func (t *Tree) OnRetire(fn func()) (cancel func()) {
	t.mu.Lock()
	if t.retired {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	t.nextObsID++
	id := t.nextObsID
	t.retireHooks = append(t.retireHooks, retireHook{id: id, fn: fn})
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, h := range t.retireHooks {
			if h.id == id {
				t.retireHooks = append(t.retireHooks[:i], t.retireHooks[i+1:]...)
				return
			}
		}
	}
}

// Retire marks this tree as superseded by a fresh instantiation and runs
// the retire hooks once. Attached bridges use the hook to drop their
// connection so the client reconnects against the new tree. Retiring
// twice is a no-op.
func (t *Tree) Retire() {
	t.mu.Lock()
	if t.retired {
		t.mu.Unlock()
		return
	}
	t.retired = true
	hooks := t.retireHooks
	t.retireHooks = nil
	t.mu.Unlock()

	for _, h := range hooks {
		h.fn()
	}
}

// Dispatch delivers an event to the handler bound at the given path.
// Unknown paths or missing handlers are not errors: stale events from a
// remote bridge can race a re-render and are dropped.
func (t *Tree) Dispatch(path []int, ev vdom.Event) {
	t.mu.Lock()
	node := t.nodeAt(path)
	var handler any
	if node != nil && node.Handlers != nil {
		handler = node.Handlers[ev.Type]
	}
	t.mu.Unlock()

	if handler == nil {
		return
	}
	callHandler(handler, ev)
}

func callHandler(handler any, ev vdom.Event) {
	switch h := handler.(type) {
	case vdom.Handler:
		h(ev)
	case func(vdom.Event):
		h(ev)
	case func():
		h()
	}
}

// nodeAt resolves an index path against the current tree. Returns nil when
// the path does not resolve. Caller holds the lock.
func (t *Tree) nodeAt(path []int) *Node {
	node := t.root
	for _, idx := range path {
		if node == nil || idx < 0 || idx >= len(node.Children) {
			return nil
		}
		node = node.Children[idx]
	}
	return node
}

// HTML serializes the current live tree to markup. Used for resync frames
// and tests.
func (t *Tree) HTML() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	writeLiveNode(&b, t.root)
	return b.String()
}

func writeLiveNode(b *strings.Builder, n *Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case vdom.KindText:
		b.WriteString(escapeHTML(n.Text))
	case vdom.KindFragment:
		for _, child := range n.Children {
			writeLiveNode(b, child)
		}
	case vdom.KindElement:
		b.WriteByte('<')
		b.WriteString(n.Tag)
		for _, key := range sortedAttrKeys(n.Attrs) {
			if n.Attrs[key] == "" {
				fmt.Fprintf(b, " %s", key)
			} else {
				fmt.Fprintf(b, ` %s="%s"`, key, escapeAttr(n.Attrs[key]))
			}
		}
		b.WriteByte('>')
		if vdom.IsVoidElement(n.Tag) {
			return
		}
		for _, child := range n.Children {
			writeLiveNode(b, child)
		}
		fmt.Fprintf(b, "</%s>", n.Tag)
	}
}

func sortedAttrKeys(attrs map[string]string) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func escapeAttr(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	return r.Replace(s)
}
