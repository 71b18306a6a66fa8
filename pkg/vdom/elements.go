package vdom

// voidElements are elements that cannot have children.
var voidElements = map[string]bool{
	"area":   true,
	"base":   true,
	"br":     true,
	"col":    true,
	"embed":  true,
	"hr":     true,
	"img":    true,
	"input":  true,
	"link":   true,
	"meta":   true,
	"param":  true,
	"source": true,
	"track":  true,
	"wbr":    true,
}

// IsVoidElement returns true if the tag is a void element.
func IsVoidElement(tag string) bool {
	return voidElements[tag]
}

// Element constructors. These are construction sugar over MustNew for the
// tags the engine tests and demo apps need; they are not a widget library.

func Div(props Props, children ...*VNode) *VNode    { return MustNew("div", props, children...) }
func Span(props Props, children ...*VNode) *VNode   { return MustNew("span", props, children...) }
func P(props Props, children ...*VNode) *VNode      { return MustNew("p", props, children...) }
func H1(props Props, children ...*VNode) *VNode     { return MustNew("h1", props, children...) }
func H2(props Props, children ...*VNode) *VNode     { return MustNew("h2", props, children...) }
func A(props Props, children ...*VNode) *VNode      { return MustNew("a", props, children...) }
func Ul(props Props, children ...*VNode) *VNode     { return MustNew("ul", props, children...) }
func Li(props Props, children ...*VNode) *VNode     { return MustNew("li", props, children...) }
func Button(props Props, children ...*VNode) *VNode { return MustNew("button", props, children...) }
func Form(props Props, children ...*VNode) *VNode   { return MustNew("form", props, children...) }
func Label(props Props, children ...*VNode) *VNode  { return MustNew("label", props, children...) }

// Void elements never take children.

func Img(props Props) *VNode   { return MustNew("img", props) }
func Input(props Props) *VNode { return MustNew("input", props) }
func Br() *VNode               { return MustNew("br", nil) }
func Hr() *VNode               { return MustNew("hr", nil) }
