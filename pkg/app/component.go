package app

import "github.com/loom-ui/loom/pkg/vdom"

// Component is anything that can render to a VNode. The runtime never
// inspects a component beyond the single tree it produces.
type Component interface {
	Render() *vdom.VNode
}

// RenderFunc adapts a plain render function to Component.
type RenderFunc func() *vdom.VNode

// Render implements Component.
func (f RenderFunc) Render() *vdom.VNode { return f() }
