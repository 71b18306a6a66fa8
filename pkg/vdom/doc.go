// Package vdom is the virtual DOM core: an immutable node model, tree
// validation and a structural differ that emits minimal patch lists.
//
// Nodes are built once per render and never mutated afterwards; change
// reaches the output exclusively through the patches Diff produces.
// Patches address positions by child-index path from the root, and a
// patch list replayed in order transforms any faithful instance of the
// old tree into the new one.
package vdom
