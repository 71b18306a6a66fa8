package vdom

// Op is the type of patch operation.
type Op uint8

const (
	OpCreate      Op = iota // Insert a brand-new subtree
	OpRemove                // Detach the node at the target position
	OpReplace               // Discard the live node, instantiate Node in its place
	OpUpdateProps           // Apply attribute/handler deltas in place
	OpSetText               // Replace a text node's content
	OpMove                  // Move a child to a new index within its parent
)

// String returns the string representation of the Op.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "Create"
	case OpRemove:
		return "Remove"
	case OpReplace:
		return "Replace"
	case OpUpdateProps:
		return "UpdateProps"
	case OpSetText:
		return "SetText"
	case OpMove:
		return "Move"
	default:
		return "Unknown"
	}
}

// Patch is one instruction mutating a live output tree.
//
// Patches address nodes by index path from the root: Path{1, 0} is the
// first child of the root's second child. Paths are computed against the
// live tree as it stands when the patch is replayed, so a patch list is
// only valid when applied completely and in the order produced.
type Patch struct {
	Op   Op
	Path []int // Target position; for OpMove, the parent

	Node    *VNode   // OpCreate, OpReplace
	Text    string   // OpSetText
	Added   Props    // OpUpdateProps: added or changed props
	Removed []string // OpUpdateProps: prop keys to delete, sorted
	From    int      // OpMove: current child index
	To      int      // OpMove: destination child index
}
