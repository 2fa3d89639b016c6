// Package analysis builds the per-process call tree from a trace's
// resolved samples: self/total hit counts per module, function, and
// call-tree node, plus caller/callee adjacency. Grounded directly on
// original_source/snail/analysis/analysis.cpp's analyze_stacks
// (get-or-create-module/function/node triplet, root synthesis,
// self-hit-on-innermost-frame rule) and
// original_source/snail/data/call_tree.cpp's top_total_hit_child /
// dump_hot_path for Result.HotPath.
package analysis

// HitCounts tracks how many samples passed through (total) versus stopped
// at (self) a module, function, or call-tree node.
type HitCounts struct {
	Total int
	Self  int
}

// ModuleInfo is a process-local module identity: a module is identified by
// its name string within one process (§4.11), assigned a dense id on first
// appearance.
type ModuleInfo struct {
	ID   int
	Name string
	Hits HitCounts
}

// FunctionInfo is a process-local function identity, identified by
// (module id, name).
type FunctionInfo struct {
	ID       int
	ModuleID int
	Name     string
	Hits     HitCounts

	// Callers/Callees map a function id to the hit count of that
	// caller/callee relationship, keyed on the function id of the other
	// side of the edge.
	Callers map[int]*HitCounts
	Callees map[int]*HitCounts
}

// CallTreeNode is one node in the per-process call tree, keyed by
// function id along its path from the root. Children is a list of ids
// into Result.CallTreeNodes; the synthetic root (id -1, not present in
// that slice) is reached via Result.CallTreeRoot.
type CallTreeNode struct {
	ID         int
	FunctionID int
	Hits       HitCounts
	Children   []int
}

// rootID is the sentinel id for the synthetic root, mirroring the
// original's std::size_t(-1) sentinel.
const rootID = -1

// Result is one process's completed stack analysis.
type Result struct {
	ProcessID uint64

	Modules   []ModuleInfo
	Functions []FunctionInfo

	FunctionRoot  FunctionInfo
	CallTreeRoot  CallTreeNode
	CallTreeNodes []CallTreeNode
}

// Node returns the call-tree node for id, where rootID (-1) refers to the
// synthetic root.
func (r *Result) Node(id int) *CallTreeNode {
	if id == rootID {
		return &r.CallTreeRoot
	}
	return &r.CallTreeNodes[id]
}

// TopTotalHitChild returns n's child with the highest total hit count, or
// nil if n has no children. Ported from call_tree_node::top_total_hit_child.
func (r *Result) TopTotalHitChild(n *CallTreeNode) *CallTreeNode {
	if len(n.Children) == 0 {
		return nil
	}
	top := r.Node(n.Children[0])
	for _, id := range n.Children[1:] {
		c := r.Node(id)
		if c.Hits.Total > top.Hits.Total {
			top = c
		}
	}
	return top
}

// HotPath walks from the root always descending into the highest-total-hit
// child, stopping either when a node has no children or when its own self
// hits already outweigh its busiest child's total hits (meaning most of
// this node's time is not attributable to any single deeper call path).
// Ported from call_tree::dump_hot_path, generalized from a print loop to a
// returned path of function names.
func (r *Result) HotPath() []string {
	var path []string
	node := &r.CallTreeRoot
	for {
		path = append(path, r.functionName(node.FunctionID))

		top := r.TopTotalHitChild(node)
		if top == nil || node.Hits.Self > top.Hits.Total {
			break
		}
		node = top
	}
	return path
}

func (r *Result) functionName(id int) string {
	if id == rootID {
		return r.FunctionRoot.Name
	}
	return r.Functions[id].Name
}
