package analysis

import (
	"github.com/snailtrace/snail/provider"
	"github.com/snailtrace/snail/symbol"
	"github.com/snailtrace/snail/trace"
)

// unknownModuleName stands in for an address that fell outside every loaded
// module's range (e.g. a generated trampoline, or a module load record that
// was missed).
const unknownModuleName = "[unknown]"

type functionKey struct {
	moduleID int
	name     string
}

type nodeKey struct {
	parent     int
	functionID int
}

// Analyzer accumulates samples for a single process into a Result,
// assigning module/function/call-tree-node ids the first time each is
// seen. Ported from analyze_stacks's get_or_create_module /
// get_or_create_function / get_or_append_call_tree_child triplet,
// generalized from a one-shot whole-trace pass into an incremental one
// sample at a time, so callers can feed it directly from a pull-based
// provider.Source.
type Analyzer struct {
	ctx       *trace.Context
	resolver  symbol.Resolver
	processID uint64

	result *Result

	moduleIndex   map[string]int
	functionIndex map[functionKey]int
	nodeIndex     map[nodeKey]int
}

// NewAnalyzer creates an Analyzer for one process, with an empty result
// holding only the synthetic root.
func NewAnalyzer(ctx *trace.Context, resolver symbol.Resolver, processID uint64) *Analyzer {
	return &Analyzer{
		ctx:       ctx,
		resolver:  resolver,
		processID: processID,
		result: &Result{
			ProcessID:    processID,
			FunctionRoot: FunctionInfo{ID: rootID, Name: "[root]"},
			CallTreeRoot: CallTreeNode{FunctionID: rootID},
		},
		moduleIndex:   make(map[string]int),
		functionIndex: make(map[functionKey]int),
		nodeIndex:     make(map[nodeKey]int),
	}
}

// Result returns the analysis accumulated so far. The returned value is
// live and keeps updating as AddSample is called.
func (a *Analyzer) Result() *Result { return a.result }

// AddSample folds one sample into the analysis. Samples for any process
// other than the one this Analyzer was created for are ignored, so callers
// can feed it an unfiltered stream.
func (a *Analyzer) AddSample(view *provider.SampleView) {
	if view.ProcessID != a.processID {
		return
	}

	stack := a.combinedStack(view)

	a.result.CallTreeRoot.Hits.Total++
	a.result.FunctionRoot.Hits.Total++

	currentNodeID := rootID
	callerFuncID := rootID
	lastFuncID := rootID

	// Walk outermost to innermost: the interned stacks are stored
	// innermost-first (the wire order for both ETW stack walks and perf
	// callchains), so the walk runs the slice in reverse.
	for i := len(stack) - 1; i >= 0; i-- {
		addr := stack[i]
		moduleName, sym := a.resolveFrame(view, addr)
		moduleID := a.getOrCreateModule(moduleName)
		funcID := a.getOrCreateFunction(moduleID, sym.Name)

		a.result.Modules[moduleID].Hits.Total++
		a.result.Functions[funcID].Hits.Total++

		childID := a.getOrAppendChild(currentNodeID, funcID)
		a.result.CallTreeNodes[childID].Hits.Total++

		a.addEdge(callerFuncID, funcID)

		currentNodeID = childID
		callerFuncID = funcID
		lastFuncID = funcID
	}

	// The self hit belongs to whichever frame the sample actually stopped
	// at: the innermost frame walked, or the root itself for an empty
	// stack (e.g. a residue stack-walk-less sample).
	a.result.Node(currentNodeID).Hits.Self++
	if lastFuncID == rootID {
		a.result.FunctionRoot.Hits.Self++
		return
	}
	a.result.Functions[lastFuncID].Hits.Self++
	a.result.Modules[a.result.Functions[lastFuncID].ModuleID].Hits.Self++
}

// combinedStack assembles one sample's full instruction-pointer sequence,
// innermost frame first: the kernel run (if any, since a sample caught
// mid-interrupt is innermost in kernel code) followed by the user run. A
// sample with neither stack falls back to its own instruction pointer as a
// single-frame leaf.
func (a *Analyzer) combinedStack(view *provider.SampleView) []uint64 {
	var stack []uint64
	if view.KernelStack != nil {
		stack = append(stack, a.ctx.Stacks.Get(*view.KernelStack)...)
	}
	if view.UserStack != nil {
		stack = append(stack, a.ctx.Stacks.Get(*view.UserStack)...)
	}
	if len(stack) == 0 && view.InstructionPointer != 0 {
		stack = []uint64{view.InstructionPointer}
	}
	return stack
}

// resolveFrame maps one stack address to its owning module's base name and
// resolved symbol, degrading to the unknown-module generic symbol when the
// address falls outside every module this process has ever loaded.
func (a *Analyzer) resolveFrame(view *provider.SampleView, addr uint64) (string, symbol.Symbol) {
	mm := a.ctx.ModuleMapFor(view.ProcessID)
	module, ok := mm.Find(addr, view.Timestamp, false)
	if !ok {
		return unknownModuleName, symbol.MakeGeneric("", addr)
	}
	return symbol.BaseName(module.FileName), a.resolver.Resolve(view.ProcessID, module, addr)
}

func (a *Analyzer) getOrCreateModule(name string) int {
	if id, ok := a.moduleIndex[name]; ok {
		return id
	}
	id := len(a.result.Modules)
	a.result.Modules = append(a.result.Modules, ModuleInfo{ID: id, Name: name})
	a.moduleIndex[name] = id
	return id
}

func (a *Analyzer) getOrCreateFunction(moduleID int, name string) int {
	key := functionKey{moduleID: moduleID, name: name}
	if id, ok := a.functionIndex[key]; ok {
		return id
	}
	id := len(a.result.Functions)
	a.result.Functions = append(a.result.Functions, FunctionInfo{ID: id, ModuleID: moduleID, Name: name})
	a.functionIndex[key] = id
	return id
}

// getOrAppendChild returns the call-tree node representing funcID as a
// child of parentNodeID (rootID for the synthetic root), creating and
// linking one if this exact (parent, function) pair hasn't appeared yet.
func (a *Analyzer) getOrAppendChild(parentNodeID, funcID int) int {
	key := nodeKey{parent: parentNodeID, functionID: funcID}
	if id, ok := a.nodeIndex[key]; ok {
		return id
	}

	id := len(a.result.CallTreeNodes)
	a.result.CallTreeNodes = append(a.result.CallTreeNodes, CallTreeNode{ID: id, FunctionID: funcID})
	a.nodeIndex[key] = id

	parent := a.result.Node(parentNodeID)
	parent.Children = append(parent.Children, id)
	return id
}

func (a *Analyzer) functionInfo(id int) *FunctionInfo {
	if id == rootID {
		return &a.result.FunctionRoot
	}
	return &a.result.Functions[id]
}

// addEdge records one caller-to-callee step, incrementing both directions
// of the adjacency so either side of the edge can be queried by function
// id. callerID is rootID for the outermost frame of a sample, mirroring
// analyze_stacks's treatment of the synthetic root as the caller of every
// sample's outermost frame.
func (a *Analyzer) addEdge(callerID, calleeID int) {
	caller := a.functionInfo(callerID)
	if caller.Callees == nil {
		caller.Callees = make(map[int]*HitCounts)
	}
	if caller.Callees[calleeID] == nil {
		caller.Callees[calleeID] = &HitCounts{}
	}
	caller.Callees[calleeID].Total++

	callee := a.functionInfo(calleeID)
	if callee.Callers == nil {
		callee.Callers = make(map[int]*HitCounts)
	}
	if callee.Callers[callerID] == nil {
		callee.Callers[callerID] = &HitCounts{}
	}
	callee.Callers[callerID].Total++
}

// sampleSource is the subset of provider.Source that Analyze needs,
// satisfied by *provider.Provider and any provider.Source.
type sampleSource interface {
	Next() (*provider.SampleView, error)
}

// Analyze drains src to completion, folding every sample belonging to
// processID into a fresh Analyzer, and returns the completed analysis.
func Analyze(src sampleSource, ctx *trace.Context, resolver symbol.Resolver, processID uint64) (*Result, error) {
	a := NewAnalyzer(ctx, resolver, processID)
	for {
		v, err := src.Next()
		if err != nil {
			return nil, err
		}
		if v == nil {
			break
		}
		a.AddSample(v)
	}
	return a.Result(), nil
}
