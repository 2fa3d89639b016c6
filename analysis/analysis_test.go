package analysis

import (
	"fmt"
	"testing"

	"github.com/snailtrace/snail/provider"
	"github.com/snailtrace/snail/symbol"
	"github.com/snailtrace/snail/trace"
)

// namedResolver names a symbol after its address, looked up from a fixed
// table, so tests can assert on call-tree shape without any real debug
// info.
type namedResolver map[uint64]string

func (r namedResolver) Resolve(processID uint64, module *trace.Module, address uint64) symbol.Symbol {
	if name, ok := r[address]; ok {
		return symbol.Symbol{Name: name}
	}
	return symbol.MakeGeneric(fmt.Sprintf("0x%x", address), address)
}

func newTestContext(t *testing.T, pid uint64, fileName string) *trace.Context {
	t.Helper()
	ctx := trace.NewContext()
	ctx.ModuleMapFor(pid).Insert(trace.Module{Base: 0x1000, Size: 0x10000, FileName: fileName}, 0)
	return ctx
}

func TestAddSampleBuildsCallTreeAndSelfHits(t *testing.T) {
	ctx := newTestContext(t, 1, "app.exe")
	resolver := namedResolver{0x1100: "inner", 0x1200: "middle", 0x1300: "outer"}

	// Stored innermost-first: inner, middle, outer.
	idx := ctx.Stacks.Insert([]uint64{0x1100, 0x1200, 0x1300})

	a := NewAnalyzer(ctx, resolver, 1)
	a.AddSample(&provider.SampleView{ProcessID: 1, Timestamp: 0, UserStack: &idx})

	res := a.Result()
	if res.CallTreeRoot.Hits.Total != 1 {
		t.Fatalf("root total = %d, want 1", res.CallTreeRoot.Hits.Total)
	}
	if len(res.Functions) != 3 {
		t.Fatalf("got %d functions, want 3", len(res.Functions))
	}

	outerID := res.CallTreeRoot.Children[0]
	outer := res.Node(outerID)
	if res.Functions[outer.FunctionID].Name != "outer" {
		t.Fatalf("root's only child = %q, want outer", res.Functions[outer.FunctionID].Name)
	}
	if outer.Hits.Total != 1 || outer.Hits.Self != 0 {
		t.Fatalf("outer node hits = %+v, want total=1 self=0", outer.Hits)
	}

	middleID := outer.Children[0]
	middle := res.Node(middleID)
	innerID := middle.Children[0]
	inner := res.Node(innerID)
	if res.Functions[inner.FunctionID].Name != "inner" {
		t.Fatalf("innermost node function = %q, want inner", res.Functions[inner.FunctionID].Name)
	}
	if inner.Hits.Self != 1 {
		t.Fatalf("inner self hits = %d, want 1", inner.Hits.Self)
	}
	if res.Functions[inner.FunctionID].Hits.Self != 1 {
		t.Fatalf("inner function self hits = %d, want 1", res.Functions[inner.FunctionID].Hits.Self)
	}

	// Adjacency: middle's only caller is outer, its only callee is inner.
	middleFn := &res.Functions[middle.FunctionID]
	if _, ok := middleFn.Callers[outer.FunctionID]; !ok {
		t.Fatal("middle function missing caller edge from outer")
	}
	if _, ok := middleFn.Callees[inner.FunctionID]; !ok {
		t.Fatal("middle function missing callee edge to inner")
	}
	// The root is recorded as outer's caller.
	if _, ok := res.FunctionRoot.Callees[outer.FunctionID]; !ok {
		t.Fatal("root function missing callee edge to outer")
	}
}

func TestAddSampleEmptyStackHitsRootSelf(t *testing.T) {
	ctx := trace.NewContext()
	a := NewAnalyzer(ctx, namedResolver{}, 1)

	a.AddSample(&provider.SampleView{ProcessID: 1, Timestamp: 0})

	res := a.Result()
	if res.CallTreeRoot.Hits.Self != 1 {
		t.Fatalf("root self hits = %d, want 1", res.CallTreeRoot.Hits.Self)
	}
	if res.FunctionRoot.Hits.Self != 1 {
		t.Fatalf("root function self hits = %d, want 1", res.FunctionRoot.Hits.Self)
	}
}

func TestAddSampleIgnoresOtherProcesses(t *testing.T) {
	ctx := newTestContext(t, 1, "app.exe")
	a := NewAnalyzer(ctx, namedResolver{}, 1)

	a.AddSample(&provider.SampleView{ProcessID: 2, Timestamp: 0, InstructionPointer: 0x1100})

	if res := a.Result(); res.CallTreeRoot.Hits.Total != 0 {
		t.Fatalf("root total = %d, want 0 for a sample from a different process", res.CallTreeRoot.Hits.Total)
	}
}

func TestHotPathDescendsBusiestChild(t *testing.T) {
	ctx := newTestContext(t, 1, "app.exe")
	resolver := namedResolver{0x1100: "hot_leaf", 0x1200: "hot_mid", 0x2100: "cold_leaf"}

	hotIdx := ctx.Stacks.Insert([]uint64{0x1100, 0x1200})
	coldIdx := ctx.Stacks.Insert([]uint64{0x2100})

	a := NewAnalyzer(ctx, resolver, 1)
	for i := 0; i < 5; i++ {
		a.AddSample(&provider.SampleView{ProcessID: 1, UserStack: &hotIdx})
	}
	a.AddSample(&provider.SampleView{ProcessID: 1, UserStack: &coldIdx})

	path := a.Result().HotPath()
	if len(path) < 2 || path[0] != "[root]" || path[1] != "hot_mid" {
		t.Fatalf("HotPath = %v, want to start [root] hot_mid ...", path)
	}
}
