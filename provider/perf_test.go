package provider

import (
	"testing"

	"github.com/snailtrace/snail/perfdata"
	"github.com/snailtrace/snail/trace"
)

func newTestPerfSource() *perfSource {
	return &perfSource{ctx: trace.NewContext()}
}

// TestConvertSampleUserOnlyCallchain matches the 72-byte sample layout
// (sample_format={ip,tid,time,call_chain,period,identifier}) used as a
// worked decoding example: a single CallchainUser-tagged run containing the
// sampled instruction itself followed by one caller frame.
func TestConvertSampleUserOnlyCallchain(t *testing.T) {
	s := newTestPerfSource()
	r := &perfdata.RecordSample{
		RecordCommon: perfdata.RecordCommon{
			PID:  1343,
			TID:  1343,
			Time: 1937969100600,
		},
		IP:     140270571258003,
		Period: 1,
		Callchain: []uint64{
			perfdata.CallchainUser,
			140270571258003,
			94208011558848,
		},
	}

	view := s.convertSample(r)

	if view.Timestamp != 1937969100600 {
		t.Fatalf("Timestamp = %d, want 1937969100600", view.Timestamp)
	}
	if view.InstructionPointer != 140270571258003 {
		t.Fatalf("InstructionPointer = %#x, want 0x7f9349928093", view.InstructionPointer)
	}
	if view.KernelStack != nil {
		t.Fatalf("KernelStack = %v, want nil for an all-user callchain", view.KernelStack)
	}
	if view.UserStack == nil {
		t.Fatal("UserStack = nil, want a populated user stack")
	}

	got := s.ctx.Stacks.Get(*view.UserStack)
	want := []uint64{140270571258003, 94208011558848}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("user stack = %#x, want %#x", got, want)
	}

	// The same (pid, tid) must map to the same unique ids across samples.
	if view.ProcessID != s.ctx.UniqueProcessID(1343) {
		t.Fatalf("ProcessID = %d, want UniqueProcessID(1343) = %d", view.ProcessID, s.ctx.UniqueProcessID(1343))
	}
	if view.ThreadID != s.ctx.UniqueThreadID(1343) {
		t.Fatalf("ThreadID = %d, want UniqueThreadID(1343) = %d", view.ThreadID, s.ctx.UniqueThreadID(1343))
	}
}

func TestConvertSampleSplitsKernelAndUserRuns(t *testing.T) {
	s := newTestPerfSource()
	r := &perfdata.RecordSample{
		RecordCommon: perfdata.RecordCommon{PID: 7, TID: 7, Time: 100},
		IP:           0xffffffff81000000,
		Callchain: []uint64{
			perfdata.CallchainKernel,
			0xffffffff81000000,
			0xffffffff81001000,
			perfdata.CallchainUser,
			0x400000,
		},
	}

	view := s.convertSample(r)
	if view.KernelStack == nil || view.UserStack == nil {
		t.Fatalf("expected both a kernel and a user stack, got kernel=%v user=%v", view.KernelStack, view.UserStack)
	}

	kernel := s.ctx.Stacks.Get(*view.KernelStack)
	if len(kernel) != 2 || kernel[0] != 0xffffffff81000000 || kernel[1] != 0xffffffff81001000 {
		t.Fatalf("kernel stack = %#x, want [0xffffffff81000000 0xffffffff81001000]", kernel)
	}
	user := s.ctx.Stacks.Get(*view.UserStack)
	if len(user) != 1 || user[0] != 0x400000 {
		t.Fatalf("user stack = %#x, want [0x400000]", user)
	}
}

func TestConvertSampleWithoutCallchainIsSingleFrameLeaf(t *testing.T) {
	s := newTestPerfSource()
	r := &perfdata.RecordSample{
		RecordCommon: perfdata.RecordCommon{PID: 1, TID: 1, Time: 5},
		IP:           0x1234,
	}

	view := s.convertSample(r)
	if view.KernelStack != nil || view.UserStack != nil {
		t.Fatal("a sample with no callchain should carry neither stack reference")
	}
	if view.InstructionPointer != 0x1234 {
		t.Fatalf("InstructionPointer = %#x, want 0x1234", view.InstructionPointer)
	}
}
