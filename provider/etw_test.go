package provider

import (
	"encoding/binary"
	"testing"

	"github.com/snailtrace/snail/etl"
	"github.com/snailtrace/snail/trace"
)

func newTestETWSource() *etwSource {
	return &etwSource{
		ctx:              trace.NewContext(),
		samples:          make(chan *SampleView, 8),
		samplesByProcess: make(map[uint64][]*rawSample),
		ntVolumeMapping:  make(map[string]string),
	}
}

func sampledProfilePayload(ip uint64, tid uint32) []byte {
	buf := make([]byte, 8+4)
	binary.LittleEndian.PutUint64(buf[0:8], ip)
	binary.LittleEndian.PutUint32(buf[8:12], tid)
	return buf
}

func stackWalkPayload(eventTimestamp uint64, pid, tid uint32, addrs ...uint64) []byte {
	buf := make([]byte, 16+8*len(addrs))
	binary.LittleEndian.PutUint64(buf[0:8], eventTimestamp)
	binary.LittleEndian.PutUint32(buf[8:12], pid)
	binary.LittleEndian.PutUint32(buf[12:16], tid)
	for i, a := range addrs {
		binary.LittleEndian.PutUint64(buf[16+8*i:], a)
	}
	return buf
}

// TestStackStitchMergesKernelAndUserStackWalks drives the
// SampledProfile/StackWalk handlers directly (scenario: a sample at thread X
// followed by two stack-walks sharing its exact event timestamp, one
// kernel-classified and one user-classified) and checks that both runs land
// on one emitted sample with no user/kernel crossover.
func TestStackStitchMergesKernelAndUserStackWalks(t *testing.T) {
	s := newTestETWSource()
	d := s.buildDispatcher()
	header := etl.HeaderData{PointerSize: 8}

	const tid, pid = uint32(42), uint32(7)
	const kernelAddr, userAddr = uint64(1) << 48, uint64(0x400000)

	sampleTrace := etl.TraceHeader{
		Group:     etl.TraceGroupPerfInfo,
		GroupType: 46,
		Version:   etl.PerfInfoV2SampledProfileVersion,
		Timestamp: 1000,
		ProcessID: pid,
		Payload:   sampledProfilePayload(userAddr, tid),
	}
	if err := d.Dispatch(header, sampleTrace); err != nil {
		t.Fatalf("dispatch sample: %v", err)
	}

	kernelStackTrace := etl.TraceHeader{
		Group:     etl.TraceGroupStackWalk,
		GroupType: 32,
		Version:   etl.StackWalkV2StackVersion,
		Timestamp: 1000,
		Payload:   stackWalkPayload(1000, pid, tid, kernelAddr, kernelAddr+0x10),
	}
	if err := d.Dispatch(header, kernelStackTrace); err != nil {
		t.Fatalf("dispatch kernel stack: %v", err)
	}

	userStackTrace := etl.TraceHeader{
		Group:     etl.TraceGroupStackWalk,
		GroupType: 32,
		Version:   etl.StackWalkV2StackVersion,
		Timestamp: 1000,
		Payload:   stackWalkPayload(1000, pid, tid, userAddr, userAddr+0x10),
	}
	if err := d.Dispatch(header, userStackTrace); err != nil {
		t.Fatalf("dispatch user stack: %v", err)
	}

	s.emitAll()
	select {
	case v := <-s.samples:
		if v.KernelStack == nil || v.UserStack == nil {
			t.Fatalf("expected both stacks set, got kernel=%v user=%v", v.KernelStack, v.UserStack)
		}
		kernel := s.ctx.Stacks.Get(*v.KernelStack)
		if len(kernel) != 2 || kernel[0] != kernelAddr {
			t.Fatalf("kernel stack = %#x, want leading %#x", kernel, kernelAddr)
		}
		user := s.ctx.Stacks.Get(*v.UserStack)
		if len(user) != 2 || user[0] != userAddr {
			t.Fatalf("user stack = %#x, want leading %#x", user, userAddr)
		}
		if v.InstructionPointer != userAddr {
			t.Fatalf("InstructionPointer = %#x, want %#x", v.InstructionPointer, userAddr)
		}
	default:
		t.Fatal("expected a sample on the channel after emitAll")
	}
}

// TestStackStitchEmitsEachSampledProfileSeparately verifies that two
// SampledProfile records for the same thread, with no stack-walks arriving
// for either, are each emitted on their own rather than merged or dropped.
func TestStackStitchEmitsEachSampledProfileSeparately(t *testing.T) {
	s := newTestETWSource()
	d := s.buildDispatcher()
	header := etl.HeaderData{PointerSize: 8}
	const tid, pid = uint32(9), uint32(3)

	first := etl.TraceHeader{
		Group: etl.TraceGroupPerfInfo, GroupType: 46, Version: etl.PerfInfoV2SampledProfileVersion,
		Timestamp: 1, ProcessID: pid, Payload: sampledProfilePayload(0x1000, tid),
	}
	second := etl.TraceHeader{
		Group: etl.TraceGroupPerfInfo, GroupType: 46, Version: etl.PerfInfoV2SampledProfileVersion,
		Timestamp: 2, ProcessID: pid, Payload: sampledProfilePayload(0x2000, tid),
	}
	if err := d.Dispatch(header, first); err != nil {
		t.Fatalf("dispatch first: %v", err)
	}
	if err := d.Dispatch(header, second); err != nil {
		t.Fatalf("dispatch second: %v", err)
	}

	s.emitAll()

	v1 := <-s.samples
	if v1.InstructionPointer != 0x1000 {
		t.Fatalf("first sample IP = %#x, want 0x1000", v1.InstructionPointer)
	}
	v2 := <-s.samples
	if v2.InstructionPointer != 0x2000 {
		t.Fatalf("second sample IP = %#x, want 0x2000", v2.InstructionPointer)
	}
	if v1.KernelStack != nil || v1.UserStack != nil || v2.KernelStack != nil || v2.UserStack != nil {
		t.Fatal("neither sample should carry stacks")
	}
}

// TestStackStitchTransitionStackBindsAsKernel covers a stack classified
// user-mode overall (outermost frame below the kernel threshold) whose
// innermost frame is nonetheless still in kernel mode: a thread caught mid
// return from a system call. It should bind to the kernel-mode slot as a
// single combined walk, not split across both slots.
func TestStackStitchTransitionStackBindsAsKernel(t *testing.T) {
	s := newTestETWSource()
	d := s.buildDispatcher()
	header := etl.HeaderData{PointerSize: 8}
	const tid, pid = uint32(11), uint32(4)
	const kernelAddr, userAddr = uint64(1) << 48, uint64(0x400000)

	sampleTrace := etl.TraceHeader{
		Group: etl.TraceGroupPerfInfo, GroupType: 46, Version: etl.PerfInfoV2SampledProfileVersion,
		Timestamp: 500, ProcessID: pid, Payload: sampledProfilePayload(kernelAddr, tid),
	}
	if err := d.Dispatch(header, sampleTrace); err != nil {
		t.Fatalf("dispatch sample: %v", err)
	}

	// Innermost frame (addrs[0]) still in kernel mode, outermost frame
	// (addrs[len-1]) back in user mode: a transition stack.
	transitionTrace := etl.TraceHeader{
		Group: etl.TraceGroupStackWalk, GroupType: 32, Version: etl.StackWalkV2StackVersion,
		Timestamp: 500, Payload: stackWalkPayload(500, pid, tid, kernelAddr, userAddr),
	}
	if err := d.Dispatch(header, transitionTrace); err != nil {
		t.Fatalf("dispatch transition stack: %v", err)
	}

	s.emitAll()
	v := <-s.samples
	if v.KernelStack == nil {
		t.Fatal("transition stack should bind to the kernel-mode slot")
	}
	if v.UserStack != nil {
		t.Fatal("transition stack should not also populate the user-mode slot")
	}
	stack := s.ctx.Stacks.Get(*v.KernelStack)
	if len(stack) != 2 || stack[0] != kernelAddr || stack[1] != userAddr {
		t.Fatalf("stack = %#x, want [%#x %#x]", stack, kernelAddr, userAddr)
	}
}

// TestStackStitchDeferredUserStackBindsByThread covers a user-mode stack
// walked asynchronously after its owning sample, stamped with its own later
// emission timestamp rather than the sample's: it must still bind to the
// original sample by thread id, back-searching past the exact-timestamp
// match that fails.
func TestStackStitchDeferredUserStackBindsByThread(t *testing.T) {
	s := newTestETWSource()
	d := s.buildDispatcher()
	header := etl.HeaderData{PointerSize: 8}
	const tid, pid = uint32(21), uint32(6)
	const kernelAddr, userAddr = uint64(1) << 48, uint64(0x400000)

	sampleTrace := etl.TraceHeader{
		Group: etl.TraceGroupPerfInfo, GroupType: 46, Version: etl.PerfInfoV2SampledProfileVersion,
		Timestamp: 100, ProcessID: pid, Payload: sampledProfilePayload(kernelAddr, tid),
	}
	if err := d.Dispatch(header, sampleTrace); err != nil {
		t.Fatalf("dispatch sample: %v", err)
	}

	kernelStackTrace := etl.TraceHeader{
		Group: etl.TraceGroupStackWalk, GroupType: 32, Version: etl.StackWalkV2StackVersion,
		Timestamp: 100, Payload: stackWalkPayload(100, pid, tid, kernelAddr, kernelAddr+0x10),
	}
	if err := d.Dispatch(header, kernelStackTrace); err != nil {
		t.Fatalf("dispatch kernel stack: %v", err)
	}

	userStackTrace := etl.TraceHeader{
		Group: etl.TraceGroupStackWalk, GroupType: 32, Version: etl.StackWalkV2StackVersion,
		Timestamp: 250, Payload: stackWalkPayload(250, pid, tid, userAddr, userAddr+0x10),
	}
	if err := d.Dispatch(header, userStackTrace); err != nil {
		t.Fatalf("dispatch deferred user stack: %v", err)
	}

	s.emitAll()
	v := <-s.samples
	if v.KernelStack == nil || v.UserStack == nil {
		t.Fatalf("expected both stacks bound to the original sample, got kernel=%v user=%v", v.KernelStack, v.UserStack)
	}
}

// TestStackStitchKernelOnlySampleEmittedStandalone covers a thread that
// never returns to user mode before the trace ends: its sample should still
// be emitted, with a kernel stack and no user stack, rather than held back
// indefinitely.
func TestStackStitchKernelOnlySampleEmittedStandalone(t *testing.T) {
	s := newTestETWSource()
	d := s.buildDispatcher()
	header := etl.HeaderData{PointerSize: 8}
	const tid, pid = uint32(31), uint32(8)
	const kernelAddr = uint64(1) << 48

	sampleTrace := etl.TraceHeader{
		Group: etl.TraceGroupPerfInfo, GroupType: 46, Version: etl.PerfInfoV2SampledProfileVersion,
		Timestamp: 10, ProcessID: pid, Payload: sampledProfilePayload(kernelAddr, tid),
	}
	if err := d.Dispatch(header, sampleTrace); err != nil {
		t.Fatalf("dispatch sample: %v", err)
	}
	kernelStackTrace := etl.TraceHeader{
		Group: etl.TraceGroupStackWalk, GroupType: 32, Version: etl.StackWalkV2StackVersion,
		Timestamp: 10, Payload: stackWalkPayload(10, pid, tid, kernelAddr, kernelAddr+0x10),
	}
	if err := d.Dispatch(header, kernelStackTrace); err != nil {
		t.Fatalf("dispatch kernel stack: %v", err)
	}

	s.emitAll()
	v := <-s.samples
	if v.KernelStack == nil {
		t.Fatal("expected a kernel stack")
	}
	if v.UserStack != nil {
		t.Fatal("a thread that never returns to user mode should have no user stack")
	}
}

func TestKernelAddressThresholdBy32And64Bit(t *testing.T) {
	if got := kernelAddressThreshold(4); got != 1<<31 {
		t.Fatalf("kernelAddressThreshold(4) = %#x, want %#x", got, uint64(1)<<31)
	}
	if got := kernelAddressThreshold(8); got != 1<<47 {
		t.Fatalf("kernelAddressThreshold(8) = %#x, want %#x", got, uint64(1)<<47)
	}
}
