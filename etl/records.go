package etl

import (
	"github.com/snailtrace/snail/internal/bufview"
)

func dynView(payload []byte, pointerSize int) bufview.DynamicView {
	return bufview.DynamicView{
		View:        bufview.View{Data: payload, Order: bufview.HostOrder},
		PointerSize: pointerSize,
	}
}

// ProcessV4TypeGroup1 is Process_V4_TypeGroup1:Process_V4 (load / unload /
// dc_start / dc_end / defunct), event_trace_group process.
type ProcessV4TypeGroup1 struct{ v bufview.DynamicView }

var ProcessV4TypeGroup1Ids = []EventIdentifierGroup{
	{Group: TraceGroupProcess, Type: 1, Name: "load"},
	{Group: TraceGroupProcess, Type: 2, Name: "unload"},
	{Group: TraceGroupProcess, Type: 3, Name: "dc_start"},
	{Group: TraceGroupProcess, Type: 4, Name: "dc_end"},
	{Group: TraceGroupProcess, Type: 39, Name: "defunct"},
}

const ProcessV4TypeGroup1Version = 4

func NewProcessV4TypeGroup1(payload []byte, pointerSize int) ProcessV4TypeGroup1 {
	return ProcessV4TypeGroup1{v: dynView(payload, pointerSize)}
}

func (e ProcessV4TypeGroup1) UniqueProcessKey() uint64 { return e.v.Pointer(e.v.FieldOffset(0, 0)) }
func (e ProcessV4TypeGroup1) ProcessID() uint32        { return e.v.U32(e.v.FieldOffset(0, 1)) }
func (e ProcessV4TypeGroup1) ParentID() uint32         { return e.v.U32(e.v.FieldOffset(4, 1)) }
func (e ProcessV4TypeGroup1) SessionID() uint32        { return e.v.U32(e.v.FieldOffset(8, 1)) }
func (e ProcessV4TypeGroup1) ExitStatus() int32        { return e.v.I32(e.v.FieldOffset(12, 1)) }

func (e ProcessV4TypeGroup1) hasSID() bool { return e.v.U32(e.v.FieldOffset(20, 2)) != 0 }

// ImageFilename and CommandLine approximate the original's SID-aware layout:
// when hasSID reports a SID, both fields are read two pointer widths further
// on, and the variable length of the SID body itself is not added to that
// offset.
func (e ProcessV4TypeGroup1) ImageFilename() string {
	off := e.v.FieldOffset(20, 2)
	if e.hasSID() {
		off = e.v.FieldOffset(20, 4)
	}
	s, _ := e.v.CString(off)
	return s
}

func (e ProcessV4TypeGroup1) CommandLine() string {
	base := e.v.FieldOffset(20, 2)
	if e.hasSID() {
		base = e.v.FieldOffset(20, 4)
	}
	img := e.ImageFilename()
	s, _ := e.v.UTF16String(base + len(img) + 1)
	return s
}

// ThreadV3TypeGroup1 is Thread_V3_TypeGroup1:Thread_V3.
type ThreadV3TypeGroup1 struct{ v bufview.DynamicView }

var ThreadV3TypeGroup1Ids = []EventIdentifierGroup{
	{Group: TraceGroupThread, Type: 1, Name: "start"},
	{Group: TraceGroupThread, Type: 2, Name: "end"},
	{Group: TraceGroupThread, Type: 3, Name: "dc_start"},
	{Group: TraceGroupThread, Type: 4, Name: "dc_end"},
}

const ThreadV3TypeGroup1Version = 3

func NewThreadV3TypeGroup1(payload []byte, pointerSize int) ThreadV3TypeGroup1 {
	return ThreadV3TypeGroup1{v: dynView(payload, pointerSize)}
}

func (e ThreadV3TypeGroup1) ProcessID() uint32 { return e.v.U32(e.v.FieldOffset(0, 0)) }
func (e ThreadV3TypeGroup1) ThreadID() uint32  { return e.v.U32(e.v.FieldOffset(4, 0)) }

// ThreadV4TypeGroup1 is Thread_TypeGroup1:Thread_V4, adding a thread name.
type ThreadV4TypeGroup1 struct{ v bufview.DynamicView }

var ThreadV4TypeGroup1Ids = ThreadV3TypeGroup1Ids

const ThreadV4TypeGroup1Version = 4

func NewThreadV4TypeGroup1(payload []byte, pointerSize int) ThreadV4TypeGroup1 {
	return ThreadV4TypeGroup1{v: dynView(payload, pointerSize)}
}

func (e ThreadV4TypeGroup1) ProcessID() uint32 { return e.v.U32(e.v.FieldOffset(0, 0)) }
func (e ThreadV4TypeGroup1) ThreadID() uint32  { return e.v.U32(e.v.FieldOffset(4, 0)) }
func (e ThreadV4TypeGroup1) ThreadName() string {
	s, _ := e.v.UTF16String(e.v.FieldOffset(16, 7))
	return s
}

// ImageV2Load is Image_Load:Image (load/unload/dc_start/dc_end). Oddly, the
// "load" variant is reported under the process group rather than image.
type ImageV2Load struct{ v bufview.DynamicView }

var ImageV2LoadIds = []EventIdentifierGroup{
	{Group: TraceGroupProcess, Type: 10, Name: "load"},
	{Group: TraceGroupImage, Type: 2, Name: "unload"},
	{Group: TraceGroupImage, Type: 3, Name: "dc_start"},
	{Group: TraceGroupImage, Type: 4, Name: "dc_end"},
}

const ImageV2LoadVersion = 3

func NewImageV2Load(payload []byte, pointerSize int) ImageV2Load {
	return ImageV2Load{v: dynView(payload, pointerSize)}
}

func (e ImageV2Load) ImageBase() uint64    { return e.v.U64(e.v.FieldOffset(0, 0)) }
func (e ImageV2Load) ImageSize() uint64    { return e.v.U64(e.v.FieldOffset(0, 1)) }
func (e ImageV2Load) ProcessID() uint32    { return e.v.U32(e.v.FieldOffset(0, 2)) }
func (e ImageV2Load) ImageChecksum() uint32 { return e.v.U32(e.v.FieldOffset(4, 2)) }
func (e ImageV2Load) FileName() string {
	s, _ := e.v.UTF16String(e.v.FieldOffset(32, 3))
	return s
}

// ImageIDV2Info is the kernel-trace-control image-id task's "info" record,
// correlating a loaded module's original filename and timestamp by
// (base address, process id).
type ImageIDV2Info struct{ v bufview.DynamicView }

var ImageIDV2InfoIds = []EventIdentifierGUID{
	{GUID: ImageIDTaskGUID, Type: 0, Name: "info"},
}

const ImageIDV2InfoVersion = 2

func NewImageIDV2Info(payload []byte, pointerSize int) ImageIDV2Info {
	return ImageIDV2Info{v: dynView(payload, pointerSize)}
}

func (e ImageIDV2Info) ImageBase() uint64  { return e.v.Pointer(e.v.FieldOffset(0, 0)) }
func (e ImageIDV2Info) ProcessID() uint32  { return e.v.U32(e.v.FieldOffset(0, 2)) }
func (e ImageIDV2Info) TimeDateStamp() uint32 { return e.v.U32(e.v.FieldOffset(4, 2)) }
func (e ImageIDV2Info) OriginalFileName() string {
	s, _ := e.v.UTF16String(e.v.FieldOffset(8, 2))
	return s
}

// ImageIDV2DbgIDRSDS is the kernel-trace-control image-id task's
// "DbgID_RSDS" record, carrying the CodeView PDB signature (guid, age, pdb
// file name) a loaded module was built with.
type ImageIDV2DbgIDRSDS struct{ v bufview.DynamicView }

var ImageIDV2DbgIDRSDSIds = []EventIdentifierGUID{
	{GUID: ImageIDTaskGUID, Type: 36, Name: "DbgID_RSDS"},
}

const ImageIDV2DbgIDRSDSVersion = 2

func NewImageIDV2DbgIDRSDS(payload []byte, pointerSize int) ImageIDV2DbgIDRSDS {
	return ImageIDV2DbgIDRSDS{v: dynView(payload, pointerSize)}
}

func (e ImageIDV2DbgIDRSDS) ImageBase() uint64 { return e.v.Pointer(e.v.FieldOffset(0, 0)) }
func (e ImageIDV2DbgIDRSDS) ProcessID() uint32 { return e.v.U32(e.v.FieldOffset(0, 2)) }
func (e ImageIDV2DbgIDRSDS) GUID() [16]byte {
	var g [16]byte
	copy(g[:], e.v.Bytes(e.v.FieldOffset(4, 2), 16))
	return g
}
func (e ImageIDV2DbgIDRSDS) Age() uint32 { return e.v.U32(e.v.FieldOffset(20, 2)) }
func (e ImageIDV2DbgIDRSDS) PDBFileName() string {
	s, _ := e.v.UTF16String(e.v.FieldOffset(24, 2))
	return s
}

// PerfInfoV2SampledProfile is SampledProfile:PerfInfo_V2 — one CPU sample.
type PerfInfoV2SampledProfile struct{ v bufview.DynamicView }

var PerfInfoV2SampledProfileIds = []EventIdentifierGroup{
	{Group: TraceGroupPerfInfo, Type: 46, Name: "sampled_profile"},
}

const PerfInfoV2SampledProfileVersion = 2

func NewPerfInfoV2SampledProfile(payload []byte, pointerSize int) PerfInfoV2SampledProfile {
	return PerfInfoV2SampledProfile{v: dynView(payload, pointerSize)}
}

func (e PerfInfoV2SampledProfile) InstructionPointer() uint64 {
	return e.v.Pointer(e.v.FieldOffset(0, 0))
}
func (e PerfInfoV2SampledProfile) ThreadID() uint32 { return e.v.U32(e.v.FieldOffset(0, 1)) }

// StackWalkV2Stack is StackWalk_Event:StackWalk, a deferred stack payload
// stamped with the originating sample's event timestamp.
type StackWalkV2Stack struct {
	v           bufview.View
	pointerSize int
}

var StackWalkV2StackIds = []EventIdentifierGroup{
	{Group: TraceGroupStackWalk, Type: 32, Name: "Stack"},
}

const StackWalkV2StackVersion = 2
const stackwalkStackBaseOffset = 16

func NewStackWalkV2Stack(payload []byte, pointerSize int) StackWalkV2Stack {
	return StackWalkV2Stack{v: bufview.View{Data: payload, Order: bufview.HostOrder}, pointerSize: pointerSize}
}

func (e StackWalkV2Stack) EventTimestamp() uint64 { return e.v.U64(0) }
func (e StackWalkV2Stack) ProcessID() uint32      { return e.v.U32(8) }
func (e StackWalkV2Stack) ThreadID() uint32       { return e.v.U32(12) }

func (e StackWalkV2Stack) Count() int {
	return (len(e.v.Data) - stackwalkStackBaseOffset) / e.pointerSize
}

// Addresses returns the full stack, innermost frame first, as stored on
// the wire.
func (e StackWalkV2Stack) Addresses() []uint64 {
	n := e.Count()
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		off := stackwalkStackBaseOffset + i*e.pointerSize
		if e.pointerSize == 4 {
			out[i] = uint64(e.v.U32(off))
		} else {
			out[i] = e.v.U64(off)
		}
	}
	return out
}

// SystemConfigExVolumeMapping is SystemConfigEx's volume_mapping record,
// correlating an NT device path with its DOS drive-letter path.
type SystemConfigExVolumeMapping struct{ v bufview.DynamicView }

var SystemConfigExVolumeMappingIds = []EventIdentifierGUID{
	{GUID: SystemConfigExGUID, Type: 35, Name: "volume_mapping"},
}

const SystemConfigExVolumeMappingVersion = 0

func NewSystemConfigExVolumeMapping(payload []byte, pointerSize int) SystemConfigExVolumeMapping {
	return SystemConfigExVolumeMapping{v: dynView(payload, pointerSize)}
}

func (e SystemConfigExVolumeMapping) NTPath() string {
	s, _ := e.v.UTF16String(e.v.FieldOffset(0, 0))
	return s
}

func (e SystemConfigExVolumeMapping) DOSPath() string {
	nt := e.NTPath()
	s, _ := e.v.UTF16String(e.v.FieldOffset(0, 0) + len(nt)*2 + 2)
	return s
}

// SnailProfilerProfileTarget marks a process id as a profiling target.
type SnailProfilerProfileTarget struct{ v bufview.DynamicView }

var SnailProfilerProfileTargetIds = []EventIdentifierGUID{
	{GUID: SnailProfilerGUID, Type: 1, Name: "ProfTarget"},
}

const SnailProfilerProfileTargetVersion = 0

func NewSnailProfilerProfileTarget(payload []byte, pointerSize int) SnailProfilerProfileTarget {
	return SnailProfilerProfileTarget{v: dynView(payload, pointerSize)}
}

func (e SnailProfilerProfileTarget) ProcessID() uint32 { return e.v.U32(e.v.FieldOffset(0, 0)) }

// VSDiagnosticsHubTargetProfilingStarted marks which process is the
// sampling target for a Visual Studio Diagnostics Hub capture.
type VSDiagnosticsHubTargetProfilingStarted struct{ v bufview.DynamicView }

var VSDiagnosticsHubTargetProfilingStartedIds = []EventIdentifierGUID{
	{GUID: VSDiagnosticsHubGUID, Type: 1, Name: "target profiling started"},
}

const VSDiagnosticsHubTargetProfilingStartedVersion = 2

func NewVSDiagnosticsHubTargetProfilingStarted(payload []byte, pointerSize int) VSDiagnosticsHubTargetProfilingStarted {
	return VSDiagnosticsHubTargetProfilingStarted{v: dynView(payload, pointerSize)}
}

func (e VSDiagnosticsHubTargetProfilingStarted) ProcessID() uint32 {
	return e.v.U32(e.v.FieldOffset(0, 0))
}
func (e VSDiagnosticsHubTargetProfilingStarted) Timestamp() uint64 {
	return e.v.U64(e.v.FieldOffset(8, 0))
}
