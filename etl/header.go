package etl

import (
	"github.com/snailtrace/snail/internal/bufview"
	"github.com/snailtrace/snail/snailerr"
)

// HeaderData is the file-wide context extracted from the first wmi buffer's
// event_trace_v2_header_event record: pointer width, QPC conversion factor,
// trace start time and CPU count. Every subsequent dynamic-layout record is
// parsed against PointerSize.
type HeaderData struct {
	PointerSize      int
	QPCFrequency     uint64
	StartTime        uint64 // 100ns FILETIME
	NumberOfCPUs     uint32
	NumberOfBuffers  uint32
	BufferSize       uint32
}

// bufferType distinguishes a wmi buffer's payload shape.
type bufferType uint8

const (
	bufferTypeGeneric bufferType = 0
	bufferTypeHeader  bufferType = 1
)

// wmiBufferHeader is the fixed prefix of every 64 KiB wmi buffer: how many
// payload bytes are in use, whether the payload is XPRESS-compressed, and
// which kind of buffer this is (the first buffer in a file is always the
// header buffer carrying event_trace_v2_header_event).
type wmiBufferHeader struct {
	BufferSize uint32
	SavedOffset uint32
	CurrentOffset uint32
	Kind       bufferType
	Compressed bool
}

const wmiBufferHeaderSize = 16

func parseWMIBufferHeader(v bufview.View) wmiBufferHeader {
	bufferSize := v.U32(0)
	savedOffset := v.U32(4)
	currentOffset := v.U32(8)
	flags := v.U32(12)
	return wmiBufferHeader{
		BufferSize:    bufferSize,
		SavedOffset:   savedOffset,
		CurrentOffset: currentOffset,
		Kind:          bufferType(flags & 0x1),
		Compressed:    flags&0x2 != 0,
	}
}

// TraceHeaderKind distinguishes the six trace-header variants a record in
// the buffer's payload stream begins with.
type TraceHeaderKind int

const (
	SystemTrace TraceHeaderKind = iota
	CompactTrace
	PerfinfoTrace
	FullHeaderTrace
	InstanceTrace
	EventHeaderTrace
)

// TraceHeader is the common view every variant exposes once parsed: its
// kind, total on-wire size (header + payload), and the payload span.
type TraceHeader struct {
	Kind      TraceHeaderKind
	Size      int // total record size, header included
	Timestamp uint64

	// Group-keyed identity (SystemTrace, CompactTrace, PerfinfoTrace).
	Group TraceGroup
	GroupType uint8
	Version   uint16

	// Guid-keyed identity (FullHeaderTrace, InstanceTrace, EventHeaderTrace).
	GUID     GUID
	GUIDType uint16

	ThreadID  uint32
	ProcessID uint32

	Payload []byte
}

// IsGroupKeyed reports whether this header dispatches via (Group,GroupType,Version)
// rather than (GUID,GUIDType,Version).
func (h TraceHeader) IsGroupKeyed() bool {
	switch h.Kind {
	case SystemTrace, CompactTrace, PerfinfoTrace:
		return true
	default:
		return false
	}
}

// parseTraceHeader reads one trace-header + payload record starting at the
// front of data, returning the header; its Size field is the number of bytes
// the header and its payload together occupy.
//
// Discrimination mirrors the classic WMI header family: the first 2 bytes
// are a record Size, the 3rd byte a HeaderType selecting the variant.
// EventHeaderTrace uses the modern fixed 80-byte EVENT_HEADER layout
// (evntrace.h) instead.
func parseTraceHeader(v bufview.View) (TraceHeader, error) {
	if len(v.Data) < 4 {
		return TraceHeader{}, snailerr.New(snailerr.BadFormat, "etl: truncated trace header")
	}
	size := int(v.U16(0))
	headerType := v.U8(2)
	if size < 4 || size > len(v.Data) {
		return TraceHeader{}, snailerr.Newf(snailerr.BadFormat, "etl: invalid trace record size %d", size)
	}

	switch headerType {
	case 2, 3: // TRACE_HEADER_TYPE_SYSTEM32 / SYSTEM64
		if size < 32 {
			return TraceHeader{}, snailerr.New(snailerr.BadFormat, "etl: truncated system_trace header")
		}
		hookID := v.U16(4)
		h := TraceHeader{
			Kind:      SystemTrace,
			Size:      size,
			Group:     TraceGroup(hookID >> 8),
			GroupType: uint8(hookID & 0xff),
			Version:   uint16(v.U32(8)),
			ThreadID:  v.U32(12),
			ProcessID: v.U32(16),
			Timestamp: v.U64(24),
			Payload:   v.Bytes(32, size-32),
		}
		return h, nil
	case 4, 5: // COMPACT32 / COMPACT64
		if size < 12 {
			return TraceHeader{}, snailerr.New(snailerr.BadFormat, "etl: truncated compact_trace header")
		}
		hookID := v.U16(4)
		h := TraceHeader{
			Kind:      CompactTrace,
			Size:      size,
			Group:     TraceGroup(hookID >> 8),
			GroupType: uint8(hookID & 0xff),
			Timestamp: v.U64(4 + 2 + 2), // directly after size+hookid, no version field
			Payload:   v.Bytes(12, size-12),
		}
		return h, nil
	case 18, 19: // PERFINFO32 / PERFINFO64
		if size < 12 {
			return TraceHeader{}, snailerr.New(snailerr.BadFormat, "etl: truncated perfinfo_trace header")
		}
		hookID := v.U16(4)
		h := TraceHeader{
			Kind:      PerfinfoTrace,
			Size:      size,
			Group:     TraceGroup(hookID >> 8),
			GroupType: uint8(hookID & 0xff),
			Timestamp: v.U64(4),
			Payload:   v.Bytes(12, size-12),
		}
		return h, nil
	case 10, 12: // FULL_HEADER32 / FULL_HEADER64
		if size < 48 {
			return TraceHeader{}, snailerr.New(snailerr.BadFormat, "etl: truncated full_header_trace header")
		}
		classType := v.U16(8)
		classVersion := v.U8(11)
		h := TraceHeader{
			Kind:      FullHeaderTrace,
			Size:      size,
			GUID:      ParseGUIDBytes(v.Bytes(24, 16)),
			GUIDType:  classType,
			Version:   uint16(classVersion),
			ThreadID:  v.U32(12),
			ProcessID: v.U32(16),
			Timestamp: v.U64(20),
			Payload:   v.Bytes(48, size-48),
		}
		return h, nil
	case 11, 13: // INSTANCE32 / INSTANCE64
		if size < 56 {
			return TraceHeader{}, snailerr.New(snailerr.BadFormat, "etl: truncated instance_trace header")
		}
		// Instance headers reference their provider GUID indirectly via a
		// RegHandle resolved through a separate registration record that
		// this decoder does not track; such records are reported with a
		// zero GUID and dispatched only to unknown-guid handlers.
		h := TraceHeader{
			Kind:      InstanceTrace,
			Size:      size,
			ThreadID:  v.U32(12),
			ProcessID: v.U32(16),
			Timestamp: v.U64(20),
			Payload:   v.Bytes(56, size-56),
		}
		return h, nil
	case 20, 21: // EVENT_HEADER32 / EVENT_HEADER64
		if size < 80 {
			return TraceHeader{}, snailerr.New(snailerr.BadFormat, "etl: truncated event_header_trace header")
		}
		// EVENT_HEADER: Size(2) HeaderType(2) Flags(2) EventProperty(2)
		// ThreadId(4) ProcessId(4) TimeStamp(8) ProviderId(16)
		// EVENT_DESCRIPTOR{Id(2) Version(1) Channel(1) Level(1) Opcode(1) Task(2) Keyword(8)}
		// union KernelTime/UserTime or ProcessorTime(8) ActivityId(16).
		h := TraceHeader{
			Kind:      EventHeaderTrace,
			Size:      size,
			ThreadID:  v.U32(8),
			ProcessID: v.U32(12),
			Timestamp: v.U64(16),
			GUID:      ParseGUIDBytes(v.Bytes(24, 16)),
			GUIDType:  v.U16(40),
			Version:   uint16(v.U8(42)),
			Payload:   v.Bytes(80, size-80),
		}
		return h, nil
	default:
		return TraceHeader{}, snailerr.Newf(snailerr.Unsupported, "etl: unknown trace header type %d", headerType)
	}
}
