package etl

// TraceGroup is the kernel record "group" tag packed into the high byte
// of the classic WMI_TRACE_PACKET HookId field (group<<8 | type).
type TraceGroup uint8

const (
	TraceGroupHeader    TraceGroup = 0x00
	TraceGroupProcess   TraceGroup = 0x01
	TraceGroupThread    TraceGroup = 0x02
	TraceGroupImage     TraceGroup = 0x0b
	TraceGroupConfig    TraceGroup = 0x10
	TraceGroupStackWalk TraceGroup = 0x32
	TraceGroupPerfInfo  TraceGroup = 0xfa
)

func (g TraceGroup) String() string {
	switch g {
	case TraceGroupHeader:
		return "header"
	case TraceGroupProcess:
		return "process"
	case TraceGroupThread:
		return "thread"
	case TraceGroupImage:
		return "image"
	case TraceGroupConfig:
		return "config"
	case TraceGroupStackWalk:
		return "stackwalk"
	case TraceGroupPerfInfo:
		return "perfinfo"
	default:
		return "unknown"
	}
}

// EventIdentifierGroup names one (group,type) pair a group-keyed record
// catalog entry is registered for.
type EventIdentifierGroup struct {
	Group TraceGroup
	Type  uint8
	Name  string
}

// EventIdentifierGUID names one (guid,type) pair a guid-keyed record
// catalog entry is registered for.
type EventIdentifierGUID struct {
	GUID GUID
	Type uint16
	Name string
}

// Well-known provider GUIDs for the guid-keyed record catalog.
var (
	ImageIDTaskGUID = NewGUID(0xb3e675d7, 0x2554, 0x4f18, [8]byte{0x83, 0x0b, 0x27, 0x62, 0x73, 0x25, 0x60, 0xde})

	SystemConfigExGUID = NewGUID(0x9b79ee91, 0xb5fd, 0x41c0, [8]byte{0xa2, 0x43, 0x42, 0x48, 0xe2, 0x66, 0xe9, 0xd0})

	VSDiagnosticsHubGUID = NewGUID(0x9e5f9046, 0x43c6, 0x4f62, [8]byte{0xba, 0x13, 0x7b, 0x19, 0x89, 0x62, 0x53, 0xff})

	SnailProfilerGUID = NewGUID(0x460b83b6, 0xfc11, 0x481b, [8]byte{0xb7, 0xaa, 0x40, 0x38, 0xca, 0x4c, 0x4c, 0x48})
)
