package perfdata

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildMinimalFile assembles the smallest valid in-memory perf.data image:
// one event attr (ABI v0 sized, default flags), no IDs, no feature
// sections, and an empty (but non-empty-sized) data section.
func buildMinimalFile(t *testing.T) []byte {
	t.Helper()

	const headerSize = 104 // 8 Magic + 8 Size + 8 AttrSize + 3*16 fileSection + 4*8 Features
	const attrV0Size = 64
	const idsSize = 16
	const attrEntrySize = attrV0Size + idsSize

	var buf bytes.Buffer

	hdr := fileHeader{
		Magic:    [8]byte{'P', 'E', 'R', 'F', 'I', 'L', 'E', '2'},
		Size:     headerSize,
		AttrSize: attrEntrySize,
		Attrs:    fileSection{Offset: headerSize, Size: attrEntrySize},
		Data:     fileSection{Offset: headerSize + attrEntrySize, Size: 8},
	}
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		t.Fatalf("writing header: %v", err)
	}
	if buf.Len() != headerSize {
		t.Fatalf("header encoded to %d bytes, want %d", buf.Len(), headerSize)
	}

	attr := eventAttrV0{
		Type:               EventType(EventTypeHardware),
		Size:               attrV0Size,
		SamplePeriodOrFreq: 1,
	}
	if err := binary.Write(&buf, binary.LittleEndian, &attr); err != nil {
		t.Fatalf("writing attr: %v", err)
	}
	ids := fileSection{Offset: 0, Size: 0}
	if err := binary.Write(&buf, binary.LittleEndian, &ids); err != nil {
		t.Fatalf("writing ids section: %v", err)
	}

	buf.Write(make([]byte, 8)) // dummy data section, never parsed by New

	return buf.Bytes()
}

func TestNewParsesMinimalHeader(t *testing.T) {
	data := buildMinimalFile(t)
	f, err := New(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(f.Events) != 1 {
		t.Fatalf("len(Events) = %d, want 1", len(f.Events))
	}
	if _, ok := f.Events[0].Event.(EventHardware); !ok {
		t.Fatalf("Events[0].Event = %#v (%T), want EventHardware", f.Events[0].Event, f.Events[0].Event)
	}
	if f.Events[0].SamplePeriod != 1 {
		t.Fatalf("Events[0].SamplePeriod = %d, want 1", f.Events[0].SamplePeriod)
	}
}

func TestNewRejectsBadMagic(t *testing.T) {
	data := buildMinimalFile(t)
	copy(data[:8], "NOTPERF!")
	if _, err := New(bytes.NewReader(data), nil); err == nil {
		t.Fatal("New with bad magic succeeded, want error")
	}
}

func TestNewRejectsTruncatedData(t *testing.T) {
	data := buildMinimalFile(t)
	// Zero out Data.Size (first field of the Data fileSection is Offset,
	// second is Size) to simulate an improperly terminated capture.
	binary.LittleEndian.PutUint64(data[headerOffsetOf(t, "Data")+8:], 0)
	if _, err := New(bytes.NewReader(data), nil); err == nil {
		t.Fatal("New with zero Data.Size succeeded, want truncated-file error")
	}
}

// headerOffsetOf returns the byte offset of a fileHeader field by name,
// for tests that need to poke at the raw encoding.
func headerOffsetOf(t *testing.T, field string) int {
	t.Helper()
	switch field {
	case "Data":
		return 8 + 8 + 8 + 16 // Magic + Size + AttrSize + Attrs
	default:
		t.Fatalf("unknown field %q", field)
		return 0
	}
}
