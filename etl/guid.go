package etl

import (
	"encoding/binary"
	"fmt"
)

// GUID is a 128-bit Windows GUID, stored in its on-disk mixed-endian
// layout (the first three fields little-endian, the last two big-endian),
// matching how GUIDs appear inline in ETW records.
type GUID [16]byte

// NewGUID builds a GUID from its canonical {data1,data2,data3,data4[8]}
// components, the representation used by the record-identifier constants
// throughout the kernel and guid-keyed record catalogs.
func NewGUID(data1 uint32, data2, data3 uint16, data4 [8]byte) GUID {
	var g GUID
	binary.LittleEndian.PutUint32(g[0:4], data1)
	binary.LittleEndian.PutUint16(g[4:6], data2)
	binary.LittleEndian.PutUint16(g[6:8], data3)
	copy(g[8:16], data4[:])
	return g
}

// ParseGUIDBytes reads a GUID from its 16-byte on-disk form.
func ParseGUIDBytes(b []byte) GUID {
	var g GUID
	copy(g[:], b[:16])
	return g
}

func (g GUID) String() string {
	data1 := binary.LittleEndian.Uint32(g[0:4])
	data2 := binary.LittleEndian.Uint16(g[4:6])
	data3 := binary.LittleEndian.Uint16(g[6:8])
	return fmt.Sprintf("%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		data1, data2, data3, g[8], g[9], g[10], g[11], g[12], g[13], g[14], g[15])
}
