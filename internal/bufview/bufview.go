// Package bufview provides non-owning, endianness-aware readers over byte
// spans, used by both trace decoders to parse fixed- and dynamic-layout
// records without copying.
//
// A View never allocates and never outlives the buffer it was constructed
// from; callers that need data to survive past the current record must
// copy it out (e.g. via CString or UTF16String, not a raw byte slice).
package bufview

import (
	"encoding/binary"
	"math"

	"github.com/snailtrace/snail/snailerr"
)

// View is a non-owning reference to a contiguous byte region plus an
// endianness. Offsets passed to its methods are relative to the start of
// the region. Out-of-range access is a caller bug (snailerr.Internal),
// matching spec §4.1's "precondition" note.
type View struct {
	Data  []byte
	Order binary.ByteOrder
}

func (v View) mustHave(off, n int) {
	if off < 0 || n < 0 || off+n > len(v.Data) {
		panic(snailerr.Newf(snailerr.Internal, "bufview: out of range read at %d+%d (len %d)", off, n, len(v.Data)))
	}
}

func (v View) U8(off int) uint8 {
	v.mustHave(off, 1)
	return v.Data[off]
}

func (v View) U16(off int) uint16 {
	v.mustHave(off, 2)
	return v.Order.Uint16(v.Data[off:])
}

func (v View) U32(off int) uint32 {
	v.mustHave(off, 4)
	return v.Order.Uint32(v.Data[off:])
}

func (v View) U64(off int) uint64 {
	v.mustHave(off, 8)
	return v.Order.Uint64(v.Data[off:])
}

func (v View) I32(off int) int32 { return int32(v.U32(off)) }
func (v View) I64(off int) int64 { return int64(v.U64(off)) }

func (v View) F32(off int) float32 { return math.Float32frombits(v.U32(off)) }
func (v View) F64(off int) float64 { return math.Float64frombits(v.U64(off)) }

// Bytes returns a borrowed n-byte slice at off. The caller must copy it
// before the underlying buffer may be reused.
func (v View) Bytes(off, n int) []byte {
	v.mustHave(off, n)
	return v.Data[off : off+n]
}

// Sub returns a View over a sub-region, preserving Order.
func (v View) Sub(off, n int) View {
	v.mustHave(off, n)
	return View{Data: v.Data[off : off+n], Order: v.Order}
}

// CString reads a NUL-terminated byte string starting at off. It fails
// (returns ok=false) if no zero byte is found within the view, per
// spec §4.1's "string length auto-detection... fails if none is found".
func (v View) CString(off int) (s string, ok bool) {
	for i := off; i < len(v.Data); i++ {
		if v.Data[i] == 0 {
			return string(v.Data[off:i]), true
		}
	}
	return "", false
}

// UTF16String reads a NUL-terminated UTF-16 string (in v's endianness)
// starting at off.
func (v View) UTF16String(off int) (s string, ok bool) {
	var units []uint16
	for i := off; i+1 < len(v.Data); i += 2 {
		u := v.Order.Uint16(v.Data[i:])
		if u == 0 {
			return utf16ToString(units), true
		}
		units = append(units, u)
	}
	return "", false
}

func utf16ToString(units []uint16) string {
	// Minimal UTF-16 -> UTF-8 decode (BMP + surrogate pairs), avoiding a
	// dependency on golang.org/x/text for a handful of call sites.
	runes := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) {
			low := units[i+1]
			if low >= 0xDC00 && low <= 0xDFFF {
				r := (rune(u)-0xD800)<<10 | (rune(low) - 0xDC00) + 0x10000
				runes = append(runes, r)
				i++
				continue
			}
		}
		runes = append(runes, rune(u))
	}
	return string(runes)
}

// LenString reads a u32 byte-length prefix followed by that many bytes of
// a NUL-terminated string (perf.data's "lenString" layout), matching
// perffile's bufDecoder.lenString.
func (v View) LenString(off int) (s string, next int) {
	l := int(v.U32(off))
	body := off + 4
	end := body + l
	if end > len(v.Data) {
		end = len(v.Data)
	}
	sub := View{Data: v.Data[body:end], Order: v.Order}
	str, _ := sub.CString(0)
	return str, body + l
}

// DynamicView additionally knows a pointer size (4 or 8), chosen from the
// source file's header, so pointer-typed fields can be read without the
// caller tracking the width at every call site (spec §4.1).
type DynamicView struct {
	View
	PointerSize int // 4 or 8
}

// Pointer reads a pointer-sized integer at off.
func (v DynamicView) Pointer(off int) uint64 {
	if v.PointerSize == 4 {
		return uint64(v.U32(off))
	}
	return v.U64(off)
}

// FieldOffset computes base + fixedBytes + pointerCount*PointerSize, the
// layout rule spec §4.1 gives for dynamic-layout records.
func (v DynamicView) FieldOffset(fixedBytes, pointerCount int) int {
	return fixedBytes + pointerCount*v.PointerSize
}

// HostOrder is the byte order of the running process, used to decide
// whether integer fields need swapping: "byte-swap iff the file's
// declared endianness differs from the host's" (spec §4.1).
var HostOrder binary.ByteOrder = func() binary.ByteOrder {
	var x uint16 = 1
	b := [2]byte{}
	binary.NativeEndian.PutUint16(b[:], x)
	if b[0] == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()
