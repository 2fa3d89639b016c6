// Package xpress implements the MS-XCA "plain LZ77" (XPRESS) compression
// format used to compress ETW buffers, ported byte-for-byte from
// ms_xca_decompression.cpp so its corner cases (the length=7 nibble-pair
// encoding, see Decompress's doc comment) match the reference decoder
// exactly.
//
// See https://learn.microsoft.com/en-us/openspecs/windows_protocols/ms-xca
package xpress

import (
	"encoding/binary"

	"github.com/snailtrace/snail/snailerr"
)

// Format selects which MS-XCA variant a buffer was compressed with.
type Format int

const (
	// None means the payload is stored verbatim.
	None Format = iota
	// LZNT1 is recognized but not implemented.
	LZNT1
	// XpressHuff is XPRESS with Huffman coding, recognized but not
	// implemented.
	XpressHuff
	// Xpress is the plain LZ77 variant this package decodes.
	Xpress
)

// Decompress decompresses input into output using the format given by
// format. It returns the number of bytes written to output.
//
// For Xpress, this ports decompress_xpress from
// original_source/snail/common/ms_xca_decompression.cpp directly:
// match_length==7 triggers a nibble-pair encoding where the low nibble of
// an extra byte is consumed on the first such match and the high nibble
// of that *same* byte is consumed on the next one, tracked via
// last_length_half_offset (reset to 0 once the high nibble is consumed).
// This state is local to one Decompress call — it does not persist
// across ETL buffers, since each compressed buffer is decompressed
// independently (see DESIGN.md's Open Question decision).
func Decompress(input []byte, output []byte, format Format) (int, error) {
	switch format {
	case None:
		n := copy(output, input)
		if n < len(input) {
			return n, snailerr.New(snailerr.BadFormat, "xpress: output buffer too small for verbatim copy")
		}
		return n, nil
	case LZNT1, XpressHuff:
		return 0, snailerr.New(snailerr.Unsupported, "xpress: LZNT1/XPRESS-Huffman decompression not implemented")
	case Xpress:
		return decompressXpress(input, output)
	default:
		return 0, snailerr.New(snailerr.BadFormat, "xpress: invalid compression format")
	}
}

func decompressXpress(input, output []byte) (int, error) {
	inOff := 0
	outPos := 0

	flagCount := 0
	var flags uint32

	lastLengthHalfOffset := 0

	inSize := len(input)
	outSize := len(output)

	for inOff < inSize {
		if flagCount == 0 {
			if inOff+4 > inSize {
				break
			}
			flags = binary.LittleEndian.Uint32(input[inOff:])
			inOff += 4
			flagCount = 32
		}

		flagCount--

		if flags&(1<<uint(flagCount)) == 0 {
			if outPos >= outSize {
				return outPos, snailerr.New(snailerr.BadFormat, "xpress: insufficient output buffer size")
			}
			output[outPos] = input[inOff]
			inOff++
			outPos++
			continue
		}

		if inOff+1 >= inSize {
			break
		}
		matchBytes := binary.LittleEndian.Uint16(input[inOff:])
		inOff += 2

		matchLength := uint32(matchBytes % 8)
		matchOffset := (matchBytes / 8) + 1

		if matchLength == 7 {
			if lastLengthHalfOffset == 0 {
				lastLengthHalfOffset = inOff
				if inOff >= inSize {
					return outPos, snailerr.New(snailerr.BadFormat, "xpress: truncated length byte")
				}
				matchLength = uint32(input[inOff])
				inOff++
				matchLength %= 16
			} else {
				matchLength = uint32(input[lastLengthHalfOffset])
				matchLength /= 16
				lastLengthHalfOffset = 0
			}
			if matchLength == 15 {
				if inOff >= inSize {
					return outPos, snailerr.New(snailerr.BadFormat, "xpress: truncated length byte")
				}
				matchLength = uint32(input[inOff])
				inOff++
				if matchLength == 255 {
					if inOff+2 > inSize {
						return outPos, snailerr.New(snailerr.BadFormat, "xpress: truncated length u16")
					}
					matchLength = uint32(binary.LittleEndian.Uint16(input[inOff:]))
					inOff += 2
					if matchLength == 0 {
						if inOff+4 > inSize {
							return outPos, snailerr.New(snailerr.BadFormat, "xpress: truncated length u32")
						}
						matchLength = binary.LittleEndian.Uint32(input[inOff:])
						inOff += 4
					}
					if matchLength < 15+7 {
						return outPos, snailerr.New(snailerr.BadFormat, "xpress: invalid compressed data")
					}
					matchLength -= 15 + 7
				}
				matchLength += 15
			}
			matchLength += 7
		}
		matchLength += 3

		if uint32(matchOffset) > uint32(outPos) {
			return outPos, snailerr.New(snailerr.BadFormat, "xpress: invalid compressed data")
		}
		if outPos+int(matchLength) > outSize {
			return outPos, snailerr.New(snailerr.BadFormat, "xpress: insufficient output buffer size")
		}
		for i := uint32(0); i < matchLength; i++ {
			output[outPos] = output[outPos-int(matchOffset)]
			outPos++
		}
	}

	return outPos, nil
}
