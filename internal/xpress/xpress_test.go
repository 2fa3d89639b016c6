package xpress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snailtrace/snail/snailerr"
)

func TestDecompressNoneVerbatim(t *testing.T) {
	in := []byte("abcdefgh")
	out := make([]byte, len(in))
	n, err := Decompress(in, out, None)
	require.NoError(t, err)
	require.Equal(t, len(in), n)
	require.Equal(t, in, out)
}

func TestDecompressUnsupportedFormats(t *testing.T) {
	for _, f := range []Format{LZNT1, XpressHuff} {
		_, err := Decompress(nil, nil, f)
		require.Error(t, err)
		require.True(t, snailerr.Of(err, snailerr.Unsupported))
	}
}

// xpressLiteralEncode encodes data as an all-literal XPRESS stream (every
// flag bit 0), which decompressXpress must reproduce byte-for-byte. This
// exercises the flag-group bookkeeping (4-byte groups of 32 flags) without
// needing a real match-finder.
func xpressLiteralEncode(data []byte) []byte {
	var out []byte
	for i := 0; i < len(data); i += 32 {
		end := i + 32
		if end > len(data) {
			end = len(data)
		}
		group := data[i:end]
		out = append(out, 0, 0, 0, 0) // flags word: all-literal
		out = append(out, group...)
	}
	return out
}

func TestDecompressXpressAllLiteral(t *testing.T) {
	literal := "abcdef" + "gg" + "hhh" + "iiii" + "jjjjj" + "kkkkkkkkkk"
	compressed := xpressLiteralEncode([]byte(literal))
	out := make([]byte, len(literal))
	n, err := Decompress(compressed, out, Xpress)
	require.NoError(t, err)
	require.Equal(t, literal, string(out[:n]))
}

// encodeMatch mirrors decompressXpress's match-bytes packing
// (offset-1)*8 + length, used to hand-build fixtures for the short-match
// path (length in 0..6, i.e. 3..9 bytes after the +3 bias).
func encodeMatch(offset, length uint16) uint16 {
	return (offset-1)*8 + length
}

func TestDecompressXpressShortMatch(t *testing.T) {
	// Token slots are read from bit 31 down to bit 0 of each little-endian
	// flags word. Slot 0 ('a'), slot 1 ('b') are literals (bits 31,30 = 0);
	// slot 2 is a match (bit 29 = 1) copying offset=2, encoded length=3
	// (actual length 3+3=6) to produce "ab" + "ababab" = "abababab". The
	// decode loop stops as soon as input is exhausted, so the remaining
	// 29 unused slots in this flags word never need real bits.
	var in []byte
	in = append(in, 0x00, 0x00, 0x00, 0x20) // bit 29 set, rest 0
	in = append(in, 'a', 'b')
	m := encodeMatch(2, 3)
	in = append(in, byte(m), byte(m>>8))

	out := make([]byte, 8)
	n, err := Decompress(in, out, Xpress)
	require.NoError(t, err)
	require.Equal(t, "abababab", string(out[:n]))
}
