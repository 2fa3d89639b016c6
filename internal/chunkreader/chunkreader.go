// Package chunkreader streams a bounded region of a seekable byte source
// through a fixed-size in-memory window, carrying partial records across
// window boundaries so callers can parse a tight stream of
// variable-length records without worrying about chunk edges.
//
// It mirrors perffile's bufferedSectionReader (buf.go), generalized to an
// explicit retrieve/keep_going contract per spec §4.2 instead of an
// io.Reader, since both the ETL and perf.data decoders need to peek a
// record header before deciding how many bytes to consume.
package chunkreader

import (
	"io"

	"github.com/snailtrace/snail/snailerr"
)

// DefaultWindowSize is the window size used when none is configured; large
// enough to hold the biggest record either trace format emits in one
// piece, per spec §4.2's "chunk is sized to the format's maximum record".
const DefaultWindowSize = 64 << 10

// Reader sequence-accesses a bounded [offset, offset+size) window of a
// seekable byte source through a fixed-size window.
type Reader struct {
	src  io.ReaderAt
	base int64 // offset of the window within src
	size int64 // total bounded region size
	win  int   // window capacity

	buf       []byte // window buffer, len == win
	data      []byte // valid bytes in buf (data[:processed] consumed)
	processed int
	totalRead int64 // total bytes read from src so far (region-relative)

	exhausted bool // current chunk ran out mid-record
	done      bool
}

// New creates a Reader over src's [offset, offset+size) region, using a
// window of windowSize bytes (DefaultWindowSize if windowSize <= 0).
func New(src io.ReaderAt, offset, size int64, windowSize int) *Reader {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Reader{
		src:  src,
		base: offset,
		size: size,
		win:  windowSize,
		buf:  make([]byte, windowSize),
	}
}

// Retrieve returns the next n bytes from the window. If fewer than n bytes
// remain in the current chunk, it marks the chunk exhausted and returns
// (nil, false); the caller should call KeepGoing to load a fresh chunk
// (which preserves any unconsumed tail) and retry.
//
// If peek is true, the read position is not advanced.
func (r *Reader) Retrieve(n int, peek bool) ([]byte, bool) {
	remaining := len(r.data) - r.processed
	if remaining < n {
		r.exhausted = true
		return nil, false
	}
	out := r.data[r.processed : r.processed+n]
	if !peek {
		r.processed += n
	}
	return out, true
}

// ChunkHasMoreData reports whether the current chunk has any unconsumed
// bytes left.
func (r *Reader) ChunkHasMoreData() bool {
	return r.processed < len(r.data)
}

// Done reports whether the entire bounded region has been consumed.
func (r *Reader) Done() bool {
	return r.totalRead >= r.size && r.processed >= len(r.data)
}

// KeepGoing reports whether more data is available, reloading a fresh
// window from the source if the current one is exhausted or fully
// consumed. Residual unconsumed bytes at the window tail are copied to
// the window head so a straddling record remains contiguous.
func (r *Reader) KeepGoing() (bool, error) {
	if r.Done() {
		return false, nil
	}
	if r.exhausted || !r.ChunkHasMoreData() {
		ok, err := r.readNextChunk()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (r *Reader) readNextChunk() (bool, error) {
	residual := len(r.data) - r.processed
	if residual > 0 {
		copy(r.buf, r.data[r.processed:])
	}

	remaining := r.size - r.totalRead
	if remaining == 0 {
		return false, nil
	}

	toRead := remaining - int64(residual)
	maxSpace := int64(r.win - residual)
	if maxSpace <= 0 {
		return false, snailerr.New(snailerr.Io, "chunkreader: record larger than window capacity")
	}
	if toRead > maxSpace {
		toRead = maxSpace
	}
	if toRead < 0 {
		toRead = 0
	}

	n, err := r.src.ReadAt(r.buf[residual:int64(residual)+toRead], r.base+r.totalRead)
	if err != nil && err != io.EOF {
		return false, snailerr.Wrap(err, snailerr.Io, "chunkreader: read failed")
	}
	if int64(n) != toRead && err != io.EOF {
		return false, snailerr.Newf(snailerr.Io, "chunkreader: short read, wanted %d got %d", toRead, n)
	}

	r.totalRead += int64(n)
	r.data = r.buf[:int64(residual)+int64(n)]
	r.processed = 0
	r.exhausted = false
	return true, nil
}
