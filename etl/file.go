// Package etl decodes Windows ETW (.etl) trace files: a sequence of 64 KiB
// "wmi buffers", each a tight concatenation of records that begin with one
// of six trace-header variants, dispatched to registered handlers keyed by
// (group,type,version) or (guid,type,version).
package etl

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/snailtrace/snail/internal/bufview"
	"github.com/snailtrace/snail/internal/chunkreader"
	"github.com/snailtrace/snail/internal/xpress"
	"github.com/snailtrace/snail/snailerr"
)

// traceLogfileHeaderFixedSize is the size of TRACE_LOGFILE_HEADER up to and
// including CpuSpeedInMHz, before the two pointer-sized LoggerName/
// LogFileName fields whose width this record itself discloses.
const traceLogfileHeaderFixedSize = 56

const pointerSizeOffset = 44

// File decodes a seekable .etl source.
type File struct {
	src  io.ReaderAt
	size int64
	log  *logrus.Entry

	header HeaderData
}

// Open wraps src (size bytes long) for decoding.
func Open(src io.ReaderAt, size int64, log *logrus.Entry) *File {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &File{src: src, size: size, log: log.WithField("component", "etl")}
}

// HeaderData is the file-wide context discovered while processing the first
// buffer; valid only after Process has read it.
func (f *File) HeaderData() HeaderData { return f.header }

// Process streams every buffer in the file, decompressing and splitting it
// into trace-header records and routing each to d. Buffers are processed in
// file order; no global timestamp reordering is performed, matching the
// per-CPU-monotone (not globally monotone) nature of ETW timestamps.
func (f *File) Process(d *Dispatcher) error {
	const bufferWindow = 64 << 10
	cr := chunkreader.New(f.src, 0, f.size, bufferWindow)

	first := true
	for {
		hdrBytes, ok := cr.Retrieve(wmiBufferHeaderSize, false)
		if !ok {
			more, err := cr.KeepGoing()
			if err != nil {
				return err
			}
			if !more {
				break
			}
			continue
		}
		bh := parseWMIBufferHeader(bufview.View{Data: hdrBytes, Order: bufview.HostOrder})

		used := int(bh.SavedOffset) - wmiBufferHeaderSize
		if used < 0 {
			used = 0
		}
		payload, ok := cr.Retrieve(used, false)
		if !ok {
			return snailerr.New(snailerr.BadFormat, "etl: buffer payload larger than configured window")
		}

		if bh.Compressed {
			decompressed := make([]byte, bh.CurrentOffset)
			n, err := xpress.Decompress(payload, decompressed, xpress.Xpress)
			if err != nil {
				return snailerr.Wrap(err, snailerr.BadFormat, "etl: decompressing buffer")
			}
			payload = decompressed[:n]
		}

		if first {
			hd, err := parseHeaderEvent(payload)
			if err != nil {
				return err
			}
			f.header = hd
			first = false
		}

		if err := f.processBuffer(payload, d); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) processBuffer(payload []byte, d *Dispatcher) error {
	off := 0
	for off < len(payload) {
		remaining := payload[off:]
		if len(remaining) < 4 {
			break
		}
		v := bufview.View{Data: remaining, Order: bufview.HostOrder}
		th, err := parseTraceHeader(v)
		if err != nil {
			if snailerr.Of(err, snailerr.Unsupported) {
				f.log.WithError(err).Debug("skipping record with unrecognized trace header type")
				break
			}
			return err
		}
		if err := d.Dispatch(f.header, th); err != nil {
			return err
		}
		off += th.Size
	}
	return nil
}

// parseHeaderEvent extracts HeaderData from the TRACE_LOGFILE_HEADER record
// embedded in the file's first buffer.
func parseHeaderEvent(payload []byte) (HeaderData, error) {
	// The first buffer's payload is itself a trace-header + record; skip
	// past its header to the TRACE_LOGFILE_HEADER body.
	v := bufview.View{Data: payload, Order: bufview.HostOrder}
	th, err := parseTraceHeader(v)
	if err != nil {
		return HeaderData{}, snailerr.Wrap(err, snailerr.BadFormat, "etl: parsing file header record")
	}
	body := th.Payload
	if len(body) < traceLogfileHeaderFixedSize {
		return HeaderData{}, snailerr.New(snailerr.BadFormat, "etl: truncated trace logfile header")
	}
	bv := bufview.View{Data: body, Order: bufview.HostOrder}

	pointerSize := int(bv.U32(pointerSizeOffset))
	if pointerSize != 4 && pointerSize != 8 {
		return HeaderData{}, snailerr.Newf(snailerr.BadFormat, "etl: invalid pointer size %d", pointerSize)
	}

	ptrFieldsEnd := traceLogfileHeaderFixedSize + 2*pointerSize
	const timeZoneInfoSize = 176
	tailOffset := ptrFieldsEnd + timeZoneInfoSize
	if len(body) < tailOffset+24 {
		return HeaderData{}, snailerr.New(snailerr.BadFormat, "etl: truncated trace logfile header tail")
	}

	return HeaderData{
		PointerSize:     pointerSize,
		NumberOfCPUs:    bv.U32(12),
		NumberOfBuffers: bv.U32(36),
		BufferSize:      bv.U32(0),
		QPCFrequency:    bv.U64(tailOffset + 8),
		StartTime:       bv.U64(tailOffset + 16),
	}, nil
}
