package provider

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/snailtrace/snail/perfdata"
	"github.com/snailtrace/snail/trace"
)

// perfSource pulls samples out of a perf.data file one record at a time,
// reconstructing process/thread identity and stack context as comm/fork/
// exit/mmap records stream by alongside the samples. Grounded on
// perfsession.Session.Update's per-record-type switch, generalized from a
// push callback into a pull Next().
type perfSource struct {
	file       *perfdata.File
	closer     io.Closer
	records    *perfdata.Records
	ctx        *trace.Context
	log        *logrus.Entry
	progress   *trace.ProgressReporter
	lastOffset int64
}

// OpenPerf opens a perf.data file and returns a pull-based sample source
// over it, in causal (weakly time-ordered) record order. progress may be
// nil; when set, it is debounced to whole-percent steps against the file's
// total byte size.
func OpenPerf(path string, log *logrus.Entry, progress trace.Progress) (Source, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "provider.perf")

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	pf, err := perfdata.New(f, log)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &perfSource{
		file:     pf,
		closer:   f,
		records:  pf.Records(perfdata.RecordsCausalOrder),
		ctx:      trace.NewContext(),
		log:      log,
		progress: trace.NewProgressReporter(progress, "perf", stat.Size(), 0.01),
	}, nil
}

func (s *perfSource) Context() *trace.Context { return s.ctx }

func (s *perfSource) Close() error {
	s.progress.Finish()
	s.file.Close()
	return s.closer.Close()
}

// Next advances through the record stream, applying every non-sample
// record to the reconstruction context, and returns the next sample it
// encounters. It returns (nil, nil) at end of stream.
func (s *perfSource) Next() (*SampleView, error) {
	for s.records.Next() {
		offset := s.records.Record.Common().Offset
		s.progress.Add(offset - s.lastOffset)
		s.lastOffset = offset

		switch r := s.records.Record.(type) {
		case *perfdata.RecordComm:
			pid := s.ctx.UniqueProcessID(uint32(r.PID))
			prev := s.ctx.Processes.FindAt(pid, int64(r.Time), false)
			st := trace.ProcessState{Name: r.Comm, ImageFile: r.Comm}
			if prev != nil {
				st.CommandLine = prev.Payload.CommandLine
				st.ParentID = prev.Payload.ParentID
			}
			s.ctx.Processes.Insert(pid, int64(r.Time), st)

		case *perfdata.RecordFork:
			pid := s.ctx.UniqueProcessID(uint32(r.PID))
			ppid := s.ctx.UniqueProcessID(uint32(r.PPID))
			s.ctx.Processes.Insert(pid, int64(r.Time), trace.ProcessState{ParentID: ppid})
			tid := s.ctx.UniqueThreadID(uint32(r.TID))
			s.ctx.Threads.Insert(tid, int64(r.Time), trace.ThreadState{OwningProcessID: pid})

		case *perfdata.RecordExit:
			s.ctx.ForgetThread(uint32(r.TID))
			if r.TID == r.PID {
				s.ctx.ForgetProcess(uint32(r.PID))
			}

		case *perfdata.RecordMmap:
			pid := s.ctx.UniqueProcessID(uint32(r.PID))
			mm := s.ctx.ModuleMapFor(pid)
			mm.Insert(trace.Module{
				Base:     r.Addr,
				Size:     r.Len,
				FileName: r.Filename,
				BuildID:  s.buildIDFor(r),
			}, int64(s.records.Record.Common().Time))

		case *perfdata.RecordSample:
			return s.convertSample(r), nil
		}
	}
	return nil, s.records.Err()
}

// buildIDFor returns r's build id: the one embedded inline in the mmap2
// record itself (EventFlagBuildID), or, failing that, a fallback lookup
// into the file-level build-id feature section by filename, which perf
// emits for mappings recorded before build-id-in-mmap2 support existed.
func (s *perfSource) buildIDFor(r *perfdata.RecordMmap) []byte {
	if len(r.BuildID) > 0 {
		return r.BuildID
	}
	for _, b := range s.file.Meta.BuildIDs {
		if b.Filename == r.Filename {
			return b.BuildID
		}
	}
	return nil
}

// convertSample splits r.Callchain on perfdata's Callchain* context
// markers into (at most) one kernel and one user run of instruction
// pointers, interning each run in the shared stack cache. A sample with no
// callchain (SampleFormatCallchain unset) carries no stack; the analyzer
// then uses its InstructionPointer as a single-frame leaf.
func (s *perfSource) convertSample(r *perfdata.RecordSample) *SampleView {
	pid := s.ctx.UniqueProcessID(uint32(r.PID))
	tid := s.ctx.UniqueThreadID(uint32(r.TID))

	view := &SampleView{
		ProcessID:          pid,
		ThreadID:           tid,
		Timestamp:          int64(r.Time),
		InstructionPointer: r.IP,
	}

	if len(r.Callchain) == 0 {
		return view
	}

	var kernel, user []uint64
	cur := &user // perf.data chains default to user context until told otherwise
	for _, ip := range r.Callchain {
		switch ip {
		case perfdata.CallchainKernel, perfdata.CallchainGuestKernel:
			cur = &kernel
		case perfdata.CallchainUser, perfdata.CallchainGuest, perfdata.CallchainGuestUser, perfdata.CallchainHV:
			cur = &user
		default:
			*cur = append(*cur, ip)
		}
	}

	if len(kernel) > 0 {
		idx := s.ctx.Stacks.Insert(kernel)
		view.KernelStack = &idx
	}
	if len(user) > 0 {
		idx := s.ctx.Stacks.Insert(user)
		view.UserStack = &idx
	}
	return view
}
