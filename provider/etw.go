package provider

import (
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/snailtrace/snail/etl"
	"github.com/snailtrace/snail/trace"
)

// progressHandler wraps a GroupHandler so every dispatched record of that
// type advances progress by its on-wire size before running handler's own
// logic. Record types with no registered handler (RegisterUnknownGroup is
// never used here) are not counted, so the resulting percentage is an
// approximation, sufficient for a debounced progress indicator.
func progressHandler(progress *trace.ProgressReporter, handler etl.GroupHandler) etl.GroupHandler {
	return func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		progress.Add(int64(t.Size))
		return handler(h, t, payload)
	}
}

// rawSample is one CPU sample as accumulated during decoding, before its
// kernel/user stack pairing is known to be final. It is indexed into
// samplesByProcess in SampledProfile arrival order; its stack slots are
// filled in later, possibly out of dispatch order, as StackWalk records for
// the same (thread, timestamp) or the same thread's still-open sample
// arrive.
type rawSample struct {
	osThreadID         uint32
	uniqueThreadID     uint64
	timestamp          int64
	instructionPointer uint64
	userStack          *int
	kernelStack        *int
}

// etwSource drives an etl.File.Process synchronously in a background
// goroutine, buffering every sample per process during the pass and
// republishing them, fully paired, as a pull-based sample stream once
// decoding finishes. Standing in for the original coroutine-based
// stack_provider: Go has no native coroutines, so a two-phase buffer-then-
// emit pass is the idiomatic substitute for its generator.
type etwSource struct {
	file     *etl.File
	closer   func() error
	ctx      *trace.Context
	samples  chan *SampleView
	err      error
	progress *trace.ProgressReporter

	// samplesByProcess holds every sample seen so far, keyed by unique
	// process id, in SampledProfile arrival order. StackWalk handlers
	// mutate entries in place via bindStack; nothing is removed from these
	// slices until emitAll flattens them at the end of decoding.
	samplesByProcess map[uint64][]*rawSample

	// ntVolumeMapping maps an NT device path prefix (e.g.
	// "\Device\HarddiskVolume3") to the DOS drive-letter prefix it stands
	// for (e.g. "C:"), accumulated from SystemConfigEx volume_mapping
	// records and applied to every recorded module path once decoding
	// finishes, since a volume mapping can arrive after the module loads
	// that need it.
	ntVolumeMapping map[string]string
}

// OpenETW opens an .etl trace and returns a pull-based sample source over
// it. Samples are emitted per process in SampledProfile arrival order, not
// strict global time order (like perfdata.RecordsFileOrder; there
// is no causal/time-ordering pass for ETW as there is for perf.data).
// progress may be nil.
func OpenETW(path string, log *logrus.Entry, progress trace.Progress) (Source, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "provider.etw")

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &etwSource{
		file:     etl.Open(f, stat.Size(), log),
		closer:   f.Close,
		ctx:      trace.NewContext(),
		samples:  make(chan *SampleView, 64),
		progress: trace.NewProgressReporter(progress, "etw", stat.Size(), 0.01),
	}

	go s.run()

	return s, nil
}

func (s *etwSource) Context() *trace.Context { return s.ctx }

func (s *etwSource) Close() error {
	s.progress.Finish()
	return s.closer()
}

func (s *etwSource) Next() (*SampleView, error) {
	v, ok := <-s.samples
	if !ok {
		return nil, s.err
	}
	return v, nil
}

// kernelAddressThreshold returns the lowest address considered kernel-mode
// for a trace captured with the given pointer size: the top of the 2 GiB
// user address space on 32-bit Windows, or the canonical non-canonical gap
// floor used by 64-bit Windows's split address space.
func kernelAddressThreshold(pointerSize int) uint64 {
	if pointerSize == 4 {
		return 1 << 31
	}
	return 1 << 47
}

// classifyStack reports whether addrs (innermost frame first, as stored on
// the wire) is a kernel-mode or user-mode stack, classified by its
// outermost (root) frame, and whether it is a transition stack: one
// classified user-mode overall whose innermost frame is nonetheless still
// executing in kernel mode, e.g. a thread caught mid return from a system
// call. A transition stack's single walk already spans both halves, so it
// stands in for the kernel-mode side rather than pairing with a separate
// one.
func classifyStack(addrs []uint64, threshold uint64) (kernel, transition bool) {
	if len(addrs) == 0 {
		return false, false
	}
	kernel = addrs[len(addrs)-1] >= threshold
	transition = !kernel && addrs[0] >= threshold
	return kernel, transition
}

func (s *etwSource) run() {
	defer close(s.samples)

	s.samplesByProcess = make(map[uint64][]*rawSample)
	s.ntVolumeMapping = make(map[string]string)
	d := s.buildDispatcher()

	if err := s.file.Process(d); err != nil {
		s.err = err
		return
	}

	s.resolveNTPaths()
	s.emitAll()
}

// resolveNTPaths rewrites every recorded module file name that begins with
// a mapped NT device path prefix to its DOS drive-letter equivalent,
// ported from resolve_nt_paths: volume_mapping records can arrive anywhere
// in the trace, so this runs once, after decoding finishes, rather than at
// module-load time.
func (s *etwSource) resolveNTPaths() {
	if len(s.ntVolumeMapping) == 0 {
		return
	}
	for _, mm := range s.ctx.Modules {
		mods := mm.AllModules()
		for i := range mods {
			mods[i].FileName = s.rewriteNTPath(mods[i].FileName)
		}
	}
}

func (s *etwSource) rewriteNTPath(path string) string {
	for ntPrefix, dosPrefix := range s.ntVolumeMapping {
		if strings.HasPrefix(path, ntPrefix) {
			return dosPrefix + path[len(ntPrefix):]
		}
	}
	return path
}

// emitAll flattens samplesByProcess into the sample channel, processes in
// ascending unique-process-id order for deterministic output.
func (s *etwSource) emitAll() {
	pids := make([]uint64, 0, len(s.samplesByProcess))
	for pid := range s.samplesByProcess {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	for _, pid := range pids {
		s.emitProcessSamples(pid, s.samplesByProcess[pid])
	}
}

// emitProcessSamples emits pid's samples in SampledProfile arrival order.
// Any sample whose kernel or user stack never arrived (the thread never
// returned to the other mode before its next sample, or the trace ended
// first) is emitted with that slot left nil rather than held back further.
func (s *etwSource) emitProcessSamples(pid uint64, raws []*rawSample) {
	for _, r := range raws {
		s.samples <- &SampleView{
			ProcessID:          pid,
			ThreadID:           r.uniqueThreadID,
			Timestamp:          r.timestamp,
			InstructionPointer: r.instructionPointer,
			UserStack:          r.userStack,
			KernelStack:        r.kernelStack,
		}
	}
}

// bindStack attaches stack index idx, classified by kernel/transition, to
// its owning sample for (pid, osTID). It first tries an exact-timestamp
// bind (the common case: a kernel-mode stack walk shares its owning
// sample's event timestamp exactly, as does any user-mode stack walked
// synchronously with it). Failing that, it falls back to the thread's most
// recent sample still missing this slot, matching by thread id alone: a
// user-mode stack walked asynchronously (e.g. via a deferred APC) is
// stamped with its own emission time rather than the sample's, so it can
// only be bound by thread. A stack matching no buffered sample at all (the
// owning SampledProfile record fell outside this decode, or targets a
// process not yet known) is emitted standalone rather than dropped.
func (s *etwSource) bindStack(pid uint64, osTID uint32, timestamp int64, idx int, kernel, transition bool) {
	wantKernelSlot := kernel || transition
	raws := s.samplesByProcess[pid]

	for i := len(raws) - 1; i >= 0; i-- {
		if r := raws[i]; r.osThreadID == osTID && r.timestamp == timestamp {
			assignStack(r, idx, kernel, transition)
			return
		}
	}

	for i := len(raws) - 1; i >= 0; i-- {
		r := raws[i]
		if r.osThreadID != osTID {
			continue
		}
		if wantKernelSlot && r.kernelStack == nil {
			assignStack(r, idx, kernel, transition)
			return
		}
		if !wantKernelSlot && r.userStack == nil {
			assignStack(r, idx, kernel, transition)
			return
		}
	}

	r := &rawSample{
		osThreadID:     osTID,
		uniqueThreadID: s.ctx.UniqueThreadID(osTID),
		timestamp:      timestamp,
	}
	assignStack(r, idx, kernel, transition)
	s.samplesByProcess[pid] = append(s.samplesByProcess[pid], r)
}

func assignStack(r *rawSample, idx int, kernel, transition bool) {
	if kernel || transition {
		r.kernelStack = &idx
	} else {
		r.userStack = &idx
	}
}

// buildDispatcher wires every record type this source understands to the
// handlers that update s.ctx and s.samplesByProcess. Split out from run so
// the SampledProfile/StackWalk stitching can be driven directly in tests
// without an etl.File.
func (s *etwSource) buildDispatcher() *etl.Dispatcher {
	d := etl.NewDispatcher()

	d.RegisterGroup(etl.ProcessV4TypeGroup1Version, etl.ProcessV4TypeGroup1Ids, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewProcessV4TypeGroup1(payload, h.PointerSize)
		pid := s.ctx.UniqueProcessID(e.ProcessID())
		state := trace.ProcessState{
			ImageFile:   e.ImageFilename(),
			CommandLine: e.CommandLine(),
		}
		if e.ParentID() != 0 {
			state.ParentID = s.ctx.UniqueProcessID(e.ParentID())
		}
		s.ctx.Processes.Insert(pid, int64(t.Timestamp), state)
		if t.GroupType == 2 || t.GroupType == 4 { // unload / dc_end
			s.ctx.ForgetProcess(e.ProcessID())
		}
		return nil
	}))

	d.RegisterGroup(etl.ThreadV3TypeGroup1Version, etl.ThreadV3TypeGroup1Ids, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewThreadV3TypeGroup1(payload, h.PointerSize)
		s.registerThreadStart(e.ThreadID(), e.ProcessID(), "", int64(t.Timestamp), t.GroupType)
		return nil
	}))

	d.RegisterGroup(etl.ThreadV4TypeGroup1Version, etl.ThreadV4TypeGroup1Ids, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewThreadV4TypeGroup1(payload, h.PointerSize)
		s.registerThreadStart(e.ThreadID(), e.ProcessID(), e.ThreadName(), int64(t.Timestamp), t.GroupType)
		return nil
	}))

	d.RegisterGroup(etl.ImageV2LoadVersion, etl.ImageV2LoadIds, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewImageV2Load(payload, h.PointerSize)
		pid := s.ctx.UniqueProcessID(e.ProcessID())
		mm := s.ctx.ModuleMapFor(pid)
		checksum := e.ImageChecksum()
		mm.Insert(trace.Module{
			Base:     e.ImageBase(),
			Size:     e.ImageSize(),
			FileName: e.FileName(),
			Checksum: &checksum,
		}, int64(t.Timestamp))
		return nil
	}))

	d.RegisterGUID(etl.ImageIDV2InfoVersion, etl.ImageIDV2InfoIds, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewImageIDV2Info(payload, h.PointerSize)
		pid := s.ctx.UniqueProcessID(e.ProcessID())
		mm := s.ctx.ModuleMapFor(pid)
		if mod, ok := mm.Find(e.ImageBase(), int64(t.Timestamp), false); ok {
			// TimeDateStamp is supplemental PE link-time metadata, distinct
			// from image_v2_load's own checksum field above. It is stored in
			// Checksum only when image_v2_load set none; otherwise it is
			// dropped.
			ts := e.TimeDateStamp()
			if mod.Checksum == nil {
				mod.Checksum = &ts
			}
		}
		return nil
	}))

	d.RegisterGUID(etl.ImageIDV2DbgIDRSDSVersion, etl.ImageIDV2DbgIDRSDSIds, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewImageIDV2DbgIDRSDS(payload, h.PointerSize)
		pid := s.ctx.UniqueProcessID(e.ProcessID())
		mm := s.ctx.ModuleMapFor(pid)
		if mod, ok := mm.Find(e.ImageBase(), int64(t.Timestamp), false); ok {
			mod.PDBInfo = &trace.PDBInfo{
				GUID: e.GUID(),
				Age:  e.Age(),
				Name: e.PDBFileName(),
			}
		}
		return nil
	}))

	d.RegisterGUID(etl.SystemConfigExVolumeMappingVersion, etl.SystemConfigExVolumeMappingIds, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewSystemConfigExVolumeMapping(payload, h.PointerSize)
		s.ntVolumeMapping[e.NTPath()] = e.DOSPath()
		return nil
	}))

	d.RegisterGUID(etl.VSDiagnosticsHubTargetProfilingStartedVersion, etl.VSDiagnosticsHubTargetProfilingStartedIds, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewVSDiagnosticsHubTargetProfilingStarted(payload, h.PointerSize)
		pid := s.ctx.UniqueProcessID(e.ProcessID())
		s.ctx.ProfilingTargets[pid] = int64(e.Timestamp())
		return nil
	}))

	d.RegisterGroup(etl.PerfInfoV2SampledProfileVersion, etl.PerfInfoV2SampledProfileIds, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewPerfInfoV2SampledProfile(payload, h.PointerSize)
		osTID := e.ThreadID()
		tid := s.ctx.UniqueThreadID(osTID)

		pid := s.ctx.UniqueProcessID(t.ProcessID)
		if entry := s.ctx.Threads.FindAt(tid, int64(t.Timestamp), false); entry != nil {
			pid = entry.Payload.OwningProcessID
		}

		s.samplesByProcess[pid] = append(s.samplesByProcess[pid], &rawSample{
			osThreadID:         osTID,
			uniqueThreadID:     tid,
			timestamp:          int64(t.Timestamp),
			instructionPointer: e.InstructionPointer(),
		})
		return nil
	}))

	d.RegisterGroup(etl.StackWalkV2StackVersion, etl.StackWalkV2StackIds, progressHandler(s.progress, func(h etl.HeaderData, t etl.TraceHeader, payload []byte) error {
		e := etl.NewStackWalkV2Stack(payload, h.PointerSize)
		addrs := e.Addresses()
		if len(addrs) == 0 {
			return nil
		}

		threshold := kernelAddressThreshold(h.PointerSize)
		kernel, transition := classifyStack(addrs, threshold)
		idx := s.ctx.Stacks.Insert(addrs)

		pid := s.ctx.UniqueProcessID(e.ProcessID())
		s.bindStack(pid, e.ThreadID(), int64(e.EventTimestamp()), idx, kernel, transition)
		return nil
	}))

	return d
}

// registerThreadStart updates thread identity on a start/dc_start record and
// clears it on end/dc_end, shared between the V3 and V4 thread group
// handlers (which differ only in carrying a thread name).
func (s *etwSource) registerThreadStart(osTID, osPID uint32, name string, timestamp int64, groupType uint8) {
	pid := s.ctx.UniqueProcessID(osPID)
	tid := s.ctx.UniqueThreadID(osTID)
	s.ctx.Threads.Insert(tid, timestamp, trace.ThreadState{Name: name, OwningProcessID: pid})
	if groupType == 2 || groupType == 4 { // end / dc_end
		s.ctx.ForgetThread(osTID)
	}
}
