package trace

// ProcessState is the payload tracked by a Context's process history: the
// subset of Process fields that can change identity over a process's
// lifetime assembled incrementally as start/comm/exit records arrive.
type ProcessState struct {
	Name        string
	ImageFile   string
	CommandLine string
	ParentID    uint64
}

// ThreadState is the payload tracked by a Context's thread history.
type ThreadState struct {
	Name            string
	OwningProcessID uint64
}

// Context bundles the per-trace, time-indexed reconstruction state shared
// by every provider: process/thread identity history, a per-process module
// map, and a stack cache. Both the ETW and perf.data providers build one of
// these while decoding their respective record streams, satisfying the
// "reconstructed process/thread/module context" requirement common to both
// trace formats.
type Context struct {
	Processes *History[uint64, int64, ProcessState]
	Threads   *History[uint64, int64, ThreadState]
	Modules   map[uint64]*ModuleMap // keyed by unique process id
	Stacks    *StackCache

	// ProfilingTargets records, for every process marked as a sampling
	// target by a target-profiling-started record, the timestamp that
	// marking arrived at. Most traces target a single process; Visual
	// Studio Diagnostics Hub captures can mark more than one.
	ProfilingTargets map[uint64]int64

	nextUniquePID uint64
	nextUniqueTID uint64
	osPIDToUnique map[uint32]uint64
	osTIDToUnique map[uint32]uint64
}

// NewContext creates an empty reconstruction context.
func NewContext() *Context {
	return &Context{
		Processes:     NewHistory[uint64, int64, ProcessState](),
		Threads:       NewHistory[uint64, int64, ThreadState](),
		Modules:          make(map[uint64]*ModuleMap),
		Stacks:           NewStackCache(),
		ProfilingTargets: make(map[uint64]int64),
		osPIDToUnique:    make(map[uint32]uint64),
		osTIDToUnique: make(map[uint32]uint64),
	}
}

// UniqueProcessID returns the unique, non-recycled id standing in for osPID,
// minting a fresh one the first time osPID is seen. Traces reuse OS pids
// across process lifetimes; every caller that needs a stable key (module
// maps, history lookups) must go through here rather than use osPID
// directly.
func (c *Context) UniqueProcessID(osPID uint32) uint64 {
	if id, ok := c.osPIDToUnique[osPID]; ok {
		return id
	}
	c.nextUniquePID++
	id := c.nextUniquePID
	c.osPIDToUnique[osPID] = id
	c.Modules[id] = NewModuleMap()
	return id
}

// ForgetProcess drops osPID's current unique-id mapping so a later reuse of
// the same OS pid mints a new identity instead of continuing the old one.
// Call this on a process-exit record.
func (c *Context) ForgetProcess(osPID uint32) {
	delete(c.osPIDToUnique, osPID)
}

// UniqueThreadID returns the unique id standing in for osTID, minting one
// on first use, mirroring UniqueProcessID.
func (c *Context) UniqueThreadID(osTID uint32) uint64 {
	if id, ok := c.osTIDToUnique[osTID]; ok {
		return id
	}
	c.nextUniqueTID++
	id := c.nextUniqueTID
	c.osTIDToUnique[osTID] = id
	return id
}

// ForgetThread drops osTID's current unique-id mapping.
func (c *Context) ForgetThread(osTID uint32) {
	delete(c.osTIDToUnique, osTID)
}

// ModuleMapFor returns the module map for a unique process id, creating one
// if this process has not been seen via UniqueProcessID yet (e.g. a module
// load arrived before any process-start record, which happens for
// processes that were already running when tracing began).
func (c *Context) ModuleMapFor(uniquePID uint64) *ModuleMap {
	m, ok := c.Modules[uniquePID]
	if !ok {
		m = NewModuleMap()
		c.Modules[uniquePID] = m
	}
	return m
}
