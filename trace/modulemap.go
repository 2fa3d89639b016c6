package trace

import "sort"

// Module is one loaded-module record: the [Base, Base+Size) address window
// it occupied while loaded, and its identifying metadata.
type Module struct {
	Base          uint64
	Size          uint64
	FileName      string
	PageOffset    uint64
	Checksum      *uint32
	BuildID       []byte
	PDBInfo       *PDBInfo
	LoadTimestamp int64
}

// PDBInfo identifies a module's PDB debug info by (GUID, age).
type PDBInfo struct {
	GUID [16]byte
	Age  uint32
	Name string
}

type moduleEntry struct {
	loadTimestamp int64
	moduleIndex   int
}

// addressRange is a half-open [begin,end) interval carrying every module
// that has ever occupied it, oldest load first.
type addressRange struct {
	begin, end    uint64
	activeModules []moduleEntry
}

func (r *addressRange) contains(address uint64) bool {
	return address >= r.begin && address < r.end
}

func (r *addressRange) addActiveModule(e moduleEntry) {
	simpleAppend := len(r.activeModules) == 0 || e.loadTimestamp >= r.activeModules[len(r.activeModules)-1].loadTimestamp
	r.activeModules = append(r.activeModules, e)
	if !simpleAppend {
		sort.SliceStable(r.activeModules, func(i, j int) bool {
			return r.activeModules[i].loadTimestamp < r.activeModules[j].loadTimestamp
		})
	}
}

// ModuleMap is a per-process interval map over virtual address ranges: an
// ordered, disjoint partition of address space where each interval carries
// a load-timestamp-ordered stack of modules that have occupied it. Ported
// from module_map.cpp's split/merge algorithm.
type ModuleMap struct {
	modules []Module
	ranges  []addressRange
}

// NewModuleMap creates an empty module map.
func NewModuleMap() *ModuleMap { return &ModuleMap{} }

// AllModules returns every module ever inserted, in insertion order. It is
// the map's live backing slice: the caller must not reslice, append to, or
// reorder it, but may mutate a Module's fields in place through an index
// (e.g. to patch in post-decode metadata like a resolved file path).
func (m *ModuleMap) AllModules() []Module { return m.modules }

func insertRangeAt(ranges []addressRange, idx int, r addressRange) []addressRange {
	ranges = append(ranges, addressRange{})
	copy(ranges[idx+1:], ranges[idx:])
	ranges[idx] = r
	return ranges
}

// Insert records module as active starting at loadTimestamp, splitting and
// merging existing intervals as needed so the map stays a disjoint
// partition of every address range ever occupied.
func (m *ModuleMap) Insert(module Module, loadTimestamp int64) {
	newIndex := len(m.modules)
	module.LoadTimestamp = loadTimestamp
	m.modules = append(m.modules, module)

	toInsertBegin := m.modules[newIndex].Base
	toInsertEnd := m.modules[newIndex].Base + m.modules[newIndex].Size

	if len(m.ranges) == 0 {
		m.ranges = append(m.ranges, addressRange{
			begin: toInsertBegin,
			end:   toInsertEnd,
			activeModules: []moduleEntry{
				{loadTimestamp: loadTimestamp, moduleIndex: newIndex},
			},
		})
		return
	}

	if m.ranges[0].begin > toInsertBegin {
		currentTotalBegin := m.ranges[0].begin
		end := toInsertEnd
		if currentTotalBegin < end {
			end = currentTotalBegin
		}
		m.ranges = insertRangeAt(m.ranges, 0, addressRange{
			begin: toInsertBegin,
			end:   end,
			activeModules: []moduleEntry{
				{loadTimestamp: loadTimestamp, moduleIndex: newIndex},
			},
		})

		toInsertBegin = currentTotalBegin
		if toInsertBegin >= toInsertEnd {
			return
		}
	}

	if m.ranges[len(m.ranges)-1].end < toInsertEnd {
		currentTotalEnd := m.ranges[len(m.ranges)-1].end
		begin := toInsertBegin
		if currentTotalEnd > begin {
			begin = currentTotalEnd
		}
		m.ranges = append(m.ranges, addressRange{
			begin: begin,
			end:   toInsertEnd,
			activeModules: []moduleEntry{
				{loadTimestamp: loadTimestamp, moduleIndex: newIndex},
			},
		})

		toInsertEnd = currentTotalEnd
		if toInsertEnd <= toInsertBegin {
			return
		}
	}

	// firstRangeAfter: first range with begin >= toInsertEnd.
	firstRangeAfter := sort.Search(len(m.ranges), func(i int) bool { return m.ranges[i].begin >= toInsertEnd })
	lastOverlapping := firstRangeAfter - 1

	if m.ranges[lastOverlapping].end <= toInsertBegin {
		m.ranges = insertRangeAt(m.ranges, firstRangeAfter, addressRange{
			begin: toInsertBegin,
			end:   toInsertEnd,
			activeModules: []moduleEntry{
				{loadTimestamp: loadTimestamp, moduleIndex: newIndex},
			},
		})
		return
	}

	firstOverlapping := lastOverlapping
	if m.ranges[lastOverlapping].begin > toInsertBegin {
		// Search backward for the first range whose end > toInsertBegin.
		idx := lastOverlapping
		for idx > 0 && m.ranges[idx-1].end > toInsertBegin {
			idx--
		}
		firstOverlapping = idx
	}

	// Special case: the module to insert exactly matches an existing range
	// occupied, most recently, by a module with the same file name — this
	// is a redundant re-report of an already-known module, a no-op.
	if firstOverlapping == lastOverlapping &&
		m.ranges[firstOverlapping].begin == module.Base &&
		m.ranges[firstOverlapping].end == module.Base+module.Size &&
		len(m.ranges[firstOverlapping].activeModules) > 0 {
		last := m.ranges[firstOverlapping].activeModules[len(m.ranges[firstOverlapping].activeModules)-1]
		if last.loadTimestamp < loadTimestamp && m.modules[last.moduleIndex].FileName == module.FileName {
			m.modules = m.modules[:len(m.modules)-1]
			return
		}
	}

	if m.ranges[firstOverlapping].begin < toInsertBegin {
		newRange := addressRange{
			begin:         toInsertBegin,
			end:           m.ranges[firstOverlapping].end,
			activeModules: append([]moduleEntry(nil), m.ranges[firstOverlapping].activeModules...),
		}
		m.ranges[firstOverlapping].end = newRange.begin
		m.ranges = insertRangeAt(m.ranges, firstOverlapping+1, newRange)
		firstOverlapping++
		lastOverlapping++
	}

	if m.ranges[lastOverlapping].end > toInsertEnd {
		newRange := addressRange{
			begin:         m.ranges[lastOverlapping].begin,
			end:           toInsertEnd,
			activeModules: append([]moduleEntry(nil), m.ranges[lastOverlapping].activeModules...),
		}
		m.ranges[lastOverlapping].begin = newRange.end
		m.ranges = insertRangeAt(m.ranges, lastOverlapping, newRange)
	}

	for i := firstOverlapping; i <= lastOverlapping; i++ {
		m.ranges[i].addActiveModule(moduleEntry{loadTimestamp: loadTimestamp, moduleIndex: newIndex})
	}
}

// Find returns the module occupying address at timestamp, if any. If
// strict is true, a module whose LoadTimestamp postdates timestamp is
// treated as absent; if strict is false, it falls back to the earliest
// loaded module in that slot.
func (m *ModuleMap) Find(address uint64, timestamp int64, strict bool) (*Module, bool) {
	idx := sort.Search(len(m.ranges), func(i int) bool { return m.ranges[i].begin > address })
	if idx == 0 {
		return nil, false
	}
	r := &m.ranges[idx-1]
	if !r.contains(address) {
		return nil, false
	}
	if len(r.activeModules) == 0 {
		return nil, false
	}
	i := len(r.activeModules) - 1
	for i > 0 && r.activeModules[i].loadTimestamp > timestamp {
		i--
	}
	if strict && r.activeModules[i].loadTimestamp > timestamp {
		return nil, false
	}
	return &m.modules[r.activeModules[i].moduleIndex], true
}
