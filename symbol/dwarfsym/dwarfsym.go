// Package dwarfsym resolves addresses in ELF/DWARF modules (the Linux
// flavor of §4.10), grounded directly on
// aclements-go-perf/perfsession/symbolize.go's ELF-open → DWARF →
// func/line-table approach, extended with the build-id / debuginfod /
// literal-path lookup chain and linkage-name demangling that the teacher's
// version leaves as TODOs.
package dwarfsym

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ianlancetaylor/demangle"
	"github.com/sirupsen/logrus"

	"github.com/snailtrace/snail/pathmap"
	"github.com/snailtrace/snail/symbol"
	"github.com/snailtrace/snail/trace"
)

// funcRange is one DWARF subprogram's [lowpc, highpc) range and name,
// ported from symbolize.go's identically-named type.
type funcRange struct {
	name          string
	lowpc, highpc uint64
}

// moduleDebug holds the parsed function and line tables for one opened
// ELF/DWARF binary.
type moduleDebug struct {
	functab []funcRange
	linetab []dwarf.LineEntry
}

func (m *moduleDebug) findIP(ip uint64) (*funcRange, *dwarf.LineEntry) {
	var f *funcRange
	var l *dwarf.LineEntry

	i := sort.Search(len(m.functab), func(i int) bool { return ip < m.functab[i].highpc })
	if i < len(m.functab) && m.functab[i].lowpc <= ip && ip < m.functab[i].highpc {
		f = &m.functab[i]
	}

	i = sort.Search(len(m.linetab), func(i int) bool { return ip < m.linetab[i].Address })
	if i != 0 && !m.linetab[i-1].EndSequence {
		l = &m.linetab[i-1]
	}
	return f, l
}

// Resolver resolves addresses within ELF modules via DWARF debug info,
// implementing symbol.Resolver.
type Resolver struct {
	cache   *symbol.Cache
	filter  *symbol.Filter
	pathMap *pathmap.Map
	store   *symbol.Store
	fetcher *symbol.Fetcher
	urls    []string // debuginfod base URLs, queried in order
	log     *logrus.Entry

	debugByPath map[string]*moduleDebug // memoizes parse failures too (nil value)
}

// New creates a DWARF resolver. store and fetcher may be nil, in which case
// build-id/debuginfod lookups are skipped and only literal-path lookup
// (after path mapping) is attempted.
func New(cache *symbol.Cache, filter *symbol.Filter, pathMap *pathmap.Map, store *symbol.Store, fetcher *symbol.Fetcher, debuginfodURLs []string, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{
		cache:       cache,
		filter:      filter,
		pathMap:     pathMap,
		store:       store,
		fetcher:     fetcher,
		urls:        debuginfodURLs,
		log:         log.WithField("component", "symbol.dwarfsym"),
		debugByPath: make(map[string]*moduleDebug),
	}
}

// Resolve implements symbol.Resolver.
func (r *Resolver) Resolve(processID uint64, module *trace.Module, address uint64) symbol.Symbol {
	key := symbol.Key{ProcessID: processID, LoadTimestamp: module.LoadTimestamp, Address: address}
	return r.cache.GetOrResolve(key, func() symbol.Symbol {
		return r.resolveUncached(module, address)
	})
}

func (r *Resolver) resolveUncached(module *trace.Module, address uint64) symbol.Symbol {
	generic := symbol.MakeGeneric(symbol.BaseName(module.FileName), address)

	if r.filter != nil && r.filter.Excluded(module.FileName) {
		return generic
	}

	dbg := r.loadDebug(module)
	if dbg == nil {
		return generic
	}

	// §4.10's DWARF address math: address - image_base + page_offset gives
	// the in-section address the debug info's own addresses are relative to.
	sectionAddr := address - module.Base + module.PageOffset
	f, l := dbg.findIP(sectionAddr)
	if f == nil {
		return generic
	}

	sym := symbol.Symbol{Name: demangle.Filter(f.name)}
	if l != nil {
		sym.FilePath = l.File.Name
		sym.InstructionLine = l.Line
		sym.FunctionLine = l.Line
	}
	return sym
}

// loadDebug locates and parses the ELF/DWARF for module, trying (in order)
// a path-mapped literal path, then a build-id-keyed debuginfod cache/
// download. Parse failures and unlocatable files are cached as a nil
// result so repeated samples into the same unresolvable module don't retry
// the whole chain.
func (r *Resolver) loadDebug(module *trace.Module) *moduleDebug {
	mappedPath := module.FileName
	if r.pathMap != nil {
		mappedPath = r.pathMap.Resolve(module.FileName)
	}

	if dbg, ok := r.debugByPath[mappedPath]; ok {
		return dbg
	}

	dbg := r.tryOpen(mappedPath)
	if dbg == nil && len(module.BuildID) > 0 {
		if path, err := r.fetchByBuildID(module.BuildID); err == nil {
			dbg = r.tryOpen(path)
		} else {
			r.log.WithError(err).WithField("module", module.FileName).Debug("debuginfod lookup failed, degrading to generic symbol")
		}
	}

	r.debugByPath[mappedPath] = dbg
	return dbg
}

// fetchByBuildID resolves a build id to a local debuginfo file path via the
// artifact store cache, falling back to downloading from each configured
// debuginfod URL in order.
func (r *Resolver) fetchByBuildID(buildID []byte) (string, error) {
	key := fmt.Sprintf("%x", buildID)
	if r.store != nil {
		if path, ok := r.store.LookupDebuginfo(key); ok {
			return path, nil
		}
	}
	if r.fetcher == nil {
		return "", os.ErrNotExist
	}

	var lastErr error
	for _, base := range r.urls {
		url := symbol.DebuginfodURL(base, buildID)
		data, err := r.fetcher.Fetch(url)
		if err != nil {
			lastErr = err
			continue
		}
		cacheDir := filepath.Join(os.TempDir(), "snail-debuginfo")
		path, err := symbol.WriteAtomic(cacheDir, key, data)
		if err != nil {
			return "", err
		}
		if r.store != nil {
			_ = r.store.PutDebuginfo(key, path)
		}
		return path, nil
	}
	if lastErr == nil {
		lastErr = os.ErrNotExist
	}
	return "", lastErr
}

func (r *Resolver) tryOpen(path string) *moduleDebug {
	f, err := elf.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	if f.Section(".debug_info") == nil {
		return nil
	}
	d, err := f.DWARF()
	if err != nil {
		return nil
	}

	return &moduleDebug{
		functab: dwarfFuncTable(d),
		linetab: dwarfLineTable(d),
	}
}

func dwarfFuncTable(d *dwarf.Data) []funcRange {
	r := d.Reader()
	var out []funcRange
	for {
		ent, err := r.Next()
		if ent == nil || err != nil {
			break
		}
		switch ent.Tag {
		case dwarf.TagSubprogram:
			r.SkipChildren()
			name, ok := ent.Val(dwarf.AttrName).(string)
			if !ok {
				continue
			}
			lowpc, ok := ent.Val(dwarf.AttrLowpc).(uint64)
			if !ok {
				continue
			}
			var highpc uint64
			switch v := ent.Val(dwarf.AttrHighpc).(type) {
			case uint64:
				highpc = v
			case int64:
				highpc = lowpc + uint64(v)
			default:
				continue
			}
			out = append(out, funcRange{name: name, lowpc: lowpc, highpc: highpc})
		case dwarf.TagCompileUnit, dwarf.TagModule, dwarf.TagNamespace:
		default:
			r.SkipChildren()
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lowpc < out[j].lowpc })
	return out
}

func dwarfLineTable(d *dwarf.Data) []dwarf.LineEntry {
	var out []dwarf.LineEntry
	r := d.Reader()
	for {
		ent, err := r.Next()
		if ent == nil || err != nil {
			break
		}
		if ent.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		lr, err := d.LineReader(ent)
		if err != nil || lr == nil {
			continue
		}
		for {
			var lent dwarf.LineEntry
			if err := lr.Next(&lent); err != nil {
				if err != io.EOF {
					break
				}
				break
			}
			out = append(out, lent)
		}
	}
	return out
}
