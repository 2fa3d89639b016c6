// Package pdbsym resolves addresses in PDB-backed Windows modules (the PDB
// flavor of §4.10): locate a module's PDB via a directory / cache /
// symbol-server chain keyed by (pdb_name, guid, age), then translate an
// address to a relative virtual address and query it.
//
// No Go PDB-parsing library exists in the retrieval pack or the wider
// ecosystem search space available here (see DESIGN.md), so the actual
// rva -> (function, line) lookup inside an opened PDB is deliberately
// seamed off behind SymbolSource, an interface a real PDB parser would
// implement. Everything around that seam — directory search, the on-disk
// cache, symbol-server download, RVA translation, generic-symbol
// degradation — is fully implemented and exercised.
package pdbsym

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/snailtrace/snail/symbol"
	"github.com/snailtrace/snail/trace"
)

// SymbolSource looks up the function enclosing rva (a PDB's own
// relative-virtual-address addressing scheme) within an opened PDB file.
// Found reports whether rva mapped to a known function.
type SymbolSource interface {
	Lookup(pdbPath string, rva uint32) (name string, file string, line int, found bool)
}

// Resolver resolves addresses within PDB-backed modules, implementing
// symbol.Resolver. Its PDB-location chain (directories, on-disk cache,
// symbol-server download) is fully implemented regardless of whether a
// real SymbolSource is wired in; without one, every located PDB still
// degrades to a generic symbol at the final lookup step.
type Resolver struct {
	cache   *symbol.Cache
	filter  *symbol.Filter
	store   *symbol.Store
	fetcher *symbol.Fetcher
	dirs    []string // local search directories, tried before the cache/server chain
	urls    []string // symbol-server base URLs, queried in order
	source  SymbolSource
	log     *logrus.Entry
}

// New creates a PDB resolver. source may be nil, in which case every
// located PDB still degrades to a generic symbol (see package doc).
func New(cache *symbol.Cache, filter *symbol.Filter, store *symbol.Store, fetcher *symbol.Fetcher, searchDirs, symbolServerURLs []string, source SymbolSource, log *logrus.Entry) *Resolver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Resolver{
		cache:   cache,
		filter:  filter,
		store:   store,
		fetcher: fetcher,
		dirs:    searchDirs,
		urls:    symbolServerURLs,
		source:  source,
		log:     log.WithField("component", "symbol.pdbsym"),
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
	if module.PDBInfo == nil {
		return generic
	}
	if r.source == nil {
		return generic
	}

	pdbPath, ok := r.locatePDB(*module.PDBInfo)
	if !ok {
		return generic
	}

	rva := uint32(address - module.Base)
	name, file, line, found := r.source.Lookup(pdbPath, rva)
	if !found {
		return generic
	}

	return symbol.Symbol{Name: name, FilePath: file, FunctionLine: line, InstructionLine: line}
}

// locatePDB finds info's PDB via, in order: the configured search
// directories (bare file name match), the on-disk artifact store cache,
// then a download from each configured symbol-server URL.
func (r *Resolver) locatePDB(info trace.PDBInfo) (string, bool) {
	for _, dir := range r.dirs {
		path := filepath.Join(dir, info.Name)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}

	cacheKey := cacheKeyFor(info)
	if r.store != nil {
		if path, ok := r.store.LookupPDB(cacheKey); ok {
			return path, true
		}
	}

	if r.fetcher == nil {
		return "", false
	}

	for _, base := range r.urls {
		url := symbol.PDBURL(base, info.Name, info.GUID, info.Age)
		data, err := r.fetcher.Fetch(url)
		if err != nil {
			r.log.WithError(err).WithField("url", url).Debug("symbol-server lookup failed")
			continue
		}
		cacheDir := filepath.Join(os.TempDir(), "snail-pdb")
		path, err := symbol.WriteAtomic(cacheDir, info.Name, data)
		if err != nil {
			r.log.WithError(err).Warn("failed to cache downloaded PDB")
			continue
		}
		if r.store != nil {
			_ = r.store.PutPDB(cacheKey, path)
		}
		return path, true
	}
	return "", false
}

func cacheKeyFor(info trace.PDBInfo) string {
	return fmt.Sprintf("%s/%x%d", info.Name, info.GUID, info.Age)
}
