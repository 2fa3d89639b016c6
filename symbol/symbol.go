// Package symbol defines the resolver contract shared by the PDB (symbol/pdbsym)
// and DWARF (symbol/dwarfsym) flavors: resolve an address within a loaded
// module to a function name and source line, degrading to a synthetic
// generic symbol whenever debug info is unavailable, filtered out, or the
// address doesn't map to a known function. Resolution failures are never
// fatal (§7's propagation policy): every path through Resolve returns a
// usable Symbol.
package symbol

import (
	"fmt"

	"github.com/snailtrace/snail/trace"
)

// Symbol is one resolved (or synthesized) address.
type Symbol struct {
	Name            string
	IsGeneric       bool
	FilePath        string
	FunctionLine    int
	InstructionLine int
}

// MakeGeneric synthesizes the fallback symbol for an address, optionally
// within a named module: "<module_basename>!0x<addr>", or bare "0x<addr>"
// when no module is known.
func MakeGeneric(moduleBaseName string, address uint64) Symbol {
	if moduleBaseName == "" {
		return Symbol{Name: fmt.Sprintf("0x%x", address), IsGeneric: true}
	}
	return Symbol{Name: fmt.Sprintf("%s!0x%x", moduleBaseName, address), IsGeneric: true}
}

// Resolver maps an address within a loaded module, owned by processID, to
// a symbol. Every implementation must never error out of Resolve; instead
// it degrades to MakeGeneric.
type Resolver interface {
	Resolve(processID uint64, module *trace.Module, address uint64) Symbol
}

// Key identifies one cached resolution: the process and the module's load
// timestamp (together identifying *which* loaded instance of a module,
// since the same address range can be reused across loads) pair with the
// queried address.
type Key struct {
	ProcessID     uint64
	LoadTimestamp int64
	Address       uint64
}
