package pdbsym

import (
	"os"
	"testing"

	"github.com/snailtrace/snail/symbol"
	"github.com/snailtrace/snail/trace"
)

type fakeSource struct {
	name  string
	file  string
	line  int
	found bool
}

func (f fakeSource) Lookup(pdbPath string, rva uint32) (string, string, int, bool) {
	return f.name, f.file, f.line, f.found
}

func TestResolveDegradesToGenericWithoutSource(t *testing.T) {
	r := New(symbol.NewCache(), nil, nil, nil, []string{"/symbols"}, nil, nil, nil)
	module := &trace.Module{
		Base: 0x140000000, Size: 0x1000, FileName: "app.exe", LoadTimestamp: 3,
		PDBInfo: &trace.PDBInfo{Name: "app.pdb", Age: 1},
	}
	got := r.Resolve(1, module, 0x140000100)
	if !got.IsGeneric {
		t.Fatalf("Resolve = %+v, want generic symbol with no SymbolSource wired", got)
	}
}

func TestResolveDegradesToGenericWithoutPDBInfo(t *testing.T) {
	r := New(symbol.NewCache(), nil, nil, nil, nil, nil, fakeSource{found: true, name: "f"}, nil)
	module := &trace.Module{Base: 0x1000, Size: 0x1000, FileName: "app.exe", LoadTimestamp: 3}
	got := r.Resolve(1, module, 0x1100)
	if !got.IsGeneric {
		t.Fatalf("Resolve = %+v, want generic symbol with no PDBInfo", got)
	}
}

func TestResolveDegradesToGenericWhenFiltered(t *testing.T) {
	r := New(symbol.NewCache(), symbol.NewFilter([]string{"app.exe"}), nil, nil, nil, nil, fakeSource{found: true, name: "f"}, nil)
	module := &trace.Module{
		Base: 0x1000, Size: 0x1000, FileName: "app.exe", LoadTimestamp: 3,
		PDBInfo: &trace.PDBInfo{Name: "app.pdb", Age: 1},
	}
	got := r.Resolve(1, module, 0x1100)
	if !got.IsGeneric {
		t.Fatalf("Resolve = %+v, want generic symbol for filtered module", got)
	}
}

func TestResolveUsesSourceWhenPDBLocatedInSearchDir(t *testing.T) {
	dir := t.TempDir()
	pdbPath := dir + "/app.pdb"
	if err := writeEmptyFile(pdbPath); err != nil {
		t.Fatal(err)
	}

	r := New(symbol.NewCache(), nil, nil, nil, []string{dir}, nil, fakeSource{found: true, name: "main.run", file: "main.go", line: 42}, nil)
	module := &trace.Module{
		Base: 0x140000000, Size: 0x1000, FileName: "app.exe", LoadTimestamp: 3,
		PDBInfo: &trace.PDBInfo{Name: "app.pdb", Age: 1},
	}
	got := r.Resolve(1, module, 0x140000100)
	if got.IsGeneric || got.Name != "main.run" || got.FunctionLine != 42 {
		t.Fatalf("Resolve = %+v, want resolved main.run:42", got)
	}
}

func writeEmptyFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
