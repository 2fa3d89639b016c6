package main

import (
	"strings"
	"testing"

	"github.com/snailtrace/snail/analysis"
	"github.com/snailtrace/snail/config"
	"github.com/snailtrace/snail/provider"
	"github.com/snailtrace/snail/symbol"
	"github.com/snailtrace/snail/trace"
)

type testResolver map[uint64]string

func (r testResolver) Resolve(processID uint64, module *trace.Module, address uint64) symbol.Symbol {
	if name, ok := r[address]; ok {
		return symbol.Symbol{Name: name}
	}
	return symbol.MakeGeneric(symbol.BaseName(module.FileName), address)
}

func buildTestResult(t *testing.T) *analysis.Result {
	t.Helper()
	ctx := trace.NewContext()
	ctx.ModuleMapFor(1).Insert(trace.Module{Base: 0x1000, Size: 0x10000, FileName: "app.exe"}, 0)
	idx := ctx.Stacks.Insert([]uint64{0x1100, 0x1200})

	a := analysis.NewAnalyzer(ctx, testResolver{0x1100: "leaf", 0x1200: "mid"}, 1)
	a.AddSample(&provider.SampleView{ProcessID: 1, UserStack: &idx})
	return a.Result()
}

func TestLoadConfigMergesFlagOverridesOntoDefaults(t *testing.T) {
	cfg, err := loadConfig(analyzeFlags{
		cacheDir:       "/tmp/snail-cache",
		symbolServers:  []string{"https://example.com/symbols"},
		debuginfodURLs: []string{"https://debuginfod.example.com"},
		moduleFilter:   []string{"ntdll.dll"},
	})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.CacheDir != "/tmp/snail-cache" {
		t.Fatalf("CacheDir = %q, want override applied", cfg.CacheDir)
	}
	if len(cfg.SymbolServerURLs) != 1 || cfg.SymbolServerURLs[0] != "https://example.com/symbols" {
		t.Fatalf("SymbolServerURLs = %v, want one flag-provided entry", cfg.SymbolServerURLs)
	}
	if len(cfg.DebuginfodURLs) != 1 {
		t.Fatalf("DebuginfodURLs = %v, want one flag-provided entry", cfg.DebuginfodURLs)
	}
	if len(cfg.ModuleFilter) != 1 || cfg.ModuleFilter[0] != "ntdll.dll" {
		t.Fatalf("ModuleFilter = %v, want one flag-provided entry", cfg.ModuleFilter)
	}
	// Defaults not touched by any flag survive the merge.
	if cfg.ChunkReaderWindow != config.Default().ChunkReaderWindow {
		t.Fatalf("ChunkReaderWindow = %d, want default preserved", cfg.ChunkReaderWindow)
	}
}

func TestLoadConfigWithoutOverridesIsDefault(t *testing.T) {
	cfg, err := loadConfig(analyzeFlags{})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	want := config.Default()
	if cfg.CacheDir != want.CacheDir {
		t.Fatalf("CacheDir = %q, want %q", cfg.CacheDir, want.CacheDir)
	}
	if len(cfg.SymbolServerURLs) != 0 || len(cfg.DebuginfodURLs) != 0 || len(cfg.ModuleFilter) != 0 {
		t.Fatalf("expected empty override lists, got %+v", cfg)
	}
}

func TestPrintCallTreeRespectsMaxDepth(t *testing.T) {
	res := buildTestResult(t)

	var unlimited strings.Builder
	printCallTree(&unlimited, res, 0)
	if !strings.Contains(unlimited.String(), "leaf") {
		t.Fatalf("unlimited depth output missing leaf frame:\n%s", unlimited.String())
	}

	var limited strings.Builder
	printCallTree(&limited, res, 1)
	if strings.Contains(limited.String(), "leaf") {
		t.Fatalf("max-depth=1 output should stop before the leaf frame:\n%s", limited.String())
	}
	if !strings.Contains(limited.String(), "mid") {
		t.Fatalf("max-depth=1 output missing the depth-1 frame:\n%s", limited.String())
	}
}
