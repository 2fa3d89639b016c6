package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultSetsDocumentedDefaults(t *testing.T) {
	cfg := Default()
	if cfg.ChunkReaderWindow != 65536 {
		t.Fatalf("ChunkReaderWindow = %d, want 65536", cfg.ChunkReaderWindow)
	}
	if cfg.ProgressGranularityPercent != 1 {
		t.Fatalf("ProgressGranularityPercent = %d, want 1", cfg.ProgressGranularityPercent)
	}
	if cfg.CacheDir == "" {
		t.Fatal("CacheDir must not be empty")
	}
}

func TestLoadOverlaysDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snail.yaml")
	yamlContent := `
cache_dir: /tmp/snail-cache
symbol_server_urls:
  - https://msdl.microsoft.com/download/symbols
debuginfod_urls:
  - https://debuginfod.example.com
path_map_rules:
  - prefix: /build/agent1/
    replacement: /home/dev/
module_filter:
  - "ntdll.dll"
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheDir != "/tmp/snail-cache" {
		t.Fatalf("CacheDir = %q, want /tmp/snail-cache", cfg.CacheDir)
	}
	if cfg.ChunkReaderWindow != 65536 {
		t.Fatalf("ChunkReaderWindow default not preserved: %d", cfg.ChunkReaderWindow)
	}
	if len(cfg.PathMapRules) != 1 || cfg.PathMapRules[0].Prefix != "/build/agent1/" {
		t.Fatalf("PathMapRules = %+v", cfg.PathMapRules)
	}
}

func TestLoadRejectsConflictingPathMapRule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snail.yaml")
	yamlContent := `
path_map_rules:
  - prefix: /build/
    regex: "^/build/(.*)$"
    replacement: "/home/$1"
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load with both prefix and regex set succeeded, want error")
	}
}

func TestPathMapBuildsRules(t *testing.T) {
	cfg := Default()
	cfg.PathMapRules = []PathMapRule{{Prefix: "/build/", Replacement: "/home/"}}
	pm := cfg.PathMap()
	if got := pm.Resolve("/build/libfoo.so"); got != "/home/libfoo.so" {
		t.Fatalf("Resolve = %q", got)
	}
}
