// Package config loads the flat YAML configuration shared by every
// decoder and resolver: where downloaded debug artifacts are cached, which
// symbol-server and debuginfod URLs to query, how recorded module paths
// get rewritten before a local lookup, and which modules are excluded from
// symbolization entirely.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PathMapRule is one YAML-configured path-rewrite rule, either a literal
// prefix rewrite (Regex empty) or a regex substitution.
type PathMapRule struct {
	Prefix      string `yaml:"prefix,omitempty"`
	Regex       string `yaml:"regex,omitempty"`
	Replacement string `yaml:"replacement"`
}

// Config is the top-level, on-disk configuration shape.
type Config struct {
	// CacheDir is where downloaded PDBs and DWARF debuginfo are cached,
	// keyed in a bbolt database under this directory. Defaults to
	// "~/.cache/snail" when omitted.
	CacheDir string `yaml:"cache_dir"`

	// SymbolServerURLs are queried in order for PDBs not found locally,
	// using the "<base>/<pdb_name>/<guid><age>/<pdb_name>" layout.
	SymbolServerURLs []string `yaml:"symbol_server_urls"`

	// DebuginfodURLs are queried in order for ELF debuginfo by build id,
	// using the "<base>/buildid/<build_id>/debuginfo" layout.
	DebuginfodURLs []string `yaml:"debuginfod_urls"`

	// PathMapRules rewrite a module's recorded file name before any
	// resolver looks it up on disk, first-match-wins.
	PathMapRules []PathMapRule `yaml:"path_map_rules"`

	// ModuleFilter lists wildcard patterns (matched against a module's
	// file name) that force a generic symbol instead of debug-info
	// lookup. An empty list symbolizes everything.
	ModuleFilter []string `yaml:"module_filter"`

	// ChunkReaderWindow is an in-memory window size, in bytes, for the
	// chunked reader. Defaults to 65536. It is loaded and validated only;
	// neither decoder reads it (the ETL decoder uses a fixed 64 KiB window).
	ChunkReaderWindow int `yaml:"chunk_reader_window"`

	// ProgressGranularityPercent is the minimum fractional advancement,
	// in whole percent, between progress-sink callbacks. Defaults to 1.
	// It is loaded and validated only; both providers report in fixed
	// 1% steps.
	ProgressGranularityPercent int `yaml:"progress_granularity_percent"`
}

// Default returns the documented default configuration.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		CacheDir:                   home + "/.cache/snail",
		ChunkReaderWindow:          65536,
		ProgressGranularityPercent: 1,
	}
}

// Load reads and validates a YAML configuration file at path, starting from
// Default and overlaying whatever fields the file sets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %q: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validating %q: %w", path, err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	if cfg.ChunkReaderWindow <= 0 {
		return fmt.Errorf("chunk_reader_window must be positive, got %d", cfg.ChunkReaderWindow)
	}
	if cfg.ProgressGranularityPercent <= 0 {
		return fmt.Errorf("progress_granularity_percent must be positive, got %d", cfg.ProgressGranularityPercent)
	}
	for i, r := range cfg.PathMapRules {
		if r.Prefix == "" && r.Regex == "" {
			return fmt.Errorf("path_map_rules[%d]: must set prefix or regex", i)
		}
		if r.Prefix != "" && r.Regex != "" {
			return fmt.Errorf("path_map_rules[%d]: must not set both prefix and regex", i)
		}
	}
	return nil
}
