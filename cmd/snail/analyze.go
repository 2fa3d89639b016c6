package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/snailtrace/snail/analysis"
	"github.com/snailtrace/snail/config"
	"github.com/snailtrace/snail/provider"
	"github.com/snailtrace/snail/symbol"
	"github.com/snailtrace/snail/symbol/dwarfsym"
	"github.com/snailtrace/snail/symbol/pdbsym"
)

type analyzeFlags struct {
	configPath     string
	pid            uint64
	symbolDirs     []string
	symbolServers  []string
	debuginfodURLs []string
	moduleFilter   []string
	cacheDir       string
	maxDepth       int
}

func newAnalyzeCommand(log *logrus.Logger) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze <trace-file>",
		Short: "Symbolize a process's sampled stacks and print its call tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(log.WithField("command", "analyze"), args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "path to a YAML configuration file (see config.Config)")
	flags.Uint64Var(&f.pid, "pid", 0, "unique process id to analyze, as printed by \"snail dump\" (required)")
	flags.StringArrayVar(&f.symbolDirs, "symbol-dir", nil, "local directory to search for PDBs (repeatable)")
	flags.StringArrayVar(&f.symbolServers, "symbol-server", nil, "symbol-server base URL to query for PDBs, in addition to the config file's")
	flags.StringArrayVar(&f.debuginfodURLs, "debuginfod", nil, "debuginfod base URL to query for ELF debug info, in addition to the config file's")
	flags.StringArrayVar(&f.moduleFilter, "module-filter", nil, "wildcard pattern for modules to force to generic symbols, in addition to the config file's")
	flags.StringVar(&f.cacheDir, "cache-dir", "", "override the config file's downloaded-artifact cache directory")
	flags.IntVar(&f.maxDepth, "max-depth", 0, "stop printing the call tree past this depth (0 = unlimited)")
	_ = cmd.MarkFlagRequired("pid")

	return cmd
}

func runAnalyze(log *logrus.Entry, path string, f analyzeFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	p, closeAll, err := openTrace(path, log, logProgress{log})
	if err != nil {
		return err
	}
	defer closeAll()

	resolver, closeResolver, err := buildResolver(cfg, p.Kind, f.symbolDirs, log)
	if err != nil {
		return err
	}
	defer closeResolver()

	result, err := analysis.Analyze(p, p.Context(), resolver, f.pid)
	if err != nil {
		return err
	}

	printCallTree(os.Stdout, result, f.maxDepth)
	fmt.Println()
	fmt.Println("hot path:", strings.Join(result.HotPath(), " -> "))
	return nil
}

func loadConfig(f analyzeFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.cacheDir != "" {
		cfg.CacheDir = f.cacheDir
	}
	cfg.SymbolServerURLs = append(cfg.SymbolServerURLs, f.symbolServers...)
	cfg.DebuginfodURLs = append(cfg.DebuginfodURLs, f.debuginfodURLs...)
	cfg.ModuleFilter = append(cfg.ModuleFilter, f.moduleFilter...)
	return cfg, nil
}

// buildResolver wires up the symbol resolver matching the trace's format:
// symbol/pdbsym for ETW, symbol/dwarfsym for perf.data. Both share the same
// on-disk artifact store and HTTP fetcher.
func buildResolver(cfg *config.Config, kind provider.Kind, symbolDirs []string, log *logrus.Entry) (symbol.Resolver, func() error, error) {
	store, err := symbol.OpenStore(cfg.CacheDir)
	if err != nil {
		return nil, nil, err
	}
	fetcher := symbol.NewFetcher(log)
	filter := symbol.NewFilter(cfg.ModuleFilter)
	cache := symbol.NewCache()

	switch kind {
	case provider.KindETW:
		// No SymbolSource is wired in: every PDB this resolver locates still
		// degrades to a generic symbol at the final lookup step (see
		// symbol/pdbsym's package doc).
		r := pdbsym.New(cache, filter, store, fetcher, symbolDirs, cfg.SymbolServerURLs, nil, log)
		return r, store.Close, nil
	default:
		r := dwarfsym.New(cache, filter, cfg.PathMap(), store, fetcher, cfg.DebuginfodURLs, log)
		return r, store.Close, nil
	}
}

func printCallTree(w io.Writer, res *analysis.Result, maxDepth int) {
	fmt.Fprintf(w, "[root] total=%d self=%d\n", res.CallTreeRoot.Hits.Total, res.CallTreeRoot.Hits.Self)
	for _, childID := range res.CallTreeRoot.Children {
		printNode(w, res, childID, 1, maxDepth)
	}
}

func printNode(w io.Writer, res *analysis.Result, nodeID, depth, maxDepth int) {
	if maxDepth > 0 && depth > maxDepth {
		return
	}
	node := res.Node(nodeID)
	name := res.Functions[node.FunctionID].Name
	fmt.Fprintf(w, "%s%s total=%d self=%d\n", strings.Repeat("  ", depth), name, node.Hits.Total, node.Hits.Self)
	for _, childID := range node.Children {
		printNode(w, res, childID, depth+1, maxDepth)
	}
}
