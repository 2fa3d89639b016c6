package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/snailtrace/snail/provider"
)

func newDumpCommand(log *logrus.Logger) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dump <trace-file>",
		Short: "Print every decoded sample and the reconstructed process/thread/module context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(log.WithField("command", "dump"), args[0], limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after printing this many samples (0 = unlimited)")
	return cmd
}

func runDump(log *logrus.Entry, path string, limit int) error {
	p, closeAll, err := openTrace(path, log, logProgress{log})
	if err != nil {
		return err
	}
	defer closeAll()

	fmt.Printf("trace kind: %s\n", p.Kind)

	n := 0
	for {
		sample, err := p.Next()
		if err != nil {
			return err
		}
		if sample == nil {
			break
		}
		printSample(p, sample)
		n++
		if limit > 0 && n >= limit {
			break
		}
	}

	dumpContext(p)
	return nil
}

func printSample(p *provider.Provider, s *provider.SampleView) {
	fmt.Printf("sample pid=%d tid=%d t=%d ip=0x%x", s.ProcessID, s.ThreadID, s.Timestamp, s.InstructionPointer)
	if s.KernelStack != nil {
		fmt.Printf(" kernel_frames=%d", len(p.Context().Stacks.Get(*s.KernelStack)))
	}
	if s.UserStack != nil {
		fmt.Printf(" user_frames=%d", len(p.Context().Stacks.Get(*s.UserStack)))
	}
	fmt.Println()
}

func dumpContext(p *provider.Provider) {
	ctx := p.Context()
	fmt.Println("modules:")
	for pid, mm := range ctx.Modules {
		for _, m := range mm.AllModules() {
			fmt.Printf("  pid=%d base=0x%x size=0x%x file=%q", pid, m.Base, m.Size, m.FileName)
			if m.PDBInfo != nil {
				fmt.Printf(" pdb=%q age=%d", m.PDBInfo.Name, m.PDBInfo.Age)
			}
			if m.BuildID != nil {
				fmt.Printf(" build_id=%x", m.BuildID)
			}
			fmt.Println()
		}
	}
	if len(ctx.ProfilingTargets) > 0 {
		fmt.Println("profiling targets:")
		for pid, ts := range ctx.ProfilingTargets {
			fmt.Printf("  pid=%d t=%d\n", pid, ts)
		}
	}
}
