// Command snail decodes ETW (.etl) and Linux perf.data traces, optionally
// symbolizing and analyzing the sampled stacks into a call tree. Grounded
// on ja7ad-consumption/cmd/consumption's cobra.Command construction style,
// generalized from that tool's single-command shape to a root command with
// dump/analyze subcommands, in the spirit of cmd/dump/main.go's
// flag-to-behavior mapping.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	log := logrus.New()
	root := &cobra.Command{
		Use:           "snail",
		Short:         "Decode and analyze ETW / perf.data CPU sampling traces",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var verbose bool
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	}

	root.AddCommand(newDumpCommand(log))
	root.AddCommand(newAnalyzeCommand(log))

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("snail failed")
		os.Exit(1)
	}
}
