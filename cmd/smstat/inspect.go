package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vkngwrapper/smalloc/memutils"
)

var (
	inspectDetailed bool
)

func init() {
	cmd := newInspectCmd()
	cmd.Flags().BoolVar(&inspectDetailed, "detailed", false, "Include the free list of every pool in JSON output")
	rootCmd.AddCommand(cmd)
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the layout of a freshly created allocator",
		Long: `The inspect command creates an allocator from the configured pools and reports
their layout without allocating anything.

Example:
  smstat inspect --sizes 16,64,256 --blocks 4
  smstat inspect --sizes 8,24 --json --detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd)
		},
	}
	return cmd
}

func runInspect(cmd *cobra.Command) (err error) {
	allocator, err := newAllocator(cmd)
	if err != nil {
		return err
	}
	defer func() {
		destroyErr := allocator.Destroy()
		if err == nil {
			err = destroyErr
		}
	}()

	out := cmd.OutOrStdout()
	if jsonOut {
		_, err = fmt.Fprintln(out, allocator.BuildStatsString(inspectDetailed))
		return err
	}

	var stats memutils.Statistics
	allocator.CalculateStatistics(&stats)

	newPrinter().Fprintf(out, "%d pools, %d blocks, %d bytes reserved\n", stats.PoolCount, stats.BlockCount, stats.RegionBytes)
	printPools(out, allocator)

	return nil
}
