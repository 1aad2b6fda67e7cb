package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/vkngwrapper/smalloc/sm"
	"github.com/vkngwrapper/smalloc/sm/region"
	"golang.org/x/exp/slog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	// Global flags
	verbose          bool
	jsonOut          bool
	blockSizes       []int
	blocksPerPool    int
	maxBlockSize     int
	useMmap          bool
	trackAllocations bool
)

var rootCmd = &cobra.Command{
	Use:   "smstat",
	Short: "Exercise and inspect a fixed-size-class pool allocator",
	Long: `smstat builds a pool allocator from a list of block sizes, optionally drives a
synthetic allocation workload against it, and reports the occupancy of every pool.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every allocator call to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().IntSliceVar(&blockSizes, "sizes", []int{16, 64, 256}, "Block size of each pool")
	rootCmd.PersistentFlags().IntVar(&blocksPerPool, "blocks", 4096, "Number of blocks in every pool")
	rootCmd.PersistentFlags().IntVar(&maxBlockSize, "max-block-size", sm.DefaultMaxBlockSize, "Largest block size and request size")
	rootCmd.PersistentFlags().BoolVar(&useMmap, "mmap", false, "Back pools with anonymous mmap regions instead of the Go heap")
	rootCmd.PersistentFlags().BoolVar(&trackAllocations, "track", false, "Track outstanding allocations to detect double frees")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(w))
}

// newAllocator builds an allocator from the global flags
func newAllocator(cmd *cobra.Command) (*sm.Allocator, error) {
	options := sm.CreateOptions{
		Flags:        sm.AllocatorCreateExternallySynchronized,
		MaxBlockSize: maxBlockSize,
	}
	if trackAllocations {
		options.Flags |= sm.AllocatorCreateTrackAllocations
	}
	if useMmap {
		options.RegionSource = region.NewMmap()
	}

	return sm.New(newLogger(cmd.ErrOrStderr()), blocksPerPool, blockSizes, options)
}

// newPrinter returns a printer that groups digits in large counters
func newPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

func printPools(w io.Writer, allocator *sm.Allocator) {
	p := newPrinter()

	for index, pool := range allocator.Inspect() {
		used := pool.TotalBlocks - pool.FreeCount
		p.Fprintf(w, "pool %d: %4d-byte blocks  %d/%d in use  %d allocations served\n",
			index, pool.BlockSize, used, pool.TotalBlocks, pool.TotalAllocations)
	}
}
