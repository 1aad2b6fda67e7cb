package main

import (
	"io"
	"math/rand"

	"github.com/cockroachdb/errors"
	"github.com/eapache/queue"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/smalloc/sm"
)

var (
	runOps        int
	runRounds     int
	runMaxLive    int
	runMaxRequest int
	runSeed       int64
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().IntVar(&runOps, "ops", 100000, "Number of allocate or free operations in each round")
	cmd.Flags().IntVar(&runRounds, "rounds", 1, "Number of rounds, the allocator is reset between rounds")
	cmd.Flags().IntVar(&runMaxLive, "max-live", 0, "Most allocations held at once (default: --blocks)")
	cmd.Flags().IntVar(&runMaxRequest, "max-request", 0, "Largest request size (default: --max-block-size)")
	cmd.Flags().Int64Var(&runSeed, "seed", 1, "Seed for request sizes and operation order")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive a synthetic workload against an allocator",
		Long: `The run command creates an allocator from the configured pools and performs a
random mix of allocations and frees against it. Outstanding allocations are held in
a FIFO and released oldest first. At the end every block is released and the free
lists are validated.

Example:
  smstat run --sizes 16,64,256 --blocks 4096 --ops 100000
  smstat run --sizes 8,32,128 --mmap --rounds 4 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd)
		},
	}
	return cmd
}

type workloadConfig struct {
	Ops        int
	Rounds     int
	MaxLive    int
	MaxRequest int
	Seed       int64
}

type workloadResult struct {
	Allocations   int
	Frees         int
	Unserviceable int
	Exhausted     int
	Resets        int
	PeakLive      int
}

// runWorkload performs config.Ops random operations per round. Blocks held when a round ends are
// abandoned by resetting the allocator, except after the last round where each is freed.
func runWorkload(allocator *sm.Allocator, config workloadConfig) (workloadResult, error) {
	var result workloadResult
	random := rand.New(rand.NewSource(config.Seed))

	for round := 0; round < config.Rounds; round++ {
		live := queue.New()

		for op := 0; op < config.Ops; op++ {
			if live.Length() > 0 && (live.Length() >= config.MaxLive || random.Intn(3) == 0) {
				err := allocator.FreeBytes(live.Remove().([]byte))
				if err != nil {
					return result, err
				}
				result.Frees++
				continue
			}

			block, err := allocator.AllocBytes(random.Intn(config.MaxRequest + 1))
			if errors.Is(err, sm.ErrUnserviceable) {
				result.Unserviceable++
				continue
			} else if errors.Is(err, sm.ErrPoolExhausted) {
				result.Exhausted++
				continue
			} else if err != nil {
				return result, err
			}

			block[:cap(block)][0] = byte(op)
			live.Add(block)
			result.Allocations++
			if live.Length() > result.PeakLive {
				result.PeakLive = live.Length()
			}
		}

		if round < config.Rounds-1 {
			allocator.Reset()
			result.Resets++
			continue
		}

		for live.Length() > 0 {
			err := allocator.FreeBytes(live.Remove().([]byte))
			if err != nil {
				return result, err
			}
			result.Frees++
		}
	}

	return result, allocator.Validate()
}

func writeWorkloadJson(w io.Writer, allocator *sm.Allocator, config workloadConfig, result workloadResult) error {
	writer := jwriter.NewWriter()
	objState := writer.Object()

	workloadObj := objState.Name("Workload").Object()
	workloadObj.Name("Ops").Int(config.Ops)
	workloadObj.Name("Rounds").Int(config.Rounds)
	workloadObj.Name("Seed").Int(int(config.Seed))
	workloadObj.Name("Allocations").Int(result.Allocations)
	workloadObj.Name("Frees").Int(result.Frees)
	workloadObj.Name("Unserviceable").Int(result.Unserviceable)
	workloadObj.Name("Exhausted").Int(result.Exhausted)
	workloadObj.Name("Resets").Int(result.Resets)
	workloadObj.Name("PeakLive").Int(result.PeakLive)
	workloadObj.End()

	allocatorObj := objState.Name("Allocator").Object()
	allocator.WriteStatsJson(allocatorObj, false)
	allocatorObj.End()

	objState.End()
	if writer.Error() != nil {
		return writer.Error()
	}

	_, err := w.Write(append(writer.Bytes(), '\n'))
	return err
}

func runRun(cmd *cobra.Command) (err error) {
	config := workloadConfig{
		Ops:        runOps,
		Rounds:     runRounds,
		MaxLive:    runMaxLive,
		MaxRequest: runMaxRequest,
		Seed:       runSeed,
	}
	if config.MaxLive <= 0 {
		config.MaxLive = blocksPerPool
	}
	if config.MaxRequest <= 0 {
		config.MaxRequest = maxBlockSize
	}
	if config.Rounds < 1 {
		return errors.Newf("at least one round is required, but %d were requested", config.Rounds)
	}

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

	result, err := runWorkload(allocator, config)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		return writeWorkloadJson(out, allocator, config, result)
	}

	p := newPrinter()
	p.Fprintf(out, "%d operations in %d rounds\n", config.Ops*config.Rounds, config.Rounds)
	p.Fprintf(out, "  allocations:   %d\n", result.Allocations)
	p.Fprintf(out, "  frees:         %d\n", result.Frees)
	p.Fprintf(out, "  unserviceable: %d\n", result.Unserviceable)
	p.Fprintf(out, "  exhausted:     %d\n", result.Exhausted)
	p.Fprintf(out, "  resets:        %d\n", result.Resets)
	p.Fprintf(out, "  peak live:     %d\n", result.PeakLive)
	printPools(out, allocator)

	return nil
}
