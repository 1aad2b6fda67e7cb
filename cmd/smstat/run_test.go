package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/smalloc/sm"
)

// resetFlags restores every global flag to its default so tests do not leak into each other
func resetFlags(t *testing.T) {
	t.Helper()

	verbose = false
	jsonOut = false
	blockSizes = []int{16, 64, 256}
	blocksPerPool = 4096
	maxBlockSize = sm.DefaultMaxBlockSize
	useMmap = false
	trackAllocations = false

	inspectDetailed = false

	runOps = 100000
	runRounds = 1
	runMaxLive = 0
	runMaxRequest = 0
	runSeed = 1
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	return cmd, &out
}

func TestRunWorkload(t *testing.T) {
	allocator, err := sm.New(nil, 64, []int{16, 64, 256}, sm.CreateOptions{
		Flags: sm.AllocatorCreateTrackAllocations,
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	result, err := runWorkload(allocator, workloadConfig{
		Ops:        5000,
		Rounds:     3,
		MaxLive:    64,
		MaxRequest: 300,
		Seed:       7,
	})
	require.NoError(t, err)

	require.Equal(t, 2, result.Resets)
	require.Zero(t, result.Exhausted)
	require.NotZero(t, result.Unserviceable)
	require.LessOrEqual(t, result.PeakLive, 64)
	// The final drain releases what the last round still holds
	require.GreaterOrEqual(t, result.Allocations+result.Frees+result.Unserviceable, 3*5000)

	total := 0
	for _, pool := range allocator.Inspect() {
		require.Equal(t, pool.TotalBlocks, pool.FreeCount)
		total += pool.TotalAllocations
	}
	require.Equal(t, result.Allocations, total)
}

func TestRunWorkloadExhaustion(t *testing.T) {
	allocator, err := sm.New(nil, 2, []int{32}, sm.CreateOptions{})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	result, err := runWorkload(allocator, workloadConfig{
		Ops:        1000,
		Rounds:     1,
		MaxLive:    10,
		MaxRequest: 32,
		Seed:       1,
	})
	require.NoError(t, err)
	require.NotZero(t, result.Exhausted)
	require.Equal(t, 2, result.PeakLive)
}

func TestRunCommandText(t *testing.T) {
	resetFlags(t)
	blockSizes = []int{8, 32}
	blocksPerPool = 16
	runOps = 2000

	cmd, out := testCommand()
	require.NoError(t, runRun(cmd))

	output := out.String()
	require.Contains(t, output, "2,000 operations in 1 rounds")
	require.Contains(t, output, "pool 0:    8-byte blocks  0/16 in use")
	require.Contains(t, output, "pool 1:   32-byte blocks  0/16 in use")
}

func TestRunCommandJSON(t *testing.T) {
	resetFlags(t)
	blockSizes = []int{16, 128}
	blocksPerPool = 32
	runOps = 500
	runRounds = 2
	jsonOut = true
	trackAllocations = true

	cmd, out := testCommand()
	require.NoError(t, runRun(cmd))

	var result struct {
		Workload struct {
			Ops    int
			Rounds int
			Resets int
		}
		Allocator struct {
			Flags              string
			TrackedAllocations int
			Pools              []struct {
				BlockSize  int
				FreeBlocks int
			}
		}
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))

	require.Equal(t, 500, result.Workload.Ops)
	require.Equal(t, 2, result.Workload.Rounds)
	require.Equal(t, 1, result.Workload.Resets)
	require.Equal(t, "AllocatorCreateExternallySynchronized|AllocatorCreateTrackAllocations", result.Allocator.Flags)
	require.Zero(t, result.Allocator.TrackedAllocations)
	require.Len(t, result.Allocator.Pools, 2)
	require.Equal(t, 128, result.Allocator.Pools[1].BlockSize)
	require.Equal(t, 32, result.Allocator.Pools[1].FreeBlocks)
}

func TestRunCommandInvalidRounds(t *testing.T) {
	resetFlags(t)
	runRounds = 0

	cmd, _ := testCommand()
	require.EqualError(t, runRun(cmd), "at least one round is required, but 0 were requested")
}

func TestInspectCommand(t *testing.T) {
	resetFlags(t)
	blockSizes = []int{256, 16, 64}
	blocksPerPool = 4

	cmd, out := testCommand()
	require.NoError(t, runInspect(cmd))

	require.Equal(t, `3 pools, 12 blocks, 1,344 bytes reserved
pool 0:   16-byte blocks  0/4 in use  0 allocations served
pool 1:   64-byte blocks  0/4 in use  0 allocations served
pool 2:  256-byte blocks  0/4 in use  0 allocations served
`, out.String())
}

func TestInspectCommandJSON(t *testing.T) {
	resetFlags(t)
	blockSizes = []int{8}
	blocksPerPool = 3
	jsonOut = true
	inspectDetailed = true

	cmd, out := testCommand()
	require.NoError(t, runInspect(cmd))

	require.JSONEq(t, `{
		"Total": {
			"PoolCount": 1,
			"BlockCount": 3,
			"FreeBlockCount": 3,
			"AllocationCount": 0,
			"TotalAllocations": 0,
			"RegionBytes": 24,
			"AllocatedBytes": 0,
			"Utilization": 0
		},
		"Flags": "AllocatorCreateExternallySynchronized",
		"MaxBlockSize": 256,
		"Pools": [
			{
				"Id": 0,
				"TotalBytes": 24,
				"BlockSize": 8,
				"TotalBlocks": 3,
				"FreeBlocks": 3,
				"UnusedBytes": 24,
				"Allocations": 0,
				"TotalAllocations": 0,
				"FreeList": [0, 8, 16]
			}
		]
	}`, out.String())
}

func TestInspectCommandInvalidConfiguration(t *testing.T) {
	resetFlags(t)
	blockSizes = []int{16, 512}

	cmd, _ := testCommand()
	err := runInspect(cmd)
	require.Error(t, err)
	require.True(t, sm.IsFatal(err))
}
