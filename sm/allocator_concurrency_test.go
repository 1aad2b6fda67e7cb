package sm_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/smalloc/memutils"
	"github.com/vkngwrapper/smalloc/sm"
	"golang.org/x/sync/errgroup"
)

func TestAllocatorConcurrentAllocFree(t *testing.T) {
	const workers = 8
	const iterations = 2000

	allocator := readyAllocator(t, workers*4, []int{16, 64}, sm.CreateOptions{
		Flags: sm.AllocatorCreateTrackAllocations,
	})
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	var group errgroup.Group
	for worker := 0; worker < workers; worker++ {
		id := byte(worker + 1)
		group.Go(func() error {
			var held [][]byte
			for i := 0; i < iterations; i++ {
				block, err := allocator.AllocBytes(8 + (i % 56))
				if err != nil {
					return err
				}

				// Stamp the block so another worker writing into it would be noticed
				block = block[:cap(block)]
				for j := range block {
					block[j] = id
				}
				held = append(held, block)

				if len(held) == 3 {
					for _, heldBlock := range held {
						for _, b := range heldBlock {
							if b != id {
								return errors.Newf("worker %d found a block stamped by worker %d", id, b)
							}
						}

						err = allocator.FreeBytes(heldBlock)
						if err != nil {
							return err
						}
					}
					held = held[:0]
				}
			}

			for _, heldBlock := range held {
				err := allocator.FreeBytes(heldBlock)
				if err != nil {
					return err
				}
			}

			return nil
		})
	}
	require.NoError(t, group.Wait())

	var stats memutils.Statistics
	allocator.CalculateStatistics(&stats)
	require.Equal(t, 0, stats.AllocationCount)
	require.Equal(t, workers*iterations, stats.TotalAllocations)
	require.Equal(t, stats.BlockCount, stats.FreeBlockCount)
	require.NoError(t, allocator.Validate())
}

func TestAllocatorValidateDuringAllocFree(t *testing.T) {
	const workers = 6
	const iterations = 2000

	allocator := readyAllocator(t, workers*2, []int{16, 32, 64}, sm.CreateOptions{
		Flags: sm.AllocatorCreateTrackAllocations,
	})
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	done := make(chan struct{})

	var workerGroup errgroup.Group
	for worker := 0; worker < workers; worker++ {
		size := 16 << (worker % 3)
		workerGroup.Go(func() error {
			for i := 0; i < iterations; i++ {
				ptr, err := allocator.Alloc(size)
				if err != nil {
					return err
				}

				err = allocator.Free(ptr)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	var validateGroup errgroup.Group
	validateGroup.Go(func() error {
		for {
			select {
			case <-done:
				return nil
			default:
			}

			// Tracked and outstanding counts must agree even while workers are mid-flight
			err := allocator.Validate()
			if err != nil {
				return err
			}
		}
	})

	workerErr := workerGroup.Wait()
	close(done)
	require.NoError(t, workerErr)
	require.NoError(t, validateGroup.Wait())
	require.NoError(t, allocator.Validate())
}
