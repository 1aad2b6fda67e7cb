//go:build unix

package sm_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/smalloc/sm"
	"github.com/vkngwrapper/smalloc/sm/region"
)

func TestAllocatorMmapRegions(t *testing.T) {
	allocator := readyAllocator(t, 128, []int{24, 200}, sm.CreateOptions{
		RegionSource: region.NewMmap(),
	})
	defer func() {
		require.NoError(t, allocator.Destroy())
	}()

	var blocks [][]byte
	for i := 0; i < 128; i++ {
		block, err := allocator.AllocBytes(24)
		require.NoError(t, err)
		block[0] = byte(i)
		blocks = append(blocks, block)
	}

	for i, block := range blocks {
		require.Equal(t, byte(i), block[0])
		require.NoError(t, allocator.FreeBytes(block))
	}

	require.Equal(t, []sm.PoolStatistics{
		{BlockSize: 24, TotalAllocations: 128, TotalBlocks: 128, FreeCount: 128},
		{BlockSize: 200, TotalAllocations: 0, TotalBlocks: 128, FreeCount: 128},
	}, allocator.Inspect())
	require.NoError(t, allocator.Validate())
}
