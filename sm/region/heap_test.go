package region_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/smalloc/sm/region"
)

func TestHeapAllocate(t *testing.T) {
	source := region.NewHeap()

	data, err := source.Allocate(256)
	require.NoError(t, err)
	require.Len(t, data, 256)

	data[255] = 1
	require.NoError(t, source.Release(data))
}

func TestHeapAllocateEmpty(t *testing.T) {
	source := region.NewHeap()

	_, err := source.Allocate(0)
	require.EqualError(t, err, "cannot allocate a heap region of 0 bytes")
}
