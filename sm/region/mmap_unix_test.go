//go:build unix

package region_test

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/smalloc/sm/region"
)

func TestMmapAllocate(t *testing.T) {
	source := region.NewMmap()

	data, err := source.Allocate(4096 + 100)
	require.NoError(t, err)
	require.Len(t, data, 4196)

	// Anonymous mappings are page-aligned and zeroed
	require.Zero(t, uintptr(unsafe.Pointer(&data[0]))%uintptr(os.Getpagesize()))
	for _, b := range data {
		require.Zero(t, b)
	}

	data[4195] = 0xff
	require.NoError(t, source.Release(data))
}

func TestMmapAllocateEmpty(t *testing.T) {
	source := region.NewMmap()

	_, err := source.Allocate(-1)
	require.EqualError(t, err, "cannot map a region of -1 bytes")

	require.NoError(t, source.Release(nil))
}
