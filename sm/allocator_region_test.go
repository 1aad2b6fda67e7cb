package sm_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/smalloc/sm"
	mock_region "github.com/vkngwrapper/smalloc/sm/region/mocks"
	"go.uber.org/mock/gomock"
)

func TestAllocatorRegionSource(t *testing.T) {
	ctrl := gomock.NewController(t)

	source := mock_region.NewMockSource(ctrl)
	small := make([]byte, 16*4)
	large := make([]byte, 64*4)

	gomock.InOrder(
		source.EXPECT().Allocate(16*4).Return(small, nil),
		source.EXPECT().Allocate(64*4).Return(large, nil),
	)

	allocator, err := sm.New(nil, 4, []int{64, 16}, sm.CreateOptions{
		RegionSource: source,
	})
	require.NoError(t, err)

	block, err := allocator.AllocBytes(16)
	require.NoError(t, err)
	require.Same(t, &small[0], &block[0])

	block, err = allocator.AllocBytes(17)
	require.NoError(t, err)
	require.Same(t, &large[0], &block[0])

	// Every region is returned exactly once
	source.EXPECT().Release(small).Return(nil)
	source.EXPECT().Release(large).Return(nil)
	require.NoError(t, allocator.Destroy())
}

func TestAllocatorRegionFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	source := mock_region.NewMockSource(ctrl)
	first := make([]byte, 16*4)
	second := make([]byte, 64*4)

	gomock.InOrder(
		source.EXPECT().Allocate(16*4).Return(first, nil),
		source.EXPECT().Allocate(64*4).Return(second, nil),
		source.EXPECT().Allocate(256*4).Return(nil, errors.New("out of memory")),
	)
	source.EXPECT().Release(first).Return(nil)
	source.EXPECT().Release(second).Return(nil)

	allocator, err := sm.New(nil, 4, []int{16, 64, 256}, sm.CreateOptions{
		RegionSource: source,
	})
	require.Nil(t, allocator)
	requireErrorIs(t, err, sm.ErrRegionAllocation)
	require.True(t, sm.IsFatal(err))
	require.ErrorContains(t, err, "out of memory")
}

func TestAllocatorShortRegion(t *testing.T) {
	ctrl := gomock.NewController(t)

	source := mock_region.NewMockSource(ctrl)
	short := make([]byte, 60)

	source.EXPECT().Allocate(64).Return(short, nil)
	source.EXPECT().Release(short).Return(nil)

	_, err := sm.New(nil, 4, []int{16}, sm.CreateOptions{
		RegionSource: source,
	})
	requireErrorIs(t, err, sm.ErrRegionAllocation)
	require.ErrorContains(t, err, "the region source returned 60 bytes, but 64 were requested")
}

func TestAllocatorReleaseFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	source := mock_region.NewMockSource(ctrl)
	first := make([]byte, 32)
	second := make([]byte, 64)

	source.EXPECT().Allocate(32).Return(first, nil)
	source.EXPECT().Allocate(64).Return(second, nil)

	allocator, err := sm.New(nil, 4, []int{8, 16}, sm.CreateOptions{
		RegionSource: source,
	})
	require.NoError(t, err)

	// A failed release does not stop the remaining regions from being released
	source.EXPECT().Release(first).Return(errors.New("munmap failed"))
	source.EXPECT().Release(second).Return(nil)

	err = allocator.Destroy()
	require.ErrorContains(t, err, "munmap failed")
}
