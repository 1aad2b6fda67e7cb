package sm

import (
	"context"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/smalloc/sm/internal/utils"
	"golang.org/x/exp/slog"
)

type trackedAllocation struct {
	poolId    int
	blockSize int
	size      int
}

// allocationTracker records every outstanding block by address
type allocationTracker struct {
	mutex       utils.OptionalRWMutex
	outstanding *swiss.Map[uintptr, trackedAllocation]
}

func newAllocationTracker(useMutex bool) *allocationTracker {
	return &allocationTracker{
		mutex:       utils.OptionalRWMutex{UseMutex: useMutex},
		outstanding: swiss.NewMap[uintptr, trackedAllocation](64),
	}
}

func (t *allocationTracker) Track(addr uintptr, allocation trackedAllocation) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.outstanding.Put(addr, allocation)
}

// Untrack removes addr from the outstanding set and returns false if it was not present
func (t *allocationTracker) Untrack(addr uintptr) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.outstanding.Delete(addr)
}

func (t *allocationTracker) Count() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.outstanding.Count()
}

func (t *allocationTracker) Clear() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.outstanding.Clear()
}

func (t *allocationTracker) LogUnreleased(logger *slog.Logger) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	t.outstanding.Iter(func(addr uintptr, allocation trackedAllocation) (stop bool) {
		logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
			slog.Int("pool", allocation.poolId),
			slog.Int("blockSize", allocation.blockSize),
			slog.Int("size", allocation.size),
			slog.String("address", formatAddress(addr)),
		)
		return false
	})
}
