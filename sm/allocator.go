package sm

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/smalloc/memutils"
	"github.com/vkngwrapper/smalloc/memutils/metadata"
	"golang.org/x/exp/slog"
)

// Allocator services small allocations from a fixed set of pools, one per block size. Each request
// is served by the pool with the smallest block size that can hold it. Pools never grow: when the
// chosen pool is exhausted, Alloc fails rather than trying a larger pool.
//
// Block memory comes from regions the garbage collector does not scan, so a Go pointer stored in a
// block does not keep its target alive.
//
// Unless the allocator was created with AllocatorCreateExternallySynchronized, all methods may be
// called from multiple goroutines. Methods must not be called after Destroy.
type Allocator struct {
	logger      *slog.Logger
	createFlags CreateFlags

	maxBlockSize int
	sizeClasses  *metadata.SizeClassTable
	pools        poolSet

	tracker *allocationTracker
}

func formatAddress(addr uintptr) string {
	return fmt.Sprintf("0x%x", addr)
}

// fatal logs err and, if the allocator was created with AllocatorCreatePanicOnFatalError, panics
func (a *Allocator) fatal(err error) error {
	a.logger.LogAttrs(context.Background(), slog.LevelError, "fatal allocator error", slog.Any("error", err))

	if a.createFlags&AllocatorCreatePanicOnFatalError != 0 {
		panic(err)
	}

	return err
}

// allocBlock pops a block of at least size bytes whose address is a multiple of align
func (a *Allocator) allocBlock(size int, align uintptr) ([]byte, error) {
	a.logger.Debug("Allocator::Alloc", slog.Int("size", size))

	if size < 0 || size > a.maxBlockSize {
		return nil, errors.Wrapf(ErrUnserviceable, "%d bytes were requested, but the maximum block size is %d", size, a.maxBlockSize)
	}

	poolIndex, ok := a.sizeClasses.Lookup(size)
	if !ok {
		return nil, errors.Wrapf(ErrUnserviceable, "%d bytes were requested, but no pool has blocks that large", size)
	}

	pool := a.pools.Pool(poolIndex)
	if align > 1 && !pool.Aligned(align) {
		return nil, errors.Wrapf(ErrUnserviceable, "blocks of %d bytes in pool %d are not aligned to %d bytes", pool.BlockSize(), pool.id, align)
	}

	block, err := pool.Alloc(size)
	if err != nil {
		return nil, a.fatal(err)
	}

	return block, nil
}

// Alloc returns a pointer to a block of at least size bytes. The contents of the block are not
// zeroed. The block remains valid until it is passed to Free.
//
// If no pool can hold size bytes, the returned error will match ErrUnserviceable. If the chosen pool
// has no free blocks, it will match ErrPoolExhausted.
func (a *Allocator) Alloc(size int) (unsafe.Pointer, error) {
	block, err := a.allocBlock(size, 1)
	if err != nil {
		return nil, err
	}

	return unsafe.Pointer(unsafe.SliceData(block)), nil
}

// AllocBytes behaves like Alloc, but returns the block as a slice whose length is size and whose
// capacity is the full block size. The slice, or any reslice of it that keeps the first byte,
// can be passed to FreeBytes.
func (a *Allocator) AllocBytes(size int) ([]byte, error) {
	block, err := a.allocBlock(size, 1)
	if err != nil {
		return nil, err
	}

	return block[:size], nil
}

func (a *Allocator) free(addr uintptr) error {
	a.logger.Debug("Allocator::Free", slog.String("address", formatAddress(addr)))

	pool, ok := a.pools.Resolve(addr)
	if !ok {
		return a.fatal(errors.Wrapf(ErrInvalidRelease, "address %s is outside of every pool", formatAddress(addr)))
	}

	handle, err := pool.HandleForAddress(addr)
	if err != nil {
		return a.fatal(err)
	}

	err = pool.Free(handle, addr)
	if err != nil {
		return a.fatal(err)
	}

	return nil
}

// Free returns a block received from Alloc to its pool. Passing nil does nothing.
//
// If ptr is not the start of a block in one of this allocator's pools, the returned error will
// match ErrInvalidRelease. Releasing a block that is already free is only detected when the
// allocator was created with AllocatorCreateTrackAllocations, and otherwise corrupts the pool.
func (a *Allocator) Free(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}

	return a.free(uintptr(ptr))
}

// FreeBytes returns a block received from AllocBytes to its pool. Passing a slice with no capacity
// does nothing.
func (a *Allocator) FreeBytes(block []byte) error {
	if cap(block) == 0 {
		return nil
	}

	return a.free(uintptr(unsafe.Pointer(unsafe.SliceData(block))))
}

// Inspect returns the occupancy of every pool, in ascending order of block size
func (a *Allocator) Inspect() []PoolStatistics {
	stats := make([]PoolStatistics, 0, a.pools.Count())
	for i := 0; i < a.pools.Count(); i++ {
		stats = append(stats, a.pools.Pool(i).Statistics())
	}

	return stats
}

// CalculateStatistics sums the occupancy of every pool into stats
func (a *Allocator) CalculateStatistics(stats *memutils.Statistics) {
	stats.Clear()

	for i := 0; i < a.pools.Count(); i++ {
		a.pools.Pool(i).AddStatistics(stats)
	}
}

// Validate walks the free list of every pool and verifies that it is consistent. It returns an
// error if any free list contains a cycle, links outside its pool, or does not match its free count.
// A block that has been released twice will usually be caught here.
//
// Every pool is held for the duration of the call, so the pools and the tracked allocations are
// compared at a single point in time even while other goroutines allocate and free.
func (a *Allocator) Validate() error {
	locks := a.pools.Locks()
	locks.Lock()
	defer locks.Unlock()

	var stats memutils.Statistics
	for i := 0; i < a.pools.Count(); i++ {
		err := a.pools.Pool(i).validateLocked(&stats)
		if err != nil {
			return err
		}
	}

	if a.tracker != nil {
		tracked := a.tracker.Count()
		if tracked != stats.AllocationCount {
			return errors.Newf("%d allocations are tracked, but the pools hold %d outstanding blocks", tracked, stats.AllocationCount)
		}
	}

	return nil
}

// CheckCorruption verifies that no free block has been written to since it was released.
//
// Bear in mind that fill patterns are only written when memutils is built with the build flag
// `debug_mem_utils`. This method will not return an error when that flag is not present.
func (a *Allocator) CheckCorruption() error {
	for i := 0; i < a.pools.Count(); i++ {
		err := a.pools.Pool(i).CheckCorruption()
		if err != nil {
			return err
		}
	}

	return nil
}

// Reset returns every block of every pool to its free list at once. Any pointer handed out before
// Reset must no longer be used or released.
func (a *Allocator) Reset() {
	a.logger.Debug("Allocator::Reset")

	locks := a.pools.Locks()
	locks.Lock()
	defer locks.Unlock()

	for i := 0; i < a.pools.Count(); i++ {
		a.pools.Pool(i).resetLocked()
	}

	if a.tracker != nil {
		a.tracker.Clear()
	}
}

// Destroy releases the region of every pool. Blocks that were never released are logged. Calling
// Destroy more than once, or calling any other method after Destroy, is not permitted.
func (a *Allocator) Destroy() error {
	a.logger.Debug("Allocator::Destroy")

	if a.tracker != nil {
		a.tracker.LogUnreleased(a.logger)
		a.tracker.Clear()
	}

	return a.pools.Destroy()
}
