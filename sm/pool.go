package sm

import (
	"context"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/smalloc/memutils"
	"github.com/vkngwrapper/smalloc/memutils/metadata"
	"github.com/vkngwrapper/smalloc/sm/internal/utils"
	"github.com/vkngwrapper/smalloc/sm/region"
	"golang.org/x/exp/slog"
)

// PoolStatistics describes the occupancy of a single pool
type PoolStatistics struct {
	// BlockSize is the size in bytes of every block in the pool
	BlockSize int
	// TotalAllocations is the number of successful allocations the pool has served since it was created
	TotalAllocations int
	// TotalBlocks is the number of blocks in the pool
	TotalBlocks int
	// FreeCount is the number of blocks that are not currently allocated
	FreeCount int
}

// memoryPool is a single region sliced into blocks of one size. Its bounds never change after Init,
// so they can be read without holding the mutex.
//
// When tracker is set, a block is added to or removed from it while the pool mutex is held, so the
// tracker and the free list never disagree while every pool mutex is held.
type memoryPool struct {
	id      int
	logger  *slog.Logger
	mutex   utils.OptionalMutex
	tracker *allocationTracker

	source region.Source
	region []byte
	start  uintptr
	end    uintptr

	metadata *metadata.FreeListBlockMetadata
}

func (p *memoryPool) Init(
	logger *slog.Logger,
	useMutex bool,
	id int,
	source region.Source,
	blockSize int,
	blockCount int,
) error {
	if p.region != nil {
		panic("attempting to initialize a memory pool that is already in use")
	}

	data, err := source.Allocate(blockSize * blockCount)
	if err != nil {
		return errors.Wrapf(err, "failed to allocate the region for pool %d (%d blocks of %d bytes)", id, blockCount, blockSize)
	}

	md := metadata.NewFreeListBlockMetadata(blockSize)
	if len(data) < blockSize*blockCount {
		err = errors.Newf("the region source returned %d bytes, but %d were requested", len(data), blockSize*blockCount)
	} else {
		err = md.Init(data)
	}
	if err != nil {
		releaseErr := source.Release(data)
		return errors.CombineErrors(err, releaseErr)
	}

	p.id = id
	p.logger = logger
	p.mutex.UseMutex = useMutex
	p.source = source
	p.region = data
	p.metadata = md
	p.start = uintptr(unsafe.Pointer(unsafe.SliceData(data)))
	p.end = p.start + uintptr(md.Size())

	return nil
}

func (p *memoryPool) BlockSize() int {
	return p.metadata.BlockSize()
}

// Contains reports whether addr falls anywhere in the pool's region
func (p *memoryPool) Contains(addr uintptr) bool {
	return addr >= p.start && addr < p.end
}

// Alloc pops a block for a request of size bytes
func (p *memoryPool) Alloc(size int) ([]byte, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	handle, ok := p.metadata.Alloc()
	if !ok {
		return nil, errors.Wrapf(ErrPoolExhausted, "all %d blocks of %d bytes in pool %d are allocated", p.metadata.BlockCount(), p.metadata.BlockSize(), p.id)
	}

	block, err := p.metadata.Block(handle)
	if err != nil {
		panic(errors.Wrapf(err, "free list of pool %d returned an invalid block", p.id))
	}

	if p.tracker != nil {
		p.tracker.Track(uintptr(unsafe.Pointer(unsafe.SliceData(block))), trackedAllocation{
			poolId:    p.id,
			blockSize: len(block),
			size:      size,
		})
	}

	return block, nil
}

// HandleForAddress maps an address within the pool to its block. The address must be the start of a block.
func (p *memoryPool) HandleForAddress(addr uintptr) (metadata.BlockAllocationHandle, error) {
	if !p.Contains(addr) {
		return metadata.NoAllocation, errors.Wrapf(ErrInvalidRelease, "address 0x%x is outside of pool %d", addr, p.id)
	}

	handle, err := p.metadata.HandleForOffset(int(addr - p.start))
	if err != nil {
		return metadata.NoAllocation, errors.Mark(errors.Wrapf(err, "address 0x%x in pool %d", addr, p.id), ErrInvalidRelease)
	}

	return handle, nil
}

// Aligned reports whether every block in the pool starts on a multiple of align
func (p *memoryPool) Aligned(align uintptr) bool {
	return p.start%align == 0 && uintptr(p.metadata.BlockSize())%align == 0
}

// Free pushes the block at addr, which must already have been resolved to handle
func (p *memoryPool) Free(handle metadata.BlockAllocationHandle, addr uintptr) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.tracker != nil && !p.tracker.Untrack(addr) {
		return errors.Wrapf(ErrDoubleFree, "address %s in pool %d is not allocated", formatAddress(addr), p.id)
	}

	err := p.metadata.Free(handle)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "pool %d", p.id), ErrDoubleFree)
	}

	return nil
}

func (p *memoryPool) Statistics() PoolStatistics {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return PoolStatistics{
		BlockSize:        p.metadata.BlockSize(),
		TotalAllocations: p.metadata.TotalAllocations(),
		TotalBlocks:      p.metadata.BlockCount(),
		FreeCount:        p.metadata.FreeCount(),
	}
}

func (p *memoryPool) AddStatistics(stats *memutils.Statistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.metadata.AddStatistics(stats)
}

// validateLocked checks the free list and adds the pool's occupancy to stats. The caller must hold
// the pool mutex.
func (p *memoryPool) validateLocked(stats *memutils.Statistics) error {
	if p.region == nil {
		return errors.Newf("pool %d has no region", p.id)
	}

	p.metadata.AddStatistics(stats)
	err := p.metadata.Validate()
	if err != nil {
		return errors.Wrapf(err, "pool %d", p.id)
	}

	return nil
}

func (p *memoryPool) CheckCorruption() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	err := p.metadata.CheckCorruption()
	if err != nil {
		return errors.Wrapf(err, "pool %d", p.id)
	}

	return nil
}

// resetLocked returns every block to the free list. The caller must hold the pool mutex.
func (p *memoryPool) resetLocked() {
	p.metadata.Clear()
}

func (p *memoryPool) PrintDetailedMap(json jwriter.ObjectState, detailed bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	json.Name("Id").Int(p.id)
	p.metadata.BlockJsonData(json)
	if detailed {
		p.metadata.FreeListJsonData(json)
	}
}

func (p *memoryPool) Destroy() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.region == nil {
		panic("attempting to destroy a memory pool, but it did not have a backing region")
	}

	if !p.metadata.IsEmpty() {
		p.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] pool destroyed with outstanding blocks",
			slog.Int("pool", p.id),
			slog.Int("blockSize", p.metadata.BlockSize()),
			slog.Int("outstanding", p.metadata.AllocationCount()),
		)
	}

	err := p.source.Release(p.region)
	p.region = nil
	p.metadata = nil
	if err != nil {
		return errors.Wrapf(err, "failed to release the region for pool %d", p.id)
	}

	return nil
}
