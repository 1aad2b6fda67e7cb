package metadata

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/smalloc/memutils"
)

// BlockAllocationHandle is a numeric handle used to identify individual blocks within the metadata
type BlockAllocationHandle uint64

const (
	NoAllocation BlockAllocationHandle = math.MaxUint64
)

// BlockMetadata represents a single region of memory sliced into equal-size blocks. It tracks which
// blocks are free, allowing blocks to be handed out and returned, as well as enumerated and queried.
type BlockMetadata interface {
	// Init must be called before the BlockMetadata is used. The region is the memory the metadata
	// manages: free blocks hold metadata links inside this memory, so the region must not be touched
	// by anyone else except through blocks handed out by Alloc. Trailing bytes that do not fill a
	// whole block are ignored.
	Init(region []byte) error
	// Size retrieves the number of bytes the metadata manages, always a multiple of BlockSize
	Size() int
	// BlockSize retrieves the size in bytes of each block
	BlockSize() int
	// BlockCount retrieves the total number of blocks in the region
	BlockCount() int

	// Validate performs internal consistency checks on the metadata. These checks walk every free
	// block and so are expensive. When the implementation is functioning correctly, it should not be
	// possible for this method to return an error, but a caller that released a block twice will
	// usually be caught here.
	Validate() error
	// AllocationCount returns the number of blocks currently handed out
	AllocationCount() int
	// FreeCount returns the number of blocks currently available
	FreeCount() int
	// TotalAllocations returns the number of successful calls to Alloc since Init. It is never
	// reset by Free or Clear.
	TotalAllocations() int
	// SumFreeSize returns the number of free bytes in the region
	SumFreeSize() int
	// IsEmpty will return true if no blocks are currently handed out
	IsEmpty() bool
	// IsExhausted will return true if every block is currently handed out
	IsExhausted() bool

	// VisitFreeBlocks calls the provided callback once for each free block, in free list order
	VisitFreeBlocks(handleBlock func(handle BlockAllocationHandle, offset int) error) error
	// BlockOffset returns the offset in bytes within the region of the provided block
	BlockOffset(handle BlockAllocationHandle) (int, error)
	// HandleForOffset returns the block that starts at the provided offset. It returns an error
	// if the offset is outside the region or does not fall on a block boundary.
	HandleForOffset(offset int) (BlockAllocationHandle, error)
	// Block returns the memory of the provided block, with both length and capacity equal to BlockSize
	Block(handle BlockAllocationHandle) ([]byte, error)

	// AddStatistics sums this region's occupancy into the provided memutils.Statistics object
	AddStatistics(stats *memutils.Statistics)
	// Clear instantly returns every block to the free list
	Clear()
	// BlockJsonData populates a json object with information about this region
	BlockJsonData(json jwriter.ObjectState)
	// CheckCorruption verifies that free blocks have not been written to since they were freed.
	//
	// Bear in mind that fill patterns are only written when memutils is built with the build flag
	// `debug_mem_utils`. This method will not return an error when that flag is not present.
	CheckCorruption() error

	// Alloc removes a block from the free list and returns its handle. It returns false if no blocks
	// are free. The contents of the block are not zeroed.
	Alloc() (BlockAllocationHandle, bool)
	// Free returns a block to the free list. The implementation must return an error if the handle
	// does not map to a block within this region.
	Free(handle BlockAllocationHandle) error
}

// BlockMetadataBase is a simple struct that provides a few shared utilities for BlockMetadata
// implementations in the memutils module.
type BlockMetadataBase struct {
	size      int
	blockSize int
}

// NewBlockMetadata creates a new BlockMetadataBase for blocks of the provided size in bytes
func NewBlockMetadata(blockSize int) BlockMetadataBase {
	return BlockMetadataBase{
		size:      0,
		blockSize: blockSize,
	}
}

// Init sizes the region in bytes based on the parameter size.
func (m *BlockMetadataBase) Init(size int) {
	m.size = size
}

// Size returns the size of the region in bytes
func (m *BlockMetadataBase) Size() int { return m.size }

// BlockSize returns the size of each block in bytes
func (m *BlockMetadataBase) BlockSize() int { return m.blockSize }

// BlockJsonData populates a json object with information about this region
func (m *BlockMetadataBase) BlockJsonData(json jwriter.ObjectState, freeCount, allocationCount, totalAllocations int) {
	json.Name("TotalBytes").Int(m.Size())
	json.Name("BlockSize").Int(m.blockSize)
	json.Name("TotalBlocks").Int(m.Size() / m.blockSize)
	json.Name("FreeBlocks").Int(freeCount)
	json.Name("UnusedBytes").Int(freeCount * m.blockSize)
	json.Name("Allocations").Int(allocationCount)
	json.Name("TotalAllocations").Int(totalAllocations)
}
