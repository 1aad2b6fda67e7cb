package metadata

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/smalloc/memutils"
)

const (
	// linkSize is the number of bytes at the start of each free block used to hold the index of the
	// next free block
	linkSize = 4
	// endOfList is the link value stored in the last free block
	endOfList uint32 = math.MaxUint32

	// MinBlockSize is the smallest block that can hold a free list link. Every free block stores the
	// 4 byte index of the next free block in its first bytes, so blocks of 1 to 3 bytes are rejected.
	MinBlockSize = linkSize
	// MaxBlockCount is the largest number of blocks a single region can be sliced into
	MaxBlockCount = int(endOfList - 1)
)

// FreeListBlockMetadata slices a region into equal-size blocks and threads the free ones into a
// singly-linked list stored inside the free blocks themselves. Alloc pops the head of the list and
// Free pushes onto it, so both are O(1) and reuse is LIFO.
//
// Links are block indices rather than addresses, so a corrupted link is caught by bounds checks
// instead of wandering off into unrelated memory.
type FreeListBlockMetadata struct {
	BlockMetadataBase

	region     []byte
	blockCount int

	freeHead         BlockAllocationHandle
	freeCount        int
	totalAllocations int
}

var _ BlockMetadata = &FreeListBlockMetadata{}

func NewFreeListBlockMetadata(blockSize int) *FreeListBlockMetadata {
	return &FreeListBlockMetadata{
		BlockMetadataBase: NewBlockMetadata(blockSize),
		freeHead:          NoAllocation,
	}
}

// Init slices region into as many whole blocks as fit and threads all of them onto the free list.
// A block size below MinBlockSize is an error, because a free block of 1 to 3 bytes has no room for
// the 4 byte link to the next free block.
func (m *FreeListBlockMetadata) Init(region []byte) error {
	if m.blockSize < MinBlockSize {
		return errors.Errorf("block size %d is too small to hold a free list link, the minimum is %d", m.blockSize, MinBlockSize)
	}

	blockCount := len(region) / m.blockSize
	if blockCount < 1 {
		return errors.Errorf("a region of %d bytes cannot hold a single block of %d bytes", len(region), m.blockSize)
	}
	if blockCount > MaxBlockCount {
		return errors.Errorf("a region of %d blocks exceeds the maximum of %d blocks", blockCount, MaxBlockCount)
	}

	size := blockCount * m.blockSize
	m.BlockMetadataBase.Init(size)
	m.region = region[:size:size]
	m.blockCount = blockCount
	m.totalAllocations = 0
	m.Clear()

	return nil
}

func (m *FreeListBlockMetadata) BlockCount() int { return m.blockCount }

// nextFree and setNextFree are the only code that reinterprets block memory. The link is only
// meaningful while the block is free.
func (m *FreeListBlockMetadata) nextFree(handle BlockAllocationHandle) BlockAllocationHandle {
	offset := int(handle) * m.blockSize
	link := binary.LittleEndian.Uint32(m.region[offset : offset+linkSize])
	if link == endOfList {
		return NoAllocation
	}

	return BlockAllocationHandle(link)
}

func (m *FreeListBlockMetadata) setNextFree(handle BlockAllocationHandle, next BlockAllocationHandle) {
	link := endOfList
	if next != NoAllocation {
		link = uint32(next)
	}

	offset := int(handle) * m.blockSize
	binary.LittleEndian.PutUint32(m.region[offset:offset+linkSize], link)
}

func (m *FreeListBlockMetadata) block(handle BlockAllocationHandle) []byte {
	offset := int(handle) * m.blockSize
	return m.region[offset : offset+m.blockSize : offset+m.blockSize]
}

func (m *FreeListBlockMetadata) checkHandle(handle BlockAllocationHandle) error {
	if handle >= BlockAllocationHandle(m.blockCount) {
		return errors.Errorf("received block handle %d, but this metadata only has %d blocks", handle, m.blockCount)
	}

	return nil
}

func (m *FreeListBlockMetadata) Validate() error {
	if m.freeCount < 0 || m.freeCount > m.blockCount {
		return errors.Errorf("the free count of the metadata is %d, but it only has %d blocks", m.freeCount, m.blockCount)
	}

	visited := 0
	for handle := m.freeHead; handle != NoAllocation; handle = m.nextFree(handle) {
		if handle >= BlockAllocationHandle(m.blockCount) {
			return errors.Errorf("the free list links to block %d, but the region only holds %d blocks", handle, m.blockCount)
		}

		visited++
		if visited > m.freeCount {
			return errors.Errorf("the free list has more than the %d blocks listed as free, it may contain a cycle", m.freeCount)
		}
	}

	if visited != m.freeCount {
		return errors.Errorf("the free count of the metadata is %d, but the free list only holds %d blocks", m.freeCount, visited)
	}

	return nil
}

func (m *FreeListBlockMetadata) AllocationCount() int {
	return m.blockCount - m.freeCount
}

func (m *FreeListBlockMetadata) FreeCount() int {
	return m.freeCount
}

func (m *FreeListBlockMetadata) TotalAllocations() int {
	return m.totalAllocations
}

func (m *FreeListBlockMetadata) SumFreeSize() int {
	return m.freeCount * m.blockSize
}

func (m *FreeListBlockMetadata) IsEmpty() bool {
	return m.freeCount == m.blockCount
}

func (m *FreeListBlockMetadata) IsExhausted() bool {
	return m.freeHead == NoAllocation
}

func (m *FreeListBlockMetadata) VisitFreeBlocks(handleBlock func(handle BlockAllocationHandle, offset int) error) error {
	visited := 0
	for handle := m.freeHead; handle != NoAllocation; handle = m.nextFree(handle) {
		err := m.checkHandle(handle)
		if err != nil {
			return err
		}

		visited++
		if visited > m.blockCount {
			return errors.New("the free list contains a cycle")
		}

		err = handleBlock(handle, int(handle)*m.blockSize)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *FreeListBlockMetadata) BlockOffset(handle BlockAllocationHandle) (int, error) {
	err := m.checkHandle(handle)
	if err != nil {
		return 0, err
	}

	return int(handle) * m.blockSize, nil
}

func (m *FreeListBlockMetadata) HandleForOffset(offset int) (BlockAllocationHandle, error) {
	if offset < 0 || offset >= m.size {
		return NoAllocation, errors.Errorf("offset %d is outside of the %d-byte region", offset, m.size)
	}

	if !memutils.IsAligned(offset, m.blockSize) {
		return NoAllocation, errors.Errorf("offset %d does not fall on a %d-byte block boundary", offset, m.blockSize)
	}

	return BlockAllocationHandle(offset / m.blockSize), nil
}

func (m *FreeListBlockMetadata) Block(handle BlockAllocationHandle) ([]byte, error) {
	err := m.checkHandle(handle)
	if err != nil {
		return nil, err
	}

	return m.block(handle), nil
}

func (m *FreeListBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	allocationCount := m.AllocationCount()

	stats.PoolCount++
	stats.BlockCount += m.blockCount
	stats.FreeBlockCount += m.freeCount
	stats.AllocationCount += allocationCount
	stats.TotalAllocations += m.totalAllocations
	stats.RegionBytes += m.size
	stats.AllocatedBytes += allocationCount * m.blockSize
}

// Clear links every block into the free list in address order, so that the first Alloc after
// Clear returns block 0. TotalAllocations is left untouched.
func (m *FreeListBlockMetadata) Clear() {
	for i := 0; i < m.blockCount; i++ {
		handle := BlockAllocationHandle(i)
		memutils.WriteFillPattern(m.block(handle)[linkSize:], memutils.FreeFillPattern)

		next := BlockAllocationHandle(i + 1)
		if i == m.blockCount-1 {
			next = NoAllocation
		}
		m.setNextFree(handle, next)
	}

	m.freeHead = NoAllocation
	if m.blockCount > 0 {
		m.freeHead = 0
	}
	m.freeCount = m.blockCount
}

func (m *FreeListBlockMetadata) BlockJsonData(json jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.freeCount, m.AllocationCount(), m.totalAllocations)
}

// FreeListJsonData writes the offset of every free block, in free list order, into a json array
func (m *FreeListBlockMetadata) FreeListJsonData(json jwriter.ObjectState) {
	arrayState := json.Name("FreeList").Array()
	defer arrayState.End()

	_ = m.VisitFreeBlocks(func(handle BlockAllocationHandle, offset int) error {
		arrayState.Int(offset)
		return nil
	})
}

func (m *FreeListBlockMetadata) CheckCorruption() error {
	return m.VisitFreeBlocks(func(handle BlockAllocationHandle, offset int) error {
		if !memutils.ValidateFillPattern(m.block(handle)[linkSize:], memutils.FreeFillPattern) {
			return errors.Errorf("memory corruption detected in the free block at offset %d", offset)
		}

		return nil
	})
}

func (m *FreeListBlockMetadata) Alloc() (BlockAllocationHandle, bool) {
	memutils.DebugValidate(m)

	handle := m.freeHead
	if handle == NoAllocation {
		return NoAllocation, false
	}

	block := m.block(handle)
	if !memutils.ValidateFillPattern(block[linkSize:], memutils.FreeFillPattern) {
		panic(fmt.Sprintf("MEMORY CORRUPTION DETECTED IN FREE BLOCK AT OFFSET %d", int(handle)*m.blockSize))
	}

	m.freeHead = m.nextFree(handle)
	m.freeCount--
	m.totalAllocations++

	memutils.WriteFillPattern(block, memutils.AllocFillPattern)

	return handle, true
}

// Free pushes the block back onto the head of the free list. Releasing a block that is already
// free is not detected unless every block is already free, and corrupts the list otherwise.
func (m *FreeListBlockMetadata) Free(handle BlockAllocationHandle) error {
	err := m.checkHandle(handle)
	if err != nil {
		return err
	}

	if m.freeCount == m.blockCount {
		return errors.Errorf("block %d was released, but every block is already free", handle)
	}

	memutils.WriteFillPattern(m.block(handle)[linkSize:], memutils.FreeFillPattern)
	m.setNextFree(handle, m.freeHead)
	m.freeHead = handle
	m.freeCount++

	return nil
}
