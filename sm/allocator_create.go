package sm

import (
	"io"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/smalloc/memutils"
	"github.com/vkngwrapper/smalloc/memutils/metadata"
	"github.com/vkngwrapper/smalloc/sm/region"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

var allocatorCreateFlagsMapping = memutils.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	allocatorCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return allocatorCreateFlagsMapping.FlagsToString(f)
}

const (
	// AllocatorCreateExternallySynchronized ensures that this allocator and all pools created from it
	// will not be synchronized internally. The consumer must guarantee they are used from only one
	// goroutine at a time or are synchronized by some other mechanism, but performance may improve because
	// internal mutexes are not used.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
	// AllocatorCreateTrackAllocations records every outstanding block. Releasing a block that is already
	// free will return ErrDoubleFree instead of corrupting the pool, and Destroy will log every
	// unreleased block individually. Tracking costs a map insert and delete per allocation.
	AllocatorCreateTrackAllocations
	// AllocatorCreatePanicOnFatalError causes Alloc and Free to panic instead of returning when they
	// encounter an error for which IsFatal is true.
	AllocatorCreatePanicOnFatalError
)

func init() {
	AllocatorCreateExternallySynchronized.Register("AllocatorCreateExternallySynchronized")
	AllocatorCreateTrackAllocations.Register("AllocatorCreateTrackAllocations")
	AllocatorCreatePanicOnFatalError.Register("AllocatorCreatePanicOnFatalError")
}

const (
	// DefaultMaxPoolCount is the value that is used as the MaxPoolCount when none is provided
	// via CreateOptions
	DefaultMaxPoolCount int = 32
	// DefaultMaxBlockSize is the value that is used as the MaxBlockSize when none is provided
	// via CreateOptions
	DefaultMaxBlockSize int = 256
	// MaxBlockSizeLimit is the largest permitted MaxBlockSize. The size class table holds one
	// entry for every request size up to MaxBlockSize.
	MaxBlockSizeLimit int = 1 << 20
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// MaxPoolCount is the largest number of block sizes New will accept. It may not exceed
	// metadata.MaxSizeClasses. DefaultMaxPoolCount is used when it is left at 0.
	MaxPoolCount int
	// MaxBlockSize is both the largest block size New will accept and the largest request Alloc
	// will service. DefaultMaxBlockSize is used when it is left at 0.
	MaxBlockSize int

	// RegionSource supplies the memory for each pool. Regions are drawn from the Go heap when it
	// is left nil.
	RegionSource region.Source
}

// New creates a new Allocator with one pool per entry in blockSizes
//
// logger - Receives allocator diagnostics. It is valid to pass nil, in which case nothing is logged
//
// blocksPerPool - The number of blocks in every pool. Pools never grow, so this is the number of
// simultaneous allocations each pool can hold
//
// blockSizes - The block size of each pool, in any order. Duplicate sizes produce independent pools,
// but requests will only ever be served from the first of them. Each size must be at least
// metadata.MinBlockSize, because a free block holds the 4 byte index of the next free block, so
// sizes of 1 to 3 bytes are rejected. A request for fewer bytes is still served from a larger block.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, blocksPerPool int, blockSizes []int, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard))
	}

	maxPoolCount := options.MaxPoolCount
	if maxPoolCount == 0 {
		maxPoolCount = DefaultMaxPoolCount
	}
	maxBlockSize := options.MaxBlockSize
	if maxBlockSize == 0 {
		maxBlockSize = DefaultMaxBlockSize
	}

	err := validateConfiguration(blocksPerPool, blockSizes, maxPoolCount, maxBlockSize)
	if err != nil {
		return nil, errors.Mark(err, ErrInvalidConfiguration)
	}

	sortedSizes := slices.Clone(blockSizes)
	slices.Sort(sortedSizes)

	source := options.RegionSource
	if source == nil {
		source = region.NewHeap()
	}

	useMutex := options.Flags&AllocatorCreateExternallySynchronized == 0

	allocator := &Allocator{
		logger:       logger,
		createFlags:  options.Flags,
		maxBlockSize: maxBlockSize,
	}

	allocator.sizeClasses, err = metadata.NewSizeClassTable(sortedSizes, maxBlockSize)
	if err != nil {
		return nil, errors.Mark(err, ErrInvalidConfiguration)
	}

	err = allocator.pools.Init(logger, useMutex, source, blocksPerPool, sortedSizes)
	if err != nil {
		return nil, err
	}

	if options.Flags&AllocatorCreateTrackAllocations != 0 {
		allocator.tracker = newAllocationTracker(useMutex)
		allocator.pools.SetTracker(allocator.tracker)
	}

	logger.Info("Allocator::New",
		slog.Int("pools", len(sortedSizes)),
		slog.Any("blockSizes", sortedSizes),
		slog.Int("blocksPerPool", blocksPerPool),
		slog.Int("maxBlockSize", maxBlockSize),
		slog.String("flags", options.Flags.String()),
	)

	return allocator, nil
}

func validateConfiguration(blocksPerPool int, blockSizes []int, maxPoolCount, maxBlockSize int) error {
	err := memutils.CheckRange(maxPoolCount, 1, metadata.MaxSizeClasses, "MaxPoolCount")
	if err != nil {
		return err
	}

	err = memutils.CheckRange(maxBlockSize, metadata.MinBlockSize, MaxBlockSizeLimit, "MaxBlockSize")
	if err != nil {
		return err
	}

	if len(blockSizes) > maxPoolCount {
		return errors.Newf("%d block sizes were requested, but the allocator is limited to %d pools", len(blockSizes), maxPoolCount)
	}

	if blocksPerPool < 1 {
		return errors.WithHint(
			errors.Newf("pools must hold at least one block, but %d blocks per pool were requested", blocksPerPool),
			"a pool with no blocks would reserve a zero-byte region",
		)
	}

	if blocksPerPool > metadata.MaxBlockCount {
		return errors.Newf("%d blocks per pool were requested, but a pool can hold at most %d blocks", blocksPerPool, metadata.MaxBlockCount)
	}

	for _, blockSize := range blockSizes {
		err = memutils.CheckRange(blockSize, metadata.MinBlockSize, maxBlockSize, "block size")
		if err != nil {
			return err
		}

		if blocksPerPool > math.MaxInt/blockSize {
			return errors.Newf("a pool of %d blocks of %d bytes is too large to address", blocksPerPool, blockSize)
		}
	}

	return nil
}
