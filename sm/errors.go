package sm

import (
	"github.com/cockroachdb/errors"
)

// Every error returned from this package matches exactly one of these sentinels. Some of them are
// attached with errors.Mark, so they must be checked with errors.Is from github.com/cockroachdb/errors.
var (
	// ErrInvalidConfiguration is returned from New when the requested pools cannot be built with
	// the provided options
	ErrInvalidConfiguration = errors.New("invalid allocator configuration")
	// ErrRegionAllocation is returned from New when a region.Source could not supply a pool's memory
	ErrRegionAllocation = errors.New("failed to allocate a pool region")
	// ErrUnserviceable is returned from Alloc when no pool has blocks large enough for the request.
	// It is the only error this package returns that a caller can reasonably recover from, usually
	// by falling back to some other allocator.
	ErrUnserviceable = errors.New("no pool can service the requested size")
	// ErrPoolExhausted is returned from Alloc when the pool chosen for a request has no free blocks
	ErrPoolExhausted = errors.New("pool exhausted")
	// ErrInvalidRelease is returned from Free when the pointer does not point to the start of a
	// block in any pool
	ErrInvalidRelease = errors.New("released pointer does not belong to any pool")
	// ErrDoubleFree is returned from Free when a block is released while it is already free. Most
	// double frees are only detected when the allocator was created with AllocatorCreateTrackAllocations.
	ErrDoubleFree = errors.New("block released twice")
)

// IsFatal reports whether err indicates a configuration, capacity, or usage bug that the caller
// should not attempt to recover from. Every error returned by this package is fatal except
// ErrUnserviceable.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, ErrUnserviceable)
}
