package sm

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// elementSize returns the size of T after checking that n elements of it can be served by a single
// block of this allocator
func elementSize[T any](a *Allocator, n int) (int, uintptr, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	align := unsafe.Alignof(zero)

	if size == 0 {
		return 0, 0, errors.Wrapf(ErrUnserviceable, "%T has no size and cannot be placed in a block", zero)
	}

	// Dividing first keeps n*size from overflowing
	if n < 0 || n > a.maxBlockSize/size {
		return 0, 0, errors.Wrapf(ErrUnserviceable, "%d elements of %d bytes were requested, but the maximum block size is %d", n, size, a.maxBlockSize)
	}

	return size, align, nil
}

// AllocType returns a block holding a single T. The contents are not zeroed.
//
// T must not contain Go pointers, including strings, slices, maps, channels, interfaces and
// functions. Blocks are not scanned by the garbage collector, so anything such a pointer refers to
// may be collected while the block still holds it.
//
// The block is chosen exactly as Alloc(unsafe.Sizeof(T)) would choose it. If that pool's blocks are
// not aligned for T, or T has no size, the returned error will match ErrUnserviceable.
func AllocType[T any](a *Allocator) (*T, error) {
	size, align, err := elementSize[T](a, 1)
	if err != nil {
		return nil, err
	}

	block, err := a.allocBlock(size, align)
	if err != nil {
		return nil, err
	}

	return (*T)(unsafe.Pointer(unsafe.SliceData(block))), nil
}

// AllocSlice returns a block holding n elements of T, as a slice of length n whose capacity covers
// the whole block. The contents are not zeroed and T is restricted in the same way as for AllocType.
//
// When n is zero the block is sized for one element.
// If n is negative or n elements of T do not fit in the largest block, the returned error will match
// ErrUnserviceable.
func AllocSlice[T any](a *Allocator, n int) ([]T, error) {
	size, align, err := elementSize[T](a, n)
	if err != nil {
		return nil, err
	}

	// An empty slice still holds a block, and it must have room for one element so FreeSlice can find it
	block, err := a.allocBlock(max(n, 1)*size, align)
	if err != nil {
		return nil, err
	}

	elements := unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(block))), len(block)/size)
	return elements[:n], nil
}

// FreeType returns a block received from AllocType to its pool. Passing nil does nothing.
func FreeType[T any](a *Allocator, ptr *T) error {
	if ptr == nil {
		return nil
	}

	return a.free(uintptr(unsafe.Pointer(ptr)))
}

// FreeSlice returns a block received from AllocSlice to its pool. Any reslice that keeps the first
// element may be passed. Passing a slice with no capacity does nothing.
func FreeSlice[T any](a *Allocator, elements []T) error {
	if cap(elements) == 0 {
		return nil
	}

	return a.free(uintptr(unsafe.Pointer(unsafe.SliceData(elements))))
}
