package metadata

import (
	"math"

	"github.com/pkg/errors"
)

const (
	// NoSizeClass is the table entry for request sizes that no pool is large enough to serve
	NoSizeClass uint8 = math.MaxUint8
	// MaxSizeClasses is the largest number of pools a SizeClassTable can index
	MaxSizeClasses = int(NoSizeClass)
)

// SizeClassTable maps every request size from 0 to a fixed maximum onto the index of the
// smallest block size that can hold it. It is computed once and is immutable afterward.
type SizeClassTable struct {
	lookup []uint8
}

// NewSizeClassTable builds the table for blockSizes, which must be sorted ascending. Duplicate
// sizes are permitted, and requests are always routed to the first of them.
func NewSizeClassTable(blockSizes []int, maxRequestSize int) (*SizeClassTable, error) {
	if maxRequestSize < 0 {
		return nil, errors.Errorf("maximum request size %d cannot be negative", maxRequestSize)
	}
	if len(blockSizes) > MaxSizeClasses {
		return nil, errors.Errorf("%d block sizes were provided, but a size class table can only index %d", len(blockSizes), MaxSizeClasses)
	}
	for i := 1; i < len(blockSizes); i++ {
		if blockSizes[i] < blockSizes[i-1] {
			return nil, errors.Errorf("block sizes must be sorted ascending, but %d follows %d", blockSizes[i], blockSizes[i-1])
		}
	}

	table := &SizeClassTable{
		lookup: make([]uint8, maxRequestSize+1),
	}

	classIndex := 0
	for size := 0; size <= maxRequestSize; size++ {
		for classIndex < len(blockSizes) && blockSizes[classIndex] < size {
			classIndex++
		}

		if classIndex < len(blockSizes) {
			table.lookup[size] = uint8(classIndex)
		} else {
			table.lookup[size] = NoSizeClass
		}
	}

	return table, nil
}

// MaxRequestSize returns the largest request size the table has an entry for
func (t *SizeClassTable) MaxRequestSize() int {
	return len(t.lookup) - 1
}

// Lookup returns the index of the best-fit block size for a request of size bytes. It returns
// false if size is negative, larger than MaxRequestSize, or larger than every block size.
func (t *SizeClassTable) Lookup(size int) (int, bool) {
	if size < 0 || size >= len(t.lookup) {
		return 0, false
	}

	classIndex := t.lookup[size]
	if classIndex == NoSizeClass {
		return 0, false
	}

	return int(classIndex), true
}
