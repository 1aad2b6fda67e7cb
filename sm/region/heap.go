package region

import (
	"github.com/cockroachdb/errors"
)

// Heap is a Source that draws regions from the Go heap. The Go collector does not move heap
// objects, so block addresses stay valid while the allocator holds the region.
type Heap struct{}

var _ Source = Heap{}

func NewHeap() Heap {
	return Heap{}
}

func (h Heap) Allocate(size int) ([]byte, error) {
	if size < 1 {
		return nil, errors.Newf("cannot allocate a heap region of %d bytes", size)
	}

	return make([]byte, size), nil
}

// Release does nothing, the collector will reclaim the region once the allocator drops it
func (h Heap) Release(region []byte) error {
	return nil
}
