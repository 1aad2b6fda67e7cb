//go:build !unix

package region

import (
	"github.com/cockroachdb/errors"
)

// Mmap is unavailable on this platform, Allocate always fails
type Mmap struct{}

var _ Source = Mmap{}

func NewMmap() Mmap {
	return Mmap{}
}

func (m Mmap) Allocate(size int) ([]byte, error) {
	return nil, errors.WithHint(
		errors.Newf("cannot map a region of %d bytes", size),
		"mmap regions are only supported on unix platforms, use the heap source instead",
	)
}

func (m Mmap) Release(region []byte) error {
	return nil
}
