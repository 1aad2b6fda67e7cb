//go:build unix

package region

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Mmap is a Source that maps each region as private anonymous memory outside the Go heap.
// Regions are page-aligned and are returned to the OS by Release.
type Mmap struct{}

var _ Source = Mmap{}

func NewMmap() Mmap {
	return Mmap{}
}

func (m Mmap) Allocate(size int) ([]byte, error) {
	if size < 1 {
		return nil, errors.Newf("cannot map a region of %d bytes", size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map a region of %d bytes", size)
	}

	return data, nil
}

func (m Mmap) Release(region []byte) error {
	if len(region) == 0 {
		return nil
	}

	err := unix.Munmap(region[:cap(region)])
	if err != nil {
		return errors.Wrapf(err, "failed to unmap a region of %d bytes", cap(region))
	}

	return nil
}
