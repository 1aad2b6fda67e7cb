package memutils

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

// CheckRange returns OutOfRangeError if number is not within [min, max]
func CheckRange[T Number](number, min, max T, name string) error {
	if number < min || number > max {
		return errors.Wrapf(OutOfRangeError, "%s is %d, must be between %d and %d", name, number, min, max)
	}
	return nil
}

// IsAligned reports whether offset falls on a boundary of stride, which need not be a power of two
func IsAligned(offset, stride int) bool {
	return stride > 0 && offset%stride == 0
}
