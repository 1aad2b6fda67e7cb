package memutils

import "github.com/pkg/errors"

// OutOfRangeError is the error returned from CheckRange if the number being tested falls outside the permitted range
var OutOfRangeError error = errors.New("number is out of range")
