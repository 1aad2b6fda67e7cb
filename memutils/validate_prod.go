//go:build !debug_mem_utils

package memutils

const (
	// FreeFillPattern is the byte written across the unused portion of a block when it is returned
	// to its free list
	FreeFillPattern byte = 0xDD
	// AllocFillPattern is the byte written across a block when it is handed out, so callers that read
	// before writing see an easy-to-identify value instead of stale data
	AllocFillPattern byte = 0xCD
	// DebugChecksEnabled is true when memutils is built with the debug_mem_utils build tag
	DebugChecksEnabled = false
)

// WriteFillPattern writes pattern across every byte of data.
// This method no-ops unless the debug_mem_utils build tag is present.
func WriteFillPattern(data []byte, pattern byte) {
}

// ValidateFillPattern verifies that every byte of data still holds pattern.
// It returns true if the value is still present and false otherwise.
// This method always returns true unless the debug_mem_utils build tag is present.
func ValidateFillPattern(data []byte, pattern byte) bool {
	return true
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
}
