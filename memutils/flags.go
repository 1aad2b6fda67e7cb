package memutils

import (
	"fmt"
	"math/bits"
	"strings"

	"golang.org/x/exp/constraints"
)

// FlagStringMapping turns bitflag values into readable strings. Each flag type keeps its own
// mapping, populated from an init function through Register.
type FlagStringMapping[T constraints.Integer] struct {
	names map[T]string
}

func NewFlagStringMapping[T constraints.Integer]() FlagStringMapping[T] {
	return FlagStringMapping[T]{names: make(map[T]string)}
}

func (m FlagStringMapping[T]) Register(flag T, name string) {
	m.names[flag] = name
}

// FlagsToString renders every set bit of value by its registered name, separated by '|'. Bits
// without a registered name are rendered in hex.
func (m FlagStringMapping[T]) FlagsToString(value T) string {
	if value == 0 {
		return "None"
	}

	var sb strings.Builder
	remaining := uint64(value)
	for remaining != 0 {
		bit := uint64(1) << bits.TrailingZeros64(remaining)
		remaining &^= bit

		if sb.Len() > 0 {
			sb.WriteByte('|')
		}

		name, ok := m.names[T(bit)]
		if !ok {
			name = fmt.Sprintf("0x%x", bit)
		}
		sb.WriteString(name)
	}

	return sb.String()
}
