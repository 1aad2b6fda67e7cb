package utils

import (
	"sync"
)

// OptionalMutex guards a single pool. When the allocator is externally synchronized UseMutex is
// false and Lock and Unlock do nothing.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

// LockSet is a group of pool mutexes that must be held together, such as when every pool has to be
// observed at a single point in time. Members are locked in slice order and unlocked in reverse, so
// every holder of a LockSet built in the same order acquires its members in the same order.
type LockSet []*OptionalMutex

func (s LockSet) Lock() {
	for _, mutex := range s {
		mutex.Lock()
	}
}

func (s LockSet) Unlock() {
	for i := len(s) - 1; i >= 0; i-- {
		s[i].Unlock()
	}
}

// OptionalRWMutex guards state that is read far more often than it is written, like the table of
// tracked allocations
type OptionalRWMutex struct {
	Mutex    sync.RWMutex
	UseMutex bool
}

func (m *OptionalRWMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalRWMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

func (m *OptionalRWMutex) RLock() {
	if m.UseMutex {
		m.Mutex.RLock()
	}
}

func (m *OptionalRWMutex) RUnlock() {
	if m.UseMutex {
		m.Mutex.RUnlock()
	}
}
