package utils_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/smalloc/sm/internal/utils"
	"golang.org/x/sync/errgroup"
)

func TestOptionalMutexDisabled(t *testing.T) {
	var mutex utils.OptionalMutex

	// Without UseMutex, a second Lock must not block
	mutex.Lock()
	mutex.Lock()
	mutex.Unlock()
	mutex.Unlock()

	require.True(t, mutex.Mutex.TryLock())
	mutex.Mutex.Unlock()
}

func TestOptionalMutexEnabled(t *testing.T) {
	mutex := utils.OptionalMutex{UseMutex: true}

	mutex.Lock()
	require.False(t, mutex.Mutex.TryLock())
	mutex.Unlock()
	require.True(t, mutex.Mutex.TryLock())
	mutex.Mutex.Unlock()
}

func TestOptionalRWMutexCounter(t *testing.T) {
	mutex := utils.OptionalRWMutex{UseMutex: true}
	counter := 0

	var group errgroup.Group
	for i := 0; i < 8; i++ {
		group.Go(func() error {
			for j := 0; j < 1000; j++ {
				mutex.Lock()
				counter++
				mutex.Unlock()

				mutex.RLock()
				_ = counter
				mutex.RUnlock()
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
	require.Equal(t, 8000, counter)
}

func TestLockSetHoldsEveryMember(t *testing.T) {
	set := utils.LockSet{
		{UseMutex: true},
		{UseMutex: false},
		{UseMutex: true},
	}

	set.Lock()
	require.False(t, set[0].Mutex.TryLock())
	require.True(t, set[1].Mutex.TryLock())
	set[1].Mutex.Unlock()
	require.False(t, set[2].Mutex.TryLock())

	set.Unlock()
	for _, mutex := range set {
		require.True(t, mutex.Mutex.TryLock())
		mutex.Mutex.Unlock()
	}
}

func TestLockSetExcludesMemberHolders(t *testing.T) {
	set := utils.LockSet{{UseMutex: true}, {UseMutex: true}}
	counters := []int{0, 0}

	var group errgroup.Group
	for i := 0; i < 8; i++ {
		member := i % 2
		group.Go(func() error {
			for j := 0; j < 1000; j++ {
				set[member].Lock()
				counters[member]++
				set[member].Unlock()
			}
			return nil
		})
	}
	group.Go(func() error {
		for j := 0; j < 1000; j++ {
			set.Lock()
			// Both members are held, so neither counter can move while they are read
			first, second := counters[0], counters[1]
			if first != counters[0] || second != counters[1] {
				set.Unlock()
				return errors.New("counter changed while the set was held")
			}
			set.Unlock()
		}
		return nil
	})

	require.NoError(t, group.Wait())
	require.Equal(t, []int{4000, 4000}, counters)
}
