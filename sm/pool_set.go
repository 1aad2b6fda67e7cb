package sm

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/smalloc/sm/internal/utils"
	"github.com/vkngwrapper/smalloc/sm/region"
	"golang.org/x/exp/slog"
)

// poolSet holds every pool in ascending order of block size. The slice is fixed once Init returns.
type poolSet struct {
	pools []*memoryPool
}

func (s *poolSet) Init(logger *slog.Logger, useMutex bool, source region.Source, blocksPerPool int, sortedSizes []int) error {
	s.pools = make([]*memoryPool, 0, len(sortedSizes))

	for id, blockSize := range sortedSizes {
		pool := &memoryPool{}
		err := pool.Init(logger, useMutex, id, source, blockSize, blocksPerPool)
		if err != nil {
			// Return the regions we already hold before failing
			destroyErr := s.Destroy()
			return errors.Mark(errors.CombineErrors(err, destroyErr), ErrRegionAllocation)
		}

		s.pools = append(s.pools, pool)
	}

	return nil
}

func (s *poolSet) Count() int {
	return len(s.pools)
}

func (s *poolSet) Pool(index int) *memoryPool {
	return s.pools[index]
}

// SetTracker makes every pool record its blocks in tracker
func (s *poolSet) SetTracker(tracker *allocationTracker) {
	for _, pool := range s.pools {
		pool.tracker = tracker
	}
}

// Locks returns the mutex of every pool in ascending order of block size
func (s *poolSet) Locks() utils.LockSet {
	locks := make(utils.LockSet, 0, len(s.pools))
	for _, pool := range s.pools {
		locks = append(locks, &pool.mutex)
	}

	return locks
}

// Resolve finds the pool whose region contains addr. Pools are scanned in order and the first
// match wins.
func (s *poolSet) Resolve(addr uintptr) (*memoryPool, bool) {
	for _, pool := range s.pools {
		if pool.Contains(addr) {
			return pool, true
		}
	}

	return nil, false
}

// Destroy releases the region of every pool. Every pool is visited even if some fail.
func (s *poolSet) Destroy() error {
	var err error
	for _, pool := range s.pools {
		err = errors.CombineErrors(err, pool.Destroy())
	}
	s.pools = nil

	return err
}
