package memutils

// Statistics sums the occupancy of one or more pools
type Statistics struct {
	PoolCount        int
	BlockCount       int
	FreeBlockCount   int
	AllocationCount  int
	TotalAllocations int
	RegionBytes      int
	AllocatedBytes   int
}

func (s *Statistics) Clear() {
	s.PoolCount = 0
	s.BlockCount = 0
	s.FreeBlockCount = 0
	s.AllocationCount = 0
	s.TotalAllocations = 0
	s.RegionBytes = 0
	s.AllocatedBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.PoolCount += other.PoolCount
	s.BlockCount += other.BlockCount
	s.FreeBlockCount += other.FreeBlockCount
	s.AllocationCount += other.AllocationCount
	s.TotalAllocations += other.TotalAllocations
	s.RegionBytes += other.RegionBytes
	s.AllocatedBytes += other.AllocatedBytes
}

// Utilization returns the fraction of region bytes currently handed out, or 0 for an empty set
func (s *Statistics) Utilization() float64 {
	if s.RegionBytes == 0 {
		return 0
	}
	return float64(s.AllocatedBytes) / float64(s.RegionBytes)
}
