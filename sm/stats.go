package sm

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/smalloc/memutils"
)

func printStatistics(json jwriter.ObjectState, stats *memutils.Statistics) {
	json.Name("PoolCount").Int(stats.PoolCount)
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("FreeBlockCount").Int(stats.FreeBlockCount)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("TotalAllocations").Int(stats.TotalAllocations)
	json.Name("RegionBytes").Int(stats.RegionBytes)
	json.Name("AllocatedBytes").Int(stats.AllocatedBytes)
	json.Name("Utilization").Float64(stats.Utilization())
}

// BuildStatsString returns a json document describing the occupancy of the allocator and each of
// its pools. When detailed is true, the offset of every free block is included as well.
func (a *Allocator) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()
	objState := writer.Object()
	a.WriteStatsJson(objState, detailed)
	objState.End()

	return string(writer.Bytes())
}

// WriteStatsJson writes the fields of BuildStatsString into an object that the caller owns
func (a *Allocator) WriteStatsJson(json jwriter.ObjectState, detailed bool) {
	var stats memutils.Statistics
	a.CalculateStatistics(&stats)

	totalObj := json.Name("Total").Object()
	printStatistics(totalObj, &stats)
	totalObj.End()

	json.Name("Flags").String(a.createFlags.String())
	json.Name("MaxBlockSize").Int(a.maxBlockSize)
	if a.tracker != nil {
		json.Name("TrackedAllocations").Int(a.tracker.Count())
	}

	poolsArray := json.Name("Pools").Array()
	for i := 0; i < a.pools.Count(); i++ {
		poolObj := poolsArray.Object()
		a.pools.Pool(i).PrintDetailedMap(poolObj, detailed)
		poolObj.End()
	}
	poolsArray.End()
}
