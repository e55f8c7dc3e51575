package scoring

import (
	"sort"

	"github.com/sells-group/clinic-intel/internal/model"
)

// AssignRanks fills LocalRank and GlobalRank on the snapshots in place.
// Ordering is total and reproducible: composite descending, then review
// volume descending, then clinic ID ascending. Local ranks are assigned
// within each region using the same order.
func AssignRanks(snaps []model.VisibilitySnapshot, regions map[int64]string, volumes map[int64]int) {
	order := make([]int, len(snaps))
	for i := range order {
		order[i] = i
	}

	sort.Slice(order, func(a, b int) bool {
		sa, sb := snaps[order[a]], snaps[order[b]]
		if sa.Composite != sb.Composite {
			return sa.Composite > sb.Composite
		}
		va, vb := volumes[sa.ClinicID], volumes[sb.ClinicID]
		if va != vb {
			return va > vb
		}
		return sa.ClinicID < sb.ClinicID
	})

	localNext := map[string]int{}
	for rank, idx := range order {
		snaps[idx].GlobalRank = rank + 1

		region := regions[snaps[idx].ClinicID]
		localNext[region]++
		snaps[idx].LocalRank = localNext[region]
	}
}
