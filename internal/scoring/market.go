package scoring

import (
	"sort"
	"time"

	"github.com/sells-group/clinic-intel/internal/model"
)

// DemandIndex averages daily interest scores for one category over the
// trailing window. Signals outside the window are ignored.
func DemandIndex(signals []model.InterestSignal, calcDate time.Time, windowDays int) float64 {
	cutoff := calcDate.AddDate(0, 0, -windowDays)

	sum, n := 0.0, 0
	for _, sig := range signals {
		if sig.Day.Before(cutoff) || sig.Day.After(calcDate) {
			continue
		}
		sum += float64(sig.Score)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ClassifyTrend compares the mean interest of the most recent seven
// days against the seven days before them. Fewer than fourteen days of
// data, or a zero baseline, classify as stable.
func ClassifyTrend(signals []model.InterestSignal, upPct, downPct float64) model.TrendDirection {
	byDay := map[time.Time]struct {
		sum float64
		n   int
	}{}
	for _, sig := range signals {
		day := sig.Day.Truncate(24 * time.Hour)
		agg := byDay[day]
		agg.sum += float64(sig.Score)
		agg.n++
		byDay[day] = agg
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	if len(days) < 14 {
		return model.TrendStable
	}

	mean := func(ds []time.Time) float64 {
		total := 0.0
		for _, d := range ds {
			agg := byDay[d]
			total += agg.sum / float64(agg.n)
		}
		return total / float64(len(ds))
	}

	recent := mean(days[len(days)-7:])
	previous := mean(days[len(days)-14 : len(days)-7])
	if previous == 0 {
		return model.TrendStable
	}

	changePct := (recent - previous) / previous * 100
	switch {
	case changePct > upPct:
		return model.TrendIncreasing
	case changePct < downPct:
		return model.TrendDecreasing
	default:
		return model.TrendStable
	}
}

// Top3Share is the percentage of total review volume held by the three
// highest-volume clinics. Exact, not approximated: 0 when there are no
// reviews at all.
func Top3Share(reviewCounts []int) float64 {
	total := 0
	for _, c := range reviewCounts {
		total += c
	}
	if total == 0 {
		return 0
	}

	sorted := make([]int, len(reviewCounts))
	copy(sorted, reviewCounts)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	top := 0
	for i := 0; i < len(sorted) && i < 3; i++ {
		top += sorted[i]
	}
	return float64(top) / float64(total) * 100
}

// Opportunity scores a (region, category) as demand relative to
// competition: demand / (clinicCount + 1), scaled and clamped to
// [0,100]. Zero demand is zero opportunity no matter how empty the
// region is.
func Opportunity(demandIndex float64, clinicCount int, scale float64) float64 {
	if demandIndex == 0 {
		return 0
	}
	return clamp(demandIndex / float64(clinicCount+1) * scale)
}
