package series

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rewired-gh/attritioncast/internal/calendar"
	"github.com/rewired-gh/attritioncast/internal/models"
)

// ShareFunc extracts an optional [0,1] share attribute from an observation.
type ShareFunc func(o *models.Observation) *float64

// FemaleShare reads pct_female.
func FemaleShare(o *models.Observation) *float64 { return o.PctFemale }

// MarriedShare reads pct_married.
func MarriedShare(o *models.Observation) *float64 { return o.PctMarried }

// RoundingPolicy controls how split counts are turned into integers.
type RoundingPolicy string

const (
	// RoundIndependent rounds each branch half up on its own. The branches
	// may then differ from the monthly total by at most 1.
	RoundIndependent RoundingPolicy = "independent"
	// RoundLargestRemainder floors each branch and hands the leftover units
	// to the largest fractional parts, so branches always sum to the total.
	RoundLargestRemainder RoundingPolicy = "largest_remainder"
)

// ParseRoundingPolicy converts a config value to a RoundingPolicy.
func ParseRoundingPolicy(s string) (RoundingPolicy, error) {
	switch RoundingPolicy(s) {
	case RoundIndependent, RoundLargestRemainder:
		return RoundingPolicy(s), nil
	case "":
		return RoundIndependent, nil
	default:
		return "", fmt.Errorf("unknown rounding policy %q (want independent or largest_remainder)", s)
	}
}

// SplitOptions configures the proportional splitter.
type SplitOptions struct {
	Edge     EdgePolicy
	Rounding RoundingPolicy
}

// ProportionSeries pairs each grid month's aggregate count with its share.
type ProportionSeries struct {
	Months []time.Time
	Totals []int
	Shares []float64
}

// MonthlyShares builds the aggregate totals and the per-month share for the
// grid. A month's share is the mean over the observations in that month that
// carry the attribute; months without one are interpolated.
func MonthlyShares(obs []models.Observation, grid calendar.Grid, share ShareFunc, edge EdgePolicy) ProportionSeries {
	agg := Aggregate(obs, grid, models.OverallID)

	sum := make([]float64, grid.Len())
	n := make([]int, grid.Len())
	for i := range obs {
		v := share(&obs[i])
		if v == nil || math.IsNaN(*v) {
			continue
		}
		if idx := grid.Index(obs[i].Date); idx >= 0 {
			sum[idx] += *v
			n[idx]++
		}
	}

	means := make([]float64, grid.Len())
	present := make([]bool, grid.Len())
	for i := range means {
		if n[i] > 0 {
			means[i] = sum[i] / float64(n[i])
			present[i] = true
		}
	}

	return ProportionSeries{
		Months: agg.Months,
		Totals: agg.Counts,
		Shares: Interpolate(means, present, edge),
	}
}

// Split reconstructs two complementary series from the aggregate counts and
// the interpolated share: labels[0] receives share*total and labels[1]
// receives (1-share)*total.
func Split(obs []models.Observation, grid calendar.Grid, share ShareFunc, labels [2]string, opts SplitOptions) []models.Series {
	ps := MonthlyShares(obs, grid, share, opts.Edge)

	first := make([]int, len(ps.Totals))
	second := make([]int, len(ps.Totals))
	for i, total := range ps.Totals {
		parts := []float64{ps.Shares[i] * float64(total), (1 - ps.Shares[i]) * float64(total)}
		var rounded []int
		if opts.Rounding == RoundLargestRemainder {
			rounded = largestRemainder(parts, total)
		} else {
			rounded = []int{RoundHalfUp(parts[0]), RoundHalfUp(parts[1])}
		}
		first[i], second[i] = rounded[0], rounded[1]
	}

	return []models.Series{
		{ID: labels[0], Months: grid.Months(), Counts: first},
		{ID: labels[1], Months: grid.Months(), Counts: second},
	}
}

// largestRemainder apportions total across parts so the result sums to total
// exactly. Ties on the fractional part go to the earlier index.
func largestRemainder(parts []float64, total int) []int {
	out := make([]int, len(parts))
	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, len(parts))
	assigned := 0
	for i, p := range parts {
		floor := math.Floor(p + roundingSlack)
		out[i] = int(floor)
		assigned += out[i]
		rems[i] = rem{idx: i, frac: p - floor}
	}

	sort.SliceStable(rems, func(a, b int) bool {
		return rems[a].frac > rems[b].frac
	})
	for k := 0; assigned < total && k < len(rems); k++ {
		out[rems[k].idx]++
		assigned++
	}
	return out
}
