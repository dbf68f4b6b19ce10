// Package series turns raw observations into complete monthly count series.
//
// Three building blocks live here:
//
//	Aggregate / ByLabel  direct monthly sums, zero-filled on the calendar grid
//	Split                proportional split of the aggregate by a share attribute
//	Proportions          static whole-history share per discrete label
//
// Decomposer ties them together so callers pick a lens without branching on
// attribute names.
package series

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/rewired-gh/attritioncast/internal/calendar"
	"github.com/rewired-gh/attritioncast/internal/models"
)

// LabelFunc extracts a discrete category label from an observation.
type LabelFunc func(o *models.Observation) string

// DepartmentLabel returns the department, or models.UnassignedID when the
// row carries none.
func DepartmentLabel(o *models.Observation) string {
	if o.Department == "" {
		return models.UnassignedID
	}
	return o.Department
}

// Aggregate sums every observation into one series on the grid. Months with
// no observations get a count of 0.
func Aggregate(obs []models.Observation, grid calendar.Grid, id string) models.Series {
	sums := make([]float64, grid.Len())
	for i := range obs {
		if idx := grid.Index(obs[i].Date); idx >= 0 {
			sums[idx] += float64(obs[i].Count)
		}
	}
	return newSeries(id, grid, sums)
}

// ByLabel produces one zero-filled series per distinct label, sorted by ID.
// Every series spans the full grid, including labels that are only active in
// a few months.
func ByLabel(obs []models.Observation, grid calendar.Grid, label LabelFunc) []models.Series {
	groups := lo.GroupBy(obs, func(o models.Observation) string {
		return label(&o)
	})

	ids := lo.Keys(groups)
	sort.Strings(ids)

	out := make([]models.Series, 0, len(ids))
	for _, id := range ids {
		out = append(out, Aggregate(groups[id], grid, id))
	}
	return out
}

func newSeries(id string, grid calendar.Grid, values []float64) models.Series {
	counts := make([]int, len(values))
	for i, v := range values {
		counts[i] = RoundHalfUp(v)
	}
	return models.Series{
		ID:     id,
		Months: grid.Months(),
		Counts: counts,
	}
}

// roundingSlack absorbs representation error such as 0.29*50 = 14.499999999999998
// so that values meant to sit on .5 round up.
const roundingSlack = 1e-9

// RoundHalfUp rounds to the nearest integer with ties going up.
func RoundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5 + roundingSlack))
}
