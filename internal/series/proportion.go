package series

import (
	"github.com/samber/lo"

	"github.com/rewired-gh/attritioncast/internal/models"
)

// Proportions computes each label's share of the whole-history total:
//
//	share[c] = sum(count where label = c) / sum(count)
//
// The shares are static weights for top-down disaggregation, not a forecast
// input. A zero total returns models.ErrProportionUndefined; there is no
// equal-share fallback.
func Proportions(obs []models.Observation, label LabelFunc) (models.Proportions, error) {
	total := lo.SumBy(obs, func(o models.Observation) int { return o.Count })
	if total == 0 {
		return nil, models.ErrProportionUndefined
	}

	totals := make(map[string]int)
	for i := range obs {
		totals[label(&obs[i])] += obs[i].Count
	}

	props := make(models.Proportions, len(totals))
	for c, n := range totals {
		props[c] = float64(n) / float64(total)
	}
	return props, nil
}
