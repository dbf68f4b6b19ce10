// Package summary computes headline numbers over assembled forecast rows.
package summary

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/rewired-gh/attritioncast/internal/assemble"
)

// Category is the per-category breakdown.
type Category struct {
	ID                string  `json:"unique_id"`
	HistoricalTotal   float64 `json:"historical_total"`
	HistoricalAverage float64 `json:"historical_monthly_avg"`
	ForecastTotal     float64 `json:"forecast_total"`
	ForecastAverage   float64 `json:"forecast_monthly_avg"`
	// ChangePct is zero and HasChange false when the historical average is zero.
	ChangePct float64 `json:"change_pct"`
	HasChange bool    `json:"has_change"`
}

// Summary holds run-level totals. Averages are per distinct month.
type Summary struct {
	HistoricalTotal   float64    `json:"historical_total"`
	HistoricalMonths  int        `json:"historical_months"`
	HistoricalAverage float64    `json:"historical_monthly_avg"`
	ForecastTotal     float64    `json:"forecast_total"`
	ForecastMonths    int        `json:"forecast_months"`
	ForecastAverage   float64    `json:"forecast_monthly_avg"`
	TrendPct          float64    `json:"trend_pct"`
	HasTrend          bool       `json:"has_trend"`
	PeakMonth         time.Time  `json:"peak_month,omitempty"`
	PeakCategory      string     `json:"peak_category,omitempty"`
	PeakValue         float64    `json:"peak_value"`
	Categories        []Category `json:"categories"`
}

// Compute derives the summary. Historical figures use actuals, forecast
// figures use point estimates. The peak is the single largest forecast row;
// ties go to the earliest row in assembled order.
func Compute(rows []assemble.Row) Summary {
	var s Summary

	hist := lo.Filter(rows, func(r assemble.Row, _ int) bool {
		return r.Type == assemble.TypeHistorical && r.Actual != nil
	})
	future := lo.Filter(rows, func(r assemble.Row, _ int) bool {
		return r.Type == assemble.TypeForecast && r.Estimate != nil
	})

	s.HistoricalTotal = lo.SumBy(hist, func(r assemble.Row) float64 { return *r.Actual })
	s.HistoricalMonths = distinctMonths(hist)
	s.HistoricalAverage = average(s.HistoricalTotal, s.HistoricalMonths)

	s.ForecastTotal = lo.SumBy(future, func(r assemble.Row) float64 { return *r.Estimate })
	s.ForecastMonths = distinctMonths(future)
	s.ForecastAverage = average(s.ForecastTotal, s.ForecastMonths)

	s.TrendPct, s.HasTrend = changePct(s.HistoricalAverage, s.ForecastAverage)

	for i, r := range future {
		if i == 0 || *r.Estimate > s.PeakValue {
			s.PeakValue = *r.Estimate
			s.PeakMonth = r.Date
			s.PeakCategory = r.CategoryID
		}
	}

	s.Categories = breakdown(rows)
	return s
}

func breakdown(rows []assemble.Row) []Category {
	byID := lo.GroupBy(rows, func(r assemble.Row) string { return r.CategoryID })
	ids := lo.Keys(byID)
	sort.Strings(ids)

	out := make([]Category, 0, len(ids))
	for _, id := range ids {
		var c Category
		c.ID = id
		var histMonths, futureMonths int
		for _, r := range byID[id] {
			switch {
			case r.Type == assemble.TypeHistorical && r.Actual != nil:
				c.HistoricalTotal += *r.Actual
				histMonths++
			case r.Type == assemble.TypeForecast && r.Estimate != nil:
				c.ForecastTotal += *r.Estimate
				futureMonths++
			}
		}
		c.HistoricalAverage = average(c.HistoricalTotal, histMonths)
		c.ForecastAverage = average(c.ForecastTotal, futureMonths)
		c.ChangePct, c.HasChange = changePct(c.HistoricalAverage, c.ForecastAverage)
		out = append(out, c)
	}
	return out
}

func distinctMonths(rows []assemble.Row) int {
	return len(lo.UniqBy(rows, func(r assemble.Row) int64 { return r.Date.Unix() }))
}

func average(total float64, months int) float64 {
	if months == 0 {
		return 0
	}
	return total / float64(months)
}

func changePct(base, next float64) (float64, bool) {
	if base == 0 {
		return 0, false
	}
	return (next/base - 1) * 100, true
}
