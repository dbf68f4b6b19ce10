package summary

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/attritioncast/internal/assemble"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func f(v float64) *float64 { return &v }

func histRow(id string, ts time.Time, y float64) assemble.Row {
	return assemble.Row{Date: ts, CategoryID: id, Actual: f(y), Type: assemble.TypeHistorical}
}

func fcRow(id string, ts time.Time, yhat float64) assemble.Row {
	return assemble.Row{Date: ts, CategoryID: id, Estimate: f(yhat), Lower: f(yhat - 1), Upper: f(yhat + 1), Type: assemble.TypeForecast}
}

func TestCompute(t *testing.T) {
	rows := []assemble.Row{
		histRow("Eng", month(2023, time.January), 6),
		histRow("Eng", month(2023, time.February), 4),
		fcRow("Eng", month(2023, time.March), 9),
		histRow("Ops", month(2023, time.January), 2),
		histRow("Ops", month(2023, time.February), 8),
		fcRow("Ops", month(2023, time.March), 3),
	}

	s := Compute(rows)

	assert.Equal(t, 20.0, s.HistoricalTotal)
	assert.Equal(t, 2, s.HistoricalMonths)
	assert.Equal(t, 10.0, s.HistoricalAverage)
	assert.Equal(t, 12.0, s.ForecastTotal)
	assert.Equal(t, 1, s.ForecastMonths)
	assert.Equal(t, 12.0, s.ForecastAverage)
	assert.True(t, s.HasTrend)
	assert.InDelta(t, 20.0, s.TrendPct, 1e-9)
	assert.Equal(t, month(2023, time.March), s.PeakMonth)
	assert.Equal(t, "Eng", s.PeakCategory)
	assert.Equal(t, 9.0, s.PeakValue)

	require.Len(t, s.Categories, 2)
	assert.Equal(t, "Eng", s.Categories[0].ID)
	assert.Equal(t, 5.0, s.Categories[0].HistoricalAverage)
	assert.InDelta(t, 80.0, s.Categories[0].ChangePct, 1e-9)
	assert.InDelta(t, -40.0, s.Categories[1].ChangePct, 1e-9)
}

func TestComputeZeroHistory(t *testing.T) {
	rows := []assemble.Row{
		histRow("Eng", month(2023, time.January), 0),
		fcRow("Eng", month(2023, time.February), 1.5),
	}

	s := Compute(rows)

	assert.False(t, s.HasTrend)
	assert.Equal(t, 0.0, s.TrendPct)
	require.Len(t, s.Categories, 1)
	assert.False(t, s.Categories[0].HasChange)
	assert.False(t, math.IsNaN(s.Categories[0].ChangePct))
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil)

	assert.Zero(t, s.HistoricalAverage)
	assert.Zero(t, s.ForecastAverage)
	assert.False(t, s.HasTrend)
	assert.True(t, s.PeakMonth.IsZero())
	assert.Empty(t, s.Categories)
}

func TestComputeNegativePeak(t *testing.T) {
	rows := []assemble.Row{
		histRow("Overall Attrition", month(2023, time.January), 1),
		fcRow("Overall Attrition", month(2023, time.February), -2),
		fcRow("Overall Attrition", month(2023, time.March), -1),
	}

	s := Compute(rows)
	assert.Equal(t, -1.0, s.PeakValue)
	assert.Equal(t, month(2023, time.March), s.PeakMonth)
}
