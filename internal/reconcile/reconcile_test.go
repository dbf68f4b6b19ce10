package reconcile

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/attritioncast/internal/forecast"
	"github.com/rewired-gh/attritioncast/internal/metrics"
	"github.com/rewired-gh/attritioncast/internal/models"
	"github.com/rewired-gh/attritioncast/internal/series"
)

// flatModel forecasts a constant level with a fixed band.
type flatModel struct {
	level float64
	block time.Duration
}

func (m flatModel) Name() string { return "flat" }

func (m flatModel) Fit(y []float64) (forecast.Fitted, error) {
	if m.block > 0 {
		time.Sleep(m.block)
	}
	return flatFitted{n: len(y), level: m.level}, nil
}

type flatFitted struct {
	n     int
	level float64
}

func (f flatFitted) InSample() []forecast.Estimate { return f.estimates(f.n) }

func (f flatFitted) Predict(steps int) []forecast.Estimate { return f.estimates(steps) }

func (f flatFitted) estimates(n int) []forecast.Estimate {
	out := make([]forecast.Estimate, n)
	for i := range out {
		out[i] = forecast.Estimate{Value: f.level, Lower: f.level - 10, Upper: f.level + 10}
	}
	return out
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func deptObs() []models.Observation {
	return []models.Observation{
		{Date: month(2023, time.January), Count: 30, Department: "Eng"},
		{Date: month(2023, time.February), Count: 20, Department: "Ops"},
		{Date: month(2023, time.March), Count: 30, Department: "Eng"},
		{Date: month(2023, time.April), Count: 20, Department: "Ops"},
	}
}

func newTestEngine(model forecast.Model, opts Options) *Engine {
	return NewEngine(forecast.NewForecaster(model, 2), opts, nil)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"Overall", ModeOverall, false},
		{"by gender", ModeGender, false},
		{"marital", ModeMaritalStatus, false},
		{"By Department", ModeDepartment, false},
		{"By Department (Top-Down)", ModeDepartmentTopDown, false},
		{"department-topdown", ModeDepartmentTopDown, false},
		{"region", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{Mode: ModeOverall, Horizon: 6}, false},
		{"horizon 1", Request{Mode: ModeGender, Horizon: 1}, false},
		{"horizon 24", Request{Mode: ModeDepartment, Horizon: 24}, false},
		{"horizon 0", Request{Mode: ModeOverall, Horizon: 0}, true},
		{"horizon 25", Request{Mode: ModeOverall, Horizon: 25}, true},
		{"empty mode", Request{Horizon: 3}, true},
		{"unknown mode", Request{Mode: "By Region", Horizon: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunLabelsUnknownModeInvalid(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := NewEngine(forecast.NewForecaster(flatModel{level: 1}, 2), Options{}, m)

	for _, mode := range []Mode{"By Region", "By Team", ""} {
		_, err := e.Run(context.Background(), Request{Mode: mode, Horizon: 2}, deptObs())
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("invalid", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunsTotal))
}

func TestTopDownSplitsByShare(t *testing.T) {
	e := newTestEngine(flatModel{level: 100}, Options{})

	res, err := e.Run(context.Background(), Request{Mode: ModeDepartmentTopDown, Horizon: 1, Fitted: true}, deptObs())
	require.NoError(t, err)

	for _, f := range res.Forecasts {
		assert.Empty(t, f.Historical(), f.CategoryID)
		assert.Len(t, f.Points, 1, f.CategoryID)
	}

	assert.InDelta(t, 0.6, res.Proportions["Eng"], 1e-12)
	assert.InDelta(t, 0.4, res.Proportions["Ops"], 1e-12)
	require.Equal(t, []string{"Eng", "Ops"}, res.Categories())

	eng := res.Forecasts[0].Future()
	ops := res.Forecasts[1].Future()
	require.Len(t, eng, 1)
	require.Len(t, ops, 1)
	assert.InDelta(t, 60.0, eng[0].Estimate, 1e-9)
	assert.InDelta(t, 54.0, eng[0].Lower, 1e-9)
	assert.InDelta(t, 66.0, eng[0].Upper, 1e-9)
	assert.InDelta(t, 40.0, ops[0].Estimate, 1e-9)
	assert.Equal(t, month(2023, time.May), eng[0].Timestamp)

	// History carries department actuals, not the disaggregated aggregate.
	require.Len(t, res.History, 2)
	assert.Equal(t, "Eng", res.History[0].ID)
	assert.Equal(t, []int{30, 0, 30, 0}, res.History[0].Counts)
}

func TestTopDownCoherent(t *testing.T) {
	obs := deptObs()
	obs = append(obs,
		models.Observation{Date: month(2023, time.May), Count: 7, Department: "Sales"},
		models.Observation{Date: month(2023, time.June), Count: 13},
	)
	e := newTestEngine(&forecast.AdditiveModel{}, Options{})

	res, err := e.Run(context.Background(), Request{Mode: ModeDepartmentTopDown, Horizon: 6}, obs)
	require.NoError(t, err)

	overall := series.Aggregate(obs, res.Grid, models.OverallID)
	parent, err := forecast.NewForecaster(&forecast.AdditiveModel{}, 2).
		FitPredict(context.Background(), overall, 6)
	require.NoError(t, err)

	for i, want := range parent.Future() {
		var est, lo, hi float64
		for _, f := range res.Forecasts {
			p := f.Future()[i]
			est += p.Estimate
			lo += p.Lower
			hi += p.Upper
		}
		assert.InDelta(t, want.Estimate, est, 1e-6)
		assert.InDelta(t, want.Lower, lo, 1e-6)
		assert.InDelta(t, want.Upper, hi, 1e-6)
	}
	assert.Contains(t, res.Categories(), models.UnassignedID)
}

func TestTopDownZeroHistory(t *testing.T) {
	obs := []models.Observation{
		{Date: month(2023, time.January), Count: 0, Department: "Eng"},
		{Date: month(2023, time.February), Count: 0, Department: "Ops"},
	}
	e := newTestEngine(flatModel{level: 1}, Options{})

	_, err := e.Run(context.Background(), Request{Mode: ModeDepartmentTopDown, Horizon: 3}, obs)
	assert.ErrorIs(t, err, models.ErrProportionUndefined)
}

func TestTopDownDegenerateAggregate(t *testing.T) {
	obs := []models.Observation{
		{Date: month(2023, time.January), Count: 5, Department: "Eng"},
		{Date: month(2023, time.February), Count: 0, Department: "Ops"},
	}
	e := newTestEngine(flatModel{level: 1}, Options{})

	_, err := e.Run(context.Background(), Request{Mode: ModeDepartmentTopDown, Horizon: 3}, obs)
	assert.ErrorIs(t, err, models.ErrDegenerateSeries)
}

func TestBottomUpIsolatesFailures(t *testing.T) {
	obs := append(deptObs(),
		models.Observation{Date: month(2023, time.February), Count: 4, Department: "Sales"},
	)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := NewEngine(forecast.NewForecaster(flatModel{level: 10}, 2), Options{Workers: 2}, m)

	res, err := e.Run(context.Background(), Request{Mode: ModeDepartment, Horizon: 3}, obs)
	require.NoError(t, err)

	assert.Equal(t, []string{"Eng", "Ops"}, res.Categories())
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "Sales", res.Warnings[0].CategoryID)
	assert.ErrorIs(t, res.Warnings[0], models.ErrDegenerateSeries)
	assert.Len(t, res.History, 3)
	assert.Nil(t, res.Proportions)

	for _, f := range res.Forecasts {
		assert.Len(t, f.Future(), 3)
		assert.Len(t, f.Historical(), 4)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FitsTotal.WithLabelValues("flat", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FitsTotal.WithLabelValues("flat", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CategoriesSkipped.WithLabelValues(string(ModeDepartment))))
}

func TestBottomUpAllFail(t *testing.T) {
	obs := []models.Observation{
		{Date: month(2023, time.January), Count: 3, Department: "Eng"},
		{Date: month(2023, time.March), Count: 2, Department: "Ops"},
	}
	e := newTestEngine(flatModel{level: 1}, Options{})

	res, err := e.Run(context.Background(), Request{Mode: ModeDepartment, Horizon: 2}, obs)
	require.NoError(t, err)
	assert.Empty(t, res.Forecasts)
	assert.Len(t, res.Warnings, 2)
}

func TestGenderMode(t *testing.T) {
	obs := []models.Observation{
		{Date: month(2023, time.January), Count: 10, PctFemale: models.Share(0.4)},
		{Date: month(2023, time.March), Count: 20, PctFemale: models.Share(0.6)},
		{Date: month(2023, time.April), Count: 8, PctFemale: models.Share(0.5)},
	}
	e := newTestEngine(flatModel{level: 5}, Options{})

	res, err := e.Run(context.Background(), Request{Mode: ModeGender, Horizon: 1}, obs)
	require.NoError(t, err)
	assert.Equal(t, []string{models.FemaleID, models.MaleID}, res.Categories())
	assert.Equal(t, []int{4, 0, 12, 4}, res.History[0].Counts)
	assert.Equal(t, []int{6, 0, 8, 4}, res.History[1].Counts)
}

func TestGenderModeMissingAttribute(t *testing.T) {
	e := newTestEngine(flatModel{level: 5}, Options{})

	_, err := e.Run(context.Background(), Request{Mode: ModeGender, Horizon: 1}, deptObs())
	assert.ErrorIs(t, err, series.ErrMissingAttribute)
}

func TestOverallHorizonOne(t *testing.T) {
	e := newTestEngine(flatModel{level: 25}, Options{})

	res, err := e.Run(context.Background(), Request{Mode: ModeOverall, Horizon: 1}, deptObs())
	require.NoError(t, err)
	require.Len(t, res.Forecasts, 1)
	assert.Equal(t, models.OverallID, res.Forecasts[0].CategoryID)
	assert.Len(t, res.Forecasts[0].Future(), 1)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "flat", res.Model)
}

func TestRunRejectsBadInput(t *testing.T) {
	e := newTestEngine(flatModel{level: 1}, Options{MaxHorizon: 12})

	_, err := e.Run(context.Background(), Request{Mode: ModeOverall, Horizon: 3}, nil)
	assert.ErrorIs(t, err, models.ErrEmptyInput)

	_, err = e.Run(context.Background(), Request{Mode: ModeOverall, Horizon: 13}, deptObs())
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.Run(context.Background(), Request{Mode: "By Region", Horizon: 3}, deptObs())
	assert.ErrorIs(t, err, ErrInvalidRequest)

	bad := []models.Observation{{Date: month(2023, time.January), Count: -1}}
	_, err = e.Run(context.Background(), Request{Mode: ModeOverall, Horizon: 3}, bad)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestFitTimeout(t *testing.T) {
	e := newTestEngine(flatModel{level: 1, block: 200 * time.Millisecond}, Options{FitTimeout: 10 * time.Millisecond})

	res, err := e.Run(context.Background(), Request{Mode: ModeDepartment, Horizon: 2}, deptObs())
	require.NoError(t, err)
	assert.Empty(t, res.Forecasts)
	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.True(t, errors.Is(w, context.DeadlineExceeded))
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(flatModel{level: 1}, Options{})

	_, err := e.Run(ctx, Request{Mode: ModeDepartment, Horizon: 2}, deptObs())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisaggregate(t *testing.T) {
	parent := &models.CategoryForecast{
		CategoryID: models.OverallID,
		Model:      "flat",
		Points: []models.ForecastPoint{
			{Timestamp: month(2023, time.December), CategoryID: models.OverallID, Estimate: 48, Lower: 38, Upper: 58, Segment: models.SegmentHistorical},
			{Timestamp: month(2024, time.January), CategoryID: models.OverallID, Estimate: 50, Lower: 40, Upper: 60, Segment: models.SegmentForecast},
		},
	}
	child := Disaggregate(parent, "Eng", 0.25)

	require.Len(t, child.Points, 1)
	assert.Equal(t, models.SegmentForecast, child.Points[0].Segment)
	assert.Equal(t, month(2024, time.January), child.Points[0].Timestamp)

	assert.Equal(t, "Eng", child.CategoryID)
	assert.Equal(t, "Eng", child.Points[0].CategoryID)
	assert.Equal(t, 12.5, child.Points[0].Estimate)
	assert.Equal(t, 10.0, child.Points[0].Lower)
	assert.Equal(t, 15.0, child.Points[0].Upper)
	assert.False(t, math.IsNaN(child.Points[0].Estimate))
	assert.NoError(t, child.Validate())
}
