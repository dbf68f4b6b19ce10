package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rewired-gh/attritioncast/internal/models"
)

// DefaultMinNonZero is the fewest non-zero months a series needs before a
// model is fitted.
const DefaultMinNonZero = 2

// Forecaster fits one model per category series and lays the output on the
// monthly calendar.
//
// Estimates are not clipped at zero. A declining series can produce negative
// attrition forecasts; callers that need non-negative values clip them.
type Forecaster struct {
	model      Model
	minNonZero int
}

// NewForecaster wraps model. minNonZero below 1 uses DefaultMinNonZero.
func NewForecaster(model Model, minNonZero int) *Forecaster {
	if minNonZero < 1 {
		minNonZero = DefaultMinNonZero
	}
	return &Forecaster{model: model, minNonZero: minNonZero}
}

// ModelName returns the wrapped model's name.
func (f *Forecaster) ModelName() string {
	return f.model.Name()
}

type fitOutcome struct {
	fitted Fitted
	err    error
}

// FitPredict fits the series and returns its in-sample estimates followed by
// horizon future months. A cancelled or expired ctx aborts the wait and is
// reported like any other fit failure.
func (f *Forecaster) FitPredict(ctx context.Context, s models.Series, horizon int) (*models.CategoryForecast, error) {
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", horizon)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid series: %w", err)
	}
	if nz := nonZero(s.Counts); nz < f.minNonZero {
		return nil, fmt.Errorf("%d non-zero months, need %d: %w", nz, f.minNonZero, models.ErrDegenerateSeries)
	}

	// The fit runs in its own goroutine so a deadline can be honoured; a
	// timed-out fit finishes in the background and its result is dropped.
	done := make(chan fitOutcome, 1)
	go func() {
		fitted, err := f.model.Fit(s.Values())
		done <- fitOutcome{fitted: fitted, err: err}
	}()

	var out fitOutcome
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s fit aborted: %w", f.model.Name(), ctx.Err())
	case out = <-done:
	}
	if out.err != nil {
		return nil, fmt.Errorf("%s fit failed: %w", f.model.Name(), out.err)
	}

	hist := out.fitted.InSample()
	future := out.fitted.Predict(horizon)
	if len(hist) != s.Len() || len(future) != horizon {
		return nil, fmt.Errorf("%s returned %d in-sample and %d future estimates, want %d and %d",
			f.model.Name(), len(hist), len(future), s.Len(), horizon)
	}

	result := &models.CategoryForecast{
		CategoryID: s.ID,
		Model:      f.model.Name(),
		Points:     make([]models.ForecastPoint, 0, len(hist)+len(future)),
	}
	for i, e := range hist {
		result.Points = append(result.Points, point(s.ID, s.Months[i], e, models.SegmentHistorical))
	}
	last := s.Months[len(s.Months)-1]
	for h, e := range future {
		result.Points = append(result.Points, point(s.ID, last.AddDate(0, h+1, 0), e, models.SegmentForecast))
	}

	for _, p := range result.Points {
		if !finite(p.Estimate) || !finite(p.Lower) || !finite(p.Upper) {
			return nil, fmt.Errorf("%s produced a non-finite estimate at %s", f.model.Name(), p.Timestamp.Format("2006-01"))
		}
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%s output invalid: %w", f.model.Name(), err)
	}
	return result, nil
}

func point(id string, ts time.Time, e Estimate, seg models.Segment) models.ForecastPoint {
	return models.ForecastPoint{
		Timestamp:  ts,
		CategoryID: id,
		Estimate:   e.Value,
		Lower:      e.Lower,
		Upper:      e.Upper,
		Segment:    seg,
	}
}

func nonZero(counts []int) int {
	n := 0
	for _, c := range counts {
		if c != 0 {
			n++
		}
	}
	return n
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
