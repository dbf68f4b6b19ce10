package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Segment tags a point as an observed-period estimate or a future one.
type Segment string

const (
	SegmentHistorical Segment = "historical"
	SegmentForecast   Segment = "forecast"
)

// ForecastPoint is one monthly model output for a category.
type ForecastPoint struct {
	Timestamp  time.Time `json:"ds"`
	CategoryID string    `json:"unique_id"`
	Estimate   float64   `json:"yhat"`
	Lower      float64   `json:"yhat_lower"`
	Upper      float64   `json:"yhat_upper"`
	Segment    Segment   `json:"segment"`
}

// Validate checks that the point is finite and its interval brackets the estimate.
func (p *ForecastPoint) Validate() error {
	if p.CategoryID == "" {
		return errors.New("category ID must not be empty")
	}
	if p.Segment != SegmentHistorical && p.Segment != SegmentForecast {
		return fmt.Errorf("invalid segment %q", p.Segment)
	}
	for _, v := range []float64{p.Estimate, p.Lower, p.Upper} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("forecast values must be finite")
		}
	}
	if p.Lower > p.Estimate || p.Estimate > p.Upper {
		return fmt.Errorf("interval [%f, %f] does not contain estimate %f", p.Lower, p.Upper, p.Estimate)
	}
	return nil
}

// CategoryForecast holds the points produced for a single category, ordered
// by timestamp. Historical points (when present) precede forecast points.
type CategoryForecast struct {
	CategoryID string          `json:"unique_id"`
	Model      string          `json:"model"`
	Points     []ForecastPoint `json:"points"`
}

// Future returns only the forecast segment.
func (f *CategoryForecast) Future() []ForecastPoint {
	var future []ForecastPoint
	for _, p := range f.Points {
		if p.Segment == SegmentForecast {
			future = append(future, p)
		}
	}
	return future
}

// Historical returns only the in-sample segment.
func (f *CategoryForecast) Historical() []ForecastPoint {
	var hist []ForecastPoint
	for _, p := range f.Points {
		if p.Segment == SegmentHistorical {
			hist = append(hist, p)
		}
	}
	return hist
}

// Validate checks every point and the monthly cadence across segments.
func (f *CategoryForecast) Validate() error {
	for i := range f.Points {
		if err := f.Points[i].Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
		if f.Points[i].CategoryID != f.CategoryID {
			return fmt.Errorf("point %d belongs to %s, not %s", i, f.Points[i].CategoryID, f.CategoryID)
		}
		if i > 0 && !f.Points[i].Timestamp.Equal(f.Points[i-1].Timestamp.AddDate(0, 1, 0)) {
			return fmt.Errorf("point %d breaks monthly cadence", i)
		}
	}
	return nil
}

// Proportions maps a category to its static share of the historical total.
type Proportions map[string]float64

// Sum returns the total of all shares.
func (p Proportions) Sum() float64 {
	var sum float64
	for _, v := range p {
		sum += v
	}
	return sum
}

// Validate checks that shares are non-negative and sum to one.
func (p Proportions) Validate() error {
	if len(p) == 0 {
		return ErrProportionUndefined
	}
	for c, v := range p {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("share for %s must be non-negative", c)
		}
	}
	if math.Abs(p.Sum()-1.0) > 1e-9 {
		return fmt.Errorf("shares sum to %f, expected 1.0", p.Sum())
	}
	return nil
}
