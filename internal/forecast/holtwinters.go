package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func init() {
	Register("holtwinters", func(opts Options) Model {
		m := NewHoltWinters()
		m.IntervalWidth = opts.IntervalWidth
		return m
	})
}

// HoltWintersModel is additive triple exponential smoothing. With fewer than
// two full seasons it falls back to Holt's linear (double) smoothing.
type HoltWintersModel struct {
	Alpha         float64
	Beta          float64
	Gamma         float64
	Period        int
	IntervalWidth float64
}

// NewHoltWinters returns a model with conventional smoothing constants and a
// yearly period.
func NewHoltWinters() *HoltWintersModel {
	return &HoltWintersModel{
		Alpha:         0.3,
		Beta:          0.1,
		Gamma:         0.1,
		Period:        monthsPerYear,
		IntervalWidth: DefaultIntervalWidth,
	}
}

// Name returns the model name.
func (m *HoltWintersModel) Name() string {
	return "holtwinters"
}

// Fit runs the smoothing recursion over y.
func (m *HoltWintersModel) Fit(y []float64) (Fitted, error) {
	n := len(y)
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", n)
	}

	period := m.Period
	if period <= 1 || n < 2*period {
		period = 0
	}

	var level, trend float64
	seasonal := make([]float64, max(period, 1))
	if period > 0 {
		first := stat.Mean(y[:period], nil)
		second := stat.Mean(y[period:2*period], nil)
		level = first
		trend = (second - first) / float64(period)
		for i := 0; i < period; i++ {
			seasonal[i] = y[i] - first
		}
	} else {
		level = y[0]
		trend = y[1] - y[0]
	}

	fitted := make([]float64, n)
	for t := 0; t < n; t++ {
		s := 0.0
		if period > 0 {
			s = seasonal[t%period]
		}
		fitted[t] = level + trend + s

		newLevel := m.Alpha*(y[t]-s) + (1-m.Alpha)*(level+trend)
		trend = m.Beta*(newLevel-level) + (1-m.Beta)*trend
		if period > 0 {
			seasonal[t%period] = m.Gamma*(y[t]-newLevel) + (1-m.Gamma)*s
		}
		level = newLevel
	}

	residuals := make([]float64, n)
	floats.SubTo(residuals, y, fitted)
	sigma := math.Sqrt(floats.Dot(residuals, residuals) / float64(n-1))

	return &holtWintersFit{
		level:    level,
		trend:    trend,
		seasonal: seasonal,
		period:   period,
		fitted:   fitted,
		sigma:    sigma,
		z:        zScore(m.IntervalWidth),
	}, nil
}

type holtWintersFit struct {
	level    float64
	trend    float64
	seasonal []float64
	period   int
	fitted   []float64
	sigma    float64
	z        float64
}

func (f *holtWintersFit) InSample() []Estimate {
	out := make([]Estimate, len(f.fitted))
	for i, v := range f.fitted {
		out[i] = band(v, f.sigma, f.z)
	}
	return out
}

func (f *holtWintersFit) Predict(steps int) []Estimate {
	n := len(f.fitted)
	out := make([]Estimate, steps)
	for h := 1; h <= steps; h++ {
		v := f.level + float64(h)*f.trend
		if f.period > 0 {
			v += f.seasonal[(n-1+h)%f.period]
		}
		out[h-1] = band(v, f.sigma*math.Sqrt(float64(h)), f.z)
	}
	return out
}
