package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// monthsPerYear is the seasonal period of a monthly series.
	monthsPerYear = 12
	// additiveFourierOrder is the number of yearly harmonics.
	additiveFourierOrder = 3
	// minSeasonalMonths is the history needed before yearly seasonality is
	// estimated; with less the model is trend only.
	minSeasonalMonths = 2 * monthsPerYear
)

func init() {
	Register("additive", func(opts Options) Model {
		return &AdditiveModel{IntervalWidth: opts.IntervalWidth}
	})
}

// AdditiveModel is a linear trend plus yearly Fourier seasonality fitted by
// ordinary least squares:
//
//	y(t) = a + b*t + Σ_k [c_k sin(2πkt/12) + d_k cos(2πkt/12)] + ε
//
// Intervals use the residual standard error and widen with sqrt(h) over the
// forecast horizon.
type AdditiveModel struct {
	IntervalWidth float64
}

// Name returns the model name.
func (m *AdditiveModel) Name() string {
	return "additive"
}

// Fit estimates trend and seasonal coefficients for y.
func (m *AdditiveModel) Fit(y []float64) (Fitted, error) {
	n := len(y)
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", n)
	}

	order := 0
	if n >= minSeasonalMonths {
		order = additiveFourierOrder
	}

	p := 2 + 2*order
	design := mat.NewDense(n, p, nil)
	for t := 0; t < n; t++ {
		design.SetRow(t, additiveRow(float64(t), order))
	}

	var beta mat.VecDense
	if err := beta.SolveVec(design, mat.NewVecDense(n, y)); err != nil {
		return nil, fmt.Errorf("least squares fit failed: %w", err)
	}
	coef := make([]float64, p)
	for i := range coef {
		coef[i] = beta.AtVec(i)
	}

	fitted := make([]float64, n)
	for t := range fitted {
		fitted[t] = floats.Dot(coef, additiveRow(float64(t), order))
	}

	residuals := make([]float64, n)
	floats.SubTo(residuals, y, fitted)
	sigma := 0.0
	if dof := n - p; dof > 0 {
		sigma = math.Sqrt(floats.Dot(residuals, residuals) / float64(dof))
	}

	return &additiveFit{
		coef:   coef,
		order:  order,
		fitted: fitted,
		sigma:  sigma,
		z:      zScore(m.IntervalWidth),
	}, nil
}

// additiveRow returns the regressors for month index t.
func additiveRow(t float64, order int) []float64 {
	row := make([]float64, 0, 2+2*order)
	row = append(row, 1, t)
	for k := 1; k <= order; k++ {
		phase := 2 * math.Pi * float64(k) * t / monthsPerYear
		row = append(row, math.Sin(phase), math.Cos(phase))
	}
	return row
}

type additiveFit struct {
	coef   []float64
	order  int
	fitted []float64
	sigma  float64
	z      float64
}

func (f *additiveFit) InSample() []Estimate {
	out := make([]Estimate, len(f.fitted))
	for i, v := range f.fitted {
		out[i] = band(v, f.sigma, f.z)
	}
	return out
}

func (f *additiveFit) Predict(steps int) []Estimate {
	n := len(f.fitted)
	out := make([]Estimate, steps)
	for h := 1; h <= steps; h++ {
		v := floats.Dot(f.coef, additiveRow(float64(n-1+h), f.order))
		out[h-1] = band(v, f.sigma*math.Sqrt(float64(h)), f.z)
	}
	return out
}
