// Package forecast wraps pluggable univariate models behind a fit/predict
// contract and turns their output into monthly forecast points.
//
// A Model fits one history and returns a Fitted handle that can report
// in-sample estimates and predict any number of future steps. Models are
// registered by name so the reconciliation layer can select one from config
// without knowing its internals.
package forecast

import (
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

// Estimate is a point estimate with its uncertainty interval.
type Estimate struct {
	Value float64
	Lower float64
	Upper float64
}

// Model is a univariate forecasting algorithm over equally spaced monthly
// values.
type Model interface {
	Name() string
	Fit(y []float64) (Fitted, error)
}

// Fitted is a model trained on one history.
type Fitted interface {
	// InSample returns one estimate per historical value.
	InSample() []Estimate
	// Predict returns estimates for the steps following the history.
	Predict(steps int) []Estimate
}

// Options are shared by every registered model.
type Options struct {
	// IntervalWidth is the central coverage of the uncertainty interval,
	// e.g. 0.8 for an 80% band.
	IntervalWidth float64
}

// DefaultIntervalWidth matches the band width the dashboard has always shown.
const DefaultIntervalWidth = 0.80

// Factory builds a model from options.
type Factory func(opts Options) Model

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a model available by name. It panics on duplicates.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("forecast: model %q registered twice", name))
	}
	registry[name] = f
}

// NewModel returns the registered model for name.
func NewModel(name string, opts Options) (Model, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown forecast model %q (available: %v)", name, Names())
	}
	return f(opts), nil
}

// Names lists registered models in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// zScore returns the two-sided normal quantile for the interval width,
// falling back to DefaultIntervalWidth when width is outside (0, 1).
func zScore(width float64) float64 {
	if width <= 0 || width >= 1 {
		width = DefaultIntervalWidth
	}
	return distuv.UnitNormal.Quantile(0.5 + width/2)
}

// band builds an Estimate around value with half-width z*sigma.
func band(value, sigma, z float64) Estimate {
	half := z * sigma
	return Estimate{Value: value, Lower: value - half, Upper: value + half}
}
