// Package pipeline wires configuration into a reconcile engine and runs a
// request end to end: reconcile, assemble rows, summarize, and archive.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rewired-gh/attritioncast/internal/assemble"
	"github.com/rewired-gh/attritioncast/internal/config"
	"github.com/rewired-gh/attritioncast/internal/forecast"
	"github.com/rewired-gh/attritioncast/internal/logger"
	"github.com/rewired-gh/attritioncast/internal/metrics"
	"github.com/rewired-gh/attritioncast/internal/models"
	"github.com/rewired-gh/attritioncast/internal/reconcile"
	"github.com/rewired-gh/attritioncast/internal/series"
	"github.com/rewired-gh/attritioncast/internal/storage"
	"github.com/rewired-gh/attritioncast/internal/summary"
)

// Output is the complete response to one forecast request.
type Output struct {
	RunID       string             `json:"run_id"`
	Mode        reconcile.Mode     `json:"mode"`
	Model       string             `json:"model"`
	Horizon     int                `json:"horizon"`
	Rows        []assemble.Row     `json:"rows"`
	Summary     summary.Summary    `json:"summary"`
	Proportions models.Proportions `json:"proportions,omitempty"`
	Warnings    []string           `json:"warnings"`
}

// NewEngine builds an engine from the forecast and split sections.
func NewEngine(fc config.ForecastConfig, sc config.SplitConfig, m *metrics.Metrics) (*reconcile.Engine, error) {
	model, err := forecast.NewModel(fc.Model, forecast.Options{IntervalWidth: fc.IntervalWidth})
	if err != nil {
		return nil, err
	}
	edge, err := series.ParseEdgePolicy(sc.EdgeFill)
	if err != nil {
		return nil, err
	}
	rounding, err := series.ParseRoundingPolicy(sc.Rounding)
	if err != nil {
		return nil, err
	}

	return reconcile.NewEngine(
		forecast.NewForecaster(model, fc.MinNonZero),
		reconcile.Options{
			Workers:    fc.Workers,
			FitTimeout: fc.FitTimeout,
			MaxHorizon: fc.MaxHorizon,
			Split:      series.SplitOptions{Edge: edge, Rounding: rounding},
		},
		m,
	), nil
}

// Pipeline runs requests against an engine and optionally archives them.
type Pipeline struct {
	engine *reconcile.Engine
	store  *storage.Storage
}

// New creates a Pipeline. store may be nil to disable archiving.
func New(engine *reconcile.Engine, store *storage.Storage) *Pipeline {
	return &Pipeline{engine: engine, store: store}
}

// Store returns the run archive, or nil when archiving is disabled.
func (p *Pipeline) Store() *storage.Storage {
	return p.store
}

// Run executes req. Archive failures are logged and do not fail the request.
func (p *Pipeline) Run(ctx context.Context, req reconcile.Request, obs []models.Observation) (*Output, error) {
	start := time.Now()

	res, err := p.engine.Run(ctx, req, obs)
	if err != nil {
		return nil, err
	}

	rows := assemble.Assemble(res.History, res.Forecasts, assemble.Options{Fitted: req.Fitted})
	out := &Output{
		RunID:       res.RunID,
		Mode:        res.Mode,
		Model:       res.Model,
		Horizon:     res.Horizon,
		Rows:        rows,
		Summary:     summary.Compute(rows),
		Proportions: res.Proportions,
		Warnings:    make([]string, 0, len(res.Warnings)),
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}

	elapsed := time.Since(start)
	logger.Info("Run %s: mode=%s model=%s horizon=%d categories=%d warnings=%d in %s",
		out.RunID, out.Mode, out.Model, out.Horizon, len(res.Forecasts), len(out.Warnings), elapsed)

	if p.store != nil {
		if err := p.archive(out, res, len(obs), elapsed); err != nil {
			logger.Error("Failed to archive run %s: %v", out.RunID, err)
		}
	}
	return out, nil
}

func (p *Pipeline) archive(out *Output, res *reconcile.Result, observations int, elapsed time.Duration) error {
	payload, err := json.Marshal(out.Rows)
	if err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}
	return p.store.SaveRun(&models.Run{
		ID:           out.RunID,
		Mode:         string(out.Mode),
		Horizon:      out.Horizon,
		Model:        out.Model,
		Categories:   res.Categories(),
		Warnings:     out.Warnings,
		RowCount:     len(out.Rows),
		Observations: observations,
		Payload:      payload,
		DurationMS:   elapsed.Milliseconds(),
		CreatedAt:    time.Now(),
	})
}
