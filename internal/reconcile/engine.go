package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/attritioncast/internal/calendar"
	"github.com/rewired-gh/attritioncast/internal/forecast"
	"github.com/rewired-gh/attritioncast/internal/logger"
	"github.com/rewired-gh/attritioncast/internal/metrics"
	"github.com/rewired-gh/attritioncast/internal/models"
	"github.com/rewired-gh/attritioncast/internal/series"
)

const (
	// MaxHorizon is the longest forecast the engine accepts.
	MaxHorizon = 24

	tracerName = "github.com/rewired-gh/attritioncast/internal/reconcile"
)

// ErrInvalidRequest wraps every request or observation validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Request describes one forecast run.
type Request struct {
	Mode    Mode `json:"mode" validate:"required,mode"`
	Horizon int  `json:"horizon" validate:"min=1,max=24"`
	Fitted  bool `json:"fitted"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("mode", func(fl validator.FieldLevel) bool {
		return Mode(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks the request fields.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			switch fe.Field() {
			case "Mode":
				return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
			case "Horizon":
				return fmt.Errorf("%w: horizon must be between 1 and %d, got %d", ErrInvalidRequest, MaxHorizon, r.Horizon)
			}
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// Options configures an Engine.
type Options struct {
	// Workers bounds concurrent category fits. Zero or less means one per category.
	Workers int
	// FitTimeout bounds a single category fit. Zero disables the limit.
	FitTimeout time.Duration
	// MaxHorizon lowers the accepted horizon below MaxHorizon when positive.
	MaxHorizon int
	Split      series.SplitOptions
}

// Result is the outcome of a run. History holds the normalized actuals of
// every category of the mode; Forecasts holds only the categories whose fit
// succeeded, both sorted by category ID.
type Result struct {
	RunID       string
	Mode        Mode
	Horizon     int
	Model       string
	Grid        calendar.Grid
	History     []models.Series
	Forecasts   []models.CategoryForecast
	Proportions models.Proportions
	Warnings    []models.CategoryError
}

// Categories returns the IDs of categories that produced a forecast.
func (r *Result) Categories() []string {
	ids := make([]string, 0, len(r.Forecasts))
	for _, f := range r.Forecasts {
		ids = append(ids, f.CategoryID)
	}
	return ids
}

// Engine runs the decomposition, fitting, and reconciliation pipeline.
type Engine struct {
	forecaster *forecast.Forecaster
	opts       Options
	metrics    *metrics.Metrics
	lenses     map[Mode]series.Decomposer
}

// NewEngine creates an Engine. m may be nil.
func NewEngine(f *forecast.Forecaster, opts Options, m *metrics.Metrics) *Engine {
	return &Engine{
		forecaster: f,
		opts:       opts,
		metrics:    m,
		lenses:     lenses(opts.Split),
	}
}

// Run executes req against obs. Per-category fit failures in bottom-up modes
// are reported in Result.Warnings and do not fail the run. In top-down mode a
// failed aggregate fit or undefined proportions fail the whole run.
func (e *Engine) Run(ctx context.Context, req Request, obs []models.Observation) (res *Result, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "reconcile.Run",
		trace.WithAttributes(
			attribute.String("mode", string(req.Mode)),
			attribute.Int("horizon", req.Horizon),
			attribute.Int("observations", len(obs)),
		))
	defer func() {
		skipped := 0
		if res != nil {
			skipped = len(res.Warnings)
		}
		e.metrics.ObserveRun(req.Mode.metricLabel(), skipped, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	if e.opts.MaxHorizon > 0 && req.Horizon > e.opts.MaxHorizon {
		return nil, fmt.Errorf("%w: horizon must be between 1 and %d, got %d", ErrInvalidRequest, e.opts.MaxHorizon, req.Horizon)
	}
	for i := range obs {
		if err := obs[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: observation %d: %v", ErrInvalidRequest, i, err)
		}
	}

	grid, err := calendar.FromObservations(obs)
	if err != nil {
		return nil, err
	}

	history, err := e.lenses[req.Mode].Decompose(obs, grid)
	if err != nil {
		return nil, fmt.Errorf("failed to decompose %s: %w", req.Mode, err)
	}

	res = &Result{
		RunID:   uuid.New().String(),
		Mode:    req.Mode,
		Horizon: req.Horizon,
		Model:   e.forecaster.ModelName(),
		Grid:    grid,
		History: history,
	}

	if req.Mode.TopDown() {
		err = e.topDown(ctx, res, obs, grid)
	} else {
		err = e.bottomUp(ctx, res)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Run %s (%s): %d/%d categories forecast, %d warnings",
		res.RunID, req.Mode, len(res.Forecasts), len(res.History), len(res.Warnings))
	return res, nil
}

// bottomUp fits every history series independently.
func (e *Engine) bottomUp(ctx context.Context, res *Result) error {
	forecasts := make([]*models.CategoryForecast, len(res.History))
	failures := make([]error, len(res.History))

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.Workers > 0 {
		g.SetLimit(e.opts.Workers)
	}
	for i := range res.History {
		i := i
		s := res.History[i]
		g.Go(func() error {
			// Failures stay per category; returning nil keeps siblings running.
			forecasts[i], failures[i] = e.fit(gctx, s, res.Horizon)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}

	for i, f := range forecasts {
		if failures[i] != nil {
			logger.Warn("Skipping category %s: %v", res.History[i].ID, failures[i])
			res.Warnings = append(res.Warnings, models.CategoryError{
				CategoryID: res.History[i].ID,
				Err:        failures[i],
			})
			continue
		}
		res.Forecasts = append(res.Forecasts, *f)
	}
	if len(res.Forecasts) == 0 && len(res.Warnings) > 0 {
		logger.Warn("Every category failed for mode %s", res.Mode)
	}
	return nil
}

// topDown fits the aggregate once and splits its forecast by each
// department's historical share.
func (e *Engine) topDown(ctx context.Context, res *Result, obs []models.Observation, grid calendar.Grid) error {
	props, err := series.Proportions(obs, series.DepartmentLabel)
	if err != nil {
		return fmt.Errorf("top-down unavailable: %w", err)
	}
	if err := props.Validate(); err != nil {
		return fmt.Errorf("top-down unavailable: %w", err)
	}

	overall := series.Aggregate(obs, grid, models.OverallID)
	parent, err := e.fit(ctx, overall, res.Horizon)
	if err != nil {
		return fmt.Errorf("top-down unavailable: aggregate fit failed: %w", err)
	}

	ids := make([]string, 0, len(props))
	for id := range props {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		res.Forecasts = append(res.Forecasts, Disaggregate(parent, id, props[id]))
	}
	res.Proportions = props
	return nil
}

// Disaggregate scales the forecast segment of parent by share and relabels
// it as category id. In-sample points are not carried over: the child was
// never fit, so it has no fitted history of its own. Values are not
// re-rounded, so the children of a parent sum back to it up to float error.
func Disaggregate(parent *models.CategoryForecast, id string, share float64) models.CategoryForecast {
	future := parent.Future()
	child := models.CategoryForecast{
		CategoryID: id,
		Model:      parent.Model,
		Points:     make([]models.ForecastPoint, len(future)),
	}
	for i, p := range future {
		child.Points[i] = models.ForecastPoint{
			Timestamp:  p.Timestamp,
			CategoryID: id,
			Estimate:   p.Estimate * share,
			Lower:      p.Lower * share,
			Upper:      p.Upper * share,
			Segment:    p.Segment,
		}
	}
	return child
}

// fit runs one category fit under the per-fit timeout and records it.
func (e *Engine) fit(ctx context.Context, s models.Series, horizon int) (*models.CategoryForecast, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "reconcile.fit",
		trace.WithAttributes(
			attribute.String("category", s.ID),
			attribute.Int("months", s.Len()),
		))
	defer span.End()

	if e.opts.FitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.FitTimeout)
		defer cancel()
	}

	start := time.Now()
	f, err := e.forecaster.FitPredict(ctx, s, horizon)
	e.metrics.ObserveFit(e.forecaster.ModelName(), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return f, nil
}
