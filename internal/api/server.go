// Package api exposes the forecasting pipeline over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/attritioncast/internal/ingest"
	"github.com/rewired-gh/attritioncast/internal/logger"
	"github.com/rewired-gh/attritioncast/internal/models"
	"github.com/rewired-gh/attritioncast/internal/pipeline"
	"github.com/rewired-gh/attritioncast/internal/reconcile"
)

var (
	errBadBody         = errors.New("malformed request body")
	errArchiveDisabled = errors.New("run archive is disabled")
)

// Options configures the HTTP handlers.
type Options struct {
	// DefaultHorizon applies when a request omits the horizon.
	DefaultHorizon int
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64
	OnBadDate    ingest.BadDatePolicy
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server holds the handler dependencies.
type Server struct {
	pipeline *pipeline.Pipeline
	opts     Options
	validate *validator.Validate
	log      *slog.Logger
}

// NewServer creates a Server.
func NewServer(p *pipeline.Pipeline, opts Options) *Server {
	if opts.DefaultHorizon < 1 {
		opts.DefaultHorizon = 12
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		pipeline: p,
		opts:     opts,
		validate: validator.New(),
		log:      logger.Slog(),
	}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Post("/forecast", s.handleForecast)
		r.Post("/forecast/upload", s.handleUpload)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

type observationIn struct {
	Date       string   `json:"ds" validate:"required"`
	Count      *int     `json:"attrition_count" validate:"required,min=0"`
	PctFemale  *float64 `json:"pct_female" validate:"omitempty,min=0,max=1"`
	PctMarried *float64 `json:"pct_married" validate:"omitempty,min=0,max=1"`
	Department string   `json:"top_department"`
}

type forecastRequest struct {
	Mode         string          `json:"mode" validate:"required"`
	Horizon      int             `json:"horizon" validate:"omitempty,min=1,max=24"`
	Fitted       bool            `json:"fitted"`
	Observations []observationIn `json:"observations" validate:"required,dive"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var body forecastRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes), &body); err != nil {
		renderError(w, r, fmt.Errorf("%w: %v", errBadBody, err))
		return
	}
	if err := s.validate.Struct(body); err != nil {
		renderError(w, r, fmt.Errorf("%w: %v", reconcile.ErrInvalidRequest, err))
		return
	}

	obs, err := s.convert(body.Observations)
	if err != nil {
		renderError(w, r, err)
		return
	}
	s.run(w, r, body.Mode, body.Horizon, body.Fitted, obs)
}

func (s *Server) convert(in []observationIn) ([]models.Observation, error) {
	out := make([]models.Observation, 0, len(in))
	dropped := 0
	for i, o := range in {
		date, err := ingest.ParseDate(o.Date)
		if err != nil {
			if s.opts.OnBadDate == ingest.BadDateDrop {
				dropped++
				continue
			}
			return nil, &models.UnparseableDateError{Row: i + 1, Value: o.Date, Err: err}
		}
		out = append(out, models.Observation{
			Date:       date,
			Count:      *o.Count,
			PctFemale:  o.PctFemale,
			PctMarried: o.PctMarried,
			Department: strings.TrimSpace(o.Department),
		})
	}
	if dropped > 0 {
		logger.Warn("Dropped %d observations with unparseable dates", dropped)
	}
	return out, nil
}

// handleUpload accepts a multipart CSV or XLSX file in the "file" field with
// mode, horizon, and fitted as query parameters.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		renderError(w, r, fmt.Errorf("%w: %v", errBadBody, err))
		return
	}
	defer file.Close()

	opts := ingest.Options{OnBadDate: s.opts.OnBadDate}
	var ds *ingest.Dataset
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv":
		ds, err = ingest.ReadCSV(file, opts)
	case ".xlsx", ".xlsm":
		ds, err = ingest.ReadXLSXFrom(file, opts)
	default:
		err = fmt.Errorf("%w: unsupported file type %q", errBadBody, filepath.Ext(header.Filename))
	}
	if err != nil {
		renderError(w, r, err)
		return
	}

	q := r.URL.Query()
	horizon := 0
	if h := q.Get("horizon"); h != "" {
		if horizon, err = strconv.Atoi(h); err != nil {
			renderError(w, r, fmt.Errorf("%w: horizon %q is not a number", reconcile.ErrInvalidRequest, h))
			return
		}
	}
	fitted, _ := strconv.ParseBool(q.Get("fitted"))
	s.run(w, r, q.Get("mode"), horizon, fitted, ds.Observations)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, rawMode string, horizon int, fitted bool, obs []models.Observation) {
	mode, err := reconcile.ParseMode(rawMode)
	if err != nil {
		renderError(w, r, fmt.Errorf("%w: %v", reconcile.ErrInvalidRequest, err))
		return
	}
	if horizon == 0 {
		horizon = s.opts.DefaultHorizon
	}

	out, err := s.pipeline.Run(r.Context(), reconcile.Request{Mode: mode, Horizon: horizon, Fitted: fitted}, obs)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			logger.Error("Forecast failed: %v", err)
		}
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, out)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	store := s.pipeline.Store()
	if store == nil {
		writeProblem(w, newProblem(http.StatusServiceUnavailable, errArchiveDisabled.Error()))
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			renderError(w, r, fmt.Errorf("%w: limit must be a positive integer", reconcile.ErrInvalidRequest))
			return
		}
		limit = n
	}

	runs, err := store.ListRuns(limit)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	render.JSON(w, r, runs)
}

type runDetail struct {
	models.Run
	Rows json.RawMessage `json:"rows"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	store := s.pipeline.Store()
	if store == nil {
		writeProblem(w, newProblem(http.StatusServiceUnavailable, errArchiveDisabled.Error()))
		return
	}
	run, err := store.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	detail := runDetail{Run: *run, Rows: run.Payload}
	if len(detail.Rows) == 0 {
		detail.Rows = json.RawMessage("[]")
	}
	render.JSON(w, r, detail)
}
