package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rewired-gh/attritioncast/internal/ingest"
	"github.com/rewired-gh/attritioncast/internal/models"
	"github.com/rewired-gh/attritioncast/internal/reconcile"
	"github.com/rewired-gh/attritioncast/internal/series"
	"github.com/rewired-gh/attritioncast/internal/storage"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func newProblem(status int, detail string) Problem {
	return Problem{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var dateErr *models.UnparseableDateError
	switch {
	case errors.Is(err, reconcile.ErrInvalidRequest),
		errors.As(err, &dateErr),
		errors.Is(err, ingest.ErrInvalidRow),
		errors.Is(err, errBadBody):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmptyInput),
		errors.Is(err, models.ErrProportionUndefined),
		errors.Is(err, models.ErrDegenerateSeries),
		errors.Is(err, series.ErrMissingAttribute),
		errors.Is(err, ingest.ErrMissingColumn):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func renderError(w http.ResponseWriter, _ *http.Request, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal error"
	}
	writeProblem(w, newProblem(status, detail))
}
