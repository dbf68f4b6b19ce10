package series

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/attritioncast/internal/calendar"
	"github.com/rewired-gh/attritioncast/internal/models"
)

// ErrMissingAttribute is returned by ShareSplit when no observation carries
// the share attribute it splits on.
var ErrMissingAttribute = errors.New("share attribute missing from every observation")

// Decomposer turns observations into the per-category series of one lens.
type Decomposer interface {
	Decompose(obs []models.Observation, grid calendar.Grid) ([]models.Series, error)
}

// Overall yields the single aggregate series.
type Overall struct{}

// Decompose implements Decomposer.
func (Overall) Decompose(obs []models.Observation, grid calendar.Grid) ([]models.Series, error) {
	return []models.Series{Aggregate(obs, grid, models.OverallID)}, nil
}

// LabelSplit groups by a discrete label column.
type LabelSplit struct {
	Label LabelFunc
}

// Decompose implements Decomposer.
func (d LabelSplit) Decompose(obs []models.Observation, grid calendar.Grid) ([]models.Series, error) {
	return ByLabel(obs, grid, d.Label), nil
}

// ShareSplit splits the aggregate by a continuous share attribute.
type ShareSplit struct {
	Name    string
	Share   ShareFunc
	Labels  [2]string
	Options SplitOptions
}

// Decompose implements Decomposer.
func (d ShareSplit) Decompose(obs []models.Observation, grid calendar.Grid) ([]models.Series, error) {
	found := false
	for i := range obs {
		if d.Share(&obs[i]) != nil {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", d.Name, ErrMissingAttribute)
	}
	return Split(obs, grid, d.Share, d.Labels, d.Options), nil
}
