// Package models defines the core domain entities for attritioncast.
// These models represent raw attrition records, normalized monthly series,
// forecast points and archived runs. All models include built-in validation
// so that malformed values are caught at the package boundary instead of
// surfacing as NaN in downstream arithmetic.
//
// Terminology:
//   - Observation: one input row (an event or a period rollup).
//   - Series: a gap-free monthly count series for one category.
//   - Category: the label a series is keyed by ("Female", "Engineering", ...).
package models

import (
	"errors"
	"math"
	"time"
)

// Observation represents one raw attrition record. It is owned by the caller
// and never mutated by the pipeline.
type Observation struct {
	Date       time.Time `json:"ds"`
	Count      int       `json:"attrition_count"`
	PctFemale  *float64  `json:"pct_female,omitempty"`  // period average female share (0–1)
	PctMarried *float64  `json:"pct_married,omitempty"` // period average married share (0–1)
	Department string    `json:"top_department,omitempty"`
}

// Validate checks that all observation fields are valid.
func (o *Observation) Validate() error {
	if o.Date.IsZero() {
		return errors.New("observation date must not be empty")
	}
	if o.Count < 0 {
		return errors.New("attrition count must not be negative")
	}
	if o.PctFemale != nil && !isShare(*o.PctFemale) {
		return errors.New("pct_female must be between 0.0 and 1.0")
	}
	if o.PctMarried != nil && !isShare(*o.PctMarried) {
		return errors.New("pct_married must be between 0.0 and 1.0")
	}
	return nil
}

// Share returns a pointer to v, for building observations in code and tests.
func Share(v float64) *float64 {
	return &v
}

func isShare(v float64) bool {
	return !math.IsNaN(v) && v >= 0.0 && v <= 1.0
}
