package models

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when no usable rows remain after parsing.
	ErrEmptyInput = errors.New("no usable observations")

	// ErrDegenerateSeries is returned when a category has too few non-zero
	// months to fit a model.
	ErrDegenerateSeries = errors.New("degenerate series")

	// ErrProportionUndefined is returned when category shares are requested
	// on a dataset whose historical total is zero. Top-down mode is
	// unavailable in that case.
	ErrProportionUndefined = errors.New("no proportions available: historical total is zero")
)

// UnparseableDateError reports a row whose date could not be normalized.
type UnparseableDateError struct {
	Row   int
	Value string
	// Err is the parser's reason, if any.
	Err error
}

func (e *UnparseableDateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d: unparseable date %q: %v", e.Row, e.Value, e.Err)
	}
	return fmt.Sprintf("row %d: unparseable date %q", e.Row, e.Value)
}

func (e *UnparseableDateError) Unwrap() error {
	return e.Err
}

// CategoryError represents a per-category failure during forecasting. It is
// non-fatal: the category is absent from the result and siblings proceed.
type CategoryError struct {
	CategoryID string `json:"unique_id"`
	Err        error  `json:"-"`
}

func (e CategoryError) Error() string {
	return fmt.Sprintf("forecast failed for category %s: %v", e.CategoryID, e.Err)
}

func (e CategoryError) Unwrap() error {
	return e.Err
}
