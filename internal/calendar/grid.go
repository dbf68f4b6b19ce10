// Package calendar builds the canonical monthly timeline every series is
// aligned on. A Grid spans the observed date range at month-start
// granularity with no gaps, so that sparse categories still produce
// zero-valued months instead of missing ones.
package calendar

import (
	"time"

	"github.com/rewired-gh/attritioncast/internal/models"
)

// Grid is an ordered, gap-free sequence of month-start timestamps (UTC).
type Grid []time.Time

// MonthStart truncates t to the first instant of its month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween returns the number of whole months from a to b, counted on
// month starts. It is negative when b precedes a.
func MonthsBetween(a, b time.Time) int {
	a, b = MonthStart(a), MonthStart(b)
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// Build returns the grid from the month of the earliest date to the month of
// the latest date, inclusive.
func Build(dates []time.Time) (Grid, error) {
	if len(dates) == 0 {
		return nil, models.ErrEmptyInput
	}

	lo, hi := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(lo) {
			lo = d
		}
		if d.After(hi) {
			hi = d
		}
	}
	return Span(lo, hi), nil
}

// FromObservations builds the grid over the observation dates.
func FromObservations(obs []models.Observation) (Grid, error) {
	dates := make([]time.Time, len(obs))
	for i := range obs {
		dates[i] = obs[i].Date
	}
	return Build(dates)
}

// Span returns every month start from start to end inclusive. It returns
// an empty grid when end precedes start.
func Span(start, end time.Time) Grid {
	start = MonthStart(start)
	n := MonthsBetween(start, end) + 1
	if n <= 0 {
		return Grid{}
	}
	grid := make(Grid, n)
	for i := range grid {
		grid[i] = start.AddDate(0, i, 0)
	}
	return grid
}

// Len returns the number of months.
func (g Grid) Len() int {
	return len(g)
}

// First returns the first month, or the zero time for an empty grid.
func (g Grid) First() time.Time {
	if len(g) == 0 {
		return time.Time{}
	}
	return g[0]
}

// Last returns the last month, or the zero time for an empty grid.
func (g Grid) Last() time.Time {
	if len(g) == 0 {
		return time.Time{}
	}
	return g[len(g)-1]
}

// Index returns the position of t's month on the grid, or -1 if it falls
// outside.
func (g Grid) Index(t time.Time) int {
	if len(g) == 0 {
		return -1
	}
	i := MonthsBetween(g[0], t)
	if i < 0 || i >= len(g) {
		return -1
	}
	return i
}

// Future returns the n months following the grid.
func (g Grid) Future(n int) Grid {
	if len(g) == 0 || n <= 0 {
		return Grid{}
	}
	future := make(Grid, n)
	for i := range future {
		future[i] = g[len(g)-1].AddDate(0, i+1, 0)
	}
	return future
}

// Months returns a copy of the grid as a plain slice.
func (g Grid) Months() []time.Time {
	out := make([]time.Time, len(g))
	copy(out, g)
	return out
}
