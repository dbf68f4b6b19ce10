package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/attritioncast/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuild_MissingMonth(t *testing.T) {
	grid, err := Build([]time.Time{day(2023, 3, 10), day(2023, 1, 15)})
	require.NoError(t, err)

	assert.Equal(t, Grid{day(2023, 1, 1), day(2023, 2, 1), day(2023, 3, 1)}, grid)
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build(nil)
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func TestBuild_Completeness(t *testing.T) {
	tests := []struct {
		name  string
		dates []time.Time
	}{
		{"single day", []time.Time{day(2022, 6, 30)}},
		{"same month", []time.Time{day(2022, 6, 1), day(2022, 6, 30)}},
		{"across year", []time.Time{day(2021, 11, 3), day(2023, 2, 27)}},
		{"leap february", []time.Time{day(2020, 1, 31), day(2020, 3, 1)}},
		{"unordered", []time.Time{day(2024, 5, 5), day(2019, 12, 31), day(2021, 7, 7)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grid, err := Build(tt.dates)
			require.NoError(t, err)

			start, end := grid.First(), grid.Last()
			want := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month()) + 1
			assert.Equal(t, want, grid.Len())

			for i := 1; i < grid.Len(); i++ {
				assert.Equal(t, grid[i-1].AddDate(0, 1, 0), grid[i], "gap at %d", i)
			}
			for _, d := range tt.dates {
				assert.NotEqual(t, -1, grid.Index(d), "date %s outside grid", d)
			}
		})
	}
}

func TestMonthStart_NormalizesZone(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 2023-03-01 02:00 at +05:00 is still February in UTC.
	got := MonthStart(time.Date(2023, 3, 1, 2, 0, 0, 0, loc))
	assert.Equal(t, day(2023, 2, 1), got)
}

func TestGrid_IndexAndFuture(t *testing.T) {
	grid := Span(day(2023, 11, 20), day(2024, 2, 2))
	require.Equal(t, 4, grid.Len())

	assert.Equal(t, 0, grid.Index(day(2023, 11, 30)))
	assert.Equal(t, 3, grid.Index(day(2024, 2, 29)))
	assert.Equal(t, -1, grid.Index(day(2024, 3, 1)))
	assert.Equal(t, -1, grid.Index(day(2023, 10, 31)))

	future := grid.Future(2)
	assert.Equal(t, Grid{day(2024, 3, 1), day(2024, 4, 1)}, future)
	assert.Empty(t, grid.Future(0))
}

func TestMonthsBetween(t *testing.T) {
	assert.Equal(t, 0, MonthsBetween(day(2023, 1, 1), day(2023, 1, 31)))
	assert.Equal(t, 13, MonthsBetween(day(2022, 12, 31), day(2024, 1, 1)))
	assert.Equal(t, -2, MonthsBetween(day(2023, 3, 1), day(2023, 1, 1)))
}
