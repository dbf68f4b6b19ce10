package ingest

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/attritioncast/internal/models"
)

const sampleCSV = `DS,Attrition_Count,pct_female,pct_married,top_department
2023-01-15,10,0.4,0.5,Eng
2023-03-02,20,,0.25,Ops
2023-03-20,5,0.6,,
`

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sampleCSV), Options{})
	require.NoError(t, err)
	require.Len(t, ds.Observations, 3)
	assert.Zero(t, ds.Dropped)

	first := ds.Observations[0]
	assert.Equal(t, time.Date(2023, time.January, 15, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, 10, first.Count)
	require.NotNil(t, first.PctFemale)
	assert.Equal(t, 0.4, *first.PctFemale)
	assert.Equal(t, "Eng", first.Department)

	second := ds.Observations[1]
	assert.Nil(t, second.PctFemale)
	require.NotNil(t, second.PctMarried)
	assert.Equal(t, 0.25, *second.PctMarried)

	assert.Nil(t, ds.Observations[2].PctMarried)
	assert.Empty(t, ds.Observations[2].Department)
}

func TestReadCSVMinimalColumns(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("attrition_count,ds\n3,2024-02\n\n4,2024-03\n"), Options{})
	require.NoError(t, err)
	require.Len(t, ds.Observations, 2)
	assert.Equal(t, 4, ds.Observations[1].Count)
	assert.Equal(t, time.March, ds.Observations[1].Date.Month())
}

func TestReadCSVBadDate(t *testing.T) {
	input := "ds,attrition_count\n2023-01-01,1\nnot-a-date,2\n2023-02-01,3\n"

	_, err := ReadCSV(strings.NewReader(input), Options{})
	var dateErr *models.UnparseableDateError
	require.True(t, errors.As(err, &dateErr))
	assert.Equal(t, 3, dateErr.Row)
	assert.Equal(t, "not-a-date", dateErr.Value)

	ds, err := ReadCSV(strings.NewReader(input), Options{OnBadDate: BadDateDrop})
	require.NoError(t, err)
	assert.Len(t, ds.Observations, 2)
	assert.Equal(t, 1, ds.Dropped)
}

func TestReadCSVErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		is    error
	}{
		{"empty", "", models.ErrEmptyInput},
		{"header only", "ds,attrition_count\n", models.ErrEmptyInput},
		{"missing count column", "ds,top_department\n2023-01-01,Eng\n", ErrMissingColumn},
		{"missing date column", "attrition_count\n4\n", ErrMissingColumn},
		{"negative count", "ds,attrition_count\n2023-01-01,-2\n", ErrInvalidRow},
		{"fractional count", "ds,attrition_count\n2023-01-01,2.5\n", ErrInvalidRow},
		{"blank count", "ds,attrition_count\n2023-01-01,\n", ErrInvalidRow},
		{"huge count", "ds,attrition_count\n2023-01-01,1e300\n", ErrInvalidRow},
		{"count above int32", "ds,attrition_count\n2023-01-01,3000000000\n", ErrInvalidRow},
		{"share above one", "ds,attrition_count,pct_female\n2023-01-01,2,1.7\n", ErrInvalidRow},
		{"share not a number", "ds,attrition_count,pct_married\n2023-01-01,2,half\n", ErrInvalidRow},
		{"unterminated quote", "ds,attrition_count\n\"2023-01-01,2\n", ErrInvalidRow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input), Options{})
			assert.ErrorIs(t, err, tt.is)
		})
	}
}

func TestReadCSVAllDatesDropped(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("ds,attrition_count\nbad,1\n"), Options{OnBadDate: BadDateDrop})
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func TestParseCountWholeFloat(t *testing.T) {
	n, err := parseCount("12.0")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	n, err = parseCount("2147483647")
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt32, n)

	for _, s := range []string{"1e300", "2147483648", "9.0e18"} {
		_, err := parseCount(s)
		assert.Error(t, err, s)
	}
}

func TestParseDate(t *testing.T) {
	jan15 := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	jan1 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-15", jan15},
		{" 2024-01-15 ", jan15},
		{"2024-01-15T00:00:00Z", jan15},
		{"2024-01-15 00:00:00", jan15},
		{"2024/01/15", jan15},
		{"01/15/2024", jan15},
		{"15/01/2024", jan15},
		{"15-01-2024", jan15},
		{"1/15/2024", jan15},
		{"15.01.2024", jan15},
		{"01/01/2024", jan1},
		{"2024-01", jan1},
		{"Jan 2024", jan1},
		{"January 2024", jan1},
		{"45292", jan1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	for _, bad := range []string{"", "2024", "yesterday", "2024-13-01", "31/02/2024", "15/01-2024", "13/13/2024"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDateRejectsAmbiguousDayMonth(t *testing.T) {
	for _, in := range []string{"03/04/2023", "03-04-2023", "3/4/2023", "12.11.2023"} {
		_, err := ParseDate(in)
		assert.ErrorIs(t, err, ErrAmbiguousDate, in)
	}

	_, err := ReadCSV(strings.NewReader("ds,attrition_count\n2023-01-01,1\n03-04-2023,2\n"), Options{})
	var dateErr *models.UnparseableDateError
	require.True(t, errors.As(err, &dateErr))
	assert.Equal(t, 3, dateErr.Row)
	assert.ErrorIs(t, err, ErrAmbiguousDate)
}

func TestParseBadDatePolicy(t *testing.T) {
	p, err := ParseBadDatePolicy("")
	require.NoError(t, err)
	assert.Equal(t, BadDateAbort, p)

	p, err = ParseBadDatePolicy("DROP")
	require.NoError(t, err)
	assert.Equal(t, BadDateDrop, p)

	_, err = ParseBadDatePolicy("ignore")
	assert.Error(t, err)
}

func writeWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "attrition.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReadXLSX(t *testing.T) {
	path := writeWorkbook(t, [][]interface{}{
		{"ds", "attrition_count", "pct_female", "top_department"},
		{"2023-01-01", 7, 0.5, "Eng"},
		{"2023-02-01", 3, "", "Ops"},
	})

	ds, err := ReadXLSX(path, Options{})
	require.NoError(t, err)
	require.Len(t, ds.Observations, 2)
	assert.Equal(t, 7, ds.Observations[0].Count)
	require.NotNil(t, ds.Observations[0].PctFemale)
	assert.Equal(t, 0.5, *ds.Observations[0].PctFemale)
	assert.Nil(t, ds.Observations[1].PctFemale)
	assert.Equal(t, "Ops", ds.Observations[1].Department)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	streamed, err := ReadXLSXFrom(f, Options{})
	require.NoError(t, err)
	assert.Equal(t, ds.Observations, streamed.Observations)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.CSV")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o644))

	ds, err := Load(csvPath, Options{})
	require.NoError(t, err)
	assert.Len(t, ds.Observations, 3)

	_, err = Load(filepath.Join(dir, "data.json"), Options{})
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.csv"), Options{})
	assert.Error(t, err)
}
