// Package ingest decodes raw attrition tables from CSV or XLSX into
// observations.
//
// The first row is a header. Columns are matched by name, case-insensitively:
// ds and attrition_count are required; pct_female, pct_married, and
// top_department are optional and blank cells are treated as absent.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/attritioncast/internal/logger"
	"github.com/rewired-gh/attritioncast/internal/models"
)

// Column names of the input schema.
const (
	ColDate       = "ds"
	ColCount      = "attrition_count"
	ColPctFemale  = "pct_female"
	ColPctMarried = "pct_married"
	ColDepartment = "top_department"
)

// BadDatePolicy decides what happens to rows whose date cannot be parsed.
type BadDatePolicy string

const (
	// BadDateAbort fails the whole read with *models.UnparseableDateError.
	BadDateAbort BadDatePolicy = "abort"
	// BadDateDrop skips the row and counts it in Dataset.Dropped.
	BadDateDrop BadDatePolicy = "drop"
)

// ParseBadDatePolicy maps a config value to a policy. Empty means abort.
func ParseBadDatePolicy(s string) (BadDatePolicy, error) {
	switch BadDatePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", BadDateAbort:
		return BadDateAbort, nil
	case BadDateDrop:
		return BadDateDrop, nil
	default:
		return "", fmt.Errorf("unknown bad date policy %q", s)
	}
}

// Options configures decoding.
type Options struct {
	OnBadDate BadDatePolicy
}

// Dataset is the decoded table.
type Dataset struct {
	Observations []models.Observation
	// Dropped counts rows skipped under BadDateDrop.
	Dropped int
}

var (
	// ErrMissingColumn is returned when the header lacks ds or attrition_count.
	ErrMissingColumn = errors.New("required column missing")
	// ErrInvalidRow wraps row-level decode failures: bad counts, shares out
	// of range, and malformed CSV syntax.
	ErrInvalidRow = errors.New("invalid row")
	// ErrAmbiguousDate is returned by ParseDate for numeric day/month dates
	// that read differently month-first and day-first.
	ErrAmbiguousDate = errors.New("ambiguous day and month")
)

// Load reads path, choosing the decoder by file extension.
func Load(path string, opts Options) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f, opts)
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, opts)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// ReadXLSX decodes the first sheet of an Excel workbook.
func ReadXLSX(path string, opts Options) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, opts)
}

// ReadXLSXFrom decodes the first sheet of a workbook streamed from r.
func ReadXLSXFrom(r io.Reader, opts Options) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, opts)
}

func readWorkbook(f *excelize.File, opts Options) (*Dataset, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, models.ErrEmptyInput
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	logger.Debug("Read %d rows from sheet %s", len(rows), sheets[0])
	return decode(rows, opts)
}

type columns struct {
	date, count, female, married, department int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{date: -1, count: -1, female: -1, married: -1, department: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case ColDate:
			cols.date = i
		case ColCount:
			cols.count = i
		case ColPctFemale:
			cols.female = i
		case ColPctMarried:
			cols.married = i
		case ColDepartment:
			cols.department = i
		}
	}
	if cols.date < 0 {
		return cols, fmt.Errorf("%s: %w", ColDate, ErrMissingColumn)
	}
	if cols.count < 0 {
		return cols, fmt.Errorf("%s: %w", ColCount, ErrMissingColumn)
	}
	return cols, nil
}

// decode turns a header plus records into observations. Row numbers in
// errors are 1-based and count the header, matching spreadsheet numbering.
func decode(records [][]string, opts Options) (*Dataset, error) {
	if len(records) == 0 {
		return nil, models.ErrEmptyInput
	}
	policy, err := ParseBadDatePolicy(string(opts.OnBadDate))
	if err != nil {
		return nil, err
	}
	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, err
	}

	ds := &Dataset{}
	for i, rec := range records[1:] {
		row := i + 2
		if blank(rec) {
			continue
		}

		rawDate := field(rec, cols.date)
		date, err := ParseDate(rawDate)
		if err != nil {
			if policy == BadDateDrop {
				ds.Dropped++
				continue
			}
			return nil, &models.UnparseableDateError{Row: row, Value: rawDate, Err: err}
		}

		count, err := parseCount(field(rec, cols.count))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrInvalidRow, row, err)
		}

		o := models.Observation{
			Date:       date,
			Count:      count,
			Department: strings.TrimSpace(field(rec, cols.department)),
		}
		if o.PctFemale, err = parseShare(field(rec, cols.female)); err != nil {
			return nil, fmt.Errorf("%w: row %d: %s: %w", ErrInvalidRow, row, ColPctFemale, err)
		}
		if o.PctMarried, err = parseShare(field(rec, cols.married)); err != nil {
			return nil, fmt.Errorf("%w: row %d: %s: %w", ErrInvalidRow, row, ColPctMarried, err)
		}
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrInvalidRow, row, err)
		}
		ds.Observations = append(ds.Observations, o)
	}

	if ds.Dropped > 0 {
		logger.Warn("Dropped %d rows with unparseable dates", ds.Dropped)
	}
	if len(ds.Observations) == 0 {
		return nil, models.ErrEmptyInput
	}
	return ds, nil
}

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.DateTime,
	"2006-01",
	"2006/01/02",
	"2006/01",
	"Jan 2006",
	"January 2006",
	"Jan-06",
}

// numericDate matches day/month/year renderings such as 03/04/2023 or
// 15-01-2024. Which field is the month is decided by parseNumericDate.
var numericDate = regexp.MustCompile(`^(\d{1,2})([/.-])(\d{1,2})([/.-])(\d{4})$`)

// Bare numbers inside this range are read as Excel serial day numbers
// (1927-05-18 through 9999-12-31); smaller ones are more likely years.
const (
	minExcelSerial = 10000
	maxExcelSerial = 2958465
)

// ParseDate accepts common ISO and spreadsheet date renderings, plus raw
// Excel serial day numbers. Times are normalized to UTC.
//
// Numeric dates like 03/04/2023 are accepted only when the day and month
// cannot be swapped: one field above 12, or both equal. Otherwise ParseDate
// returns ErrAmbiguousDate.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if m := numericDate.FindStringSubmatch(s); m != nil {
		return parseNumericDate(s, m)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= minExcelSerial && serial <= maxExcelSerial {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseNumericDate(s string, m []string) (time.Time, error) {
	if m[2] != m[4] {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[3])
	year, _ := strconv.Atoi(m[5])

	var month, day int
	switch {
	case a == b:
		month, day = a, b
	case a > 12 && b <= 12:
		month, day = b, a
	case b > 12 && a <= 12:
		month, day = a, b
	case a <= 12 && b <= 12:
		return time.Time{}, fmt.Errorf("%w: %q", ErrAmbiguousDate, s)
	default:
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if month < 1 || day < 1 || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return t, nil
}

// maxCount bounds attrition_count so the int conversion is exact.
const maxCount = math.MaxInt32

func parseCount(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%s is empty", ColCount)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("%s must not be negative, got %d", ColCount, n)
		}
		if n > maxCount {
			return 0, fmt.Errorf("%s %d is too large", ColCount, n)
		}
		return n, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s %q is not a number", ColCount, s)
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%s must be a whole number, got %s", ColCount, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", ColCount, s)
	}
	if v > maxCount {
		return 0, fmt.Errorf("%s %s is too large", ColCount, s)
	}
	return int(v), nil
}

func parseShare(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return nil, fmt.Errorf("share %s must be between 0 and 1", s)
	}
	return &v, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
