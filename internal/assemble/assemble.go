// Package assemble flattens run output into long-format rows, one per
// category and month, ready for JSON or CSV export.
package assemble

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rewired-gh/attritioncast/internal/models"
)

// RowType tags a row as observed history or future forecast.
type RowType string

const (
	TypeHistorical RowType = "Historical"
	TypeForecast   RowType = "Forecast"
)

// Row is one record of the combined output. Cells that do not apply to the
// row's type are nil.
type Row struct {
	Date       time.Time `json:"ds"`
	CategoryID string    `json:"unique_id"`
	Actual     *float64  `json:"y"`
	Estimate   *float64  `json:"yhat"`
	Lower      *float64  `json:"yhat_lower"`
	Upper      *float64  `json:"yhat_upper"`
	Type       RowType   `json:"type"`
}

// Options controls which cells are filled.
type Options struct {
	// Fitted adds in-sample estimates and bounds to historical rows.
	Fitted bool
}

// Assemble combines historical actuals with forecasts. Every history series
// contributes its actuals, including categories whose fit failed. Rows are
// sorted by category ID, then date.
func Assemble(history []models.Series, forecasts []models.CategoryForecast, opts Options) []Row {
	fitted := make(map[string]map[time.Time]models.ForecastPoint)
	if opts.Fitted {
		for _, f := range forecasts {
			byMonth := make(map[time.Time]models.ForecastPoint)
			for _, p := range f.Historical() {
				byMonth[p.Timestamp] = p
			}
			fitted[f.CategoryID] = byMonth
		}
	}

	var rows []Row
	for _, s := range history {
		for i, ts := range s.Months {
			row := Row{
				Date:       ts,
				CategoryID: s.ID,
				Actual:     ptr(float64(s.Counts[i])),
				Type:       TypeHistorical,
			}
			if p, ok := fitted[s.ID][ts]; ok {
				row.Estimate, row.Lower, row.Upper = ptr(p.Estimate), ptr(p.Lower), ptr(p.Upper)
			}
			rows = append(rows, row)
		}
	}

	for _, f := range forecasts {
		for _, p := range f.Future() {
			rows = append(rows, Row{
				Date:       p.Timestamp,
				CategoryID: f.CategoryID,
				Estimate:   ptr(p.Estimate),
				Lower:      ptr(p.Lower),
				Upper:      ptr(p.Upper),
				Type:       TypeForecast,
			})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CategoryID != rows[j].CategoryID {
			return rows[i].CategoryID < rows[j].CategoryID
		}
		return rows[i].Date.Before(rows[j].Date)
	})
	return rows
}

// Header is the CSV column order.
var Header = []string{"ds", "unique_id", "y", "yhat", "yhat_lower", "yhat_upper", "type"}

// WriteCSV writes rows with a header line. Nil cells are left empty and dates
// use YYYY-MM-DD.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			r.Date.Format(time.DateOnly),
			r.CategoryID,
			cell(r.Actual),
			cell(r.Estimate),
			cell(r.Lower),
			cell(r.Upper),
			string(r.Type),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func ptr(v float64) *float64 {
	return &v
}
