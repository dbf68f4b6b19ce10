package models

import (
	"errors"
	"fmt"
	"time"
)

// Well-known category identifiers.
const (
	OverallID    = "Overall Attrition"
	FemaleID     = "Female"
	MaleID       = "Male"
	MarriedID    = "Married"
	UnmarriedID  = "Unmarried"
	UnassignedID = "Unassigned" // rows without a department label
)

// Series is a complete monthly count series for one category. Months are
// month-start timestamps in UTC, contiguous and strictly increasing.
type Series struct {
	ID     string      `json:"unique_id"`
	Months []time.Time `json:"ds"`
	Counts []int       `json:"y"`
}

// Len returns the number of months in the series.
func (s *Series) Len() int {
	return len(s.Months)
}

// Total returns the sum of all monthly counts.
func (s *Series) Total() int {
	total := 0
	for _, c := range s.Counts {
		total += c
	}
	return total
}

// Values returns the counts as float64 for model fitting.
func (s *Series) Values() []float64 {
	values := make([]float64, len(s.Counts))
	for i, c := range s.Counts {
		values[i] = float64(c)
	}
	return values
}

// Validate checks the series invariants.
func (s *Series) Validate() error {
	if s.ID == "" {
		return errors.New("series ID must not be empty")
	}
	if len(s.Months) != len(s.Counts) {
		return fmt.Errorf("series %s: %d months but %d counts", s.ID, len(s.Months), len(s.Counts))
	}
	for i := 1; i < len(s.Months); i++ {
		if !s.Months[i].Equal(s.Months[i-1].AddDate(0, 1, 0)) {
			return fmt.Errorf("series %s: month %s does not follow %s",
				s.ID, s.Months[i].Format("2006-01"), s.Months[i-1].Format("2006-01"))
		}
	}
	return nil
}
