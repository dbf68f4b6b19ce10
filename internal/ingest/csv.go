package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ReadCSV decodes a comma-separated table.
func ReadCSV(r io.Reader, opts Options) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRow, err)
		}
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return decode(records, opts)
}
