package models

import (
	"errors"
	"time"
)

// Run is the archived outcome of one forecast request.
type Run struct {
	ID           string    `json:"id"`
	Mode         string    `json:"mode"`
	Horizon      int       `json:"horizon_months"`
	Model        string    `json:"model"`
	Categories   []string  `json:"categories"`
	Warnings     []string  `json:"warnings,omitempty"`
	RowCount     int       `json:"row_count"`
	Observations int       `json:"observations"`
	Payload      []byte    `json:"-"` // assembled rows, JSON encoded
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks that all run fields are valid.
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.Mode == "" {
		return errors.New("run mode must not be empty")
	}
	if r.Horizon < 1 {
		return errors.New("run horizon must be at least 1")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("run created at must not be empty")
	}
	if r.CreatedAt.After(time.Now()) {
		return errors.New("created at must not be in the future")
	}
	return nil
}
