// Package reconcile turns raw observations into per-category forecasts for a
// chosen breakdown, either by forecasting every category independently
// (bottom-up) or by forecasting the aggregate and disaggregating it by
// historical shares (top-down).
package reconcile

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/attritioncast/internal/models"
	"github.com/rewired-gh/attritioncast/internal/series"
)

// Mode selects the category breakdown and reconciliation strategy.
type Mode string

const (
	ModeOverall           Mode = "Overall"
	ModeGender            Mode = "By Gender"
	ModeMaritalStatus     Mode = "By Marital Status"
	ModeDepartment        Mode = "By Department"
	ModeDepartmentTopDown Mode = "By Department (Top-Down)"
)

var modeAliases = map[string]Mode{
	"overall":             ModeOverall,
	"gender":              ModeGender,
	"marital":             ModeMaritalStatus,
	"marital-status":      ModeMaritalStatus,
	"department":          ModeDepartment,
	"department-topdown":  ModeDepartmentTopDown,
	"department-top-down": ModeDepartmentTopDown,
	"topdown":             ModeDepartmentTopDown,
}

// Modes lists every supported mode in display order.
func Modes() []Mode {
	return []Mode{ModeOverall, ModeGender, ModeMaritalStatus, ModeDepartment, ModeDepartmentTopDown}
}

// ParseMode accepts a display name ("By Gender") or a short alias ("gender"),
// case-insensitively.
func ParseMode(s string) (Mode, error) {
	trimmed := strings.TrimSpace(s)
	for _, m := range Modes() {
		if strings.EqualFold(trimmed, string(m)) {
			return m, nil
		}
	}
	if m, ok := modeAliases[strings.ToLower(trimmed)]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Valid reports whether m is one of the supported modes.
func (m Mode) Valid() bool {
	for _, known := range Modes() {
		if m == known {
			return true
		}
	}
	return false
}

// metricLabel bounds the mode label on run metrics to the known modes.
func (m Mode) metricLabel() string {
	if !m.Valid() {
		return "invalid"
	}
	return string(m)
}

// TopDown reports whether the mode disaggregates the aggregate forecast.
func (m Mode) TopDown() bool {
	return m == ModeDepartmentTopDown
}

// lenses maps each bottom-up mode to the decomposer that produces its
// category series. Top-down reuses the department lens for its history.
func lenses(opts series.SplitOptions) map[Mode]series.Decomposer {
	departments := series.LabelSplit{Label: series.DepartmentLabel}
	return map[Mode]series.Decomposer{
		ModeOverall: series.Overall{},
		ModeGender: series.ShareSplit{
			Name:    "pct_female",
			Share:   series.FemaleShare,
			Labels:  [2]string{models.FemaleID, models.MaleID},
			Options: opts,
		},
		ModeMaritalStatus: series.ShareSplit{
			Name:    "pct_married",
			Share:   series.MarriedShare,
			Labels:  [2]string{models.MarriedID, models.UnmarriedID},
			Options: opts,
		},
		ModeDepartment:        departments,
		ModeDepartmentTopDown: departments,
	}
}
