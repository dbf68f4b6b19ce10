package series

import "fmt"

// EdgePolicy decides how months before the first or after the last known
// share are filled, where linear interpolation has no anchor on one side.
type EdgePolicy string

const (
	// EdgeZero fills unanchored edges with 0.
	EdgeZero EdgePolicy = "zero"
	// EdgeNearest carries the nearest known share outward.
	EdgeNearest EdgePolicy = "nearest"
)

// ParseEdgePolicy converts a config value to an EdgePolicy.
func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch EdgePolicy(s) {
	case EdgeZero, EdgeNearest:
		return EdgePolicy(s), nil
	case "":
		return EdgeZero, nil
	default:
		return "", fmt.Errorf("unknown edge fill policy %q (want zero or nearest)", s)
	}
}

// Interpolate fills the months where present is false. Interior gaps are
// linearly interpolated between the nearest known neighbours; edges follow
// policy. If nothing is present every month is 0.
func Interpolate(values []float64, present []bool, policy EdgePolicy) []float64 {
	out := make([]float64, len(values))

	known := make([]int, 0, len(values))
	for i := range values {
		if present[i] {
			known = append(known, i)
			out[i] = values[i]
		}
	}
	if len(known) == 0 {
		return out
	}

	first, last := known[0], known[len(known)-1]
	for i := 0; i < first; i++ {
		if policy == EdgeNearest {
			out[i] = values[first]
		}
	}
	for i := last + 1; i < len(values); i++ {
		if policy == EdgeNearest {
			out[i] = values[last]
		}
	}

	for k := 1; k < len(known); k++ {
		a, b := known[k-1], known[k]
		if b-a < 2 {
			continue
		}
		span := float64(b - a)
		for i := a + 1; i < b; i++ {
			frac := float64(i-a) / span
			out[i] = values[a] + frac*(values[b]-values[a])
		}
	}
	return out
}
