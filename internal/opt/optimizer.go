// Package opt wraps continuous minimizers behind a small interface.
package opt

import "errors"

// ErrBounds is returned when lower and upper do not describe a box the
// optimizer can search.
var ErrBounds = errors.New("invalid search bounds")

// Optimizer minimizes eval over the box [lower, upper]. The dimensionality
// is len(lower).
type Optimizer interface {
	Run(eval func([]float64) float64, lower, upper []float64) (best []float64, cost float64, err error)
}

// Func adapts a plain function to Optimizer.
type Func func(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error)

// Run calls f.
func (f Func) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	return f(eval, lower, upper)
}

// uniformBounds reports the shared bound of every dimension.
func uniformBounds(lower, upper []float64) (lo, hi float64, err error) {
	if len(lower) == 0 || len(lower) != len(upper) {
		return 0, 0, ErrBounds
	}
	lo, hi = lower[0], upper[0]
	if lo >= hi {
		return 0, 0, ErrBounds
	}
	for i := range lower {
		if lower[i] != lo || upper[i] != hi {
			return 0, 0, ErrBounds
		}
	}
	return lo, hi, nil
}
