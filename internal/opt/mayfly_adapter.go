package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest population mayfly accepts.
const MinPopulation = 20

// MayflyAdapter runs the mayfly swarm optimizer.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly optimizer. popSize is raised to MinPopulation.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  max(popSize, MinPopulation),
		seed:     seed,
	}
}

// Run minimizes eval. Mayfly only supports one bound for all dimensions,
// so every lower[i] and every upper[i] must be equal; callers normalize
// their parameters to a shared box.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	lo, hi, err := uniformBounds(lower, upper)
	if err != nil {
		return nil, 0, err
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = len(lower)
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = lo
	config.UpperBound = hi
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly: %w", err)
	}
	return result.GlobalBest.Position, result.GlobalBest.Cost, nil
}
