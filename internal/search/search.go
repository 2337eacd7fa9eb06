// Package search finds the best fixed-size window in a pixel buffer. Each
// candidate costs one O(1) query on a summed-area engine, so both a full
// scan and an optimizer-driven search are practical at 4096x4096.
package search

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/pixelsum/internal/opt"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
	"github.com/cwbudde/pixelsum/internal/rect"
)

// Objective selects what a window maximizes.
type Objective string

const (
	// Mean maximizes PixelAverage.
	Mean Objective = "mean"
	// Density maximizes NonZeroCount.
	Density Objective = "density"
)

// ErrWindow is returned for windows that do not fit the buffer.
var ErrWindow = errors.New("window does not fit the buffer")

// ParseObjective accepts "mean" and "density"; empty means Mean.
func ParseObjective(s string) (Objective, error) {
	switch Objective(s) {
	case "", Mean:
		return Mean, nil
	case Density:
		return Density, nil
	}
	return "", fmt.Errorf("unknown objective: %q (want mean or density)", s)
}

// Window is a located window and its score.
type Window struct {
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Score       float64 `json:"score"`
	Evaluations int     `json:"evaluations"`
}

// Rect returns the inclusive rectangle covered by w.
func (w Window) Rect() rect.Rect {
	return rect.New(w.X, w.Y, w.X+w.Width-1, w.Y+w.Height-1)
}

type scorer struct {
	q      pixelsum.Querier
	w, h   int
	nx, ny int // number of positions along each axis
	obj    Objective
	evals  int
}

func newScorer(q pixelsum.Querier, winW, winH int, obj Objective) (*scorer, error) {
	if _, err := ParseObjective(string(obj)); err != nil {
		return nil, err
	}
	if winW < 1 || winH < 1 || winW > q.Width() || winH > q.Height() {
		return nil, fmt.Errorf("%w: %dx%d in %dx%d", ErrWindow, winW, winH, q.Width(), q.Height())
	}
	if obj == "" {
		obj = Mean
	}
	return &scorer{
		q:   q,
		w:   winW,
		h:   winH,
		nx:  q.Width() - winW + 1,
		ny:  q.Height() - winH + 1,
		obj: obj,
	}, nil
}

func (s *scorer) score(x, y int) float64 {
	s.evals++
	x1, y1 := x+s.w-1, y+s.h-1
	if s.obj == Density {
		return float64(s.q.NonZeroCount(x, y, x1, y1))
	}
	return s.q.PixelAverage(x, y, x1, y1)
}

func (s *scorer) window(x, y int, score float64) Window {
	return Window{X: x, Y: y, Width: s.w, Height: s.h, Score: score, Evaluations: s.evals}
}

// Exhaustive scores every window position and returns the best one. Ties
// go to the first position in row-major order.
func Exhaustive(q pixelsum.Querier, winW, winH int, obj Objective) (Window, error) {
	s, err := newScorer(q, winW, winH, obj)
	if err != nil {
		return Window{}, err
	}

	bestX, bestY, best := 0, 0, math.Inf(-1)
	for y := 0; y < s.ny; y++ {
		for x := 0; x < s.nx; x++ {
			if v := s.score(x, y); v > best {
				bestX, bestY, best = x, y, v
			}
		}
	}
	return s.window(bestX, bestY, best), nil
}

// Locate searches window positions with o over the unit square, maps the
// optimum to the nearest position and then climbs to a local maximum over
// the eight neighbours. Buffers with few positions are scanned exhaustively.
// A nil optimizer uses DefaultOptimizer.
func Locate(q pixelsum.Querier, winW, winH int, obj Objective, o opt.Optimizer) (Window, error) {
	s, err := newScorer(q, winW, winH, obj)
	if err != nil {
		return Window{}, err
	}
	if s.nx*s.ny <= exhaustiveLimit {
		return Exhaustive(q, winW, winH, obj)
	}
	if o == nil {
		o = DefaultOptimizer()
	}

	toPos := func(p []float64) (int, int) {
		return unit(p[0], s.nx), unit(p[1], s.ny)
	}
	best, _, err := o.Run(func(p []float64) float64 {
		return -s.score(toPos(p))
	}, []float64{0, 0}, []float64{1, 1})
	if err != nil {
		return Window{}, fmt.Errorf("locate: %w", err)
	}

	x, y := toPos(best)
	score := s.score(x, y)
	x, y, score = s.climb(x, y, score)

	slog.Debug("Window located", "x", x, "y", y, "score", score, "objective", s.obj, "evaluations", s.evals)
	return s.window(x, y, score), nil
}

// exhaustiveLimit is the position count up to which Locate scans everything.
const exhaustiveLimit = 4096

// DefaultOptimizer is the optimizer Locate uses when none is given.
func DefaultOptimizer() opt.Optimizer {
	return opt.NewMayfly(60, opt.MinPopulation, 1)
}

// unit maps v in [0, 1] to one of n positions.
func unit(v float64, n int) int {
	i := int(math.Round(v * float64(n-1)))
	return min(max(i, 0), n-1)
}

// climb moves to the best strictly better neighbour until there is none.
func (s *scorer) climb(x, y int, score float64) (int, int, float64) {
	for {
		bx, by, best := x, y, score
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= s.nx || ny >= s.ny {
					continue
				}
				if v := s.score(nx, ny); v > best {
					bx, by, best = nx, ny, v
				}
			}
		}
		if bx == x && by == y {
			return x, y, score
		}
		x, y, score = bx, by, best
	}
}
