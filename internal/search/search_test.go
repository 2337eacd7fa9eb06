package search

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/pixelsum/internal/opt"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
)

// diagonal returns a buffer whose value grows with x+y, so the brightest
// window of any size sits in the bottom-right corner.
func diagonal(w, h int) *pixelsum.Integral {
	pix := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pix[y*w+x] = uint8(x + y)
		}
	}
	return pixelsum.NewIntegral(pix, w, h)
}

// block returns a zero buffer with a 10x10 non-zero square at (40, 30).
func block(w, h int) *pixelsum.Integral {
	pix := make([]uint8, w*h)
	for y := 30; y < 40; y++ {
		for x := 40; x < 50; x++ {
			pix[y*w+x] = 7
		}
	}
	return pixelsum.NewIntegral(pix, w, h)
}

// fixed always proposes the same point.
func fixed(p ...float64) opt.Optimizer {
	return opt.Func(func(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
		return p, eval(p), nil
	})
}

func TestParseObjective(t *testing.T) {
	for in, want := range map[string]Objective{"": Mean, "mean": Mean, "density": Density} {
		got, err := ParseObjective(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseObjective("median")
	assert.Error(t, err)
}

func TestExhaustive(t *testing.T) {
	w, err := Exhaustive(diagonal(40, 30), 5, 4, Mean)
	require.NoError(t, err)
	assert.Equal(t, 35, w.X)
	assert.Equal(t, 26, w.Y)
	assert.Equal(t, 36*27, w.Evaluations)

	w, err = Exhaustive(block(120, 100), 10, 10, Density)
	require.NoError(t, err)
	assert.Equal(t, 40, w.X)
	assert.Equal(t, 30, w.Y)
	assert.Equal(t, 100.0, w.Score)
}

func TestExhaustive_TiesGoFirst(t *testing.T) {
	q := pixelsum.NewIntegral(make([]uint8, 16), 4, 4)
	w, err := Exhaustive(q, 2, 2, Mean)
	require.NoError(t, err)
	assert.Equal(t, 0, w.X)
	assert.Equal(t, 0, w.Y)
}

func TestLocate_MatchesExhaustive(t *testing.T) {
	q := diagonal(120, 100)

	want, err := Exhaustive(q, 10, 10, Mean)
	require.NoError(t, err)

	got, err := Locate(q, 10, 10, Mean, nil)
	require.NoError(t, err)
	assert.Equal(t, want.X, got.X)
	assert.Equal(t, want.Y, got.Y)
	assert.Equal(t, want.Score, got.Score)
}

func TestLocate_ClimbsFromStart(t *testing.T) {
	// (0.4, 0.4) lands on (44, 36), partly over the block
	got, err := Locate(block(120, 100), 10, 10, Density, fixed(0.4, 0.4))
	require.NoError(t, err)
	assert.Equal(t, 40, got.X)
	assert.Equal(t, 30, got.Y)
	assert.Equal(t, 100.0, got.Score)
}

func TestLocate_SmallBufferScansAll(t *testing.T) {
	q := diagonal(20, 20)
	got, err := Locate(q, 4, 4, Mean, fixed(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 16, got.X)
	assert.Equal(t, 16, got.Y)
	assert.Equal(t, 17*17, got.Evaluations)
}

func TestLocate_OptimizerError(t *testing.T) {
	boom := errors.New("boom")
	o := opt.Func(func(func([]float64) float64, []float64, []float64) ([]float64, float64, error) {
		return nil, 0, boom
	})

	_, err := Locate(diagonal(120, 100), 10, 10, Mean, o)
	assert.ErrorIs(t, err, boom)
}

func TestLocate_WindowErrors(t *testing.T) {
	q := diagonal(8, 8)
	for _, size := range [][2]int{{0, 1}, {1, 0}, {9, 1}, {1, 9}} {
		_, err := Locate(q, size[0], size[1], Mean, nil)
		assert.ErrorIs(t, err, ErrWindow, "window %v", size)
	}

	_, err := Exhaustive(q, 2, 2, Objective("median"))
	assert.Error(t, err)
}

func TestLocate_WholeBuffer(t *testing.T) {
	got, err := Locate(diagonal(8, 8), 8, 8, Mean, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got.X)
	assert.Equal(t, 0, got.Y)
	assert.InDelta(t, 7.0, got.Score, 1e-12)
}

func TestWindowRect(t *testing.T) {
	r := Window{X: 3, Y: 4, Width: 5, Height: 2}.Rect()
	assert.Equal(t, 7, r.X1)
	assert.Equal(t, 5, r.Y1)
	assert.Equal(t, 10, r.Area())
}

func TestLocate_OnNaiveVector(t *testing.T) {
	pix := make([]uint8, 64*64)
	pix[20*64+33] = 200
	q := pixelsum.NewNaiveVector(pix, 64, 64)

	got, err := Locate(q, 1, 1, Mean, nil)
	require.NoError(t, err)
	assert.Equal(t, 33, got.X)
	assert.Equal(t, 20, got.Y)
}
