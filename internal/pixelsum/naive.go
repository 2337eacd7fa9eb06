package pixelsum

import (
	"slices"

	"github.com/cwbudde/pixelsum/internal/kernel"
	"github.com/cwbudde/pixelsum/internal/rect"
)

// Naive rescans the requested region on every query, reading pixels outside
// the buffer as 0. It is the reference the other engines are tested against;
// query cost grows with the requested (not clamped) area.
type Naive struct {
	pix           []uint8
	width, height int
}

// NewNaive copies pix. It panics on invalid dimensions.
func NewNaive(pix []uint8, width, height int) *Naive {
	mustValidate("NewNaive", pix, width, height)
	return &Naive{pix: slices.Clone(pix), width: width, height: height}
}

func (e *Naive) Clone() *Naive {
	return &Naive{pix: slices.Clone(e.pix), width: e.width, height: e.height}
}

func (e *Naive) Width() int { return e.width }
func (e *Naive) Height() int { return e.height }

func (e *Naive) inBound(x, y int) bool {
	return x >= 0 && y >= 0 && x < e.width && y < e.height
}

func (e *Naive) at(x, y int) uint8 {
	if !e.inBound(x, y) {
		return 0
	}
	return e.pix[y*e.width+x]
}

// scan visits the requested region, skipping rows and columns that cannot
// be inside the buffer.
func (e *Naive) scan(x0, y0, x1, y1 int) (sum uint32, count int) {
	r := rect.New(x0, y0, x1, y1).Normalized()
	for y := max(r.Y0, -1); y <= min(r.Y1, e.height); y++ {
		for x := max(r.X0, -1); x <= min(r.X1, e.width); x++ {
			v := e.at(x, y)
			sum += uint32(v)
			if v != 0 {
				count++
			}
		}
	}
	return sum, count
}

func (e *Naive) PixelSum(x0, y0, x1, y1 int) uint32 {
	sum, _ := e.scan(x0, y0, x1, y1)
	return sum
}

func (e *Naive) PixelAverage(x0, y0, x1, y1 int) float64 {
	return average(e.PixelSum(x0, y0, x1, y1), x0, y0, x1, y1)
}

func (e *Naive) NonZeroCount(x0, y0, x1, y1 int) int {
	_, count := e.scan(x0, y0, x1, y1)
	return count
}

func (e *Naive) NonZeroAverage(x0, y0, x1, y1 int) float64 {
	return nonZeroAverage(e.scan(x0, y0, x1, y1))
}

// NaiveVector clamps the region once and runs the vector kernels over each
// row slice.
type NaiveVector struct {
	pix           []uint8
	width, height int
	k             kernel.Set
}

// NewNaiveVector copies pix. It panics on invalid dimensions.
func NewNaiveVector(pix []uint8, width, height int, opts ...Option) *NaiveVector {
	mustValidate("NewNaiveVector", pix, width, height)
	o := buildOptions(opts)
	return &NaiveVector{pix: slices.Clone(pix), width: width, height: height, k: o.kernels}
}

func (e *NaiveVector) Clone() *NaiveVector {
	return &NaiveVector{pix: slices.Clone(e.pix), width: e.width, height: e.height, k: e.k}
}

func (e *NaiveVector) Width() int { return e.width }
func (e *NaiveVector) Height() int { return e.height }
func (e *NaiveVector) Backend() kernel.Backend { return e.k.Backend }

// row returns the samples of row y between columns x0 and x1 inclusive.
func (e *NaiveVector) row(y, x0, x1 int) []uint8 {
	off := y * e.width
	return e.pix[off+x0 : off+x1+1]
}

func (e *NaiveVector) PixelSum(x0, y0, x1, y1 int) uint32 {
	r, ok := clip(x0, y0, x1, y1, e.width, e.height)
	if !ok {
		return 0
	}

	var sum uint32
	for y := r.Y0; y <= r.Y1; y++ {
		sum += e.k.Sum(e.row(y, r.X0, r.X1))
	}
	return sum
}

func (e *NaiveVector) PixelAverage(x0, y0, x1, y1 int) float64 {
	return average(e.PixelSum(x0, y0, x1, y1), x0, y0, x1, y1)
}

func (e *NaiveVector) NonZeroCount(x0, y0, x1, y1 int) int {
	r, ok := clip(x0, y0, x1, y1, e.width, e.height)
	if !ok {
		return 0
	}

	var count uint32
	for y := r.Y0; y <= r.Y1; y++ {
		count += e.k.CountNonZero(e.row(y, r.X0, r.X1))
	}
	return int(count)
}

func (e *NaiveVector) NonZeroAverage(x0, y0, x1, y1 int) float64 {
	r, ok := clip(x0, y0, x1, y1, e.width, e.height)
	if !ok {
		return 0
	}

	var sum, count uint32
	for y := r.Y0; y <= r.Y1; y++ {
		s, c := e.k.SumAndCountNonZero(e.row(y, r.X0, r.X1))
		sum += s
		count += c
	}
	return nonZeroAverage(sum, int(count))
}
