package pixelsum

import (
	"fmt"

	"github.com/cwbudde/pixelsum/internal/kernel"
)

// Integral answers queries in constant time from precomputed summed-area
// tables. It is immutable after construction and safe for concurrent reads.
type Integral struct {
	t       tables
	backend kernel.Backend
}

// NewIntegral copies pix (row-major, width*height samples) and builds the
// sum and non-zero tables. It panics if the dimensions are invalid or the
// buffer length does not match; use Validate or New for untrusted input.
func NewIntegral(pix []uint8, width, height int, opts ...Option) *Integral {
	mustValidate("NewIntegral", pix, width, height)
	o := buildOptions(opts)

	return &Integral{
		t:       buildTables(pix, width, height, o.kernels),
		backend: o.kernels.Backend,
	}
}

// Clone returns an independent deep copy.
func (e *Integral) Clone() *Integral {
	return &Integral{t: e.t.clone(), backend: e.backend}
}

func (e *Integral) Width() int { return e.t.width }
func (e *Integral) Height() int { return e.t.height }

// Backend reports which kernels built the tables.
func (e *Integral) Backend() kernel.Backend { return e.backend }

// SumAt returns the raw sum table cell, the sum over (0,0)-(x,y).
func (e *Integral) SumAt(x, y int) uint32 {
	e.checkCell("SumAt", x, y)
	return e.t.sum[y*e.t.width+x]
}

// NonZeroAt returns the raw non-zero table cell.
func (e *Integral) NonZeroAt(x, y int) uint32 {
	e.checkCell("NonZeroAt", x, y)
	return e.t.nonZero[y*e.t.width+x]
}

func (e *Integral) checkCell(op string, x, y int) {
	if x < 0 || y < 0 || x >= e.t.width || y >= e.t.height {
		panic(fmt.Sprintf("Integral.%s: (%d,%d) outside %dx%d", op, x, y, e.t.width, e.t.height))
	}
}

// PixelSum returns the sum over the clamped region. A region entirely
// outside the buffer sums to 0, like Naive; it is not clamped onto the
// nearest edge pixel.
func (e *Integral) PixelSum(x0, y0, x1, y1 int) uint32 {
	r, ok := clip(x0, y0, x1, y1, e.t.width, e.t.height)
	if !ok {
		return 0
	}
	return e.t.areaSum(e.t.sum, r.X0, r.Y0, r.X1, r.Y1)
}

// PixelAverage is PixelSum divided by the requested, unclamped area.
func (e *Integral) PixelAverage(x0, y0, x1, y1 int) float64 {
	return average(e.PixelSum(x0, y0, x1, y1), x0, y0, x1, y1)
}

// NonZeroCount returns the number of non-zero pixels in the clamped region.
func (e *Integral) NonZeroCount(x0, y0, x1, y1 int) int {
	r, ok := clip(x0, y0, x1, y1, e.t.width, e.t.height)
	if !ok {
		return 0
	}
	return int(e.t.areaSum(e.t.nonZero, r.X0, r.Y0, r.X1, r.Y1))
}

// NonZeroAverage is the mean of the non-zero pixels in the clamped region,
// or 0 if there are none.
func (e *Integral) NonZeroAverage(x0, y0, x1, y1 int) float64 {
	r, ok := clip(x0, y0, x1, y1, e.t.width, e.t.height)
	if !ok {
		return 0
	}
	sum := e.t.areaSum(e.t.sum, r.X0, r.Y0, r.X1, r.Y1)
	count := e.t.areaSum(e.t.nonZero, r.X0, r.Y0, r.X1, r.Y1)
	return nonZeroAverage(sum, int(count))
}
