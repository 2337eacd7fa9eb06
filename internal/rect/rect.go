package rect

import (
	"fmt"
	"math"
)

// Rect holds two corners of a pixel region. All coordinates are inclusive.
//
// A Rect is not required to be ordered or inside any bounds: callers pass raw
// query corners and use Normalized and Intersected to get a canonical region.
type Rect struct {
	X0, Y0 int
	X1, Y1 int
}

// New creates a Rect from two corners in any order.
func New(x0, y0, x1, y1 int) Rect {
	return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1}
}

// Clamp bounds v into [lo, hi] as min(hi, max(v, lo)).
func Clamp(v, lo, hi int) int {
	return min(hi, max(v, lo))
}

// Normalized returns a copy with X0 <= X1 and Y0 <= Y1, swapping each axis
// independently.
func (r Rect) Normalized() Rect {
	return Rect{
		X0: min(r.X0, r.X1),
		Y0: min(r.Y0, r.Y1),
		X1: max(r.X0, r.X1),
		Y1: max(r.Y0, r.Y1),
	}
}

// Intersected clamps every coordinate independently into the given bounds.
//
// No emptiness check is made. Applied to a normalized Rect that overlaps the
// bounds the result is a valid, possibly single-pixel, region.
func (r Rect) Intersected(minX, minY, maxX, maxY int) Rect {
	return Rect{
		X0: Clamp(r.X0, minX, maxX),
		Y0: Clamp(r.Y0, minY, maxY),
		X1: Clamp(r.X1, minX, maxX),
		Y1: Clamp(r.Y1, minY, maxY),
	}
}

// Overlaps reports whether a normalized Rect shares at least one pixel with
// the bounds.
func (r Rect) Overlaps(minX, minY, maxX, maxY int) bool {
	return r.X0 <= maxX && r.X1 >= minX && r.Y0 <= maxY && r.Y1 >= minY
}

// Width is |X1-X0|+1, valid before normalization too. It saturates at
// math.MaxInt for corners at opposite ends of the int range.
func (r Rect) Width() int {
	return saturate(span(r.X0, r.X1))
}

// Height is |Y1-Y0|+1, valid before normalization too. It saturates like Width.
func (r Rect) Height() int {
	return saturate(span(r.Y0, r.Y1))
}

// Extent returns width and height as float64 without overflow, for any corners.
func (r Rect) Extent() (w, h float64) {
	return float64(span(r.X0, r.X1)) + 1, float64(span(r.Y0, r.Y1)) + 1
}

// Area returns Width*Height, saturating at math.MaxInt.
func (r Rect) Area() int {
	w, h := r.Width(), r.Height()
	if w > math.MaxInt/h {
		return math.MaxInt
	}
	return w * h
}

// Empty reports whether the corners are out of order.
func (r Rect) Empty() bool {
	return r.X0 > r.X1 || r.Y0 > r.Y1
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X0, r.Y0, r.X1, r.Y1)
}

// span is |b-a| without overflow: the difference of two ints always fits
// in a uint.
func span(a, b int) uint {
	if a > b {
		a, b = b, a
	}
	return uint(b) - uint(a)
}

func saturate(d uint) int {
	if d >= math.MaxInt {
		return math.MaxInt
	}
	return int(d) + 1
}
