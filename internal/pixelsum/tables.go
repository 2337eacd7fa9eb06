package pixelsum

import (
	"slices"

	"github.com/cwbudde/pixelsum/internal/kernel"
)

// tables owns a source copy and its two summed-area tables. The three
// slices always share the same dimensions and are only copied together.
type tables struct {
	width, height int

	pix     []uint8
	sum     []uint32 // sum[y*width+x] = sum of pix over (0,0)-(x,y)
	nonZero []uint32 // same shape, counting non-zero samples
}

// buildTables copies pix and fills both tables row by row.
func buildTables(pix []uint8, width, height int, k kernel.Set) tables {
	n := width * height
	t := tables{
		width:   width,
		height:  height,
		pix:     slices.Clone(pix[:n]),
		sum:     make([]uint32, n),
		nonZero: make([]uint32, n),
	}

	// row 0 has nothing above it
	var above, aboveNonZero []uint32
	for y := 0; y < height; y++ {
		lo, hi := y*width, (y+1)*width
		sum := t.sum[lo:hi:hi]
		nonZero := t.nonZero[lo:hi:hi]

		k.FillRow(t.pix[lo:hi:hi], above, aboveNonZero, sum, nonZero)
		above, aboveNonZero = sum, nonZero
	}

	return t
}

func (t *tables) clone() tables {
	return tables{
		width:   t.width,
		height:  t.height,
		pix:     slices.Clone(t.pix),
		sum:     slices.Clone(t.sum),
		nonZero: slices.Clone(t.nonZero),
	}
}

// areaSum applies A + B - C - D over table for a clamped, ordered region.
//
//	B . . C
//	. +---+
//	. |   |
//	D +---A
//
// Corners left of column 0 or above row 0 contribute 0. The unsigned
// wraparound of the intermediate terms cancels out.
func (t *tables) areaSum(table []uint32, x0, y0, x1, y1 int) uint32 {
	w := t.width

	a := table[y1*w+x1]
	var b, c, d uint32
	if y0 > 0 {
		c = table[(y0-1)*w+x1]
		if x0 > 0 {
			b = table[(y0-1)*w+x0-1]
		}
	}
	if x0 > 0 {
		d = table[y1*w+x0-1]
	}

	return a + b - c - d
}
