// Package pixelsum answers rectangle aggregate queries (sum, average,
// non-zero count, non-zero average) over an 8-bit grayscale buffer.
//
// Three engines share one query contract:
//   - Naive rescans the requested region pixel by pixel
//   - NaiveVector rescans the clamped region row by row with vector kernels
//   - Integral precomputes summed-area tables and answers in O(1)
//
// Query corners may come in any order and may lie outside the buffer; they
// are normalized and clamped. Averages divide by the requested (unclamped)
// extent, so a region that reaches past the buffer edge averages toward zero.
package pixelsum

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/pixelsum/internal/kernel"
	"github.com/cwbudde/pixelsum/internal/rect"
)

const (
	// MaxSide is the side of the largest square buffer.
	MaxSide = 4096
	// MaxPixels bounds width*height so 255*MaxPixels fits in a uint32.
	MaxPixels = MaxSide * MaxSide
)

var (
	ErrDimensions = errors.New("invalid buffer dimensions")
	ErrBufferSize = errors.New("buffer length does not match dimensions")
)

// Validate checks the construction preconditions for a buffer of n samples.
func Validate(n, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrDimensions, width, height)
	}
	if width > MaxPixels/height {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDimensions, width, height, MaxPixels)
	}
	if n != width*height {
		return fmt.Errorf("%w: got %d samples for %dx%d", ErrBufferSize, n, width, height)
	}
	return nil
}

// mustValidate panics on precondition violations; op names the caller.
func mustValidate(op string, pix []uint8, width, height int) {
	if err := Validate(len(pix), width, height); err != nil {
		panic(op + ": " + err.Error())
	}
}

// Querier is the query contract shared by all engines.
type Querier interface {
	Width() int
	Height() int

	PixelSum(x0, y0, x1, y1 int) uint32
	PixelAverage(x0, y0, x1, y1 int) float64
	NonZeroCount(x0, y0, x1, y1 int) int
	NonZeroAverage(x0, y0, x1, y1 int) float64
}

// Kind selects an engine.
type Kind string

const (
	KindNaive       Kind = "naive"
	KindNaiveVector Kind = "naive-vector"
	KindIntegral    Kind = "integral"
)

// Kinds lists every engine kind, oracle first.
func Kinds() []Kind {
	return []Kind{KindNaive, KindNaiveVector, KindIntegral}
}

// ParseKind accepts the Kind names plus a few aliases.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "naive":
		return KindNaive, nil
	case "naive-vector", "naivevector", "vector", "naive-v2":
		return KindNaiveVector, nil
	case "integral", "sat":
		return KindIntegral, nil
	default:
		return "", fmt.Errorf("unknown engine kind: %q", name)
	}
}

// Option configures an engine.
type Option func(*options)

type options struct {
	kernels kernel.Set
}

// WithKernels selects the kernels used for construction and row scans.
// The default is kernel.Active().
func WithKernels(set kernel.Set) Option {
	return func(o *options) {
		o.kernels = set
	}
}

func buildOptions(opts []Option) options {
	o := options{kernels: kernel.Active()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New validates the input and builds an engine of the given kind.
// Unlike the New* constructors it reports bad input as an error.
func New(kind Kind, pix []uint8, width, height int, opts ...Option) (Querier, error) {
	if err := Validate(len(pix), width, height); err != nil {
		return nil, err
	}

	switch kind {
	case KindNaive:
		return NewNaive(pix, width, height), nil
	case KindNaiveVector:
		return NewNaiveVector(pix, width, height, opts...), nil
	case KindIntegral:
		return NewIntegral(pix, width, height, opts...), nil
	default:
		return nil, fmt.Errorf("unknown engine kind: %q", kind)
	}
}

// average divides by the requested extent |x1-x0|+1 by |y1-y0|+1.
func average(sum uint32, x0, y0, x1, y1 int) float64 {
	w, h := rect.New(x0, y0, x1, y1).Extent()
	return float64(sum) / (w * h)
}

// nonZeroAverage is sum/count, or 0 for an all-zero region.
func nonZeroAverage(sum uint32, count int) float64 {
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// clip normalizes and clamps a query to the buffer. ok is false when the
// region lies completely outside; engines then answer 0 instead of reading
// the edge pixel that plain clamping would produce.
func clip(x0, y0, x1, y1, width, height int) (r rect.Rect, ok bool) {
	r = rect.New(x0, y0, x1, y1).Normalized()
	if !r.Overlaps(0, 0, width-1, height-1) {
		return r, false
	}
	return r.Intersected(0, 0, width-1, height-1), true
}
