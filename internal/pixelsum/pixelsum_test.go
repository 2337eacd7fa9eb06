package pixelsum

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/pixelsum/internal/kernel"
)

// queriesFor returns the fixed query shapes plus random ones, some of which
// reach past the buffer or come with inverted corners
func queriesFor(w, h int, n int, seed int64) [][4]int {
	qs := [][4]int{
		{0, 0, w - 1, h - 1},
		{w / 2, h / 2, w / 2, h / 2},
		{w / 4, h / 4, 3 * w / 4, 3 * h / 4},
		{3 * w / 4, 3 * h / 4, w / 4, h / 4},
		{w / 2, h / 2, w + w/10, h + h/10},
		{-w / 10, -h / 10, w / 2, h / 2},
		{-w / 10, -h / 10, w + w/10, h + h/10},
		{0, 0, 0, 0},
		{w - 1, h - 1, w - 1, h - 1},
		{-4, -4, -1, -1},
	}

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		qs = append(qs, [4]int{
			rng.Intn(w+w/2) - w/4,
			rng.Intn(h+h/2) - h/4,
			rng.Intn(w+w/2) - w/4,
			rng.Intn(h+h/2) - h/4,
		})
	}
	return qs
}

// TestEngines_OracleEquivalence checks every engine and backend against Naive
func TestEngines_OracleEquivalence(t *testing.T) {
	sizes := []struct {
		width, height int
	}{
		{1, 1},
		{1, 9},
		{9, 1},
		{4, 4},
		{17, 23},
		{64, 64},
		{359, 257},
	}

	for _, sz := range sizes {
		pix := randomBuffer(sz.width, sz.height, int64(sz.width*1000+sz.height))
		oracle := NewNaive(pix, sz.width, sz.height)
		queries := queriesFor(sz.width, sz.height, 200, int64(sz.width))

		for _, b := range kernel.Backends() {
			for _, kind := range []Kind{KindNaiveVector, KindIntegral} {
				t.Run(fmt.Sprintf("%dx%d/%s/%s", sz.width, sz.height, kind, b), func(t *testing.T) {
					e, err := New(kind, pix, sz.width, sz.height, WithKernels(kernel.ForBackend(b)))
					if err != nil {
						t.Fatalf("New: %v", err)
					}

					for _, q := range queries {
						x0, y0, x1, y1 := q[0], q[1], q[2], q[3]
						if got, want := e.PixelSum(x0, y0, x1, y1), oracle.PixelSum(x0, y0, x1, y1); got != want {
							t.Fatalf("%v: PixelSum = %d, want %d", q, got, want)
						}
						if got, want := e.NonZeroCount(x0, y0, x1, y1), oracle.NonZeroCount(x0, y0, x1, y1); got != want {
							t.Fatalf("%v: NonZeroCount = %d, want %d", q, got, want)
						}
						if got, want := e.PixelAverage(x0, y0, x1, y1), oracle.PixelAverage(x0, y0, x1, y1); math.Abs(got-want) > epsilon {
							t.Fatalf("%v: PixelAverage = %f, want %f", q, got, want)
						}
						if got, want := e.NonZeroAverage(x0, y0, x1, y1), oracle.NonZeroAverage(x0, y0, x1, y1); math.Abs(got-want) > epsilon {
							t.Fatalf("%v: NonZeroAverage = %f, want %f", q, got, want)
						}
					}
				})
			}
		}
	}
}

// TestNaive_OutsideReadsZero verifies the per-pixel bound check
func TestNaive_OutsideReadsZero(t *testing.T) {
	e := NewNaive(filledBuffer(3, 3, 5), 3, 3)

	if got := e.PixelSum(-2, -2, 4, 4); got != 45 {
		t.Errorf("PixelSum = %d, want 45", got)
	}
	if got := e.NonZeroCount(-2, -2, 4, 4); got != 9 {
		t.Errorf("NonZeroCount = %d, want 9", got)
	}
	// 45 over the requested 7x7
	if got := e.PixelAverage(-2, -2, 4, 4); math.Abs(got-45.0/49.0) > epsilon {
		t.Errorf("PixelAverage = %f, want %f", got, 45.0/49.0)
	}
	if got := e.PixelSum(-1000000, 0, -999990, 2); got != 0 {
		t.Errorf("far left PixelSum = %d, want 0", got)
	}
}

// TestEngines_ExtremeCorners queries with corners at the ends of the int
// range; the averages stay positive and finite
func TestEngines_ExtremeCorners(t *testing.T) {
	pix := filledBuffer(4, 4, 1)
	engines := map[string]Querier{
		"naive":        NewNaive(pix, 4, 4),
		"naive-vector": NewNaiveVector(pix, 4, 4),
		"integral":     NewIntegral(pix, 4, 4),
	}

	for name, e := range engines {
		t.Run(name, func(t *testing.T) {
			if got := e.PixelSum(math.MinInt, 0, 0, 0); got != 1 {
				t.Errorf("PixelSum = %d, want 1", got)
			}
			got := e.PixelAverage(math.MinInt, 0, 0, 0)
			if want := 0x1p-63; got != want {
				t.Errorf("PixelAverage = %g, want %g", got, want)
			}
			got = e.PixelAverage(math.MinInt, math.MinInt, math.MaxInt, math.MaxInt)
			if want := 16 / (0x1p64 * 0x1p64); got != want {
				t.Errorf("full-range PixelAverage = %g, want %g", got, want)
			}
			if got := e.NonZeroAverage(math.MaxInt, math.MaxInt, math.MinInt, math.MinInt); got != 1 {
				t.Errorf("NonZeroAverage = %g, want 1", got)
			}
		})
	}
}

// TestEngines_Clone verifies naive clones are independent
func TestEngines_Clone(t *testing.T) {
	pix := rampBuffer(8, 8)

	n := NewNaive(pix, 8, 8)
	nc := n.Clone()
	nc.pix[1] = 0
	if n.PixelSum(1, 0, 1, 0) != 1 {
		t.Error("Naive clone shares storage")
	}

	v := NewNaiveVector(pix, 8, 8)
	vc := v.Clone()
	vc.pix[1] = 0
	if v.PixelSum(1, 0, 1, 0) != 1 {
		t.Error("NaiveVector clone shares storage")
	}
	if vc.Backend() != v.Backend() {
		t.Error("NaiveVector clone changed backend")
	}
}

// TestValidate covers every rejected input
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		n, w, h int
		wantErr error
	}{
		{"ok", 12, 4, 3, nil},
		{"max", MaxPixels, MaxSide, MaxSide, nil},
		{"strip", MaxPixels, MaxPixels, 1, nil},
		{"zero width", 0, 0, 3, ErrDimensions},
		{"negative height", 4, 4, -1, ErrDimensions},
		{"too large", MaxPixels + MaxSide, MaxSide + 1, MaxSide, ErrDimensions},
		{"short", 11, 4, 3, ErrBufferSize},
		{"long", 13, 4, 3, ErrBufferSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.n, tt.w, tt.h)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestNew_Errors verifies the factory reports bad input instead of panicking
func TestNew_Errors(t *testing.T) {
	if _, err := New(KindIntegral, make([]uint8, 3), 2, 2); !errors.Is(err, ErrBufferSize) {
		t.Errorf("expected ErrBufferSize, got %v", err)
	}
	if _, err := New(Kind("bogus"), make([]uint8, 4), 2, 2); err == nil {
		t.Error("expected error for unknown kind")
	}

	for _, kind := range Kinds() {
		q, err := New(kind, make([]uint8, 6), 3, 2)
		if err != nil {
			t.Fatalf("New(%s): %v", kind, err)
		}
		if q.Width() != 3 || q.Height() != 2 {
			t.Errorf("New(%s) is %dx%d, want 3x2", kind, q.Width(), q.Height())
		}
	}
}

// TestParseKind verifies names and aliases
func TestParseKind(t *testing.T) {
	for _, kind := range Kinds() {
		got, err := ParseKind(string(kind))
		if err != nil || got != kind {
			t.Errorf("ParseKind(%q) = %q, %v", kind, got, err)
		}
	}
	if got, _ := ParseKind(" SAT "); got != KindIntegral {
		t.Errorf("ParseKind(SAT) = %q", got)
	}
	if _, err := ParseKind("quadtree"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

// TestNaive_Preconditions verifies the oracle constructors panic like the SAT engine
func TestNaive_Preconditions(t *testing.T) {
	expectPanic(t, "NewNaive", func() { NewNaive(nil, 1, 1) })
	expectPanic(t, "NewNaiveVector", func() { NewNaiveVector(make([]uint8, 2), 1, 0) })
}

func BenchmarkEngines_Query(b *testing.B) {
	const w, h = 512, 512
	pix := randomBuffer(w, h, 1)
	queries := queriesFor(w, h, 64, 2)

	for _, kind := range []Kind{KindNaiveVector, KindIntegral} {
		e, err := New(kind, pix, w, h)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(string(kind), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				q := queries[i%len(queries)]
				e.PixelSum(q[0], q[1], q[2], q[3])
			}
		})
	}
}
