package bench

import (
	"math/rand"

	"github.com/cwbudde/pixelsum/internal/rect"
)

// Query is a named rectangle, corners as given to the engines.
type Query struct {
	Name string
	rect.Rect
}

// StandardQueries returns the seven classic shapes: full buffer, center
// pixel, center quarter, the same quarter inverted, and three regions that
// reach 10 pixels past one or both edges.
func StandardQueries(w, h int) []Query {
	return []Query{
		{"(0, 0, 100%, 100%)", rect.New(0, 0, w-1, h-1)},
		{"(50%, 50%, 50%, 50%)", rect.New(w/2, h/2, w/2, h/2)},
		{"(25%, 25%, 75%, 75%)", rect.New(w/4, h/4, w*3/4, h*3/4)},
		{"(75%, 75%, 25%, 25%)", rect.New(w*3/4, h*3/4, w/4, h/4)},
		{"(50%, 50%, 110%, 110%)", rect.New(w/2, h/2, w+10, h+10)},
		{"(-10, -10, 50%, 50%)", rect.New(-10, -10, w/2, h/2)},
		{"(-10, -10, 110%, 110%)", rect.New(-10, -10, w+10, h+10)},
	}
}

// RandomQueries returns n seeded rectangles with corners in any order,
// reaching up to a quarter of the buffer size past each edge.
func RandomQueries(w, h, n int, seed int64) []Query {
	rng := rand.New(rand.NewSource(seed))
	coord := func(size int) int {
		margin := max(size/4, 1)
		return rng.Intn(size+2*margin) - margin
	}

	qs := make([]Query, n)
	for i := range qs {
		qs[i] = Query{
			Name: "random",
			Rect: rect.New(coord(w), coord(h), coord(w), coord(h)),
		}
	}
	return qs
}
