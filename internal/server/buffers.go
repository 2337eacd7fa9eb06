package server

import (
	"log/slog"
	"sync"

	"github.com/zyedidia/generic/cache"

	"github.com/cwbudde/pixelsum/internal/bench"
	"github.com/cwbudde/pixelsum/internal/kernel"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
)

// DefaultCacheSize is the number of built engines kept by default. A
// 4096x4096 engine holds about 150 MB of tables.
const DefaultCacheSize = 8

// Buffers keeps recently used summed-area engines, keyed by the content
// fingerprint of their source buffer.
type Buffers struct {
	mu      sync.Mutex
	lru     *cache.Cache[string, *pixelsum.Integral]
	kernels kernel.Set
}

// NewBuffers creates a registry holding up to capacity engines.
func NewBuffers(capacity int, kernels kernel.Set) *Buffers {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Buffers{
		lru:     cache.New[string, *pixelsum.Integral](capacity),
		kernels: kernels,
	}
}

// Add builds an engine for pix unless an identical buffer is cached.
// created is false when the cached engine was reused.
func (b *Buffers) Add(pix []uint8, width, height int) (id string, e *pixelsum.Integral, created bool, err error) {
	if err := pixelsum.Validate(len(pix), width, height); err != nil {
		return "", nil, false, err
	}

	id = bench.Fingerprint(pix, width, height)
	if e, ok := b.Get(id); ok {
		return id, e, false, nil
	}

	e = pixelsum.NewIntegral(pix, width, height, pixelsum.WithKernels(b.kernels))

	b.mu.Lock()
	b.lru.Put(id, e)
	size := b.lru.Size()
	b.mu.Unlock()

	slog.Debug("Buffer cached", "id", id, "width", width, "height", height, "cached", size)
	return id, e, true, nil
}

// Get returns a cached engine and marks it recently used.
func (b *Buffers) Get(id string) (*pixelsum.Integral, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lru.Get(id)
}

// Len reports the number of cached engines.
func (b *Buffers) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lru.Size()
}
