// Package bench compares pixel-sum engines against the naive oracle and
// measures construction and query times.
package bench

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"os"

	"github.com/dchest/siphash"

	"github.com/cwbudde/pixelsum/internal/config"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
)

// Dataset is a pixel buffer together with how it was produced.
type Dataset struct {
	Pattern string // generator name, or "image"
	Source  string // image path, empty for generated data
	Width   int
	Height  int
	Seed    int64
	Pix     []uint8
}

// Generate fills a width*height buffer with a named pattern:
//
//	ramp     i % 256
//	ones     1
//	max      255
//	random   seeded uniform bytes
//	nonzero  i%255 + 1
//	zeros    0
func Generate(pattern string, width, height int, seed int64) ([]uint8, error) {
	if err := pixelsum.Validate(width*height, width, height); err != nil {
		return nil, err
	}

	pix := make([]uint8, width*height)
	switch pattern {
	case "ramp":
		for i := range pix {
			pix[i] = uint8(i % 256)
		}
	case "ones":
		fill(pix, 1)
	case "max":
		fill(pix, 255)
	case "random":
		rng := rand.New(rand.NewSource(seed))
		rng.Read(pix)
	case "nonzero":
		for i := range pix {
			pix[i] = uint8(i%255 + 1)
		}
	case "zeros":
	default:
		return nil, fmt.Errorf("unknown pattern: %q", pattern)
	}
	return pix, nil
}

func fill(pix []uint8, v uint8) {
	for i := range pix {
		pix[i] = v
	}
}

// FromImage converts any image to row-major 8-bit gray.
func FromImage(img image.Image) (pix []uint8, width, height int) {
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()

	if g, ok := img.(*image.Gray); ok && g.Stride == width && b.Min == (image.Point{}) {
		return append([]uint8(nil), g.Pix[:width*height]...), width, height
	}

	pix = make([]uint8, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			pix[y*width+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
		}
	}
	return pix, width, height
}

// LoadImage decodes a PNG, JPEG or GIF file into 8-bit gray.
func LoadImage(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	pix, w, h := FromImage(img)
	if err := pixelsum.Validate(len(pix), w, h); err != nil {
		return nil, fmt.Errorf("image %s: %w", path, err)
	}
	return &Dataset{Pattern: "image", Source: path, Width: w, Height: h, Pix: pix}, nil
}

// LoadDataset produces the data a scenario describes.
func LoadDataset(s config.Scenario) (*Dataset, error) {
	if s.Image != "" {
		return LoadImage(s.Image)
	}

	pix, err := Generate(s.Pattern, s.Width, s.Height, s.Seed)
	if err != nil {
		return nil, err
	}
	return &Dataset{Pattern: s.Pattern, Width: s.Width, Height: s.Height, Seed: s.Seed, Pix: pix}, nil
}

// fingerprintKey is the fixed second half of the siphash key; the first
// half carries the dimensions so equal bytes in different shapes differ.
const fingerprintKey = 0x7069786c73756d00

// Fingerprint returns a 64-bit hex content hash of a buffer and its shape.
func Fingerprint(pix []uint8, width, height int) string {
	k0 := uint64(width)<<32 | uint64(uint32(height))
	return fmt.Sprintf("%016x", siphash.Hash(k0, fingerprintKey, pix))
}

// Fingerprint of the dataset.
func (d *Dataset) Fingerprint() string {
	return Fingerprint(d.Pix, d.Width, d.Height)
}
