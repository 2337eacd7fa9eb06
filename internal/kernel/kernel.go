package kernel

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ajroetker/go-highway/hwy"
	"golang.org/x/sys/cpu"
)

// Byte-run kernels used by the pixel-sum engines.
//
// Every backend provides the same four primitives over a contiguous run of
// 8-bit samples:
//   - Sum:                widening sum of all samples
//   - CountNonZero:       number of non-zero samples
//   - SumAndCountNonZero: both in a single pass
//   - FillRow:            one row of the summed-area and non-zero tables
//
// Architecture-specific implementations:
//   - scalar.go:  reference loops, always correct, used to validate the others
//   - swar.go:    8 byte lanes packed in a uint64 (portable)
//   - highway.go: go-highway vectors (SSE2/AVX2/AVX-512/NEON lanes)
//
// All backends must be bit-identical to scalar.

// Backend indicates which implementation serves the kernels
type Backend int

const (
	BackendScalar Backend = iota
	BackendSWAR
	BackendHighway
)

func (b Backend) String() string {
	switch b {
	case BackendScalar:
		return "scalar"
	case BackendSWAR:
		return "swar"
	case BackendHighway:
		return "highway"
	default:
		return "unknown"
	}
}

// ParseBackend maps a backend name (as printed by String) to a Backend.
// "auto" and the empty string select the detected backend.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return detected, nil
	case "scalar":
		return BackendScalar, nil
	case "swar":
		return BackendSWAR, nil
	case "highway", "hwy", "simd":
		return BackendHighway, nil
	default:
		return BackendScalar, fmt.Errorf("unknown kernel backend: %q", name)
	}
}

// Set bundles one backend's kernels.
type Set struct {
	Backend Backend

	Sum                func(data []uint8) uint32
	CountNonZero       func(data []uint8) uint32
	SumAndCountNonZero func(data []uint8) (sum, count uint32)

	// FillRow writes one row of both tables. above and aboveNonZero are the
	// previous table rows, or nil for the first row. All slices have len(src)
	// elements.
	FillRow func(src []uint8, above, aboveNonZero, sum, nonZero []uint32)
}

var sets = map[Backend]Set{
	BackendScalar: {
		Backend:            BackendScalar,
		Sum:                sumScalar,
		CountNonZero:       countNonZeroScalar,
		SumAndCountNonZero: sumAndCountNonZeroScalar,
		FillRow:            fillRowScalar,
	},
	BackendSWAR: {
		Backend:            BackendSWAR,
		Sum:                sumSWAR,
		CountNonZero:       countNonZeroSWAR,
		SumAndCountNonZero: sumAndCountNonZeroSWAR,
		FillRow:            fillRowSWAR,
	},
	BackendHighway: {
		Backend:            BackendHighway,
		Sum:                sumHighway,
		CountNonZero:       countNonZeroHighway,
		SumAndCountNonZero: sumAndCountNonZeroHighway,
		FillRow:            fillRowHighway,
	},
}

// EnvBackend names the environment variable that overrides detection.
const EnvBackend = "PIXELSUM_KERNEL"

var (
	// detected is the best backend for this CPU, fixed at init
	detected Backend
	// active serves Active(); Use may replace it before any engine is built
	active Set
)

func init() {
	detected = detect()
	active = sets[detected]

	if name := os.Getenv(EnvBackend); name != "" {
		b, err := ParseBackend(name)
		if err != nil {
			slog.Warn("Ignoring kernel override", "env", EnvBackend, "value", name, "error", err)
		} else {
			active = sets[b]
		}
	}

	slog.Debug("Pixel kernels initialized",
		"backend", active.Backend,
		"detected", detected,
		"hwy_target", hwy.CurrentName(),
		"lanes", Lanes(active.Backend),
	)
}

// detect picks highway only when go-highway runs real vector units, since its
// portable fallback allocates per operation. SWAR is the portable default.
func detect() Backend {
	if hwy.NoSimdEnv() {
		return BackendScalar
	}

	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		switch hwy.CurrentLevel() {
		case hwy.DispatchAVX2, hwy.DispatchAVX512, hwy.DispatchNEON, hwy.DispatchSVE, hwy.DispatchSME:
			return BackendHighway
		}
	}

	return BackendSWAR
}

// Active returns the kernels selected at startup.
func Active() Set {
	return active
}

// Detected reports the backend chosen by CPU detection, ignoring overrides.
func Detected() Backend {
	return detected
}

// ForBackend returns the kernels of a specific backend. It panics on an
// unknown backend.
func ForBackend(b Backend) Set {
	s, ok := sets[b]
	if !ok {
		panic(fmt.Sprintf("kernel.ForBackend: unknown backend %d", int(b)))
	}
	return s
}

// Use replaces the active kernels. It is meant for process startup (flags,
// config) and is not synchronized with concurrent readers.
func Use(b Backend) {
	active = ForBackend(b)
	slog.Debug("Pixel kernels selected", "backend", b, "lanes", Lanes(b))
}

// Backends lists every available backend, scalar first.
func Backends() []Backend {
	return []Backend{BackendScalar, BackendSWAR, BackendHighway}
}

// Lanes reports how many samples a backend handles per step.
func Lanes(b Backend) int {
	switch b {
	case BackendSWAR:
		return swarLanes
	case BackendHighway:
		return hwy.MaxLanes[uint8]()
	default:
		return 1
	}
}
