package bench

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/cpuid/v2"

	"github.com/cwbudde/pixelsum/internal/config"
	"github.com/cwbudde/pixelsum/internal/kernel"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
	"github.com/cwbudde/pixelsum/internal/store"
)

// Operation names used in checks.
const (
	OpSum            = "sum"
	OpAverage        = "average"
	OpNonZeroCount   = "nonzero-count"
	OpNonZeroAverage = "nonzero-average"
)

// DefaultEpsilon is the float64 machine epsilon.
const DefaultEpsilon = 0x1p-52

// Tracer receives every check. *store.TraceWriter implements it.
type Tracer interface {
	Write(entry store.TraceEntry) error
}

// Progress is reported after each query.
type Progress struct {
	Case      int // zero-based index of the running scenario
	Cases     int
	CaseName  string
	Query     int // queries finished in this case
	Queries   int
	Checks    int // checks so far, over all cases
	Failed    int // failed checks so far, over all cases
	Completed bool
}

// Options controls a run. The zero value uses the active kernels and
// machine epsilon.
type Options struct {
	// ID for the report; a new UUID when empty
	ID string

	Epsilon float64

	// Kernels overrides both the config's kernel and kernel.Active()
	Kernels *kernel.Set

	Progress func(Progress)
	Trace    Tracer
}

func (o *Options) kernels(cfg *config.Config) kernel.Set {
	if o.Kernels != nil {
		return *o.Kernels
	}
	if cfg.Kernel != "" {
		// validated by cfg.Validate
		b, _ := kernel.ParseBackend(cfg.Kernel)
		return kernel.ForBackend(b)
	}
	return kernel.Active()
}

// Run executes every scenario of cfg and returns the report. A cancelled
// context stops the run between queries and returns ctx.Err().
func Run(ctx context.Context, cfg *config.Config, opts Options) (*store.Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if opts.Epsilon == 0 {
		opts.Epsilon = cfg.Epsilon
	}
	if opts.Epsilon == 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}

	set := opts.kernels(cfg)
	report := &store.Report{
		ID:        opts.ID,
		Name:      cfg.Name,
		CreatedAt: time.Now(),
		Backend:   set.Backend.String(),
		CPU:       cpuid.CPU.BrandName,
	}

	slog.Info("Benchmark started", "id", report.ID, "name", cfg.Name, "scenarios", len(cfg.Scenarios), "backend", set.Backend)
	start := time.Now()

	r := runner{opts: opts, kernels: set, cases: len(cfg.Scenarios)}
	for i, s := range cfg.Scenarios {
		res, err := r.runCase(ctx, i, s)
		if err != nil {
			return nil, err
		}
		report.Cases = append(report.Cases, res)
	}
	report.Duration = time.Since(start)

	if opts.Progress != nil {
		opts.Progress(Progress{Case: r.cases, Cases: r.cases, Checks: r.checks, Failed: r.failed, Completed: true})
	}

	slog.Info("Benchmark finished", "id", report.ID, "checks", report.Checks(), "failed", report.Failed(), "duration", report.Duration)
	return report, nil
}

type runner struct {
	opts    Options
	kernels kernel.Set
	cases   int
	checks  int
	failed  int
}

func (r *runner) runCase(ctx context.Context, index int, s config.Scenario) (store.CaseResult, error) {
	data, err := LoadDataset(s)
	if err != nil {
		return store.CaseResult{}, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	kind, err := pixelsum.ParseKind(s.Engine)
	if err != nil {
		return store.CaseResult{}, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	res := store.CaseResult{
		Name:        s.Name,
		Engine:      string(kind),
		Pattern:     data.Pattern,
		Width:       data.Width,
		Height:      data.Height,
		Seed:        data.Seed,
		Fingerprint: data.Fingerprint(),
	}

	oracle := pixelsum.NewNaive(data.Pix, data.Width, data.Height)

	buildStart := time.Now()
	candidate, err := pixelsum.New(kind, data.Pix, data.Width, data.Height, pixelsum.WithKernels(r.kernels))
	res.BuildTime = time.Since(buildStart)
	if err != nil {
		return store.CaseResult{}, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	slog.Debug("Engine built", "case", s.Name, "engine", kind, "size", fmt.Sprintf("%dx%d", data.Width, data.Height), "build", res.BuildTime)

	queries := StandardQueries(data.Width, data.Height)
	queries = append(queries, RandomQueries(data.Width, data.Height, s.RandomQueries, s.Seed+1)...)

	for qi, q := range queries {
		if err := ctx.Err(); err != nil {
			return store.CaseResult{}, err
		}

		for _, c := range r.compare(oracle, candidate, q) {
			r.checks++
			res.QueryTime += c.Duration
			if c.OK {
				res.Passed++
			} else {
				res.Failed++
				r.failed++
				res.Failures = append(res.Failures, c)
				slog.Warn("Check failed", "case", s.Name, "query", q.Name, "rect", q.Rect.String(), "op", c.Op, "want", c.Want, "got", c.Got)
			}

			if r.opts.Trace != nil {
				if err := r.opts.Trace.Write(store.TraceEntry{Case: s.Name, Check: c, Timestamp: time.Now()}); err != nil {
					return store.CaseResult{}, fmt.Errorf("failed to write trace: %w", err)
				}
			}
		}

		if r.opts.Progress != nil {
			r.opts.Progress(Progress{
				Case:     index,
				Cases:    r.cases,
				CaseName: s.Name,
				Query:    qi + 1,
				Queries:  len(queries),
				Checks:   r.checks,
				Failed:   r.failed,
			})
		}
	}

	slog.Info("Case finished", "case", s.Name, "engine", kind, "passed", res.Passed, "failed", res.Failed, "build", res.BuildTime, "query", res.QueryTime)
	return res, nil
}

// compare runs the four operations on both engines; only the candidate is timed.
func (r *runner) compare(oracle, candidate pixelsum.Querier, q Query) []store.Check {
	x0, y0, x1, y1 := q.X0, q.Y0, q.X1, q.Y1
	check := func(op string) store.Check {
		return store.Check{Query: q.Name, X0: x0, Y0: y0, X1: x1, Y1: y1, Op: op}
	}

	checks := make([]store.Check, 0, 4)

	c := check(OpSum)
	want := oracle.PixelSum(x0, y0, x1, y1)
	start := time.Now()
	got := candidate.PixelSum(x0, y0, x1, y1)
	c.Duration = time.Since(start)
	c.Want, c.Got, c.OK = float64(want), float64(got), got == want
	checks = append(checks, c)

	c = check(OpAverage)
	wantAvg := oracle.PixelAverage(x0, y0, x1, y1)
	start = time.Now()
	gotAvg := candidate.PixelAverage(x0, y0, x1, y1)
	c.Duration = time.Since(start)
	c.Want, c.Got, c.OK = wantAvg, gotAvg, r.equal(gotAvg, wantAvg)
	checks = append(checks, c)

	c = check(OpNonZeroCount)
	wantCount := oracle.NonZeroCount(x0, y0, x1, y1)
	start = time.Now()
	gotCount := candidate.NonZeroCount(x0, y0, x1, y1)
	c.Duration = time.Since(start)
	c.Want, c.Got, c.OK = float64(wantCount), float64(gotCount), gotCount == wantCount
	checks = append(checks, c)

	c = check(OpNonZeroAverage)
	wantAvg = oracle.NonZeroAverage(x0, y0, x1, y1)
	start = time.Now()
	gotAvg = candidate.NonZeroAverage(x0, y0, x1, y1)
	c.Duration = time.Since(start)
	c.Want, c.Got, c.OK = wantAvg, gotAvg, r.equal(gotAvg, wantAvg)
	checks = append(checks, c)

	return checks
}

func (r *runner) equal(a, b float64) bool {
	return math.Abs(a-b) <= r.opts.Epsilon
}
