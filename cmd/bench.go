package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsum/internal/bench"
	"github.com/cwbudde/pixelsum/internal/config"
	"github.com/cwbudde/pixelsum/internal/store"
)

var (
	benchConfigPath string
	benchEngine     string
	benchQueries    int
	benchEpsilon    float64
	benchDataDir    string
	benchTrace      bool
	benchSource     sourceFlags
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Verify engines against the naive oracle and time them",
	Long: `Runs benchmark scenarios. Each scenario builds an engine over a buffer
and compares every query with the naive per-pixel engine.

Without flags the built-in suite runs. --config loads scenarios from a YAML
or JSON file; --engine runs a single scenario described by the buffer flags.
The command fails when any check fails.`,
	Example: `  pixelsum bench
  pixelsum bench --config bench.yaml --data-dir ./data --trace
  pixelsum bench --engine integral --pattern random --width 359 --height 257 --random-queries 1000`,
	RunE: runBench,
}

func init() {
	benchCmd.Flags().StringVar(&benchConfigPath, "config", "", "Scenario file (YAML or JSON)")
	benchCmd.Flags().StringVar(&benchEngine, "engine", "", "Run one scenario with this engine (naive, naive-vector, integral)")
	benchCmd.Flags().IntVar(&benchQueries, "random-queries", 0, "Random queries added to the standard shapes of the single scenario")
	benchCmd.Flags().Float64Var(&benchEpsilon, "epsilon", 0, "Tolerance for averages (default machine epsilon)")
	benchCmd.Flags().StringVar(&benchDataDir, "data-dir", "", "Save the report under this directory")
	benchCmd.Flags().BoolVar(&benchTrace, "trace", false, "Write every check to trace.jsonl (needs --data-dir)")
	benchSource.register(benchCmd)
	benchCmd.MarkFlagsMutuallyExclusive("config", "engine")
	rootCmd.AddCommand(benchCmd)
}

// benchConfig picks the scenarios from --config, --engine or the defaults.
func benchConfig() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case benchConfigPath != "":
		c, err := config.Load(benchConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	case benchEngine != "":
		s := config.Scenario{
			Name:          benchEngine,
			Engine:        benchEngine,
			Image:         benchSource.image,
			Width:         benchSource.width,
			Height:        benchSource.height,
			Seed:          benchSource.seed,
			RandomQueries: benchQueries,
		}
		if s.Image == "" {
			s.Pattern = benchSource.pattern
		}
		cfg = &config.Config{Name: "cli", Scenarios: []config.Scenario{s}}
	default:
		cfg = config.Default()
	}

	if benchEpsilon != 0 {
		cfg.Epsilon = benchEpsilon
	}
	if benchTrace {
		cfg.Trace = true
	}
	if kernelName != "" {
		cfg.Kernel = kernelName
	}
	return cfg, cfg.Validate()
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := benchConfig()
	if err != nil {
		return err
	}
	if cfg.Trace && benchDataDir == "" {
		return fmt.Errorf("--trace needs --data-dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		opts bench.Options
		st   *store.FSStore
	)
	if benchDataDir != "" {
		st, err = store.NewFSStore(benchDataDir)
		if err != nil {
			return fmt.Errorf("failed to create report store: %w", err)
		}
	}
	if cfg.Trace {
		// the trace lives next to the report, so the ID is fixed up front
		opts.ID = uuid.New().String()
		tw, err := store.NewTraceWriter(st.BaseDir(), opts.ID)
		if err != nil {
			return err
		}
		defer tw.Close()
		opts.Trace = tw
	}

	report, err := bench.Run(ctx, cfg, opts)
	if err != nil {
		return err
	}

	out := stdout(cmd)
	printReport(out, report)

	if st != nil {
		if err := st.SaveReport(report); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nReport saved to %s\n", st.ReportDir(report.ID))
	}

	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d checks failed", n, report.Checks())
	}
	return nil
}

// printReport writes a per-case table followed by every failed check.
func printReport(w io.Writer, r *store.Report) {
	fmt.Fprintf(w, "%s  backend=%s", r.Name, r.Backend)
	if r.CPU != "" {
		fmt.Fprintf(w, "  cpu=%q", r.CPU)
	}
	fmt.Fprintf(w, "\n\n")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tENGINE\tSIZE\tDATA\tBUILD\tQUERIES\tPASSED\tFAILED")
	for _, c := range r.Cases {
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%s\t%s\t%s\t%d\t%d\n",
			c.Name, c.Engine, c.Width, c.Height, c.Pattern,
			c.BuildTime, c.QueryTime, c.Passed, c.Failed)
	}
	tw.Flush()

	for _, c := range r.Cases {
		for _, f := range c.Failures {
			fmt.Fprintf(w, "FAIL %s %s (%d, %d, %d, %d) %s: want %v, got %v\n",
				c.Name, f.Query, f.X0, f.Y0, f.X1, f.Y1, f.Op, f.Want, f.Got)
		}
	}

	status := "OK"
	if !r.OK() {
		status = "FAILED"
	}
	fmt.Fprintf(w, "\n%s: %d checks, %d failed in %s\n", status, r.Checks(), r.Failed(), r.Duration)
	slog.Debug("Report printed", "id", r.ID)
}
