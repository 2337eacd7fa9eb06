package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsum/internal/bench"
	"github.com/cwbudde/pixelsum/internal/kernel"
)

var (
	logLevel   string
	kernelName string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pixelsum",
	Short: "Constant-time rectangle sums over 8-bit images",
	Long: `pixelsum builds summed-area tables over grayscale buffers and answers
sum, average and non-zero queries for any rectangle in constant time.
It verifies the engines against a naive oracle, benchmarks them and serves
them over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		switch logLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		// stdout carries tables and query results
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)

		if kernelName != "" {
			b, err := kernel.ParseBackend(kernelName)
			if err != nil {
				return err
			}
			kernel.Use(b)
			slog.Debug("Kernel selected", "backend", b)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&kernelName, "kernel", "", "Kernel backend (scalar, swar, highway); default is $"+kernel.EnvBackend+" or detected")
}

// stdout is where commands print results; tests call run functions with a
// nil command.
func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

// sourceFlags selects a pixel buffer: a generated pattern or an image file.
type sourceFlags struct {
	pattern string
	image   string
	width   int
	height  int
	seed    int64
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.pattern, "pattern", "ramp", "Generated pattern (ramp, ones, max, random, nonzero, zeros)")
	cmd.Flags().StringVar(&s.image, "image", "", "Image file (PNG, JPEG, GIF) converted to gray; overrides --pattern")
	cmd.Flags().IntVar(&s.width, "width", 4096, "Buffer width")
	cmd.Flags().IntVar(&s.height, "height", 4096, "Buffer height")
	cmd.Flags().Int64Var(&s.seed, "seed", 0, "Seed for the random pattern")
}

func (s *sourceFlags) load() (*bench.Dataset, error) {
	if s.image != "" {
		return bench.LoadImage(s.image)
	}
	pix, err := bench.Generate(s.pattern, s.width, s.height, s.seed)
	if err != nil {
		return nil, fmt.Errorf("failed to generate %s buffer: %w", s.pattern, err)
	}
	return &bench.Dataset{Pattern: s.pattern, Width: s.width, Height: s.height, Seed: s.seed, Pix: pix}, nil
}
