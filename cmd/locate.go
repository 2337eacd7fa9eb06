package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsum/internal/opt"
	"github.com/cwbudde/pixelsum/internal/pixelsum"
	"github.com/cwbudde/pixelsum/internal/search"
)

var (
	locateWinW       int
	locateWinH       int
	locateObjective  string
	locateIters      int
	locatePop        int
	locateSeed       int64
	locateExhaustive bool
	locateSource     sourceFlags
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Find the brightest or densest window",
	Long: `Searches for the window of the given size with the highest average
(--objective mean) or the most non-zero pixels (--objective density).
The mayfly optimizer proposes a position that is then refined by hill
climbing; --exhaustive scores every position instead.`,
	Example: `  pixelsum locate --image stars.png --win-width 32 --win-height 32
  pixelsum locate --pattern random --seed 3 --win-width 64 --win-height 16 --objective density --exhaustive`,
	RunE: runLocate,
}

func init() {
	locateCmd.Flags().IntVar(&locateWinW, "win-width", 16, "Window width")
	locateCmd.Flags().IntVar(&locateWinH, "win-height", 16, "Window height")
	locateCmd.Flags().StringVar(&locateObjective, "objective", "mean", "What to maximize (mean, density)")
	locateCmd.Flags().IntVar(&locateIters, "iters", 60, "Optimizer iterations")
	locateCmd.Flags().IntVar(&locatePop, "pop", opt.MinPopulation, "Optimizer population size")
	locateCmd.Flags().Int64Var(&locateSeed, "opt-seed", 1, "Optimizer seed")
	locateCmd.Flags().BoolVar(&locateExhaustive, "exhaustive", false, "Score every position")
	locateSource.register(locateCmd)
	rootCmd.AddCommand(locateCmd)
}

func runLocate(cmd *cobra.Command, args []string) error {
	objective, err := search.ParseObjective(locateObjective)
	if err != nil {
		return err
	}
	data, err := locateSource.load()
	if err != nil {
		return err
	}

	q := pixelsum.NewIntegral(data.Pix, data.Width, data.Height)

	start := time.Now()
	var win search.Window
	if locateExhaustive {
		win, err = search.Exhaustive(q, locateWinW, locateWinH, objective)
	} else {
		win, err = search.Locate(q, locateWinW, locateWinH, objective, opt.NewMayfly(locateIters, locatePop, locateSeed))
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout(cmd), "window %dx%d at (%d, %d), %s %g (%d evaluations in %s)\n",
		win.Width, win.Height, win.X, win.Y, objective, win.Score, win.Evaluations, time.Since(start))
	return nil
}
