package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsum/internal/pixelsum"
)

var (
	queryEngine string
	querySource sourceFlags
)

var queryCmd = &cobra.Command{
	Use:   "query x0 y0 x1 y1",
	Short: "Answer one rectangle query",
	Long: `Builds an engine over a buffer and prints sum, average, non-zero count
and non-zero average for the rectangle. Corners may be in any order and
outside the buffer; put negative coordinates after --.`,
	Example: `  pixelsum query --pattern ones --width 100 --height 100 10 10 19 19
  pixelsum query --image photo.png -- -10 -10 50 50`,
	Args: cobra.ExactArgs(4),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryEngine, "engine", "integral", "Engine (naive, naive-vector, integral)")
	querySource.register(queryCmd)
	rootCmd.AddCommand(queryCmd)
}

func parseCorners(args []string) ([4]int, error) {
	var c [4]int
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return c, fmt.Errorf("corner %d: %q is not an integer", i+1, a)
		}
		c[i] = v
	}
	return c, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	c, err := parseCorners(args)
	if err != nil {
		return err
	}
	kind, err := pixelsum.ParseKind(queryEngine)
	if err != nil {
		return err
	}
	data, err := querySource.load()
	if err != nil {
		return err
	}

	start := time.Now()
	q, err := pixelsum.New(kind, data.Pix, data.Width, data.Height)
	if err != nil {
		return err
	}
	built := time.Since(start)

	printQuery(stdout(cmd), q, c)
	fmt.Fprintf(stdout(cmd), "engine %s over %dx%d %s, built in %s\n", kind, data.Width, data.Height, data.Pattern, built)
	return nil
}

func printQuery(w io.Writer, q pixelsum.Querier, c [4]int) {
	fmt.Fprintf(w, "rect (%d, %d, %d, %d)\n", c[0], c[1], c[2], c[3])
	fmt.Fprintf(w, "  sum              %d\n", q.PixelSum(c[0], c[1], c[2], c[3]))
	fmt.Fprintf(w, "  average          %g\n", q.PixelAverage(c[0], c[1], c[2], c[3]))
	fmt.Fprintf(w, "  nonzero count    %d\n", q.NonZeroCount(c[0], c[1], c[2], c[3]))
	fmt.Fprintf(w, "  nonzero average  %g\n", q.NonZeroAverage(c[0], c[1], c[2], c[3]))
}
