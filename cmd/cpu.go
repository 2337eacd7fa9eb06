package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/klauspost/cpuid/v2"
	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsum/internal/kernel"
)

var cpuCmd = &cobra.Command{
	Use:   "cpu",
	Short: "Show CPU features and the selected kernel",
	Run: func(cmd *cobra.Command, args []string) {
		printCPU(stdout(cmd))
	},
}

func init() {
	rootCmd.AddCommand(cpuCmd)
}

// simdFeatures are the instruction sets the kernels can take advantage of.
var simdFeatures = []cpuid.FeatureID{
	cpuid.SSE2, cpuid.SSSE3, cpuid.SSE4, cpuid.AVX, cpuid.AVX2, cpuid.AVX512F, cpuid.AVX512BW, cpuid.ASIMD, cpuid.SVE,
}

func printCPU(w io.Writer) {
	c := cpuid.CPU

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Brand\t%s\n", c.BrandName)
	fmt.Fprintf(tw, "Vendor\t%s\n", c.VendorString)
	fmt.Fprintf(tw, "Cores\t%d physical, %d logical\n", c.PhysicalCores, c.LogicalCores)
	fmt.Fprintf(tw, "Cache\tL1d %s, L2 %s, L3 %s, line %d B\n",
		cacheSize(c.Cache.L1D), cacheSize(c.Cache.L2), cacheSize(c.Cache.L3), c.CacheLine)

	var have, missing []string
	for _, f := range simdFeatures {
		if c.Supports(f) {
			have = append(have, f.String())
		} else {
			missing = append(missing, f.String())
		}
	}
	fmt.Fprintf(tw, "SIMD\t%s\n", strings.Join(have, " "))
	fmt.Fprintf(tw, "Missing\t%s\n", strings.Join(missing, " "))

	active := kernel.Active().Backend
	fmt.Fprintf(tw, "Kernel\t%s (detected %s, %d lanes)\n", active, kernel.Detected(), kernel.Lanes(active))
	tw.Flush()
}

func cacheSize(n int) string {
	if n <= 0 {
		return "?"
	}
	return formatBytes(int64(n))
}
