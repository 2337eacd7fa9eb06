package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsum/internal/kernel"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(stdout(cmd), "pixelsum version %s (%s, %s/%s, kernel %s)\n",
			version, runtime.Version(), runtime.GOOS, runtime.GOARCH, kernel.Active().Backend)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
