package cli

import (
	"fmt"
	"runtime"

	"github.com/nghyane/msgproxy/internal/buildinfo"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(c *cobra.Command, _ []string) {
		out := c.OutOrStdout()
		fmt.Fprintf(out, "msgproxy %s\n", buildinfo.Version)
		fmt.Fprintf(out, "Commit: %s\n", buildinfo.Commit)
		fmt.Fprintf(out, "Built: %s\n", buildinfo.BuildDate)
		fmt.Fprintf(out, "Go: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
