// Package cli implements the msgproxy command line.
package cli

import (
	"fmt"
	"os"

	"github.com/nghyane/msgproxy/internal/buildinfo"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "msgproxy",
	Short: "Message-protocol to chat-completion proxy",
	Long: `msgproxy accepts message-protocol requests (/v1/messages), translates them to
chat-completion requests for a compatible backend, and translates the replies back,
including streamed responses.

Running msgproxy without a subcommand starts the server.`,
	Version:       buildinfo.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ./config.yaml, then $XDG_CONFIG_HOME/msgproxy/config.yaml)")
}
