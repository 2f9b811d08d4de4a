package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nghyane/msgproxy/internal/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		path := cfgFile
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = "config.yaml"
		}
		return DoInitConfig(c.OutOrStdout(), path, initForce)
	},
}

// DoInitConfig writes the default config to path. An existing file is kept unless force is set.
func DoInitConfig(out io.Writer, path string, force bool) error {
	if fileExists(path) && !force {
		fmt.Fprintf(out, "Config already exists: %s\n", path)
		fmt.Fprintln(out, "Use init --force to overwrite")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, config.GenerateDefaultConfigYAML(), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(out, "Created: %s\n", path)
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing config")
	rootCmd.AddCommand(initCmd)
}
