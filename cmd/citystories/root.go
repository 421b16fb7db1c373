package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"citystories/pkg/ui"
)

var (
	// Version information, set at build time
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "citystories",
	Short: "Collect recent posts of tracked city accounts into a manifest",
	Long: `citystories fetches the most recent timeline items of a fixed list of
Instagram city accounts, stores their images and videos under one directory
per account and writes a manifest.json describing everything that was
stored.

A failing account never aborts the run: it appears in the manifest with an
empty story list and an error message.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure. Configuration
// problems exit with status 2.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.NewPrinter(os.Stderr).Error(err.Error())
		if isConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file, YAML or TOML (default: ./citystories.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only print errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print every stored asset")

	rootCmd.SetVersionTemplate(`citystories {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
