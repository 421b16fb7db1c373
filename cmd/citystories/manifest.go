package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"citystories/pkg/config"
	"citystories/pkg/manifest"
	"citystories/pkg/ui"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Inspect written manifests",
}

var manifestShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Summarise the last written manifest",
	Long: `Read the manifest (by default the one under the configured output root)
and print one line per account.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runManifestShow,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.AddCommand(manifestShowCmd)
}

func runManifestShow(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		cfg, err := config.LoadUnvalidated(configFile, flagsFromGlobals())
		if err != nil {
			return err
		}
		path = cfg.ManifestPath()
	}

	m, err := manifest.Load(path)
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Info("Generated", m.GeneratedAt.Local().Format("2006-01-02 15:04:05"))
	for _, key := range m.Accounts.Keys() {
		acc, _ := m.Accounts.Get(key)
		if acc.Error != "" {
			p.Error(fmt.Sprintf("%s (@%s)", acc.Name, acc.Handle), acc.Error)
			continue
		}
		p.Info(acc.Name, fmt.Sprintf("@%s  %d stories", acc.Handle, len(acc.Stories)))
	}
	return nil
}
