package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"citystories/pkg/config"
	"citystories/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage citystories configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (CITYSTORIES_*)
  - .env files
  - Configuration file (YAML or TOML)
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every option",
	Long: `Write the default configuration to ./citystories.yaml, or to the path
given with --config. Existing files are never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Print the merged configuration as YAML. Credentials are masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "citystories.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	cfg := config.DefaultConfig()
	cfg.Instagram.SessionID = config.PlaceholderSessionID
	if err := cfg.Save(path); err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.Success("Configuration written to " + path)
	p.Dim("Replace YOUR_SESSION_ID or run 'citystories auth login' before the first run.")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadUnvalidated(configFile, flagsFromGlobals())
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(flagsFromGlobals(), profile); err != nil {
		return err
	}
	ui.NewPrinter(cmd.OutOrStdout()).Success("Configuration is valid")
	return nil
}

func flagsFromGlobals() map[string]interface{} {
	flags := make(map[string]interface{})
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return flags
}
