// Package cmd provides CLI commands for the imagine binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagine/cli/config"
)

// defaultConfigPath is tried when --config is not given.
const defaultConfigPath = "imagine.yaml"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode",
	}

	// ConfigFlag points at an imagine.yaml config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to imagine.yaml config file",
	}

	// BaseURLFlag overrides the backend base URL from config.
	BaseURLFlag = &cli.StringFlag{
		Name:  "base-url",
		Usage: "Backend base URL (overrides config)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		TUIFlag,
		ConfigFlag,
		BaseURLFlag,
		SessionFlag,
	}
}

// loadConfig loads the config file named by --config, or the default
// imagine.yaml when present. A missing default file is not an error;
// an explicit --config that cannot be loaded is.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return config.Load(defaultConfigPath)
	}
	return &config.Config{}, nil
}

// resolveBaseURL applies flag-over-config precedence for the backend URL.
func resolveBaseURL(c *cli.Context, cfg *config.Config) (string, error) {
	if u := c.String("base-url"); u != "" {
		return u, nil
	}
	if cfg.BaseURL != "" {
		return cfg.BaseURL, nil
	}
	return "", fmt.Errorf("no backend base URL: set --base-url or base_url in imagine.yaml")
}
