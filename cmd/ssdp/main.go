// Ssdp is a Simple Service Discovery Protocol tool.
//
// It searches for UPnP devices, watches a network's announcements, announces
// a configured device tree and exposes what it has discovered over HTTP.
//
// Usage:
//
//	ssdp [command] [flags]
//
// See 'ssdp --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/ssdp/internal/config"
	"github.com/muurk/ssdp/internal/logging"
	"github.com/muurk/ssdp/internal/urls"
	"github.com/muurk/ssdp/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	ifaceName  string
	logLevel   string

	// cfg is loaded before any subcommand runs
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ssdp",
	Short: "SSDP discovery and announcement tool",
	Long: `A tool for the Simple Service Discovery Protocol used by UPnP.

Searches the local network for devices and services, keeps a live view of
their announcements, and can announce a device tree of its own.

Settings are read from the configuration file (see 'ssdp config path');
flags override the file.

Protocol reference: ` + urls.DeviceArchitecture,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: OS config directory)")
	rootCmd.PersistentFlags().StringVarP(&ifaceName, "interface", "i", "", "Network interface to use (default: all multicast interfaces)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")

	rootCmd.AddCommand(versionCmd)
}

// setup loads the configuration, applies flag overrides and starts logging.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	if ifaceName != "" {
		cfg.Network.Interface = ifaceName
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	return logging.Initialize(cfg.LogLevel)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ssdp %s (commit: %s)\n", version.Version, version.Commit)
		fmt.Printf("product token: %s\n", version.Product())
	},
}
