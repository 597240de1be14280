// Dlttap decodes DLT (Diagnostic Log and Trace) streams.
//
// It reads .dlt capture files (optionally zstd compressed), follows
// growing captures, connects to running DLT daemons and renders the
// decoded frames as text or JSON lines.
//
// Usage:
//
//	dlttap [command] [flags]
//
// See 'dlttap --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/dlttap/internal/config"
	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/filter"
	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/logging"
	"github.com/muurk/dlttap/internal/ui"
	"github.com/muurk/dlttap/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dlttap",
	Short: "DLT log stream decoder",
	Long: `Decode AUTOSAR DLT (Diagnostic Log and Trace) streams.

Reads .dlt capture files, follows growing captures and connects to DLT
daemons. Decoded frames are printed as aligned text or JSON lines on
stdout; diagnostics go to stderr when --log-level is set.`,
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Global flags
var (
	logLevel   string
	logFormat  string
	configPath string
	colorMode  string
	outFormat  string
	profile    string
	minLevel   string
	appIDs     []string
	ctxIDs     []string
	ecuIDs     []string
	noResync   bool
)

// Resolved in setup
var (
	cfg        *config.Config
	colorOut   bool
	decProfile dlt.Profile
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); logs go to stderr")
	pf.StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	pf.StringVar(&configPath, "config", "", "Config file (default: platform config dir)")
	pf.StringVar(&colorMode, "color", ui.ColorAuto, "Colour output (auto, always, never)")
	pf.StringVar(&outFormat, "format", format.FormatText, "Output format (text, json)")
	pf.StringVar(&profile, "profile", "", "Decoder profile (default, autosar); overrides the config file")
	pf.StringVar(&minLevel, "min-level", "", "Drop log messages less severe than this level (fatal ... verbose)")
	pf.StringSliceVar(&appIDs, "app", nil, "Only show these application ids (repeatable, comma separated)")
	pf.StringSliceVar(&ctxIDs, "ctx", nil, "Only show these context ids")
	pf.StringSliceVar(&ecuIDs, "ecu", nil, "Only show these ECU ids")
	pf.BoolVar(&noResync, "no-resync", false, "Stop at the first undecodable frame instead of skipping it")

	rootCmd.AddCommand(versionCmd)
}

// setup runs before every command: logging, config, colours, profile
func setup(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeWithFormat(logLevel, logFormat); err != nil {
		return err
	}

	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if colorOut, err = ui.SetColorMode(colorMode, os.Stdout); err != nil {
		return err
	}

	name := cfg.Decoder.Profile
	if profile != "" {
		name = profile
	}
	if decProfile, err = dlt.ParseProfile(name); err != nil {
		return err
	}
	return nil
}

// recordFilter merges the filter flags over the config file's filter;
// any filter flag replaces the config filter entirely.
func recordFilter() (*filter.Filter, error) {
	if minLevel == "" && len(appIDs) == 0 && len(ctxIDs) == 0 && len(ecuIDs) == 0 {
		return filter.FromConfig(cfg.Filter)
	}
	return filter.New(minLevel, appIDs, ctxIDs, ecuIDs)
}

var versionVerbose bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if versionVerbose {
			ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("dlttap", version.Fields())
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), "dlttap "+version.Full())
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "Show build details")
}
