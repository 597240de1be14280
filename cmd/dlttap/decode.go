package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/ingest"
	"github.com/muurk/dlttap/internal/logging"
	"github.com/muurk/dlttap/internal/sink"
)

// Decoding flags
var (
	rawStream   bool
	fromStart   bool
	noReconnect bool
	dialTimeout time.Duration
)

func init() {
	decodeCmd.Flags().BoolVar(&rawStream, "raw", false, "Input has no storage headers (bare frames, as served by a daemon)")
	followCmd.Flags().BoolVar(&rawStream, "raw", false, "Input has no storage headers")
	followCmd.Flags().BoolVar(&fromStart, "from-start", false, "Decode existing file contents before following")
	tailCmd.Flags().BoolVar(&noReconnect, "no-reconnect", false, "Exit when the connection is lost")
	tailCmd.Flags().DurationVar(&dialTimeout, "dial-timeout", ingest.DefaultDialTimeout, "Connection attempt timeout")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(tailCmd)
}

var decodeCmd = &cobra.Command{
	Use:   "decode <file|glob>...",
	Short: "Decode capture files",
	Long: `Decode .dlt capture files and print one line per frame.

Arguments may be doublestar globs (quote them to keep the shell from
expanding). Files ending in .zst or .zstd are decompressed on the fly.
Files are decoded in sorted order as one stream each.`,
	Example: `  # Decode a capture
  dlttap decode trace.dlt

  # Only warnings and worse from the navigation app, as JSON
  dlttap decode 'logs/**/*.dlt.zst' --min-level warn --app NAV --format json

  # A raw frame dump without storage headers
  dlttap decode --raw dump.bin --profile autosar`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	paths, err := ingest.ExpandPatterns(args)
	if err != nil {
		return err
	}
	return runToStdout(cmd, &ingest.FileSource{Paths: paths, Storage: !rawStream})
}

var followCmd = &cobra.Command{
	Use:   "follow <glob>...",
	Short: "Follow growing capture files",
	Long: `Follow capture files as they grow, like tail -f.

Files matching the patterns are watched with fsnotify; files created later
that match are picked up automatically. A truncated file is decoded again
from the start.`,
	Example: `  # Follow every capture dlt-daemon writes
  dlttap follow '/var/log/dlt/**/*.dlt'

  # Include what is already in the files
  dlttap follow --from-start trace.dlt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToStdout(cmd, &ingest.FollowSource{Patterns: args, Storage: !rawStream, FromStart: fromStart})
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail <host[:port]|ecu>",
	Short: "Stream from a DLT daemon",
	Long: `Connect to a DLT daemon over TCP and print its frames as they arrive.

The port defaults to 3490. An ECU id or nickname known from the config
file's endpoints is resolved to its address. A lost connection is retried
with exponential backoff unless --no-reconnect is given.`,
	Example: `  dlttap tail 192.168.0.10
  dlttap tail ECU1 --min-level info
  dlttap tail headunit:3490 --format json | jq .text`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToStdout(cmd, tcpSource(args[0], nil))
	},
}

func tcpSource(target string, onConnect func(string)) *ingest.TCPSource {
	addr := ingest.NormalizeAddress(cfg.ResolveEndpoint(target))
	return &ingest.TCPSource{
		Address:     addr,
		DialTimeout: dialTimeout,
		Reconnect:   !noReconnect,
		OnConnect: func(address string) {
			logging.Info("Connected", zap.String("address", address))
			if onConnect != nil {
				onConnect(address)
			}
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func newPipeline() (*ingest.Pipeline, error) {
	c, err := pipelineConfig()
	if err != nil {
		return nil, err
	}
	return ingest.NewPipeline(c), nil
}

// pipelineConfig builds the pipeline settings from the decoding flags
func pipelineConfig() (ingest.Config, error) {
	f, err := recordFilter()
	if err != nil {
		return ingest.Config{}, err
	}
	logging.Debug("Pipeline configured",
		zap.String("profile", decProfile.String()),
		zap.String("filter", f.String()),
		zap.Bool("resync", !noResync),
	)
	return ingest.Config{
		Profile: decProfile,
		Resync:  !noResync,
		Filter:  f,
	}, nil
}

// runToStdout decodes src and prints every record on stdout
func runToStdout(cmd *cobra.Command, src ingest.Source) error {
	if outFormat == format.FormatMsgpack {
		return fmt.Errorf("msgpack output is only available on the relay sinks")
	}
	formatter, err := format.New(outFormat, colorOut)
	if err != nil {
		return err
	}
	p, err := newPipeline()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	out := sink.NewWriter("stdout", cmd.OutOrStdout(), formatter)
	// live sources print as frames arrive
	_, isFile := src.(*ingest.FileSource)
	out.FlushEach = !isFile

	runErr := p.Run(ctx, out.Write, src)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = err
	}

	st := p.Stats()
	logging.Info("Done", st.Fields()...)
	if ingest.IsCancellation(runErr) {
		return nil
	}
	return describe(runErr)
}

// describe adds troubleshooting hints to connection errors
func describe(err error) error {
	if err == nil {
		return nil
	}
	tips := ingest.Troubleshooting(err)
	if len(tips) == 0 {
		return err
	}
	var hints strings.Builder
	for _, tip := range tips {
		hints.WriteString("\n  - " + tip)
	}
	return fmt.Errorf("%w%s", err, hints.String())
}
