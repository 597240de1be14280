// Dlttap-server relays decoded DLT streams to network consumers.
//
// It runs the inputs listed in the config file (DLT daemons, capture files,
// growing captures) through one decoding pipeline and publishes every
// record to WebSocket viewers, an MQTT broker and a nanomsg PUB socket.
//
// Usage:
//
//	dlttap-server server [flags]
//
// See 'dlttap-server server --help' for available options.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/dlttap/internal/config"
	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/filter"
	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/ingest"
	"github.com/muurk/dlttap/internal/logging"
	"github.com/muurk/dlttap/internal/server"
	"github.com/muurk/dlttap/internal/sink"
	"github.com/muurk/dlttap/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dlttap-server",
	Short: "DLT relay server",
	Long: `Decode DLT streams from the configured inputs and relay the records
to WebSocket viewers, MQTT and nanomsg subscribers.

Inputs and sinks are read from the dlttap config file; see
'dlttap config init' for an example.`,
	Version:      version.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

// Server command and flags
var (
	configPath  string
	certPath    string
	keyPath     string
	host        string
	port        int
	logLevel    string
	logFormat   string
	noAdvertise bool
	selfSigned  bool
	queueSize   int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the relay",
	Long: `Start the relay. Every input in the config file is decoded
concurrently; records pass the config filter and are then published to:

  - WebSocket viewers on /ws (JSON text messages)
  - the MQTT broker in sinks.mqtt, topic <prefix>/<ecu>/<app>/<ctx>
  - the nanomsg PUB socket in sinks.nanomsg

Each sink has its own bounded queue; a slow sink loses records rather
than stalling the others. Pipeline counters are served on /status.`,
	Example: `  # Relay with the default config file
  dlttap-server server

  # TLS on a custom port with debug logging
  dlttap-server server --port 8443 --cert cert.pem --key key.pem --log-level debug

  # TLS with a throwaway certificate
  dlttap-server server --self-signed

  # Another config file, without mDNS advertisement
  dlttap-server server --config ./relay.yaml --no-advertise`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	f := serverCmd.Flags()
	f.StringVar(&configPath, "config", "", "Config file (default: platform config dir)")
	f.StringVar(&certPath, "cert", "", "Path to TLS certificate file (overrides server.cert)")
	f.StringVar(&keyPath, "key", "", "Path to TLS private key file (overrides server.key)")
	f.BoolVar(&selfSigned, "self-signed", false, "Serve TLS with a generated self-signed certificate when no cert is given")
	f.StringVar(&host, "host", "", "Listen address (overrides server.host)")
	f.IntVar(&port, "port", 0, "Listen port (overrides server.port)")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	f.BoolVar(&noAdvertise, "no-advertise", false, "Do not announce the relay via mDNS")
	f.IntVar(&queueSize, "queue", sink.DefaultQueue, "Records buffered per sink")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeWithFormat(logLevel, logFormat); err != nil {
		return err
	}
	defer logging.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyFlags(cfg.Server)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Inputs) == 0 {
		return fmt.Errorf("no inputs configured; run 'dlttap config init' and edit the inputs section")
	}

	sources, err := buildSources(cfg)
	if err != nil {
		return err
	}
	pipeline, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(&server.Config{
		Host:       cfg.Server.Host,
		Port:       cfg.Server.Port,
		CertPath:   cfg.Server.CertFile,
		KeyPath:    cfg.Server.KeyFile,
		SelfSigned: selfSigned,
		Advertise:  cfg.Server.Advertise,
		Stats:      func() any { return pipeline.Stats() },
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	sinks, err := buildSinks(cfg, srv.Hub())
	if err != nil {
		return err
	}
	fanout := sink.NewFanout(queueSize, sinks...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		err := pipeline.Run(gctx, fanout.Handle, sources...)
		if err == nil && gctx.Err() == nil {
			// file inputs can finish; keep serving until shutdown
			logging.Info("All inputs finished; relay keeps running until interrupted")
			<-gctx.Done()
		}
		return err
	})

	runErr := g.Wait()
	if err := fanout.Close(); err != nil {
		logging.Warn("Failed to close sinks", zap.Error(err))
	}

	st := pipeline.Stats()
	logging.Info("Relay stopped", st.Fields()...)
	if ingest.IsCancellation(runErr) || ctx.Err() != nil {
		return nil
	}
	logging.Error("Relay failed", zap.Error(runErr))
	return runErr
}

func applyFlags(s *config.ServerConfig) {
	if host != "" {
		s.Host = host
	}
	if port != 0 {
		s.Port = port
	}
	if certPath != "" || keyPath != "" {
		s.CertFile, s.KeyFile = certPath, keyPath
	}
	if noAdvertise {
		s.Advertise = false
	}
}

func buildPipeline(cfg *config.Config) (*ingest.Pipeline, error) {
	profile, err := dlt.ParseProfile(cfg.Decoder.Profile)
	if err != nil {
		return nil, err
	}
	f, err := filter.FromConfig(cfg.Filter)
	if err != nil {
		return nil, err
	}
	logging.Info("Pipeline configured",
		zap.String("profile", profile.String()),
		zap.String("filter", f.String()),
		zap.Bool("resync", cfg.Decoder.Resync),
	)
	return ingest.NewPipeline(ingest.Config{
		Profile: profile,
		Resync:  cfg.Decoder.Resync,
		Filter:  f,
	}), nil
}

// buildSources turns the inputs section into sources. TCP inputs never
// carry storage headers; file inputs follow decoder.storage_header.
func buildSources(cfg *config.Config) ([]ingest.Source, error) {
	var sources []ingest.Source
	for _, in := range cfg.Inputs {
		switch in.Type {
		case config.InputTCP:
			addr := ingest.NormalizeAddress(cfg.ResolveEndpoint(in.Address))
			name := in.Name
			sources = append(sources, &ingest.TCPSource{
				Address:   addr,
				Reconnect: true,
				OnConnect: func(address string) {
					logging.Info("Input connected", zap.String("input", name), zap.String("address", address))
				},
			})
		case config.InputFile:
			paths, err := ingest.ExpandPatterns(in.Patterns)
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", in.Name, err)
			}
			sources = append(sources, &ingest.FileSource{Paths: paths, Storage: cfg.Decoder.StorageHeader})
		case config.InputFollow:
			sources = append(sources, &ingest.FollowSource{Patterns: in.Patterns, Storage: cfg.Decoder.StorageHeader})
		default:
			return nil, fmt.Errorf("input %s: unknown type %q", in.Name, in.Type)
		}
		logging.Info("Input configured", zap.String("input", in.Name), zap.String("type", in.Type))
	}
	return sources, nil
}

// buildSinks returns the WebSocket hub plus the configured network sinks
func buildSinks(cfg *config.Config, hub *server.Hub) ([]sink.Sink, error) {
	sinks := []sink.Sink{hub}
	if cfg.Sinks == nil {
		return sinks, nil
	}
	if m := cfg.Sinks.MQTT; m != nil {
		s, err := sink.NewMQTT(m)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if n := cfg.Sinks.Nanomsg; n != nil {
		s, err := sink.NewNanomsg(n.Listen, format.FormatMsgpack)
		if err != nil {
			for _, s := range sinks[1:] {
				_ = s.Close()
			}
			return nil, err
		}
		logging.Info("Publishing on nanomsg", zap.String("listen", n.Listen))
		sinks = append(sinks, s)
	}
	return sinks, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("dlttap-server " + version.Full())
	},
}
