package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/ingest"
	"github.com/muurk/dlttap/internal/viewer"
)

func init() {
	viewCmd.Flags().BoolVar(&noReconnect, "no-reconnect", false, "Stop when the connection is lost")
	viewCmd.Flags().DurationVar(&dialTimeout, "dial-timeout", ingest.DefaultDialTimeout, "Connection attempt timeout")
	rootCmd.AddCommand(viewCmd)
}

var viewCmd = &cobra.Command{
	Use:   "view <host[:port]|ecu>",
	Short: "Live full-screen view of a DLT daemon",
	Long: `Connect to a DLT daemon and show its frames in a scrollable
full-screen view. Scrolling up pauses following; G resumes it.`,
	Example: `  dlttap view 192.168.0.10 --min-level info`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline()
		if err != nil {
			return err
		}
		ctx, stop := signalContext(cmd)
		defer stop()

		feed := func(ctx context.Context, handle func(*format.Record) error, status func(string)) error {
			src := tcpSource(args[0], func(address string) {
				status("connected to " + address)
			})
			status("connecting to " + src.Address)
			err := p.Run(ctx, handle, src)
			if ingest.IsCancellation(err) {
				return nil
			}
			return describe(err)
		}
		return viewer.Run(ctx, "dlttap "+args[0], feed)
	},
}
