package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/dlttap/internal/discovery"
	"github.com/muurk/dlttap/internal/ui"
)

var (
	scanTimeout  int
	scanRelays   bool
	saveEndpoint bool
)

func init() {
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Scan timeout in seconds")
	discoverCmd.Flags().BoolVar(&scanRelays, "relays", false, "Look for dlttap relays instead of DLT daemons")
	discoverCmd.Flags().BoolVar(&saveEndpoint, "save", false, "Store daemons with an ECU id as endpoints in the config file")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find DLT daemons on the local network",
	Long: `Browse mDNS for DLT daemons ("_dlt._tcp") and list their addresses.

Daemons advertising an "ecu" TXT record can be stored as endpoints with
--save, after which 'dlttap tail <ECU>' resolves them by id.`,
	Example: `  dlttap discover
  dlttap discover --timeout 15 --save
  dlttap discover --relays`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanTimeout) * time.Second
	if scanRelays {
		scanner.Service = discovery.RelayServiceType
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanning for %s services (timeout: %ds)...\n\n", scanner.Service, scanTimeout)

	ctx, stop := signalContext(cmd)
	defer stop()
	daemons, err := scanner.Scan(ctx)
	p := ui.NewPrinter(out)
	if err != nil {
		p.PrintError("Scan failed", err, []string{
			"Check that a network interface with multicast is up",
			"Multicast (UDP 5353) may be blocked by a firewall",
		})
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(daemons) == 0 {
		p.PrintWarning("Nothing found", nil)
		fmt.Fprintln(out, "\nTroubleshooting:")
		fmt.Fprintln(out, "  - Not every dlt-daemon advertises itself; try 'dlttap tail <ip>' directly")
		fmt.Fprintln(out, "  - Check that this machine is on the same network segment")
		fmt.Fprintln(out, "  - Multicast (UDP 5353) may be blocked by a firewall")
		fmt.Fprintln(out, "  - Try increasing --timeout")
		return nil
	}

	fmt.Fprintf(out, "Found %d service(s):\n\n", len(daemons))
	saved := 0
	for i, d := range daemons {
		fmt.Fprintf(out, "%d. %s\n", i+1, ui.HeaderTitleStyle.Render(d.Instance))
		if d.ECU != "" {
			fmt.Fprintf(out, "   ECU:      %s\n", ui.IDStyle.Render(d.ECU))
		}
		fmt.Fprintf(out, "   Address:  %s\n", d.Address())
		fmt.Fprintf(out, "   Host:     %s\n", d.Hostname)
		if len(d.Metadata) > 0 {
			fmt.Fprintf(out, "   Metadata: %v\n", d.Metadata)
		}
		fmt.Fprintln(out)

		if saveEndpoint && d.ECU != "" {
			ep := cfg.EnsureEndpoint(d.ECU)
			if ep.Nickname == "" {
				ep.Nickname = d.Instance
			}
			cfg.UpdateEndpointLastSeen(d.ECU, d.Address())
			saved++
		}
	}

	if saved > 0 {
		if err := saveConfig(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved %d endpoint(s) to the config file\n", saved)
	}
	if !scanRelays {
		fmt.Fprintln(out, "Use 'dlttap tail <address>' to stream from a daemon")
	}
	return nil
}

func saveConfig() error {
	if configPath != "" {
		return cfg.SaveTo(configPath)
	}
	return cfg.Save()
}
