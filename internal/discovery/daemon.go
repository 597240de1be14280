package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Daemon is a DLT daemon (or dlttap relay) found on the network
type Daemon struct {
	// Instance is the mDNS instance name (e.g., "dlt-daemon on headunit")
	Instance string

	// Service is the service type it was found under
	Service string

	// Hostname is the mDNS hostname (e.g., "headunit.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when the daemon has none
	IP string

	// Port is the TCP port (3490 unless advertised otherwise)
	Port int

	// ECU is the ECU id from the "ecu" TXT record, if any
	ECU string

	// Metadata contains all TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the daemon was discovered
	DiscoveredAt time.Time
}

// Address returns host:port suitable for dlttap tail
func (d *Daemon) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// String returns a human-readable description
func (d *Daemon) String() string {
	if d.ECU != "" {
		return fmt.Sprintf("%s [%s] at %s", d.Instance, d.ECU, d.Address())
	}
	return fmt.Sprintf("%s at %s", d.Instance, d.Address())
}

// GetMetadata retrieves a TXT value by key, or returns empty string if not found
func (d *Daemon) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
