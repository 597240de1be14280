package discovery

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/logging"
)

const (
	// ServiceType is the mDNS service type of DLT daemons
	ServiceType = "_dlt._tcp"

	// RelayServiceType is the service type dlttap-server advertises
	RelayServiceType = "_dlttap._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for daemon discovery
	DefaultScanTimeout = 10 * time.Second

	// DefaultPort is the DLT daemon TCP port
	DefaultPort = 3490
)

// ecuPattern accepts ECU ids of one to four printable ASCII characters
var ecuPattern = regexp.MustCompile(`^[\x21-\x7e]{1,4}$`)

// Scanner handles mDNS daemon discovery
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration

	// Service is the service type to browse for
	Service string
}

// NewScanner creates a scanner for DLT daemons with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Service: ServiceType,
	}
}

// browse runs one mDNS browse and calls found for every usable entry until
// ctx is done or found returns false. found is never called after browse
// returns.
func (s *Scanner) browse(ctx context.Context, found func(*Daemon) bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var (
		mu      sync.Mutex
		stopped bool
	)
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			d := s.parseServiceEntry(entry)
			if d == nil {
				logging.Debug("Ignoring mDNS entry", zap.String("instance", entry.Instance))
				continue
			}
			mu.Lock()
			if !stopped && !found(d) {
				stopped = true
				cancel()
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, s.Service, ServiceDomain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	mu.Lock()
	stopped = true
	mu.Unlock()
	return nil
}

// Scan collects every daemon answering within the timeout. Daemons are
// de-duplicated by address.
func (s *Scanner) Scan(ctx context.Context) ([]*Daemon, error) {
	var daemons []*Daemon
	seen := make(map[string]bool)
	err := s.browse(ctx, func(d *Daemon) bool {
		if !seen[d.Address()] {
			seen[d.Address()] = true
			daemons = append(daemons, d)
		}
		return true
	})
	return daemons, err
}

// WaitFor waits for a daemon with the given ECU id or instance name
func (s *Scanner) WaitFor(ctx context.Context, name string) (*Daemon, error) {
	var match *Daemon
	err := s.browse(ctx, func(d *Daemon) bool {
		if match == nil && (d.ECU == name || d.Instance == name) {
			match = d
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, fmt.Errorf("daemon %s not found within %s", name, s.Timeout)
	}
	return match, nil
}

// parseServiceEntry converts a zeroconf service entry to a Daemon.
// Returns nil if the entry has no usable address.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Daemon {
	// Get IP address (prefer IPv4)
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	// TXT records are in "key=value" format
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}

	d := &Daemon{
		Instance:     entry.Instance,
		Service:      s.Service,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
	if ecu := metadata["ecu"]; ecuPattern.MatchString(ecu) {
		d.ECU = ecu
	}
	if d.Instance == "" {
		d.Instance = strings.TrimSuffix(d.Hostname, ".")
	}
	return d
}
