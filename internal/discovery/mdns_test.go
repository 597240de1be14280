package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestScanner_parseServiceEntry(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name   string
		entry  *zeroconf.ServiceEntry
		verify func(t *testing.T, d *Daemon)
	}{
		{
			name: "daemon with ecu record",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "dlt-daemon on headunit"},
				HostName:      "headunit.local.",
				Port:          3490,
				AddrIPv4:      []net.IP{net.ParseIP("192.168.0.10")},
				Text:          []string{"ecu=ECU1", "version=2.18"},
			},
			verify: func(t *testing.T, d *Daemon) {
				if d.ECU != "ECU1" || d.Address() != "192.168.0.10:3490" {
					t.Errorf("daemon = %+v", d)
				}
				if d.String() != "dlt-daemon on headunit [ECU1] at 192.168.0.10:3490" {
					t.Errorf("String() = %q", d.String())
				}
				if time.Since(d.DiscoveredAt) > time.Second {
					t.Errorf("DiscoveredAt is not recent: %v", d.DiscoveredAt)
				}
			},
		},
		{
			name: "missing port defaults to 3490",
			entry: &zeroconf.ServiceEntry{
				HostName: "gateway.local.",
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.5")},
			},
			verify: func(t *testing.T, d *Daemon) {
				if d.Port != DefaultPort {
					t.Errorf("Port = %d, want %d", d.Port, DefaultPort)
				}
				if d.Instance != "gateway.local" {
					t.Errorf("Instance = %q, want hostname fallback", d.Instance)
				}
			},
		},
		{
			name: "invalid ecu record is ignored",
			entry: &zeroconf.ServiceEntry{
				HostName: "x.local.",
				AddrIPv4: []net.IP{net.ParseIP("10.0.0.6")},
				Text:     []string{"ecu=TOO-LONG"},
			},
			verify: func(t *testing.T, d *Daemon) {
				if d.ECU != "" || d.GetMetadata("ecu") != "TOO-LONG" {
					t.Errorf("ECU = %q, metadata = %v", d.ECU, d.Metadata)
				}
			},
		},
		{
			name: "IPv6 only",
			entry: &zeroconf.ServiceEntry{
				HostName: "v6.local.",
				Port:     3491,
				AddrIPv6: []net.IP{net.ParseIP("fe80::1")},
			},
			verify: func(t *testing.T, d *Daemon) {
				if d.Address() != "[fe80::1]:3491" {
					t.Errorf("Address() = %q", d.Address())
				}
			},
		},
		{
			name: "prefers IPv4",
			entry: &zeroconf.ServiceEntry{
				HostName: "dual.local.",
				AddrIPv4: []net.IP{net.ParseIP("192.168.1.50")},
				AddrIPv6: []net.IP{net.ParseIP("fe80::2")},
			},
			verify: func(t *testing.T, d *Daemon) {
				if d.IP != "192.168.1.50" {
					t.Errorf("IP = %q", d.IP)
				}
			},
		},
		{
			name: "no address",
			entry: &zeroconf.ServiceEntry{
				HostName: "ghost.local.",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := scanner.parseServiceEntry(tt.entry)
			if tt.verify == nil {
				if d != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", d)
				}
				return
			}
			if d == nil {
				t.Fatal("parseServiceEntry() = nil, want daemon")
			}
			tt.verify(t, d)
		})
	}
}

func TestScanner_parseServiceEntry_Metadata(t *testing.T) {
	d := NewScanner().parseServiceEntry(&zeroconf.ServiceEntry{
		AddrIPv4: []net.IP{net.ParseIP("192.168.4.16")},
		Text:     []string{"path=/ws", "flag", "scheme=wss", "a=b=c"},
	})
	if d == nil {
		t.Fatal("parseServiceEntry() = nil, want daemon")
	}

	want := map[string]string{
		"path":   "/ws",
		"flag":   "", // key without value
		"scheme": "wss",
		"a":      "b=c",
	}
	if len(d.Metadata) != len(want) {
		t.Errorf("Metadata has %d entries, want %d", len(d.Metadata), len(want))
	}
	for key, value := range want {
		if got, ok := d.Metadata[key]; !ok || got != value {
			t.Errorf("Metadata[%q] = %q, want %q", key, got, value)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout || scanner.Service != ServiceType {
		t.Errorf("NewScanner() = %+v", scanner)
	}
}

func TestEcuPattern(t *testing.T) {
	tests := []struct {
		id    string
		match bool
	}{
		{"ECU1", true},
		{"E", true},
		{"HU-1", true},
		{"ECU12", false},
		{"EC U", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ecuPattern.MatchString(tt.id); got != tt.match {
			t.Errorf("ecuPattern.MatchString(%q) = %v, want %v", tt.id, got, tt.match)
		}
	}
}

// Live discovery needs multicast and is exercised manually with
// dlttap discover.
