// Package discovery finds DLT daemons and dlttap relays on the local
// network with mDNS.
//
// Daemons are browsed as "_dlt._tcp" services; relays started by
// dlttap-server advertise "_dlttap._tcp". An "ecu" TXT record, when
// present, names the ECU behind the daemon so it can be looked up by id.
//
// # Usage Example
//
//	scanner := discovery.NewScanner()
//	scanner.Timeout = 3 * time.Second
//	daemons, err := scanner.Scan(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, d := range daemons {
//	    fmt.Println(d.ECU, d.Address())
//	}
//
// # Network Requirements
//
//   - Requires multicast support on the network interface
//   - Daemons must be on the same local network segment
//   - Firewall must allow mDNS (UDP port 5353)
package discovery
