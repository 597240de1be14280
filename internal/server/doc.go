// Package server implements the dlttap WebSocket relay.
//
// The relay re-publishes decoded records to any number of viewers. Each
// record is sent as one JSON text message, the same document the json
// output format writes per line.
//
// # Endpoints
//
//   - /ws: WebSocket stream of records
//   - /status: JSON document with version, uptime, viewer count and
//     pipeline counters
//
// # Backpressure
//
// Every viewer has a bounded send buffer. A viewer whose buffer is full is
// disconnected; decoding never waits for a viewer.
//
// # TLS
//
// When a certificate and key are configured the relay serves wss:// with
// TLS 1.2 as the minimum version.
//
// # Discovery
//
// With advertising enabled the relay registers a "_dlttap._tcp" mDNS
// service carrying path, scheme and version TXT records, so viewers on
// the local network can find it.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start:
//  1. closes every viewer connection with a close frame
//  2. stops the HTTP server, waiting up to ten seconds
//  3. withdraws the mDNS advertisement
package server
