// Package logging provides structured logging for dlttap.
//
// This package wraps a package-global zap logger with convenience functions
// for the logging patterns used by the ingest pipeline, the sinks and the
// relay server.
//
// # Silent By Default
//
// Decoded records are written to stdout, so diagnostic output must never mix
// with them. Logs go to stderr, and unless a level is given (flag or
// DLTTAP_LOG_LEVEL) the logger is a no-op:
//
//	DLTTAP_LOG_LEVEL=debug dlttap decode trace.dlt
//
// # Log Levels
//
//   - Debug: hex dumps, resync skips, WebSocket traffic
//   - Info: connections, inputs opened and closed
//   - Warn: unparseable frames, reconnect attempts, dropped relay records
//   - Error: sink and server failures
//
// # Structured Logging
//
//	logging.Info("Input opened",
//	    zap.String("input", "ecu1"),
//	    zap.String("address", "192.168.0.10:3490"),
//	)
//
// Decode failures have a dedicated helper that records the stream offset
// and a hex preview of the bytes found there:
//
//	logging.LogDecodeError(streamID, offset, err, pending)
//
// # Output Format
//
// Console output (default) uses colored capital levels and ISO8601 times.
// JSON output is selected with DLTTAP_LOG_FORMAT=json or the server's
// --log-format flag.
package logging
