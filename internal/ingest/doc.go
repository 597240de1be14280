// Package ingest feeds byte streams into the DLT decoder.
//
// A Source produces streams: FileSource reads captures (plain or zstd),
// FollowSource tails growing captures with fsnotify, and TCPSource
// connects to a dlt-daemon and reconnects with exponential backoff. For
// each stream the source calls an Opener and writes the bytes it reads to
// the returned io.WriteCloser in whatever chunk sizes the transport
// delivers.
//
// The Pipeline implements that writer. Every stream owns a reassembler,
// so frames split across reads are reassembled and streams never mix.
// Sources run concurrently under an errgroup; the decoded records travel
// over a bounded channel to a single handler.
//
// # Decode errors
//
// With Config.Resync set, undecodable bytes are skipped and logged as
// "Unparseable frame" with their stream offset, rate limited so a corrupt
// capture cannot flood the log. Without it the first decode error ends the
// stream and is returned from Run.
package ingest
