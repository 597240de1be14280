package ingest

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPort is the TCP port dlt-daemon serves clients on
const DefaultPort = "3490"

// StreamInfo describes one contiguous byte stream: a file, or one
// connection to a daemon.
type StreamInfo struct {
	Name    string // path or address
	Storage bool   // frames are prefixed with storage headers
}

// Opener starts a new stream. Bytes written to the returned writer are
// decoded in order; Close marks the end of the stream.
type Opener func(info StreamInfo) io.WriteCloser

// Source produces byte streams. Run blocks until the source is exhausted
// or ctx is cancelled; live sources return nil on cancellation.
type Source interface {
	Name() string
	Run(ctx context.Context, open Opener) error
}

// IsCompressed reports whether a capture is zstd compressed, judged by its
// file name.
func IsCompressed(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".zst" || ext == ".zstd"
}

// ExpandPatterns resolves file names and doublestar globs ("**" matches
// any number of directories) to a sorted, de-duplicated list of files.
// A pattern without glob characters is returned as is so a missing file
// is reported when it is opened.
func ExpandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			if !seen[pattern] {
				seen[pattern] = true
				files = append(files, pattern)
			}
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// NormalizeAddress appends the default DLT port when target has none
func NormalizeAddress(target string) string {
	if _, _, err := net.SplitHostPort(target); err == nil {
		return target
	}
	return net.JoinHostPort(strings.Trim(target, "[]"), DefaultPort)
}
