package ingest

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/logging"
)

// DefaultChunkSize is the read size used for files
const DefaultChunkSize = 64 * 1024

// FileSource reads capture files one after another. Files ending in .zst
// are decompressed on the fly.
type FileSource struct {
	Paths     []string
	Storage   bool      // files carry storage headers (.dlt captures)
	ChunkSize int       // default DefaultChunkSize
	Progress  func(int) // called with the number of file bytes consumed
}

// Name implements Source
func (s *FileSource) Name() string {
	if len(s.Paths) == 1 {
		return s.Paths[0]
	}
	return fmt.Sprintf("%d files", len(s.Paths))
}

// Run implements Source. Reading stops at the first file that cannot be
// opened or decoded.
func (s *FileSource) Run(ctx context.Context, open Opener) error {
	for _, path := range s.Paths {
		if err := s.readFile(ctx, path, open); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileSource) readFile(ctx context.Context, path string, open Opener) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	var r io.Reader = &countingReader{r: f, progress: s.Progress}
	if IsCompressed(path) {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("failed to open zstd stream %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	logging.Debug("Reading capture", zap.String("path", path), zap.Bool("zstd", IsCompressed(path)))

	w := open(StreamInfo{Name: path, Storage: s.Storage})
	if err := copyChunks(ctx, w, r, s.ChunkSize); err != nil {
		_ = w.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return w.Close()
}

// copyChunks copies r to w in chunks, checking ctx between reads
func copyChunks(ctx context.Context, w io.Writer, r io.Reader, size int) error {
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

type countingReader struct {
	r        io.Reader
	progress func(int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.progress != nil {
		c.progress(n)
	}
	return n, err
}
