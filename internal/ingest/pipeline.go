package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/filter"
	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/logging"
)

// DefaultBuffer is the capacity of the record channel between the decoding
// goroutines and the consumer.
const DefaultBuffer = 256

// Config configures a Pipeline
type Config struct {
	Profile dlt.Profile
	Resync  bool           // skip undecodable bytes instead of failing the stream
	Filter  *filter.Filter // nil passes everything
	Buffer  int            // default DefaultBuffer

	// ErrorsPerSecond limits "unparseable frame" log lines; 0 means 5/s
	ErrorsPerSecond float64

	// Now stamps records that carry no storage header; default time.Now
	Now func() time.Time

	// Tap, when set, sees every frame that passes the filter together with
	// its stream and offset. It runs on the stream's goroutine, so it must
	// be safe for concurrent use when several streams are read.
	Tap func(stream string, offset int64, f *dlt.Frame)
}

// Handler consumes records. It is always called from a single goroutine.
type Handler func(*format.Record) error

// Stats are the running totals of a pipeline
type Stats struct {
	Streams  uint64 `json:"streams"`
	Frames   uint64 `json:"frames"`
	Filtered uint64 `json:"filtered"`
	Skipped  uint64 `json:"skipped"` // resync skips, not bytes
	Errors   uint64 `json:"errors"`
}

// Fields returns the totals as log fields
func (s Stats) Fields() []zap.Field {
	return []zap.Field{
		zap.Uint64("streams", s.Streams),
		zap.Uint64("frames", s.Frames),
		zap.Uint64("filtered", s.Filtered),
		zap.Uint64("skipped", s.Skipped),
		zap.Uint64("errors", s.Errors),
	}
}

// Pipeline decodes the streams of any number of sources and delivers the
// records to one handler. Each stream gets its own reassembler and a
// UUIDv7 stream id.
type Pipeline struct {
	cfg     Config
	decoder *dlt.Decoder
	limiter *rate.Limiter

	streams, frames, filtered, skipped, errs atomic.Uint64
	suppressed                               atomic.Uint64
}

// NewPipeline creates a pipeline
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.ErrorsPerSecond <= 0 {
		cfg.ErrorsPerSecond = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{
		cfg:     cfg,
		decoder: dlt.NewDecoder(cfg.Profile),
		limiter: rate.NewLimiter(rate.Limit(cfg.ErrorsPerSecond), int(cfg.ErrorsPerSecond)+1),
	}
}

// Run runs every source concurrently and hands records to handle until all
// sources finish, one fails, or handle returns an error.
func (p *Pipeline) Run(ctx context.Context, handle Handler, sources ...Source) error {
	g, ctx := errgroup.WithContext(ctx)
	records := make(chan *format.Record, p.cfg.Buffer)

	producers, pctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		src := src
		producers.Go(func() error {
			logging.Debug("Source started", zap.String("source", src.Name()))
			return src.Run(pctx, func(info StreamInfo) io.WriteCloser {
				return p.newStream(pctx, info, records)
			})
		})
	}
	g.Go(func() error {
		defer close(records)
		return producers.Wait()
	})

	g.Go(func() error {
		for r := range records {
			if err := handle(r); err != nil {
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	if n := p.suppressed.Load(); n > 0 {
		logging.Warn("Decode errors suppressed by rate limit", zap.Uint64("count", n))
	}
	return err
}

// Stats returns the running totals
func (p *Pipeline) Stats() Stats {
	return Stats{
		Streams:  p.streams.Load(),
		Frames:   p.frames.Load(),
		Filtered: p.filtered.Load(),
		Skipped:  p.skipped.Load(),
		Errors:   p.errs.Load(),
	}
}

// stream is the io.WriteCloser handed to sources
type stream struct {
	p     *Pipeline
	ctx   context.Context
	out   chan<- *format.Record
	id    string
	name  string
	reasm *dlt.Reassembler

	pending []*format.Record
	once    sync.Once
}

func (p *Pipeline) newStream(ctx context.Context, info StreamInfo, out chan<- *format.Record) *stream {
	id := info.Name
	if u, err := uuid.NewV7(); err == nil {
		id = u.String()
	}
	s := &stream{p: p, ctx: ctx, out: out, id: id, name: info.Name}
	s.reasm = dlt.NewReassembler(s.observe,
		dlt.WithDecoder(p.decoder),
		dlt.WithStorageHeader(info.Storage),
		dlt.WithResync(p.cfg.Resync),
		dlt.WithErrorHandler(s.skippedError),
	)
	p.streams.Add(1)
	logging.Debug("Stream opened", zap.String("stream", id), zap.String("name", info.Name), zap.Bool("storage", info.Storage))
	return s
}

func (s *stream) observe(f *dlt.Frame) {
	s.p.frames.Add(1)
	if !s.p.cfg.Filter.Match(f) {
		s.p.filtered.Add(1)
		return
	}
	size := int64(f.Size)
	if f.Storage != nil {
		size += dlt.StorageHeaderSize
	}
	offset := s.reasm.Offset() - size
	if s.p.cfg.Tap != nil {
		s.p.cfg.Tap(s.id, offset, f)
	}
	s.pending = append(s.pending, format.NewRecord(f, s.id, offset, s.p.cfg.Now()))
}

func (s *stream) skippedError(err error) {
	s.p.skipped.Add(1)
	s.p.report(s.id, err, s.reasm.Pending())
}

func (p *Pipeline) report(stream string, err error, data []byte) {
	p.errs.Add(1)
	if !p.limiter.Allow() {
		p.suppressed.Add(1)
		return
	}
	offset := dlt.NoOffset
	if decErr, ok := dlt.AsDecodeError(err); ok {
		offset = decErr.Offset
	}
	logging.LogDecodeError(stream, offset, err, data)
}

// Write feeds a chunk to the reassembler and forwards the frames it
// completed. In non-resync mode a decode error ends the stream.
func (s *stream) Write(b []byte) (int, error) {
	err := s.reasm.AddChunk(b)
	if ferr := s.flushPending(); ferr != nil {
		return 0, ferr
	}
	if err != nil {
		s.p.report(s.id, err, s.reasm.Pending())
		return 0, err
	}
	return len(b), nil
}

func (s *stream) flushPending() error {
	for i, r := range s.pending {
		select {
		case s.out <- r:
		case <-s.ctx.Done():
			s.pending = s.pending[i:]
			return s.ctx.Err()
		}
	}
	s.pending = s.pending[:0]
	return nil
}

// Close reports a frame cut off by the end of the stream. It is logged,
// not returned: captures are routinely copied while still being written.
func (s *stream) Close() error {
	s.once.Do(func() {
		if err := s.reasm.Flush(); err != nil {
			logging.Warn("Stream ended inside a frame",
				zap.String("stream", s.id),
				zap.String("name", s.name),
				zap.Int("pending_bytes", s.reasm.Buffered()),
				zap.Error(err),
			)
		}
		logging.Debug("Stream closed",
			zap.String("stream", s.id),
			zap.Uint64("frames", s.reasm.Frames()),
			zap.Uint64("skips", s.reasm.Skips()),
		)
	})
	return nil
}

// IsCancellation reports whether err only says the pipeline was stopped
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
