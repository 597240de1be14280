package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/logging"
)

// Sink consumes records
type Sink interface {
	Name() string
	Write(r *format.Record) error
	Close() error
}

// Writer renders records to an io.Writer with a formatter
type Writer struct {
	name string
	out  *bufio.Writer
	f    format.Formatter
	mu   sync.Mutex

	// FlushEach flushes after every record, for live output
	FlushEach bool
}

// NewWriter creates a writer sink
func NewWriter(name string, w io.Writer, f format.Formatter) *Writer {
	return &Writer{name: name, out: bufio.NewWriter(w), f: f}
}

// Name implements Sink
func (w *Writer) Name() string { return w.name }

// Write implements Sink
func (w *Writer) Write(r *format.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Format(w.out, r); err != nil {
		return err
	}
	if w.FlushEach {
		return w.out.Flush()
	}
	return nil
}

// Close flushes buffered output
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Flush()
}

// DefaultQueue is the per-sink queue length of a Fanout
const DefaultQueue = 1024

// Fanout delivers every record to several sinks. Each sink is served by its
// own goroutine through a bounded queue; when a queue is full the record is
// dropped for that sink only, so a slow broker cannot stall decoding.
type Fanout struct {
	outs []*queued
	wg   sync.WaitGroup
}

type queued struct {
	sink    Sink
	ch      chan *format.Record
	dropped uint64
	failed  uint64
}

// NewFanout starts one worker per sink. The workers run until Close.
func NewFanout(queue int, sinks ...Sink) *Fanout {
	if queue <= 0 {
		queue = DefaultQueue
	}
	f := &Fanout{}
	for _, s := range sinks {
		q := &queued{sink: s, ch: make(chan *format.Record, queue)}
		f.outs = append(f.outs, q)
		f.wg.Add(1)
		go f.serve(q)
	}
	return f
}

func (f *Fanout) serve(q *queued) {
	defer f.wg.Done()
	for r := range q.ch {
		if err := q.sink.Write(r); err != nil {
			q.failed++
			if q.failed == 1 || q.failed%1000 == 0 {
				logging.Warn("Sink write failed",
					zap.String("sink", q.sink.Name()),
					zap.Uint64("failures", q.failed),
					zap.Error(err),
				)
			}
		}
	}
}

// Handle queues a record for every sink. It never blocks and never fails,
// which makes it usable as an ingest handler.
func (f *Fanout) Handle(r *format.Record) error {
	for _, q := range f.outs {
		select {
		case q.ch <- r:
		default:
			q.dropped++
			if q.dropped == 1 || q.dropped%1000 == 0 {
				logging.Warn("Sink queue full, dropping records",
					zap.String("sink", q.sink.Name()),
					zap.Uint64("dropped", q.dropped),
				)
			}
		}
	}
	return nil
}

// Close drains the queues and closes every sink. Handle must not be called
// concurrently with or after Close.
func (f *Fanout) Close() error {
	for _, q := range f.outs {
		close(q.ch)
	}
	f.wg.Wait()

	var errs []error
	for _, q := range f.outs {
		if err := q.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", q.sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
