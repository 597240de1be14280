package dlt

import (
	"bytes"

	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/logging"
)

// Observer receives every decoded frame, in stream order
type Observer func(*Frame)

// ErrorHandler receives decode errors the reassembler skipped past
type ErrorHandler func(error)

// Reassembler turns arbitrarily split chunks of a byte stream into frames.
// It must be fed from a single goroutine.
type Reassembler struct {
	decoder  *Decoder
	observer Observer
	onError  ErrorHandler
	storage  bool
	resync   bool

	buf    []byte
	offset int64 // stream offset of buf[0]
	frames uint64
	skips  uint64
}

// ReassemblerOption configures a Reassembler
type ReassemblerOption func(*Reassembler)

// WithDecoder sets the frame decoder (default: ProfileDefault)
func WithDecoder(d *Decoder) ReassemblerOption {
	return func(r *Reassembler) { r.decoder = d }
}

// WithStorageHeader expects a storage header in front of every frame, as in
// .dlt capture files.
func WithStorageHeader(enabled bool) ReassemblerOption {
	return func(r *Reassembler) { r.storage = enabled }
}

// WithResync makes the reassembler skip past bytes that can never form a
// frame instead of stopping at them. Skipped errors go to the error handler.
func WithResync(enabled bool) ReassemblerOption {
	return func(r *Reassembler) { r.resync = enabled }
}

// WithErrorHandler sets the handler for errors skipped in resync mode
func WithErrorHandler(h ErrorHandler) ReassemblerOption {
	return func(r *Reassembler) { r.onError = h }
}

// NewReassembler creates a reassembler emitting frames to observer
func NewReassembler(observer Observer, opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{
		decoder:  NewDecoder(ProfileDefault),
		observer: observer,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddChunk appends chunk to the accumulator and emits every frame that is
// now complete.
//
// Extraction stops quietly when the front of the accumulator is an
// incomplete frame. Any other decode error also stops extraction and is
// returned, placed at its stream offset, with the accumulator untouched;
// in resync mode the offending bytes are skipped instead and the error is
// passed to the error handler.
func (r *Reassembler) AddChunk(chunk []byte) error {
	r.buf = append(r.buf, chunk...)

	for len(r.buf) > 0 {
		frame, n, err := r.next()
		if err != nil {
			if IsIncomplete(err) {
				return nil
			}
			placed := r.place(err)
			if !r.resync {
				return placed
			}
			r.skip(placed)
			continue
		}

		r.consume(n)
		r.frames++
		if r.observer != nil {
			r.observer(frame)
		}
	}
	return nil
}

// next decodes the frame at the front of the accumulator
func (r *Reassembler) next() (*Frame, int, error) {
	if !r.storage {
		return r.decoder.DecodeFrame(r.buf)
	}

	if len(r.buf) < StorageHeaderSize {
		return nil, 0, NewIncompleteError("need %d bytes for storage header, have %d", StorageHeaderSize, len(r.buf))
	}
	sh, err := DecodeStorageHeader(r.buf)
	if err != nil {
		return nil, 0, err
	}
	frame, n, err := r.decoder.DecodeFrame(r.buf[StorageHeaderSize:])
	if err != nil {
		return nil, 0, err
	}
	frame.Storage = sh
	return frame, StorageHeaderSize + n, nil
}

func (r *Reassembler) place(err error) error {
	if decErr, ok := AsDecodeError(err); ok {
		return decErr.WithOffset(r.offset)
	}
	return err
}

// skip drops the bytes of a frame that failed to decode. A frame whose
// declared length fits the buffer is dropped whole; otherwise the
// reassembler searches for the next plausible frame start.
func (r *Reassembler) skip(err error) {
	n := r.skipLength()
	r.skips++
	logging.Debug("Skipping undecodable bytes",
		zap.Int64("stream_offset", r.offset),
		zap.Int("skipped", n),
		zap.Error(err),
	)
	if r.onError != nil {
		r.onError(err)
	}
	r.consume(n)
}

func (r *Reassembler) skipLength() int {
	if r.storage {
		if len(r.buf) >= StorageHeaderSize && bytes.Equal(r.buf[:4], StoragePattern) {
			frameLen := r.decoder.peekLength(r.buf[StorageHeaderSize:])
			if frameLen >= StandardHeaderSize && StorageHeaderSize+frameLen <= len(r.buf) {
				return StorageHeaderSize + frameLen
			}
		}
		if i := bytes.Index(r.buf[1:], StoragePattern); i >= 0 {
			return i + 1
		}
		// keep a possible partial pattern at the end
		keep := len(StoragePattern) - 1
		if len(r.buf) > keep {
			return len(r.buf) - keep
		}
		return len(r.buf)
	}

	frameLen := r.decoder.peekLength(r.buf)
	if frameLen >= StandardHeaderSize && frameLen <= len(r.buf) {
		if hdr, err := r.decoder.DecodeHeader(r.buf[:frameLen]); err == nil && hdr.Length <= frameLen {
			return frameLen
		}
	}
	return 1
}

func (r *Reassembler) consume(n int) {
	r.buf = r.buf[n:]
	r.offset += int64(n)
	if len(r.buf) == 0 {
		r.buf = nil
	}
}

// Flush reports bytes left in the accumulator at end of stream as an
// incomplete frame. It does not clear them.
func (r *Reassembler) Flush() error {
	if len(r.buf) == 0 {
		return nil
	}
	return NewIncompleteError("stream ended inside a frame: %d bytes pending", len(r.buf)).WithOffset(r.offset)
}

// Reset drops buffered bytes and restarts offset accounting.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.offset = 0
}

// Offset returns the stream offset of the first undecoded byte
func (r *Reassembler) Offset() int64 {
	return r.offset
}

// Buffered returns the number of undecoded bytes held
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// Pending returns the undecoded bytes held. The slice is only valid until
// the next AddChunk.
func (r *Reassembler) Pending() []byte {
	return r.buf
}

// Frames returns the number of frames emitted so far
func (r *Reassembler) Frames() uint64 {
	return r.frames
}

// Skips returns the number of resync skips performed so far
func (r *Reassembler) Skips() uint64 {
	return r.skips
}
