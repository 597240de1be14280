package attachment

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/logging"
)

// Attachment is a file reassembled from a DLT-FT sequence
type Attachment struct {
	Stream  string // stream the transfer was found in
	ECU     string
	ID      uint32
	Name    string // as announced; see FileName for a safe form
	Size    uint32 // announced size
	Created string
	Packets uint32 // announced packet count

	// Offsets are the stream offsets of the frames carrying the transfer
	Offsets []int64
	Data    []byte

	received  uint32
	unordered bool
}

// Received returns the number of data packets seen
func (a *Attachment) Received() uint32 {
	return a.received
}

// Complete reports whether every announced packet arrived in order and the
// data matches the announced size.
func (a *Attachment) Complete() bool {
	return !a.unordered && a.received == a.Packets && len(a.Data) == int(a.Size)
}

type transferKey struct {
	stream string
	id     uint32
}

// Scanner collects DLT-FT transfers from decoded frames. Transfers are
// keyed by stream and file id, so interleaved transfers and concurrent
// streams are kept apart. It is safe for concurrent use.
type Scanner struct {
	mu       sync.Mutex
	open     map[transferKey]*Attachment
	finished []*Attachment
}

// NewScanner creates an empty scanner
func NewScanner() *Scanner {
	return &Scanner{open: make(map[transferKey]*Attachment)}
}

// Process feeds one frame found at offset in stream. It returns the
// attachment the frame finished, if any. Data and end messages for a file
// id that was never started are ignored.
func (s *Scanner) Process(stream string, offset int64, f *dlt.Frame) *Attachment {
	m, ok := Parse(f)
	if !ok {
		return nil
	}
	key := transferKey{stream: stream, id: m.ID}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch m.Kind {
	case KindStart:
		if prev, ok := s.open[key]; ok {
			logging.Debug("File transfer restarted",
				zap.String("stream", stream),
				zap.Uint32("id", m.ID),
				zap.String("name", prev.Name),
				zap.Uint32("received", prev.received),
			)
		}
		s.open[key] = &Attachment{
			Stream:  stream,
			ECU:     f.EcuID(),
			ID:      m.ID,
			Name:    m.Name,
			Size:    m.Size,
			Created: m.Created,
			Packets: m.Packets,
			Offsets: []int64{offset},
			Data:    make([]byte, 0, m.Size),
		}
	case KindData:
		a, ok := s.open[key]
		if !ok {
			return nil
		}
		a.received++
		if m.Packet != a.received {
			a.unordered = true
		}
		a.Offsets = append(a.Offsets, offset)
		a.Data = append(a.Data, m.Data...)
	case KindEnd:
		a, ok := s.open[key]
		if !ok {
			return nil
		}
		delete(s.open, key)
		a.Offsets = append(a.Offsets, offset)
		s.finished = append(s.finished, a)
		logging.Debug("File transfer finished",
			zap.String("stream", stream),
			zap.Uint32("id", a.ID),
			zap.String("name", a.Name),
			zap.Int("bytes", len(a.Data)),
			zap.Bool("complete", a.Complete()),
		)
		return a
	}
	return nil
}

// Attachments returns the finished transfers in the order they finished
func (s *Scanner) Attachments() []*Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Attachment(nil), s.finished...)
}

// Pending returns transfers that were started but never finished, ordered
// by stream and first offset.
func (s *Scanner) Pending() []*Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Attachment, 0, len(s.open))
	for _, a := range s.open {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stream != out[j].Stream {
			return out[i].Stream < out[j].Stream
		}
		return out[i].Offsets[0] < out[j].Offsets[0]
	})
	return out
}
