package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap/zapcore"

	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/filter"
	"github.com/muurk/dlttap/internal/format"
)

var captureTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// testFrames returns n encoded log frames, alternating between two apps
func testFrames(t *testing.T, n int) [][]byte {
	t.Helper()
	frames := make([][]byte, n)
	for i := range frames {
		app, lvl := "NAV", dlt.LogInfo
		if i%2 == 1 {
			app, lvl = "HMI", dlt.LogError
		}
		f := dlt.NewLogFrame("ECU1", app, "MAIN", lvl, uint32(i*10), dlt.NewUintArg(dlt.Width32, uint64(i)))
		data, err := dlt.EncodeFrame(f, dlt.ProfileDefault)
		if err != nil {
			t.Fatalf("EncodeFrame() error = %v", err)
		}
		frames[i] = data
	}
	return frames
}

func capture(t *testing.T, frames [][]byte) []byte {
	t.Helper()
	var out []byte
	for i, f := range frames {
		out = dlt.EncodeStorageHeader(out, dlt.NewStorageHeader(captureTime.Add(time.Duration(i)*time.Second), "ECU1"))
		out = append(out, f...)
	}
	return out
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

type collector struct {
	mu      sync.Mutex
	records []*format.Record
}

func (c *collector) handle(r *format.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func TestPipeline_Files(t *testing.T) {
	dir := t.TempDir()
	frames := testFrames(t, 6)
	data := capture(t, frames)
	writeFile(t, filepath.Join(dir, "plain.dlt"), data)
	writeFile(t, filepath.Join(dir, "packed.dlt.zst"), compress(t, data))

	tests := []struct {
		name   string
		path   string
		filter *filter.Filter
		chunk  int
		verify func(t *testing.T, recs []*format.Record, st Stats)
	}{
		{
			name:  "plain capture in small chunks",
			path:  "plain.dlt",
			chunk: 7,
			verify: func(t *testing.T, recs []*format.Record, st Stats) {
				if len(recs) != 6 || st.Frames != 6 || st.Streams != 1 {
					t.Fatalf("got %d records, stats %+v", len(recs), st)
				}
				// offsets include the storage headers
				want := int64(0)
				for i, r := range recs {
					if r.Offset != want {
						t.Errorf("record %d offset = %d, want %d", i, r.Offset, want)
					}
					want += int64(dlt.StorageHeaderSize + len(frames[i]))
				}
				if !recs[2].Time.Equal(captureTime.Add(2 * time.Second)) {
					t.Errorf("record time = %v, want storage time", recs[2].Time)
				}
			},
		},
		{
			name: "zstd capture",
			path: "packed.dlt.zst",
			verify: func(t *testing.T, recs []*format.Record, st Stats) {
				if len(recs) != 6 {
					t.Fatalf("got %d records, want 6", len(recs))
				}
				if recs[5].Text != "5" {
					t.Errorf("last record text = %q", recs[5].Text)
				}
			},
		},
		{
			name:   "filtered",
			path:   "plain.dlt",
			filter: mustFilter(t, "error", nil),
			verify: func(t *testing.T, recs []*format.Record, st Stats) {
				if len(recs) != 3 || st.Filtered != 3 {
					t.Fatalf("got %d records, stats %+v", len(recs), st)
				}
				for _, r := range recs {
					if r.App != "HMI" {
						t.Errorf("record from %s passed an error filter", r.App)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(Config{Filter: tt.filter})
			var c collector
			src := &FileSource{Paths: []string{filepath.Join(dir, tt.path)}, Storage: true, ChunkSize: tt.chunk}
			if err := p.Run(context.Background(), c.handle, src); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			tt.verify(t, c.records, p.Stats())
		})
	}
}

func mustFilter(t *testing.T, level string, apps []string) *filter.Filter {
	t.Helper()
	f, err := filter.New(level, apps, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestPipeline_DecodeErrors(t *testing.T) {
	frames := testFrames(t, 2)
	// Second frame announces an undefined argument type
	bad := append([]byte(nil), frames[1]...)
	copy(bad[len(bad)-8:len(bad)-4], []byte{0, 0, 0, 0})

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.dlt")
	writeFile(t, path, capture(t, [][]byte{frames[0], bad, frames[0]}))

	t.Run("without resync the stream fails", func(t *testing.T) {
		p := NewPipeline(Config{})
		var c collector
		err := p.Run(context.Background(), c.handle, &FileSource{Paths: []string{path}, Storage: true})
		if !dlt.IsUnknownType(err) {
			t.Fatalf("Run() error = %v, want unknown type", err)
		}
		if c.len() != 1 {
			t.Errorf("got %d records before the error, want 1", c.len())
		}
	})

	t.Run("resync skips the frame", func(t *testing.T) {
		p := NewPipeline(Config{Resync: true})
		var c collector
		if err := p.Run(context.Background(), c.handle, &FileSource{Paths: []string{path}, Storage: true}); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if st := p.Stats(); c.len() != 2 || st.Skipped != 1 || st.Errors != 1 {
			t.Errorf("got %d records, stats %+v", c.len(), st)
		}
	})
}

func TestPipeline_HandlerError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.dlt")
	writeFile(t, path, capture(t, testFrames(t, 50)))

	stop := errors.New("stop")
	p := NewPipeline(Config{Buffer: 1})
	err := p.Run(context.Background(), func(*format.Record) error { return stop }, &FileSource{Paths: []string{path}, Storage: true, ChunkSize: 16})
	if !errors.Is(err, stop) {
		t.Errorf("Run() error = %v, want handler error", err)
	}
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.dlt", "sub/b.dlt", "sub/deeper/c.dlt.zst", "sub/notes.txt"} {
		writeFile(t, filepath.Join(dir, name), nil)
	}

	tests := []struct {
		name     string
		patterns []string
		want     int
		wantErr  bool
	}{
		{"recursive", []string{filepath.Join(dir, "**", "*.dlt")}, 2, false},
		{"alternatives", []string{filepath.Join(dir, "**", "*.{dlt,zst}")}, 3, false},
		{"duplicates removed", []string{filepath.Join(dir, "a.dlt"), filepath.Join(dir, "*.dlt")}, 1, false},
		{"literal kept", []string{filepath.Join(dir, "missing.dlt")}, 1, false},
		{"no match", []string{filepath.Join(dir, "*.pcap")}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files, err := ExpandPatterns(tt.patterns)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExpandPatterns() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(files) != tt.want {
				t.Errorf("ExpandPatterns() = %v, want %d files", files, tt.want)
			}
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct{ in, want string }{
		{"10.0.0.1", "10.0.0.1:3490"},
		{"10.0.0.1:4000", "10.0.0.1:4000"},
		{"ecu.local", "ecu.local:3490"},
		{"::1", "[::1]:3490"},
		{"[::1]:4000", "[::1]:4000"},
	}
	for _, tt := range tests {
		if got := NormalizeAddress(tt.in); got != tt.want {
			t.Errorf("NormalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		retryable bool
	}{
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, ErrTypeConnectionRefused, true},
		{"timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, ErrTypeTimeout, true},
		{"dns", &net.DNSError{Name: "ecu.invalid", Err: "no such host", IsNotFound: true}, ErrTypeDNS, false},
		{"closed", fmt.Errorf("read failed: %w", io.EOF), ErrTypeClosed, true},
		{"generic", errors.New("broken pipe"), ErrTypeNetwork, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := ClassifyNetworkError(tt.err, "ecu:3490")
			if ce.Type != tt.wantType || ce.Retryable != tt.retryable {
				t.Errorf("ClassifyNetworkError() = %v (retryable %v), want %v (retryable %v)", ce.Type, ce.Retryable, tt.wantType, tt.retryable)
			}
			if len(Troubleshooting(ce)) == 0 {
				t.Error("Troubleshooting() returned no hints")
			}
		})
	}
	if ClassifyNetworkError(nil, "") != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestTCPSource(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	frames := testFrames(t, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			// split every frame across two writes
			_, _ = conn.Write(f[:3])
			time.Sleep(time.Millisecond)
			_, _ = conn.Write(f[3:])
		}
	}()

	var connected string
	src := &TCPSource{Address: ln.Addr().String(), OnConnect: func(a string) { connected = a }}
	p := NewPipeline(Config{})
	var c collector
	err = p.Run(context.Background(), c.handle, src)

	var ce *ConnectionError
	if !errors.As(err, &ce) || ce.Type != ErrTypeClosed {
		t.Fatalf("Run() error = %v, want connection closed", err)
	}
	if c.len() != 4 {
		t.Errorf("got %d records, want 4", c.len())
	}
	if connected != ln.Addr().String() {
		t.Errorf("OnConnect got %q", connected)
	}
}

func TestTCPSource_CancelWhileReconnecting(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listens: every dial is refused

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	src := &TCPSource{Address: addr, Reconnect: true, MaxRetryDelay: 50 * time.Millisecond}
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, func(StreamInfo) io.WriteCloser { return nopWriteCloser{} }) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

func TestTCPSource_ReconnectStates(t *testing.T) {
	tests := []struct {
		name  string
		ctx   func() (context.Context, context.CancelFunc)
		delay time.Duration
	}{
		{
			name: "deadline nearer than first retry",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 100*time.Millisecond)
			},
			delay: time.Minute,
		},
		{
			name: "cancelled during backoff",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(150*time.Millisecond, cancel)
				return ctx, cancel
			},
			delay: time.Minute,
		},
		{
			name: "far deadline with short retries",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 400*time.Millisecond)
			},
			delay: 20 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				t.Fatal(err)
			}
			addr := ln.Addr().String()
			ln.Close()

			ctx, cancel := tt.ctx()
			defer cancel()

			src := &TCPSource{Address: addr, Reconnect: true, MaxRetryDelay: tt.delay}
			done := make(chan error, 1)
			go func() { done <- src.Run(ctx, func(StreamInfo) io.WriteCloser { return nopWriteCloser{} }) }()

			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run() error = %v, want nil once the context ends", err)
				}
				if ctx.Err() == nil {
					t.Error("Run() returned before the context ended")
				}
			case <-time.After(5 * time.Second):
				t.Fatal("Run() did not return after the context ended")
			}
		})
	}
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

func TestFollowSource(t *testing.T) {
	dir := t.TempDir()
	frames := testFrames(t, 3)

	// Existing content is skipped without FromStart
	existing := filepath.Join(dir, "old.dlt")
	writeFile(t, existing, capture(t, frames[:1]))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var c collector
	p := NewPipeline(Config{})
	src := &FollowSource{Patterns: []string{filepath.Join(dir, "*.dlt")}, Storage: true}
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, c.handle, src) }()

	// Give the watcher time to start
	time.Sleep(100 * time.Millisecond)

	f, err := os.OpenFile(existing, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	data := capture(t, frames[1:])
	_, _ = f.Write(data[:10])
	_, _ = f.Write(data[10:])
	f.Close()

	writeFile(t, filepath.Join(dir, "new.dlt"), capture(t, frames))

	deadline := time.Now().Add(5 * time.Second)
	for c.len() < 5 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if got := c.len(); got != 5 {
		t.Errorf("got %d records, want 2 appended + 3 from the new file", got)
	}
}

func TestStats_Fields(t *testing.T) {
	st := Stats{Streams: 1, Frames: 10, Filtered: 2, Skipped: 3, Errors: 4}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range st.Fields() {
		f.AddTo(enc)
	}

	want := map[string]uint64{"streams": 1, "frames": 10, "filtered": 2, "skipped": 3, "errors": 4}
	if len(enc.Fields) != len(want) {
		t.Errorf("got fields %v", enc.Fields)
	}
	for k, v := range want {
		if got, ok := enc.Fields[k].(uint64); !ok || got != v {
			t.Errorf("field %s = %v, want %d", k, enc.Fields[k], v)
		}
	}
	if _, ok := enc.Fields["skipped_bytes"]; ok {
		t.Error("skip count must not be labelled as bytes")
	}
}

func TestPipeline_Tap(t *testing.T) {
	dir := t.TempDir()
	frames := testFrames(t, 4)
	path := filepath.Join(dir, "tap.dlt")
	writeFile(t, path, capture(t, frames))

	type seen struct {
		stream string
		offset int64
		app    string
	}
	var (
		mu  sync.Mutex
		got []seen
	)
	p := NewPipeline(Config{
		Filter: mustFilter(t, "error", nil),
		Tap: func(stream string, offset int64, f *dlt.Frame) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, seen{stream, offset, f.ApplicationID()})
		},
	})
	var c collector
	src := &FileSource{Paths: []string{path}, Storage: true}
	if err := p.Run(context.Background(), c.handle, src); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(got) != len(c.records) || len(got) != 2 {
		t.Fatalf("tap saw %d frames, handler %d records, want 2", len(got), len(c.records))
	}
	for i, s := range got {
		if s.app != "HMI" {
			t.Errorf("tap %d saw app %s past an error filter", i, s.app)
		}
		if s.stream != c.records[i].Stream || s.offset != c.records[i].Offset {
			t.Errorf("tap %d = %s@%d, record %s@%d", i, s.stream, s.offset, c.records[i].Stream, c.records[i].Offset)
		}
	}
}
