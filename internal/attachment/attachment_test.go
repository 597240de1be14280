package attachment

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/muurk/dlttap/internal/dlt"
)

type testFile struct {
	ecu  string
	id   uint32
	name string
	data string
}

var testFiles = []testFile{
	{"ecu1", 42, "test1.txt", "test1"},
	{"ecu2", 43, "test2.txt", "test22"},
	{"ecu3", 44, "test3.txt", "test333"},
}

// interleaved returns the transfers of files with their frames interleaved
func interleaved(files []testFile, chunk int) []*dlt.Frame {
	seqs := make([][]*dlt.Frame, len(files))
	longest := 0
	for i, tf := range files {
		seqs[i] = Frames(tf.ecu, "APP", "FT", tf.id, tf.name, "2024-05-01", []byte(tf.data), chunk)
		longest = max(longest, len(seqs[i]))
	}
	var out []*dlt.Frame
	for n := 0; n < longest; n++ {
		for _, seq := range seqs {
			if n < len(seq) {
				out = append(out, seq[n])
			}
		}
	}
	return out
}

func scan(frames []*dlt.Frame, keep func(*dlt.Frame) bool) *Scanner {
	sc := NewScanner()
	for i, f := range frames {
		if keep == nil || keep(f) {
			sc.Process("capture.dlt", int64(i*100), f)
		}
	}
	return sc
}

func TestParse(t *testing.T) {
	str, u32, raw := dlt.NewStringArg, dlt.NewUintArg, dlt.NewRawArg
	num := func(v uint64) dlt.Argument { return u32(dlt.Width32, v) }

	tests := []struct {
		name   string
		frame  *dlt.Frame
		verify func(t *testing.T, m *Message, ok bool)
	}{
		{
			name: "start",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogInfo, 55,
				str("FLST"), num(7), str(" report.bin "), num(300), str("Mon May 1"), num(3), num(128), str("FLST")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if !ok || m.Kind != KindStart {
					t.Fatalf("Parse() = %+v, %v", m, ok)
				}
				if m.ID != 7 || m.Name != "report.bin" || m.Size != 300 || m.Created != "Mon May 1" || m.Packets != 3 || m.BufferSize != 128 {
					t.Errorf("start = %+v", m)
				}
				if m.Timestamp == nil || *m.Timestamp != 55 {
					t.Errorf("timestamp = %v, want 55", m.Timestamp)
				}
			},
		},
		{
			name: "data",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogInfo, 0,
				str("FLDA"), num(7), num(2), raw([]byte{1, 2, 3}), str("FLDA")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if !ok || m.Kind != KindData {
					t.Fatalf("Parse() = %+v, %v", m, ok)
				}
				if m.ID != 7 || m.Packet != 2 || !bytes.Equal(m.Data, []byte{1, 2, 3}) {
					t.Errorf("data = %+v", m)
				}
			},
		},
		{
			name:  "end with narrow id",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogInfo, 0, str("FLFI"), u32(dlt.Width16, 7), str("FLFI")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if !ok || m.Kind != KindEnd || m.ID != 7 {
					t.Fatalf("Parse() = %+v, %v", m, ok)
				}
			},
		},
		{
			name:  "mismatched tags",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogInfo, 0, str("FLFI"), num(7), str("FLDA")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if ok {
					t.Errorf("Parse() = %+v, want no message", m)
				}
			},
		},
		{
			name:  "warning level",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogWarn, 0, str("FLFI"), num(7), str("FLFI")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if ok {
					t.Errorf("Parse() = %+v, want no message", m)
				}
			},
		},
		{
			name:  "too few arguments",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogInfo, 0, str("FLFI"), str("FLFI")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if ok {
					t.Errorf("Parse() = %+v, want no message", m)
				}
			},
		},
		{
			name:  "string id",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogInfo, 0, str("FLFI"), str("7"), str("FLFI")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if ok {
					t.Errorf("Parse() = %+v, want no message", m)
				}
			},
		},
		{
			name:  "id wider than 32 bits",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogInfo, 0, str("FLFI"), u32(dlt.Width64, 1<<40), str("FLFI")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if ok {
					t.Errorf("Parse() = %+v, want no message", m)
				}
			},
		},
		{
			name: "data without raw bytes",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogInfo, 0,
				str("FLDA"), num(7), num(1), str("abc"), str("FLDA")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if ok {
					t.Errorf("Parse() = %+v, want no message", m)
				}
			},
		},
		{
			name:  "ordinary log",
			frame: dlt.NewLogFrame("ECU1", "APP", "FT", dlt.LogInfo, 0, str("hello"), num(1), str("world")),
			verify: func(t *testing.T, m *Message, ok bool) {
				if ok {
					t.Errorf("Parse() = %+v, want no message", m)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := Parse(tt.frame)
			tt.verify(t, m, ok)
		})
	}
}

func TestScanner(t *testing.T) {
	tests := []struct {
		name   string
		frames []*dlt.Frame
		keep   func(*dlt.Frame) bool
		verify func(t *testing.T, sc *Scanner)
	}{
		{
			name:   "interleaved transfers",
			frames: interleaved(testFiles, 10),
			verify: func(t *testing.T, sc *Scanner) {
				files := sc.Attachments()
				if len(files) != 3 {
					t.Fatalf("got %d attachments, want 3", len(files))
				}
				for i, a := range files {
					tf := testFiles[i]
					if a.Name != tf.name || string(a.Data) != tf.data || a.ECU != tf.ecu || a.ID != tf.id {
						t.Errorf("attachment %d = %s %q from %s", i, a.Name, a.Data, a.ECU)
					}
					if !a.Complete() {
						t.Errorf("attachment %s incomplete", a.Name)
					}
					// start, one data packet and end, three files apart
					want := []int64{int64(i * 100), int64((3 + i) * 100), int64((6 + i) * 100)}
					if len(a.Offsets) != 3 || a.Offsets[0] != want[0] || a.Offsets[2] != want[2] {
						t.Errorf("attachment %s offsets = %v, want %v", a.Name, a.Offsets, want)
					}
				}
				if len(sc.Pending()) != 0 {
					t.Errorf("pending = %d, want 0", len(sc.Pending()))
				}
			},
		},
		{
			name:   "filtered by ecu",
			frames: interleaved(testFiles, 10),
			keep:   func(f *dlt.Frame) bool { return f.EcuID() == "ecu2" },
			verify: func(t *testing.T, sc *Scanner) {
				files := sc.Attachments()
				if len(files) != 1 || files[0].Name != "test2.txt" || string(files[0].Data) != "test22" {
					t.Fatalf("attachments = %v", files)
				}
			},
		},
		{
			name:   "small packets",
			frames: Frames("ecu1", "APP", "FT", 1, "big.bin", "", []byte("0123456789abcdef"), 3),
			verify: func(t *testing.T, sc *Scanner) {
				files := sc.Attachments()
				if len(files) != 1 {
					t.Fatalf("got %d attachments, want 1", len(files))
				}
				a := files[0]
				if string(a.Data) != "0123456789abcdef" || a.Packets != 6 || a.Received() != 6 || !a.Complete() {
					t.Errorf("attachment = %q, %d/%d packets", a.Data, a.Received(), a.Packets)
				}
			},
		},
		{
			name: "lost packet",
			frames: func() []*dlt.Frame {
				fs := Frames("ecu1", "APP", "FT", 1, "big.bin", "", []byte("0123456789"), 4)
				return append(fs[:2], fs[3:]...)
			}(),
			verify: func(t *testing.T, sc *Scanner) {
				files := sc.Attachments()
				if len(files) != 1 {
					t.Fatalf("got %d attachments, want 1", len(files))
				}
				if files[0].Complete() || string(files[0].Data) != "012389" {
					t.Errorf("attachment = %q, complete %v", files[0].Data, files[0].Complete())
				}
			},
		},
		{
			name: "unfinished and orphaned",
			frames: func() []*dlt.Frame {
				a := Frames("ecu1", "APP", "FT", 1, "cut.bin", "", []byte("abc"), 10)
				b := Frames("ecu1", "APP", "FT", 2, "orphan.bin", "", []byte("xyz"), 10)
				return append(a[:2], b[1:]...)
			}(),
			verify: func(t *testing.T, sc *Scanner) {
				if n := len(sc.Attachments()); n != 0 {
					t.Errorf("got %d attachments, want 0", n)
				}
				pending := sc.Pending()
				if len(pending) != 1 || pending[0].Name != "cut.bin" || string(pending[0].Data) != "abc" {
					t.Errorf("pending = %v", pending)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verify(t, scan(tt.frames, tt.keep))
		})
	}
}

func TestScanner_StreamsApart(t *testing.T) {
	a := Frames("ecu1", "APP", "FT", 9, "a.txt", "", []byte("aaaa"), 2)
	b := Frames("ecu1", "APP", "FT", 9, "b.txt", "", []byte("bb"), 2)

	sc := NewScanner()
	for i := 0; i < len(a); i++ {
		sc.Process("one.dlt", int64(i), a[i])
		if i < len(b) {
			sc.Process("two.dlt", int64(i), b[i])
		}
	}

	files := sc.Attachments()
	if len(files) != 2 {
		t.Fatalf("got %d attachments, want 2", len(files))
	}
	got := map[string]string{}
	for _, f := range files {
		got[f.Stream] = string(f.Data)
	}
	if got["one.dlt"] != "aaaa" || got["two.dlt"] != "bb" {
		t.Errorf("data by stream = %v", got)
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"test.txt", "test.txt"},
		{"/var/log/my file.txt", "$var$log$my_file.txt"},
		{`C:\temp\a b.bin`, "C:$temp$a_b.bin"},
		{"..", "_.."},
		{"", "_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FileName(tt.in); got != tt.want {
				t.Errorf("FileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtract(t *testing.T) {
	files := scan(interleaved(testFiles, 10), nil).Attachments()

	tests := []struct {
		name   string
		files  []*Attachment
		names  []string
		ctx    func() context.Context
		verify func(t *testing.T, dir string, n int64, err error)
	}{
		{
			name:  "all files",
			files: files,
			names: Names(files, false),
			verify: func(t *testing.T, dir string, n int64, err error) {
				if err != nil || n != 18 {
					t.Fatalf("Extract() = %d, %v; want 18 bytes", n, err)
				}
				for _, tf := range testFiles {
					data, err := os.ReadFile(filepath.Join(dir, tf.name))
					if err != nil || string(data) != tf.data {
						t.Errorf("%s = %q, %v", tf.name, data, err)
					}
				}
			},
		},
		{
			name:  "prefixed names",
			files: files,
			names: Names(files, true),
			verify: func(t *testing.T, dir string, n int64, err error) {
				if err != nil || n != 18 {
					t.Fatalf("Extract() = %d, %v; want 18 bytes", n, err)
				}
				for i, want := range []string{"00000000_test1.txt", "00000001_test2.txt", "00000002_test3.txt"} {
					data, err := os.ReadFile(filepath.Join(dir, want))
					if err != nil || string(data) != testFiles[i].data {
						t.Errorf("%s = %q, %v", want, data, err)
					}
				}
			},
		},
		{
			name:  "single file",
			files: files[1:2],
			names: Names(files[1:2], false),
			verify: func(t *testing.T, dir string, n int64, err error) {
				if err != nil || n != 6 {
					t.Fatalf("Extract() = %d, %v; want 6 bytes", n, err)
				}
				entries, _ := os.ReadDir(dir)
				if len(entries) != 1 || entries[0].Name() != "test2.txt" {
					t.Errorf("dir holds %v", entries)
				}
			},
		},
		{
			name:  "cancelled",
			files: files,
			names: Names(files, false),
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			verify: func(t *testing.T, dir string, n int64, err error) {
				if !errors.Is(err, context.Canceled) || n != 0 {
					t.Fatalf("Extract() = %d, %v; want 0, canceled", n, err)
				}
				entries, _ := os.ReadDir(dir)
				if len(entries) != 0 {
					t.Errorf("dir holds %v after cancel", entries)
				}
			},
		},
		{
			name:  "name count mismatch",
			files: files,
			names: []string{"one"},
			verify: func(t *testing.T, dir string, n int64, err error) {
				if err == nil {
					t.Fatal("Extract() succeeded with missing names")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}
			dir := filepath.Join(t.TempDir(), "out")
			n, err := Extract(ctx, dir, tt.files, tt.names)
			tt.verify(t, dir, n, err)
		})
	}
}

func TestFrames_Encodable(t *testing.T) {
	dec := dlt.NewDecoder(dlt.ProfileDefault)
	for _, f := range Frames("ECU1", "APP", "FT", 3, "x.bin", "now", []byte("payload"), 4) {
		data, err := dlt.EncodeFrame(f, dlt.ProfileDefault)
		if err != nil {
			t.Fatalf("EncodeFrame() error = %v", err)
		}
		back, _, err := dec.DecodeFrame(data)
		if err != nil {
			t.Fatalf("DecodeFrame() error = %v", err)
		}
		if _, ok := Parse(back); !ok {
			t.Errorf("decoded frame %s is not a transfer message", back)
		}
	}
}
