package attachment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/muurk/dlttap/internal/dlt"
)

var nameReplacer = strings.NewReplacer(`\`, "$", "/", "$", " ", "_")

// FileName turns an announced file name into one safe to create in a
// single directory: path separators become '$' and spaces '_'.
func FileName(name string) string {
	name = nameReplacer.Replace(name)
	if name == "" || name == "." || name == ".." {
		name = "_" + name
	}
	return name
}

// Names returns the output name of each attachment. With prefixed set
// every name gets its position as an eight digit prefix, which keeps
// transfers of the same file apart.
func Names(files []*Attachment, prefixed bool) []string {
	names := make([]string, len(files))
	for i, a := range files {
		names[i] = FileName(a.Name)
		if prefixed {
			names[i] = fmt.Sprintf("%08d_%s", i, names[i])
		}
	}
	return names
}

// Extract writes each attachment to dir under the name at the same index
// and returns the number of bytes written. It stops between files when ctx
// is cancelled.
func Extract(ctx context.Context, dir string, files []*Attachment, names []string) (int64, error) {
	if len(names) != len(files) {
		return 0, fmt.Errorf("got %d names for %d files", len(names), len(files))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written int64
	for i, a := range files {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		path := filepath.Join(dir, names[i])
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write attachment %q: %w", a.Name, err)
		}
		written += int64(len(a.Data))
	}
	return written, nil
}

// Frames builds the DLT-FT sequence announcing data as a file, split into
// packets of at most chunk bytes.
func Frames(ecu, app, ctx string, id uint32, name, created string, data []byte, chunk int) []*dlt.Frame {
	if chunk <= 0 {
		chunk = 1024
	}
	packets := (len(data) + chunk - 1) / chunk

	frames := make([]*dlt.Frame, 0, packets+2)
	frames = append(frames, dlt.NewLogFrame(ecu, app, ctx, dlt.LogInfo, 0,
		dlt.NewStringArg(StartTag),
		dlt.NewUintArg(dlt.Width32, uint64(id)),
		dlt.NewStringArg(name),
		dlt.NewUintArg(dlt.Width32, uint64(len(data))),
		dlt.NewStringArg(created),
		dlt.NewUintArg(dlt.Width32, uint64(packets)),
		dlt.NewUintArg(dlt.Width32, uint64(chunk)),
		dlt.NewStringArg(StartTag),
	))
	for p := 0; p < packets; p++ {
		end := min((p+1)*chunk, len(data))
		frames = append(frames, dlt.NewLogFrame(ecu, app, ctx, dlt.LogInfo, 0,
			dlt.NewStringArg(DataTag),
			dlt.NewUintArg(dlt.Width32, uint64(id)),
			dlt.NewUintArg(dlt.Width32, uint64(p+1)),
			dlt.NewRawArg(data[p*chunk:end]),
			dlt.NewStringArg(DataTag),
		))
	}
	frames = append(frames, dlt.NewLogFrame(ecu, app, ctx, dlt.LogInfo, 0,
		dlt.NewStringArg(EndTag),
		dlt.NewUintArg(dlt.Width32, uint64(id)),
		dlt.NewStringArg(EndTag),
	))
	return frames
}
