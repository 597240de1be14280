package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"

	"github.com/muurk/dlttap/internal/attachment"
	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/ingest"
	"github.com/muurk/dlttap/internal/ui"
)

var (
	emitCount int
	emitECU   string
	emitForce bool
	emitFiles []string
)

func init() {
	emitCmd.Flags().IntVarP(&emitCount, "count", "n", 100, "Number of frames")
	emitCmd.Flags().StringVar(&emitECU, "ecu-id", "ECU1", "ECU id written into the frames")
	emitCmd.Flags().BoolVar(&rawStream, "raw", false, "Write bare frames without storage headers")
	emitCmd.Flags().BoolVarP(&emitForce, "force", "f", false, "Overwrite without asking")
	emitCmd.Flags().StringSliceVar(&emitFiles, "attach", nil, "Append a DLT file transfer of these files")
	rootCmd.AddCommand(emitCmd)
}

var emitCmd = &cobra.Command{
	Use:   "emit <out.dlt>",
	Short: "Write a synthetic capture file",
	Long: `Write a capture file of generated frames, for testing viewers and
pipelines without an ECU at hand. The frames cycle through every log level,
argument types with names and units, a non-verbose message and a control
request. A path ending in .zst is zstd compressed.

Files given with --attach are appended as DLT file transfers, which
"dlttap extract" recovers.`,
	Example: `  dlttap emit sample.dlt
  dlttap emit -n 10000 sample.dlt.zst
  dlttap emit --raw --profile autosar frames.bin
  dlttap emit --attach report.pdf sample.dlt`,
	Args: cobra.ExactArgs(1),
	RunE: runEmit,
}

func runEmit(cmd *cobra.Command, args []string) error {
	path := args[0]
	if emitCount <= 0 {
		return fmt.Errorf("--count must be positive")
	}
	if _, err := os.Stat(path); err == nil && !emitForce {
		if !ui.ConfirmOverwrite(cmd.InOrStdin(), cmd.OutOrStdout(), path) {
			return fmt.Errorf("not overwriting %s", path)
		}
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Synthetic Capture",
		Command: "dlttap emit " + path,
		Params: map[string]string{
			"Frames":  strconv.Itoa(emitCount),
			"ECU":     emitECU,
			"Profile": decProfile.String(),
		},
		StepNames: []string{"Build frames", "Encode", "Write file"},
		Troubleshooting: []string{
			"Check that the target directory exists and is writable",
		},
		Output: cmd.OutOrStdout(),
	})

	return runner.Run(cmd.Context(), func(ctx context.Context, onStep ui.StepCallback) (map[string]string, error) {
		onStep(1, "", ui.StepRunning, "")
		frames := syntheticFrames(emitCount, emitECU)
		transfers, err := transferFrames(emitFiles, emitECU)
		if err != nil {
			onStep(1, "", ui.StepFailed, err.Error())
			return nil, err
		}
		frames = append(frames, transfers...)
		onStep(1, "", ui.StepComplete, fmt.Sprintf("%d frames", len(frames)))

		onStep(2, "", ui.StepRunning, "")
		data, err := encodeCapture(frames, decProfile, !rawStream, time.Now(), emitECU)
		if err != nil {
			onStep(2, "", ui.StepFailed, err.Error())
			return nil, err
		}
		onStep(2, "", ui.StepComplete, ui.FormatBytes(int64(len(data))))

		onStep(3, "", ui.StepRunning, "")
		written, err := writeCapture(path, data)
		if err != nil {
			onStep(3, "", ui.StepFailed, err.Error())
			return nil, err
		}
		onStep(3, "", ui.StepComplete, ui.FormatBytes(written))

		return map[string]string{
			"File":   path,
			"Frames": strconv.Itoa(len(frames)),
			"Size":   ui.FormatBytes(written),
		}, nil
	})
}

var syntheticApps = []struct {
	app, ctx string
}{
	{"NAV", "ROUT"},
	{"HMI", "MAIN"},
	{"DIAG", "UDS"},
}

// syntheticFrames builds n frames cycling through levels, argument kinds,
// one non-verbose message and one control request
func syntheticFrames(n int, ecu string) []*dlt.Frame {
	levels := []dlt.MessageTypeInfo{dlt.LogInfo, dlt.LogDebug, dlt.LogWarn, dlt.LogVerbose, dlt.LogError, dlt.LogInfo, dlt.LogFatal}
	frames := make([]*dlt.Frame, 0, n)
	for i := 0; i < n; i++ {
		src := syntheticApps[i%len(syntheticApps)]
		ts := uint32(i * 250) // 25 ms apart

		switch {
		case i%17 == 16:
			f := dlt.NewControlFrame("DA1", "DC1", dlt.ServiceGetSoftwareVersion, nil)
			frames = append(frames, f)
		case i%11 == 10:
			f := dlt.NewLogFrame(ecu, src.app, src.ctx, dlt.LogInfo, ts)
			f.Extended.Verbose = false
			f.Payload = dlt.Payload{Mode: dlt.ModeNonVerbose, MessageID: uint32(1000 + i), Data: []byte{byte(i), 0xCA, 0xFE}}
			frames = append(frames, f)
		default:
			lvl := levels[i%len(levels)]
			args := []dlt.Argument{
				dlt.NewStringArg(fmt.Sprintf("%s event %d", src.app, i)),
				dlt.NewUintArg(dlt.Width32, uint64(i)).Named("seq", ""),
			}
			switch i % 4 {
			case 1:
				args = append(args, dlt.NewFloat32Arg(float32(i)*0.5).Named("speed", "km/h"))
			case 2:
				args = append(args, dlt.NewBoolArg(i%3 == 0))
			case 3:
				args = append(args, dlt.NewIntArg(dlt.Width16, int64(-i)), dlt.NewRawArg([]byte{0xde, 0xad, byte(i)}))
			}
			frames = append(frames, dlt.NewLogFrame(ecu, src.app, src.ctx, lvl, ts, args...))
		}
	}
	return frames
}

// transferFrames announces each file as a DLT file transfer, ids counting
// from 1
func transferFrames(paths []string, ecu string) ([]*dlt.Frame, error) {
	var frames []*dlt.Frame
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		created := ""
		if info, err := os.Stat(path); err == nil {
			created = info.ModTime().Format(time.ANSIC)
		}
		frames = append(frames, attachment.Frames(ecu, "DLTF", "FILE", uint32(i+1), filepath.Base(path), created, data, 1024)...)
	}
	return frames, nil
}

// encodeCapture encodes frames back to back, each behind a storage header
// when storage is set. Capture times start at start, 25 ms apart; frames
// without an ECU id are stored under defaultECU.
func encodeCapture(frames []*dlt.Frame, p dlt.Profile, storage bool, start time.Time, defaultECU string) ([]byte, error) {
	var out []byte
	for i, f := range frames {
		data, err := dlt.EncodeFrame(f, p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
		if storage {
			ecu := f.EcuID()
			if ecu == "" {
				ecu = defaultECU
			}
			at := start.Add(time.Duration(i) * 25 * time.Millisecond)
			out = dlt.EncodeStorageHeader(out, dlt.NewStorageHeader(at, ecu))
		}
		out = append(out, data...)
	}
	return out, nil
}

// writeCapture writes data to path, zstd compressed for .zst paths, and
// returns the file size
func writeCapture(path string, data []byte) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var zw *zstd.Encoder
	if ingest.IsCompressed(path) {
		if zw, err = zstd.NewWriter(f); err != nil {
			return 0, err
		}
		w = zw
	}
	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return 0, fmt.Errorf("failed to compress %s: %w", path, err)
		}
	}
	if err := f.Sync(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
