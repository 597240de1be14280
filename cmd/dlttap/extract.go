package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/attachment"
	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/ingest"
	"github.com/muurk/dlttap/internal/logging"
	"github.com/muurk/dlttap/internal/ui"
)

var (
	extractOut     string
	extractPrefix  bool
	extractIndexes []int
	extractList    bool
	extractForce   bool
)

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", ".", "Directory to write the files to")
	extractCmd.Flags().BoolVar(&extractPrefix, "prefix", false, "Prefix each file name with its transfer index")
	extractCmd.Flags().IntSliceVar(&extractIndexes, "index", nil, "Only extract the transfers at these indexes (see --list)")
	extractCmd.Flags().BoolVar(&extractList, "list", false, "List the transfers instead of writing them")
	extractCmd.Flags().BoolVarP(&extractForce, "force", "f", false, "Overwrite existing files without asking")
	extractCmd.Flags().BoolVar(&rawStream, "raw", false, "Input has no storage headers")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract <file|glob>...",
	Short: "Extract files sent with DLT file transfer",
	Long: `Scan capture files for DLT file transfers (FLST/FLDA/FLFI messages)
and write the reassembled files to a directory.

Path separators and spaces in announced names are replaced, so every file
lands directly in the output directory. Use --prefix when the same file
was sent more than once. Filter flags apply before scanning, so
--ecu limits extraction to the transfers of one ECU.`,
	Example: `  # List the transfers in a capture
  dlttap extract --list trace.dlt

  # Write all transferred files to ./files
  dlttap extract trace.dlt --out files --prefix

  # Only the second transfer sent by ECU2
  dlttap extract 'logs/*.dlt' --ecu ECU2 --index 1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	paths, err := ingest.ExpandPatterns(args)
	if err != nil {
		return err
	}
	pc, err := pipelineConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	if extractList {
		files, pending, err := scanAttachments(ctx, pc, paths)
		if err != nil {
			return err
		}
		return printAttachments(cmd.OutOrStdout(), files, pending)
	}

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "File Transfer Extraction",
		Command: cmd.CommandPath(),
		Params: map[string]string{
			"Files":  strconv.Itoa(len(paths)),
			"Output": extractOut,
		},
		StepNames: []string{"Scan captures", "Write files"},
		Troubleshooting: []string{
			"Run with --list to see the transfers found",
			"Check that the output directory is writable",
		},
		Output: cmd.OutOrStdout(),
	})

	return runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) (map[string]string, error) {
		onStep(1, "", ui.StepRunning, "")
		files, pending, err := scanAttachments(ctx, pc, paths)
		if err != nil {
			onStep(1, "", ui.StepFailed, err.Error())
			return nil, err
		}
		if files, err = selectAttachments(files, extractIndexes); err != nil {
			onStep(1, "", ui.StepFailed, err.Error())
			return nil, err
		}
		onStep(1, "", ui.StepComplete, fmt.Sprintf("%d transfers", len(files)))

		onStep(2, "", ui.StepRunning, "")
		names := attachment.Names(files, extractPrefix)
		if !extractForce {
			for _, name := range names {
				path := filepath.Join(extractOut, name)
				if _, err := os.Stat(path); err == nil && !ui.ConfirmOverwrite(cmd.InOrStdin(), cmd.OutOrStdout(), path) {
					err := fmt.Errorf("not overwriting %s", path)
					onStep(2, "", ui.StepFailed, err.Error())
					return nil, err
				}
			}
		}
		written, err := attachment.Extract(ctx, extractOut, files, names)
		if err != nil {
			onStep(2, "", ui.StepFailed, err.Error())
			return nil, err
		}
		onStep(2, "", ui.StepComplete, ui.FormatBytes(written))

		details := map[string]string{
			"Directory": extractOut,
			"Files":     strconv.Itoa(len(files)),
			"Size":      ui.FormatBytes(written),
		}
		if len(pending) > 0 {
			details["Unfinished"] = strconv.Itoa(len(pending))
		}
		return details, nil
	})
}

// scanAttachments decodes the captures and returns the finished and the
// unfinished transfers
func scanAttachments(ctx context.Context, pc ingest.Config, paths []string) ([]*attachment.Attachment, []*attachment.Attachment, error) {
	sc := attachment.NewScanner()
	pc.Tap = func(stream string, offset int64, f *dlt.Frame) { sc.Process(stream, offset, f) }
	p := ingest.NewPipeline(pc)
	src := &ingest.FileSource{Paths: paths, Storage: !rawStream}
	discard := func(*format.Record) error { return nil }
	if err := p.Run(ctx, discard, src); err != nil {
		return nil, nil, err
	}

	files := sc.Attachments()
	for _, a := range files {
		if !a.Complete() {
			logging.Warn("Transfer incomplete",
				zap.String("name", a.Name),
				zap.String("stream", a.Stream),
				zap.Uint32("packets", a.Packets),
				zap.Uint32("received", a.Received()),
				zap.Int("bytes", len(a.Data)),
				zap.Uint32("size", a.Size),
			)
		}
	}
	logging.Debug("Scan finished", append(p.Stats().Fields(), zap.Int("transfers", len(files)))...)
	return files, sc.Pending(), nil
}

// selectAttachments keeps the transfers at the given indexes, in that order
func selectAttachments(files []*attachment.Attachment, indexes []int) ([]*attachment.Attachment, error) {
	if len(indexes) == 0 {
		return files, nil
	}
	out := make([]*attachment.Attachment, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(files) {
			return nil, fmt.Errorf("no transfer at index %d (found %d)", i, len(files))
		}
		out = append(out, files[i])
	}
	return out, nil
}

type attachmentRow struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Size     int    `json:"size"`
	ECU      string `json:"ecu"`
	Created  string `json:"created,omitempty"`
	Stream   string `json:"stream"`
	Offset   int64  `json:"offset"`
	Complete bool   `json:"complete"`
}

func attachmentRows(files []*attachment.Attachment) []attachmentRow {
	rows := make([]attachmentRow, len(files))
	for i, a := range files {
		rows[i] = attachmentRow{
			Index:    i,
			Name:     a.Name,
			Size:     len(a.Data),
			ECU:      a.ECU,
			Created:  a.Created,
			Stream:   a.Stream,
			Offset:   a.Offsets[0],
			Complete: a.Complete(),
		}
	}
	return rows
}

func printAttachments(w io.Writer, files, pending []*attachment.Attachment) error {
	if outFormat == format.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Transfers  []attachmentRow `json:"transfers"`
			Unfinished []attachmentRow `json:"unfinished"`
		}{attachmentRows(files), attachmentRows(pending)})
	}

	p := ui.NewPrinter(w)
	if len(files) == 0 {
		p.PrintWarning("No file transfers", map[string]string{"Unfinished": strconv.Itoa(len(pending))})
		return nil
	}

	var data [][]string
	for _, r := range attachmentRows(files) {
		state := "ok"
		if !r.Complete {
			state = "incomplete"
		}
		data = append(data, []string{strconv.Itoa(r.Index), r.Name, ui.FormatBytes(int64(r.Size)), dash(r.ECU), dash(r.Created), state})
	}
	p.Println(table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ui.MutedColor)).
		Headers("#", "NAME", "SIZE", "ECU", "CREATED", "STATE").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return s.Bold(true).Foreground(ui.PrimaryColor)
			case col == 0 || col == 2:
				return s.Align(lipgloss.Right)
			case col == 5 && data[row][5] != "ok":
				return s.Foreground(ui.WarningColor)
			}
			return s
		}).
		String())
	if len(pending) > 0 {
		p.Println(lipgloss.NewStyle().Foreground(ui.MutedColor).Render(
			fmt.Sprintf("%d transfer(s) started but never finished", len(pending))))
	}
	return nil
}
