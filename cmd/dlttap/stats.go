package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/format"
	"github.com/muurk/dlttap/internal/ingest"
	"github.com/muurk/dlttap/internal/ui"
)

func init() {
	statsCmd.Flags().BoolVar(&rawStream, "raw", false, "Input has no storage headers")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats <file|glob>...",
	Short: "Count frames per ECU, application, context and level",
	Long: `Decode capture files and print a table of frame counts per
ECU/application/context with a column per log level. Filter flags apply
before counting.`,
	Example: `  dlttap stats trace.dlt
  dlttap stats 'logs/*.dlt.zst' --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStats,
}

// statsLevels are the table columns, most severe first
var statsLevels = []dlt.MessageTypeInfo{dlt.LogFatal, dlt.LogError, dlt.LogWarn, dlt.LogInfo, dlt.LogDebug, dlt.LogVerbose}

type statsRow struct {
	ECU     string         `json:"ecu"`
	App     string         `json:"app"`
	Context string         `json:"ctx"`
	Total   int            `json:"total"`
	Levels  map[string]int `json:"levels,omitempty"`
	Other   int            `json:"other,omitempty"` // non-log messages
}

type statsCounter struct {
	rows map[[3]string]*statsRow
}

func newStatsCounter() *statsCounter {
	return &statsCounter{rows: make(map[[3]string]*statsRow)}
}

func (c *statsCounter) add(r *format.Record) error {
	k := [3]string{r.ECU, r.App, r.Context}
	row := c.rows[k]
	if row == nil {
		row = &statsRow{ECU: r.ECU, App: r.App, Context: r.Context, Levels: make(map[string]int)}
		c.rows[k] = row
	}
	row.Total++
	if lvl := r.Level(); lvl != dlt.InfoUndefined {
		row.Levels[lvl.String()]++
	} else {
		row.Other++
	}
	return nil
}

// sorted returns the rows ordered by ECU, app and context
func (c *statsCounter) sorted() []*statsRow {
	rows := make([]*statsRow, 0, len(c.rows))
	for _, r := range c.rows {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.ECU != b.ECU {
			return a.ECU < b.ECU
		}
		if a.App != b.App {
			return a.App < b.App
		}
		return a.Context < b.Context
	})
	return rows
}

func (c *statsCounter) render() string {
	headers := []string{"ECU", "APP", "CTX", "TOTAL"}
	for _, lvl := range statsLevels {
		headers = append(headers, lvl.String())
	}
	headers = append(headers, "other")

	var data [][]string
	for _, r := range c.sorted() {
		row := []string{dash(r.ECU), dash(r.App), dash(r.Context), strconv.Itoa(r.Total)}
		for _, lvl := range statsLevels {
			row = append(row, strconv.Itoa(r.Levels[lvl.String()]))
		}
		data = append(data, append(row, strconv.Itoa(r.Other)))
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ui.MutedColor)).
		Headers(headers...).
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return s.Bold(true).Foreground(ui.PrimaryColor)
			case col >= 4 && col < 4+len(statsLevels):
				return s.Align(lipgloss.Right).Inherit(ui.LevelStyle(statsLevels[col-4]))
			case col == 3 || col == len(headers)-1:
				return s.Align(lipgloss.Right)
			}
			return s
		}).
		String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runStats(cmd *cobra.Command, args []string) error {
	paths, err := ingest.ExpandPatterns(args)
	if err != nil {
		return err
	}
	var total int64
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil {
			total += info.Size()
		}
	}

	p, err := newPipeline()
	if err != nil {
		return err
	}
	src := &ingest.FileSource{Paths: paths, Storage: !rawStream}

	// header and progress on stderr only when someone is watching
	var bar *ui.ByteProgress
	if term.IsTerminal(int(os.Stderr.Fd())) {
		ui.NewPrinter(os.Stderr).PrintHeader("DLT statistics", cmd.CommandPath(), map[string]string{
			"Files":   strconv.Itoa(len(paths)),
			"Size":    ui.FormatBytes(total),
			"Profile": decProfile.String(),
		})
		bar = ui.NewByteProgress("Decoding ", total)
		src.Progress = func(n int) {
			bar.Add(n)
			fmt.Fprint(os.Stderr, "\r"+bar.Render())
		}
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	counter := newStatsCounter()
	runErr := p.Run(ctx, counter.add, src)
	if bar != nil {
		fmt.Fprintln(os.Stderr)
	}
	if runErr != nil && !ingest.IsCancellation(runErr) {
		return runErr
	}

	return printStats(cmd.OutOrStdout(), counter, p.Stats(), len(paths))
}

func printStats(w io.Writer, counter *statsCounter, st ingest.Stats, files int) error {
	if outFormat == format.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Files    int          `json:"files"`
			Pipeline ingest.Stats `json:"pipeline"`
			Rows     []*statsRow  `json:"rows"`
		}{files, st, counter.sorted()})
	}

	fmt.Fprintln(w, counter.render())
	details := map[string]string{
		"Files":    strconv.Itoa(files),
		"Frames":   strconv.FormatUint(st.Frames, 10),
		"Filtered": strconv.FormatUint(st.Filtered, 10),
	}
	p := ui.NewPrinter(w)
	if st.Errors > 0 || st.Skipped > 0 {
		res := ui.NewWarningResult("Statistics", details).SetWidth(p.Width())
		res.AddDetail("Decode errors", strconv.FormatUint(st.Errors, 10)).
			AddDetail("Resync skips", strconv.FormatUint(st.Skipped, 10))
		p.Println(res.Render())
		return nil
	}
	p.PrintSuccess("Statistics", details)
	return nil
}
