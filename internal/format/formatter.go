package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/ui"
)

// Output format names accepted by --format and the config file
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// Formatter writes one record to w
type Formatter interface {
	Format(w io.Writer, r *Record) error
}

// New returns the formatter for name. color only affects the text format.
func New(name string, color bool) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", FormatText:
		return &TextFormatter{Color: color}, nil
	case FormatJSON:
		return JSONFormatter{}, nil
	case FormatMsgpack:
		return MsgpackFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or msgpack)", name)
	}
}

// Marshal encodes a record as a single message body, used by the network
// sinks. encoding is "json" or "msgpack".
func Marshal(encoding string, r *Record) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case FormatJSON:
		return json.Marshal(r)
	case "", FormatMsgpack:
		return msgpack.Marshal(r)
	default:
		return nil, fmt.Errorf("unknown record encoding %q", encoding)
	}
}

// JSONFormatter writes newline-delimited JSON
type JSONFormatter struct{}

func (JSONFormatter) Format(w io.Writer, r *Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// MsgpackFormatter writes a stream of concatenated msgpack maps
type MsgpackFormatter struct{}

func (MsgpackFormatter) Format(w io.Writer, r *Record) error {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// TextFormatter writes one human readable line per record:
//
//	2024-05-01T10:00:00.000Z    12.3456 042 ECU1 NAV  MAIN log   info    V text
type TextFormatter struct {
	Color bool
}

const textTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func (t *TextFormatter) Format(w io.Writer, r *Record) error {
	_, err := io.WriteString(w, t.Line(r)+"\n")
	return err
}

// Line renders the record without a trailing newline
func (t *TextFormatter) Line(r *Record) string {
	uptime := strings.Repeat(" ", 10)
	if r.Uptime > 0 {
		uptime = fmt.Sprintf("%10.4f", r.Uptime)
	}
	mode := "N"
	if r.Verbose {
		mode = "V"
	}

	cols := []string{
		t.style(ui.TimeStyle, r.Time.Format(textTimeLayout)),
		t.style(ui.TimeStyle, uptime),
		t.style(ui.MetaStyle, fmt.Sprintf("%03d", r.Counter)),
		t.style(ui.IDStyle, fmt.Sprintf("%-4s", orDash(r.ECU))),
		t.style(ui.IDStyle, fmt.Sprintf("%-4s", orDash(r.App))),
		t.style(ui.IDStyle, fmt.Sprintf("%-4s", orDash(r.Context))),
		t.style(ui.MetaStyle, fmt.Sprintf("%-9s", orDash(r.Type))),
		t.style(ui.LevelStyle(r.Level()), fmt.Sprintf("%-8s", orDash(r.Info))),
		t.style(ui.MetaStyle, mode),
	}

	text := r.Text
	if lvl := r.Level(); r.Control != nil {
		text = t.style(ui.ControlStyle, text)
	} else if lvl != dlt.InfoUndefined && lvl <= dlt.LogWarn {
		text = t.style(ui.LevelStyle(lvl), text)
	}
	return strings.Join(cols, " ") + " " + text
}

func (t *TextFormatter) style(s lipgloss.Style, text string) string {
	if !t.Color {
		return text
	}
	return s.Render(text)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
