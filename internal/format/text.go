package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/dlttap/internal/dlt"
)

// Separator between arguments in rendered payload text
const argSeparator = " "

// PayloadText renders the payload of a frame as a single line:
// verbose arguments separated by spaces ("name: unit value" for named ones),
// control messages as "[service_name]" and other non-verbose payloads as
// "[message id] hex bytes". Line breaks inside strings are replaced by
// spaces so every record stays on one line.
func PayloadText(f *dlt.Frame) string {
	if ctrl, ok := f.Control(); ok {
		text := "[" + ctrl.ServiceName + "]"
		if ctrl.Status != "" {
			text += " " + ctrl.Status
		}
		return text
	}

	if f.Payload.Mode == dlt.ModeNonVerbose {
		text := "[" + strconv.FormatUint(uint64(f.Payload.MessageID), 10) + "]"
		if len(f.Payload.Data) > 0 {
			text += fmt.Sprintf(" % x", f.Payload.Data)
		}
		return text
	}

	parts := make([]string, len(f.Payload.Arguments))
	for i := range f.Payload.Arguments {
		parts[i] = ArgumentText(&f.Payload.Arguments[i])
	}
	return strings.Join(parts, argSeparator)
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// ArgumentText renders one argument. Fixed-point arguments show the scaled
// value.
func ArgumentText(a *dlt.Argument) string {
	var value string
	if a.FixedPoint != nil {
		if scaled, ok := a.Scaled(); ok {
			value = strconv.FormatFloat(scaled, 'g', -1, 64)
		}
	}
	if value == "" {
		value = lineBreaks.Replace(a.String())
	}

	var b strings.Builder
	if a.Name != "" {
		b.WriteString(a.Name)
		b.WriteString(": ")
	}
	if a.Unit != "" {
		b.WriteString(a.Unit)
		b.WriteString(" ")
	}
	b.WriteString(value)
	return b.String()
}
