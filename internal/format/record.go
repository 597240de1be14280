package format

import (
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"github.com/muurk/dlttap/internal/dlt"
)

// Record is the flattened, serialisable view of one decoded frame. It is
// what every output (terminal, WebSocket, MQTT, nanomsg) carries.
type Record struct {
	Stream    string         `json:"stream,omitempty" msgpack:"stream,omitempty"`
	Offset    int64          `json:"offset" msgpack:"offset"`
	Time      time.Time      `json:"time" msgpack:"time"`
	Uptime    float64        `json:"uptime,omitempty" msgpack:"uptime,omitempty"` // seconds since ECU start
	Counter   uint8          `json:"counter" msgpack:"counter"`
	ECU       string         `json:"ecu,omitempty" msgpack:"ecu,omitempty"`
	SessionID *uint32        `json:"session_id,omitempty" msgpack:"session_id,omitempty"`
	App       string         `json:"app,omitempty" msgpack:"app,omitempty"`
	Context   string         `json:"ctx,omitempty" msgpack:"ctx,omitempty"`
	Type      string         `json:"type,omitempty" msgpack:"type,omitempty"`
	Info      string         `json:"info,omitempty" msgpack:"info,omitempty"` // log level or trace/control kind
	Verbose   bool           `json:"verbose" msgpack:"verbose"`
	MessageID *uint32        `json:"message_id,omitempty" msgpack:"message_id,omitempty"`
	Args      []Arg          `json:"args,omitempty" msgpack:"args,omitempty"`
	Data      string         `json:"data,omitempty" msgpack:"data,omitempty"` // non-verbose bytes, hex
	Control   *ControlRecord `json:"control,omitempty" msgpack:"control,omitempty"`
	Text      string         `json:"text" msgpack:"text"`
}

// Arg is one verbose argument. Value is a bool, integer, float, string,
// []Arg (struct) or *Array. Raw data is hex encoded and 128-bit integers
// are decimal strings.
type Arg struct {
	Type  string `json:"type" msgpack:"type"`
	Name  string `json:"name,omitempty" msgpack:"name,omitempty"`
	Unit  string `json:"unit,omitempty" msgpack:"unit,omitempty"`
	Value any    `json:"value" msgpack:"value"`
	Raw   any    `json:"raw,omitempty" msgpack:"raw,omitempty"` // unscaled fixed-point value
}

// Array is the serialisable form of an array argument
type Array struct {
	Dimensions []uint16 `json:"dims" msgpack:"dims"`
	Elements   []any    `json:"elements" msgpack:"elements"`
}

// ControlRecord describes a control message
type ControlRecord struct {
	Service  string `json:"service" msgpack:"service"`
	Response bool   `json:"response" msgpack:"response"`
	Status   string `json:"status,omitempty" msgpack:"status,omitempty"`
}

// NewRecord flattens a frame. received is used as the record time when the
// frame carries no storage header.
func NewRecord(f *dlt.Frame, stream string, offset int64, received time.Time) *Record {
	r := &Record{
		Stream:    stream,
		Offset:    offset,
		Time:      received.UTC(),
		Counter:   f.Standard.MessageCounter,
		ECU:       f.EcuID(),
		SessionID: f.Standard.SessionID,
		App:       f.ApplicationID(),
		Context:   f.ContextID(),
		Verbose:   f.Payload.Mode == dlt.ModeVerbose,
	}
	if f.Storage != nil {
		r.Time = f.Storage.Time()
	}
	if up, ok := f.Uptime(); ok {
		r.Uptime = up.Seconds()
	}
	if ext := f.Extended; ext != nil {
		r.Type = ext.MessageType.String()
		r.Info = ext.MessageTypeInfo.String()
	}

	if r.Verbose {
		r.Args = make([]Arg, len(f.Payload.Arguments))
		for i := range f.Payload.Arguments {
			r.Args[i] = newArg(&f.Payload.Arguments[i])
		}
	} else {
		id := f.Payload.MessageID
		r.MessageID = &id
		if len(f.Payload.Data) > 0 {
			r.Data = hex.EncodeToString(f.Payload.Data)
		}
	}
	if ctrl, ok := f.Control(); ok {
		r.Control = &ControlRecord{Service: ctrl.ServiceName, Response: ctrl.Response, Status: ctrl.Status}
	}
	r.Text = PayloadText(f)
	return r
}

func newArg(a *dlt.Argument) Arg {
	out := Arg{Type: a.Type.String(), Name: a.Name, Unit: a.Unit, Value: argValue(a.Value)}
	if a.FixedPoint != nil {
		if scaled, ok := a.Scaled(); ok {
			out.Raw = out.Value
			out.Value = scaled
		}
	}
	return out
}

func argValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return hex.EncodeToString(x)
	case *big.Int:
		return x.String()
	case []dlt.Argument:
		members := make([]Arg, len(x))
		for i := range x {
			members[i] = newArg(&x[i])
		}
		return members
	case *dlt.ArrayValue:
		elems := make([]any, len(x.Elements))
		for i, e := range x.Elements {
			elems[i] = argValue(e)
		}
		return &Array{Dimensions: x.Dimensions, Elements: elems}
	default:
		return v
	}
}

// Level returns the log level of the record, or InfoUndefined for other
// message types.
func (r *Record) Level() dlt.MessageTypeInfo {
	if r.Type != dlt.MessageTypeLog.String() {
		return dlt.InfoUndefined
	}
	lvl, err := dlt.ParseLogLevel(r.Info)
	if err != nil {
		return dlt.InfoUndefined
	}
	return lvl
}

// Topic returns the MQTT style topic path <prefix>/<ecu>/<app>/<ctx>, with
// "-" standing in for missing ids. Topic wildcards and separators inside
// ids are replaced by '_'.
func (r *Record) Topic(prefix string) string {
	return prefix + "/" + topicLevel(r.ECU) + "/" + topicLevel(r.App) + "/" + topicLevel(r.Context)
}

var topicReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

func topicLevel(s string) string {
	if s == "" {
		return "-"
	}
	return topicReplacer.Replace(s)
}
