package attachment

import (
	"strings"

	"github.com/muurk/dlttap/internal/dlt"
)

// Tags framing the argument list of a file transfer message
const (
	StartTag = "FLST"
	DataTag  = "FLDA"
	EndTag   = "FLFI"
)

// Kind is the role of a file transfer message
type Kind int

const (
	KindStart Kind = iota + 1
	KindData
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindData:
		return "data"
	case KindEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Message is one DLT-FT message. Which fields are set depends on Kind:
//
//	start: ID, Name, Size, Created, Packets, BufferSize
//	data:  ID, Packet, Data
//	end:   ID
type Message struct {
	Kind      Kind
	Timestamp *uint32 // header timestamp, 0.1 ms units
	ID        uint32

	Name       string
	Size       uint32
	Created    string
	Packets    uint32
	BufferSize uint32

	Packet uint32 // 1-based
	Data   []byte
}

// Parse recognises a file transfer message. These are verbose info-level
// log frames whose first and last arguments are the same tag string:
//
//	FLST id name size created packets buffer-size FLST
//	FLDA id packet bytes FLDA
//	FLFI id FLFI
//
// Anything else, including a tagged frame with mistyped arguments, is
// reported as not a transfer message.
func Parse(f *dlt.Frame) (*Message, bool) {
	if lvl, ok := f.LogLevel(); !ok || lvl != dlt.LogInfo {
		return nil, false
	}
	if f.Payload.Mode != dlt.ModeVerbose {
		return nil, false
	}
	args := f.Payload.Arguments
	if len(args) <= 2 {
		return nil, false
	}
	first, ok1 := stringArg(&args[0])
	last, ok2 := stringArg(&args[len(args)-1])
	if !ok1 || !ok2 || first != last {
		return nil, false
	}

	m := &Message{Timestamp: f.Standard.Timestamp}
	var ok bool
	switch first {
	case StartTag:
		m.Kind = KindStart
		ok = len(args) >= 8 &&
			numberArg(&args[1], &m.ID) &&
			stringInto(&args[2], &m.Name) &&
			numberArg(&args[3], &m.Size) &&
			stringInto(&args[4], &m.Created) &&
			numberArg(&args[5], &m.Packets) &&
			numberArg(&args[6], &m.BufferSize)
	case DataTag:
		m.Kind = KindData
		ok = len(args) >= 5 &&
			numberArg(&args[1], &m.ID) &&
			numberArg(&args[2], &m.Packet) &&
			bytesArg(&args[3], &m.Data)
	case EndTag:
		m.Kind = KindEnd
		ok = numberArg(&args[1], &m.ID)
	}
	if !ok {
		return nil, false
	}
	return m, true
}

func stringArg(a *dlt.Argument) (string, bool) {
	if a.Type.Tag != dlt.TagString {
		return "", false
	}
	s, ok := a.Value.(string)
	return strings.TrimSpace(s), ok
}

func stringInto(a *dlt.Argument, dst *string) bool {
	s, ok := stringArg(a)
	*dst = s
	return ok
}

// numberArg accepts unsigned integers of any width whose value fits 32 bits
func numberArg(a *dlt.Argument, dst *uint32) bool {
	if a.Type.Tag != dlt.TagUnsignedInt {
		return false
	}
	v, ok := a.Value.(uint64)
	if !ok || v > 0xFFFFFFFF {
		return false
	}
	*dst = uint32(v)
	return true
}

func bytesArg(a *dlt.Argument, dst *[]byte) bool {
	if a.Type.Tag != dlt.TagRawData {
		return false
	}
	b, ok := a.Value.([]byte)
	*dst = b
	return ok
}
