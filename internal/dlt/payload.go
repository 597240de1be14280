package dlt

import (
	"encoding/binary"
	"fmt"
)

// PayloadMode tells how the payload was decoded
type PayloadMode int

const (
	ModeNonVerbose PayloadMode = iota
	ModeVerbose
)

func (m PayloadMode) String() string {
	if m == ModeVerbose {
		return "verbose"
	}
	return "non-verbose"
}

// MessageIDSize is the size of the message id opening a non-verbose payload
const MessageIDSize = 4

// Payload is the decoded body of a frame
type Payload struct {
	Mode      PayloadMode
	Arguments []Argument // verbose only
	MessageID uint32     // non-verbose only
	Data      []byte     // non-verbose bytes following the message id
}

// DecodeVerbosePayload decodes up to argCount arguments. A payload too short
// to hold argCount type-info fields fails before any argument is decoded.
func (d *Decoder) DecodeVerbosePayload(data []byte, argCount uint8, order binary.ByteOrder) (*Payload, error) {
	if len(data) < int(argCount)*TypeInfoSize {
		return nil, NewStructuralError("argument-count/size mismatch: %d arguments declared, payload is %d bytes", argCount, len(data))
	}

	p := &Payload{Mode: ModeVerbose, Arguments: make([]Argument, 0, argCount)}
	c := newCursor(data, order)
	for len(p.Arguments) < int(argCount) && c.remaining() > 0 {
		arg, err := d.decodeArgument(c, 0)
		if err != nil {
			return nil, annotate(err, "argument %d", len(p.Arguments))
		}
		p.Arguments = append(p.Arguments, *arg)
	}
	return p, nil
}

// DecodeNonVerbosePayload extracts the message id of a non-verbose payload.
// The bytes after it are kept uninterpreted.
func DecodeNonVerbosePayload(data []byte, order binary.ByteOrder) (*Payload, error) {
	if len(data) < MessageIDSize {
		return nil, NewStructuralError("non-verbose payload too short: %d bytes (minimum %d)", len(data), MessageIDSize)
	}
	p := &Payload{
		Mode:      ModeNonVerbose,
		MessageID: order.Uint32(data[:MessageIDSize]),
	}
	if len(data) > MessageIDSize {
		p.Data = make([]byte, len(data)-MessageIDSize)
		copy(p.Data, data[MessageIDSize:])
	}
	return p, nil
}

// DecodePayload decodes verbosely when the extended header says so and
// non-verbosely otherwise.
func (d *Decoder) DecodePayload(data []byte, ext *ExtendedHeader, order binary.ByteOrder) (*Payload, error) {
	if ext != nil && ext.Verbose {
		return d.DecodeVerbosePayload(data, ext.ArgumentCount, order)
	}
	return DecodeNonVerbosePayload(data, order)
}

// String returns a debug representation of the payload
func (p *Payload) String() string {
	if p.Mode == ModeVerbose {
		return fmt.Sprintf("Payload{verbose, args=%d}", len(p.Arguments))
	}
	return fmt.Sprintf("Payload{non-verbose, id=%d, data_len=%d}", p.MessageID, len(p.Data))
}
