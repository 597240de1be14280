package dlt

import (
	"fmt"
	"time"
)

// Frame is one decoded DLT message
type Frame struct {
	Storage  *StorageHeader // set only for streams carrying storage headers
	Standard StandardHeader
	Extended *ExtendedHeader
	Payload  Payload
	Size     int // frame length on the wire, storage header excluded
}

// DecodeFrame decodes the frame at the start of data and returns it with
// its length in bytes. When data ends before the frame does, the error is
// an incomplete-frame error (IsIncomplete); any other error means the bytes
// at the front of data do not form a valid frame.
func (d *Decoder) DecodeFrame(data []byte) (*Frame, int, error) {
	if len(data) < StandardHeaderSize {
		return nil, 0, NewIncompleteError("need %d bytes for standard header, have %d", StandardHeaderSize, len(data))
	}

	hdr, err := d.DecodeHeader(data)
	if err != nil {
		if total := d.peekLength(data); len(data) < total {
			return nil, 0, NewIncompleteError("need %d bytes for frame, have %d", total, len(data))
		}
		return nil, 0, err
	}

	total := int(hdr.Standard.Length)
	if total < hdr.Length {
		return nil, 0, NewStructuralError("frame length %d shorter than header length %d", total, hdr.Length)
	}
	if len(data) < total {
		return nil, 0, NewIncompleteError("need %d bytes for frame, have %d", total, len(data))
	}

	payload, err := d.DecodePayload(data[hdr.Length:total], hdr.Extended, hdr.Standard.PayloadOrder())
	if err != nil {
		return nil, 0, err
	}

	return &Frame{
		Standard: hdr.Standard,
		Extended: hdr.Extended,
		Payload:  *payload,
		Size:     total,
	}, total, nil
}

// peekLength reads the declared frame length without validating anything else
func (d *Decoder) peekLength(data []byte) int {
	if len(data) < StandardHeaderSize {
		return StandardHeaderSize
	}
	return int(d.Profile.headerOrder().Uint16(data[2:4]))
}

// EcuID returns the ECU id of the frame, preferring the standard header
// over the storage header.
func (f *Frame) EcuID() string {
	if f.Standard.EcuID != nil {
		return *f.Standard.EcuID
	}
	if f.Storage != nil {
		return f.Storage.EcuID
	}
	return ""
}

// ApplicationID returns the application id, empty without extended header
func (f *Frame) ApplicationID() string {
	if f.Extended == nil {
		return ""
	}
	return f.Extended.ApplicationID
}

// ContextID returns the context id, empty without extended header
func (f *Frame) ContextID() string {
	if f.Extended == nil {
		return ""
	}
	return f.Extended.ContextID
}

// LogLevel returns the log level of a log message
func (f *Frame) LogLevel() (MessageTypeInfo, bool) {
	if f.Extended == nil || f.Extended.MessageType != MessageTypeLog || !f.Extended.MessageTypeInfo.IsLogLevel() {
		return InfoUndefined, false
	}
	return f.Extended.MessageTypeInfo, true
}

// Uptime returns the timestamp of the standard header as a duration since
// ECU start-up.
func (f *Frame) Uptime() (time.Duration, bool) {
	if f.Standard.Timestamp == nil {
		return 0, false
	}
	return time.Duration(*f.Standard.Timestamp) * 100 * time.Microsecond, true
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{size=%d, ecu=%s, app=%s, ctx=%s, %s}",
		f.Size, f.EcuID(), f.ApplicationID(), f.ContextID(), f.Payload.String())
}
