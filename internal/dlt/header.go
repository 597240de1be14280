package dlt

import (
	"encoding/binary"
	"fmt"
)

// Standard header flag bits (byte 0, HTYP)
const (
	htypUEH          = 0x01 // use extended header
	htypMSBF         = 0x02 // payload is big-endian
	htypWEID         = 0x04 // with ECU id
	htypWSID         = 0x08 // with session id
	htypWTMS         = 0x10 // with timestamp
	htypVersionShift = 5
	htypVersionMask  = 0x07
)

// Header sizes
const (
	StandardHeaderSize = 4  // HTYP + MCNT + LEN
	ExtendedHeaderSize = 10 // MSIN + NOAR + APID + CTID
	idSize             = 4
)

// Extended header MSIN bits
const (
	msinVerbose   = 0x01
	msinTypeShift = 1
	msinTypeMask  = 0x07
	msinInfoShift = 4
	msinInfoMask  = 0x0F
)

// StandardHeader is the mandatory first header of every frame. Optional
// fields are nil when their flag is cleared.
type StandardHeader struct {
	UseExtendedHeader        bool
	MostSignificantByteFirst bool
	WithEcuID                bool
	WithSessionID            bool
	WithTimestamp            bool
	Version                  uint8
	MessageCounter           uint8
	Length                   uint16 // whole frame, this header included
	EcuID                    *string
	SessionID                *uint32
	Timestamp                *uint32 // 0.1 ms units
}

// HeaderLength returns the encoded size implied by the flags
func (h *StandardHeader) HeaderLength() int {
	n := StandardHeaderSize
	if h.WithEcuID {
		n += idSize
	}
	if h.WithSessionID {
		n += 4
	}
	if h.WithTimestamp {
		n += 4
	}
	return n
}

// PayloadOrder returns the byte order of the payload of this frame
func (h *StandardHeader) PayloadOrder() binary.ByteOrder {
	return PayloadOrder(h.MostSignificantByteFirst)
}

// ExtendedHeader carries message classification and the argument count
type ExtendedHeader struct {
	Verbose         bool
	MessageType     MessageType
	MessageTypeInfo MessageTypeInfo
	MTIN            uint8 // raw type-info code
	ArgumentCount   uint8
	ApplicationID   string
	ContextID       string
}

// Header is the composition of both headers
type Header struct {
	Standard StandardHeader
	Extended *ExtendedHeader
	Length   int // bytes consumed by both headers
}

// DecodeStandardHeader decodes the standard header at the start of data and
// returns it with the number of bytes consumed.
func (d *Decoder) DecodeStandardHeader(data []byte) (*StandardHeader, int, error) {
	if len(data) < StandardHeaderSize {
		return nil, 0, NewStructuralError("standard header too short: %d bytes (minimum %d)", len(data), StandardHeaderSize)
	}

	htyp := data[0]
	h := &StandardHeader{
		UseExtendedHeader:        htyp&htypUEH != 0,
		MostSignificantByteFirst: htyp&htypMSBF != 0,
		WithEcuID:                htyp&htypWEID != 0,
		WithSessionID:            htyp&htypWSID != 0,
		WithTimestamp:            htyp&htypWTMS != 0,
		Version:                  (htyp >> htypVersionShift) & htypVersionMask,
		MessageCounter:           data[1],
	}

	headerLen := h.HeaderLength()
	if len(data) < headerLen {
		return nil, 0, NewStructuralError("header longer than buffer: %d bytes (minimum %d)", len(data), headerLen)
	}

	c := newCursor(data[:headerLen], d.Profile.headerOrder())
	c.pos = 2
	h.Length, _ = c.u16("length")

	if h.WithEcuID {
		b, _ := c.bytes(idSize, "ecu id")
		ecu := asciiText(b)
		h.EcuID = &ecu
	}
	if h.WithSessionID {
		v, _ := c.u32("session id")
		h.SessionID = &v
	}
	if h.WithTimestamp {
		v, _ := c.u32("timestamp")
		h.Timestamp = &v
	}

	return h, headerLen, nil
}

// DecodeExtendedHeader decodes the 10-byte extended header at the start of
// data.
func DecodeExtendedHeader(data []byte) (*ExtendedHeader, int, error) {
	if len(data) < ExtendedHeaderSize {
		return nil, 0, NewStructuralError("extended header too short: %d bytes (minimum %d)", len(data), ExtendedHeaderSize)
	}

	msin := data[0]
	mstp := decodeMessageType((msin >> msinTypeShift) & msinTypeMask)
	mtin := (msin >> msinInfoShift) & msinInfoMask

	return &ExtendedHeader{
		Verbose:         msin&msinVerbose != 0,
		MessageType:     mstp,
		MessageTypeInfo: decodeMessageTypeInfo(mstp, mtin),
		MTIN:            mtin,
		ArgumentCount:   data[1],
		ApplicationID:   asciiText(data[2:6]),
		ContextID:       asciiText(data[6:10]),
	}, ExtendedHeaderSize, nil
}

// DecodeHeader decodes the standard header and, when flagged, the extended
// header that follows it.
func (d *Decoder) DecodeHeader(data []byte) (*Header, error) {
	std, n, err := d.DecodeStandardHeader(data)
	if err != nil {
		return nil, err
	}
	hdr := &Header{Standard: *std, Length: n}
	if !std.UseExtendedHeader {
		return hdr, nil
	}

	ext, m, err := DecodeExtendedHeader(data[n:])
	if err != nil {
		return nil, err
	}
	hdr.Extended = ext
	hdr.Length += m
	return hdr, nil
}

// String returns a debug representation of the header
func (h *StandardHeader) String() string {
	ecu := "-"
	if h.EcuID != nil {
		ecu = *h.EcuID
	}
	return fmt.Sprintf("StandardHeader{ueh=%v, msbf=%v, version=%d, counter=%d, length=%d, ecu=%s}",
		h.UseExtendedHeader, h.MostSignificantByteFirst, h.Version, h.MessageCounter, h.Length, ecu)
}

// String returns a debug representation of the header
func (h *ExtendedHeader) String() string {
	return fmt.Sprintf("ExtendedHeader{verbose=%v, type=%s, info=%s, noar=%d, app=%s, ctx=%s}",
		h.Verbose, h.MessageType, h.MessageTypeInfo, h.ArgumentCount, h.ApplicationID, h.ContextID)
}
