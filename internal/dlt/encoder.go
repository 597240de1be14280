package dlt

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"sync/atomic"
)

// Encoder library for building DLT frames. It is the inverse of Decoder and
// is used by the emit command, by tests and by anything that needs to
// produce captures a DLT viewer can open.

const (
	// MaxFrameSize is the largest frame the 16-bit length field can describe
	MaxFrameSize = math.MaxUint16

	// ProtocolVersion is written into every encoded standard header
	ProtocolVersion = 1
)

// wireOrder is a byte order that can also append
type wireOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

func wireOrderOf(o binary.ByteOrder) wireOrder {
	if o == binary.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Global message counter (thread-safe), wraps at 255
var messageCounter uint32

// NextMessageCounter returns the next value for StandardHeader.MessageCounter
func NextMessageCounter() uint8 {
	return uint8(atomic.AddUint32(&messageCounter, 1) - 1)
}

// EncodeFrame encodes f with the given profile and returns the wire bytes.
//
// Frame Structure:
//
//	[0]      HTYP           UEH|MSBF|WEID|WSID|WTMS flags, version in bits 5-7
//	[1]      MCNT           Message counter
//	[2-3]    LEN            Frame length (byte order set by the profile)
//	[4-7]    ECU            ECU id (if WEID)
//	[..+4]   SEID           Session id (if WSID)
//	[..+4]   TMSP           Timestamp, 0.1 ms units (if WTMS)
//	[..+10]  extended hdr   MSIN, NOAR, APID, CTID (if UEH)
//	[..]     payload        Arguments (verbose) or message id + data
//
// The header flags are taken from f.Standard. EncodeFrame fills in the
// computed lengths (f.Standard.Length, f.Size, argument sizes), so a frame
// decoded from the returned bytes compares equal to f. A verbose frame gets
// its argument count from the argument list.
func EncodeFrame(f *Frame, p Profile) ([]byte, error) {
	std := &f.Standard
	if std.WithEcuID && std.EcuID == nil {
		return nil, fmt.Errorf("ecu id flagged but not set")
	}
	if std.WithSessionID && std.SessionID == nil {
		return nil, fmt.Errorf("session id flagged but not set")
	}
	if std.WithTimestamp && std.Timestamp == nil {
		return nil, fmt.Errorf("timestamp flagged but not set")
	}
	std.UseExtendedHeader = f.Extended != nil
	if std.Version == 0 {
		std.Version = ProtocolVersion
	}

	order := wireOrderOf(std.PayloadOrder())
	var payload []byte
	var err error
	if f.Extended != nil && f.Extended.Verbose {
		if len(f.Payload.Arguments) > math.MaxUint8 {
			return nil, fmt.Errorf("too many arguments: %d (max %d)", len(f.Payload.Arguments), math.MaxUint8)
		}
		f.Payload.Mode = ModeVerbose
		f.Extended.ArgumentCount = uint8(len(f.Payload.Arguments))
		for i := range f.Payload.Arguments {
			if payload, err = appendArgument(payload, &f.Payload.Arguments[i], order, p, 0); err != nil {
				return nil, fmt.Errorf("argument %d: %w", i, err)
			}
		}
	} else {
		f.Payload.Mode = ModeNonVerbose
		payload = order.AppendUint32(payload, f.Payload.MessageID)
		payload = append(payload, f.Payload.Data...)
	}

	headerLen := std.HeaderLength()
	if f.Extended != nil {
		headerLen += ExtendedHeaderSize
	}
	total := headerLen + len(payload)
	if total > MaxFrameSize {
		return nil, fmt.Errorf("frame too large: %d bytes (max %d)", total, MaxFrameSize)
	}
	std.Length = uint16(total)
	f.Size = total

	hOrder := wireOrderOf(p.headerOrder())
	frame := make([]byte, 0, total)
	frame = append(frame, encodeHTYP(std), std.MessageCounter)
	frame = hOrder.AppendUint16(frame, std.Length)
	if std.WithEcuID {
		frame = append(frame, padID(*std.EcuID)...)
	}
	if std.WithSessionID {
		frame = hOrder.AppendUint32(frame, *std.SessionID)
	}
	if std.WithTimestamp {
		frame = hOrder.AppendUint32(frame, *std.Timestamp)
	}
	if ext := f.Extended; ext != nil {
		frame = append(frame, encodeMSIN(ext), ext.ArgumentCount)
		frame = append(frame, padID(ext.ApplicationID)...)
		frame = append(frame, padID(ext.ContextID)...)
	}
	frame = append(frame, payload...)

	return frame, nil
}

func encodeHTYP(h *StandardHeader) byte {
	var b byte
	if h.UseExtendedHeader {
		b |= htypUEH
	}
	if h.MostSignificantByteFirst {
		b |= htypMSBF
	}
	if h.WithEcuID {
		b |= htypWEID
	}
	if h.WithSessionID {
		b |= htypWSID
	}
	if h.WithTimestamp {
		b |= htypWTMS
	}
	return b | (h.Version&htypVersionMask)<<htypVersionShift
}

func encodeMSIN(h *ExtendedHeader) byte {
	var b byte
	if h.Verbose {
		b |= msinVerbose
	}
	mstp := h.MessageType
	if mstp == MessageTypeUndefined {
		mstp = msinTypeMask
	}
	b |= (byte(mstp) & msinTypeMask) << msinTypeShift
	return b | (h.MTIN&msinInfoMask)<<msinInfoShift
}

// padID returns a 4-byte id field, NUL padded or truncated.
func padID(id string) []byte {
	b := make([]byte, idSize)
	copy(b, id)
	return b
}

// appendArgument appends the wire form of arg and records its size.
func appendArgument(dst []byte, arg *Argument, order wireOrder, p Profile, depth int) ([]byte, error) {
	if depth >= DefaultMaxDepth {
		return nil, fmt.Errorf("struct nesting deeper than %d levels", DefaultMaxDepth)
	}
	start := len(dst)
	ti := arg.Type
	dst = order.AppendUint32(dst, ti.Raw)

	var err error
	switch ti.Tag {
	case TagBool:
		v, ok := arg.Value.(bool)
		if !ok {
			return nil, fmt.Errorf("bool argument holds %T", arg.Value)
		}
		dst = appendVariableInfo(dst, arg, order, p, false)
		dst = append(dst, boolByte(v))
	case TagSignedInt, TagUnsignedInt:
		dst = appendVariableInfo(dst, arg, order, p, true)
		if ti.HasFixedPoint {
			if dst, err = appendFixedPoint(dst, arg.FixedPoint, ti.WidthCode, order); err != nil {
				return nil, err
			}
		}
		if dst, err = appendInteger(dst, arg.Value, ti.ByteWidth(), order); err != nil {
			return nil, err
		}
	case TagFloat:
		v, ok := arg.Value.(float64)
		if !ok {
			return nil, fmt.Errorf("float argument holds %T", arg.Value)
		}
		dst = appendVariableInfo(dst, arg, order, p, true)
		if dst, err = appendFloat(dst, v, ti.WidthCode, order); err != nil {
			return nil, err
		}
	case TagString, TagTraceInfo:
		v, ok := arg.Value.(string)
		if !ok {
			return nil, fmt.Errorf("string argument holds %T", arg.Value)
		}
		data := append([]byte(v), 0)
		dst = order.AppendUint16(dst, uint16(len(data)))
		if ti.Tag == TagString {
			dst = appendVariableInfo(dst, arg, order, p, false)
		}
		dst = append(dst, data...)
	case TagRawData:
		v, ok := arg.Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("raw argument holds %T", arg.Value)
		}
		dst = order.AppendUint16(dst, uint16(len(v)))
		dst = appendVariableInfo(dst, arg, order, p, false)
		dst = append(dst, v...)
	case TagStruct:
		members, ok := arg.Value.([]Argument)
		if !ok {
			return nil, fmt.Errorf("struct argument holds %T", arg.Value)
		}
		dst = order.AppendUint16(dst, uint16(len(members)))
		dst = appendVariableInfo(dst, arg, order, p, false)
		for i := range members {
			if dst, err = appendArgument(dst, &members[i], order, p, depth+1); err != nil {
				return nil, fmt.Errorf("struct entry %d: %w", i, err)
			}
		}
	case TagArray:
		if dst, err = appendArray(dst, arg, order, p); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("cannot encode argument of type %s", ti.Tag)
	}

	arg.Size = len(dst) - start
	return dst, nil
}

func appendVariableInfo(dst []byte, arg *Argument, order wireOrder, p Profile, withUnit bool) []byte {
	if !arg.Type.HasVariableInfo {
		return dst
	}
	name := append([]byte(arg.Name), 0)
	unit := append([]byte(arg.Unit), 0)
	if p == ProfileAutosar && withUnit {
		dst = order.AppendUint16(dst, uint16(len(name)))
		dst = order.AppendUint16(dst, uint16(len(unit)))
		dst = append(dst, name...)
		return append(dst, unit...)
	}
	dst = order.AppendUint16(dst, uint16(len(name)))
	dst = append(dst, name...)
	if withUnit {
		dst = order.AppendUint16(dst, uint16(len(unit)))
		dst = append(dst, unit...)
	}
	return dst
}

func appendFixedPoint(dst []byte, fp *FixedPoint, widthCode uint8, order wireOrder) ([]byte, error) {
	if fp == nil {
		return nil, fmt.Errorf("fixed point flagged but not set")
	}
	dst = order.AppendUint32(dst, math.Float32bits(fp.Quantization))
	switch fixedPointOffsetBytes(widthCode) {
	case 4:
		return order.AppendUint32(dst, uint32(int32(fp.Offset))), nil
	case 8:
		return order.AppendUint64(dst, uint64(fp.Offset)), nil
	case 16:
		off := fp.WideOffset
		if off == nil {
			off = big.NewInt(fp.Offset)
		}
		return put128(dst, order, off), nil
	default:
		return nil, fmt.Errorf("fixed point width code %d", widthCode)
	}
}

func appendInteger(dst []byte, v any, width int, order wireOrder) ([]byte, error) {
	if width == 16 {
		n, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("128-bit integer holds %T", v)
		}
		if n.BitLen() > 128 {
			return nil, fmt.Errorf("integer %s does not fit 128 bits", n)
		}
		return put128(dst, order, n), nil
	}

	var u uint64
	switch n := v.(type) {
	case int64:
		u = uint64(n)
	case uint64:
		u = n
	default:
		return nil, fmt.Errorf("integer argument holds %T", v)
	}
	switch width {
	case 1:
		return append(dst, byte(u)), nil
	case 2:
		return order.AppendUint16(dst, uint16(u)), nil
	case 4:
		return order.AppendUint32(dst, uint32(u)), nil
	case 8:
		return order.AppendUint64(dst, u), nil
	default:
		return nil, fmt.Errorf("integer width %d bytes", width)
	}
}

func appendFloat(dst []byte, v float64, widthCode uint8, order wireOrder) ([]byte, error) {
	switch widthCode {
	case Width16:
		return order.AppendUint16(dst, floatToHalf(v)), nil
	case Width32:
		return order.AppendUint32(dst, math.Float32bits(float32(v))), nil
	case Width64:
		return order.AppendUint64(dst, math.Float64bits(v)), nil
	default:
		return nil, fmt.Errorf("unsupported width: float width code %d", widthCode)
	}
}

func appendArray(dst []byte, arg *Argument, order wireOrder, p Profile) ([]byte, error) {
	av, ok := arg.Value.(*ArrayValue)
	if !ok {
		return nil, fmt.Errorf("array argument holds %T", arg.Value)
	}
	total := 1
	for _, d := range av.Dimensions {
		total *= int(d)
	}
	if len(av.Dimensions) == 0 {
		total = 0
	}
	if total != len(av.Elements) {
		return nil, fmt.Errorf("array dimensions describe %d elements, have %d", total, len(av.Elements))
	}

	elem := arg.Type.ElementTag()
	dst = order.AppendUint16(dst, uint16(len(av.Dimensions)))
	for _, d := range av.Dimensions {
		dst = order.AppendUint16(dst, d)
	}
	dst = appendVariableInfo(dst, arg, order, p, elem != TagBool)

	var err error
	if arg.Type.HasFixedPoint && (elem == TagSignedInt || elem == TagUnsignedInt) {
		if dst, err = appendFixedPoint(dst, arg.FixedPoint, arg.Type.WidthCode, order); err != nil {
			return nil, err
		}
	}
	for i, e := range av.Elements {
		switch elem {
		case TagBool:
			b, ok := e.(bool)
			if !ok {
				return nil, fmt.Errorf("array element %d holds %T", i, e)
			}
			dst = append(dst, boolByte(b))
		case TagFloat:
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("array element %d holds %T", i, e)
			}
			if dst, err = appendFloat(dst, f, arg.Type.WidthCode, order); err != nil {
				return nil, err
			}
		case TagSignedInt, TagUnsignedInt:
			if dst, err = appendInteger(dst, e, arg.Type.ByteWidth(), order); err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
		default:
			return nil, fmt.Errorf("cannot encode array of %s", elem)
		}
	}
	return dst, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

// floatToHalf converts to IEEE 754 binary16, truncating the mantissa.
func floatToHalf(v float64) uint16 {
	bits := math.Float32bits(float32(v))
	sign := uint16(bits>>16) & 0x8000
	exp := int((bits>>23)&0xFF) - 127 + 15
	mant := bits & 0x7FFFFF

	switch {
	case math.IsNaN(v):
		return sign | 0x7E00
	case exp >= 0x1F:
		return sign | 0x7C00 // overflow and infinity
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		return sign | uint16(mant>>uint(14-exp))
	default:
		return sign | uint16(exp)<<10 | uint16(mant>>13)
	}
}

// Argument constructors. They return arguments ready for EncodeFrame.

// NewBoolArg creates a boolean argument
func NewBoolArg(v bool) Argument {
	return Argument{Type: NewTypeInfo(TagBool, Width8), Value: v}
}

// NewIntArg creates a signed integer argument of the given width code
func NewIntArg(widthCode uint8, v int64) Argument {
	return Argument{Type: NewTypeInfo(TagSignedInt, widthCode), Value: v}
}

// NewUintArg creates an unsigned integer argument of the given width code
func NewUintArg(widthCode uint8, v uint64) Argument {
	return Argument{Type: NewTypeInfo(TagUnsignedInt, widthCode), Value: v}
}

// NewFloat32Arg creates a single precision float argument
func NewFloat32Arg(v float32) Argument {
	return Argument{Type: NewTypeInfo(TagFloat, Width32), Value: float64(v)}
}

// NewFloat64Arg creates a double precision float argument
func NewFloat64Arg(v float64) Argument {
	return Argument{Type: NewTypeInfo(TagFloat, Width64), Value: v}
}

// NewStringArg creates a UTF-8 string argument
func NewStringArg(v string) Argument {
	return Argument{Type: NewTypeInfo(TagString, 0).WithCoding(CodingUTF8), Value: v}
}

// NewRawArg creates a raw data argument
func NewRawArg(v []byte) Argument {
	return Argument{Type: NewTypeInfo(TagRawData, 0), Value: v}
}

// NewStructArg creates a struct argument from its members
func NewStructArg(members ...Argument) Argument {
	return Argument{Type: NewTypeInfo(TagStruct, 0), Value: members}
}

// Named returns a copy of the argument with variable info attached.
func (a Argument) Named(name, unit string) Argument {
	a.Type = a.Type.WithVariableInfo()
	a.Name = name
	a.Unit = unit
	return a
}

// NewLogFrame builds a verbose log message frame with ECU id, timestamp and
// extended header set.
func NewLogFrame(ecu, app, ctx string, level MessageTypeInfo, timestamp uint32, args ...Argument) *Frame {
	ecuID := ecu
	ts := timestamp
	return &Frame{
		Standard: StandardHeader{
			WithEcuID:      true,
			WithTimestamp:  true,
			Version:        ProtocolVersion,
			MessageCounter: NextMessageCounter(),
			EcuID:          &ecuID,
			Timestamp:      &ts,
		},
		Extended: &ExtendedHeader{
			Verbose:         true,
			MessageType:     MessageTypeLog,
			MessageTypeInfo: level,
			MTIN:            encodeMessageTypeInfo(level),
			ApplicationID:   app,
			ContextID:       ctx,
		},
		Payload: Payload{Mode: ModeVerbose, Arguments: args},
	}
}

// NewControlFrame builds a non-verbose control request for a service id
func NewControlFrame(app, ctx string, serviceID uint32, data []byte) *Frame {
	return &Frame{
		Standard: StandardHeader{
			Version:        ProtocolVersion,
			MessageCounter: NextMessageCounter(),
		},
		Extended: &ExtendedHeader{
			MessageType:     MessageTypeControl,
			MessageTypeInfo: ControlRequest,
			MTIN:            encodeMessageTypeInfo(ControlRequest),
			ApplicationID:   app,
			ContextID:       ctx,
		},
		Payload: Payload{Mode: ModeNonVerbose, MessageID: serviceID, Data: data},
	}
}

// SetMessageType sets the type info of an extended header along with its
// message type and raw code.
func (h *ExtendedHeader) SetMessageType(info MessageTypeInfo) {
	h.MessageTypeInfo = info
	h.MessageType = messageTypeOf(info)
	h.MTIN = encodeMessageTypeInfo(info)
}
