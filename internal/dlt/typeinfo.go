package dlt

import (
	"encoding/binary"
	"fmt"
)

// TypeInfo bit layout (32-bit field at the start of every verbose argument)
const (
	typeLengthMask = 0x0000000F // TYLE, bits 0-3
	typeBool       = 1 << 4     // BOOL
	typeSigned     = 1 << 5     // SINT
	typeUnsigned   = 1 << 6     // UINT
	typeFloat      = 1 << 7     // FLOA
	typeArray      = 1 << 8     // ARAY
	typeString     = 1 << 9     // STRG
	typeRaw        = 1 << 10    // RAWD
	typeVariable   = 1 << 11    // VARI
	typeFixedPoint = 1 << 12    // FIXP
	typeTraceInfo  = 1 << 13    // TRAI
	typeStruct     = 1 << 14    // STRU
	typeCoding     = 1 << 15    // SCOD flag
	codingShift    = 15         // SCOD value, bits 15-17
	codingMask     = 0x7
)

// TypeInfoSize is the size of the TypeInfo field preceding each argument
const TypeInfoSize = 4

// TypeTag identifies the kind of a verbose argument
type TypeTag int

const (
	TagUndefined TypeTag = iota
	TagBool
	TagSignedInt
	TagUnsignedInt
	TagFloat
	TagArray
	TagString
	TagRawData
	TagTraceInfo
	TagStruct
)

// String returns the tag name as used in rendered output
func (t TypeTag) String() string {
	switch t {
	case TagBool:
		return "bool"
	case TagSignedInt:
		return "sint"
	case TagUnsignedInt:
		return "uint"
	case TagFloat:
		return "float"
	case TagArray:
		return "array"
	case TagString:
		return "string"
	case TagRawData:
		return "raw"
	case TagTraceInfo:
		return "trace_info"
	case TagStruct:
		return "struct"
	default:
		return "undefined"
	}
}

// StringCoding selects how String and TraceInfo bytes become text
type StringCoding uint8

const (
	CodingASCII StringCoding = 0
	CodingUTF8  StringCoding = 1
)

func (c StringCoding) String() string {
	switch c {
	case CodingASCII:
		return "ascii"
	case CodingUTF8:
		return "utf8"
	default:
		return fmt.Sprintf("coding(%d)", uint8(c))
	}
}

// Width codes (TYLE)
const (
	Width8   uint8 = 1
	Width16  uint8 = 2
	Width32  uint8 = 3
	Width64  uint8 = 4
	Width128 uint8 = 5
)

// TypeInfo is the decoded form of an argument's type-info field
type TypeInfo struct {
	Raw             uint32
	Tag             TypeTag
	WidthCode       uint8 // TYLE, 0 when unused
	HasCoding       bool  // SCOD flag present
	Coding          StringCoding
	HasVariableInfo bool // VARI: a name (and for numbers, a unit) follows
	HasFixedPoint   bool // FIXP: quantization and offset precede the value
}

// tagPriority is the order in which type flags are tested. Containers come
// first because an array also carries the type bit of its elements.
var tagPriority = []struct {
	bit uint32
	tag TypeTag
}{
	{typeArray, TagArray},
	{typeStruct, TagStruct},
	{typeBool, TagBool},
	{typeSigned, TagSignedInt},
	{typeUnsigned, TagUnsignedInt},
	{typeFloat, TagFloat},
	{typeString, TagString},
	{typeRaw, TagRawData},
	{typeTraceInfo, TagTraceInfo},
}

// DecodeTypeInfo decodes a raw 32-bit type-info field. It never fails: a
// field with no recognised type flag yields TagUndefined.
func DecodeTypeInfo(raw uint32) TypeInfo {
	ti := TypeInfo{
		Raw:             raw,
		Tag:             TagUndefined,
		WidthCode:       uint8(raw & typeLengthMask),
		HasCoding:       raw&typeCoding != 0,
		HasVariableInfo: raw&typeVariable != 0,
		HasFixedPoint:   raw&typeFixedPoint != 0,
	}
	if ti.HasCoding {
		ti.Coding = StringCoding((raw >> codingShift) & codingMask)
	}
	for _, p := range tagPriority {
		if raw&p.bit != 0 {
			ti.Tag = p.tag
			break
		}
	}
	return ti
}

// ReadTypeInfo decodes the type-info field at the start of b.
func ReadTypeInfo(b []byte, order binary.ByteOrder) (TypeInfo, error) {
	if len(b) < TypeInfoSize {
		return TypeInfo{}, NewStructuralError("type info too short: %d bytes (minimum %d)", len(b), TypeInfoSize)
	}
	return DecodeTypeInfo(order.Uint32(b)), nil
}

// ElementTag returns the kind of the elements of an array argument, taken
// from the type flags other than ARAY.
func (ti TypeInfo) ElementTag() TypeTag {
	return DecodeTypeInfo(ti.Raw &^ typeArray).Tag
}

// ByteWidth returns the width in bytes selected by the TYLE code, or 0 for
// an undefined code.
func (ti TypeInfo) ByteWidth() int {
	return widthBytes(ti.WidthCode)
}

func widthBytes(code uint8) int {
	switch code {
	case Width8:
		return 1
	case Width16:
		return 2
	case Width32:
		return 4
	case Width64:
		return 8
	case Width128:
		return 16
	default:
		return 0
	}
}

// fixedPointOffsetBytes is the width of the FIXP offset per TYLE code.
func fixedPointOffsetBytes(code uint8) int {
	switch code {
	case Width8, Width16, Width32:
		return 4
	case Width64:
		return 8
	case Width128:
		return 16
	default:
		return 0
	}
}

// String returns a compact description such as "uint32" or "string(utf8)"
func (ti TypeInfo) String() string {
	switch ti.Tag {
	case TagSignedInt, TagUnsignedInt, TagFloat:
		return fmt.Sprintf("%s%d", ti.Tag, ti.ByteWidth()*8)
	case TagString, TagTraceInfo:
		return fmt.Sprintf("%s(%s)", ti.Tag, ti.Coding)
	case TagArray:
		return fmt.Sprintf("array<%s>", ti.ElementTag())
	default:
		return ti.Tag.String()
	}
}

// NewTypeInfo builds the type info for an argument of the given kind.
func NewTypeInfo(tag TypeTag, widthCode uint8) TypeInfo {
	var raw uint32
	switch tag {
	case TagBool:
		raw = typeBool
	case TagSignedInt:
		raw = typeSigned
	case TagUnsignedInt:
		raw = typeUnsigned
	case TagFloat:
		raw = typeFloat
	case TagString:
		raw = typeString
	case TagRawData:
		raw = typeRaw
	case TagTraceInfo:
		raw = typeTraceInfo
	case TagStruct:
		raw = typeStruct
	case TagArray:
		raw = typeArray
	}
	raw |= uint32(widthCode) & typeLengthMask
	return DecodeTypeInfo(raw)
}

// WithVariableInfo returns a copy with the VARI flag set.
func (ti TypeInfo) WithVariableInfo() TypeInfo {
	return DecodeTypeInfo(ti.Raw | typeVariable)
}

// WithFixedPoint returns a copy with the FIXP flag set.
func (ti TypeInfo) WithFixedPoint() TypeInfo {
	return DecodeTypeInfo(ti.Raw | typeFixedPoint)
}

// WithCoding returns a copy carrying the given string coding. ASCII is the
// all-zero SCOD value, so it clears the field.
func (ti TypeInfo) WithCoding(c StringCoding) TypeInfo {
	raw := ti.Raw &^ (codingMask << codingShift)
	raw |= (uint32(c) & codingMask) << codingShift
	return DecodeTypeInfo(raw)
}

// WithElement returns an array type info whose elements are of kind tag.
func (ti TypeInfo) WithElement(tag TypeTag) TypeInfo {
	elem := NewTypeInfo(tag, 0)
	return DecodeTypeInfo(ti.Raw | (elem.Raw &^ typeLengthMask))
}
