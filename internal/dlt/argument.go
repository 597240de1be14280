package dlt

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strings"
	"unicode/utf8"
)

// Argument is one decoded verbose argument.
//
// Value holds, depending on Type.Tag:
//
//	TagBool                  bool
//	TagSignedInt             int64, or *big.Int for 128-bit values
//	TagUnsignedInt           uint64, or *big.Int for 128-bit values
//	TagFloat                 float64 (half and single precision are widened)
//	TagString, TagTraceInfo  string
//	TagRawData               []byte
//	TagStruct                []Argument
//	TagArray                 *ArrayValue
type Argument struct {
	Type       TypeInfo
	Name       string
	Unit       string
	Value      any
	FixedPoint *FixedPoint
	Size       int // bytes consumed, TypeInfo included
}

// FixedPoint is the quantization/offset pair of a FIXP argument. The raw
// value is kept unscaled in Argument.Value.
type FixedPoint struct {
	Quantization float32
	Offset       int64
	WideOffset   *big.Int // set instead of Offset for 128-bit arguments
}

// ArrayValue holds the elements of an array argument in row-major order.
type ArrayValue struct {
	Dimensions []uint16
	Elements   []any
}

// Bool returns the value of a boolean argument
func (a *Argument) Bool() (bool, bool) {
	v, ok := a.Value.(bool)
	return v, ok
}

// Int returns the value of a signed integer argument that fits 64 bits
func (a *Argument) Int() (int64, bool) {
	v, ok := a.Value.(int64)
	return v, ok
}

// Uint returns the value of an unsigned integer argument that fits 64 bits
func (a *Argument) Uint() (uint64, bool) {
	v, ok := a.Value.(uint64)
	return v, ok
}

// Float returns the value of a float argument
func (a *Argument) Float() (float64, bool) {
	v, ok := a.Value.(float64)
	return v, ok
}

// Text returns the value of a string or trace-info argument
func (a *Argument) Text() (string, bool) {
	v, ok := a.Value.(string)
	return v, ok
}

// Scaled returns the numeric value of the argument with fixed-point scaling
// applied (raw*quantization + offset). Non-numeric arguments report false.
func (a *Argument) Scaled() (float64, bool) {
	raw, ok := numericValue(a.Value)
	if !ok {
		return 0, false
	}
	if a.FixedPoint == nil {
		return raw, true
	}
	offset := float64(a.FixedPoint.Offset)
	if a.FixedPoint.WideOffset != nil {
		offset, _ = new(big.Float).SetInt(a.FixedPoint.WideOffset).Float64()
	}
	return raw*float64(a.FixedPoint.Quantization) + offset, true
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, true
	default:
		return 0, false
	}
}

// String renders the argument value the way DLT viewers do
func (a *Argument) String() string {
	return formatValue(a.Value)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%g", x)
	case []byte:
		return fmt.Sprintf("% x", x)
	case []Argument:
		parts := make([]string, len(x))
		for i := range x {
			if x[i].Name != "" {
				parts[i] = x[i].Name + "=" + x[i].String()
			} else {
				parts[i] = x[i].String()
			}
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *ArrayValue:
		parts := make([]string, len(x.Elements))
		for i, e := range x.Elements {
			parts[i] = formatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(x)
	}
}

// DecodeArgument decodes one complete argument (TypeInfo followed by its
// value) from the start of data and returns the remaining bytes.
func (d *Decoder) DecodeArgument(data []byte, order binary.ByteOrder) (*Argument, []byte, error) {
	c := newCursor(data, order)
	arg, err := d.decodeArgument(c, 0)
	if err != nil {
		return nil, data, err
	}
	return arg, c.rest(), nil
}

func (d *Decoder) decodeArgument(c *cursor, depth int) (*Argument, error) {
	start := c.pos
	raw, err := c.u32("type info")
	if err != nil {
		return nil, err
	}
	arg := &Argument{Type: DecodeTypeInfo(raw)}

	switch arg.Type.Tag {
	case TagBool:
		err = d.decodeBool(c, arg)
	case TagSignedInt, TagUnsignedInt:
		err = d.decodeInteger(c, arg)
	case TagFloat:
		err = d.decodeFloat(c, arg)
	case TagString, TagTraceInfo:
		err = d.decodeString(c, arg)
	case TagRawData:
		err = d.decodeRaw(c, arg)
	case TagStruct:
		err = d.decodeStruct(c, arg, depth)
	case TagArray:
		err = d.decodeArray(c, arg)
	default:
		err = NewUnknownTypeError(raw)
	}
	if err != nil {
		return nil, err
	}
	arg.Size = c.pos - start
	return arg, nil
}

// readVariableInfo reads the optional name (and unit, when withUnit) that
// precede the value bytes.
func (d *Decoder) readVariableInfo(c *cursor, arg *Argument, withUnit bool) error {
	if !arg.Type.HasVariableInfo {
		return nil
	}
	if d.Profile == ProfileAutosar && withUnit {
		nameLen, err := c.u16("name length")
		if err != nil {
			return err
		}
		unitLen, err := c.u16("unit length")
		if err != nil {
			return err
		}
		name, err := c.bytes(int(nameLen), "name")
		if err != nil {
			return err
		}
		unit, err := c.bytes(int(unitLen), "unit")
		if err != nil {
			return err
		}
		arg.Name, arg.Unit = asciiText(name), asciiText(unit)
		return nil
	}

	nameLen, err := c.u16("name length")
	if err != nil {
		return err
	}
	name, err := c.bytes(int(nameLen), "name")
	if err != nil {
		return err
	}
	arg.Name = asciiText(name)
	if !withUnit {
		return nil
	}
	unitLen, err := c.u16("unit length")
	if err != nil {
		return err
	}
	unit, err := c.bytes(int(unitLen), "unit")
	if err != nil {
		return err
	}
	arg.Unit = asciiText(unit)
	return nil
}

func (d *Decoder) decodeBool(c *cursor, arg *Argument) error {
	if err := d.readVariableInfo(c, arg, false); err != nil {
		return err
	}
	b, err := c.u8("bool value")
	if err != nil {
		return err
	}
	arg.Value = b != 0
	return nil
}

func (d *Decoder) decodeInteger(c *cursor, arg *Argument) error {
	signed := arg.Type.Tag == TagSignedInt
	width := arg.Type.ByteWidth()
	if width == 0 {
		return NewUnsupportedError("integer width code %d", arg.Type.WidthCode)
	}
	if err := d.readVariableInfo(c, arg, true); err != nil {
		return err
	}
	if arg.Type.HasFixedPoint {
		fp, err := readFixedPoint(c, arg.Type.WidthCode)
		if err != nil {
			return err
		}
		arg.FixedPoint = fp
	}
	v, err := readInteger(c, width, signed)
	if err != nil {
		return err
	}
	arg.Value = v
	return nil
}

func readFixedPoint(c *cursor, widthCode uint8) (*FixedPoint, error) {
	q, err := c.u32("fixed point quantization")
	if err != nil {
		return nil, err
	}
	fp := &FixedPoint{Quantization: math.Float32frombits(q)}
	switch fixedPointOffsetBytes(widthCode) {
	case 4:
		o, err := c.u32("fixed point offset")
		if err != nil {
			return nil, err
		}
		fp.Offset = int64(int32(o))
	case 8:
		o, err := c.u64("fixed point offset")
		if err != nil {
			return nil, err
		}
		fp.Offset = int64(o)
	case 16:
		o, err := c.u128("fixed point offset", true)
		if err != nil {
			return nil, err
		}
		fp.WideOffset = o
	default:
		return nil, NewUnsupportedError("fixed point width code %d", widthCode)
	}
	return fp, nil
}

// readInteger reads one integer of the given byte width.
func readInteger(c *cursor, width int, signed bool) (any, error) {
	switch width {
	case 1:
		b, err := c.u8("integer value")
		if err != nil {
			return nil, err
		}
		if signed {
			return int64(int8(b)), nil
		}
		return uint64(b), nil
	case 2:
		v, err := c.u16("integer value")
		if err != nil {
			return nil, err
		}
		if signed {
			return int64(int16(v)), nil
		}
		return uint64(v), nil
	case 4:
		v, err := c.u32("integer value")
		if err != nil {
			return nil, err
		}
		if signed {
			return int64(int32(v)), nil
		}
		return uint64(v), nil
	case 8:
		v, err := c.u64("integer value")
		if err != nil {
			return nil, err
		}
		if signed {
			return int64(v), nil
		}
		return v, nil
	case 16:
		return c.u128("integer value", signed)
	default:
		return nil, NewUnsupportedError("integer width %d bytes", width)
	}
}

func (d *Decoder) decodeFloat(c *cursor, arg *Argument) error {
	switch arg.Type.WidthCode {
	case Width16, Width32, Width64:
	default:
		return NewUnsupportedError("unsupported width: float width code %d", arg.Type.WidthCode)
	}
	if err := d.readVariableInfo(c, arg, true); err != nil {
		return err
	}
	v, err := readFloat(c, arg.Type.WidthCode)
	if err != nil {
		return err
	}
	arg.Value = v
	return nil
}

func readFloat(c *cursor, widthCode uint8) (float64, error) {
	switch widthCode {
	case Width16:
		h, err := c.u16("float value")
		if err != nil {
			return 0, err
		}
		return halfToFloat(h), nil
	case Width32:
		v, err := c.u32("float value")
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(v)), nil
	case Width64:
		v, err := c.u64("float value")
		if err != nil {
			return 0, err
		}
		return math.Float64frombits(v), nil
	default:
		return 0, NewUnsupportedError("unsupported width: float width code %d", widthCode)
	}
}

// halfToFloat expands an IEEE 754 binary16 value: 1 sign bit, 5 exponent
// bits (bias 15), 10 mantissa bits.
func halfToFloat(h uint16) float64 {
	sign := 1.0
	if h&0x8000 != 0 {
		sign = -1.0
	}
	exp := int(h>>10) & 0x1F
	mant := float64(h & 0x3FF)

	switch exp {
	case 0:
		// subnormal
		return sign * math.Ldexp(mant/1024, -14)
	case 0x1F:
		if mant == 0 {
			return math.Inf(int(sign))
		}
		return math.NaN()
	default:
		return sign * math.Ldexp(1+mant/1024, exp-15)
	}
}

func (d *Decoder) decodeString(c *cursor, arg *Argument) error {
	length, err := c.u16("string length")
	if err != nil {
		return err
	}
	if arg.Type.Tag == TagString {
		if err := d.readVariableInfo(c, arg, false); err != nil {
			return err
		}
	}
	b, err := c.bytes(int(length), "string value")
	if err != nil {
		return err
	}
	if arg.Type.HasCoding && arg.Type.Coding == CodingUTF8 {
		arg.Value = utf8Text(b)
	} else {
		arg.Value = asciiText(b)
	}
	return nil
}

func (d *Decoder) decodeRaw(c *cursor, arg *Argument) error {
	length, err := c.u16("raw data length")
	if err != nil {
		return err
	}
	if err := d.readVariableInfo(c, arg, false); err != nil {
		return err
	}
	b, err := c.bytes(int(length), "raw data")
	if err != nil {
		return err
	}
	raw := make([]byte, len(b))
	copy(raw, b)
	arg.Value = raw
	return nil
}

func (d *Decoder) decodeStruct(c *cursor, arg *Argument, depth int) error {
	if depth >= d.maxDepth() {
		return NewUnsupportedError("struct nesting deeper than %d levels", d.maxDepth())
	}
	count, err := c.u16("struct entry count")
	if err != nil {
		return err
	}
	if err := d.readVariableInfo(c, arg, false); err != nil {
		return err
	}
	if err := c.need(int(count)*TypeInfoSize, "struct entries"); err != nil {
		return err
	}
	members := make([]Argument, 0, count)
	for i := 0; i < int(count); i++ {
		m, err := d.decodeArgument(c, depth+1)
		if err != nil {
			return annotate(err, "struct entry %d", i)
		}
		members = append(members, *m)
	}
	arg.Value = members
	return nil
}

func (d *Decoder) decodeArray(c *cursor, arg *Argument) error {
	elem := arg.Type.ElementTag()
	switch elem {
	case TagBool, TagSignedInt, TagUnsignedInt, TagFloat:
	default:
		return NewUnsupportedError("array of %s elements", elem)
	}

	ndims, err := c.u16("array dimension count")
	if err != nil {
		return err
	}
	dims := make([]uint16, ndims)
	total := 1
	for i := range dims {
		if dims[i], err = c.u16("array dimension"); err != nil {
			return err
		}
		total *= int(dims[i])
		if total > len(c.buf) {
			// each element takes at least one byte
			total = len(c.buf) + 1
		}
	}
	if ndims == 0 {
		total = 0
	}

	if err := d.readVariableInfo(c, arg, elem != TagBool); err != nil {
		return err
	}

	width := 1
	if elem != TagBool {
		width = arg.Type.ByteWidth()
		if width == 0 {
			return NewUnsupportedError("array element width code %d", arg.Type.WidthCode)
		}
		if elem == TagFloat && (arg.Type.WidthCode == Width8 || arg.Type.WidthCode == Width128) {
			return NewUnsupportedError("unsupported width: float width code %d", arg.Type.WidthCode)
		}
	}
	if arg.Type.HasFixedPoint && (elem == TagSignedInt || elem == TagUnsignedInt) {
		fp, err := readFixedPoint(c, arg.Type.WidthCode)
		if err != nil {
			return err
		}
		arg.FixedPoint = fp
	}
	if err := c.need(total*width, "array elements"); err != nil {
		return err
	}

	elements := make([]any, 0, total)
	for i := 0; i < total; i++ {
		var v any
		switch elem {
		case TagBool:
			b, _ := c.u8("array element")
			v = b != 0
		case TagFloat:
			v, err = readFloat(c, arg.Type.WidthCode)
		default:
			v, err = readInteger(c, width, elem == TagSignedInt)
		}
		if err != nil {
			return err
		}
		elements = append(elements, v)
	}
	arg.Value = &ArrayValue{Dimensions: dims, Elements: elements}
	return nil
}

// asciiText converts ASCII bytes to a string, dropping the NUL terminator
// and replacing bytes outside the ASCII range.
func asciiText(b []byte) string {
	b = trimNUL(b)
	var sb strings.Builder
	sb.Grow(len(b))
	for _, ch := range b {
		if ch > 0x7F {
			sb.WriteRune(utf8.RuneError)
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

func utf8Text(b []byte) string {
	return strings.ToValidUTF8(string(trimNUL(b)), string(utf8.RuneError))
}

func trimNUL(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}
