package dlt

import (
	"encoding/binary"
	"math/big"
)

// cursor walks a byte slice, failing with a structural error whenever a read
// would run past the end. All multi-byte reads use the cursor's byte order.
type cursor struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func newCursor(buf []byte, order binary.ByteOrder) *cursor {
	return &cursor{buf: buf, order: order}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) rest() []byte {
	return c.buf[c.pos:]
}

func (c *cursor) need(n int, what string) error {
	if n < 0 || c.remaining() < n {
		return NewStructuralError("%s too short: %d bytes (minimum %d)", what, c.remaining(), n)
	}
	return nil
}

func (c *cursor) bytes(n int, what string) ([]byte, error) {
	if err := c.need(n, what); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) u8(what string) (uint8, error) {
	b, err := c.bytes(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) u16(what string) (uint16, error) {
	b, err := c.bytes(2, what)
	if err != nil {
		return 0, err
	}
	return c.order.Uint16(b), nil
}

func (c *cursor) u32(what string) (uint32, error) {
	b, err := c.bytes(4, what)
	if err != nil {
		return 0, err
	}
	return c.order.Uint32(b), nil
}

func (c *cursor) u64(what string) (uint64, error) {
	b, err := c.bytes(8, what)
	if err != nil {
		return 0, err
	}
	return c.order.Uint64(b), nil
}

// u128 reads a 16-byte integer. Signed values are converted from two's
// complement.
func (c *cursor) u128(what string, signed bool) (*big.Int, error) {
	b, err := c.bytes(16, what)
	if err != nil {
		return nil, err
	}
	be := make([]byte, 16)
	copy(be, b)
	if c.order == binary.LittleEndian {
		for i, j := 0, len(be)-1; i < j; i, j = i+1, j-1 {
			be[i], be[j] = be[j], be[i]
		}
	}
	v := new(big.Int).SetBytes(be)
	if signed && be[0]&0x80 != 0 {
		v.Sub(v, twoPow128)
	}
	return v, nil
}

var twoPow128 = new(big.Int).Lsh(big.NewInt(1), 128)

// put128 is the inverse of u128: it appends v as a 16-byte two's complement
// integer in the given byte order.
func put128(dst []byte, order binary.ByteOrder, v *big.Int) []byte {
	n := new(big.Int).Set(v)
	if n.Sign() < 0 {
		n.Add(n, twoPow128)
	}
	be := make([]byte, 16)
	n.FillBytes(be)
	if order == binary.LittleEndian {
		for i, j := 0, len(be)-1; i < j; i, j = i+1, j-1 {
			be[i], be[j] = be[j], be[i]
		}
	}
	return append(dst, be...)
}
