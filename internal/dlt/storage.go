package dlt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// StorageHeaderSize is the size of the header prefixed to each frame in
// .dlt capture files.
const StorageHeaderSize = 16

// StoragePattern opens every storage header
var StoragePattern = []byte{'D', 'L', 'T', 0x01}

// StorageHeader records when and from which ECU a frame was captured
type StorageHeader struct {
	Seconds      uint32
	Microseconds uint32
	EcuID        string
}

// Time returns the capture time
func (s *StorageHeader) Time() time.Time {
	return time.Unix(int64(s.Seconds), int64(s.Microseconds)*int64(time.Microsecond)).UTC()
}

// DecodeStorageHeader decodes the storage header at the start of data.
func DecodeStorageHeader(data []byte) (*StorageHeader, error) {
	if len(data) < StorageHeaderSize {
		return nil, NewStructuralError("storage header too short: %d bytes (minimum %d)", len(data), StorageHeaderSize)
	}
	if !bytes.Equal(data[:4], StoragePattern) {
		return nil, NewStructuralError("storage header pattern mismatch: % x", data[:4])
	}
	return &StorageHeader{
		Seconds:      binary.LittleEndian.Uint32(data[4:8]),
		Microseconds: binary.LittleEndian.Uint32(data[8:12]),
		EcuID:        asciiText(data[12:16]),
	}, nil
}

// EncodeStorageHeader appends the encoded storage header to dst.
func EncodeStorageHeader(dst []byte, s *StorageHeader) []byte {
	dst = append(dst, StoragePattern...)
	dst = binary.LittleEndian.AppendUint32(dst, s.Seconds)
	dst = binary.LittleEndian.AppendUint32(dst, s.Microseconds)
	return append(dst, padID(s.EcuID)...)
}

// NewStorageHeader builds a storage header for the given capture time
func NewStorageHeader(t time.Time, ecu string) *StorageHeader {
	return &StorageHeader{
		Seconds:      uint32(t.Unix()),
		Microseconds: uint32(t.Nanosecond() / 1000),
		EcuID:        ecu,
	}
}

func (s *StorageHeader) String() string {
	return fmt.Sprintf("StorageHeader{time=%s, ecu=%s}", s.Time().Format(time.RFC3339Nano), s.EcuID)
}
