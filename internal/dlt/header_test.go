package dlt

import (
	"encoding/binary"
	"testing"
)

func TestDecodeStandardHeader(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		data    []byte
		wantLen int
		wantErr bool
		verify  func(t *testing.T, h *StandardHeader)
	}{
		{
			name:    "no optional fields",
			data:    []byte{0x20, 0x07, 0x04, 0x00},
			wantLen: 4,
			verify: func(t *testing.T, h *StandardHeader) {
				if h.EcuID != nil || h.SessionID != nil || h.Timestamp != nil {
					t.Errorf("optional fields present: %+v", h)
				}
				if h.Version != 1 {
					t.Errorf("version = %d, want 1", h.Version)
				}
				if h.MessageCounter != 7 {
					t.Errorf("counter = %d, want 7", h.MessageCounter)
				}
				if h.Length != 4 {
					t.Errorf("length = %d, want 4", h.Length)
				}
			},
		},
		{
			name:    "timestamp only",
			data:    join([]byte{htypWTMS | 0x20, 0x00}, le16(12), le32(12345)),
			wantLen: 8,
			verify: func(t *testing.T, h *StandardHeader) {
				if h.Timestamp == nil || *h.Timestamp != 12345 {
					t.Errorf("timestamp = %v, want 12345", h.Timestamp)
				}
				if h.EcuID != nil || h.SessionID != nil {
					t.Error("unexpected ecu id or session id")
				}
			},
		},
		{
			name:    "all optional fields in order",
			data:    join([]byte{htypUEH | htypWEID | htypWSID | htypWTMS, 0x01}, le16(30), []byte("ECU1"), le32(99), le32(500)),
			wantLen: 16,
			verify: func(t *testing.T, h *StandardHeader) {
				if !h.UseExtendedHeader {
					t.Error("expected UEH flag")
				}
				if h.EcuID == nil || *h.EcuID != "ECU1" {
					t.Errorf("ecu id = %v, want ECU1", h.EcuID)
				}
				if h.SessionID == nil || *h.SessionID != 99 {
					t.Errorf("session id = %v, want 99", h.SessionID)
				}
				if h.Timestamp == nil || *h.Timestamp != 500 {
					t.Errorf("timestamp = %v, want 500", h.Timestamp)
				}
			},
		},
		{
			name:    "short ecu id is NUL trimmed",
			data:    join([]byte{htypWEID, 0x00}, le16(8), []byte{'E', 'C', 0, 0}),
			wantLen: 8,
			verify: func(t *testing.T, h *StandardHeader) {
				if *h.EcuID != "EC" {
					t.Errorf("ecu id = %q, want EC", *h.EcuID)
				}
			},
		},
		{
			name:    "msbf flag",
			data:    []byte{htypMSBF, 0x00, 0x04, 0x00},
			wantLen: 4,
			verify: func(t *testing.T, h *StandardHeader) {
				if !h.MostSignificantByteFirst {
					t.Error("expected MSBF flag")
				}
				if h.PayloadOrder() != binary.BigEndian {
					t.Error("payload order should be big-endian")
				}
			},
		},
		{
			name:    "autosar profile reads big-endian fields",
			profile: ProfileAutosar,
			data:    join([]byte{htypWSID, 0x00}, []byte{0x00, 0x08}, []byte{0x00, 0x00, 0x01, 0x00}),
			wantLen: 8,
			verify: func(t *testing.T, h *StandardHeader) {
				if h.Length != 8 {
					t.Errorf("length = %d, want 8", h.Length)
				}
				if *h.SessionID != 256 {
					t.Errorf("session id = %d, want 256", *h.SessionID)
				}
			},
		},
		{
			name:    "shorter than base header",
			data:    []byte{0x20, 0x00},
			wantErr: true,
		},
		{
			name:    "header longer than buffer",
			data:    join([]byte{htypWEID | htypWTMS, 0x00}, le16(12), []byte("ECU1")),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, n, err := NewDecoder(tt.profile).DecodeStandardHeader(tt.data)

			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeStandardHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !IsStructuralError(err) {
					t.Errorf("error = %v, want structural error", err)
				}
				return
			}
			if n != tt.wantLen {
				t.Errorf("consumed = %d, want %d", n, tt.wantLen)
			}
			tt.verify(t, h)
		})
	}
}

func TestDecodeExtendedHeader(t *testing.T) {
	tests := []struct {
		name     string
		msin     byte
		wantType MessageType
		wantInfo MessageTypeInfo
		verbose  bool
	}{
		{"verbose log info", 0x41, MessageTypeLog, LogInfo, true},
		{"log fatal", 0x10, MessageTypeLog, LogFatal, false},
		{"log verbose", 0x60, MessageTypeLog, LogVerbose, false},
		{"unmapped log level", 0x90, MessageTypeLog, InfoUndefined, false},
		{"app trace state", 0x42, MessageTypeAppTrace, TraceState, false},
		{"network trace someip", 0x64, MessageTypeNetworkTrace, NetworkSomeIP, false},
		{"network trace user defined", 0xC4, MessageTypeNetworkTrace, NetworkUserDefined, false},
		{"control response", 0x26, MessageTypeControl, ControlResponse, false},
		{"control time", 0x36, MessageTypeControl, ControlTime, false},
		{"undefined message type", 0x1A, MessageTypeUndefined, InfoUndefined, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := join([]byte{tt.msin, 0x03}, []byte("APP1"), []byte("CTX\x00"))
			h, n, err := DecodeExtendedHeader(data)
			if err != nil {
				t.Fatalf("DecodeExtendedHeader() error = %v", err)
			}
			if n != ExtendedHeaderSize {
				t.Errorf("consumed = %d, want %d", n, ExtendedHeaderSize)
			}
			if h.MessageType != tt.wantType {
				t.Errorf("type = %s, want %s", h.MessageType, tt.wantType)
			}
			if h.MessageTypeInfo != tt.wantInfo {
				t.Errorf("info = %s, want %s", h.MessageTypeInfo, tt.wantInfo)
			}
			if h.Verbose != tt.verbose {
				t.Errorf("verbose = %v, want %v", h.Verbose, tt.verbose)
			}
			if h.ArgumentCount != 3 {
				t.Errorf("noar = %d, want 3", h.ArgumentCount)
			}
			if h.ApplicationID != "APP1" || h.ContextID != "CTX" {
				t.Errorf("app/ctx = %q/%q, want APP1/CTX", h.ApplicationID, h.ContextID)
			}
		})
	}
}

func TestDecodeExtendedHeader_Short(t *testing.T) {
	_, _, err := DecodeExtendedHeader([]byte{0x41, 0x01, 'A'})
	if !IsStructuralError(err) {
		t.Errorf("DecodeExtendedHeader() error = %v, want structural error", err)
	}
}

func TestDecodeHeader(t *testing.T) {
	data := join([]byte{htypUEH | htypWEID | 0x20, 0x00}, le16(18), []byte("ECU1"), []byte{0x41, 0x00}, []byte("APP1CTX1"))
	hdr, err := NewDecoder(ProfileDefault).DecodeHeader(data)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if hdr.Length != 18 {
		t.Errorf("header length = %d, want 18", hdr.Length)
	}
	if hdr.Extended == nil || hdr.Extended.ApplicationID != "APP1" {
		t.Errorf("extended header = %+v", hdr.Extended)
	}

	// extended header flagged but missing
	_, err = NewDecoder(ProfileDefault).DecodeHeader(data[:12])
	if !IsStructuralError(err) {
		t.Errorf("DecodeHeader() error = %v, want structural error", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    MessageTypeInfo
		wantErr bool
	}{
		{"fatal", LogFatal, false},
		{"WARN", LogWarn, false},
		{"warning", LogWarn, false},
		{"4", LogInfo, false},
		{"verbose", LogVerbose, false},
		{"loud", InfoUndefined, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
