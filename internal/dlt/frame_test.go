package dlt

import (
	"reflect"
	"testing"
	"time"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantLen int
		wantErr func(error) bool
		verify  func(t *testing.T, f *Frame)
	}{
		{
			name:    "timestamp only, non-verbose",
			data:    join([]byte{htypWTMS | 0x20, 0x00}, le16(16), le32(10), le32(0xBEEF), le32(0x01020304)),
			wantLen: 16,
			verify: func(t *testing.T, f *Frame) {
				if f.Extended != nil {
					t.Error("unexpected extended header")
				}
				if f.Payload.Mode != ModeNonVerbose || f.Payload.MessageID != 0xBEEF {
					t.Errorf("payload = %s, want message id 0xBEEF", f.Payload.String())
				}
				if len(f.Payload.Data) != 4 {
					t.Errorf("payload data = %d bytes, want L-8-4 = 4", len(f.Payload.Data))
				}
				if up, _ := f.Uptime(); up != time.Millisecond {
					t.Errorf("uptime = %v, want 1ms", up)
				}
			},
		},
		{
			name: "verbose log frame",
			data: join([]byte{htypUEH | htypWEID | 0x20, 0x05}, le16(29), []byte("ECU1"),
				[]byte{0x41, 0x02}, []byte("APP1CTX1"),
				le32(0x11), []byte{0x01}, le32(0x42), []byte{0x2A, 0x00}),
			wantLen: 29,
			verify: func(t *testing.T, f *Frame) {
				if f.EcuID() != "ECU1" || f.ApplicationID() != "APP1" || f.ContextID() != "CTX1" {
					t.Errorf("ids = %s/%s/%s", f.EcuID(), f.ApplicationID(), f.ContextID())
				}
				if lvl, ok := f.LogLevel(); !ok || lvl != LogInfo {
					t.Errorf("level = %s, want info", lvl)
				}
				if len(f.Payload.Arguments) != 2 {
					t.Fatalf("got %d arguments, want 2", len(f.Payload.Arguments))
				}
			},
		},
		{
			name:    "trailing bytes belong to the next frame",
			data:    join([]byte{0x20, 0x00}, le16(8), le32(7), []byte{0xFF, 0xFF}),
			wantLen: 8,
			verify: func(t *testing.T, f *Frame) {
				if f.Payload.MessageID != 7 {
					t.Errorf("message id = %d, want 7", f.Payload.MessageID)
				}
			},
		},
		{
			name:    "fewer than four bytes is incomplete",
			data:    []byte{0x20, 0x00},
			wantErr: IsIncomplete,
		},
		{
			name:    "payload not yet arrived is incomplete",
			data:    join([]byte{0x20, 0x00}, le16(40), le32(1)),
			wantErr: IsIncomplete,
		},
		{
			name:    "optional header fields not yet arrived is incomplete",
			data:    join([]byte{htypWEID | htypWSID, 0x00}, le16(16), []byte("EC")),
			wantErr: IsIncomplete,
		},
		{
			name: "length shorter than header is malformed",
			data: join([]byte{htypWTMS, 0x00}, le16(6), le32(1), le32(2)),
			wantErr: func(err error) bool {
				return IsStructuralError(err) && !IsRetryable(err)
			},
		},
		{
			name:    "unknown argument type is reported",
			data:    join([]byte{htypUEH, 0x00}, le16(19), []byte{0x41, 0x01}, []byte("APP1CTX1"), le32(0), []byte{0x00}),
			wantErr: IsUnknownType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, n, err := NewDecoder(ProfileDefault).DecodeFrame(tt.data)
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("DecodeFrame() error = %v, want classified error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if n != tt.wantLen || f.Size != tt.wantLen {
				t.Errorf("length = %d (size %d), want %d", n, f.Size, tt.wantLen)
			}
			tt.verify(t, f)
		})
	}
}

func TestEncodeFrame_RoundTrip(t *testing.T) {
	session := uint32(42)
	tests := []struct {
		name    string
		profile Profile
		frame   func() *Frame
	}{
		{
			name: "log frame with scalar arguments",
			frame: func() *Frame {
				return NewLogFrame("ECU1", "APP", "CTX", LogWarn, 1000,
					NewBoolArg(true),
					NewIntArg(Width32, -7).Named("delta", "ms"),
					NewUintArg(Width64, 1<<40),
					NewFloat32Arg(1.5),
					NewFloat64Arg(-0.25).Named("ratio", ""),
					NewStringArg("hello wörld"),
					NewRawArg([]byte{1, 2, 3}),
				)
			},
		},
		{
			name:    "autosar profile with session id",
			profile: ProfileAutosar,
			frame: func() *Frame {
				f := NewLogFrame("ECU2", "APP", "CTX", LogDebug, 77,
					NewIntArg(Width16, -300).Named("t", "C"),
				)
				f.Standard.WithSessionID = true
				f.Standard.SessionID = &session
				return f
			},
		},
		{
			name: "big-endian payload",
			frame: func() *Frame {
				f := NewLogFrame("ECU1", "APP", "CTX", LogInfo, 5,
					NewUintArg(Width32, 0xDEADBEEF),
					NewFloat64Arg(3.25),
				)
				f.Standard.MostSignificantByteFirst = true
				return f
			},
		},
		{
			name: "struct and array",
			frame: func() *Frame {
				arr := Argument{
					Type:  NewTypeInfo(TagArray, Width16).WithElement(TagSignedInt),
					Value: &ArrayValue{Dimensions: []uint16{2, 2}, Elements: []any{int64(1), int64(-2), int64(3), int64(-4)}},
				}
				return NewLogFrame("ECU1", "APP", "CTX", LogInfo, 9,
					NewStructArg(NewBoolArg(false), NewStringArg("inner")).Named("pair", ""),
					arr.Named("grid", "mm"),
				)
			},
		},
		{
			name: "fixed point",
			frame: func() *Frame {
				arg := NewIntArg(Width32, 250)
				arg.Type = arg.Type.WithFixedPoint()
				arg.FixedPoint = &FixedPoint{Quantization: 0.1, Offset: -40}
				return NewLogFrame("ECU1", "APP", "CTX", LogInfo, 9, arg)
			},
		},
		{
			name: "non-verbose control",
			frame: func() *Frame {
				return NewControlFrame("APP", "CTX", ServiceSetLogLevel, []byte{'A', 'P', 'P', 0, 4})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := tt.frame()
			raw, err := EncodeFrame(want, tt.profile)
			if err != nil {
				t.Fatalf("EncodeFrame() error = %v", err)
			}
			if len(raw) != want.Size {
				t.Errorf("encoded %d bytes, frame size %d", len(raw), want.Size)
			}

			got, n, err := NewDecoder(tt.profile).DecodeFrame(raw)
			if err != nil {
				t.Fatalf("DecodeFrame() error = %v", err)
			}
			if n != len(raw) {
				t.Errorf("consumed %d bytes, want %d", n, len(raw))
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip mismatch\n got: %#v\nwant: %#v", got, want)
			}
		})
	}
}

func TestEncodeFrame_Errors(t *testing.T) {
	f := NewLogFrame("ECU1", "APP", "CTX", LogInfo, 0, NewBoolArg(true))
	f.Standard.WithSessionID = true
	if _, err := EncodeFrame(f, ProfileDefault); err == nil {
		t.Error("expected error for flagged but missing session id")
	}

	bad := NewLogFrame("ECU1", "APP", "CTX", LogInfo, 0, Argument{Type: NewTypeInfo(TagBool, Width8), Value: 3})
	if _, err := EncodeFrame(bad, ProfileDefault); err == nil {
		t.Error("expected error for bool argument holding an int")
	}

	big := NewLogFrame("ECU1", "APP", "CTX", LogInfo, 0, NewRawArg(make([]byte, MaxFrameSize)))
	if _, err := EncodeFrame(big, ProfileDefault); err == nil {
		t.Error("expected error for oversized frame")
	}
}
