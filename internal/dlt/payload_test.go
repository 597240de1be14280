package dlt

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestDecodeVerbosePayload(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		noar    uint8
		wantErr func(error) bool
		verify  func(t *testing.T, p *Payload)
	}{
		{
			name: "bool and uint16",
			data: join(le32(0x11), []byte{0x01}, le32(0x42), []byte{0x2A, 0x00}),
			noar: 2,
			verify: func(t *testing.T, p *Payload) {
				if len(p.Arguments) != 2 {
					t.Fatalf("got %d arguments, want 2", len(p.Arguments))
				}
				if v, _ := p.Arguments[0].Bool(); !v {
					t.Error("argument 0 = false, want true")
				}
				if v, _ := p.Arguments[1].Uint(); v != 42 {
					t.Errorf("argument 1 = %v, want 42", p.Arguments[1].Value)
				}
				if p.Arguments[0].Size+p.Arguments[1].Size != 11 {
					t.Error("arguments should consume the whole payload")
				}
			},
		},
		{
			name: "no arguments",
			data: nil,
			noar: 0,
			verify: func(t *testing.T, p *Payload) {
				if len(p.Arguments) != 0 {
					t.Errorf("got %d arguments, want 0", len(p.Arguments))
				}
			},
		},
		{
			name:    "payload shorter than 4 x noar",
			data:    join(le32(0x11), []byte{0x01}),
			noar:    2,
			wantErr: IsStructuralError,
		},
		{
			name:    "second argument truncated",
			data:    join(le32(0x11), []byte{0x01}, le32(0x43), []byte{0x2A}),
			noar:    2,
			wantErr: IsStructuralError,
		},
		{
			name:    "unknown argument type",
			data:    join(le32(0x11), []byte{0x01}, le32(0x0), []byte{0x00}),
			noar:    2,
			wantErr: IsUnknownType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewDecoder(ProfileDefault).DecodeVerbosePayload(tt.data, tt.noar, binary.LittleEndian)
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("DecodeVerbosePayload() error = %v, want classified error", err)
				}
				if p != nil {
					t.Error("no arguments may be returned on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeVerbosePayload() error = %v", err)
			}
			if p.Mode != ModeVerbose {
				t.Errorf("mode = %s, want verbose", p.Mode)
			}
			tt.verify(t, p)
		})
	}
}

func TestDecodeNonVerbosePayload(t *testing.T) {
	p, err := DecodeNonVerbosePayload(join(le32(0x1234), []byte{0xAA, 0xBB}), binary.LittleEndian)
	if err != nil {
		t.Fatalf("DecodeNonVerbosePayload() error = %v", err)
	}
	if p.MessageID != 0x1234 {
		t.Errorf("message id = 0x%x, want 0x1234", p.MessageID)
	}
	if !bytes.Equal(p.Data, []byte{0xAA, 0xBB}) {
		t.Errorf("data = % x, want aa bb", p.Data)
	}

	if _, err := DecodeNonVerbosePayload([]byte{0x01, 0x02}, binary.LittleEndian); !IsStructuralError(err) {
		t.Errorf("short payload error = %v, want structural error", err)
	}
}

func TestDecodePayload_Dispatch(t *testing.T) {
	d := NewDecoder(ProfileDefault)
	data := join(le32(0x11), []byte{0x01})

	tests := []struct {
		name string
		ext  *ExtendedHeader
		want PayloadMode
	}{
		{"no extended header", nil, ModeNonVerbose},
		{"extended header not verbose", &ExtendedHeader{Verbose: false}, ModeNonVerbose},
		{"verbose", &ExtendedHeader{Verbose: true, ArgumentCount: 1}, ModeVerbose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := d.DecodePayload(data, tt.ext, binary.LittleEndian)
			if err != nil {
				t.Fatalf("DecodePayload() error = %v", err)
			}
			if p.Mode != tt.want {
				t.Errorf("mode = %s, want %s", p.Mode, tt.want)
			}
		})
	}
}

func TestFrameControl(t *testing.T) {
	f := NewControlFrame("APP", "CON", ServiceGetLogInfo, nil)
	raw, err := EncodeFrame(f, ProfileDefault)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	got, _, err := NewDecoder(ProfileDefault).DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	info, ok := got.Control()
	if !ok {
		t.Fatal("expected a control message")
	}
	if info.ServiceName != "get_log_info" || info.Response {
		t.Errorf("control = %+v", info)
	}

	resp := NewControlFrame("APP", "CON", ServiceGetSoftwareVersion, []byte{ControlStatusNotSupported})
	resp.Extended.SetMessageType(ControlResponse)
	raw, _ = EncodeFrame(resp, ProfileDefault)
	got, _, _ = NewDecoder(ProfileDefault).DecodeFrame(raw)
	info, _ = got.Control()
	if !info.Response || info.Status != "not_supported" {
		t.Errorf("control response = %+v", info)
	}
}
