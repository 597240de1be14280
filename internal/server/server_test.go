package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/dlttap/internal/format"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRelay_Broadcast(t *testing.T) {
	s, err := New(&Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	viewers := []*websocket.Conn{dial(t, ts), dial(t, ts)}
	waitFor(t, func() bool { return s.Hub().Clients() == 2 })

	rec := &format.Record{ECU: "ECU1", App: "NAV", Context: "MAIN", Type: "log", Info: "warn", Text: "low fuel"}
	if err := s.Hub().Write(rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	for i, conn := range viewers {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("viewer %d ReadMessage() error = %v", i, err)
		}
		if mt != websocket.TextMessage {
			t.Errorf("viewer %d message type = %d, want text", i, mt)
		}
		var got format.Record
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("viewer %d payload: %v", i, err)
		}
		if got.App != "NAV" || got.Text != "low fuel" {
			t.Errorf("viewer %d got %+v", i, got)
		}
	}

	_ = viewers[0].Close()
	waitFor(t, func() bool { return s.Hub().Clients() == 1 })
}

func TestHub_DropsSlowViewer(t *testing.T) {
	h := NewHub()
	slow := &client{remoteAddr: "slow", send: make(chan []byte, 1)}
	fast := &client{remoteAddr: "fast", send: make(chan []byte, 8)}
	h.add(slow)
	h.add(fast)

	h.Broadcast([]byte("1"))
	h.Broadcast([]byte("2"))

	if h.Clients() != 1 {
		t.Fatalf("Clients() = %d, want 1", h.Clients())
	}
	if len(fast.send) != 2 {
		t.Errorf("fast viewer queued %d messages, want 2", len(fast.send))
	}
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("slow viewer channel should be closed")
	}

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if h.add(&client{send: make(chan []byte)}) {
		t.Error("closed hub should refuse viewers")
	}
}

func TestStatus(t *testing.T) {
	s, err := New(&Config{Stats: func() any { return map[string]int{"frames": 42} }})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	tests := []struct {
		name   string
		method string
		path   string
		code   int
		verify func(t *testing.T, resp *http.Response)
	}{
		{
			name: "status", method: http.MethodGet, path: "/status", code: http.StatusOK,
			verify: func(t *testing.T, resp *http.Response) {
				var st struct {
					Viewers  int            `json:"viewers"`
					Pipeline map[string]int `json:"pipeline"`
				}
				if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
					t.Fatal(err)
				}
				if st.Viewers != 0 || st.Pipeline["frames"] != 42 {
					t.Errorf("status = %+v", st)
				}
			},
		},
		{name: "status is read only", method: http.MethodPost, path: "/status", code: http.StatusMethodNotAllowed},
		{name: "index", method: http.MethodGet, path: "/", code: http.StatusOK},
		{name: "unknown path", method: http.MethodGet, path: "/nope", code: http.StatusNotFound},
		{name: "plain GET on ws", method: http.MethodGet, path: "/ws", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.code {
				t.Fatalf("status code = %d, want %d", resp.StatusCode, tt.code)
			}
			if tt.verify != nil {
				tt.verify(t, resp)
			}
		})
	}
}

func TestServe_Shutdown(t *testing.T) {
	s, err := New(&Config{})
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return s.Hub().Clients() == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}

	// the viewer gets a close frame
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNoStatusReceived, websocket.CloseNormalClosure) {
		t.Logf("ReadMessage() after shutdown = %v", err)
	}
}

func TestNewTLSConfig_Missing(t *testing.T) {
	dir := t.TempDir()
	_, err := New(&Config{CertPath: filepath.Join(dir, "cert.pem"), KeyPath: filepath.Join(dir, "key.pem")})
	if err == nil || !strings.Contains(err.Error(), "TLS certificate") {
		t.Errorf("New() error = %v", err)
	}
}
