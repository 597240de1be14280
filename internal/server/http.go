package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/logging"
	"github.com/muurk/dlttap/internal/version"
)

// Status is served at /status
type Status struct {
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Viewers  int    `json:"viewers"`
	Pipeline any    `json:"pipeline,omitempty"`
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("dlttap relay: connect a WebSocket client to /ws\n"))
	})
	return logRequests(mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := Status{
		Version: version.Version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Viewers: s.hub.Clients(),
	}
	if s.cfg.Stats != nil {
		st.Pipeline = s.cfg.Stats()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		logging.Warn("Failed to write status", zap.Error(err))
	}
}

// logRequests logs every HTTP request at debug level
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.Debug("HTTP request",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("user_agent", r.Header.Get("User-Agent")),
		)
		next.ServeHTTP(w, r)
	})
}
