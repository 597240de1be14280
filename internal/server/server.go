package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/logging"
	"github.com/muurk/dlttap/internal/version"
)

const (
	// ServiceType is the mDNS service type the relay advertises
	ServiceType = "_dlttap._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	shutdownTimeout = 10 * time.Second
)

// Config holds the relay configuration
type Config struct {
	Host     string
	Port     int
	CertPath string // TLS is enabled when both paths are set
	KeyPath  string
	// SelfSigned generates an in-memory certificate when no paths are set
	SelfSigned bool
	Advertise  bool   // announce the relay via mDNS
	Instance   string // mDNS instance name, defaults to the hostname

	// Stats, when set, is included in /status
	Stats func() any
}

// Server is the WebSocket relay. Records written to Hub() reach every
// viewer connected to /ws.
type Server struct {
	cfg       *Config
	hub       *Hub
	tlsConfig *tls.Config
	started   time.Time
}

// New creates a relay. It loads the TLS certificate when one is configured.
func New(cfg *Config) (*Server, error) {
	s := &Server{cfg: cfg, hub: NewHub(), started: time.Now()}
	switch {
	case cfg.CertPath != "" || cfg.KeyPath != "":
		tlsConfig, err := NewTLSConfig(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsConfig
	case cfg.SelfSigned:
		tlsConfig, err := generateAndLoadCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate certificate: %w", err)
		}
		s.tlsConfig = tlsConfig
	}
	return s, nil
}

// generateAndLoadCert creates a self-signed certificate that lives in
// memory only
func generateAndLoadCert() (*tls.Config, error) {
	params := DefaultCertParams()
	logging.Info("Generating self-signed certificate",
		zap.String("CN", params.CommonName),
		zap.Strings("hosts", params.Hosts),
		zap.Int("valid_days", params.ValidDays),
	)
	sc, err := GenerateSelfSigned(params)
	if err != nil {
		return nil, err
	}
	cert, err := sc.TLSCertificate()
	if err != nil {
		return nil, err
	}
	logging.Info("Certificate generated",
		zap.Time("not_after", sc.Certificate.NotAfter),
	)
	return NewTLSConfigFromMemory(cert), nil
}

// Hub returns the hub records are broadcast through
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the relay's HTTP handler
func (s *Server) Handler() http.Handler { return s.routes() }

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	scheme := "ws"
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
		scheme = "wss"
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
	}

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	port := ln.Addr().(*net.TCPAddr).Port
	logging.Info("Starting dlttap relay",
		zap.String("addr", ln.Addr().String()),
		zap.String("url", fmt.Sprintf("%s://%s/ws", scheme, ln.Addr())),
	)

	if s.cfg.Advertise {
		zc, err := s.advertise(port, scheme)
		if err != nil {
			logging.Warn("mDNS advertisement failed, continuing without it", zap.Error(err))
		} else {
			defer zc.Shutdown()
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		_ = s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("relay server failed: %w", err)
	case <-ctx.Done():
	}

	logging.Info("Shutting down relay...", zap.Int("viewers", s.hub.Clients()))
	// hijacked WebSocket connections are not tracked by http.Server
	_ = s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		_ = srv.Close()
	}
	logging.Info("Relay stopped")
	return nil
}

func (s *Server) advertise(port int, scheme string) (*zeroconf.Server, error) {
	instance := s.cfg.Instance
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "dlttap"
		}
		instance = "dlttap on " + host
	}
	txt := []string{"path=/ws", "scheme=" + scheme, "version=" + version.Version}

	zc, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising relay via mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return zc, nil
}
