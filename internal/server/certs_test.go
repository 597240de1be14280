package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestGenerateSelfSigned(t *testing.T) {
	params := CertParams{CommonName: "relay.test", Hosts: []string{"relay.test", "127.0.0.1"}, ValidDays: 30}
	sc, err := GenerateSelfSigned(params)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	cert := sc.Certificate
	if cert.Subject.CommonName != "relay.test" {
		t.Errorf("CN = %q", cert.Subject.CommonName)
	}
	if len(cert.DNSNames) != 1 || cert.DNSNames[0] != "relay.test" {
		t.Errorf("DNSNames = %v", cert.DNSNames)
	}
	if len(cert.IPAddresses) != 1 || !cert.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")) {
		t.Errorf("IPAddresses = %v", cert.IPAddresses)
	}
	if d := cert.NotAfter.Sub(cert.NotBefore); d < 29*24*time.Hour || d > 31*24*time.Hour {
		t.Errorf("validity = %v", d)
	}
	if _, err := sc.TLSCertificate(); err != nil {
		t.Errorf("TLSCertificate() error = %v", err)
	}

	dir := t.TempDir()
	certPath, keyPath := filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")
	if err := sc.WriteFiles(certPath, keyPath); err != nil {
		t.Fatalf("WriteFiles() error = %v", err)
	}
	if _, err := NewTLSConfig(certPath, keyPath); err != nil {
		t.Errorf("NewTLSConfig() on written files error = %v", err)
	}
}

func TestDefaultCertParams(t *testing.T) {
	p := DefaultCertParams()
	if p.CommonName == "" || p.ValidDays <= 0 {
		t.Errorf("DefaultCertParams() = %+v", p)
	}
	var loopback bool
	for _, h := range p.Hosts {
		if h == "127.0.0.1" {
			loopback = true
		}
	}
	if !loopback {
		t.Errorf("Hosts = %v, want 127.0.0.1 included", p.Hosts)
	}
}

func TestServe_SelfSignedTLS(t *testing.T) {
	s, err := New(&Config{SelfSigned: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.tlsConfig == nil || len(s.tlsConfig.Certificates) != 1 {
		t.Fatal("self-signed config should carry one certificate")
	}
	leaf, err := x509.ParseCertificate(s.tlsConfig.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	dialer := websocket.Dialer{
		TLSClientConfig:  &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.Dial("wss://"+ln.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitFor(t, func() bool { return s.Hub().Clients() == 1 })

	plain := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	if c, _, err := plain.Dial("wss://"+ln.Addr().String()+"/ws", nil); err == nil {
		c.Close()
		t.Error("Dial() without the certificate should fail verification")
	}
}
