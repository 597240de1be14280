package ingest

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/muurk/dlttap/internal/dlt"
	"github.com/muurk/dlttap/internal/logging"
)

const (
	// DefaultDialTimeout bounds a single connection attempt
	DefaultDialTimeout = 5 * time.Second

	// DefaultMaxRetryDelay caps the reconnect backoff
	DefaultMaxRetryDelay = 30 * time.Second
)

// TCPSource reads the frame stream a dlt-daemon serves to its clients.
// Every connection is a new stream; with Reconnect set a lost connection
// is re-established with exponential backoff.
type TCPSource struct {
	Address       string
	DialTimeout   time.Duration
	Reconnect     bool
	MaxRetryDelay time.Duration

	// OnConnect is called after every successful dial
	OnConnect func(address string)
}

// Name implements Source
func (s *TCPSource) Name() string {
	return s.Address
}

// Run implements Source. Without Reconnect the first connection error or
// end of stream is returned as a *ConnectionError.
func (s *TCPSource) Run(ctx context.Context, open Opener) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0 // retry until cancelled
	b.MaxInterval = s.MaxRetryDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = DefaultMaxRetryDelay
	}

	for {
		connected, err := s.session(ctx, open)
		if ctx.Err() != nil {
			return nil
		}
		if !s.Reconnect {
			return err
		}

		ce := ClassifyNetworkError(err, s.Address)
		if !ce.Retryable {
			return ce
		}
		if connected {
			b.Reset()
		}

		// not context-bound: cancellation is handled by the select below
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return ce
		}
		logging.Info("Reconnecting to daemon",
			zap.String("address", s.Address),
			zap.Duration("delay", wait),
			zap.String("reason", ce.Message),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection. It reports whether the dial succeeded.
func (s *TCPSource) session(ctx context.Context, open Opener) (bool, error) {
	timeout := s.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.Address)
	if err != nil {
		return false, ClassifyNetworkError(err, s.Address)
	}
	defer conn.Close()

	logging.LogConnection(s.Address, "connected")
	if s.OnConnect != nil {
		s.OnConnect(s.Address)
	}

	// Unblock the read when ctx ends
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	w := open(StreamInfo{Name: s.Address})
	err = copyChunks(ctx, w, conn, DefaultChunkSize)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	logging.LogConnection(s.Address, "disconnected")

	if err == nil {
		err = io.EOF
	}
	if _, ok := dlt.AsDecodeError(err); ok {
		return true, &ConnectionError{Type: ErrTypeNetwork, Message: "Undecodable stream", Err: err, Address: s.Address, Retryable: true}
	}
	return true, ClassifyNetworkError(err, s.Address)
}
