package ingest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrorType represents the category of a connection failure
type ErrorType int

const (
	// ErrTypeNetwork is a generic network-level failure
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout means the daemon did not answer in time
	ErrTypeTimeout
	// ErrTypeConnectionRefused means nothing listens on the daemon port
	ErrTypeConnectionRefused
	// ErrTypeDNS means the host name could not be resolved
	ErrTypeDNS
	// ErrTypeClosed means the daemon closed the connection
	ErrTypeClosed
)

// NetworkErrorSubtype refines ErrTypeNetwork
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeClosed:
		return "Connection Closed"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// ConnectionError describes a failed or lost connection to a DLT daemon
type ConnectionError struct {
	Type           ErrorType
	Message        string
	Err            error
	NetworkSubtype NetworkErrorSubtype
	Address        string
	Retryable      bool
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError maps a dial or read error to a ConnectionError. Only
// permanent DNS failures are not retryable.
func ClassifyNetworkError(err error, address string) *ConnectionError {
	if err == nil {
		return nil
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr
	}

	ce := &ConnectionError{
		Type:      ErrTypeNetwork,
		Message:   "Network error occurred",
		Err:       err,
		Address:   address,
		Retryable: true,
	}

	var dnsErr *net.DNSError
	switch {
	case os.IsTimeout(err):
		ce.Type, ce.Message = ErrTypeTimeout, "Connection timed out"
	case errors.As(err, &dnsErr):
		ce.Type, ce.Message = ErrTypeDNS, "DNS resolution failed for "+dnsErr.Name
		ce.Retryable = dnsErr.IsTemporary
	case errors.Is(err, syscall.ECONNREFUSED):
		ce.Type, ce.Message = ErrTypeConnectionRefused, "Daemon refused connection"
	case errors.Is(err, syscall.EHOSTUNREACH):
		ce.Message, ce.NetworkSubtype = "Host unreachable", NetworkErrorHostUnreachable
	case errors.Is(err, syscall.ENETUNREACH):
		ce.Message, ce.NetworkSubtype = "Network unreachable", NetworkErrorNetworkUnreachable
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET):
		ce.Type, ce.Message = ErrTypeClosed, "Daemon closed the connection"
	}
	return ce
}

// IsRetryable checks if a connection error should be retried
func IsRetryable(err error) bool {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// Troubleshooting returns user-facing hints for a connection error
func Troubleshooting(err error) []string {
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		return nil
	}

	switch ce.Type {
	case ErrTypeTimeout:
		return []string{
			"Check that the ECU is powered on and reachable",
			"Verify the address and port (default 3490)",
			"A firewall may be dropping the connection",
		}
	case ErrTypeConnectionRefused:
		return []string{
			"Nothing is listening on " + ce.Address,
			"Check that dlt-daemon is running on the target",
			"Verify the port (default 3490)",
		}
	case ErrTypeDNS:
		return []string{
			"Use the IP address instead of the host name",
			"Run 'dlttap discover' to find daemons advertised on the network",
		}
	case ErrTypeClosed:
		return []string{
			"The daemon may have restarted or reached its client limit",
		}
	}

	switch ce.NetworkSubtype {
	case NetworkErrorHostUnreachable:
		return []string{
			"Verify the target IP address is correct",
			"Check that you're on the same network as the ECU",
		}
	case NetworkErrorNetworkUnreachable:
		return []string{
			"Check your network adapter settings and routes",
		}
	default:
		return []string{"Check your network connection"}
	}
}
