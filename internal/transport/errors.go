package transport

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// ErrorKind is the normalized classification of a socket error.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindConnectionRefused
	KindHostClosed
	KindHostNotFound
	KindUnreachable
	KindTimeout
	KindProtocolError
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectionRefused:
		return "connection refused"
	case KindHostClosed:
		return "host closed connection"
	case KindHostNotFound:
		return "host not found"
	case KindUnreachable:
		return "network unreachable"
	case KindTimeout:
		return "timeout"
	case KindProtocolError:
		return "protocol error"
	default:
		return "network error"
	}
}

// Classify maps a socket error onto the protocol's error taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindHostNotFound
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return KindHostClosed
	case errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH):
		return KindUnreachable
	}

	return KindOther
}
