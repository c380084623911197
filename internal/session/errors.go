package session

import (
	"fmt"

	"github.com/avaropoint/rdcp/internal/protocol"
	"github.com/avaropoint/rdcp/internal/transport"
)

// ErrKind classifies a fatal session error. Image encode/decode failures
// never reach this type; they are local drops counted in stats.
type ErrKind int

const (
	KindInvalidFrame ErrKind = iota
	KindChecksumMismatch
	KindBufferOverflow
	KindProtocolViolation
	KindAuthFailed
	KindTimeout
	KindTransport
)

func (k ErrKind) String() string {
	switch k {
	case KindInvalidFrame:
		return "invalid frame"
	case KindChecksumMismatch:
		return "checksum mismatch"
	case KindBufferOverflow:
		return "buffer overflow"
	case KindProtocolViolation:
		return "protocol violation"
	case KindAuthFailed:
		return "authentication failed"
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport error"
	default:
		return "session error"
	}
}

// Timeout phases surfaced to the user.
const (
	PhaseConnect = "connect"
	PhaseAuth    = "auth"
	PhaseIdle    = "idle"
)

// Error is the terminal error of a failed session.
type Error struct {
	Kind ErrKind
	// Phase qualifies timeouts: connect, auth, or idle.
	Phase string
	// AuthResult carries the server's reason when Kind is KindAuthFailed.
	AuthResult protocol.AuthResult
	// Transport carries the normalized socket error kind when Kind is
	// KindTransport.
	Transport transport.ErrorKind
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("%s timeout", e.Phase)
	case KindAuthFailed:
		return fmt.Sprintf("authentication failed: %s", e.AuthResult)
	case KindTransport:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Transport, e.Err)
		}
		return e.Transport.String()
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a supervisor reconnect policy may retry after
// this failure.
func (e *Error) Retryable() bool {
	if e.Kind == KindTimeout {
		return true
	}
	return e.Kind == KindTransport &&
		(e.Transport == transport.KindHostClosed || e.Transport == transport.KindTimeout)
}
