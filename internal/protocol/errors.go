package protocol

import "errors"

var (
	// ErrShortBuffer reports fewer bytes than a payload's fixed prefix.
	ErrShortBuffer = errors.New("payload shorter than fixed prefix")
	// ErrFieldOutOfRange reports a declared length that exceeds the
	// enclosing payload or a protocol limit.
	ErrFieldOutOfRange = errors.New("declared length exceeds envelope")
	// ErrUnknownOpcode reports a payload type this codec cannot decode.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrPayloadTooLarge reports an encode attempt above MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrBadMagic reports a header whose magic is not RDCP traffic.
	ErrBadMagic = errors.New("bad frame magic")
	// ErrBadVersion reports an unsupported protocol version.
	ErrBadVersion = errors.New("unsupported protocol version")
	// ErrFrameTooLarge reports a header payload length above MaxPayloadSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum packet size")
	// ErrChecksumMismatch reports a payload that fails checksum
	// verification. Fatal for the session.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")
	// ErrBufferOverflow reports a receive buffer past MaxBufferSize.
	// Fatal for the connection.
	ErrBufferOverflow = errors.New("receive buffer overflow")
)
