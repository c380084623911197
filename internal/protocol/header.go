package protocol

import (
	"crypto/md5"
	"encoding/binary"
	"time"
)

// Header is the fixed 28-byte prefix of every frame. All fields are
// little-endian on the wire, and the serialized header is XOR-obfuscated
// with the same key as the payload before transmission.
type Header struct {
	Magic      uint32
	Version    uint32
	Opcode     Opcode
	PayloadLen uint32
	Checksum   uint32
	Timestamp  uint64
}

// NewHeader builds a header for an already-obfuscated payload.
func NewHeader(op Opcode, payloadObf []byte) Header {
	return Header{
		Magic:      Magic,
		Version:    WireVersion,
		Opcode:     op,
		PayloadLen: uint32(len(payloadObf)),
		Checksum:   PayloadChecksum(payloadObf),
		Timestamp:  uint64(time.Now().UnixMilli()),
	}
}

// PayloadChecksum is the first four bytes of MD5 over the obfuscated
// payload, read little-endian. The checksum covers the obfuscated bytes,
// not the plaintext; this is a wire-compatibility requirement.
func PayloadChecksum(payloadObf []byte) uint32 {
	sum := md5.Sum(payloadObf)
	return binary.LittleEndian.Uint32(sum[:4])
}

// encode serializes the header into dst, which must be at least HeaderSize
// bytes. The caller obfuscates afterwards.
func (h Header) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Magic)
	binary.LittleEndian.PutUint32(dst[4:8], h.Version)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(h.Opcode))
	binary.LittleEndian.PutUint32(dst[12:16], h.PayloadLen)
	binary.LittleEndian.PutUint32(dst[16:20], h.Checksum)
	binary.LittleEndian.PutUint64(dst[20:28], h.Timestamp)
}

// decodeHeader parses a de-obfuscated 28-byte header without validating it.
func decodeHeader(b []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		Opcode:     Opcode(binary.LittleEndian.Uint32(b[8:12])),
		PayloadLen: binary.LittleEndian.Uint32(b[12:16]),
		Checksum:   binary.LittleEndian.Uint32(b[16:20]),
		Timestamp:  binary.LittleEndian.Uint64(b[20:28]),
	}
}

// validate checks the fields a receiver can verify before the payload has
// arrived.
func (h Header) validate() error {
	if h.Magic != Magic {
		return ErrBadMagic
	}
	if h.Version != WireVersion {
		return ErrBadVersion
	}
	if h.PayloadLen > MaxPayloadSize {
		return ErrFrameTooLarge
	}
	return nil
}
