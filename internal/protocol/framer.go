package protocol

// Frame is one complete, de-obfuscated protocol message.
type Frame struct {
	Header  Header
	Payload []byte
}

// EncodeFrame turns a payload value into wire bytes: the payload is
// obfuscated, the header is computed over the obfuscated payload, and the
// header itself is obfuscated before the two are concatenated.
func EncodeFrame(msg any) ([]byte, error) {
	op, payload, err := EncodePayload(msg)
	if err != nil {
		return nil, err
	}
	return EncodeRawFrame(op, payload)
}

// EncodeRawFrame frames pre-encoded plaintext payload bytes.
func EncodeRawFrame(op Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	out := make([]byte, HeaderSize+len(payload))
	payloadObf := out[HeaderSize:]
	copy(payloadObf, payload)
	Obfuscate(payloadObf)

	hdr := NewHeader(op, payloadObf)
	hdr.encode(out[:HeaderSize])
	Obfuscate(out[:HeaderSize])
	return out, nil
}

// Framer reassembles frames from a TCP byte stream. It owns a receive
// buffer the transport appends to and handles partial frames, stream
// corruption resync, and checksum verification.
//
// Not safe for concurrent use; a framer belongs to one session's I/O
// goroutine.
type Framer struct {
	buf            []byte
	resyncFailures int
}

// Append adds received bytes to the buffer. It fails with
// ErrBufferOverflow when the buffer would exceed MaxBufferSize, which is
// fatal for the connection.
func (f *Framer) Append(b []byte) error {
	if len(f.buf)+len(b) > MaxBufferSize {
		return ErrBufferOverflow
	}
	f.buf = append(f.buf, b...)
	return nil
}

// Buffered returns the number of bytes awaiting parsing.
func (f *Framer) Buffered() int { return len(f.buf) }

// Next extracts the next complete frame from the buffer. It returns
// (nil, nil) when more bytes are needed. A ChecksumMismatch error is fatal;
// the caller tears the session down.
//
// Header validation failures increment a resync counter; once it reaches
// ResyncThreshold the framer discards bytes from the front one at a time
// until a plausible header lines up again.
func (f *Framer) Next() (*Frame, error) {
	for {
		if len(f.buf) < HeaderSize {
			return nil, nil
		}

		hdr := f.peekHeader()
		if err := hdr.validate(); err != nil {
			f.resyncFailures++
			if f.resyncFailures < ResyncThreshold {
				return nil, nil
			}
			// Resync: slide the window forward byte by byte until the
			// header validates or the buffer runs dry.
			f.resyncFailures = 0
			f.buf = f.buf[1:]
			for len(f.buf) >= HeaderSize {
				if f.peekHeader().validate() == nil {
					break
				}
				f.buf = f.buf[1:]
			}
			continue
		}

		total := HeaderSize + int(hdr.PayloadLen)
		if len(f.buf) < total {
			return nil, nil
		}

		payloadObf := f.buf[HeaderSize:total]
		if PayloadChecksum(payloadObf) != hdr.Checksum {
			return nil, ErrChecksumMismatch
		}

		payload := make([]byte, len(payloadObf))
		copy(payload, payloadObf)
		Obfuscate(payload)

		f.buf = f.buf[total:]
		f.resyncFailures = 0
		return &Frame{Header: hdr, Payload: payload}, nil
	}
}

// peekHeader de-obfuscates the first HeaderSize bytes into a tentative
// header without consuming them.
func (f *Framer) peekHeader() Header {
	var tmp [HeaderSize]byte
	copy(tmp[:], f.buf[:HeaderSize])
	Obfuscate(tmp[:])
	return decodeHeader(tmp[:])
}
