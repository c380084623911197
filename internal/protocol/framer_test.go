package protocol

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func mustEncode(t *testing.T, msg any) []byte {
	t.Helper()
	wire, err := EncodeFrame(msg)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return wire
}

func TestObfuscateIsInvolution(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	obf := ObfuscateCopy(data)
	if bytes.Equal(obf, data) {
		t.Fatal("obfuscation must change the bytes")
	}
	Obfuscate(obf)
	if !bytes.Equal(obf, data) {
		t.Fatal("double obfuscation must restore the original")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("screen frame payload")
	wire, err := EncodeRawFrame(OpScreenData, payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(wire) != HeaderSize+len(payload) {
		t.Fatalf("wire length: got %d, want %d", len(wire), HeaderSize+len(payload))
	}

	var f Framer
	if err := f.Append(wire); err != nil {
		t.Fatal(err)
	}
	frame, err := f.Next()
	if err != nil {
		t.Fatal(err)
	}
	if frame == nil {
		t.Fatal("expected a complete frame")
	}
	if frame.Header.Opcode != OpScreenData {
		t.Fatalf("opcode: got %v", frame.Header.Opcode)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatal("payload mismatch after round trip")
	}
	if f.Buffered() != 0 {
		t.Fatalf("buffer not drained: %d bytes left", f.Buffered())
	}
}

func TestFrameHeaderFields(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	wire, err := EncodeRawFrame(OpMouseEvent, payload)
	if err != nil {
		t.Fatal(err)
	}

	hdrBytes := make([]byte, HeaderSize)
	copy(hdrBytes, wire[:HeaderSize])
	Obfuscate(hdrBytes)
	hdr := decodeHeader(hdrBytes)

	if hdr.Magic != Magic {
		t.Fatalf("magic: got 0x%08x", hdr.Magic)
	}
	if hdr.Version != WireVersion {
		t.Fatalf("version: got %d", hdr.Version)
	}
	if hdr.PayloadLen != uint32(len(payload)) {
		t.Fatalf("payload_len: got %d", hdr.PayloadLen)
	}
	if hdr.Checksum != PayloadChecksum(wire[HeaderSize:]) {
		t.Fatal("checksum is not md5(payload_obf)[0..4]")
	}
	if hdr.Timestamp == 0 {
		t.Fatal("timestamp not populated")
	}
}

func TestIncompleteFrameWaits(t *testing.T) {
	wire := mustEncode(t, &Heartbeat{})

	var f Framer
	if err := f.Append(wire[:HeaderSize-1]); err != nil {
		t.Fatal(err)
	}
	frame, err := f.Next()
	if err != nil || frame != nil {
		t.Fatalf("partial header: got (%v, %v), want (nil, nil)", frame, err)
	}
	if err := f.Append(wire[HeaderSize-1:]); err != nil {
		t.Fatal(err)
	}
	frame, err = f.Next()
	if err != nil || frame == nil {
		t.Fatalf("complete frame: got (%v, %v)", frame, err)
	}
}

// Delivering a large frame in 64 KiB chunks must produce exactly one parse
// after the final chunk, leaving the buffer empty.
func TestChunkedReassembly(t *testing.T) {
	payload := make([]byte, 2*1024*1024)
	rand.New(rand.NewSource(4)).Read(payload)
	wire, err := EncodeRawFrame(OpScreenData, payload)
	if err != nil {
		t.Fatal(err)
	}

	var f Framer
	const chunk = 64 * 1024
	parses := 0
	for off := 0; off < len(wire); off += chunk {
		end := off + chunk
		if end > len(wire) {
			end = len(wire)
		}
		if err := f.Append(wire[off:end]); err != nil {
			t.Fatal(err)
		}
		frame, err := f.Next()
		if err != nil {
			t.Fatal(err)
		}
		if frame != nil {
			parses++
			if !bytes.Equal(frame.Payload, payload) {
				t.Fatal("payload mismatch")
			}
		}
	}
	if parses != 1 {
		t.Fatalf("got %d parses, want exactly 1", parses)
	}
	if f.Buffered() != 0 {
		t.Fatalf("buffer not empty: %d bytes", f.Buffered())
	}
}

// Coalesced frames in one buffer parse in send order.
func TestCoalescedFramesParseInOrder(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 10; i++ {
		wire, err := EncodeRawFrame(OpScreenData, []byte{byte(i)})
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(wire)
	}

	var f Framer
	if err := f.Append(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		frame, err := f.Next()
		if err != nil {
			t.Fatal(err)
		}
		if frame == nil {
			t.Fatalf("frame %d missing", i)
		}
		if frame.Payload[0] != byte(i) {
			t.Fatalf("out of order: got %d at position %d", frame.Payload[0], i)
		}
	}
	if f.Buffered() != 0 {
		t.Fatalf("buffer not empty: %d bytes", f.Buffered())
	}
}

// Garbage before a valid frame is skipped once the resync threshold trips,
// even when half the buffer capacity is junk.
func TestResyncAfterGarbage(t *testing.T) {
	recoverFrame := func(t *testing.T, garbage []byte) {
		t.Helper()
		valid := mustEncode(t, &CursorPosition{CursorShape: 2})

		var f Framer
		if err := f.Append(garbage); err != nil {
			t.Fatal(err)
		}
		if err := f.Append(valid); err != nil {
			t.Fatal(err)
		}

		var frame *Frame
		var err error
		for call := 0; call < ResyncThreshold; call++ {
			frame, err = f.Next()
			if err != nil {
				t.Fatalf("call %d: %v", call, err)
			}
			if frame != nil {
				break
			}
		}
		if frame == nil {
			t.Fatalf("parser did not recover within %d calls", ResyncThreshold)
		}
		if frame.Header.Opcode != OpCursorPosition || frame.Payload[0] != 2 {
			t.Fatalf("recovered wrong frame: %+v", frame)
		}
		if f.Buffered() != 0 {
			t.Fatalf("buffer not drained: %d bytes", f.Buffered())
		}
	}

	t.Run("ShortPrefix", func(t *testing.T) {
		garbage := make([]byte, 1000)
		rand.New(rand.NewSource(7)).Read(garbage)
		recoverFrame(t, garbage)
	})

	t.Run("HalfBufferPrefix", func(t *testing.T) {
		// A rolling byte pattern that never lines up with the magic.
		garbage := make([]byte, MaxBufferSize/2)
		for i := range garbage {
			garbage[i] = byte(i)
		}
		recoverFrame(t, garbage)
	})
}

// Flipping any single payload bit must be caught by the checksum.
func TestChecksumStrictness(t *testing.T) {
	payload := []byte("integrity matters")
	wire, err := EncodeRawFrame(OpClipboardData, payload)
	if err != nil {
		t.Fatal(err)
	}

	for bit := 0; bit < len(payload)*8; bit += 13 {
		corrupted := make([]byte, len(wire))
		copy(corrupted, wire)
		corrupted[HeaderSize+bit/8] ^= 1 << (bit % 8)

		var f Framer
		if err := f.Append(corrupted); err != nil {
			t.Fatal(err)
		}
		if _, err := f.Next(); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("bit %d: got %v, want ErrChecksumMismatch", bit, err)
		}
	}
}

func TestBufferOverflowDeterministic(t *testing.T) {
	var f Framer
	half := make([]byte, MaxBufferSize/2)
	if err := f.Append(half); err != nil {
		t.Fatal(err)
	}
	if err := f.Append(half); err != nil {
		t.Fatal(err)
	}
	if err := f.Append([]byte{0}); !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("got %v, want ErrBufferOverflow", err)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	if _, err := EncodeRawFrame(OpScreenData, make([]byte, MaxPayloadSize+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("got %v, want ErrPayloadTooLarge", err)
	}
}
