// Package protocol defines the RDCP wire format shared by the server and
// client: the frame header, XOR obfuscation, payload codecs, and the
// incremental framer that reassembles frames from a TCP byte stream.
package protocol

// Magic identifies RDCP traffic; the four bytes spell "RDCP" when read
// most-significant first.
const Magic uint32 = 0x52444350

// WireVersion is the protocol version carried in every frame header.
// Version mismatches fail the session.
const WireVersion uint32 = 1

// HeaderSize is the exact serialized size of a frame header in bytes.
const HeaderSize = 28

// DefaultPort is the TCP port servers listen on unless configured
// otherwise.
const DefaultPort = 5901

const (
	// MaxPacketSize bounds a whole frame (header + payload).
	MaxPacketSize = 5 * 1024 * 1024
	// MaxPayloadSize bounds the payload portion of a frame.
	MaxPayloadSize = MaxPacketSize - HeaderSize
	// MaxBufferSize bounds the framer's receive buffer. Exceeding it is a
	// fatal connection error.
	MaxBufferSize = 10 * 1024 * 1024
	// ResyncThreshold is the number of consecutive header failures before
	// the framer starts discarding bytes to find the next frame boundary.
	ResyncThreshold = 4
	// MaxFramesPerTick caps how many frames a dispatcher loop drains per
	// pass so I/O and rendering keep making progress.
	MaxFramesPerTick = 10
	// MaxImageSize is the hard cap on a single encoded screen image.
	MaxImageSize = 50 * 1024 * 1024
)

// Opcode identifies a payload type.
type Opcode uint32

const (
	OpHandshakeRequest  Opcode = 0x0001
	OpHandshakeResponse Opcode = 0x0002
	OpAuthRequest       Opcode = 0x0003
	OpAuthResponse      Opcode = 0x0004
	OpErrorMessage      Opcode = 0x0005
	OpHeartbeat         Opcode = 0x0006
	OpHeartbeatResponse Opcode = 0x0007
	OpAuthChallenge     Opcode = 0x0008
	OpStatusUpdate      Opcode = 0x0009

	OpScreenData       Opcode = 0x1001
	OpScreenUpdate     Opcode = 0x1002
	OpScreenResolution Opcode = 0x1003
	OpCursorPosition   Opcode = 0x1004
	OpCursorShape      Opcode = 0x1005

	OpMouseEvent    Opcode = 0x2001
	OpKeyboardEvent Opcode = 0x2002

	OpAudioData   Opcode = 0x3001
	OpAudioFormat Opcode = 0x3002

	// File transfer family, reserved. Schemas are not implemented.
	OpFileTransferStart  Opcode = 0x4001
	OpFileTransferData   Opcode = 0x4002
	OpFileTransferEnd    Opcode = 0x4003
	OpFileTransferCancel Opcode = 0x4004
	OpFileTransferAck    Opcode = 0x4005

	OpClipboardData Opcode = 0x5001
)

func (o Opcode) String() string {
	switch o {
	case OpHandshakeRequest:
		return "HandshakeRequest"
	case OpHandshakeResponse:
		return "HandshakeResponse"
	case OpAuthRequest:
		return "AuthenticationRequest"
	case OpAuthResponse:
		return "AuthenticationResponse"
	case OpErrorMessage:
		return "ErrorMessage"
	case OpHeartbeat:
		return "Heartbeat"
	case OpHeartbeatResponse:
		return "HeartbeatResponse"
	case OpAuthChallenge:
		return "AuthChallenge"
	case OpStatusUpdate:
		return "StatusUpdate"
	case OpScreenData:
		return "ScreenData"
	case OpScreenUpdate:
		return "ScreenUpdate"
	case OpScreenResolution:
		return "ScreenResolution"
	case OpCursorPosition:
		return "CursorPosition"
	case OpCursorShape:
		return "CursorShape"
	case OpMouseEvent:
		return "MouseEvent"
	case OpKeyboardEvent:
		return "KeyboardEvent"
	case OpAudioData:
		return "AudioData"
	case OpAudioFormat:
		return "AudioFormat"
	case OpClipboardData:
		return "ClipboardData"
	default:
		if o >= OpFileTransferStart && o <= OpFileTransferAck {
			return "FileTransfer"
		}
		return "Unknown"
	}
}
