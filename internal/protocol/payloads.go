package protocol

import (
	"encoding/binary"
	"fmt"
)

// Every payload serializes to little-endian bytes with fixed-length fields
// and no padding. Fixed-length strings are UTF-8, right-zero-padded;
// readers stop at the first NUL. Variable-length trailers carry an explicit
// u32 length.

// Fixed field widths shared across payloads.
const (
	nameFieldLen     = 64
	osFieldLen       = 32
	saltHexFieldLen  = 64
	userFieldLen     = 64
	hashFieldLen     = 64
	sessionIDLen     = 32
	keyTextFieldLen  = 8
	handshakeReqSize = 4 + 2 + 2 + 1 + nameFieldLen + osFieldLen
	handshakeRspSize = 4 + 2 + 2 + 1 + 1 + nameFieldLen + osFieldLen
	authChalSize     = 4 + 4 + 4 + saltHexFieldLen
	authReqSize      = userFieldLen + hashFieldLen + 4
	authRspSize      = 1 + sessionIDLen + 4
	screenDataPrefix = 2 + 2 + 2 + 2 + 4
	mouseEventSize   = 1 + 2 + 2 + 2
	keyboardSize     = 1 + 4 + 4 + keyTextFieldLen
)

// AuthMethodPBKDF2 is the only authentication method currently defined:
// PBKDF2-HMAC-SHA256 challenge-response.
const AuthMethodPBKDF2 uint32 = 1

// AuthResult is the outcome code in an AuthenticationResponse.
type AuthResult uint8

const (
	AuthSuccess         AuthResult = 0
	AuthInvalidPassword AuthResult = 1
	AuthAccessDenied    AuthResult = 2
	AuthServerFull      AuthResult = 3
	AuthUnknownError    AuthResult = 255
)

func (r AuthResult) String() string {
	switch r {
	case AuthSuccess:
		return "success"
	case AuthInvalidPassword:
		return "invalid password"
	case AuthAccessDenied:
		return "access denied"
	case AuthServerFull:
		return "server full"
	default:
		return "unknown error"
	}
}

// Mouse event subtypes for MouseEvent.Type.
const (
	MouseMove       uint8 = 0
	MouseLeftDown   uint8 = 1
	MouseLeftUp     uint8 = 2
	MouseRightDown  uint8 = 3
	MouseRightUp    uint8 = 4
	MouseMiddleDown uint8 = 5
	MouseMiddleUp   uint8 = 6
	MouseWheel      uint8 = 7
)

// Keyboard event subtypes for KeyboardEvent.Type.
const (
	KeyRelease uint8 = 0
	KeyPress   uint8 = 1
)

// Clipboard content types for ClipboardData.Kind.
const (
	ClipboardText  uint8 = 0
	ClipboardImage uint8 = 1
)

// ImageTypeJPEG is the only screen image encoding currently defined.
const ImageTypeJPEG uint8 = 1

// --- Payload types ---

type HandshakeRequest struct {
	ClientVersion uint32
	Width, Height uint16
	ColorDepth    uint8
	Name          string // at most 64 bytes
	OS            string // at most 32 bytes
}

type HandshakeResponse struct {
	ServerVersion uint32
	Width, Height uint16
	ColorDepth    uint8
	Features      uint8
	Name          string
	OS            string
}

type AuthChallenge struct {
	Method     uint32
	Iterations uint32
	KeyLen     uint32
	SaltHex    string // hex-encoded salt, at most 64 bytes
}

// AuthenticationRequest doubles as a challenge request: an all-zero
// PasswordHash field asks the server to issue an AuthChallenge. This
// overload is kept for wire compatibility.
type AuthenticationRequest struct {
	Username     string
	PasswordHash string // hex-encoded PBKDF2 derived key; empty = challenge request
	AuthMethod   uint32
}

// ChallengeOnly reports whether the request carries no derived key and is
// therefore asking for a challenge.
func (m *AuthenticationRequest) ChallengeOnly() bool {
	return m.PasswordHash == ""
}

type AuthenticationResponse struct {
	Result      AuthResult
	SessionID   string // 32 bytes, UUID with dashes stripped
	Permissions uint32
}

type ScreenData struct {
	X, Y          uint16
	Width, Height uint16
	Data          []byte
}

type MouseEvent struct {
	Type       uint8
	X, Y       int16
	WheelDelta int16
}

type KeyboardEvent struct {
	Type      uint8
	KeyCode   uint32
	Modifiers uint32
	Text      string // at most 8 bytes
}

type ClipboardData struct {
	Kind          uint8
	Width, Height uint32 // image variant only
	Data          []byte
}

type CursorPosition struct {
	CursorShape uint8
}

// Heartbeat and HeartbeatResponse carry no payload; liveness information
// lives in the frame header timestamp.
type Heartbeat struct{}

type HeartbeatResponse struct{}

type ErrorMessage struct {
	Code    uint32
	Message string
}

type StatusUpdate struct {
	Status uint32
}

// --- Encoding ---

// EncodePayload serializes a payload value and returns its opcode and
// plaintext bytes. Framing and obfuscation happen in the framer.
func EncodePayload(msg any) (Opcode, []byte, error) {
	switch m := msg.(type) {
	case *HandshakeRequest:
		b := make([]byte, handshakeReqSize)
		binary.LittleEndian.PutUint32(b[0:4], m.ClientVersion)
		binary.LittleEndian.PutUint16(b[4:6], m.Width)
		binary.LittleEndian.PutUint16(b[6:8], m.Height)
		b[8] = m.ColorDepth
		putFixedString(b[9:9+nameFieldLen], m.Name)
		putFixedString(b[9+nameFieldLen:], m.OS)
		return OpHandshakeRequest, b, nil

	case *HandshakeResponse:
		b := make([]byte, handshakeRspSize)
		binary.LittleEndian.PutUint32(b[0:4], m.ServerVersion)
		binary.LittleEndian.PutUint16(b[4:6], m.Width)
		binary.LittleEndian.PutUint16(b[6:8], m.Height)
		b[8] = m.ColorDepth
		b[9] = m.Features
		putFixedString(b[10:10+nameFieldLen], m.Name)
		putFixedString(b[10+nameFieldLen:], m.OS)
		return OpHandshakeResponse, b, nil

	case *AuthChallenge:
		b := make([]byte, authChalSize)
		binary.LittleEndian.PutUint32(b[0:4], m.Method)
		binary.LittleEndian.PutUint32(b[4:8], m.Iterations)
		binary.LittleEndian.PutUint32(b[8:12], m.KeyLen)
		putFixedString(b[12:], m.SaltHex)
		return OpAuthChallenge, b, nil

	case *AuthenticationRequest:
		b := make([]byte, authReqSize)
		putFixedString(b[0:userFieldLen], m.Username)
		putFixedString(b[userFieldLen:userFieldLen+hashFieldLen], m.PasswordHash)
		binary.LittleEndian.PutUint32(b[userFieldLen+hashFieldLen:], m.AuthMethod)
		return OpAuthRequest, b, nil

	case *AuthenticationResponse:
		b := make([]byte, authRspSize)
		b[0] = uint8(m.Result)
		putFixedString(b[1:1+sessionIDLen], m.SessionID)
		binary.LittleEndian.PutUint32(b[1+sessionIDLen:], m.Permissions)
		return OpAuthResponse, b, nil

	case *ScreenData:
		if len(m.Data) > MaxImageSize {
			return 0, nil, ErrPayloadTooLarge
		}
		b := make([]byte, screenDataPrefix+len(m.Data))
		binary.LittleEndian.PutUint16(b[0:2], m.X)
		binary.LittleEndian.PutUint16(b[2:4], m.Y)
		binary.LittleEndian.PutUint16(b[4:6], m.Width)
		binary.LittleEndian.PutUint16(b[6:8], m.Height)
		binary.LittleEndian.PutUint32(b[8:12], uint32(len(m.Data)))
		copy(b[12:], m.Data)
		return OpScreenData, b, nil

	case *MouseEvent:
		b := make([]byte, mouseEventSize)
		b[0] = m.Type
		binary.LittleEndian.PutUint16(b[1:3], uint16(m.X))
		binary.LittleEndian.PutUint16(b[3:5], uint16(m.Y))
		binary.LittleEndian.PutUint16(b[5:7], uint16(m.WheelDelta))
		return OpMouseEvent, b, nil

	case *KeyboardEvent:
		b := make([]byte, keyboardSize)
		b[0] = m.Type
		binary.LittleEndian.PutUint32(b[1:5], m.KeyCode)
		binary.LittleEndian.PutUint32(b[5:9], m.Modifiers)
		putFixedString(b[9:], m.Text)
		return OpKeyboardEvent, b, nil

	case *ClipboardData:
		switch m.Kind {
		case ClipboardText:
			b := make([]byte, 1+4+len(m.Data))
			b[0] = m.Kind
			binary.LittleEndian.PutUint32(b[1:5], uint32(len(m.Data)))
			copy(b[5:], m.Data)
			return OpClipboardData, b, nil
		case ClipboardImage:
			b := make([]byte, 1+4+4+4+len(m.Data))
			b[0] = m.Kind
			binary.LittleEndian.PutUint32(b[1:5], m.Width)
			binary.LittleEndian.PutUint32(b[5:9], m.Height)
			binary.LittleEndian.PutUint32(b[9:13], uint32(len(m.Data)))
			copy(b[13:], m.Data)
			return OpClipboardData, b, nil
		default:
			return 0, nil, fmt.Errorf("clipboard kind %d: %w", m.Kind, ErrFieldOutOfRange)
		}

	case *CursorPosition:
		return OpCursorPosition, []byte{m.CursorShape}, nil

	case *Heartbeat:
		return OpHeartbeat, nil, nil

	case *HeartbeatResponse:
		return OpHeartbeatResponse, nil, nil

	case *ErrorMessage:
		msgBytes := []byte(m.Message)
		b := make([]byte, 4+4+len(msgBytes))
		binary.LittleEndian.PutUint32(b[0:4], m.Code)
		binary.LittleEndian.PutUint32(b[4:8], uint32(len(msgBytes)))
		copy(b[8:], msgBytes)
		return OpErrorMessage, b, nil

	case *StatusUpdate:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, m.Status)
		return OpStatusUpdate, b, nil

	default:
		return 0, nil, fmt.Errorf("unsupported payload type: %T", msg)
	}
}

// --- Decoding ---

// DecodePayload decodes plaintext payload bytes for the given opcode.
// On error the caller must not interpret any partial output.
func DecodePayload(op Opcode, b []byte) (any, error) {
	switch op {
	case OpHandshakeRequest:
		if len(b) < handshakeReqSize {
			return nil, ErrShortBuffer
		}
		return &HandshakeRequest{
			ClientVersion: binary.LittleEndian.Uint32(b[0:4]),
			Width:         binary.LittleEndian.Uint16(b[4:6]),
			Height:        binary.LittleEndian.Uint16(b[6:8]),
			ColorDepth:    b[8],
			Name:          fixedString(b[9 : 9+nameFieldLen]),
			OS:            fixedString(b[9+nameFieldLen : handshakeReqSize]),
		}, nil

	case OpHandshakeResponse:
		if len(b) < handshakeRspSize {
			return nil, ErrShortBuffer
		}
		return &HandshakeResponse{
			ServerVersion: binary.LittleEndian.Uint32(b[0:4]),
			Width:         binary.LittleEndian.Uint16(b[4:6]),
			Height:        binary.LittleEndian.Uint16(b[6:8]),
			ColorDepth:    b[8],
			Features:      b[9],
			Name:          fixedString(b[10 : 10+nameFieldLen]),
			OS:            fixedString(b[10+nameFieldLen : handshakeRspSize]),
		}, nil

	case OpAuthChallenge:
		if len(b) < authChalSize {
			return nil, ErrShortBuffer
		}
		return &AuthChallenge{
			Method:     binary.LittleEndian.Uint32(b[0:4]),
			Iterations: binary.LittleEndian.Uint32(b[4:8]),
			KeyLen:     binary.LittleEndian.Uint32(b[8:12]),
			SaltHex:    fixedString(b[12:authChalSize]),
		}, nil

	case OpAuthRequest:
		if len(b) < authReqSize {
			return nil, ErrShortBuffer
		}
		return &AuthenticationRequest{
			Username:     fixedString(b[0:userFieldLen]),
			PasswordHash: fixedString(b[userFieldLen : userFieldLen+hashFieldLen]),
			AuthMethod:   binary.LittleEndian.Uint32(b[userFieldLen+hashFieldLen:]),
		}, nil

	case OpAuthResponse:
		if len(b) < authRspSize {
			return nil, ErrShortBuffer
		}
		return &AuthenticationResponse{
			Result:      AuthResult(b[0]),
			SessionID:   fixedString(b[1 : 1+sessionIDLen]),
			Permissions: binary.LittleEndian.Uint32(b[1+sessionIDLen:]),
		}, nil

	case OpScreenData:
		if len(b) < screenDataPrefix {
			return nil, ErrShortBuffer
		}
		size := binary.LittleEndian.Uint32(b[8:12])
		if size > MaxImageSize || int(size) != len(b)-screenDataPrefix {
			return nil, ErrFieldOutOfRange
		}
		return &ScreenData{
			X:      binary.LittleEndian.Uint16(b[0:2]),
			Y:      binary.LittleEndian.Uint16(b[2:4]),
			Width:  binary.LittleEndian.Uint16(b[4:6]),
			Height: binary.LittleEndian.Uint16(b[6:8]),
			Data:   b[screenDataPrefix:],
		}, nil

	case OpMouseEvent:
		if len(b) < mouseEventSize {
			return nil, ErrShortBuffer
		}
		return &MouseEvent{
			Type:       b[0],
			X:          int16(binary.LittleEndian.Uint16(b[1:3])),
			Y:          int16(binary.LittleEndian.Uint16(b[3:5])),
			WheelDelta: int16(binary.LittleEndian.Uint16(b[5:7])),
		}, nil

	case OpKeyboardEvent:
		if len(b) < keyboardSize {
			return nil, ErrShortBuffer
		}
		return &KeyboardEvent{
			Type:      b[0],
			KeyCode:   binary.LittleEndian.Uint32(b[1:5]),
			Modifiers: binary.LittleEndian.Uint32(b[5:9]),
			Text:      fixedString(b[9:keyboardSize]),
		}, nil

	case OpClipboardData:
		if len(b) < 1 {
			return nil, ErrShortBuffer
		}
		switch b[0] {
		case ClipboardText:
			if len(b) < 5 {
				return nil, ErrShortBuffer
			}
			size := binary.LittleEndian.Uint32(b[1:5])
			if int(size) != len(b)-5 {
				return nil, ErrFieldOutOfRange
			}
			return &ClipboardData{Kind: ClipboardText, Data: b[5:]}, nil
		case ClipboardImage:
			if len(b) < 13 {
				return nil, ErrShortBuffer
			}
			size := binary.LittleEndian.Uint32(b[9:13])
			if int(size) != len(b)-13 {
				return nil, ErrFieldOutOfRange
			}
			return &ClipboardData{
				Kind:   ClipboardImage,
				Width:  binary.LittleEndian.Uint32(b[1:5]),
				Height: binary.LittleEndian.Uint32(b[5:9]),
				Data:   b[13:],
			}, nil
		default:
			return nil, ErrFieldOutOfRange
		}

	case OpCursorPosition:
		if len(b) < 1 {
			return nil, ErrShortBuffer
		}
		return &CursorPosition{CursorShape: b[0]}, nil

	case OpHeartbeat:
		return &Heartbeat{}, nil

	case OpHeartbeatResponse:
		return &HeartbeatResponse{}, nil

	case OpErrorMessage:
		if len(b) < 8 {
			return nil, ErrShortBuffer
		}
		size := binary.LittleEndian.Uint32(b[4:8])
		if int(size) != len(b)-8 {
			return nil, ErrFieldOutOfRange
		}
		return &ErrorMessage{
			Code:    binary.LittleEndian.Uint32(b[0:4]),
			Message: string(b[8:]),
		}, nil

	case OpStatusUpdate:
		if len(b) < 4 {
			return nil, ErrShortBuffer
		}
		return &StatusUpdate{Status: binary.LittleEndian.Uint32(b)}, nil

	default:
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownOpcode, uint32(op))
	}
}

// putFixedString copies s into dst, truncating at len(dst); the remainder
// is left as zero padding.
func putFixedString(dst []byte, s string) {
	copy(dst, s)
}

// fixedString reads a right-zero-padded string field, stopping at the
// first NUL or the field end, whichever comes first.
func fixedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
