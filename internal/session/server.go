package session

import (
	"context"
	"errors"
	"log"
	"net"
	"runtime"
	"time"

	"github.com/avaropoint/rdcp/internal/auth"
	"github.com/avaropoint/rdcp/internal/input"
	"github.com/avaropoint/rdcp/internal/protocol"
	"github.com/avaropoint/rdcp/internal/stats"
	"github.com/avaropoint/rdcp/internal/store"
	"github.com/avaropoint/rdcp/internal/transport"
)

// CredentialSource resolves a username to its stored password. Both the
// SQLite store and StaticCredentials satisfy it.
type CredentialSource interface {
	GetPassword(ctx context.Context, username string) (string, error)
}

// ServerConfig configures one accepted session.
type ServerConfig struct {
	Config

	Credentials CredentialSource
	// Full reports whether the server is at capacity. Checked when the
	// hashed authentication request arrives, so a correct password on a
	// full server is still refused.
	Full func() bool

	// ServerName and ServerOS identify this endpoint in the handshake.
	ServerName string
	ServerOS   string

	// Width and Height are the capture geometry advertised to clients
	// and the bounds injected mouse events are validated against.
	Width, Height uint16

	Injector input.Injector

	// OnAuthenticated fires once when the session reaches Streaming
	// (optional); supervisors use it to record connection history.
	OnAuthenticated func(username string)
	// OnClipboard is invoked for received clipboard payloads (optional).
	OnClipboard func(data *protocol.ClipboardData)

	Stats *stats.Stats
}

// ServerSession is the host endpoint of one accepted connection: it
// answers the handshake, issues the authentication challenge, then ships
// encoded screen frames and injects received input.
type ServerSession struct {
	*core
	cfg ServerConfig

	frameCh chan *protocol.ScreenData
	bounds  input.Bounds

	// Challenge state, owned by the I/O goroutine.
	challengeUser string
	challengeSalt string

	username   string
	clientName string
	clientOS   string
}

// NewServer wraps an accepted connection in a session. Run drives it.
func NewServer(conn *transport.Conn, cfg ServerConfig) *ServerSession {
	if cfg.ServerOS == "" {
		cfg.ServerOS = runtime.GOOS
	}
	if cfg.Injector == nil {
		cfg.Injector = input.LogInjector{}
	}
	s := &ServerSession{
		core:    newCore(RoleServer, cfg.Config, cfg.Stats),
		cfg:     cfg,
		frameCh: make(chan *protocol.ScreenData, 1),
		bounds:  input.Bounds{Width: int(cfg.Width), Height: int(cfg.Height)},
	}
	s.conn = conn
	s.st.set(StateHandshakeSent)
	return s
}

// Username returns the authenticated username, available once Streaming
// is reached.
func (s *ServerSession) Username() string { return s.username }

// ClientIdentity returns the name and OS the client sent in its handshake.
func (s *ServerSession) ClientIdentity() (name, os string) {
	return s.clientName, s.clientOS
}

// RemoteAddr returns the peer address.
func (s *ServerSession) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// OfferFrame hands an encoded screen frame to the session, replacing any
// stale pending frame. Frames offered outside Streaming are dropped.
func (s *ServerSession) OfferFrame(sd *protocol.ScreenData) {
	if s.st.get() != StateStreaming {
		return
	}
	select {
	case s.frameCh <- sd:
		return
	default:
	}
	select {
	case <-s.frameCh:
	default:
	}
	select {
	case s.frameCh <- sd:
	default:
	}
}

// SendCursorShape pushes a cursor shape change to the client.
func (s *ServerSession) SendCursorShape(shape uint8) error {
	if s.st.get() != StateStreaming {
		return nil
	}
	return s.send(&protocol.CursorPosition{CursorShape: shape})
}

// SendClipboardText ships host clipboard text to the client.
func (s *ServerSession) SendClipboardText(text string) error {
	if s.st.get() != StateStreaming {
		return nil
	}
	return s.send(&protocol.ClipboardData{Kind: protocol.ClipboardText, Data: []byte(text)})
}

// Run drives the session until a terminal state. It returns nil when the
// session closed cooperatively and the terminal *Error otherwise.
func (s *ServerSession) Run(ctx context.Context) error {
	s.stats.SessionsStarted.Add(1)
	s.authDeadline = time.Now().Add(s.cfg.AuthTimeout)
	s.lastRecv = time.Now()

	defer close(s.loopDone)
	go s.readLoop()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeGracefully()
			return nil

		case <-s.disconnect:
			s.closeGracefully()
			return nil

		case ev := <-s.readCh:
			if ev.err != nil {
				e := s.transportError(ev.err)
				if s.remoteClosed(e) {
					s.closeGracefully()
					return nil
				}
				s.fail(e)
				return e
			}
			if e := s.ingest(ev.data, s.handleFrame); e != nil {
				s.fail(e)
				return e
			}
			if s.st.get().Terminal() {
				return s.terminalResult()
			}

		case <-s.parseMore:
			if e := s.drain(s.handleFrame); e != nil {
				s.fail(e)
				return e
			}
			if s.st.get().Terminal() {
				return s.terminalResult()
			}

		case sd := <-s.frameCh:
			if s.st.get() != StateStreaming {
				continue
			}
			if err := s.send(sd); err != nil {
				// An unsendable encoding is local to the frame; the
				// connection is still healthy.
				if errors.Is(err, protocol.ErrPayloadTooLarge) {
					s.stats.EncodeFailures.Add(1)
					log.Printf("session %s: dropping %dx%d frame: %v", s.id, sd.Width, sd.Height, err)
					continue
				}
				e := s.transportError(err)
				s.fail(e)
				return e
			}

		case now := <-ticker.C:
			if e := s.checkDeadlines(now); e != nil {
				s.fail(e)
				return e
			}
			if s.st.get() == StateStreaming {
				if err := s.send(&protocol.Heartbeat{}); err != nil {
					e := s.transportError(err)
					s.fail(e)
					return e
				}
			}
		}
	}
}

func (s *ServerSession) terminalResult() error {
	if s.termErr != nil {
		return s.termErr
	}
	return nil
}

func (s *ServerSession) handleFrame(frame *protocol.Frame) *Error {
	msg, e := s.decode(frame)
	if e != nil {
		return e
	}

	switch m := msg.(type) {
	case *protocol.HandshakeRequest:
		if m.ClientVersion != protocol.WireVersion {
			return &Error{Kind: KindInvalidFrame, Err: protocol.ErrBadVersion}
		}
		s.clientName, s.clientOS = m.Name, m.OS
		if err := s.send(&protocol.HandshakeResponse{
			ServerVersion: protocol.WireVersion,
			Width:         s.cfg.Width,
			Height:        s.cfg.Height,
			ColorDepth:    32,
			Name:          s.cfg.ServerName,
			OS:            s.cfg.ServerOS,
		}); err != nil {
			return s.transportError(err)
		}
		s.st.set(StateChallenged)

	case *protocol.AuthenticationRequest:
		return s.handleAuth(m)

	case *protocol.MouseEvent:
		if !s.bounds.ValidMouse(m) {
			// Out-of-bounds coordinates are dropped, never injected.
			return nil
		}
		if err := s.cfg.Injector.InjectMouse(m); err != nil {
			log.Printf("session %s: mouse inject: %v", s.id, err)
		}

	case *protocol.KeyboardEvent:
		if err := s.cfg.Injector.InjectKeyboard(m); err != nil {
			log.Printf("session %s: keyboard inject: %v", s.id, err)
		}

	case *protocol.ClipboardData:
		if s.cfg.OnClipboard != nil {
			s.cfg.OnClipboard(m)
		}

	case *protocol.ErrorMessage:
		log.Printf("session %s: client error %d: %s", s.id, m.Code, m.Message)

	case *protocol.StatusUpdate:
		// Informational only.

	default:
		// Allowed by the table but meaningless on this side; drop.
	}
	return nil
}

// handleAuth processes both forms of the authentication request: the
// challenge request in Challenged and the hashed answer in Authenticating.
func (s *ServerSession) handleAuth(req *protocol.AuthenticationRequest) *Error {
	switch s.st.get() {
	case StateChallenged:
		if !req.ChallengeOnly() {
			// A derived key with no issued challenge can only be a replay
			// or a confused client.
			return s.denyAuth(protocol.AuthUnknownError)
		}
		if req.AuthMethod != protocol.AuthMethodPBKDF2 {
			return s.denyAuth(protocol.AuthUnknownError)
		}
		salt, err := auth.NewSaltHex()
		if err != nil {
			return s.denyAuth(protocol.AuthUnknownError)
		}
		s.challengeUser = req.Username
		s.challengeSalt = salt
		if err := s.send(&protocol.AuthChallenge{
			Method:     protocol.AuthMethodPBKDF2,
			Iterations: auth.Iterations,
			KeyLen:     auth.KeyLen,
			SaltHex:    salt,
		}); err != nil {
			return s.transportError(err)
		}
		s.st.set(StateAuthenticating)
		return nil

	case StateAuthenticating:
		if req.ChallengeOnly() || req.Username != s.challengeUser {
			return s.denyAuth(protocol.AuthAccessDenied)
		}
		if s.cfg.Full != nil && s.cfg.Full() {
			// Capacity wins over a correct password.
			return s.denyAuth(protocol.AuthServerFull)
		}
		password, err := s.cfg.Credentials.GetPassword(context.Background(), req.Username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return s.denyAuth(protocol.AuthInvalidPassword)
			}
			return s.denyAuth(protocol.AuthUnknownError)
		}
		if !auth.VerifyDerivedHex(password, s.challengeSalt, req.PasswordHash,
			auth.Iterations, auth.KeyLen) {
			return s.denyAuth(protocol.AuthInvalidPassword)
		}

		s.username = req.Username
		if err := s.send(&protocol.AuthenticationResponse{
			Result:    protocol.AuthSuccess,
			SessionID: s.id,
		}); err != nil {
			return s.transportError(err)
		}
		s.authDeadline = time.Time{}
		s.st.set(StateStreaming)
		if s.cfg.OnAuthenticated != nil {
			s.cfg.OnAuthenticated(s.username)
		}
		return nil
	}
	return &Error{Kind: KindProtocolViolation,
		Err: &opcodeError{state: s.st.get(), op: protocol.OpAuthRequest}}
}

// denyAuth sends the failure result, closes the connection gracefully so
// the response reaches the client, and reports the terminal error.
func (s *ServerSession) denyAuth(result protocol.AuthResult) *Error {
	if err := s.send(&protocol.AuthenticationResponse{Result: result}); err != nil {
		return s.transportError(err)
	}
	s.conn.Close() //nolint:errcheck
	return &Error{Kind: KindAuthFailed, AuthResult: result}
}
