package session

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/avaropoint/rdcp/internal/auth"
	"github.com/avaropoint/rdcp/internal/input"
	"github.com/avaropoint/rdcp/internal/protocol"
	"github.com/avaropoint/rdcp/internal/screen"
	"github.com/avaropoint/rdcp/internal/stats"
)

// ClientConfig configures one outbound session.
type ClientConfig struct {
	Config

	Host string
	Port int

	Username string
	Password string

	// ClientName and ClientOS identify this endpoint in the handshake.
	ClientName string
	ClientOS   string

	// PreferredWidth and PreferredHeight are the client's requested
	// resolution; the server answers with its capture geometry.
	PreferredWidth  uint16
	PreferredHeight uint16

	// OnCursorShape is invoked for CursorPosition frames (optional).
	OnCursorShape func(shape uint8)
	// OnClipboard is invoked for received clipboard payloads (optional).
	OnClipboard func(data *protocol.ClipboardData)
	// OnStreaming is invoked once when the session reaches Streaming
	// (optional); reconnect policies use it to reset their counters.
	OnStreaming func()

	Stats *stats.Stats
}

// ClientSession is the client endpoint of one session: it dials, performs
// the handshake and challenge-response, then decodes incoming screen
// frames into its FrameQueue while relaying input events back.
type ClientSession struct {
	*core
	cfg ClientConfig

	queue    *screen.Queue
	decoder  *screen.Decoder
	decodeCh chan *protocol.ScreenData
	inputCh  *input.Channel

	geoMu            sync.RWMutex
	serverW, serverH uint16
	viewW, viewH     int

	remoteSessionID string
}

// NewClient creates a client session in Idle state. Run drives it to a
// terminal state.
func NewClient(cfg ClientConfig) *ClientSession {
	if cfg.ClientOS == "" {
		cfg.ClientOS = runtime.GOOS
	}
	if cfg.PreferredWidth == 0 || cfg.PreferredHeight == 0 {
		cfg.PreferredWidth, cfg.PreferredHeight = 1920, 1080
	}
	c := &ClientSession{
		core:     newCore(RoleClient, cfg.Config, cfg.Stats),
		cfg:      cfg,
		queue:    screen.NewQueue(cfg.QueueSize),
		decodeCh: make(chan *protocol.ScreenData, 1),
	}
	c.decoder = &screen.Decoder{Stats: c.stats}
	c.inputCh = input.NewChannel(c.sendWhileStreaming)
	c.st.set(StateIdle)
	return c
}

// Queue returns the decoded-frame queue the renderer polls. The queue
// outlives the session's connection but not the session itself.
func (c *ClientSession) Queue() *screen.Queue { return c.queue }

// RemoteSessionID returns the server-assigned session id, available once
// Streaming is reached.
func (c *ClientSession) RemoteSessionID() string { return c.remoteSessionID }

// ServerGeometry returns the server capture resolution from the handshake.
func (c *ClientSession) ServerGeometry() (w, h uint16) {
	c.geoMu.RLock()
	defer c.geoMu.RUnlock()
	return c.serverW, c.serverH
}

// SetViewSize updates the local render size used to remap input
// coordinates into server space.
func (c *ClientSession) SetViewSize(w, h int) {
	c.geoMu.Lock()
	c.viewW, c.viewH = w, h
	c.geoMu.Unlock()
}

// Run drives the session until a terminal state. It returns nil when the
// session closed cooperatively and the terminal *Error otherwise.
func (c *ClientSession) Run(ctx context.Context) error {
	c.stats.SessionsStarted.Add(1)
	c.st.set(StateConnecting)

	conn, err := dialContext(ctx, c.cfg.Host, c.cfg.Port)
	if err != nil {
		e := c.dialError(err)
		c.fail(e)
		return e
	}
	c.conn = conn

	defer close(c.loopDone)

	c.authDeadline = time.Now().Add(c.cfg.AuthTimeout)
	if err := c.send(&protocol.HandshakeRequest{
		ClientVersion: protocol.WireVersion,
		Width:         c.cfg.PreferredWidth,
		Height:        c.cfg.PreferredHeight,
		ColorDepth:    32,
		Name:          c.cfg.ClientName,
		OS:            c.cfg.ClientOS,
	}); err != nil {
		e := c.transportError(err)
		c.fail(e)
		return e
	}
	c.st.set(StateHandshakeSent)
	c.lastRecv = time.Now()

	go c.readLoop()
	go c.decodeLoop()
	defer close(c.decodeCh)
	c.inputCh.Start()
	defer c.inputCh.Stop()

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.closeGracefully()
			return nil

		case <-c.disconnect:
			c.closeGracefully()
			return nil

		case ev := <-c.readCh:
			if ev.err != nil {
				e := c.transportError(ev.err)
				if c.remoteClosed(e) {
					c.closeGracefully()
					return nil
				}
				c.fail(e)
				return e
			}
			if e := c.ingest(ev.data, c.handleFrame); e != nil {
				c.fail(e)
				return e
			}
			if c.st.get().Terminal() {
				return c.terminalResult()
			}

		case <-c.parseMore:
			if e := c.drain(c.handleFrame); e != nil {
				c.fail(e)
				return e
			}
			if c.st.get().Terminal() {
				return c.terminalResult()
			}

		case now := <-ticker.C:
			if e := c.checkDeadlines(now); e != nil {
				c.fail(e)
				return e
			}
		}
	}
}

func (c *ClientSession) terminalResult() error {
	if c.termErr != nil {
		return c.termErr
	}
	return nil
}

func (c *ClientSession) dialError(err error) *Error {
	e := c.transportError(err)
	if e.Kind == KindTimeout {
		e.Phase = PhaseConnect
	}
	return e
}

// handleFrame processes one dispatched frame; the table has already
// cleared the opcode for the current state.
func (c *ClientSession) handleFrame(frame *protocol.Frame) *Error {
	msg, e := c.decode(frame)
	if e != nil {
		return e
	}

	switch m := msg.(type) {
	case *protocol.HandshakeResponse:
		if m.ServerVersion != protocol.WireVersion {
			return &Error{Kind: KindInvalidFrame, Err: protocol.ErrBadVersion}
		}
		c.geoMu.Lock()
		c.serverW, c.serverH = m.Width, m.Height
		c.geoMu.Unlock()
		// Kick off the challenge-response with an empty derived key.
		if err := c.send(&protocol.AuthenticationRequest{
			Username:   c.cfg.Username,
			AuthMethod: protocol.AuthMethodPBKDF2,
		}); err != nil {
			return c.transportError(err)
		}
		c.st.set(StateChallenged)

	case *protocol.AuthChallenge:
		if m.Method != protocol.AuthMethodPBKDF2 {
			return &Error{Kind: KindAuthFailed, AuthResult: protocol.AuthUnknownError}
		}
		derived := auth.DeriveKeyHex(c.cfg.Password, m.SaltHex, int(m.Iterations), int(m.KeyLen))
		if err := c.send(&protocol.AuthenticationRequest{
			Username:     c.cfg.Username,
			PasswordHash: derived,
			AuthMethod:   protocol.AuthMethodPBKDF2,
		}); err != nil {
			return c.transportError(err)
		}
		c.st.set(StateAuthenticating)

	case *protocol.AuthenticationResponse:
		if m.Result != protocol.AuthSuccess {
			return &Error{Kind: KindAuthFailed, AuthResult: m.Result}
		}
		c.remoteSessionID = m.SessionID
		c.authDeadline = time.Time{}
		c.st.set(StateStreaming)
		if c.cfg.OnStreaming != nil {
			c.cfg.OnStreaming()
		}

	case *protocol.ScreenData:
		c.offerDecode(m)

	case *protocol.CursorPosition:
		if c.cfg.OnCursorShape != nil {
			c.cfg.OnCursorShape(m.CursorShape)
		}

	case *protocol.ClipboardData:
		if c.cfg.OnClipboard != nil {
			c.cfg.OnClipboard(m)
		}

	case *protocol.ErrorMessage:
		log.Printf("session %s: server error %d: %s", c.id, m.Code, m.Message)

	case *protocol.StatusUpdate:
		// Informational only.

	default:
		// Allowed by the table but meaningless on this side; drop.
	}
	return nil
}

// offerDecode hands a frame to the decode goroutine, replacing any stale
// pending frame so the decoder always works on the freshest image.
func (c *ClientSession) offerDecode(sd *protocol.ScreenData) {
	select {
	case c.decodeCh <- sd:
		return
	default:
	}
	select {
	case <-c.decodeCh:
	default:
	}
	select {
	case c.decodeCh <- sd:
	default:
	}
}

// decodeLoop decodes off the I/O goroutine so large JPEG frames never
// stall the socket. Decode failures drop the frame and keep streaming.
func (c *ClientSession) decodeLoop() {
	for sd := range c.decodeCh {
		frame, err := c.decoder.Decode(sd)
		if err != nil {
			log.Printf("session %s: dropped frame: %v", c.id, err)
			continue
		}
		// Closing sessions stop feeding the renderer.
		if c.st.get() == StateStreaming {
			c.queue.TryPush(frame)
		}
	}
}

// sendWhileStreaming is the input channel's sink; events arising outside
// Streaming are discarded.
func (c *ClientSession) sendWhileStreaming(msg any) error {
	if c.st.get() != StateStreaming {
		return nil
	}
	return c.send(msg)
}

// --- Input surface (called from the UI thread) ---

func (c *ClientSession) transform() input.Transform {
	c.geoMu.RLock()
	defer c.geoMu.RUnlock()
	return input.Transform{
		ViewWidth:    c.viewW,
		ViewHeight:   c.viewH,
		ServerWidth:  int(c.serverW),
		ServerHeight: int(c.serverH),
	}
}

// MouseMove remaps a view coordinate and enqueues a coalescable move.
func (c *ClientSession) MouseMove(x, y int) {
	sx, sy := c.transform().ToServer(x, y)
	c.inputCh.Offer(&protocol.MouseEvent{Type: protocol.MouseMove, X: sx, Y: sy}, true)
}

// MouseButton enqueues a button transition; never coalesced.
func (c *ClientSession) MouseButton(kind uint8, x, y int) {
	sx, sy := c.transform().ToServer(x, y)
	c.inputCh.Offer(&protocol.MouseEvent{Type: kind, X: sx, Y: sy}, false)
}

// Wheel enqueues a scroll event.
func (c *ClientSession) Wheel(x, y int, delta int16) {
	sx, sy := c.transform().ToServer(x, y)
	c.inputCh.Offer(&protocol.MouseEvent{Type: protocol.MouseWheel, X: sx, Y: sy, WheelDelta: delta}, false)
}

// Key enqueues a key transition; never coalesced.
func (c *ClientSession) Key(kind uint8, code, mods uint32, text string) {
	c.inputCh.Offer(&protocol.KeyboardEvent{Type: kind, KeyCode: code, Modifiers: mods, Text: text}, false)
}

// SendClipboardText ships local clipboard text to the server.
func (c *ClientSession) SendClipboardText(text string) error {
	return c.sendWhileStreaming(&protocol.ClipboardData{Kind: protocol.ClipboardText, Data: []byte(text)})
}
