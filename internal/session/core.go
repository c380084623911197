package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avaropoint/rdcp/internal/protocol"
	"github.com/avaropoint/rdcp/internal/stats"
	"github.com/avaropoint/rdcp/internal/transport"
)

// Config carries the tunable deadlines shared by both session flavors.
// Zero values use the protocol defaults; tests shrink them.
type Config struct {
	HeartbeatInterval time.Duration // default 15s
	HeartbeatTimeout  time.Duration // default 45s
	AuthTimeout       time.Duration // default 15s
	QueueSize         int           // decoded frame queue capacity, default 3
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 45 * time.Second
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 15 * time.Second
	}
	return c
}

// NewID returns a fresh session id: a UUID with the dashes stripped,
// exactly 32 bytes, as the wire format requires.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// readEvent is one delivery from the reader goroutine.
type readEvent struct {
	data []byte
	err  error
}

// core is the state shared by both session flavors: the connection, the
// framer, the state variable, and the event plumbing. All fields except
// the state snapshot are owned by the I/O goroutine.
type core struct {
	id     string
	role   Role
	cfg    Config
	conn   *transport.Conn
	framer protocol.Framer
	table  dispatchTable
	st     stateVar
	stats  *stats.Stats

	readCh     chan readEvent
	disconnect chan struct{}
	parseMore  chan struct{}
	loopDone   chan struct{}

	lastRecv     time.Time
	authDeadline time.Time

	termErr *Error
}

func newCore(role Role, cfg Config, st *stats.Stats) *core {
	if st == nil {
		st = stats.New()
	}
	return &core{
		id:         NewID(),
		role:       role,
		cfg:        cfg.withDefaults(),
		table:      newDispatchTable(role),
		stats:      st,
		readCh:     make(chan readEvent, 4),
		disconnect: make(chan struct{}),
		parseMore:  make(chan struct{}, 1),
		loopDone:   make(chan struct{}),
	}
}

// ID returns the session id.
func (c *core) ID() string { return c.id }

// State returns a snapshot of the current state.
func (c *core) State() State { return c.st.get() }

// Err returns the terminal error after the session has failed.
func (c *core) Err() *Error { return c.termErr }

// Disconnect requests a cooperative graceful shutdown. The session
// observes the request at its next loop iteration. A second call is a
// no-op.
func (c *core) Disconnect() {
	select {
	case <-c.disconnect:
	default:
		close(c.disconnect)
	}
}

// send encodes and writes one payload, updating traffic counters.
func (c *core) send(msg any) error {
	wire, err := protocol.EncodeFrame(msg)
	if err != nil {
		return err
	}
	if err := c.conn.Write(wire); err != nil {
		return err
	}
	c.stats.BytesOut.Add(uint64(len(wire)))
	c.stats.FramesSent.Add(1)
	return nil
}

// readLoop runs on its own goroutine, pushing chunks into readCh. The
// per-read deadline is the heartbeat timeout, so a silent peer surfaces as
// a timeout error rather than a hung read.
func (c *core) readLoop() {
	for {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout)) //nolint:errcheck
		chunk, err := c.conn.ReadChunk()
		if len(chunk) > 0 {
			// The chunk aliases the connection's read buffer.
			data := make([]byte, len(chunk))
			copy(data, chunk)
			select {
			case c.readCh <- readEvent{data: data}:
			case <-c.loopDone:
				return
			}
		}
		if err != nil {
			select {
			case c.readCh <- readEvent{err: err}:
			case <-c.loopDone:
			}
			return
		}
	}
}

// signalParseMore schedules another drain pass after the per-tick frame
// cap was hit.
func (c *core) signalParseMore() {
	select {
	case c.parseMore <- struct{}{}:
	default:
	}
}

// ingest appends received bytes and drains up to MaxFramesPerTick frames
// through handle. It returns the first fatal error.
func (c *core) ingest(data []byte, handle func(*protocol.Frame) *Error) *Error {
	if err := c.framer.Append(data); err != nil {
		c.conn.Abort()
		return &Error{Kind: KindBufferOverflow, Err: err}
	}
	c.stats.BytesIn.Add(uint64(len(data)))
	return c.drain(handle)
}

// drain parses buffered frames, yielding after the per-tick cap.
func (c *core) drain(handle func(*protocol.Frame) *Error) *Error {
	for parsed := 0; parsed < protocol.MaxFramesPerTick; parsed++ {
		frame, err := c.framer.Next()
		if err != nil {
			if errors.Is(err, protocol.ErrChecksumMismatch) {
				c.stats.DataCorruptions.Add(1)
				return &Error{Kind: KindChecksumMismatch, Err: err}
			}
			return &Error{Kind: KindInvalidFrame, Err: err}
		}
		if frame == nil {
			return nil
		}
		c.stats.FramesReceived.Add(1)
		c.lastRecv = time.Now()
		if ferr := c.handleCommon(frame, handle); ferr != nil {
			return ferr
		}
	}
	if c.framer.Buffered() >= protocol.HeaderSize {
		c.signalParseMore()
	}
	return nil
}

// handleCommon decodes the payload, enforces the dispatch table, answers
// heartbeats, and forwards everything else to the flavor handler.
func (c *core) handleCommon(frame *protocol.Frame, handle func(*protocol.Frame) *Error) *Error {
	op := frame.Header.Opcode
	if !c.table.allows(c.st.get(), op) {
		return &Error{Kind: KindProtocolViolation,
			Err: &opcodeError{state: c.st.get(), op: op}}
	}

	switch op {
	case protocol.OpHeartbeat:
		// Liveness ping: answer and carry on; no state change.
		if err := c.send(&protocol.HeartbeatResponse{}); err != nil {
			return c.transportError(err)
		}
		return nil
	case protocol.OpHeartbeatResponse:
		return nil
	}

	return handle(frame)
}

// decode unwraps a payload, converting codec failures into fatal frame
// errors.
func (c *core) decode(frame *protocol.Frame) (any, *Error) {
	msg, err := protocol.DecodePayload(frame.Header.Opcode, frame.Payload)
	if err != nil {
		c.stats.DecodeFailures.Add(1)
		return nil, &Error{Kind: KindInvalidFrame, Err: err}
	}
	return msg, nil
}

// transportError wraps a socket error with its normalized kind. Timeouts
// while streaming count as idle timeouts.
func (c *core) transportError(err error) *Error {
	kind := transport.Classify(err)
	c.stats.NetworkErrors.Add(1)
	if kind == transport.KindTimeout {
		phase := PhaseIdle
		if !c.authDeadline.IsZero() && c.st.get() != StateStreaming {
			phase = PhaseAuth
		}
		return &Error{Kind: KindTimeout, Phase: phase, Err: err}
	}
	return &Error{Kind: KindTransport, Transport: kind, Err: err}
}

// remoteClosed reports whether the error is the peer's FIN arriving while
// streaming. That ends the session cooperatively rather than as a failure.
func (c *core) remoteClosed(e *Error) bool {
	return e.Kind == KindTransport && e.Transport == transport.KindHostClosed &&
		c.st.get() == StateStreaming
}

// checkDeadlines enforces the auth deadline and the idle heartbeat
// timeout. Called from the ticker.
func (c *core) checkDeadlines(now time.Time) *Error {
	st := c.st.get()
	if !c.authDeadline.IsZero() && st != StateStreaming && !st.Terminal() &&
		st != StateClosing && now.After(c.authDeadline) {
		c.stats.NetworkErrors.Add(1)
		return &Error{Kind: KindTimeout, Phase: PhaseAuth}
	}
	if !c.lastRecv.IsZero() && now.Sub(c.lastRecv) > c.cfg.HeartbeatTimeout {
		c.stats.NetworkErrors.Add(1)
		return &Error{Kind: KindTimeout, Phase: PhaseIdle}
	}
	return nil
}

// fail marks the session Failed and aborts the socket.
func (c *core) fail(err *Error) {
	c.termErr = err
	c.st.set(StateFailed)
	c.stats.SessionsFailed.Add(1)
	if c.conn != nil {
		c.conn.Abort()
	}
}

// closeGracefully runs the teardown order for a cooperative disconnect:
// stop new work, flush and close the transport, then mark Closed.
func (c *core) closeGracefully() {
	c.st.set(StateClosing)
	if c.conn != nil {
		c.conn.Close() //nolint:errcheck
	}
	c.st.set(StateClosed)
	c.stats.SessionsClosed.Add(1)
}

type opcodeError struct {
	state State
	op    protocol.Opcode
}

func (e *opcodeError) Error() string {
	return "opcode " + e.op.String() + " not allowed in state " + e.state.String()
}

// dialContext is split out so the client flavor can honor the connect
// timeout separately from the session context.
func dialContext(ctx context.Context, host string, port int) (*transport.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, transport.DefaultConnectTimeout)
	defer cancel()
	return transport.Dial(dctx, host, port)
}
