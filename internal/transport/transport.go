// Package transport manages one TCP connection for a session: dialing with
// the protocol's socket options, chunked reads, graceful close with an
// abort escalation, and normalized error classification.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultConnectTimeout bounds a connection attempt.
	DefaultConnectTimeout = 15 * time.Second
	// gracefulCloseTimeout is how long Close waits for the peer's FIN
	// before escalating to Abort.
	gracefulCloseTimeout = 1 * time.Second
	// readChunkSize bounds a single read so one large frame cannot starve
	// the event loop.
	readChunkSize = 64 * 1024
	// socketBufferSize is applied to both send and receive buffers.
	socketBufferSize = 256 * 1024
)

// Conn wraps one established TCP connection. Reads happen on the session's
// I/O goroutine; writes may come from other goroutines and are serialized.
type Conn struct {
	c       net.Conn
	readBuf []byte

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to host:port with the protocol's socket options, bounded
// by DefaultConnectTimeout or the context, whichever ends first.
func Dial(ctx context.Context, host string, port int) (*Conn, error) {
	d := net.Dialer{Timeout: DefaultConnectTimeout}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return Wrap(c), nil
}

// Wrap applies socket options to an already-established connection
// (typically from a listener's Accept).
func Wrap(c net.Conn) *Conn {
	if tc, ok := c.(*net.TCPConn); ok {
		tc.SetNoDelay(true)               //nolint:errcheck
		tc.SetKeepAlive(true)             //nolint:errcheck
		tc.SetReadBuffer(socketBufferSize)  //nolint:errcheck
		tc.SetWriteBuffer(socketBufferSize) //nolint:errcheck
	}
	return &Conn{c: c, readBuf: make([]byte, readChunkSize)}
}

// ReadChunk blocks for the next chunk of bytes, at most 64 KiB. The
// returned slice is valid only until the next ReadChunk call.
func (c *Conn) ReadChunk() ([]byte, error) {
	n, err := c.c.Read(c.readBuf)
	if n > 0 {
		return c.readBuf[:n], err
	}
	return nil, err
}

// Write sends b in full, serialized against concurrent writers.
func (c *Conn) Write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.c.Write(b)
	return err
}

// SetReadDeadline sets the deadline for ReadChunk.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.c.SetReadDeadline(t)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.c.RemoteAddr() }

// Close performs a graceful disconnect: send a FIN, wait up to one second
// for the peer to close, then abort. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		tc, ok := c.c.(*net.TCPConn)
		if !ok {
			c.closeErr = c.c.Close()
			return
		}
		if err := tc.CloseWrite(); err != nil {
			c.closeErr = tc.Close()
			return
		}
		// Drain until EOF or the graceful deadline so unsent peer data
		// does not trigger an RST.
		tc.SetReadDeadline(time.Now().Add(gracefulCloseTimeout)) //nolint:errcheck
		buf := make([]byte, 1024)
		for {
			if _, err := tc.Read(buf); err != nil {
				break
			}
		}
		c.closeErr = tc.Close()
	})
	return c.closeErr
}

// Abort closes the connection immediately, discarding unsent data.
func (c *Conn) Abort() {
	c.closeOnce.Do(func() {
		if tc, ok := c.c.(*net.TCPConn); ok {
			tc.SetLinger(0) //nolint:errcheck
		}
		c.closeErr = c.c.Close()
	})
}
