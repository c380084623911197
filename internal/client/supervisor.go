// Package client runs the viewer side: it owns one session at a time,
// applies the reconnect policy to retryable failures, and feeds decoded
// frames to a renderer.
package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/avaropoint/rdcp/internal/screen"
	"github.com/avaropoint/rdcp/internal/session"
)

// Reconnect policy defaults.
const (
	DefaultInitialBackoff = 3 * time.Second
	DefaultMaxAttempts    = 5
)

// Config configures the viewer supervisor.
type Config struct {
	Session session.ClientConfig

	// AutoReconnect retries retryable failures: timeouts and transport
	// drops. Authentication failures and protocol violations never retry.
	AutoReconnect bool
	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration
	// MaxAttempts bounds consecutive failed attempts. Reaching Streaming
	// resets the count.
	MaxAttempts int

	// OnSession fires with each new session before it runs (optional);
	// UIs use it to rebind input and the frame queue.
	OnSession func(*session.ClientSession)
}

// Supervisor drives sessions against one server until the user disconnects
// or the reconnect budget is spent.
type Supervisor struct {
	cfg Config

	mu      sync.Mutex
	current *session.ClientSession
	stopped bool
}

// New creates a supervisor; Run drives it.
func New(cfg Config) *Supervisor {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Supervisor{cfg: cfg}
}

// Current returns the active session, or nil between attempts.
func (s *Supervisor) Current() *session.ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Disconnect ends the current session cooperatively and stops the
// reconnect loop.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	s.stopped = true
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		cur.Disconnect()
	}
}

// Run connects and supervises until the session closes cooperatively, a
// non-retryable failure occurs, or the reconnect budget runs out. The last
// session error is returned in the failure cases.
func (s *Supervisor) Run(ctx context.Context) error {
	attempts := 0
	backoff := s.cfg.InitialBackoff

	for {
		scfg := s.cfg.Session
		userStreaming := scfg.OnStreaming
		scfg.OnStreaming = func() {
			// A successful connection earns a fresh reconnect budget.
			attempts = 0
			backoff = s.cfg.InitialBackoff
			if userStreaming != nil {
				userStreaming()
			}
		}

		sess := session.NewClient(scfg)
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return nil
		}
		s.current = sess
		s.mu.Unlock()

		if s.cfg.OnSession != nil {
			s.cfg.OnSession(sess)
		}

		err := sess.Run(ctx)

		s.mu.Lock()
		s.current = nil
		stopped := s.stopped
		s.mu.Unlock()

		if err == nil || stopped || ctx.Err() != nil {
			return nil
		}

		var se *session.Error
		if !s.cfg.AutoReconnect || !errors.As(err, &se) || !se.Retryable() {
			return err
		}
		attempts++
		if attempts > s.cfg.MaxAttempts {
			log.Printf("client: giving up after %d attempts: %v", attempts-1, err)
			return err
		}

		log.Printf("client: connection lost (%v); retrying in %s (attempt %d/%d)",
			err, backoff, attempts, s.cfg.MaxAttempts)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// Renderer consumes decoded frames from the session queue.
type Renderer interface {
	Render(f *screen.Frame)
}

// LogRenderer is a headless renderer that logs frame geometry at a
// sampling interval, standing in for a real display surface.
type LogRenderer struct {
	// Every logs one in Every frames; 0 logs every 60th.
	Every int
	seen  int
}

func (r *LogRenderer) Render(f *screen.Frame) {
	every := r.Every
	if every <= 0 {
		every = 60
	}
	r.seen++
	if r.seen%every == 1 {
		b := f.Image.Bounds()
		log.Printf("client: frame %d: %dx%d at (%d,%d)", r.seen, b.Dx(), b.Dy(), f.X, f.Y)
	}
}

// RenderLoop polls the session queue at the given interval and hands each
// frame to the renderer, returning when the session reaches a terminal
// state or the context ends.
func RenderLoop(ctx context.Context, sess *session.ClientSession, r Renderer, interval time.Duration) {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				f, ok := sess.Queue().TryPop()
				if !ok {
					break
				}
				r.Render(f)
			}
			if sess.State().Terminal() {
				return
			}
		}
	}
}
