// Package server runs the host side: it listens for connections, spawns a
// session per client, drives the shared capture pipeline, and fans encoded
// frames out to every streaming session.
package server

import (
	"context"
	"fmt"
	"image"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avaropoint/rdcp/internal/input"
	"github.com/avaropoint/rdcp/internal/screen"
	"github.com/avaropoint/rdcp/internal/session"
	"github.com/avaropoint/rdcp/internal/stats"
	"github.com/avaropoint/rdcp/internal/store"
	"github.com/avaropoint/rdcp/internal/transport"
)

// Defaults for the capture pipeline.
const (
	DefaultMaxClients = 10
	DefaultCaptureFPS = 30
	DefaultWidth      = 1280
	DefaultHeight     = 720
)

// Config configures the host supervisor.
type Config struct {
	Host string
	Port int

	// MaxClients caps concurrent authenticated sessions; further clients
	// are refused with a server-full result.
	MaxClients int

	Session     session.Config
	Credentials session.CredentialSource

	// History records connection starts and outcomes (optional).
	History store.Store

	Capture       screen.CaptureBackend
	CaptureFPS    int
	CaptureWidth  int
	CaptureHeight int
	Quality       int

	ServerName string
	Injector   input.Injector

	Stats *stats.Stats
}

func (c Config) withDefaults() Config {
	if c.MaxClients <= 0 {
		c.MaxClients = DefaultMaxClients
	}
	if c.CaptureFPS <= 0 {
		c.CaptureFPS = DefaultCaptureFPS
	}
	if c.CaptureWidth <= 0 {
		c.CaptureWidth = DefaultWidth
	}
	if c.CaptureHeight <= 0 {
		c.CaptureHeight = DefaultHeight
	}
	if c.Capture == nil {
		c.Capture = &screen.TestPattern{}
	}
	if c.Stats == nil {
		c.Stats = stats.New()
	}
	return c
}

// Supervisor owns the listener and the set of live sessions. The capture
// backend runs only while at least one session is streaming.
type Supervisor struct {
	cfg Config
	enc *screen.Encoder
	ln  net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	sessions  map[string]*session.ServerSession
	streaming int
}

// New creates a supervisor; Start binds the listener.
func New(cfg Config) *Supervisor {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:      cfg,
		enc:      &screen.Encoder{Quality: cfg.Quality, MaxWidth: cfg.CaptureWidth, MaxHeight: cfg.CaptureHeight},
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session.ServerSession),
	}
}

// Start binds the listener and begins accepting connections.
func (s *Supervisor) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	log.Printf("server: listening on %s (max %d clients)", ln.Addr(), s.cfg.MaxClients)
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address.
func (s *Supervisor) Addr() net.Addr { return s.ln.Addr() }

// SessionCount returns the number of live sessions, streaming or not.
func (s *Supervisor) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops accepting, disconnects every session, and waits for all
// session goroutines to finish.
func (s *Supervisor) Close() error {
	s.cancel()
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.Disconnect()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *Supervisor) acceptLoop() {
	defer s.wg.Done()
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			log.Printf("server: accept: %v", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(raw)
		}()
	}
}

// handle runs one session to completion on the accepting goroutine's
// spawned worker.
func (s *Supervisor) handle(raw net.Conn) {
	conn := transport.Wrap(raw)

	var sess *session.ServerSession
	authed := false
	scfg := session.ServerConfig{
		Config:      s.cfg.Session,
		Credentials: s.cfg.Credentials,
		Full:        s.atCapacity,
		ServerName:  s.cfg.ServerName,
		Width:       uint16(s.cfg.CaptureWidth),
		Height:      uint16(s.cfg.CaptureHeight),
		Injector:    s.cfg.Injector,
		Stats:       s.cfg.Stats,
		OnAuthenticated: func(username string) {
			authed = true
			s.streamingStarted()
			s.recordStart(sess, username)
			log.Printf("server: session %s: %s authenticated from %s",
				sess.ID(), username, sess.RemoteAddr())
		},
	}
	sess = session.NewServer(conn, scfg)

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	err := sess.Run(s.ctx)

	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()

	if authed {
		s.streamingStopped()
		s.recordEnd(sess, err)
	}
	if err != nil {
		log.Printf("server: session %s ended: %v", sess.ID(), err)
	} else {
		log.Printf("server: session %s closed", sess.ID())
	}
}

// atCapacity counts streaming sessions against MaxClients. A client with a
// correct password is still refused while the server is full.
func (s *Supervisor) atCapacity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming >= s.cfg.MaxClients
}

// streamingStarted brings the capture pipeline up with the first viewer.
func (s *Supervisor) streamingStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming++
	if s.streaming == 1 {
		frames := s.cfg.Capture.Start(s.cfg.CaptureFPS, s.cfg.CaptureWidth, s.cfg.CaptureHeight)
		s.wg.Add(1)
		go s.pump(frames)
	}
}

// streamingStopped tears the capture pipeline down with the last viewer.
func (s *Supervisor) streamingStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming--
	if s.streaming == 0 {
		s.cfg.Capture.Stop()
	}
}

// pump encodes captured images once and offers the result to every live
// session. Slow sessions drop stale frames instead of blocking the pipe.
func (s *Supervisor) pump(frames <-chan image.Image) {
	defer s.wg.Done()
	for img := range frames {
		sd, err := s.enc.Encode(img)
		if err != nil {
			log.Printf("server: encode frame: %v", err)
			continue
		}
		s.mu.Lock()
		for _, sess := range s.sessions {
			sess.OfferFrame(sd)
		}
		s.mu.Unlock()
	}
}

func (s *Supervisor) recordStart(sess *session.ServerSession, username string) {
	if s.cfg.History == nil {
		return
	}
	name, os := sess.ClientIdentity()
	rec := &store.ConnectionRecord{
		ID:         sess.ID(),
		PeerAddr:   sess.RemoteAddr().String(),
		ClientName: name,
		ClientOS:   os,
		Username:   username,
		StartedAt:  time.Now().UTC(),
	}
	if err := s.cfg.History.RecordConnection(s.ctx, rec); err != nil {
		log.Printf("server: record connection %s: %v", sess.ID(), err)
	}
}

func (s *Supervisor) recordEnd(sess *session.ServerSession, runErr error) {
	if s.cfg.History == nil {
		return
	}
	outcome := "closed"
	if runErr != nil {
		outcome = fmt.Sprintf("failed: %v", runErr)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cfg.History.FinishConnection(ctx, sess.ID(), time.Now().UTC(), outcome); err != nil {
		log.Printf("server: finish connection %s: %v", sess.ID(), err)
	}
}

// ServeMetrics exposes the session counters at /metrics on addr. It blocks
// like http.ListenAndServe.
func ServeMetrics(addr string, st *stats.Stats) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(stats.NewCollector(st)); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
