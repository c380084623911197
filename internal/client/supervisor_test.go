package client

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avaropoint/rdcp/internal/protocol"
	"github.com/avaropoint/rdcp/internal/session"
	"github.com/avaropoint/rdcp/internal/store"
	"github.com/avaropoint/rdcp/internal/transport"
)

const (
	testUser = "viewer"
	testPass = "letmein"
)

// flakyListener drops the first `drops` connections at accept time and
// serves real sessions afterwards.
func flakyListener(t *testing.T, drops int32) (port int, accepted *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	accepted = &atomic.Int32{}
	go func() {
		for {
			raw, err := ln.Accept()
			if err != nil {
				return
			}
			n := accepted.Add(1)
			if n <= drops {
				raw.Close()
				continue
			}
			go func() {
				srv := session.NewServer(transport.Wrap(raw), session.ServerConfig{
					Config:      session.Config{HeartbeatInterval: 50 * time.Millisecond},
					Credentials: store.StaticCredentials{Username: testUser, Password: testPass},
					Width:       320,
					Height:      240,
				})
				srv.Run(context.Background()) //nolint:errcheck
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, accepted
}

func supervisorConfig(port int, password string) Config {
	return Config{
		Session: session.ClientConfig{
			Config:   session.Config{HeartbeatInterval: 50 * time.Millisecond},
			Host:     "127.0.0.1",
			Port:     port,
			Username: testUser,
			Password: password,
		},
		AutoReconnect:  true,
		InitialBackoff: 10 * time.Millisecond,
		MaxAttempts:    5,
	}
}

func TestReconnectAfterTransportDrop(t *testing.T) {
	port, accepted := flakyListener(t, 2)

	cfg := supervisorConfig(port, testPass)
	streaming := make(chan struct{})
	cfg.Session.OnStreaming = func() { close(streaming) }
	sup := New(cfg)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case <-streaming:
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor never reached streaming")
	}
	if got := accepted.Load(); got != 3 {
		t.Errorf("connection attempts = %d, want 3 (two drops, one success)", got)
	}

	sup.Disconnect()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v after cooperative disconnect, want nil", err)
	}
}

func TestNoReconnectOnAuthFailure(t *testing.T) {
	port, accepted := flakyListener(t, 0)

	sup := New(supervisorConfig(port, "wrong-password"))
	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case err := <-done:
		se, ok := err.(*session.Error)
		if !ok || se.Kind != session.KindAuthFailed {
			t.Fatalf("Run returned %v, want auth failure", err)
		}
		if se.AuthResult != protocol.AuthInvalidPassword {
			t.Errorf("auth result = %s, want invalid password", se.AuthResult)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor never finished")
	}
	if got := accepted.Load(); got != 1 {
		t.Errorf("connection attempts = %d, want 1 (no retry on auth failure)", got)
	}
}

func TestReconnectBudgetExhaustion(t *testing.T) {
	// Every connection is dropped, so each attempt fails retryably.
	port, accepted := flakyListener(t, 1<<30)

	cfg := supervisorConfig(port, testPass)
	cfg.MaxAttempts = 2
	sup := New(cfg)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case err := <-done:
		se, ok := err.(*session.Error)
		if !ok || !se.Retryable() {
			t.Fatalf("Run returned %v, want a retryable failure", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor never gave up")
	}
	// Initial attempt plus MaxAttempts retries.
	if got := accepted.Load(); got != 3 {
		t.Errorf("connection attempts = %d, want 3", got)
	}
}

func TestRenderLoopDrainsQueue(t *testing.T) {
	port, _ := flakyListener(t, 0)

	cfg := supervisorConfig(port, testPass)
	streaming := make(chan struct{})
	cfg.Session.OnStreaming = func() { close(streaming) }
	sup := New(cfg)
	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case <-streaming:
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor never reached streaming")
	}

	sess := sup.Current()
	if sess == nil {
		t.Fatal("no current session while streaming")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r := &LogRenderer{Every: 1}
	RenderLoop(ctx, sess, r, time.Millisecond)

	sup.Disconnect()
	<-done
}
