package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
	"time"
)

func startEchoListener(t *testing.T) (net.Listener, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c) //nolint:errcheck
			}(c)
		}
	}()
	return ln, ln.Addr().(*net.TCPAddr).Port
}

func TestDialAndEcho(t *testing.T) {
	_, port := startEchoListener(t)

	conn, err := Dial(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Abort()

	msg := []byte("hello over tcp")
	if err := conn.Write(msg); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	var got []byte
	for len(got) < len(msg) {
		chunk, err := conn.ReadChunk()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, msg) {
		t.Fatalf("echo mismatch: got %q", got)
	}
}

func TestDialRefusedClassified(t *testing.T) {
	// Bind and immediately close to get a port nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Dial(context.Background(), "127.0.0.1", port)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if kind := Classify(err); kind != KindConnectionRefused {
		t.Fatalf("classification: got %v, want connection refused", kind)
	}
}

func TestGracefulCloseDeliversFIN(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	peerEOF := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			peerEOF <- err
			return
		}
		defer c.Close()
		c.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
		_, err = c.Read(make([]byte, 1))
		peerEOF <- err
	}()

	conn, err := Dial(context.Background(), "127.0.0.1", ln.Addr().(*net.TCPAddr).Port)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-peerEOF:
		if err != io.EOF {
			t.Fatalf("peer read: got %v, want EOF", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("peer never saw the FIN")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	_, port := startEchoListener(t)
	conn, err := Dial(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	conn.Abort() // no panic after close
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{syscall.ECONNREFUSED, KindConnectionRefused},
		{syscall.ECONNRESET, KindHostClosed},
		{io.EOF, KindHostClosed},
		{net.ErrClosed, KindHostClosed},
		{syscall.ENETUNREACH, KindUnreachable},
		{&net.DNSError{Err: "no such host", Name: "nope.invalid"}, KindHostNotFound},
		{errors.New("weird"), KindOther},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v): got %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestReadChunkTimeoutClassified(t *testing.T) {
	_, port := startEchoListener(t)
	conn, err := Dial(context.Background(), "127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Abort()

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond)) //nolint:errcheck
	_, err = conn.ReadChunk()
	if err == nil {
		t.Fatal("expected timeout")
	}
	if kind := Classify(err); kind != KindTimeout {
		t.Fatalf("classification: got %v, want timeout", kind)
	}
}
