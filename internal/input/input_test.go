package input

import (
	"sync"
	"testing"
	"time"

	"github.com/avaropoint/rdcp/internal/protocol"
)

type captureSend struct {
	mu   sync.Mutex
	msgs []any
}

func (c *captureSend) send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSend) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func TestMouseMoveCoalescing(t *testing.T) {
	var sink captureSend
	ch := NewChannel(sink.send)

	// Three consecutive moves collapse to the newest.
	for i := int16(1); i <= 3; i++ {
		ch.Offer(&protocol.MouseEvent{Type: protocol.MouseMove, X: i, Y: i}, true)
	}
	if ch.Len() != 1 {
		t.Fatalf("buffered: got %d, want 1", ch.Len())
	}
	ch.Flush()

	msgs := sink.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("sent: got %d, want 1", len(msgs))
	}
	if ev := msgs[0].(*protocol.MouseEvent); ev.X != 3 {
		t.Fatalf("coalesced event: got x=%d, want 3", ev.X)
	}
}

func TestButtonEventsNeverDropped(t *testing.T) {
	var sink captureSend
	ch := NewChannel(sink.send)

	ch.Offer(&protocol.MouseEvent{Type: protocol.MouseMove, X: 1}, true)
	ch.Offer(&protocol.MouseEvent{Type: protocol.MouseLeftDown, X: 1}, false)
	ch.Offer(&protocol.MouseEvent{Type: protocol.MouseMove, X: 2}, true)
	ch.Offer(&protocol.KeyboardEvent{Type: protocol.KeyPress, KeyCode: 65}, false)
	ch.Offer(&protocol.MouseEvent{Type: protocol.MouseLeftUp, X: 2}, false)

	ch.Flush()
	msgs := sink.snapshot()
	if len(msgs) != 5 {
		t.Fatalf("sent: got %d, want 5 (nothing dropped)", len(msgs))
	}
	// Order preserved.
	if msgs[1].(*protocol.MouseEvent).Type != protocol.MouseLeftDown {
		t.Fatal("button press out of order")
	}
	if _, ok := msgs[3].(*protocol.KeyboardEvent); !ok {
		t.Fatal("key event out of order")
	}
}

func TestFullBufferFlushesImmediately(t *testing.T) {
	var sink captureSend
	ch := NewChannel(sink.send)

	for i := 0; i < DefaultBufferSize; i++ {
		ch.Offer(&protocol.KeyboardEvent{KeyCode: uint32(i)}, false)
	}
	if got := len(sink.snapshot()); got != DefaultBufferSize {
		t.Fatalf("flush on fill: got %d sent, want %d", got, DefaultBufferSize)
	}
	if ch.Len() != 0 {
		t.Fatalf("buffer not drained: %d", ch.Len())
	}
}

func TestPeriodicFlush(t *testing.T) {
	var sink captureSend
	ch := NewChannel(sink.send)
	ch.Start()
	defer ch.Stop()

	ch.Offer(&protocol.MouseEvent{Type: protocol.MouseMove, X: 9, Y: 9}, true)

	deadline := time.After(2 * time.Second)
	for {
		if len(sink.snapshot()) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("event not flushed by ticker")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTransformToServer(t *testing.T) {
	tr := Transform{ViewWidth: 960, ViewHeight: 540, ServerWidth: 1920, ServerHeight: 1080}

	x, y := tr.ToServer(480, 270)
	if x != 960 || y != 540 {
		t.Fatalf("midpoint: got (%d,%d), want (960,540)", x, y)
	}

	x, y = tr.ToServer(-10, 10000)
	if x != 0 || y != 1079 {
		t.Fatalf("clamping: got (%d,%d), want (0,1079)", x, y)
	}
}

func TestBoundsValidMouse(t *testing.T) {
	b := Bounds{Width: 1920, Height: 1080}
	cases := []struct {
		x, y int16
		want bool
	}{
		{0, 0, true},
		{1919, 1079, true},
		{1920, 0, false},
		{-1, 5, false},
		{5, 1080, false},
	}
	for _, tc := range cases {
		ev := &protocol.MouseEvent{X: tc.x, Y: tc.y}
		if got := b.ValidMouse(ev); got != tc.want {
			t.Errorf("(%d,%d): got %v, want %v", tc.x, tc.y, got, tc.want)
		}
	}
}
