// Package input carries keyboard and mouse events from the client to the
// server: coordinate remapping into server screen space, a short buffered
// channel with periodic flushing, and server-side validation before
// injection.
package input

import (
	"sync"
	"time"
)

const (
	// DefaultBufferSize is the event buffer capacity; a full buffer
	// flushes immediately.
	DefaultBufferSize = 100
	// DefaultFlushInterval is the periodic flush cadence.
	DefaultFlushInterval = 10 * time.Millisecond
)

// SendFunc delivers one encoded input payload to the session's writer.
type SendFunc func(msg any) error

// Channel buffers client input events and flushes them every
// DefaultFlushInterval or when the buffer fills. Consecutive mouse moves
// are coalesced so only the newest position survives; button and key
// events are never dropped.
type Channel struct {
	send  SendFunc
	every time.Duration

	mu  sync.Mutex
	buf []event

	stop chan struct{}
	done chan struct{}
}

type event struct {
	msg    any
	isMove bool
}

// NewChannel creates a channel that flushes through send. Call Start to
// begin the flush loop.
func NewChannel(send SendFunc) *Channel {
	return &Channel{
		send:  send,
		every: DefaultFlushInterval,
		buf:   make([]event, 0, DefaultBufferSize),
	}
}

// Start launches the periodic flush loop.
func (c *Channel) Start() {
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.every)
		defer ticker.Stop()
		for {
			select {
			case <-c.stop:
				c.Flush()
				return
			case <-ticker.C:
				c.Flush()
			}
		}
	}()
}

// Stop halts the flush loop after a final flush.
func (c *Channel) Stop() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
}

// Offer enqueues one event. isMove marks coalescable mouse moves: a move
// directly following another move replaces it.
func (c *Channel) Offer(msg any, isMove bool) {
	c.mu.Lock()
	if isMove && len(c.buf) > 0 && c.buf[len(c.buf)-1].isMove {
		c.buf[len(c.buf)-1] = event{msg: msg, isMove: true}
		c.mu.Unlock()
		return
	}
	c.buf = append(c.buf, event{msg: msg, isMove: isMove})
	full := len(c.buf) >= DefaultBufferSize
	c.mu.Unlock()
	if full {
		c.Flush()
	}
}

// Flush sends all buffered events in order. Errors stop the flush; the
// session notices the broken transport on its own.
func (c *Channel) Flush() {
	c.mu.Lock()
	if len(c.buf) == 0 {
		c.mu.Unlock()
		return
	}
	pending := c.buf
	c.buf = make([]event, 0, DefaultBufferSize)
	c.mu.Unlock()

	for _, ev := range pending {
		if err := c.send(ev.msg); err != nil {
			return
		}
	}
}

// Len returns the number of buffered events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
