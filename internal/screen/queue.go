// Package screen handles the image path of a session: JPEG encoding on the
// server, decoding and validation on the client, and the bounded queue that
// hands decoded frames to the renderer.
package screen

import (
	"image"
	"sync"
)

// DefaultQueueSize is the default FrameQueue capacity.
const DefaultQueueSize = 3

// Frame is a decoded image region ready for rendering. Origin (0,0) with a
// full-size region means a full frame.
type Frame struct {
	X, Y          uint16
	Width, Height uint16
	Image         image.Image
}

// Queue is a bounded single-producer single-consumer FIFO of decoded
// frames. When full, a push evicts the oldest frame so the newest always
// wins. The dispatcher pushes; the renderer pops on its own cadence.
type Queue struct {
	mu     sync.Mutex
	frames []*Frame
	cap    int
}

// NewQueue creates a queue with the given capacity; size <= 0 uses
// DefaultQueueSize.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{cap: size}
}

// TryPush enqueues a frame, evicting the head when full. It reports whether
// an eviction happened.
func (q *Queue) TryPush(f *Frame) (evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == q.cap {
		copy(q.frames, q.frames[1:])
		q.frames[len(q.frames)-1] = f
		return true
	}
	q.frames = append(q.frames, f)
	return false
}

// TryPop dequeues the oldest frame, or returns false when empty. Ownership
// of the frame transfers to the caller.
func (q *Queue) TryPop() (*Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return f, true
}

// Len returns the number of queued frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
