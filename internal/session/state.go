// Package session drives one endpoint of one RDCP session through its
// lifecycle: handshake, challenge-response authentication, streaming, and
// teardown. The client and server flavors share the state set and the
// dispatch rules; each owns exactly one transport connection and one I/O
// goroutine.
package session

import "sync"

// State is the session lifecycle position. Exactly one state per session;
// terminal states are Closed and Failed, and re-entry requires a new
// Session.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateHandshakeSent
	StateChallenged
	StateAuthenticating
	StateStreaming
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateHandshakeSent:
		return "HandshakeSent"
	case StateChallenged:
		return "Challenged"
	case StateAuthenticating:
		return "Authenticating"
	case StateStreaming:
		return "Streaming"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the session is finished.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// stateVar holds the session state. Mutations happen only on the I/O
// goroutine; other goroutines read a snapshot under a short read lock.
type stateVar struct {
	mu sync.RWMutex
	s  State
}

func (v *stateVar) set(s State) {
	v.mu.Lock()
	v.s = s
	v.mu.Unlock()
}

func (v *stateVar) get() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.s
}
