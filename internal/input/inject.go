package input

import (
	"log"

	"github.com/avaropoint/rdcp/internal/protocol"
)

// Injector applies received input events to the local OS. It must be
// callable from the server session's I/O goroutine.
type Injector interface {
	InjectMouse(ev *protocol.MouseEvent) error
	InjectKeyboard(ev *protocol.KeyboardEvent) error
}

// Bounds is the capture area received events must fall inside.
type Bounds struct {
	Width, Height int
}

// ValidMouse reports whether a mouse event's coordinates lie within the
// capture bounds. Events outside are dropped before injection.
func (b Bounds) ValidMouse(ev *protocol.MouseEvent) bool {
	if b.Width <= 0 || b.Height <= 0 {
		return true
	}
	return ev.X >= 0 && int(ev.X) < b.Width && ev.Y >= 0 && int(ev.Y) < b.Height
}

// LogInjector logs events instead of injecting them. It stands in for a
// platform hook on systems without one configured.
type LogInjector struct{}

func (LogInjector) InjectMouse(ev *protocol.MouseEvent) error {
	log.Printf("input: mouse type=%d x=%d y=%d wheel=%d", ev.Type, ev.X, ev.Y, ev.WheelDelta)
	return nil
}

func (LogInjector) InjectKeyboard(ev *protocol.KeyboardEvent) error {
	log.Printf("input: key type=%d code=%d mods=%d", ev.Type, ev.KeyCode, ev.Modifiers)
	return nil
}
