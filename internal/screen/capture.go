package screen

import (
	"image"
	"sync"
	"time"
)

// CaptureBackend produces raw images on its own goroutine. Start may be
// called again after Stop. Implementations deliver frames best-effort: a
// slow consumer sees the freshest frame, never a backlog.
type CaptureBackend interface {
	// Start begins capturing at the given rate and resolution and returns
	// the frame channel. The channel is closed by Stop.
	Start(fps, width, height int) <-chan image.Image
	// Stop halts capture and closes the frame channel.
	Stop()
}

// TestPattern is a portable capture backend that renders a moving
// synthetic pattern. It stands in for a real OS capture hook so the server
// runs headless on any platform.
type TestPattern struct {
	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Start implements CaptureBackend.
func (p *TestPattern) Start(fps, width, height int) <-chan image.Image {
	if fps <= 0 {
		fps = 30
	}
	if width <= 0 || height <= 0 {
		width, height = 800, 600
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	out := make(chan image.Image, 1)

	go func(stop chan struct{}, done chan struct{}) {
		defer close(done)
		defer close(out)
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		tick := 0
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				tick++
				img := renderTestPattern(width, height, tick)
				// Latest wins: drop the stale frame if nobody took it.
				select {
				case out <- img:
				default:
					select {
					case <-out:
					default:
					}
					select {
					case out <- img:
					default:
					}
				}
			}
		}
	}(p.stop, p.done)

	return out
}

// Stop implements CaptureBackend.
func (p *TestPattern) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// renderTestPattern draws a gradient with grid lines and a moving dot.
// Direct pixel buffer writes; img.Set per-pixel is several times slower.
func renderTestPattern(width, height, tick int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	pix := img.Pix
	stride := img.Stride

	for y := 0; y < height; y++ {
		g := uint8(50 + (y * 100 / height))
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i+0] = uint8(50 + (x * 100 / width))
			pix[i+1] = g
			pix[i+2] = 100
			pix[i+3] = 255
		}
	}

	for x := 0; x < width; x += 50 {
		for y := 0; y < height; y++ {
			i := y*stride + x*4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 255, 255, 100
		}
	}
	for y := 0; y < height; y += 50 {
		off := y * stride
		for x := 0; x < width; x++ {
			i := off + x*4
			pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 255, 255, 100
		}
	}

	// Moving dot so consecutive frames differ.
	cx := (tick * 7) % width
	for dy := -5; dy <= 5; dy++ {
		for dx := -5; dx <= 5; dx++ {
			if dx*dx+dy*dy <= 25 {
				px, py := cx+dx, height/2+dy
				if px >= 0 && px < width && py >= 0 && py < height {
					i := py*stride + px*4
					pix[i], pix[i+1], pix[i+2], pix[i+3] = 255, 100, 100, 255
				}
			}
		}
	}

	return img
}
