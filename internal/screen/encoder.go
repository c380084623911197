package screen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/avaropoint/rdcp/internal/protocol"
)

// DefaultQuality is the default JPEG compression level for screen frames.
const DefaultQuality = 85

// ErrEncode reports a frame that could not be turned into a valid payload.
// Encode errors are local: the frame is dropped and streaming continues.
var ErrEncode = errors.New("screen encode failed")

// Encoder compresses captured images into ScreenData payloads.
type Encoder struct {
	// Quality is the JPEG quality, 1-100.
	Quality int
	// MaxWidth and MaxHeight clip oversized captures to the configured
	// resolution. Zero means no clipping.
	MaxWidth, MaxHeight int
}

// Encode compresses img as JPEG and wraps it in a ScreenData payload for
// the full frame at origin (0,0).
func (e *Encoder) Encode(img image.Image) (*protocol.ScreenData, error) {
	img = e.clip(img)
	bounds := img.Bounds()

	quality := e.Quality
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	data := buf.Bytes()
	if len(data) > protocol.MaxImageSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds cap", ErrEncode, len(data))
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, fmt.Errorf("%w: output is not JPEG", ErrEncode)
	}

	return &protocol.ScreenData{
		X:      0,
		Y:      0,
		Width:  uint16(bounds.Dx()),
		Height: uint16(bounds.Dy()),
		Data:   data,
	}, nil
}

// clip bounds the image to the configured capture resolution.
func (e *Encoder) clip(img image.Image) image.Image {
	if e.MaxWidth <= 0 || e.MaxHeight <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() <= e.MaxWidth && b.Dy() <= e.MaxHeight {
		return img
	}
	clipped := image.Rect(b.Min.X, b.Min.Y, b.Min.X+e.MaxWidth, b.Min.Y+e.MaxHeight)
	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(b.Intersect(clipped))
	}
	return img
}
