package screen

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/avaropoint/rdcp/internal/protocol"
	"github.com/avaropoint/rdcp/internal/stats"
)

// ErrDecode reports an image that failed validation or JPEG decoding.
// Decode errors are local: the frame is dropped and streaming continues.
var ErrDecode = errors.New("screen decode failed")

// Decoder turns ScreenData payloads into renderable frames, counting
// failures without failing the session.
type Decoder struct {
	Stats *stats.Stats
}

// Decode validates and decodes one ScreenData payload. A nil error means
// the returned frame carries a non-nil image.
func (d *Decoder) Decode(sd *protocol.ScreenData) (*Frame, error) {
	if sd.Width == 0 || sd.Height == 0 {
		d.fail()
		return nil, fmt.Errorf("%w: zero dimension %dx%d", ErrDecode, sd.Width, sd.Height)
	}
	if len(sd.Data) < 2 || sd.Data[0] != 0xFF || sd.Data[1] != 0xD8 {
		if d.Stats != nil {
			d.Stats.DataCorruptions.Add(1)
		}
		return nil, fmt.Errorf("%w: missing JPEG signature", ErrDecode)
	}

	img, err := jpeg.Decode(bytes.NewReader(sd.Data))
	if err != nil {
		d.fail()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return &Frame{
		X:      sd.X,
		Y:      sd.Y,
		Width:  sd.Width,
		Height: sd.Height,
		Image:  img,
	}, nil
}

func (d *Decoder) fail() {
	if d.Stats != nil {
		d.Stats.ImageLoadFailures.Add(1)
	}
}
