package camera

import (
	"context"
	"image"
	"sync/atomic"
)

// TestPattern is a deterministic synthetic Source for tests, examples, and
// hosts without capture hardware. Each Grab produces a gradient that shifts
// with the frame counter, so successive frames differ predictably.
type TestPattern struct {
	Width  int
	Height int

	frames atomic.Uint64
}

// NewTestPattern returns a pattern source at the given geometry. Non-positive
// dimensions take the 640x480 defaults.
func NewTestPattern(width, height int) *TestPattern {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &TestPattern{Width: width, Height: height}
}

// Grab renders the next frame. It never blocks and never fails.
func (p *TestPattern) Grab(_ context.Context) (*image.RGBA, error) {
	n := p.frames.Add(1) - 1
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	shift := uint8(n * 3)
	for y := 0; y < p.Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+p.Width*4]
		for x := 0; x < p.Width; x++ {
			row[x*4+0] = uint8(x) + shift
			row[x*4+1] = uint8(y) + shift
			row[x*4+2] = uint8(x+y) - shift
			row[x*4+3] = 0xff
		}
	}
	return img, nil
}

// Frames reports how many frames have been grabbed.
func (p *TestPattern) Frames() uint64 { return p.frames.Load() }

// Close is a no-op.
func (p *TestPattern) Close() error { return nil }

var _ Source = (*TestPattern)(nil)
