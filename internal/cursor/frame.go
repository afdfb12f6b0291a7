package cursor

import "fmt"

// DefaultSize is the side length of the magnified cursor image. It is odd so
// the hotspot lands on an exact pixel center: (127,127) for a 255x255 buffer.
const DefaultSize = 255

// Frame is one magnified image destined to become a server-side cursor.
// It is immutable once produced; ownership moves with the value.
type Frame struct {
	Pixels     []byte // row-major RGBA, non-premultiplied
	Width      uint16
	Height     uint16
	HotspotX   uint16
	HotspotY   uint16
	Generation uint64
}

// CenterHotspot returns the hotspot for a frame whose pointer position is the
// exact middle of the buffer.
func CenterHotspot(width, height uint16) (uint16, uint16) {
	return width / 2, height / 2
}

// Validate checks the frame's internal consistency. The hotspot must lie
// strictly inside [0,width) x [0,height).
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	if f.Width == 0 || f.Height == 0 {
		return fmt.Errorf("%w: zero dimension %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	if len(f.Pixels) != int(f.Width)*int(f.Height)*4 {
		return fmt.Errorf("%w: pixel buffer is %d bytes, want %d for %dx%d RGBA",
			ErrInvalidFrame, len(f.Pixels), int(f.Width)*int(f.Height)*4, f.Width, f.Height)
	}
	if f.HotspotX >= f.Width || f.HotspotY >= f.Height {
		return fmt.Errorf("%w: hotspot (%d,%d) outside %dx%d buffer",
			ErrInvalidFrame, f.HotspotX, f.HotspotY, f.Width, f.Height)
	}
	return nil
}

// premultiplied converts the RGBA buffer into the ARGB premultiplied pixels
// the RENDER extension expects, one uint32 per pixel.
func (f *Frame) premultiplied() []uint32 {
	out := make([]uint32, int(f.Width)*int(f.Height))
	for i := range out {
		r := uint32(f.Pixels[i*4])
		g := uint32(f.Pixels[i*4+1])
		b := uint32(f.Pixels[i*4+2])
		a := uint32(f.Pixels[i*4+3])
		out[i] = a<<24 | (r*a/255)<<16 | (g*a/255)<<8 | (b * a / 255)
	}
	return out
}
