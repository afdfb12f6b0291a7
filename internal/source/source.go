// Package source produces magnified cursor frames for the update loop. It
// renders from a cached full-screen capture rather than re-reading the
// framebuffer per sample: with a compositor, a live read would see whatever
// the magnifier itself last painted and feed it back into the lens.
package source

import (
	"fmt"

	"github.com/hugo/loupe/internal/cursor"
)

// Conn is the slice of the display connection the source needs.
type Conn interface {
	ScreenSize() (uint16, uint16)
	// CaptureScreen returns a row-major RGBA copy of the given root rectangle.
	CaptureScreen(x, y int16, width, height uint16) ([]byte, error)
}

// Source renders square magnified frames centered on a screen coordinate.
// Not safe for concurrent use; the update loop is its only caller.
type Source struct {
	conn       Conn
	size       uint16 // side length of the produced frame, always odd
	scale      uint16
	cache      []byte // RGBA screenshot of the whole root window
	cacheW     uint16
	cacheH     uint16
	generation uint64
}

// New returns a source producing size x size frames at the given integer
// magnification. size is forced odd so the hotspot is an exact pixel center.
func New(conn Conn, size, scale uint16) (*Source, error) {
	if size == 0 || scale == 0 {
		return nil, fmt.Errorf("source: size and scale must be positive, got %dx at %d", scale, size)
	}
	if size%2 == 0 {
		size++
	}
	if uint32(scale) > uint32(size) {
		return nil, fmt.Errorf("source: scale %d exceeds frame size %d", scale, size)
	}
	return &Source{conn: conn, size: size, scale: scale}, nil
}

// Size returns the (odd) side length of produced frames.
func (s *Source) Size() uint16 { return s.size }

// Refresh retakes the full-screen capture the frames are rendered from.
func (s *Source) Refresh() error {
	w, h := s.conn.ScreenSize()
	data, err := s.conn.CaptureScreen(0, 0, w, h)
	if err != nil {
		return fmt.Errorf("source: refreshing screen capture: %w", err)
	}
	s.cache = data
	s.cacheW, s.cacheH = w, h
	return nil
}

// Frame renders the magnified region around (x, y) into a new cursor frame.
// The hotspot is the buffer center, so the lens stays anchored on the exact
// pointer position.
func (s *Source) Frame(x, y int16) (*cursor.Frame, error) {
	if s.cache == nil {
		if err := s.Refresh(); err != nil {
			return nil, err
		}
	}

	sampleSize := ensureOdd(int(s.size) / int(s.scale))
	region := s.extractRegion(int(x), int(y), sampleSize)
	pixels := magnify(region, sampleSize, int(s.size))
	applyLensMask(pixels, int(s.size))

	s.generation++
	hotX, hotY := cursor.CenterHotspot(s.size, s.size)
	return &cursor.Frame{
		Pixels:     pixels,
		Width:      s.size,
		Height:     s.size,
		HotspotX:   hotX,
		HotspotY:   hotY,
		Generation: s.generation,
	}, nil
}

// extractRegion copies a size x size RGBA square centered on (cx, cy) out of
// the cache. Pixels beyond the screen edge come back transparent.
func (s *Source) extractRegion(cx, cy, size int) []byte {
	out := make([]byte, size*size*4)
	w, h := int(s.cacheW), int(s.cacheH)
	half := size / 2

	for row := 0; row < size; row++ {
		sy := cy - half + row
		if sy < 0 || sy >= h {
			continue
		}
		for col := 0; col < size; col++ {
			sx := cx - half + col
			if sx < 0 || sx >= w {
				continue
			}
			src := (sy*w + sx) * 4
			dst := (row*size + col) * 4
			copy(out[dst:dst+4], s.cache[src:src+4])
		}
	}
	return out
}

// magnify scales the sample up to dstSize x dstSize with nearest-neighbour
// sampling. Plain by intent; magnification quality is out of scope.
func magnify(src []byte, srcSize, dstSize int) []byte {
	out := make([]byte, dstSize*dstSize*4)
	for y := 0; y < dstSize; y++ {
		sy := y * srcSize / dstSize
		for x := 0; x < dstSize; x++ {
			sx := x * srcSize / dstSize
			s := (sy*srcSize + sx) * 4
			d := (y*dstSize + x) * 4
			copy(out[d:d+4], src[s:s+4])
		}
	}
	return out
}

// applyLensMask clips the square buffer to a circular lens with a dark ring
// border, zeroing alpha outside the circle.
func applyLensMask(pixels []byte, size int) {
	center := size / 2
	radius := center
	ring := radius - 2

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := x-center, y-center
			d2 := dx*dx + dy*dy
			i := (y*size + x) * 4
			switch {
			case d2 > radius*radius:
				pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = 0, 0, 0, 0
			case d2 > ring*ring:
				pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = 0x20, 0x20, 0x20, 0xff
			}
		}
	}
}

func ensureOdd(n int) int {
	if n < 1 {
		return 1
	}
	if n%2 == 0 {
		return n + 1
	}
	return n
}
