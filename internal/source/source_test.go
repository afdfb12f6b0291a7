package source

import (
	"testing"
)

// fakeScreen serves a synthetic screen where every pixel encodes its own
// coordinates: R = x%256, G = y%256.
type fakeScreen struct {
	width, height uint16
	captures      int
}

func (f *fakeScreen) ScreenSize() (uint16, uint16) {
	return f.width, f.height
}

func (f *fakeScreen) CaptureScreen(x, y int16, width, height uint16) ([]byte, error) {
	f.captures++
	out := make([]byte, int(width)*int(height)*4)
	for row := 0; row < int(height); row++ {
		for col := 0; col < int(width); col++ {
			i := (row*int(width) + col) * 4
			out[i] = byte((int(x) + col) % 256)
			out[i+1] = byte((int(y) + row) % 256)
			out[i+2] = 0
			out[i+3] = 0xff
		}
	}
	return out, nil
}

func pixelAt(f []byte, size, x, y int) (r, g, b, a byte) {
	i := (y*size + x) * 4
	return f[i], f[i+1], f[i+2], f[i+3]
}

func TestNewForcesOddSize(t *testing.T) {
	s, err := New(&fakeScreen{width: 800, height: 600}, 254, 4)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s.Size() != 255 {
		t.Errorf("Size() = %d, want 255", s.Size())
	}
}

func TestNewRejectsBadParameters(t *testing.T) {
	if _, err := New(&fakeScreen{}, 0, 4); err == nil {
		t.Error("New(size=0) = nil, want error")
	}
	if _, err := New(&fakeScreen{}, 255, 0); err == nil {
		t.Error("New(scale=0) = nil, want error")
	}
	if _, err := New(&fakeScreen{}, 9, 32); err == nil {
		t.Error("New(scale>size) = nil, want error")
	}
}

func TestFrameShapeAndHotspot(t *testing.T) {
	screen := &fakeScreen{width: 800, height: 600}
	s, err := New(screen, 255, 4)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	frame, err := s.Frame(400, 300)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}

	if frame.Width != 255 || frame.Height != 255 {
		t.Errorf("frame is %dx%d, want 255x255", frame.Width, frame.Height)
	}
	if frame.HotspotX != 127 || frame.HotspotY != 127 {
		t.Errorf("hotspot = (%d,%d), want (127,127)", frame.HotspotX, frame.HotspotY)
	}
	if err := frame.Validate(); err != nil {
		t.Errorf("produced frame fails validation: %v", err)
	}

	// The lens center magnifies the pixel under the pointer.
	r, g, _, a := pixelAt(frame.Pixels, 255, 127, 127)
	if r != byte(400%256) || g != byte(300%256) {
		t.Errorf("center pixel = (%d,%d), want (%d,%d)", r, g, 400%256, 300%256)
	}
	if a != 0xff {
		t.Errorf("center alpha = %d, want opaque", a)
	}
}

func TestFrameGenerationsIncrease(t *testing.T) {
	s, err := New(&fakeScreen{width: 800, height: 600}, 255, 4)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	f1, err := s.Frame(100, 100)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	f2, err := s.Frame(101, 100)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}

	if f2.Generation <= f1.Generation {
		t.Errorf("generations %d then %d, want strictly increasing", f1.Generation, f2.Generation)
	}
}

func TestFrameMasksCorners(t *testing.T) {
	s, err := New(&fakeScreen{width: 800, height: 600}, 255, 4)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	frame, err := s.Frame(400, 300)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}

	for _, corner := range [][2]int{{0, 0}, {254, 0}, {0, 254}, {254, 254}} {
		if _, _, _, a := pixelAt(frame.Pixels, 255, corner[0], corner[1]); a != 0 {
			t.Errorf("corner (%d,%d) alpha = %d, want transparent outside the lens", corner[0], corner[1], a)
		}
	}
}

func TestFrameAtScreenEdge(t *testing.T) {
	s, err := New(&fakeScreen{width: 800, height: 600}, 255, 4)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Pointer in the top-left corner: most of the sampled region is off
	// screen and must come back transparent, not wrapped or crashed.
	frame, err := s.Frame(0, 0)
	if err != nil {
		t.Fatalf("Frame() error: %v", err)
	}

	if _, _, _, a := pixelAt(frame.Pixels, 255, 60, 127); a != 0 {
		t.Errorf("off-screen region alpha = %d, want transparent", a)
	}
	r, g, _, _ := pixelAt(frame.Pixels, 255, 127, 127)
	if r != 0 || g != 0 {
		t.Errorf("center pixel = (%d,%d), want (0,0) for the corner pixel", r, g)
	}
}

func TestRefreshRetakesCapture(t *testing.T) {
	screen := &fakeScreen{width: 800, height: 600}
	s, err := New(screen, 255, 4)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := s.Frame(10, 10); err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	if screen.captures != 1 {
		t.Fatalf("captures = %d, want 1 lazy capture", screen.captures)
	}

	// Frames render from the cache, not the live screen.
	if _, err := s.Frame(20, 20); err != nil {
		t.Fatalf("Frame() error: %v", err)
	}
	if screen.captures != 1 {
		t.Fatalf("captures = %d after second frame, want 1", screen.captures)
	}

	if err := s.Refresh(); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if screen.captures != 2 {
		t.Fatalf("captures = %d after refresh, want 2", screen.captures)
	}
}
