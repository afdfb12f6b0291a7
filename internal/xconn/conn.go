// Package xconn wraps the process-wide X11 connection and exposes the few
// protocol primitives the magnifier core needs. All cursor construction goes
// through the RENDER extension so image and hotspot are committed in a single
// CreateCursor request; XFIXES supplies the server-reported hotspot used to
// verify that no partially-applied cursor was ever observable.
package xconn

import (
	"encoding/binary"
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/render"
	"github.com/jezek/xgb/xfixes"
	"github.com/jezek/xgb/xproto"
)

// grabEventMask selects the events delivered during the pointer grab.
const grabEventMask = uint16(xproto.EventMaskButtonPress | xproto.EventMaskPointerMotion)

// Conn is the shared display connection. It is passed by reference to every
// component; the update loop is the only protocol caller, which preserves
// the request ordering the grab atomicity relies on.
type Conn struct {
	conn   *xgb.Conn
	setup  *xproto.SetupInfo
	screen *xproto.ScreenInfo
	argb32 render.Pictformat
}

// Connect dials the display (empty means $DISPLAY) and initializes the
// RENDER and XFIXES extensions.
func Connect(display string) (*Conn, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	if err := render.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("RENDER extension unavailable: %w", err)
	}
	if err := xfixes.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("XFIXES extension unavailable: %w", err)
	}
	// XFIXES requires a version handshake before any of its requests.
	if _, err := xfixes.QueryVersion(conn, 4, 0).Reply(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("XFIXES version handshake failed: %w", err)
	}

	argb32, err := findARGB32Format(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Conn{
		conn:   conn,
		setup:  setup,
		screen: screen,
		argb32: argb32,
	}, nil
}

// findARGB32Format locates the 32-bit direct-color picture format with an
// alpha channel (A8R8G8B8), required for ARGB cursors.
func findARGB32Format(conn *xgb.Conn) (render.Pictformat, error) {
	formats, err := render.QueryPictFormats(conn).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query picture formats: %w", err)
	}
	for _, f := range formats.Formats {
		if f.Type != render.PictTypeDirect || f.Depth != 32 {
			continue
		}
		d := f.Direct
		if d.AlphaMask == 0xff && d.AlphaShift == 24 &&
			d.RedShift == 16 && d.GreenShift == 8 && d.BlueShift == 0 {
			return f.Id, nil
		}
	}
	return 0, fmt.Errorf("server advertises no ARGB32 picture format")
}

// Root returns the root window of the default screen.
func (c *Conn) Root() xproto.Window { return c.screen.Root }

// ScreenSize returns the root dimensions in pixels.
func (c *Conn) ScreenSize() (uint16, uint16) {
	return c.screen.WidthInPixels, c.screen.HeightInPixels
}

// Close shuts the connection down. Outstanding WaitForEvent calls return.
func (c *Conn) Close() { c.conn.Close() }

// Sync performs a GetInputFocus round-trip. When it returns, the server has
// processed every request issued before it.
func (c *Conn) Sync() error {
	if _, err := xproto.GetInputFocus(c.conn).Reply(); err != nil {
		return fmt.Errorf("sync round-trip failed: %w", err)
	}
	return nil
}

// WaitForEvent blocks until the next event or error arrives. Both results
// nil means the connection is gone.
func (c *Conn) WaitForEvent() (xgb.Event, xgb.Error) {
	return c.conn.WaitForEvent()
}

// PointerPosition queries the current pointer location on the root window.
func (c *Conn) PointerPosition() (int16, int16, error) {
	reply, err := xproto.QueryPointer(c.conn, c.screen.Root).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query pointer: %w", err)
	}
	return reply.RootX, reply.RootY, nil
}

// BestCursorSize asks the server for the largest displayable cursor at or
// near the requested size.
func (c *Conn) BestCursorSize(width, height uint16) (uint16, uint16, error) {
	reply, err := xproto.QueryBestSize(c.conn, xproto.QueryShapeOfLargestCursor,
		xproto.Drawable(c.screen.Root), width, height).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query best cursor size: %w", err)
	}
	return reply.Width, reply.Height, nil
}

// GrabPointer establishes an active pointer grab on window with cur already
// installed. The cursor rides along in the grab request itself; there is no
// follow-up set-cursor call for an observer to catch halfway.
func (c *Conn) GrabPointer(window xproto.Window, cur xproto.Cursor) (byte, error) {
	reply, err := xproto.GrabPointer(c.conn, false, window, grabEventMask,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
		xproto.WindowNone, cur, xproto.TimeCurrentTime).Reply()
	if err != nil {
		return 0, fmt.Errorf("grab request failed: %w", err)
	}
	return reply.Status, nil
}

// ChangeGrabCursor replaces the active grab's cursor in one request.
func (c *Conn) ChangeGrabCursor(cur xproto.Cursor) error {
	return xproto.ChangeActivePointerGrabChecked(c.conn, cur,
		xproto.TimeCurrentTime, grabEventMask).Check()
}

// UngrabPointer releases the pointer grab, restoring the default cursor.
func (c *Conn) UngrabPointer() error {
	return xproto.UngrabPointerChecked(c.conn, xproto.TimeCurrentTime).Check()
}

// ActiveCursorHotspot reports the hotspot of the cursor the server is
// presently rendering, via XFIXES GetCursorImage.
func (c *Conn) ActiveCursorHotspot() (uint16, uint16, error) {
	reply, err := xfixes.GetCursorImage(c.conn).Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch active cursor image: %w", err)
	}
	return reply.Xhot, reply.Yhot, nil
}

// putPixel writes one CARD32 pixel honoring the server's image byte order.
func (c *Conn) putPixel(dst []byte, v uint32) {
	if c.setup.ImageByteOrder == xproto.ImageOrderMSBFirst {
		binary.BigEndian.PutUint32(dst, v)
	} else {
		binary.LittleEndian.PutUint32(dst, v)
	}
}

func (c *Conn) pixel(src []byte) uint32 {
	if c.setup.ImageByteOrder == xproto.ImageOrderMSBFirst {
		return binary.BigEndian.Uint32(src)
	}
	return binary.LittleEndian.Uint32(src)
}
