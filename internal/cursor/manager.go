// Package cursor owns the lifecycle of server-side cursor resources. A Handle
// returned by Manager.Create is fully formed - image and hotspot committed to
// the server in a single bundled request - before anyone else can see it, so
// no observer ever catches a cursor with a default (0,0) hotspot.
package cursor

import (
	"errors"
	"fmt"

	"github.com/jezek/xgb/xproto"
)

var (
	ErrInvalidFrame        = errors.New("cursor: invalid frame")
	ErrAllocationExhausted = errors.New("cursor: server refused cursor allocation")
	ErrStillInUse          = errors.New("cursor: handle still installed in a grab")
	ErrHotspotMismatch     = errors.New("cursor: active cursor hotspot does not match")
)

// Conn is the slice of the display connection the manager needs. The real
// implementation is xconn.Conn; tests substitute a fake.
type Conn interface {
	// CreateCursor commits premultiplied ARGB pixels and the hotspot to the
	// server in one cursor-creation request.
	CreateCursor(pixels []uint32, width, height, hotspotX, hotspotY uint16) (xproto.Cursor, error)
	FreeCursor(cursor xproto.Cursor) error
	// BestCursorSize reports the largest cursor the server can display.
	BestCursorSize(width, height uint16) (uint16, uint16, error)
	// ActiveCursorHotspot reports the hotspot of the cursor the server is
	// presently rendering.
	ActiveCursorHotspot() (uint16, uint16, error)
}

// Handle is an opaque server-side cursor resource bound to exactly one frame
// generation. Destruction authority stays with the Manager; a grab session
// only marks the handle bound while it is installed.
type Handle struct {
	cursor     xproto.Cursor
	generation uint64
	hotspotX   uint16
	hotspotY   uint16
	bound      bool
	freed      bool
}

// Cursor returns the server resource id.
func (h *Handle) Cursor() xproto.Cursor { return h.cursor }

// Generation returns the frame generation this handle was built from.
func (h *Handle) Generation() uint64 { return h.generation }

// Hotspot returns the hotspot committed with the cursor image.
func (h *Handle) Hotspot() (uint16, uint16) { return h.hotspotX, h.hotspotY }

// Bound reports whether a grab session currently presents this handle.
func (h *Handle) Bound() bool { return h.bound }

// Bind marks the handle as installed in a grab. Called by the grab controller
// only; the manager refuses to destroy a bound handle.
func (h *Handle) Bind() { h.bound = true }

// Unbind marks the handle as no longer presented.
func (h *Handle) Unbind() { h.bound = false }

// Manager builds and tears down cursor resources. Not safe for concurrent
// use; the update loop is its only caller.
type Manager struct {
	conn      Conn
	maxWidth  uint16
	maxHeight uint16
}

func NewManager(conn Conn) *Manager {
	return &Manager{conn: conn}
}

// Create materializes frame as a server-side cursor. The image and hotspot
// travel in a single request, so there is no window in which the cursor
// exists with a default hotspot.
func (m *Manager) Create(frame *Frame) (*Handle, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if err := m.checkLimits(frame.Width, frame.Height); err != nil {
		return nil, err
	}

	cur, err := m.conn.CreateCursor(frame.premultiplied(), frame.Width, frame.Height, frame.HotspotX, frame.HotspotY)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocationExhausted, err)
	}

	return &Handle{
		cursor:     cur,
		generation: frame.Generation,
		hotspotX:   frame.HotspotX,
		hotspotY:   frame.HotspotY,
	}, nil
}

// Destroy releases the server resource behind handle. Destroying a handle a
// grab session still presents is a programming error and is refused. Destroy
// on a nil or already-destroyed handle is a no-op.
func (m *Manager) Destroy(handle *Handle) error {
	if handle == nil || handle.freed {
		return nil
	}
	if handle.bound {
		return fmt.Errorf("%w: generation %d", ErrStillInUse, handle.generation)
	}
	handle.freed = true
	if err := m.conn.FreeCursor(handle.cursor); err != nil {
		return fmt.Errorf("freeing cursor for generation %d: %w", handle.generation, err)
	}
	return nil
}

// VerifyInstalled asks the server for the hotspot of the cursor it is
// actually rendering and compares it against handle's. This is the
// instrumentation for the flicker defect: a (0,0) report here means a grab
// was observable with a partially-applied cursor.
func (m *Manager) VerifyInstalled(handle *Handle) error {
	x, y, err := m.conn.ActiveCursorHotspot()
	if err != nil {
		return fmt.Errorf("querying active cursor: %w", err)
	}
	if x != handle.hotspotX || y != handle.hotspotY {
		return fmt.Errorf("%w: server reports (%d,%d), want (%d,%d)",
			ErrHotspotMismatch, x, y, handle.hotspotX, handle.hotspotY)
	}
	return nil
}

func (m *Manager) checkLimits(width, height uint16) error {
	if m.maxWidth == 0 {
		w, h, err := m.conn.BestCursorSize(width, height)
		if err != nil {
			// Server did not answer; let CreateCursor be the judge.
			return nil
		}
		m.maxWidth, m.maxHeight = w, h
	}
	if width > m.maxWidth || height > m.maxHeight {
		return fmt.Errorf("%w: %dx%d exceeds server cursor limit %dx%d",
			ErrInvalidFrame, width, height, m.maxWidth, m.maxHeight)
	}
	return nil
}
