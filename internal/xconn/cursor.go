package xconn

import (
	"fmt"

	"github.com/jezek/xgb/render"
	"github.com/jezek/xgb/xproto"
)

// CreateCursor builds a server-side ARGB cursor from premultiplied pixels in
// a single RENDER CreateCursor request that bundles picture and hotspot. The
// staging pixmap and picture are scratch resources; only the cursor survives.
//
// The core-protocol alternative (CreateCursor on bitmap pixmaps, or worse,
// create-then-set-hotspot) is deliberately not used: any path where the
// hotspot arrives in a second request can be observed half-applied.
func (c *Conn) CreateCursor(pixels []uint32, width, height, hotspotX, hotspotY uint16) (xproto.Cursor, error) {
	if len(pixels) != int(width)*int(height) {
		return 0, fmt.Errorf("pixel count %d does not match %dx%d", len(pixels), width, height)
	}

	pixmap, err := xproto.NewPixmapId(c.conn)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate pixmap id: %w", err)
	}
	if err := xproto.CreatePixmapChecked(c.conn, 32, pixmap,
		xproto.Drawable(c.screen.Root), width, height).Check(); err != nil {
		return 0, fmt.Errorf("failed to create staging pixmap: %w", err)
	}
	defer xproto.FreePixmap(c.conn, pixmap)

	gc, err := xproto.NewGcontextId(c.conn)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate gcontext id: %w", err)
	}
	xproto.CreateGC(c.conn, gc, xproto.Drawable(pixmap), 0, nil)
	defer xproto.FreeGC(c.conn, gc)

	if err := c.uploadImage(pixmap, gc, pixels, width, height); err != nil {
		return 0, err
	}

	picture, err := render.NewPictureId(c.conn)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate picture id: %w", err)
	}
	if err := render.CreatePictureChecked(c.conn, picture,
		xproto.Drawable(pixmap), c.argb32, 0, nil).Check(); err != nil {
		return 0, fmt.Errorf("failed to create picture: %w", err)
	}
	defer render.FreePicture(c.conn, picture)

	cur, err := xproto.NewCursorId(c.conn)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate cursor id: %w", err)
	}
	if err := render.CreateCursorChecked(c.conn, cur, picture, hotspotX, hotspotY).Check(); err != nil {
		return 0, fmt.Errorf("failed to create cursor: %w", err)
	}

	return cur, nil
}

// FreeCursor releases a cursor resource.
func (c *Conn) FreeCursor(cur xproto.Cursor) error {
	return xproto.FreeCursorChecked(c.conn, cur).Check()
}

// uploadImage writes the pixels into the pixmap, splitting into row batches
// that fit the server's maximum request length.
func (c *Conn) uploadImage(pixmap xproto.Pixmap, gc xproto.Gcontext, pixels []uint32, width, height uint16) error {
	rowBytes := int(width) * 4
	maxBytes := int(c.setup.MaximumRequestLength)*4 - 32
	rowsPerPut := maxBytes / rowBytes
	if rowsPerPut < 1 {
		rowsPerPut = 1
	}

	for y := 0; y < int(height); y += rowsPerPut {
		rows := rowsPerPut
		if y+rows > int(height) {
			rows = int(height) - y
		}
		data := make([]byte, rows*rowBytes)
		for i := 0; i < rows*int(width); i++ {
			c.putPixel(data[i*4:], pixels[y*int(width)+i])
		}
		if err := xproto.PutImageChecked(c.conn, xproto.ImageFormatZPixmap,
			xproto.Drawable(pixmap), gc, width, uint16(rows),
			0, int16(y), 0, 32, data).Check(); err != nil {
			return fmt.Errorf("failed to upload cursor image rows %d-%d: %w", y, y+rows-1, err)
		}
	}
	return nil
}

// CaptureScreen grabs a rectangle of the root window and returns it as
// row-major RGBA with opaque alpha.
func (c *Conn) CaptureScreen(x, y int16, width, height uint16) ([]byte, error) {
	reply, err := xproto.GetImage(c.conn, xproto.ImageFormatZPixmap,
		xproto.Drawable(c.screen.Root), x, y, width, height, 0xffffffff).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to capture %dx%d at (%d,%d): %w", width, height, x, y, err)
	}
	if len(reply.Data) < int(width)*int(height)*4 {
		return nil, fmt.Errorf("short capture reply: %d bytes for %dx%d", len(reply.Data), width, height)
	}

	out := make([]byte, int(width)*int(height)*4)
	for i := 0; i < int(width)*int(height); i++ {
		px := c.pixel(reply.Data[i*4:])
		out[i*4] = byte(px >> 16)  // R
		out[i*4+1] = byte(px >> 8) // G
		out[i*4+2] = byte(px)      // B
		out[i*4+3] = 0xff
	}
	return out, nil
}
