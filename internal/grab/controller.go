// Package grab owns the pointer-grab state machine. The critical ordering
// contract lives here: the grab-establishing request already carries the
// cursor to present, and a cursor swap is one ChangeActivePointerGrab request
// acknowledged by a server round-trip before the old handle is handed back
// for destruction. The server's rendered cursor therefore never passes
// through an intermediate state.
package grab

import (
	"errors"
	"fmt"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"github.com/hugo/loupe/internal/cursor"
)

var (
	ErrGrabDenied     = errors.New("grab: pointer already grabbed by another client")
	ErrGrabFailed     = errors.New("grab: server refused pointer grab")
	ErrConnectionLost = errors.New("grab: display connection lost")
	ErrInvalidState   = errors.New("grab: operation not valid in current state")

	// ErrAlreadyDetached is the defined outcome of releasing a controller
	// that holds no grab. Callers treat it like io.EOF: informational, not a
	// failure.
	ErrAlreadyDetached = errors.New("grab: no grab held")
)

// State of the controller. Errored absorbs unrecoverable server errors; the
// only way out is Reset.
type State int

const (
	Detached State = iota
	Acquiring
	Active
	Releasing
	Errored
)

func (s State) String() string {
	switch s {
	case Detached:
		return "detached"
	case Acquiring:
		return "acquiring"
	case Active:
		return "active"
	case Releasing:
		return "releasing"
	case Errored:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Conn is the slice of the display connection the controller needs.
type Conn interface {
	// GrabPointer establishes an active pointer grab on window with cursor
	// already installed, returning the protocol grab status.
	GrabPointer(window xproto.Window, cur xproto.Cursor) (byte, error)
	// ChangeGrabCursor atomically replaces the active grab's cursor.
	ChangeGrabCursor(cur xproto.Cursor) error
	UngrabPointer() error
	// Sync performs a request/reply round-trip, proving the server has
	// processed everything issued before it.
	Sync() error
}

// Controller is the single GrabSession of the process. Not safe for
// concurrent use; the update loop is its only caller.
type Controller struct {
	conn        Conn
	window      xproto.Window
	state       State
	current     *cursor.Handle
	syncTimeout time.Duration
}

// NewController returns a Detached controller targeting window. syncTimeout
// bounds the acknowledgment round-trips in Acquire and Swap; an expiry is
// treated as a lost connection.
func NewController(conn Conn, window xproto.Window, syncTimeout time.Duration) *Controller {
	return &Controller{
		conn:        conn,
		window:      window,
		state:       Detached,
		syncTimeout: syncTimeout,
	}
}

func (g *Controller) State() State { return g.state }

// Current returns the handle presently installed, or nil. The controller
// holds a non-owning reference; destruction stays with the cursor manager.
func (g *Controller) Current() *cursor.Handle { return g.current }

// Acquire establishes the pointer grab with initial already installed. The
// very first grab request carries the cursor, so no frame is ever rendered
// with a default cursor under the grab. On ErrGrabDenied and ErrGrabFailed
// the controller remains Detached.
func (g *Controller) Acquire(initial *cursor.Handle) error {
	if g.state != Detached {
		return fmt.Errorf("%w: acquire in %s", ErrInvalidState, g.state)
	}
	if initial == nil {
		return fmt.Errorf("%w: acquire without a cursor handle", ErrInvalidState)
	}

	g.state = Acquiring
	status, err := g.conn.GrabPointer(g.window, initial.Cursor())
	if err != nil {
		g.state = Errored
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	switch status {
	case xproto.GrabStatusSuccess:
	case xproto.GrabStatusAlreadyGrabbed, xproto.GrabStatusFrozen:
		g.state = Detached
		return ErrGrabDenied
	default:
		g.state = Detached
		return fmt.Errorf("%w: grab status %d", ErrGrabFailed, status)
	}

	if err := g.sync(); err != nil {
		g.state = Errored
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	initial.Bind()
	g.current = initial
	g.state = Active
	return nil
}

// Swap atomically changes the presented cursor to next and returns the
// previous handle. The change request is acknowledged by a round-trip before
// the previous handle is returned, so the caller can never destroy a cursor
// the server might still present.
func (g *Controller) Swap(next *cursor.Handle) (*cursor.Handle, error) {
	if g.state != Active {
		return nil, fmt.Errorf("%w: swap in %s", ErrInvalidState, g.state)
	}
	if next == nil {
		return nil, fmt.Errorf("%w: swap without a cursor handle", ErrInvalidState)
	}

	if err := g.conn.ChangeGrabCursor(next.Cursor()); err != nil {
		var xerr xgb.Error
		if errors.As(err, &xerr) {
			// A protocol error reply: the grab survives with its old cursor.
			return nil, fmt.Errorf("%w: %v", ErrGrabFailed, err)
		}
		g.state = Errored
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	if err := g.sync(); err != nil {
		g.state = Errored
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	prev := g.current
	prev.Unbind()
	next.Bind()
	g.current = next
	return prev, nil
}

// Release ungrabs the pointer, restoring the default system cursor, and
// returns the last-installed handle for destruction. Releasing a Detached
// controller is a no-op reported as ErrAlreadyDetached.
func (g *Controller) Release() (*cursor.Handle, error) {
	switch g.state {
	case Detached:
		return nil, ErrAlreadyDetached
	case Errored:
		return nil, fmt.Errorf("%w: release in %s", ErrInvalidState, g.state)
	}

	g.state = Releasing
	prev := g.current
	g.current = nil
	if prev != nil {
		prev.Unbind()
	}

	if err := g.conn.UngrabPointer(); err != nil {
		g.state = Errored
		return prev, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	g.state = Detached
	return prev, nil
}

// Reset tears down local state after an unrecoverable error without assuming
// the server-side grab still exists, and returns the orphaned handle (if
// any) for destruction. Only valid in Errored.
func (g *Controller) Reset() (*cursor.Handle, error) {
	if g.state != Errored {
		return nil, fmt.Errorf("%w: reset in %s", ErrInvalidState, g.state)
	}
	prev := g.current
	g.current = nil
	if prev != nil {
		prev.Unbind()
	}
	g.state = Detached
	return prev, nil
}

// sync waits for the server to acknowledge all prior requests, bounded by
// syncTimeout. A stray late reply is drained by the connection's read loop.
func (g *Controller) sync() error {
	if g.syncTimeout <= 0 {
		return g.conn.Sync()
	}
	done := make(chan error, 1)
	go func() { done <- g.conn.Sync() }()
	select {
	case err := <-done:
		return err
	case <-time.After(g.syncTimeout):
		return fmt.Errorf("server did not acknowledge within %v", g.syncTimeout)
	}
}
