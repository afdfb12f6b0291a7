package magnifier

import (
	"log"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// Events is the event-delivering slice of the display connection.
type Events interface {
	WaitForEvent() (xgb.Event, xgb.Error)
}

// Pump translates X events into pointer samples until the connection goes
// away or a button press ends the session, then closes out. It only reads
// events; every protocol request still issues from the update loop, so the
// request ordering the grab atomicity depends on is preserved.
func Pump(events Events, out chan<- PointerSample) {
	defer close(out)
	for {
		ev, xerr := events.WaitForEvent()
		if ev == nil && xerr == nil {
			log.Println("Display connection closed, stopping event pump")
			return
		}
		if xerr != nil {
			log.Printf("X event error: %v", xerr)
			continue
		}

		switch e := ev.(type) {
		case xproto.MotionNotifyEvent:
			// Blocking here is deliberate: samples are FIFO and never
			// dropped; the server queues motion events meanwhile.
			out <- PointerSample{X: e.RootX, Y: e.RootY, Time: time.Now()}
		case xproto.ButtonPressEvent:
			log.Println("Button press, ending magnifier session")
			return
		}
	}
}
