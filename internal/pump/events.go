package pump

import "time"

// StateChangeEvent is the single typed event a Session emits towards the
// supervisor. The supervisor never inspects its fields beyond PumpID and
// Snapshot; everything else is a logging/dedup aid for the REST/WS surface.
type StateChangeEvent struct {
	PumpID    string
	Snapshot  Snapshot
	AttemptID string
	Seq       uint64
	At        time.Time
}

// EventSink receives state-change events from a Session. The supervisor
// implements this and fans events out to the broker adapter and the
// websocket status stream; a session never holds a pointer back to the
// supervisor beyond this narrow interface.
type EventSink interface {
	PumpStateChanged(StateChangeEvent)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(StateChangeEvent)

// PumpStateChanged implements EventSink.
func (f EventSinkFunc) PumpStateChanged(e StateChangeEvent) { f(e) }
