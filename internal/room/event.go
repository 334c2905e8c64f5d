package room

import "time"

// EventKind names a room lifecycle change exported to external sinks.
type EventKind string

const (
	EventCreated         EventKind = "room.created"
	EventDriverAttached  EventKind = "room.driver_attached"
	EventDriverDetached  EventKind = "room.driver_detached"
	EventPassengerJoined EventKind = "room.passenger_joined"
	EventPassengerLeft   EventKind = "room.passenger_left"
	EventClosed          EventKind = "room.closed"
)

const (
	ReasonEmpty   = "empty"
	ReasonTimeout = "timeout"
)

// Event describes a lifecycle change of one room. It never carries location data.
type Event struct {
	Kind       EventKind `json:"kind"`
	RoomID     string    `json:"room_id"`
	RoomName   string    `json:"room_name"`
	Active     bool      `json:"active"`
	Passengers int       `json:"passengers"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// EventSink receives lifecycle events. Publish is called with the registry lock
// held and must not block.
type EventSink interface {
	Publish(Event)
}
