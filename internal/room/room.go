package room

import (
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/location-service/internal/notify"
)

// Conn is a connection handle as seen by the registry.
type Conn = notify.Recipient

// Room is one named broadcast group. All fields are guarded by the owning
// Registry's lock; a Room is never handed out, only its Info snapshot.
type Room struct {
	ID         string
	Name       string
	driver     Conn
	passengers map[Conn]struct{}
	lastActive time.Time
}

func newRoom(name string, driver Conn, now time.Time) *Room {
	return &Room{
		ID:         uuid.NewString(),
		Name:       name,
		driver:     driver,
		passengers: make(map[Conn]struct{}),
		lastActive: now,
	}
}

// Active is true exactly when a driver is attached.
func (r *Room) Active() bool { return r.driver != nil }

func (r *Room) hasPassenger(c Conn) bool {
	_, ok := r.passengers[c]
	return ok
}

func (r *Room) has(c Conn) bool {
	return r.driver == c || r.hasPassenger(c)
}

func (r *Room) empty() bool {
	return r.driver == nil && len(r.passengers) == 0
}

func (r *Room) passengerList() []Conn {
	out := make([]Conn, 0, len(r.passengers))
	for c := range r.passengers {
		out = append(out, c)
	}
	return out
}

// Info is a read-only snapshot of a Room.
type Info struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Active     bool      `json:"active"`
	DriverID   string    `json:"driver_id,omitempty"`
	Passengers int       `json:"passengers"`
	LastActive time.Time `json:"last_active"`
}

func (r *Room) info() Info {
	in := Info{
		ID:         r.ID,
		Name:       r.Name,
		Active:     r.Active(),
		Passengers: len(r.passengers),
		LastActive: r.lastActive,
	}
	if r.driver != nil {
		in.DriverID = r.driver.ID()
	}
	return in
}

// Stats counts rooms and connections tracked by the registry.
type Stats struct {
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Members  int `json:"members"`
}
