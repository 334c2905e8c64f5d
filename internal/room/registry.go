package room

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/location-service/internal/metrics"
	"github.com/fathima-sithara/location-service/internal/notify"
)

const (
	DefaultTimeout       = 2 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Settings configures a Registry. Zero values fall back to defaults.
type Settings struct {
	Timeout       time.Duration
	SweepInterval time.Duration
	Sink          EventSink
	Metrics       *metrics.Metrics
	Now           func() time.Time
}

// Registry is the shared store of rooms. A single mutex serializes every
// check-then-act sequence, so transitions for one room are linearizable.
// Control notifications and lifecycle events are enqueued under the lock; both
// are non-blocking. Location fan-out runs outside the lock on a snapshot.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room // by name
	members map[Conn]*Room   // connection -> the one room it belongs to

	notifier *notify.Notifier
	log      *zap.Logger
	sink     EventSink
	metrics  *metrics.Metrics
	now      func() time.Time

	timeout       time.Duration
	sweepInterval time.Duration
	sweepOnce     sync.Once
}

func NewRegistry(n *notify.Notifier, log *zap.Logger, s Settings) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	if n == nil {
		n = notify.New(log, s.Metrics)
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = DefaultSweepInterval
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Registry{
		rooms:         make(map[string]*Room),
		members:       make(map[Conn]*Room),
		notifier:      n,
		log:           log,
		sink:          s.Sink,
		metrics:       s.Metrics,
		now:           s.Now,
		timeout:       s.Timeout,
		sweepInterval: s.SweepInterval,
	}
}

// CreateRoom attaches driver to the room called name, creating the room when
// it does not exist. An active room with that name rejects the call with
// ErrRoomActive after notifying the caller.
func (r *Registry) CreateRoom(name string, driver Conn) (Info, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Info{}, ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing := r.rooms[name]; existing != nil && existing.Active() {
		r.log.Warn("room already active", zap.String("room", name), zap.String("conn", driver.ID()))
		r.notifier.Notify(driver, notify.EventRoomError, fmt.Sprintf("Room %s is already active with a driver.", name))
		return Info{}, fmt.Errorf("create %s: %w", name, ErrRoomActive)
	}

	if prev := r.members[driver]; prev != nil {
		r.depart(prev, driver, true, notify.EventDriverLeft)
	}

	now := r.now()
	if existing := r.rooms[name]; existing != nil {
		existing.driver = driver
		existing.lastActive = now
		r.members[driver] = existing
		r.notifier.Fanout(existing.passengerList(), driver, notify.EventDriverReconnected, "The room has been reassigned to a new driver.")
		r.notifier.Notify(driver, notify.EventRoomAssigned, fmt.Sprintf("You have taken over room %s.", name))
		r.emit(existing, EventDriverAttached, "")
		r.log.Info("driver assigned to inactive room", zap.String("room", name), zap.String("room_id", existing.ID))
		return existing.info(), nil
	}

	rm := newRoom(name, driver, now)
	r.rooms[name] = rm
	r.members[driver] = rm
	r.notifier.Notify(driver, notify.EventRoomCreated, fmt.Sprintf("Room created: %s", rm.ID))
	r.emit(rm, EventCreated, "")
	r.log.Info("room created", zap.String("room", name), zap.String("room_id", rm.ID))
	return rm.info(), nil
}

// JoinRoom admits conn to the room called name. Joining a room the connection
// already belongs to succeeds without change. Any other existing room first
// makes conn leave the room it is in, even when the join is then refused. A
// driver joining an inactive room takes it over; anyone else is added as a
// passenger, which requires an active room.
func (r *Registry) JoinRoom(name string, conn Conn, role Role) bool {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[name]
	if rm == nil {
		r.log.Warn("join unknown room", zap.String("room", name), zap.String("conn", conn.ID()))
		return false
	}
	if rm.has(conn) {
		return true
	}

	if prev := r.members[conn]; prev != nil {
		r.depart(prev, conn, true, notify.EventDriverLeft)
	}

	if !rm.Active() && role != RoleDriver {
		r.log.Warn("join inactive room without driver", zap.String("room", name), zap.String("conn", conn.ID()))
		return false
	}

	rm.lastActive = r.now()
	r.members[conn] = rm
	if !rm.Active() {
		rm.driver = conn
		r.notifier.Fanout(rm.passengerList(), conn, notify.EventDriverReconnected, "The driver has reconnected. The room is active again.")
		r.emit(rm, EventDriverAttached, "")
		r.log.Info("driver rejoined room", zap.String("room", name))
		return true
	}

	rm.passengers[conn] = struct{}{}
	r.notifier.Notify(conn, notify.EventRoomJoined, fmt.Sprintf("Room joined: %s", name))
	r.emit(rm, EventPassengerJoined, "")
	r.log.Info("passenger joined room", zap.String("room", name), zap.String("conn", conn.ID()))
	return true
}

// LeaveRoom removes conn from the room called name. It returns false when the
// room does not exist or conn is not a member of it.
func (r *Registry) LeaveRoom(name string, conn Conn) bool {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[name]
	if rm == nil || !rm.has(conn) {
		return false
	}
	r.depart(rm, conn, true, notify.EventDriverLeft)
	return true
}

// RemoveConnection drops a terminated connection from whichever room holds it.
// The departing connection is not notified. Calling it again is a no-op.
func (r *Registry) RemoveConnection(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.members[conn]
	if rm == nil {
		return
	}
	r.depart(rm, conn, false, notify.EventDriverDisconnected)
}

// BroadcastLocation delivers loc to every passenger of the room when sender is
// its current driver. Dropped broadcasts return the reason; nothing is delivered.
func (r *Registry) BroadcastLocation(name string, loc Location, sender Conn) error {
	name = strings.TrimSpace(name)
	if err := loc.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}

	r.mu.Lock()
	rm := r.rooms[name]
	if rm == nil {
		r.mu.Unlock()
		return fmt.Errorf("broadcast %s: %w", name, ErrRoomNotFound)
	}
	if rm.driver == nil || rm.driver != sender {
		r.mu.Unlock()
		return fmt.Errorf("broadcast %s: %w", name, ErrNotDriver)
	}
	rm.lastActive = r.now()
	targets := rm.passengerList()
	r.mu.Unlock()

	r.metrics.LocationUpdate()
	sent := r.notifier.Fanout(targets, sender, notify.EventLocationUpdate, string(payload))
	r.log.Debug("location broadcast", zap.String("room", name), zap.Int("delivered", sent), zap.Int("passengers", len(targets)))
	return nil
}

// depart applies the leave transition for conn in rm. The caller holds r.mu.
func (r *Registry) depart(rm *Room, conn Conn, notifyConn bool, driverEvent string) {
	delete(r.members, conn)
	rm.lastActive = r.now()

	if rm.driver == conn {
		rm.driver = nil
		if notifyConn {
			r.notifier.Notify(conn, notify.EventRoomLeft, fmt.Sprintf("Room left: %s", rm.Name))
		}
		r.log.Info("driver left room", zap.String("room", rm.Name), zap.String("conn", conn.ID()), zap.String("reason", driverEvent))
		if len(rm.passengers) == 0 {
			r.remove(rm, ReasonEmpty)
			return
		}
		msg := "The driver has left. The room is now inactive."
		if driverEvent == notify.EventDriverDisconnected {
			msg = "The driver has disconnected. The room is now inactive."
		}
		r.notifier.Fanout(rm.passengerList(), nil, driverEvent, msg)
		r.emit(rm, EventDriverDetached, "")
		return
	}

	if !rm.hasPassenger(conn) {
		return
	}
	delete(rm.passengers, conn)
	if notifyConn {
		r.notifier.Notify(conn, notify.EventRoomLeft, fmt.Sprintf("Room left: %s", rm.Name))
	}
	r.log.Info("passenger left room", zap.String("room", rm.Name), zap.String("conn", conn.ID()))
	if rm.empty() {
		r.remove(rm, ReasonEmpty)
		return
	}
	r.emit(rm, EventPassengerLeft, "")
}

// remove deletes rm and every membership pointing at it. The caller holds r.mu.
func (r *Registry) remove(rm *Room, reason string) {
	if cur, ok := r.rooms[rm.Name]; ok && cur == rm {
		delete(r.rooms, rm.Name)
	}
	if rm.driver != nil && r.members[rm.driver] == rm {
		delete(r.members, rm.driver)
	}
	for c := range rm.passengers {
		if r.members[c] == rm {
			delete(r.members, c)
		}
	}
	r.emit(rm, EventClosed, reason)
	r.log.Info("room removed", zap.String("room", rm.Name), zap.String("room_id", rm.ID), zap.String("reason", reason))
}

func (r *Registry) emit(rm *Room, kind EventKind, reason string) {
	if r.sink == nil {
		return
	}
	r.sink.Publish(Event{
		Kind:       kind,
		RoomID:     rm.ID,
		RoomName:   rm.Name,
		Active:     rm.Active() && kind != EventClosed,
		Passengers: len(rm.passengers),
		Reason:     reason,
		At:         r.now().UTC(),
	})
}

// Room returns a snapshot of the room called name.
func (r *Registry) Room(name string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.rooms[name]
	if rm == nil {
		return Info{}, false
	}
	return rm.info(), true
}

// Rooms returns snapshots of all rooms ordered by name.
func (r *Registry) Rooms() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, rm.info())
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RoomOf returns the name of the room conn belongs to.
func (r *Registry) RoomOf(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm := r.members[conn]
	if rm == nil {
		return "", false
	}
	return rm.Name, true
}

func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{Members: len(r.members)}
	for _, rm := range r.rooms {
		if rm.Active() {
			s.Active++
		} else {
			s.Inactive++
		}
	}
	return s
}
