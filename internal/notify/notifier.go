package notify

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fathima-sithara/location-service/internal/metrics"
)

// Outbound event names.
const (
	EventRoomCreated        = "room_created"
	EventRoomError          = "room_error"
	EventRoomAssigned       = "room_assigned"
	EventDriverReconnected  = "driver_reconnected"
	EventRoomJoined         = "room_joined"
	EventRoomLeft           = "room_left"
	EventDriverLeft         = "driver_left"
	EventDriverDisconnected = "driver_disconnected"
	EventRoomClosed         = "room_closed"
	EventLocationUpdate     = "location_update"
)

// Frame is the wire format of every outbound message.
type Frame struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Recipient is a connection that can receive frames. Send must not block.
type Recipient interface {
	ID() string
	IsOpen() bool
	Send(b []byte) error
}

// Notifier delivers frames on a best-effort basis. It never returns delivery
// errors to the caller.
type Notifier struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(log *zap.Logger, m *metrics.Metrics) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{log: log, metrics: m}
}

func encode(event, message string) []byte {
	b, _ := json.Marshal(Frame{Event: event, Message: message})
	return b
}

// Notify sends one frame to one recipient and reports whether it was enqueued.
func (n *Notifier) Notify(to Recipient, event, message string) bool {
	if to == nil {
		return false
	}
	return n.deliver(to, event, encode(event, message))
}

// Fanout sends the same frame to every recipient except skip and returns the
// number of recipients it was enqueued for.
func (n *Notifier) Fanout(to []Recipient, skip Recipient, event, message string) int {
	if len(to) == 0 {
		return 0
	}
	b := encode(event, message)
	sent := 0
	for _, r := range to {
		if r == nil || r == skip {
			continue
		}
		if n.deliver(r, event, b) {
			sent++
		}
	}
	return sent
}

func (n *Notifier) deliver(to Recipient, event string, b []byte) bool {
	if !to.IsOpen() {
		n.log.Debug("skip closed recipient", zap.String("conn", to.ID()), zap.String("event", event))
		return false
	}
	if err := to.Send(b); err != nil {
		n.metrics.DeliveryFailed(event)
		n.log.Warn("deliver frame", zap.String("conn", to.ID()), zap.String("event", event), zap.Error(err))
		return false
	}
	return true
}
