package ws

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/location-service/internal/metrics"
	"github.com/fathima-sithara/location-service/internal/room"
)

const (
	actionCreate    = "create"
	actionJoin      = "join"
	actionLeave     = "leave"
	actionBroadcast = "broadcastlocation"
)

// command is an inbound frame. create names its room in "room", the other
// actions in "roomId"; either field is accepted for every action.
type command struct {
	Action   string         `json:"action"`
	Room     string         `json:"room"`
	RoomID   string         `json:"roomId"`
	Location *room.Location `json:"location"`
}

func (c command) roomName(primary string) string {
	name := c.RoomID
	if primary == "room" {
		name = c.Room
	}
	if name == "" {
		name = c.Room + c.RoomID
	}
	return strings.TrimSpace(name)
}

// Dispatcher routes decoded frames from one connection to the registry.
type Dispatcher struct {
	reg     *room.Registry
	log     *zap.Logger
	metrics *metrics.Metrics
	rps     int
}

func NewDispatcher(reg *room.Registry, log *zap.Logger, m *metrics.Metrics, rps int) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{reg: reg, log: log, metrics: m, rps: rps}
}

// Serve runs the read loop of c until the socket fails or closes. On return
// the connection has been removed from the registry and its write pump stopped.
func (d *Dispatcher) Serve(c *Client) {
	d.metrics.ConnectionOpened()
	var pump sync.WaitGroup
	pump.Add(1)
	go func() {
		defer pump.Done()
		c.writePump()
	}()

	defer func() {
		d.reg.RemoveConnection(c)
		c.Close()
		pump.Wait()
		d.metrics.ConnectionClosed()
		c.Logger().Info("connection closed")
	}()

	var limiter *rate.Limiter
	if d.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(d.rps), d.rps)
	}

	c.prepareRead()
	c.Logger().Info("connection opened", zap.String("role", c.Role().String()))
	for {
		mt, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.Logger().Warn("read failed", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			d.drop(c, "non_text", nil)
			continue
		}
		if limiter != nil && !limiter.Allow() {
			d.drop(c, "rate_limited", nil)
			continue
		}
		d.handle(c, data)
	}
}

func (d *Dispatcher) handle(c *Client, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		d.drop(c, "malformed", err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case actionCreate:
		if c.Role() != room.RoleDriver {
			d.drop(c, "forbidden", nil)
			return
		}
		name := cmd.roomName("room")
		if name == "" {
			d.drop(c, "missing_room", nil)
			return
		}
		if _, err := d.reg.CreateRoom(name, c); err != nil {
			c.Logger().Info("create rejected", zap.String("room", name), zap.Error(err))
		}

	case actionJoin:
		name := cmd.roomName("roomId")
		if name == "" {
			d.drop(c, "missing_room", nil)
			return
		}
		if !d.reg.JoinRoom(name, c, c.Role()) {
			c.Logger().Info("join rejected", zap.String("room", name))
		}

	case actionLeave:
		name := cmd.roomName("roomId")
		if name == "" {
			d.drop(c, "missing_room", nil)
			return
		}
		if !d.reg.LeaveRoom(name, c) {
			c.Logger().Debug("leave ignored", zap.String("room", name))
		}

	case actionBroadcast:
		if c.Role() != room.RoleDriver {
			d.drop(c, "forbidden", nil)
			return
		}
		name := cmd.roomName("roomId")
		if name == "" || cmd.Location == nil {
			d.drop(c, "missing_payload", nil)
			return
		}
		if err := d.reg.BroadcastLocation(name, *cmd.Location, c); err != nil {
			reason := "broadcast_rejected"
			if errors.Is(err, room.ErrInvalidLocation) {
				reason = "invalid_location"
			}
			d.drop(c, reason, err)
		}

	default:
		d.drop(c, "unknown_action", nil)
	}
}

func (d *Dispatcher) drop(c *Client, reason string, err error) {
	d.metrics.FrameDropped(reason)
	fields := []zap.Field{zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.Logger().Debug("frame dropped", fields...)
}
