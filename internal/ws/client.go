package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/location-service/internal/room"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Socket is the subset of *websocket.Conn a Client uses.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Options tunes a Client's transport behaviour.
type Options struct {
	SendBuffer     int
	PingInterval   time.Duration
	WriteDeadline  time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 25 * time.Second
	}
	if o.WriteDeadline <= 0 {
		o.WriteDeadline = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	return o
}

// Client represents a single websocket connection.
type Client struct {
	id   string
	role room.Role

	sock Socket
	send chan []byte
	opts Options
	log  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewClient(sock Socket, subject string, role room.Role, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Client{
		id:   id,
		role: role,
		sock: sock,
		send: make(chan []byte, opts.SendBuffer),
		opts: opts,
		log:  log.With(zap.String("conn", id), zap.String("subject", subject)),
	}
}

func (c *Client) ID() string          { return c.id }
func (c *Client) Role() room.Role     { return c.role }
func (c *Client) Logger() *zap.Logger { return c.log }

func (c *Client) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Send enqueues b for the write pump without blocking.
func (c *Client) Send(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops accepting frames. The write pump drains what is queued, sends a
// close frame and exits. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}

func (c *Client) prepareRead() {
	c.sock.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(c.pongWait()))
	})
}

func (c *Client) pongWait() time.Duration {
	return c.opts.PingInterval*2 + c.opts.WriteDeadline
}

// writePump writes messages from send channel to websocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.sock.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
