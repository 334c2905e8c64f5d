package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/location-service/internal/auth"
)

// Gateway authenticates websocket upgrades and hands accepted connections to
// the Dispatcher.
type Gateway struct {
	validator  auth.Validator
	dispatcher *Dispatcher
	opts       Options
	log        *zap.Logger
}

func NewGateway(v auth.Validator, d *Dispatcher, opts Options, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{validator: v, dispatcher: d, opts: opts.withDefaults(), log: log}
}

// Upgrade is the fiber middleware placed before Handler. Requests that are not
// upgrades get 426; a missing or invalid token gets 401.
func (g *Gateway) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := auth.TokenFromRequest(c)
	if token == "" {
		g.log.Info("ws upgrade without token", zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token"})
	}
	id, err := g.validator.Validate(token)
	if err != nil {
		g.log.Info("ws upgrade with invalid token", zap.String("ip", c.IP()), zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	c.Locals(auth.IdentityKey, id)
	return c.Next()
}

// Handler returns the websocket handler mounted after Upgrade.
func (g *Gateway) Handler() fiber.Handler {
	return websocket.New(g.serve, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	})
}

func (g *Gateway) serve(conn *websocket.Conn) {
	id, ok := auth.IdentityFrom(conn.Locals(auth.IdentityKey))
	if !ok {
		_ = conn.Close()
		return
	}
	client := NewClient(conn, id.Subject, id.Role, g.opts, g.log)
	g.dispatcher.Serve(client)
}
