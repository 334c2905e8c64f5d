package api

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/fathima-sithara/location-service/internal/auth"
	"github.com/fathima-sithara/location-service/internal/room"
	"github.com/fathima-sithara/location-service/internal/ws"
)

type Server struct {
	reg *room.Registry
	log *zap.Logger
}

// NewServer builds the fiber app. metricsHandler may be nil to disable /metrics.
func NewServer(reg *room.Registry, gw *ws.Gateway, jv auth.Validator, metricsHandler http.Handler, log *zap.Logger) *fiber.App {
	if log == nil {
		log = zap.NewNop()
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(requestLogger(log))
	s := &Server{reg: reg, log: log}

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	if metricsHandler != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	api := app.Group("/v1", auth.Required(jv))
	api.Get("/rooms", s.listRooms)
	api.Get("/rooms/:name", s.getRoom)

	app.Get("/ws", gw.Upgrade, gw.Handler())

	return app
}

func (s *Server) listRooms(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "success", "data": s.reg.Rooms(), "stats": s.reg.Stats()})
}

func (s *Server) getRoom(c *fiber.Ctx) error {
	info, ok := s.reg.Room(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"status": "error", "error": "room not found"})
	}
	return c.JSON(fiber.Map{"status": "success", "data": info})
}

// zapWriter feeds fiber's request log lines into zap.
type zapWriter struct {
	log *zap.Logger
}

func (w zapWriter) Write(p []byte) (int, error) {
	w.log.Info(strings.TrimSpace(string(p)))
	return len(p), nil
}

func requestLogger(log *zap.Logger) fiber.Handler {
	return logger.New(logger.Config{
		Format:        "${method} ${path} ${status} ${latency} ${ip}\n",
		DisableColors: true,
		Output:        zapWriter{log: log.Named("access")},
	})
}
