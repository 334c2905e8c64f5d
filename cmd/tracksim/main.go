package main

import (
	"context"
	"flag"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fathima-sithara/location-service/internal/notify"
	"github.com/fathima-sithara/location-service/internal/room"
	"github.com/fathima-sithara/location-service/internal/utils"
)

type options struct {
	mode     string
	endpoint string
	token    string
	room     string
	interval time.Duration
	lat, lng float64
}

func main() {
	var o options
	flag.StringVar(&o.mode, "mode", "passenger", "driver or passenger")
	flag.StringVar(&o.endpoint, "url", "ws://localhost:8086/ws", "websocket endpoint")
	flag.StringVar(&o.token, "token", os.Getenv("TRACKSIM_TOKEN"), "bearer token")
	flag.StringVar(&o.room, "room", "route-1", "room name")
	flag.DurationVar(&o.interval, "interval", 2*time.Second, "driver update interval")
	flag.Float64Var(&o.lat, "lat", 9.9312, "driver start latitude")
	flag.Float64Var(&o.lng, "lng", 76.2673, "driver start longitude")
	flag.Parse()

	logger, err := utils.NewLogger(true, "info")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("mode", o.mode), zap.String("room", o.room))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := dial(o.endpoint, o.token)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer conn.Close()

	go readLoop(conn, logger, stop)

	switch o.mode {
	case "driver":
		err = drive(ctx, conn, o, logger)
	case "passenger":
		err = conn.WriteJSON(map[string]string{"action": "join", "roomId": o.room})
		if err == nil {
			<-ctx.Done()
		}
	default:
		logger.Fatal("unknown mode")
	}
	if err != nil {
		logger.Error("session ended", zap.Error(err))
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func dial(endpoint, token string) (*websocket.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// drive creates the room and sends a random walk until ctx is done.
func drive(ctx context.Context, conn *websocket.Conn, o options, logger *zap.Logger) error {
	if err := conn.WriteJSON(map[string]string{"action": "create", "room": o.room}); err != nil {
		return err
	}
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	lat, lng := o.lat, o.lng
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			lat += (rand.Float64() - 0.5) * 0.001
			lng += (rand.Float64() - 0.5) * 0.001
			msg := map[string]any{
				"action":   "broadcastLocation",
				"roomId":   o.room,
				"location": room.NewLocation(lat, lng),
			}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}
			logger.Debug("location sent", zap.Float64("lat", lat), zap.Float64("lng", lng))
		}
	}
}

func readLoop(conn *websocket.Conn, logger *zap.Logger, stop func()) {
	defer stop()
	for {
		var f notify.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("read", zap.Error(err))
			}
			return
		}
		logger.Info("event", zap.String("event", f.Event), zap.String("message", f.Message))
		if f.Event == notify.EventRoomClosed || f.Event == notify.EventRoomError {
			return
		}
	}
}
