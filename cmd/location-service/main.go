package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fathima-sithara/location-service/internal/api"
	"github.com/fathima-sithara/location-service/internal/auth"
	"github.com/fathima-sithara/location-service/internal/config"
	"github.com/fathima-sithara/location-service/internal/discovery"
	"github.com/fathima-sithara/location-service/internal/events"
	"github.com/fathima-sithara/location-service/internal/kafka"
	"github.com/fathima-sithara/location-service/internal/metrics"
	"github.com/fathima-sithara/location-service/internal/notify"
	"github.com/fathima-sithara/location-service/internal/redis"
	"github.com/fathima-sithara/location-service/internal/room"
	"github.com/fathima-sithara/location-service/internal/utils"
	"github.com/fathima-sithara/location-service/internal/ws"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("config load: " + err.Error())
	}

	logger, err := utils.NewLogger(cfg.Development(), cfg.Log.Level)
	if err != nil {
		panic("logger init: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jv, err := newValidator(cfg)
	if err != nil {
		logger.Fatal("jwt validator init", zap.Error(err))
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	pub := events.NewPublisher(logger.Named("events"), m, events.Settings{
		QueueSize:          cfg.Events.QueueSize,
		DeliveryTimeout:    cfg.DeliveryTimeout,
		BreakerMaxFailures: cfg.Events.BreakerMaxFailures,
		BreakerTimeout:     cfg.BreakerTimeout,
	}, buildSinks(ctx, cfg, logger)...)

	reg := room.NewRegistry(notify.New(logger.Named("notify"), m), logger.Named("rooms"), room.Settings{
		Timeout:       cfg.RoomTimeout,
		SweepInterval: cfg.SweepInterval,
		Sink:          pub,
		Metrics:       m,
	})
	m.ObserveRooms(
		func() float64 { return float64(reg.Stats().Active) },
		func() float64 { return float64(reg.Stats().Inactive) },
	)

	pubCtx, stopPub := context.WithCancel(context.Background())
	var pubDone sync.WaitGroup
	pubDone.Add(1)
	go func() {
		defer pubDone.Done()
		pub.Run(pubCtx)
	}()
	reg.StartInactiveRoomCleanup(ctx)

	wsLog := logger.Named("ws")
	d := ws.NewDispatcher(reg, wsLog, m, cfg.WS.RateLimitPerSec)
	gw := ws.NewGateway(jv, d, ws.Options{
		SendBuffer:     cfg.WS.SendBufferSize,
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
	}, wsLog)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = metrics.Handler(promReg)
	}
	app := api.NewServer(reg, gw, jv, metricsHandler, logger.Named("http"))

	var registrar *discovery.Registrar
	if cfg.Consul.Addr != "" {
		registrar, err = discovery.NewRegistrar(cfg.Consul.Addr, discovery.Registration{
			ServiceID: cfg.Consul.ServiceID,
			Name:      cfg.App.Name,
			Address:   cfg.Consul.ServiceAddress,
			Port:      cfg.App.Port,
			Tags:      []string{"ws", "rooms"},
		}, logger.Named("consul"))
		if err != nil {
			logger.Fatal("consul client init", zap.Error(err))
		}
		if err := registrar.Register(); err != nil {
			logger.Warn("consul register failed", zap.Error(err))
			registrar = nil
		}
	}

	errs := make(chan error, 1)
	go func() {
		addr := ":" + cfg.PortString()
		logger.Info("starting location service", zap.String("addr", addr), zap.String("env", cfg.App.Env))
		errs <- app.Listen(addr)
	}()

	select {
	case e := <-errs:
		logger.Error("server error", zap.Error(e))
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if registrar != nil {
		if err := registrar.Deregister(); err != nil {
			logger.Warn("consul deregister failed", zap.Error(err))
		}
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
	stop()
	stopPub()
	pubDone.Wait()
	if err := pub.Close(); err != nil {
		logger.Warn("event sinks close", zap.Error(err))
	}
	logger.Info("shutting down")
}

func newValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	if cfg.JWT.Algorithm == "RS256" {
		return auth.NewJWTValidatorRS256(cfg.JWT.PublicKeyPath, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.RoleClaim)
	}
	return auth.NewJWTValidatorHS256(cfg.JWT.HSSecret, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.RoleClaim)
}

// buildSinks connects every configured lifecycle sink. A sink that cannot be
// reached at startup is skipped; rooms keep working without it.
func buildSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) []events.Sink {
	var sinks []events.Sink

	if cfg.Redis.Addr != "" {
		store := redis.NewRoomStore(redis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), cfg.Redis.Prefix)
		if err := store.Ping(ctx, 15*time.Second); err != nil {
			logger.Warn("redis unavailable, room state not mirrored", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = store.Close()
		} else {
			sinks = append(sinks, store)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicRoomEvents)
		if err != nil {
			logger.Warn("kafka producer init", zap.Error(err))
		} else {
			sinks = append(sinks, p)
		}
	}

	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(ctx, cfg.NATS.URL, cfg.App.Name, 15*time.Second)
		if err != nil {
			logger.Warn("nats unavailable, room events not published", zap.Error(err))
		} else {
			sinks = append(sinks, events.NewNATSSink(nc, cfg.NATS.SubjectPrefix))
		}
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info("room event sinks", zap.Strings("sinks", names))
	return sinks
}
