package events

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/location-service/internal/metrics"
	"github.com/fathima-sithara/location-service/internal/room"
)

// Sink is an external destination for room lifecycle events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev room.Event) error
	Close() error
}

type Settings struct {
	QueueSize          int
	DeliveryTimeout    time.Duration
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

type guardedSink struct {
	Sink
	cb *gobreaker.CircuitBreaker
}

// Publisher queues lifecycle events from the registry and delivers them to
// every sink on a single worker. Publish never blocks; a full queue drops.
type Publisher struct {
	queue   chan room.Event
	sinks   []guardedSink
	timeout time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewPublisher(log *zap.Logger, m *metrics.Metrics, s Settings, sinks ...Sink) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if s.QueueSize <= 0 {
		s.QueueSize = 1024
	}
	if s.DeliveryTimeout <= 0 {
		s.DeliveryTimeout = 5 * time.Second
	}
	if s.BreakerMaxFailures == 0 {
		s.BreakerMaxFailures = 5
	}
	if s.BreakerTimeout <= 0 {
		s.BreakerTimeout = 30 * time.Second
	}

	p := &Publisher{
		queue:   make(chan room.Event, s.QueueSize),
		timeout: s.DeliveryTimeout,
		log:     log,
		metrics: m,
	}
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		st := gobreaker.Settings{
			Name:        sink.Name(),
			MaxRequests: 1,
			Timeout:     s.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= s.BreakerMaxFailures
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}
		p.sinks = append(p.sinks, guardedSink{Sink: sink, cb: gobreaker.NewCircuitBreaker(st)})
	}
	return p
}

// Publish implements room.EventSink.
func (p *Publisher) Publish(ev room.Event) {
	if len(p.sinks) == 0 {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.metrics.EventDropped()
		p.log.Warn("room event dropped, queue full", zap.String("kind", string(ev.Kind)), zap.String("room", ev.RoomName))
	}
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// still queued.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case ev := <-p.queue:
			p.deliver(ctx, ev)
		}
	}
}

func (p *Publisher) flush() {
	for {
		select {
		case ev := <-p.queue:
			p.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, ev room.Event) {
	for _, s := range p.sinks {
		_, err := s.cb.Execute(func() (interface{}, error) {
			dctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			return nil, s.Deliver(dctx, ev)
		})
		if err != nil {
			p.metrics.SinkFailed(s.Name())
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				p.log.Debug("room event skipped, breaker open", zap.String("sink", s.Name()), zap.String("kind", string(ev.Kind)))
				continue
			}
			p.log.Warn("room event delivery failed", zap.String("sink", s.Name()), zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
}

// Close releases every sink.
func (p *Publisher) Close() error {
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
