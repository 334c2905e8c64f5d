package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"

	"github.com/fathima-sithara/location-service/internal/room"
)

type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSSink(nc *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{nc: nc, prefix: prefix}
}

// ConnectNATS dials url, retrying with exponential backoff until maxElapsed.
func ConnectNATS(ctx context.Context, url, name string, maxElapsed time.Duration) (*nats.Conn, error) {
	var nc *nats.Conn
	op := func() error {
		c, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
		if err != nil {
			return err
		}
		nc = c
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject an event kind is published on, e.g.
// location.rooms.room.closed.
func (s *NATSSink) Subject(kind room.EventKind) string {
	if s.prefix == "" {
		return string(kind)
	}
	return s.prefix + "." + string(kind)
}

func (s *NATSSink) Deliver(ctx context.Context, ev room.Event) error {
	if s == nil || s.nc == nil {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := s.nc.Publish(s.Subject(ev.Kind), b); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if s == nil || s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}
