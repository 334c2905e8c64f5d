package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/location-service/internal/room"
)

// RoomStore mirrors room lifecycle into Redis so other services can see which
// rooms have a live driver.
// Keys used:
// - <prefix>:room:<name>     hash {id, active, passengers, updated_at}
// - <prefix>:rooms:active    set of room names with a driver
// - <prefix>:room-events     pub/sub channel carrying the raw event JSON
type RoomStore struct {
	client *redis.Client
	prefix string
}

func NewRoomStore(r *redis.Client, prefix string) *RoomStore {
	return &RoomStore{client: r, prefix: prefix}
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func (s *RoomStore) roomKey(name string) string { return fmt.Sprintf("%s:room:%s", s.prefix, name) }
func (s *RoomStore) activeKey() string         { return s.prefix + ":rooms:active" }
func (s *RoomStore) channel() string           { return s.prefix + ":room-events" }

func (s *RoomStore) Name() string { return "redis" }

// Ping waits for Redis to answer, retrying with exponential backoff.
func (s *RoomStore) Ping(ctx context.Context, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	return backoff.Retry(func() error {
		return s.client.Ping(ctx).Err()
	}, backoff.WithContext(b, ctx))
}

// Deliver applies ev to the room hash and active set, then publishes it.
func (s *RoomStore) Deliver(ctx context.Context, ev room.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := s.roomKey(ev.RoomName)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if ev.Kind == room.EventClosed {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.activeKey(), ev.RoomName)
		} else {
			pipe.HSet(ctx, key,
				"id", ev.RoomID,
				"active", strconv.FormatBool(ev.Active),
				"passengers", ev.Passengers,
				"updated_at", ev.At.Unix(),
			)
			if ev.Active {
				pipe.SAdd(ctx, s.activeKey(), ev.RoomName)
			} else {
				pipe.SRem(ctx, s.activeKey(), ev.RoomName)
			}
		}
		pipe.Publish(ctx, s.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis room %s: %w", ev.RoomName, err)
	}
	return nil
}

// ActiveRooms lists the names of rooms that currently have a driver.
func (s *RoomStore) ActiveRooms(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.activeKey()).Result()
}

// Subscribe returns a subscription to the lifecycle channel.
func (s *RoomStore) Subscribe(ctx context.Context) *redis.PubSub {
	return s.client.Subscribe(ctx, s.channel())
}

func (s *RoomStore) Close() error {
	return s.client.Close()
}
