package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/location-service/internal/room"
)

func newStore(t *testing.T) (*RoomStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRoomStore(NewClient(mr.Addr(), "", 0), "location")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRoomStoreLifecycle(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx, time.Second))

	at := time.Unix(1700000000, 0).UTC()
	require.NoError(t, s.Deliver(ctx, room.Event{Kind: room.EventCreated, RoomID: "id-1", RoomName: "R1", Active: true, At: at}))

	assert.Equal(t, "id-1", mr.HGet("location:room:R1", "id"))
	assert.Equal(t, "true", mr.HGet("location:room:R1", "active"))
	assert.Equal(t, "0", mr.HGet("location:room:R1", "passengers"))
	assert.Equal(t, "1700000000", mr.HGet("location:room:R1", "updated_at"))
	names, err := s.ActiveRooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"R1"}, names)

	require.NoError(t, s.Deliver(ctx, room.Event{Kind: room.EventDriverDetached, RoomID: "id-1", RoomName: "R1", Passengers: 2, At: at}))
	assert.Equal(t, "false", mr.HGet("location:room:R1", "active"))
	assert.Equal(t, "2", mr.HGet("location:room:R1", "passengers"))
	names, err = s.ActiveRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.Deliver(ctx, room.Event{Kind: room.EventClosed, RoomID: "id-1", RoomName: "R1", Reason: room.ReasonTimeout, At: at}))
	assert.False(t, mr.Exists("location:room:R1"))
}

func TestRoomStorePublishes(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	sub := s.Subscribe(ctx)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev := room.Event{Kind: room.EventPassengerJoined, RoomID: "id-2", RoomName: "R2", Active: true, Passengers: 1, At: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, s.Deliver(ctx, ev))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "location:room-events", msg.Channel)
		var got room.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, ev, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
}

func TestRoomStoreDeliverFailsWhenDown(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Deliver(ctx, room.Event{Kind: room.EventCreated, RoomName: "R1", Active: true, At: time.Now()})
	assert.Error(t, err)
}
