package kafka

import (
	"context"
	"encoding/json"
	"errors"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/fathima-sithara/location-service/internal/room"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer writes room lifecycle events to one topic, keyed by room name so
// events of a room stay ordered within a partition.
type Producer struct {
	writer messageWriter
	topic  string
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: w, topic: topic}, nil
}

func (p *Producer) Name() string { return "kafka" }

func (p *Producer) Deliver(ctx context.Context, ev room.Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func encode(ev room.Event) (kafkago.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(ev.RoomName),
		Value: b,
		Time:  ev.At,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
