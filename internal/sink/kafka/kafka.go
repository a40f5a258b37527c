// Package kafka writes location events to a Kafka topic keyed by location id,
// so each location's events stay ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"scout-sdk/internal/sink"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink implements sink.Sink using segmentio/kafka-go.
type Sink struct {
	writer messageWriter
	topic  string
}

var _ sink.Sink = (*Sink)(nil)

// New creates a Kafka sink writing to topic. brokers must be non-empty. Call Close when shutting down.
func New(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka: brokers and topic required")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Sink{writer: writer, topic: topic}, nil
}

func (s *Sink) Name() string { return "kafka" }

// Topic returns the destination topic.
func (s *Sink) Topic() string { return s.topic }

// Publish serializes r as JSON and writes it keyed by location id.
func (s *Sink) Publish(ctx context.Context, r sink.Record) error {
	if s == nil || s.writer == nil {
		return nil
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(r.LocationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "category", Value: []byte(r.Category)},
			{Key: "record_id", Value: []byte(r.ID)},
		},
		Time: r.ReceivedAt,
	})
}

// Close closes the Kafka writer. Safe to call multiple times.
func (s *Sink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
